package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/wentf9/routerctl/pkg/crypto"
	"github.com/wentf9/routerctl/pkg/utils/file"
	"gopkg.in/yaml.v3"
)

type Store interface {
	Load() (*Configuration, error)
	Save(cfg *Configuration) error
}

type defaultStore struct {
	Path string
}

// Load 读取 inventory, 文件不存在时返回空配置。密文字段保持原样, 由 Provider 按需解密。
func (s *defaultStore) Load() (*Configuration, error) {
	data, err := os.ReadFile(s.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return Empty(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read inventory '%s': %w", s.Path, err)
	}
	cfg := Empty()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse inventory '%s': %w", s.Path, err)
	}
	cfg.normalize()
	return cfg, nil
}

// Save 写回 inventory, 文件权限 0600
func (s *defaultStore) Save(cfg *Configuration) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return file.CreateFileRecursive(s.Path, data, 0600)
}

func NewDefaultStore(path string) Store {
	return &defaultStore{Path: path}
}

// Seal 把所有明文密码加密为 ENC: 格式, 返回加密的条数
func Seal(cfg *Configuration, c *crypto.Crypter) (int, error) {
	n := 0
	for name, cred := range cfg.Credentials {
		if cred.Password == "" || crypto.IsEncrypted(cred.Password) {
			continue
		}
		enc, err := c.Encrypt(cred.Password)
		if err != nil {
			return n, fmt.Errorf("seal credential '%s': %w", name, err)
		}
		cred.Password = enc
		cfg.Credentials[name] = cred
		n++
	}
	return n, nil
}
