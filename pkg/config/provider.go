package config

import (
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/wentf9/routerctl/pkg/crypto"
	"github.com/wentf9/routerctl/pkg/models"
)

// maxJumpDepth 跳板链最大长度, 传输层只支持一层
const maxJumpDepth = 1

// ConfigProvider 定义 CLI、API 和 MCP 获取设备与 profile 的接口
type ConfigProvider interface {
	Find(input string) (string, bool)
	Resolve(input string) (models.RouterTarget, error)
	Router(name string) (Router, bool)
	ListRouters() []RouterInfo
	ByTag(tag string) []string
	Profile(name string) (Profile, error)
	ProfileNames() []string
	AddCredential(name string, cred Credential)
	AddRouter(name string, r Router)
	DeleteRouter(name string)
}

type Provider struct {
	mu      sync.RWMutex
	cfg     *Configuration
	crypter *crypto.Crypter
	finder  *finder
}

var _ ConfigProvider = (*Provider)(nil)

// NewProvider crypter 为 nil 时遇到 ENC: 密码返回 ErrSealedNoKey
func NewProvider(cfg *Configuration, crypter *crypto.Crypter) *Provider {
	if cfg == nil {
		cfg = Empty()
	}
	cfg.normalize()
	p := &Provider{cfg: cfg, crypter: crypter, finder: newFinder()}
	p.init()
	return p
}

func (p *Provider) init() {
	for _, name := range sortedKeys(p.cfg.Routers) {
		p.index(name)
	}
}

func (p *Provider) index(name string) {
	r := p.cfg.Routers[name]
	p.finder.add(name, r, p.cfg.Credentials[r.Credential].Username)
}

// Find 返回输入对应的 router 名
func (p *Provider) Find(input string) (string, bool) {
	return p.finder.find(input)
}

func (p *Provider) Router(name string) (Router, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	r, ok := p.cfg.Routers[name]
	return r, ok
}

// Resolve 把名称、别名或 user@host:port 解析成可直接连接的 RouterTarget, 密码已解密
func (p *Provider) Resolve(input string) (models.RouterTarget, error) {
	name, ok := p.Find(input)
	if !ok {
		return models.RouterTarget{}, fmt.Errorf("%w: %s", ErrRouterNotFound, input)
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.resolve(name, 0)
}

func (p *Provider) resolve(name string, depth int) (models.RouterTarget, error) {
	r, ok := p.cfg.Routers[name]
	if !ok {
		return models.RouterTarget{}, fmt.Errorf("%w: %s", ErrRouterNotFound, name)
	}
	cred, ok := p.cfg.Credentials[r.Credential]
	if !ok {
		return models.RouterTarget{}, fmt.Errorf("%w: '%s' referenced by router '%s'", ErrCredentialNotFound, r.Credential, name)
	}
	password, err := p.reveal(cred.Password)
	if err != nil {
		return models.RouterTarget{}, fmt.Errorf("credential '%s': %w", r.Credential, err)
	}
	t := models.RouterTarget{
		Hostname: name,
		Address:  r.Address,
		Port:     r.Port,
		Username: cred.Username,
		Password: password,
	}
	if r.Jump != "" {
		if depth >= maxJumpDepth || r.Jump == name {
			return models.RouterTarget{}, fmt.Errorf("%w: %s -> %s", ErrJumpLoop, name, r.Jump)
		}
		jump, err := p.resolve(r.Jump, depth+1)
		if err != nil {
			return models.RouterTarget{}, fmt.Errorf("jump host of '%s': %w", name, err)
		}
		t.Jump = &jump
	}
	return t, nil
}

func (p *Provider) reveal(password string) (string, error) {
	if !crypto.IsEncrypted(password) {
		return password, nil
	}
	if p.crypter == nil {
		return "", ErrSealedNoKey
	}
	return p.crypter.Decrypt(password)
}

// ListRouters 按名称排序
func (p *Provider) ListRouters() []RouterInfo {
	p.mu.RLock()
	defer p.mu.RUnlock()
	infos := make([]RouterInfo, 0, len(p.cfg.Routers))
	for _, name := range sortedKeys(p.cfg.Routers) {
		r := p.cfg.Routers[name]
		port := r.Port
		if port == 0 {
			port = models.DefaultSSHPort
		}
		infos = append(infos, RouterInfo{
			Name:     name,
			Address:  r.Address,
			Port:     port,
			Username: p.cfg.Credentials[r.Credential].Username,
			Alias:    r.Alias,
			Tags:     r.Tags,
			Jump:     r.Jump,
		})
	}
	return infos
}

// ByTag 返回带有 tag 的 router 名, tag 为空时返回全部
func (p *Provider) ByTag(tag string) []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var names []string
	for _, name := range sortedKeys(p.cfg.Routers) {
		if tag == "" || slices.Contains(p.cfg.Routers[name].Tags, tag) {
			names = append(names, name)
		}
	}
	return names
}

// Profile inventory 中的同名 profile 优先于内置 profile
func (p *Provider) Profile(name string) (Profile, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if pr, ok := p.cfg.Profiles[name]; ok {
		return pr, nil
	}
	if pr, ok := builtinProfiles()[name]; ok {
		return pr, nil
	}
	return Profile{}, fmt.Errorf("%w: %s", ErrProfileNotFound, name)
}

func (p *Provider) ProfileNames() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	seen := map[string]Profile{}
	for k, v := range builtinProfiles() {
		seen[k] = v
	}
	for k, v := range p.cfg.Profiles {
		seen[k] = v
	}
	return sortedKeys(seen)
}

func (p *Provider) AddCredential(name string, cred Credential) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cfg.Credentials[name] = cred
}

func (p *Provider) AddRouter(name string, r Router) {
	p.mu.Lock()
	p.cfg.Routers[name] = r
	p.mu.Unlock()
	p.finder.remove(name)
	p.mu.RLock()
	p.index(name)
	p.mu.RUnlock()
}

func (p *Provider) DeleteRouter(name string) {
	p.mu.Lock()
	// 引用的凭据可能被其他 router 共用, 不级联删除
	delete(p.cfg.Routers, name)
	p.mu.Unlock()
	p.finder.remove(name)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
