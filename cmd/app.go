package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/wentf9/routerctl/cmd/utils"
	"github.com/wentf9/routerctl/pkg/config"
	"github.com/wentf9/routerctl/pkg/crypto"
	"github.com/wentf9/routerctl/pkg/executor"
	"github.com/wentf9/routerctl/pkg/logger"
	"github.com/wentf9/routerctl/pkg/models"
	"github.com/wentf9/routerctl/pkg/probe"
	"github.com/wentf9/routerctl/pkg/service"
	"github.com/wentf9/routerctl/pkg/session"
	"github.com/wentf9/routerctl/pkg/ssh"
)

// app 一次命令执行用到的全部组件
type app struct {
	settings settings
	store    config.Store
	cfg      *config.Configuration
	provider *config.Provider
	sessions *session.Manager
	exec     *executor.Executor
	prober   *probe.Prober
	svc      *service.Service
	log      *slog.Logger
}

// newApp 按当前 settings 组装组件, probeOpts 用于调整探测参数
func newApp(probeOpts ...func(*probe.Options)) (*app, error) {
	s := loadSettings()
	a := &app{settings: s, log: logger.Logger}

	a.store = config.NewDefaultStore(s.Inventory)
	cfg, err := a.store.Load()
	if err != nil {
		return nil, fmt.Errorf("加载 inventory 失败: %w", err)
	}
	a.cfg = cfg

	crypter, err := loadCrypter(s.KeyFile)
	if err != nil {
		return nil, err
	}
	a.provider = config.NewProvider(cfg, crypter)

	connector := ssh.NewConnector(ssh.Options{
		KeepAlive:        s.KeepAlive,
		LegacyAlgorithms: s.LegacyAlgorithms,
		KnownHostsPath:   s.KnownHosts,
		Logger:           a.log,
	})
	a.sessions = session.NewManager(connector, session.Options{
		ConnectTimeout: s.ConnectTimeout,
		IdleGap:        s.IdleGap,
		Logger:         a.log,
	})
	a.exec = executor.New(connector, a.log)

	po := probe.Options{Logger: a.log}
	for _, fn := range probeOpts {
		fn(&po)
	}
	a.prober = probe.New(po)

	a.svc = service.New(a.provider, a.sessions, a.exec, a.prober, service.Options{
		Quiescence:  s.Quiescence,
		ExecTimeout: s.ExecTimeout,
		Logger:      a.log,
	})
	return a, nil
}

// loadCrypter 密钥文件不存在时返回 nil, 此时 inventory 中的密文无法解密
func loadCrypter(path string) (*crypto.Crypter, error) {
	if path == "" {
		return nil, nil
	}
	key, err := crypto.LoadKey(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return crypto.NewCrypter(key)
}

// resolveTarget 先查 inventory, 找不到时把 input 当作 [user@]host[:port]
func (a *app) resolveTarget(input string) (models.RouterTarget, error) {
	t, err := a.provider.Resolve(input)
	if err == nil {
		return t, nil
	}
	if !errors.Is(err, config.ErrRouterNotFound) {
		return models.RouterTarget{}, err
	}

	user, host, port := utils.ParseAddr(input)
	if host == "" {
		return models.RouterTarget{}, err
	}
	if user == "" {
		user = utils.GetCurrentUser()
	}
	password := a.settings.Password
	if password == "" {
		if !utils.IsTerminal(os.Stdin) {
			return models.RouterTarget{}, fmt.Errorf("%s 不在 inventory 中, 请通过 --password 或 ROUTERCTL_PASSWORD 提供密码", input)
		}
		password, err = utils.ReadPasswordFromTerminal(fmt.Sprintf("%s@%s 的密码: ", user, host))
		if err != nil {
			return models.RouterTarget{}, err
		}
	}
	return models.RouterTarget{
		Hostname: host,
		Address:  host,
		Port:     port,
		Username: user,
		Password: password,
	}, nil
}
