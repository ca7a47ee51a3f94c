package ssh

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"
	"time"

	"github.com/wentf9/routerctl/pkg/logger"
	"github.com/wentf9/routerctl/pkg/models"
	"github.com/wentf9/routerctl/pkg/transport"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// DefaultKeepAlive 与原有 Web 后端使用的 10 秒心跳一致
const DefaultKeepAlive = 10 * time.Second

// Options 连接参数
type Options struct {
	// KeepAlive <= 0 时不发送心跳
	KeepAlive time.Duration
	// LegacyAlgorithms 为老旧固件额外提供 CBC 加密和 SHA-1 密钥交换
	LegacyAlgorithms bool
	// KnownHostsPath 非空时校验主机密钥, 否则接受任意主机密钥
	KnownHostsPath string
	Logger         *slog.Logger
}

// Connector 负责创建 SSH 连接, 实现 transport.Transport。
// 不缓存连接: 每次 Connect 都得到一条新的、只属于调用方的连接。
type Connector struct {
	opts Options
	log  *slog.Logger
}

// NewConnector 创建一个新的 Connector
func NewConnector(opts Options) *Connector {
	return &Connector{opts: opts, log: logger.Or(opts.Logger)}
}

var _ transport.Transport = (*Connector)(nil)

// Connect 建立到 target 的认证连接。
// 如果配置了跳板机，会先连接跳板机再经其隧道连接目标。
func (c *Connector) Connect(ctx context.Context, target models.RouterTarget, timeout time.Duration) (transport.Conn, error) {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	raw, jump, err := c.dial(ctx, target, timeout)
	if err != nil {
		return nil, transport.Errorf(transport.KindConnection, "connect", target.Name(), err)
	}
	client := newClient(raw, jump, target, c.log)
	if c.opts.KeepAlive > 0 {
		StartKeepAlive(raw, c.opts.KeepAlive, client.stop, func(err error) {
			c.log.Warn("keepalive failed, connection closed", "router", target.Name(), "error", err)
		})
	}
	return client, nil
}

// dial 返回目标连接以及 (可选的) 跳板机连接
func (c *Connector) dial(ctx context.Context, target models.RouterTarget, timeout time.Duration) (*ssh.Client, *ssh.Client, error) {
	var dialer Dialer = &net.Dialer{Timeout: timeout}
	var jump *ssh.Client

	if target.Jump != nil {
		j, jj, err := c.dial(ctx, *target.Jump, timeout)
		if err != nil {
			return nil, nil, fmt.Errorf("%w '%s': %w", ErrJumpHost, target.Jump.Name(), err)
		}
		if jj != nil {
			// 只支持一层跳板
			jj.Close()
			j.Close()
			return nil, nil, fmt.Errorf("%w '%s': nested jump hosts are not supported", ErrJumpHost, target.Jump.Name())
		}
		jump = j
		dialer = &SSHProxyDialer{Client: j}
	}

	cfg, err := c.clientConfig(target, timeout)
	if err != nil {
		closeQuietly(jump)
		return nil, nil, err
	}

	addr := target.Addr()
	c.log.Debug("dialing", "router", target.Name(), "addr", addr, "via_jump", jump != nil)
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		closeQuietly(jump)
		return nil, nil, fmt.Errorf("%w %s: %w", ErrDial, addr, err)
	}

	// 握手不感知 ctx: 用连接 deadline 限制时长, ctx 取消时直接关闭底层连接
	_ = conn.SetDeadline(time.Now().Add(timeout))
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	ncc, chans, reqs, err := ssh.NewClientConn(conn, addr, cfg)
	stop()
	if err != nil {
		conn.Close()
		closeQuietly(jump)
		if ctx.Err() != nil {
			return nil, nil, fmt.Errorf("%w %s: %w", ErrHandshake, addr, ctx.Err())
		}
		if strings.Contains(err.Error(), "unable to authenticate") {
			return nil, nil, fmt.Errorf("%w for %s@%s: %w", ErrAuthFailed, target.Username, addr, err)
		}
		return nil, nil, fmt.Errorf("%w %s: %w", ErrHandshake, addr, err)
	}
	_ = conn.SetDeadline(time.Time{})
	return ssh.NewClient(ncc, chans, reqs), jump, nil
}

// clientConfig 构建 ssh.ClientConfig: 密码认证, 以及用同一密码回答 keyboard-interactive
func (c *Connector) clientConfig(target models.RouterTarget, timeout time.Duration) (*ssh.ClientConfig, error) {
	password := target.Password
	auth := []ssh.AuthMethod{
		ssh.Password(password),
		ssh.KeyboardInteractive(func(name, instruction string, questions []string, echos []bool) ([]string, error) {
			answers := make([]string, len(questions))
			for i := range questions {
				answers[i] = password
			}
			return answers, nil
		}),
	}

	hostKeyCallback := ssh.InsecureIgnoreHostKey()
	if c.opts.KnownHostsPath != "" {
		if _, err := os.Stat(c.opts.KnownHostsPath); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrKnownHosts, err)
		}
		cb, err := knownhosts.New(c.opts.KnownHostsPath)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrKnownHosts, err)
		}
		hostKeyCallback = cb
	}

	cfg := &ssh.ClientConfig{
		User:            target.Username,
		Auth:            auth,
		HostKeyCallback: hostKeyCallback,
		Timeout:         timeout,
		BannerCallback: func(message string) error {
			c.log.Debug("banner", "router", target.Name(), "bytes", len(message))
			return nil
		},
	}
	if c.opts.LegacyAlgorithms {
		applyLegacyAlgorithms(cfg)
	}
	return cfg, nil
}

// applyLegacyAlgorithms 在默认算法之后追加不安全但老设备仍在使用的算法
func applyLegacyAlgorithms(cfg *ssh.ClientConfig) {
	supported := ssh.SupportedAlgorithms()
	insecure := ssh.InsecureAlgorithms()
	cfg.Ciphers = append(append([]string{}, supported.Ciphers...), insecure.Ciphers...)
	cfg.KeyExchanges = append(append([]string{}, supported.KeyExchanges...), insecure.KeyExchanges...)
	cfg.MACs = append(append([]string{}, supported.MACs...), insecure.MACs...)
	cfg.HostKeyAlgorithms = append(append([]string{}, supported.HostKeys...), insecure.HostKeys...)
}

func closeQuietly(c *ssh.Client) {
	if c != nil {
		c.Close()
	}
}

// IsAuthError 判断是否为认证失败
func IsAuthError(err error) bool {
	return errors.Is(err, ErrAuthFailed)
}
