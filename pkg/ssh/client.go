package ssh

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/melbahja/goph"
	"github.com/wentf9/routerctl/pkg/models"
	"github.com/wentf9/routerctl/pkg/transport"
	"golang.org/x/crypto/ssh"
)

// Client 一条已认证的 SSH 连接, 实现 transport.Conn
type Client struct {
	sshClient *ssh.Client
	jump      *ssh.Client
	target    models.RouterTarget
	log       *slog.Logger

	stop      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

func newClient(raw, jump *ssh.Client, target models.RouterTarget, log *slog.Logger) *Client {
	return &Client{
		sshClient: raw,
		jump:      jump,
		target:    target,
		log:       log,
		stop:      make(chan struct{}),
	}
}

var _ transport.Conn = (*Client)(nil)

// Close 关闭连接, 有跳板机时一起关闭; 多次调用只生效一次
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		close(c.stop)
		c.closeErr = c.sshClient.Close()
		if c.jump != nil {
			if err := c.jump.Close(); err != nil && c.closeErr == nil {
				c.closeErr = err
			}
		}
		c.log.Debug("connection closed", "router", c.target.Name())
	})
	return c.closeErr
}

// SSHClient 暴露底层的 ssh.Client
func (c *Client) SSHClient() *ssh.Client {
	return c.sshClient
}

// Target 返回当前连接对应的设备
func (c *Client) Target() models.RouterTarget {
	return c.target
}

// Exec 在独立的 exec 通道中原样执行 command, stdout 和 stderr 分开收集。
// 非零退出码放在 ExecOutput.ExitCode 中, 只有通道级别的失败才返回 error。
// ctx 结束时关闭 exec 通道, 不额外留下等待协程。
func (c *Client) Exec(ctx context.Context, command string) (transport.ExecOutput, error) {
	if err := ctx.Err(); err != nil {
		return transport.ExecOutput{}, err
	}
	gc := &goph.Client{Client: c.sshClient}
	sess, err := gc.NewSession()
	if err != nil {
		return transport.ExecOutput{}, fmt.Errorf("open exec channel: %w", err)
	}
	defer sess.Close()

	var stdout, stderr bytes.Buffer
	sess.Stdout = &stdout
	sess.Stderr = &stderr

	stop := context.AfterFunc(ctx, func() { sess.Close() })
	err = sess.Run(command)
	stop()

	out := transport.ExecOutput{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}
	if err == nil {
		return out, nil
	}
	if ctx.Err() != nil {
		return out, ctx.Err()
	}

	var exitErr *ssh.ExitError
	if errors.As(err, &exitErr) {
		out.ExitCode = exitErr.ExitStatus()
		return out, nil
	}
	var missing *ssh.ExitMissingError
	if errors.As(err, &missing) {
		return out, ErrExitStatusLost
	}
	return out, err
}
