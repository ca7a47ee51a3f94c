// Package executor 通过一次性 exec 通道执行单条命令并等待退出码。
package executor

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/wentf9/routerctl/pkg/logger"
	"github.com/wentf9/routerctl/pkg/models"
	"github.com/wentf9/routerctl/pkg/transport"
)

// DefaultTimeout 未指定超时时使用, 包含建立连接的时间
const DefaultTimeout = 30 * time.Second

// Executor 命令执行器, 每次 Run 使用独立的连接
type Executor struct {
	transport transport.Transport
	log       *slog.Logger
	now       func() time.Time
}

// New 创建执行器, log 为 nil 时使用全局 logger
func New(t transport.Transport, log *slog.Logger) *Executor {
	return &Executor{transport: t, log: logger.Or(log), now: time.Now}
}

type connResult struct {
	conn transport.Conn
	err  error
}

type execResult struct {
	out transport.ExecOutput
	err error
}

// Run 连接 target 执行 command。timeout 是整个调用的硬上限, 到期时强制关闭连接。
func (e *Executor) Run(ctx context.Context, target models.RouterTarget, command string, timeout time.Duration) (*models.ExecResult, error) {
	name := target.Name()
	log := e.log.With("router", name, "addr", target.Addr())
	lc := transport.NewLifecycle(log)

	if err := target.Validate(); err != nil {
		lc.Fail()
		return nil, transport.Errorf(transport.KindInvalid, "validate", name, err)
	}
	if strings.TrimSpace(command) == "" {
		lc.Fail()
		return nil, transport.Errorf(transport.KindInvalid, "validate", name, errors.New("command is empty"))
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	started := e.now()

	_ = lc.To(transport.StateConnecting)
	connCh := make(chan connResult, 1)
	go func() {
		c, err := e.transport.Connect(ctx, target, timeout)
		connCh <- connResult{conn: c, err: err}
	}()

	var conn transport.Conn
	select {
	case <-ctx.Done():
		lc.Fail()
		// 连接可能在超时之后才建立, 由后台协程负责关闭
		go func() {
			if r := <-connCh; r.conn != nil {
				_ = r.conn.Close()
			}
		}()
		return nil, transport.FromContext(ctx, "connect", name)
	case r := <-connCh:
		if r.err != nil {
			lc.Fail()
			if ctx.Err() != nil {
				return nil, transport.FromContext(ctx, "connect", name)
			}
			var te *transport.Error
			if errors.As(r.err, &te) {
				return nil, te
			}
			return nil, transport.Errorf(transport.KindConnection, "connect", name, r.err)
		}
		conn = r.conn
	}
	release := sync.OnceValue(conn.Close)
	defer release()
	_ = lc.To(transport.StateConnected)
	_ = lc.To(transport.StateExecuting)

	log.Debug("exec", "command", command, "timeout", timeout)
	execCh := make(chan execResult, 1)
	go func() {
		out, err := conn.Exec(ctx, command)
		execCh <- execResult{out: out, err: err}
	}()

	var r execResult
	select {
	case <-ctx.Done():
		lc.Fail()
		// 强制断开, 让远端命令随连接一起结束
		_ = release()
		log.Warn("command timed out", "command", command, "timeout", timeout)
		return nil, transport.FromContext(ctx, "exec", name)
	case r = <-execCh:
	}
	if r.err != nil {
		lc.Fail()
		if ctx.Err() != nil {
			return nil, transport.FromContext(ctx, "exec", name)
		}
		var te *transport.Error
		if errors.As(r.err, &te) {
			return nil, te
		}
		return nil, transport.Errorf(transport.KindChannel, "exec", name, r.err)
	}

	_ = lc.To(transport.StateClosing)
	res := &models.ExecResult{
		Target:   name,
		Command:  command,
		Stdout:   string(r.out.Stdout),
		Stderr:   string(r.out.Stderr),
		ExitCode: r.out.ExitCode,
		Elapsed:  e.now().Sub(started),
	}
	if err := release(); err != nil {
		log.Debug("close connection", "error", err)
	}
	_ = lc.To(transport.StateClosed)

	if res.ExitCode != 0 {
		log.Info("command exited non-zero", "command", command, "exit_code", res.ExitCode)
		return res, &transport.Error{
			Kind:     transport.KindRemoteCommand,
			Op:       "exec",
			Target:   name,
			ExitCode: res.ExitCode,
			Stderr:   strings.TrimSpace(res.Stderr),
		}
	}
	log.Info("command finished", "command", command, "bytes", len(res.Stdout), "elapsed", res.Elapsed)
	return res, nil
}
