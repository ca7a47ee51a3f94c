// Package session 在一条交互式 shell 上按顺序提交路由器 CLI 命令并收集全部输出。
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/wentf9/routerctl/pkg/logger"
	"github.com/wentf9/routerctl/pkg/models"
	"github.com/wentf9/routerctl/pkg/transport"
)

const (
	DefaultConnectTimeout = 15 * time.Second
	DefaultQuiescence     = 5 * time.Second
	DefaultExitCommand    = "exit"
	defaultDrainTimeout   = 2 * time.Second
)

// Options 会话管理器的可选参数, 零值使用默认值
type Options struct {
	ConnectTimeout time.Duration
	// IdleGap > 0 时, 静默等待在连续 IdleGap 没有新数据后提前结束, quiescence 仍是上限
	IdleGap      time.Duration
	ExitCommand  string
	PTY          transport.PTY
	DrainTimeout time.Duration
	Logger       *slog.Logger
}

// Manager 交互式会话管理器, 可被多个协程同时使用, 每次 Run 之间不共享任何状态
type Manager struct {
	transport transport.Transport
	opts      Options
	log       *slog.Logger
	now       func() time.Time
}

// NewManager 创建会话管理器
func NewManager(t transport.Transport, opts Options) *Manager {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = DefaultConnectTimeout
	}
	if opts.ExitCommand == "" {
		opts.ExitCommand = DefaultExitCommand
	}
	if opts.PTY.Term == "" {
		opts.PTY = transport.DefaultPTY()
	}
	if opts.DrainTimeout <= 0 {
		opts.DrainTimeout = defaultDrainTimeout
	}
	return &Manager{
		transport: t,
		opts:      opts,
		log:       logger.Or(opts.Logger),
		now:       time.Now,
	}
}

// run 一次会话内的可变状态, 不跨调用
type run struct {
	m      *Manager
	target models.RouterTarget
	name   string
	log    *slog.Logger
	lc     *transport.Lifecycle
	acc    *accumulator

	done    chan struct{} // reader 结束后关闭
	readErr error
}

// Run 建立会话, 依次写入 script, 等待 quiescence 后退出并返回完整输出。
// 任何失败都返回 nil 结果, 已收到的部分输出不会返回。
func (m *Manager) Run(ctx context.Context, target models.RouterTarget, script models.CommandScript, quiescence time.Duration) (*models.SessionResult, error) {
	if quiescence <= 0 {
		quiescence = DefaultQuiescence
	}
	r := &run{
		m:      m,
		target: target,
		name:   target.Name(),
		log:    m.log.With("router", target.Name(), "addr", target.Addr()),
		done:   make(chan struct{}),
	}
	r.lc = transport.NewLifecycle(r.log)

	if err := target.Validate(); err != nil {
		r.lc.Fail()
		return nil, transport.Errorf(transport.KindInvalid, "validate", r.name, err)
	}

	started := m.now()
	out, marks, err := r.execute(ctx, script, quiescence)
	if err != nil {
		r.log.Warn("session failed", "kind", transport.KindOf(err), "error", err, "state", r.lc.State().String())
		return nil, err
	}
	res := &models.SessionResult{
		Target:  r.name,
		Output:  out,
		Marks:   marks,
		Bytes:   len(out),
		Started: started,
		Elapsed: m.now().Sub(started),
	}
	r.log.Info("session finished", "commands", len(script), "bytes", res.Bytes, "elapsed", res.Elapsed)
	return res, nil
}

func (r *run) execute(ctx context.Context, script models.CommandScript, quiescence time.Duration) (string, []models.Mark, error) {
	m := r.m
	_ = r.lc.To(transport.StateConnecting)
	conn, err := r.connect(ctx)
	if err != nil {
		r.lc.Fail()
		return "", nil, err
	}
	release := sync.OnceValue(conn.Close)
	defer release()
	_ = r.lc.To(transport.StateConnected)

	shell, err := conn.OpenShell(ctx, m.opts.PTY)
	if err != nil {
		r.lc.Fail()
		if ctx.Err() != nil {
			return "", nil, transport.FromContext(ctx, "shell", r.name)
		}
		return "", nil, wrap(transport.KindChannel, "shell", r.name, err)
	}
	closeShell := sync.OnceValue(shell.Close)
	defer closeShell()
	_ = r.lc.To(transport.StateStreaming)

	// reader 必须在第一条命令写入前启动
	r.acc = newAccumulator(m.now)
	go func() {
		_, r.readErr = io.Copy(r.acc, shell.Output())
		close(r.done)
	}()

	marks := make([]models.Mark, 0, len(script))
	for _, step := range script {
		if err := r.alive("write"); err != nil {
			r.lc.Fail()
			return "", nil, err
		}
		marks = append(marks, models.Mark{Command: step.Command, Offset: r.acc.Len(), Outcome: models.OutcomeUnknown})
		r.log.Debug("submit", "command", step.Command)
		if _, err := io.WriteString(shell, step.Command+"\n"); err != nil {
			r.lc.Fail()
			return "", nil, wrap(transport.KindConnection, "write", r.name, err)
		}
		r.acc.touch()
		if step.Settle > 0 {
			if err := r.wait(ctx, step.Settle, 0, "settle"); err != nil {
				r.lc.Fail()
				return "", nil, err
			}
		}
	}

	// 静默等待开始后不再写入脚本中的命令
	if err := r.wait(ctx, quiescence, m.opts.IdleGap, "quiesce"); err != nil {
		r.lc.Fail()
		return "", nil, err
	}

	_ = r.lc.To(transport.StateClosing)
	if _, err := io.WriteString(shell, m.opts.ExitCommand+"\n"); err != nil {
		r.log.Debug("exit command not delivered", "error", err)
	}
	if err := closeShell(); err != nil && !isClosedErr(err) {
		r.log.Debug("close shell", "error", err)
	}
	if err := release(); err != nil && !isClosedErr(err) {
		r.log.Debug("close connection", "error", err)
	}

	select {
	case <-r.done:
	case <-time.After(m.opts.DrainTimeout):
		r.log.Debug("reader still running after close")
	}
	_ = r.lc.To(transport.StateClosed)
	return r.acc.String(), marks, nil
}

func (r *run) connect(ctx context.Context) (transport.Conn, error) {
	timeout := r.m.opts.ConnectTimeout
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	r.log.Debug("connecting", "timeout", timeout)
	conn, err := r.m.transport.Connect(cctx, r.target, timeout)
	if err != nil {
		if ctx.Err() != nil {
			return nil, transport.FromContext(ctx, "connect", r.name)
		}
		// 连接超时属于 "设备不可达", 不是输出等待超时
		return nil, wrap(transport.KindConnection, "connect", r.name, err)
	}
	return conn, nil
}

// alive reader 已结束说明会话在我们退出前断开
func (r *run) alive(op string) error {
	select {
	case <-r.done:
		return r.dropped(op)
	default:
		return nil
	}
}

func (r *run) dropped(op string) error {
	err := transport.ErrSessionDropped
	if r.readErr != nil {
		err = fmt.Errorf("%w: %w", transport.ErrSessionDropped, r.readErr)
	}
	return transport.Errorf(transport.KindConnection, op, r.name, err)
}

// wait 等待 d, idleGap > 0 时在连续 idleGap 无数据后提前返回
func (r *run) wait(ctx context.Context, d, idleGap time.Duration, op string) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	var tick <-chan time.Time
	if idleGap > 0 {
		interval := idleGap / 4
		if interval < 10*time.Millisecond {
			interval = 10 * time.Millisecond
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return transport.FromContext(ctx, op, r.name)
		case <-r.done:
			return r.dropped(op)
		case <-timer.C:
			return nil
		case <-tick:
			if r.acc.idle() >= idleGap {
				r.log.Debug("idle gap reached", "idle_gap", idleGap, "bytes", r.acc.Len())
				return nil
			}
		}
	}
}

func wrap(kind transport.Kind, op, target string, err error) error {
	var te *transport.Error
	if errors.As(err, &te) {
		return te
	}
	return transport.Errorf(kind, op, target, err)
}

func isClosedErr(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe)
}
