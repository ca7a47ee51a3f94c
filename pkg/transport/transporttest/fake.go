// Package transporttest 提供内存中的 transport 实现, 用于测试会话管理器和执行器。
package transporttest

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wentf9/routerctl/pkg/models"
	"github.com/wentf9/routerctl/pkg/transport"
)

// ErrDropped 模拟设备掉线时输出流返回的错误
var ErrDropped = errors.New("fake: connection reset")

// Transport 每次 Connect 产生一个新的 Conn, 全部记录下来供断言
type Transport struct {
	// Banner 打开 shell 后立即输出
	Banner string
	// Respond 返回每条命令的输出, 为 nil 时输出 "out:<cmd>\n"
	Respond func(cmd string) string
	// DropAfter > 0 时, 在第 N 条命令的输出之后断开
	DropAfter int

	ConnectErr   error
	ConnectDelay time.Duration
	// ConnectGate 非 nil 时 Connect 忽略 ctx, 一直等到它被关闭
	ConnectGate chan struct{}
	ShellErr    error
	// Exec 为 nil 时返回 "ran:<cmd>\n" 和退出码 0
	Exec func(ctx context.Context, cmd string) (transport.ExecOutput, error)

	mu    sync.Mutex
	conns []*Conn
}

var _ transport.Transport = (*Transport)(nil)

func (t *Transport) Connect(ctx context.Context, target models.RouterTarget, timeout time.Duration) (transport.Conn, error) {
	if t.ConnectGate != nil {
		<-t.ConnectGate
	} else if t.ConnectDelay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(t.ConnectDelay):
		}
	}
	if t.ConnectErr != nil {
		return nil, t.ConnectErr
	}
	c := &Conn{t: t, Target: target}
	t.mu.Lock()
	t.conns = append(t.conns, c)
	t.mu.Unlock()
	return c, nil
}

// Conns 已建立的连接
func (t *Transport) Conns() []*Conn {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*Conn(nil), t.conns...)
}

// Conn 记录 Close 调用次数和写入的命令
type Conn struct {
	t      *Transport
	Target models.RouterTarget
	closes atomic.Int32

	mu      sync.Mutex
	written []string
	shells  int
}

func (c *Conn) OpenShell(ctx context.Context, pty transport.PTY) (transport.Shell, error) {
	if c.t.ShellErr != nil {
		return nil, c.t.ShellErr
	}
	c.mu.Lock()
	c.shells++
	c.mu.Unlock()
	return newShell(c), nil
}

func (c *Conn) Exec(ctx context.Context, cmd string) (transport.ExecOutput, error) {
	if c.t.Exec != nil {
		return c.t.Exec(ctx, cmd)
	}
	return transport.ExecOutput{Stdout: []byte("ran:" + cmd + "\n")}, nil
}

func (c *Conn) Close() error {
	c.closes.Add(1)
	return nil
}

// CloseCount Close 被调用的次数
func (c *Conn) CloseCount() int {
	return int(c.closes.Load())
}

// Written shell 中写入的完整命令行, 按顺序
func (c *Conn) Written() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.written...)
}

// Shells OpenShell 成功的次数
func (c *Conn) Shells() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.shells
}

type shell struct {
	c  *Conn
	pr *io.PipeReader
	pw *io.PipeWriter

	mu      sync.Mutex
	partial string
	lines   chan string
	closed  bool
}

func newShell(c *Conn) *shell {
	pr, pw := io.Pipe()
	s := &shell{c: c, pr: pr, pw: pw, lines: make(chan string, 256)}
	go s.respond()
	return s
}

func (s *shell) respond() {
	if s.c.t.Banner != "" {
		if _, err := io.WriteString(s.pw, s.c.t.Banner); err != nil {
			return
		}
	}
	n := 0
	for line := range s.lines {
		if line == "exit" {
			s.pw.Close()
			return
		}
		out := "out:" + line + "\n"
		if s.c.t.Respond != nil {
			out = s.c.t.Respond(line)
		}
		if out != "" {
			if _, err := io.WriteString(s.pw, out); err != nil {
				return
			}
		}
		n++
		if s.c.t.DropAfter > 0 && n >= s.c.t.DropAfter {
			s.pw.CloseWithError(ErrDropped)
			return
		}
	}
	s.pw.Close()
}

func (s *shell) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, io.ErrClosedPipe
	}
	s.partial += string(p)
	for {
		i := strings.IndexByte(s.partial, '\n')
		if i < 0 {
			break
		}
		line := s.partial[:i]
		s.partial = s.partial[i+1:]
		s.c.mu.Lock()
		s.c.written = append(s.c.written, line)
		s.c.mu.Unlock()
		s.lines <- line
	}
	return len(p), nil
}

func (s *shell) Output() io.Reader {
	return s.pr
}

func (s *shell) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.lines)
	}
	return nil
}
