// Package transport 定义会话管理器和命令执行器对底层 SSH 能力的要求,
// 以及两者共用的错误分类和生命周期状态机。
package transport

import (
	"context"
	"io"
	"time"

	"github.com/wentf9/routerctl/pkg/models"
)

// Transport 建立到设备的认证连接
type Transport interface {
	// Connect 在 timeout 内完成拨号和认证, 失败时不得留下打开的 socket
	Connect(ctx context.Context, target models.RouterTarget, timeout time.Duration) (Conn, error)
}

// Conn 一条已认证的连接, 只属于创建它的那次调用
type Conn interface {
	// OpenShell 请求 PTY 并启动交互式 shell
	OpenShell(ctx context.Context, pty PTY) (Shell, error)
	// Exec 执行一条非交互命令; 非零退出码通过 ExecOutput.ExitCode 返回而不是 error
	Exec(ctx context.Context, command string) (ExecOutput, error)
	// Close 幂等
	Close() error
}

// Shell 交互式通道: 写入命令, 从 Output 读取设备的全部输出 (stdout+stderr)
type Shell interface {
	io.Writer
	Output() io.Reader
	Close() error
}

// ExecOutput 一次性命令的输出
type ExecOutput struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
}

// PTY 伪终端参数
type PTY struct {
	Term   string
	Width  int
	Height int
	Echo   bool
}

// DefaultPTY 路由器 CLI 对 vt100 的兼容性最好, 宽度足够避免路由表折行
func DefaultPTY() PTY {
	return PTY{Term: "vt100", Width: 200, Height: 40, Echo: true}
}
