package executor

import (
	"context"
	"time"

	"github.com/wentf9/routerctl/pkg/models"
)

// Runner 非交互命令执行, API 与 MCP 层通过它调用执行器
type Runner interface {
	// Run 在 timeout 内完成连接和执行, 非零退出码返回 RemoteCommandError
	Run(ctx context.Context, target models.RouterTarget, command string, timeout time.Duration) (*models.ExecResult, error)
}

var _ Runner = (*Executor)(nil)
