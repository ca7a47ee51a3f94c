package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/wentf9/routerctl/cmd/version"
	"github.com/wentf9/routerctl/pkg/mcpserver"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "以 MCP 服务器的形式在 stdio 上提供路由器工具",
	Long: `在 stdin/stdout 上运行 MCP 服务器, 提供 list_routers、run_session、run_profile 和 run_command 工具。
日志写到 stderr, 不会干扰协议数据。`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		a.log.Info("mcp server starting", "routers", len(a.cfg.Routers))
		return mcpserver.Run(ctx, mcpserver.New(a.svc, version.Version, a.log))
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
