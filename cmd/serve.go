package cmd

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/wentf9/routerctl/pkg/api"
)

func NewCmdServe() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve [flags]",
		Short: "启动 HTTP API 服务",
		Long: `启动 HTTP API, 接口与 CLI 共用同一套会话管理器和执行器:
  GET  /health
  GET  /api/routers
  GET  /api/profiles
  POST /api/session
  POST /api/routers/{name}/profiles/{profile}
  POST /api/command
  GET  /api/routers/{name}/probe

收到 SIGINT/SIGTERM 后停止接收新请求, 正在执行的会话最多等待 10 秒。`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			ln, err := net.Listen("tcp", a.settings.Listen)
			if err != nil {
				return fmt.Errorf("监听 %s 失败: %w", a.settings.Listen, err)
			}
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return api.Serve(ctx, ln, api.Router(a.svc, a.log), a.log)
		},
	}
	cmd.Flags().String("listen", "127.0.0.1:8080", "监听地址")
	_ = viper.BindPFlag("listen", cmd.Flags().Lookup("listen"))
	return cmd
}

func init() {
	rootCmd.AddCommand(NewCmdServe())
}
