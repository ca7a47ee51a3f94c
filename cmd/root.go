/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/wentf9/routerctl/cmd/version"
	"github.com/wentf9/routerctl/pkg/logger"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "routerctl [command] [flags]",
	Short: "routerctl 通过 SSH 在路由器上执行 CLI 命令并收集输出",
	Long: `routerctl 通过 SSH 登录路由器, 在交互式 shell 中按顺序发送命令并收集完整输出,
或在非交互通道中执行单条命令并返回退出码。
设备信息保存在 inventory 中, 也可以通过 HTTP API 或 MCP 工具调用。`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		versionFlag, _ := cmd.Flags().GetBool("version")
		if versionFlag {
			version.PrintFullVersion(cmd.OutOrStdout())
			return nil
		}
		return cmd.Help()
	},
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := loadEnvFile(viper.GetString("env-file")); err != nil {
			return err
		}
		level := viper.GetString("log-level")
		if viper.GetBool("debug") {
			level = "debug"
		}
		if !logger.SetLogLevel(level) {
			return fmt.Errorf("未知的日志级别: %s", level)
		}
		return nil
	},
}

// exitCodeError 让 exec 把远端退出码作为进程退出码
type exitCodeError struct {
	code int
	err  error
}

func (e *exitCodeError) Error() string { return e.err.Error() }
func (e *exitCodeError) Unwrap() error { return e.err }

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err == nil {
		return
	}
	var ec *exitCodeError
	if errors.As(err, &ec) {
		os.Exit(processExitCode(ec.code))
	}
	os.Exit(1)
}

// processExitCode 进程退出码只有 0-255, 超出范围的远端退出码统一按 1 处理
func processExitCode(code int) int {
	if code <= 0 || code > 255 {
		return 1
	}
	return code
}

func init() {
	bindPersistentFlags(rootCmd)
	rootCmd.Flags().BoolP("version", "v", false, "显示版本信息")
}
