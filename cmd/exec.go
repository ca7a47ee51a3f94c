package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/wentf9/routerctl/pkg/transport"
)

type ExecOptions struct {
	Router  string
	Command string
	Timeout time.Duration
	JSON    bool
}

func NewCmdExec() *cobra.Command {
	o := &ExecOptions{}
	cmd := &cobra.Command{
		Use:   "exec [flags] <router> <command...>",
		Short: "在非交互通道中执行单条命令并返回退出码",
		Long: `在独立的 exec 通道中执行一条命令, 分别输出 stdout 和 stderr。
远端非零退出码会作为 routerctl 的退出码返回。
用法示例:
routerctl exec r1 show clock
routerctl exec admin@10.0.0.1 "show version" --timeout 10s`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			o.Complete(cmd, args)
			if err := o.Validate(); err != nil {
				return err
			}
			return o.Run(cmd)
		},
	}

	cmd.Flags().DurationVarP(&o.Timeout, "timeout", "t", 0, "连接加执行的总超时, 默认使用 --exec-timeout")
	cmd.Flags().BoolVar(&o.JSON, "json", false, "以 JSON 输出结果")
	return cmd
}

func (o *ExecOptions) Complete(cmd *cobra.Command, args []string) {
	o.Router = args[0]
	o.Command = strings.Join(args[1:], " ")
}

func (o *ExecOptions) Validate() error {
	if strings.TrimSpace(o.Command) == "" {
		return fmt.Errorf("必须指定要执行的命令")
	}
	return nil
}

func (o *ExecOptions) Run(cmd *cobra.Command) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	target, err := a.resolveTarget(o.Router)
	if err != nil {
		return err
	}
	timeout := o.Timeout
	if timeout <= 0 {
		timeout = a.settings.ExecTimeout
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	started := time.Now()
	res, err := a.exec.Run(ctx, target, o.Command, timeout)
	resp := transport.ExecResponse(res, err, time.Since(started))

	if o.JSON {
		if perr := printJSON(cmd.OutOrStdout(), resp); perr != nil {
			return perr
		}
	} else {
		if resp.Output != "" {
			fmt.Fprint(cmd.OutOrStdout(), resp.Output)
		}
		if resp.Stderr != "" {
			fmt.Fprintln(cmd.ErrOrStderr(), strings.TrimRight(resp.Stderr, "\n"))
		}
	}

	var te *transport.Error
	if errors.As(err, &te) && te.Kind == transport.KindRemoteCommand {
		return &exitCodeError{code: te.ExitCode, err: err}
	}
	return err
}

func init() {
	rootCmd.AddCommand(NewCmdExec())
}
