package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
	"github.com/wentf9/routerctl/pkg/models"
	"github.com/wentf9/routerctl/pkg/transport"
)

type SessionOptions struct {
	Router     string
	Commands   []string
	Profile    string
	Interfaces []string
	Quiescence time.Duration
	JSON       bool
	Segments   bool
}

func NewCmdSession() *cobra.Command {
	o := &SessionOptions{}
	cmd := &cobra.Command{
		Use:   "session [flags] <router>",
		Short: "在交互式 shell 中依次执行命令并输出完整结果",
		Long: `登录路由器并打开带 PTY 的交互式 shell, 按顺序写入命令,
最后一条命令之后等待 quiescence 再退出, 输出整个会话收到的全部文本。
用法示例:
routerctl session r1 -c "show ip ospf neighbor" -c "show ip bgp summary"
routerctl session r1 --profile tejas-monitor
routerctl session r1 --profile tejas-sfp --interface 1/5/11
routerctl session admin@10.0.0.1:22 -c "show version" --json

router 可以是 inventory 中的名称、别名, 也可以是 [user@]host[:port]。`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			o.Complete(cmd, args)
			if err := o.Validate(); err != nil {
				return err
			}
			return o.Run(cmd)
		},
	}

	cmd.Flags().StringArrayVarP(&o.Commands, "cmd", "c", nil, "要执行的命令, 可重复指定, 按顺序发送")
	cmd.Flags().StringVar(&o.Profile, "profile", "", "使用预定义的命令组")
	cmd.Flags().StringArrayVar(&o.Interfaces, "interface", nil, "替换 profile 中 {interface} 的接口, 可重复指定")
	cmd.Flags().DurationVarP(&o.Quiescence, "wait", "w", 0, "本次会话的 quiescence, 覆盖全局设置和 profile")
	cmd.Flags().BoolVar(&o.JSON, "json", false, "以 JSON 输出结果")
	cmd.Flags().BoolVar(&o.Segments, "segments", false, "按命令拆分输出")

	cmd.MarkFlagsMutuallyExclusive("cmd", "profile")
	cmd.MarkFlagsMutuallyExclusive("json", "segments")
	return cmd
}

func (o *SessionOptions) Complete(cmd *cobra.Command, args []string) {
	o.Router = args[0]
}

func (o *SessionOptions) Validate() error {
	if len(o.Commands) == 0 && o.Profile == "" {
		return fmt.Errorf("必须通过 -c 指定命令或通过 --profile 指定命令组")
	}
	if len(o.Interfaces) > 0 && o.Profile == "" {
		return fmt.Errorf("--interface 只能与 --profile 一起使用")
	}
	return nil
}

func (o *SessionOptions) Run(cmd *cobra.Command) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	target, err := a.resolveTarget(o.Router)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	script := models.Script(o.Commands...)
	quiescence := o.Quiescence
	if o.Profile != "" {
		var profileQuiescence time.Duration
		script, profileQuiescence, err = a.svc.ProfileScript(o.Profile, o.Interfaces, quiescence.Milliseconds())
		if err != nil {
			return err
		}
		quiescence = profileQuiescence
	}
	if quiescence <= 0 {
		quiescence = a.settings.Quiescence
	}

	started := time.Now()
	res, err := a.sessions.Run(ctx, target, script, quiescence)
	resp := transport.SessionResponse(res, err, time.Since(started))

	out := cmd.OutOrStdout()
	switch {
	case o.JSON:
		if perr := printJSON(out, resp); perr != nil {
			return perr
		}
	case err != nil:
	case o.Segments:
		printSegments(out, resp)
	default:
		fmt.Fprint(out, resp.Output)
	}
	return err
}

func init() {
	rootCmd.AddCommand(NewCmdSession())
}
