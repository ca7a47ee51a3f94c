package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/wentf9/routerctl/cmd/utils"
	"github.com/wentf9/routerctl/pkg/models"
	"github.com/wentf9/routerctl/pkg/runner"
	"github.com/wentf9/routerctl/pkg/transport"
	"github.com/wentf9/routerctl/pkg/utils/file"
)

type BatchOptions struct {
	Hosts      []string
	Tag        string
	CSVFile    string
	Commands   []string
	Profile    string
	Interfaces []string
	Exec       string
	Quiescence time.Duration
	TaskCount  uint
	OutDir     string
	JSON       bool
}

func NewCmdBatch() *cobra.Command {
	o := &BatchOptions{}
	cmd := &cobra.Command{
		Use:   "batch [flags] [router...]",
		Short: "在多台路由器上并发执行同一组命令",
		Long: `在多台路由器上并发执行同一组命令, 每台设备使用独立的会话。
单台设备失败不影响其他设备, 结束后输出汇总。
用法示例:
routerctl batch -t core --profile tejas-monitor
routerctl batch -H r1,r2,r3 -c "show ip bgp summary" --out ./collect
routerctl batch --csv routers.csv --exec "show clock" --task 10

CSV 格式: address,username,password[,port[,hostname]]`,
		RunE: func(cmd *cobra.Command, args []string) error {
			o.Complete(cmd, args)
			if err := o.Validate(); err != nil {
				return err
			}
			return o.Run(cmd)
		},
	}

	cmd.Flags().StringSliceVarP(&o.Hosts, "host", "H", nil, "目标设备, 多个设备用逗号分隔")
	cmd.Flags().StringVarP(&o.Tag, "tag", "t", "", "按标签选择 inventory 中的设备")
	cmd.Flags().StringVar(&o.CSVFile, "csv", "", "CSV 格式设备列表")
	cmd.Flags().StringArrayVarP(&o.Commands, "cmd", "c", nil, "交互式会话中执行的命令, 可重复指定")
	cmd.Flags().StringVar(&o.Profile, "profile", "", "使用预定义的命令组")
	cmd.Flags().StringArrayVar(&o.Interfaces, "interface", nil, "替换 profile 中 {interface} 的接口")
	cmd.Flags().StringVar(&o.Exec, "exec", "", "改为在 exec 通道中执行这条命令")
	cmd.Flags().DurationVarP(&o.Quiescence, "wait", "w", 0, "会话的 quiescence, 覆盖全局设置和 profile")
	cmd.Flags().UintVar(&o.TaskCount, "task", 0, "同时执行的设备数, 默认使用 --concurrency")
	cmd.Flags().StringVarP(&o.OutDir, "out", "o", "", "每台设备的输出写入该目录下的 <router>.txt")
	cmd.Flags().BoolVar(&o.JSON, "json", false, "以 JSON 输出全部结果")

	cmd.MarkFlagsMutuallyExclusive("host", "tag", "csv")
	cmd.MarkFlagsMutuallyExclusive("cmd", "profile", "exec")
	return cmd
}

func (o *BatchOptions) Complete(cmd *cobra.Command, args []string) {
	o.Hosts = append(o.Hosts, args...)
}

func (o *BatchOptions) Validate() error {
	if len(o.Hosts) == 0 && o.Tag == "" && o.CSVFile == "" {
		return fmt.Errorf("必须通过 -H、--tag 或 --csv 指定目标设备")
	}
	if len(o.Commands) == 0 && o.Profile == "" && strings.TrimSpace(o.Exec) == "" {
		return fmt.Errorf("必须通过 -c、--profile 或 --exec 指定要执行的内容")
	}
	return nil
}

// batchEntry 单台设备的结果, 用于汇总和 JSON 输出
type batchEntry struct {
	Router string             `json:"router"`
	Result transport.Response `json:"result"`
}

func (o *BatchOptions) Run(cmd *cobra.Command) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	names, targets, err := o.targets(a)
	if err != nil {
		return err
	}
	if len(names) == 0 {
		return fmt.Errorf("没有匹配的设备")
	}

	script := models.Script(o.Commands...)
	quiescence := o.Quiescence
	if o.Profile != "" {
		script, quiescence, err = a.svc.ProfileScript(o.Profile, o.Interfaces, o.Quiescence.Milliseconds())
		if err != nil {
			return err
		}
	}
	if quiescence <= 0 {
		quiescence = a.settings.Quiescence
	}
	concurrency := o.TaskCount
	if concurrency == 0 {
		concurrency = a.settings.Concurrency
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	task := func(ctx context.Context, router string) (transport.Response, error) {
		target := targets[router]
		started := time.Now()
		if o.Exec != "" {
			res, err := a.exec.Run(ctx, target, o.Exec, a.settings.ExecTimeout)
			return transport.ExecResponse(res, err, time.Since(started)), err
		}
		res, err := a.sessions.Run(ctx, target, script, quiescence)
		return transport.SessionResponse(res, err, time.Since(started)), err
	}

	var bar *progressbar.ProgressBar
	if !o.JSON && utils.IsTerminal(os.Stderr) {
		bar = progressbar.Default(int64(len(names)), "执行中")
	}
	ch := runner.RunParallel(ctx, names, runner.Options{Concurrency: concurrency, Logger: a.log}, task)
	results := runner.Collect(names, ch, func(r runner.Result[transport.Response]) {
		if bar != nil {
			_ = bar.Add(1)
		}
	})
	if bar != nil {
		_ = bar.Finish()
	}

	entries := make([]batchEntry, 0, len(results))
	failed := 0
	for _, r := range results {
		resp := r.Value
		if r.Err != nil {
			failed++
			if resp.Error == "" {
				resp.Error = r.Err.Error()
				resp.Kind = transport.KindOf(r.Err)
			}
		}
		entries = append(entries, batchEntry{Router: r.Router, Result: resp})
		if o.OutDir != "" && r.Err == nil {
			path := filepath.Join(o.OutDir, safeFileName(r.Router)+".txt")
			if err := file.CreateFileRecursive(path, []byte(resp.Output), 0600); err != nil {
				a.log.Error("write output failed", "router", r.Router, "path", path, "error", err)
			}
		}
	}

	out := cmd.OutOrStdout()
	if o.JSON {
		if err := printJSON(out, entries); err != nil {
			return err
		}
	} else {
		for _, e := range entries {
			if e.Result.Error != "" {
				fmt.Fprintf(out, "[FAIL] %s (%s): %s\n", e.Router, e.Result.Kind, e.Result.Error)
				continue
			}
			fmt.Fprintf(out, "[ OK ] %s %dms\n", e.Router, e.Result.ElapsedMS)
			if o.OutDir == "" {
				fmt.Fprintln(out, strings.TrimRight(e.Result.Output, "\r\n"))
			}
		}
		fmt.Fprintf(out, "共 %d 台, 成功 %d, 失败 %d\n", len(entries), len(entries)-failed, failed)
	}
	if failed > 0 {
		return &exitCodeError{code: 1, err: fmt.Errorf("%d 台设备执行失败", failed)}
	}
	return nil
}

// targets 返回按输入顺序排列的设备名以及对应的连接信息
func (o *BatchOptions) targets(a *app) ([]string, map[string]models.RouterTarget, error) {
	targets := make(map[string]models.RouterTarget)
	var names []string
	add := func(name string, t models.RouterTarget) {
		key := name
		for i := 2; ; i++ {
			if _, dup := targets[key]; !dup {
				break
			}
			key = fmt.Sprintf("%s#%d", name, i)
		}
		targets[key] = t
		names = append(names, key)
	}

	switch {
	case o.CSVFile != "":
		list, err := utils.ReadTargetsCSV(o.CSVFile)
		if err != nil {
			return nil, nil, err
		}
		for _, t := range list {
			add(t.Name(), t)
		}
	case o.Tag != "":
		for _, name := range a.provider.ByTag(o.Tag) {
			t, err := a.provider.Resolve(name)
			if err != nil {
				return nil, nil, err
			}
			add(name, t)
		}
	default:
		for _, h := range o.Hosts {
			h = strings.TrimSpace(h)
			if h == "" {
				continue
			}
			t, err := a.resolveTarget(h)
			if err != nil {
				return nil, nil, err
			}
			add(h, t)
		}
	}
	return names, targets, nil
}

func safeFileName(name string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '@', '#', ' ':
			return '_'
		}
		return r
	}, name)
}

func init() {
	rootCmd.AddCommand(NewCmdBatch())
}
