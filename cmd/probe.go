package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"github.com/wentf9/routerctl/cmd/utils"
	"github.com/wentf9/routerctl/pkg/config"
	"github.com/wentf9/routerctl/pkg/models"
	"github.com/wentf9/routerctl/pkg/probe"
)

var (
	probePrivileged bool
	probeCount      int
	probeTCPOnly    bool
	probeJSON       bool
)

// probeCmd represents the probe command
var probeCmd = &cobra.Command{
	Use:   "probe <router|[user@]host[:port]>",
	Short: "通过 ICMP Ping 和 SSH 端口检查路由器是否可达",
	Long: `同时发送 ICMP 请求并尝试连接 SSH 端口, 两项都失败时返回错误。
   示例: routerctl probe r1
   示例: routerctl probe 10.0.0.1:2222 --tcp-only

注意: 默认使用非特权 UDP ping, Linux 上需要 net.ipv4.ping_group_range 允许当前用户;
--privileged 使用 raw socket, 需要 root 权限。`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(func(o *probe.Options) {
			o.Privileged = probePrivileged
			o.Count = probeCount
			o.SkipICMP = probeTCPOnly
		})
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		var rep probe.Report
		if _, ok := a.provider.Find(args[0]); ok {
			rep, err = a.svc.Probe(ctx, args[0])
			if err != nil {
				return err
			}
		} else {
			// 探测不需要登录, 不在 inventory 中的地址不提示输入密码
			_, host, port := utils.ParseAddr(args[0])
			if host == "" {
				return fmt.Errorf("%w: %s", config.ErrRouterNotFound, args[0])
			}
			rep = a.prober.Probe(ctx, models.RouterTarget{Hostname: host, Address: host, Port: port})
		}

		out := cmd.OutOrStdout()
		if probeJSON {
			if err := printJSON(out, rep); err != nil {
				return err
			}
		} else {
			printReport(cmd, rep)
		}
		if !rep.Reachable() {
			return errors.New("设备不可达")
		}
		return nil
	},
}

func printReport(cmd *cobra.Command, rep probe.Report) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "--- %s (%s) ---\n", rep.Router, rep.Address)
	switch {
	case rep.ICMP != nil:
		fmt.Fprintf(out, "ICMP: %d 个包已发送, %d 个包已接收, %v%% 包丢失, 最小/平均/最大 = %.2f/%.2f/%.2f ms\n",
			rep.ICMP.Sent, rep.ICMP.Received, rep.ICMP.PacketLoss, rep.ICMP.MinRTTMS, rep.ICMP.AvgRTTMS, rep.ICMP.MaxRTTMS)
	case rep.ICMPError != "":
		fmt.Fprintf(out, "ICMP: 失败: %s\n", rep.ICMPError)
	}
	if rep.PortOpen {
		fmt.Fprintf(out, "端口 %d 是开放的, 连接耗时 %.2f ms\n", rep.Port, rep.PortRTTMS)
	} else {
		fmt.Fprintf(out, "端口 %d 已关闭或被过滤: %s\n", rep.Port, rep.PortError)
	}
}

func init() {
	rootCmd.AddCommand(probeCmd)
	probeCmd.Flags().BoolVar(&probePrivileged, "privileged", false, "使用 raw socket 发送 ICMP")
	probeCmd.Flags().IntVarP(&probeCount, "count", "n", 4, "ICMP 请求次数")
	probeCmd.Flags().BoolVar(&probeTCPOnly, "tcp-only", false, "只检查 SSH 端口")
	probeCmd.Flags().BoolVar(&probeJSON, "json", false, "以 JSON 输出结果")
}
