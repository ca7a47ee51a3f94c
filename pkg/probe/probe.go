// Package probe 检查路由器是否可达: ICMP 回显和 SSH 端口。
// 两项检查的失败都写进报告, 不作为 Probe 的错误返回。
package probe

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"time"

	ping "github.com/prometheus-community/pro-bing"
	"github.com/wentf9/routerctl/pkg/logger"
	"github.com/wentf9/routerctl/pkg/models"
)

// Options 零值使用默认值
type Options struct {
	Count    int
	Interval time.Duration
	Timeout  time.Duration
	// Privileged 使用 raw socket, 需要 root 或 CAP_NET_RAW; 默认使用非特权 UDP ping
	Privileged bool
	// SkipICMP 只检查 TCP 端口
	SkipICMP bool
	Logger   *slog.Logger
}

// ICMPStats ping 统计
type ICMPStats struct {
	Sent       int     `json:"sent"`
	Received   int     `json:"received"`
	PacketLoss float64 `json:"packet_loss"`
	MinRTTMS   float64 `json:"min_rtt_ms"`
	AvgRTTMS   float64 `json:"avg_rtt_ms"`
	MaxRTTMS   float64 `json:"max_rtt_ms"`
}

// Report 一次探测的结果
type Report struct {
	Router    string     `json:"router"`
	Address   string     `json:"address"`
	Port      uint16     `json:"port"`
	ICMP      *ICMPStats `json:"icmp,omitempty"`
	ICMPError string     `json:"icmp_error,omitempty"`
	PortOpen  bool       `json:"port_open"`
	PortRTTMS float64    `json:"port_rtt_ms,omitempty"`
	PortError string     `json:"port_error,omitempty"`
	ElapsedMS int64      `json:"elapsed_ms"`
}

// Reachable ICMP 有回包或 SSH 端口打开
func (r Report) Reachable() bool {
	return r.PortOpen || (r.ICMP != nil && r.ICMP.Received > 0)
}

type Prober struct {
	opts Options
	log  *slog.Logger
	dial func(ctx context.Context, network, addr string) (net.Conn, error)
}

func New(opts Options) *Prober {
	if opts.Count <= 0 {
		opts.Count = 4
	}
	if opts.Interval <= 0 {
		opts.Interval = time.Second
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	d := &net.Dialer{Timeout: opts.Timeout}
	return &Prober{opts: opts, log: logger.Or(opts.Logger), dial: d.DialContext}
}

// Probe 并发执行 ICMP 和 TCP 检查
func (p *Prober) Probe(ctx context.Context, target models.RouterTarget) Report {
	started := time.Now()
	rep := Report{Router: target.Name(), Address: target.Address, Port: target.EffectivePort()}

	var wg sync.WaitGroup
	if !p.opts.SkipICMP {
		wg.Go(func() {
			stats, err := p.ping(ctx, target.Address)
			if err != nil {
				rep.ICMPError = err.Error()
				return
			}
			rep.ICMP = stats
		})
	}
	wg.Go(func() {
		rtt, err := p.checkPort(ctx, target.Addr())
		if err != nil {
			rep.PortError = err.Error()
			return
		}
		rep.PortOpen = true
		rep.PortRTTMS = ms(rtt)
	})
	wg.Wait()

	rep.ElapsedMS = time.Since(started).Milliseconds()
	p.log.Debug("probe finished", "router", rep.Router, "port_open", rep.PortOpen, "icmp_error", rep.ICMPError)
	return rep
}

func (p *Prober) ping(ctx context.Context, addr string) (*ICMPStats, error) {
	pinger, err := ping.NewPinger(addr)
	if err != nil {
		return nil, err
	}
	pinger.SetPrivileged(p.opts.Privileged)
	pinger.Count = p.opts.Count
	pinger.Interval = p.opts.Interval
	pinger.Timeout = p.opts.Timeout
	if err := pinger.RunWithContext(ctx); err != nil {
		return nil, err
	}
	st := pinger.Statistics()
	return &ICMPStats{
		Sent:       st.PacketsSent,
		Received:   st.PacketsRecv,
		PacketLoss: st.PacketLoss,
		MinRTTMS:   ms(st.MinRtt),
		AvgRTTMS:   ms(st.AvgRtt),
		MaxRTTMS:   ms(st.MaxRtt),
	}, nil
}

func (p *Prober) checkPort(ctx context.Context, addr string) (time.Duration, error) {
	ctx, cancel := context.WithTimeout(ctx, p.opts.Timeout)
	defer cancel()
	start := time.Now()
	conn, err := p.dial(ctx, "tcp", addr)
	if err != nil {
		return 0, err
	}
	rtt := time.Since(start)
	conn.Close()
	return rtt, nil
}

func ms(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}
