// Package runner 把同一个任务并发地分发到多台路由器, 每台设备是独立的任务。
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/wentf9/routerctl/pkg/logger"
	"github.com/wentf9/routerctl/pkg/transport"
	"github.com/wentf9/routerctl/pkg/utils"
)

// TaskFunc 对单台设备执行的任务
type TaskFunc[T any] func(ctx context.Context, router string) (T, error)

// Result 单台设备的结果, Err 非 nil 时 Value 可能是部分结果 (如非零退出码的命令输出)
type Result[T any] struct {
	Router  string
	Value   T
	Err     error
	Elapsed time.Duration
}

// Options 批量执行参数
type Options struct {
	Concurrency uint
	Logger      *slog.Logger
}

// RunParallel 按 Concurrency 限制并发执行 task, 每台设备恰好产生一个结果, 全部完成后关闭通道。
// ctx 取消后尚未开始的设备直接返回取消错误。
func RunParallel[T any](ctx context.Context, routers []string, opts Options, task TaskFunc[T]) <-chan Result[T] {
	log := logger.Or(opts.Logger)
	wp := utils.NewWorkerPool(opts.Concurrency)
	// 缓冲区大小设为设备数量, 防止阻塞 worker
	results := make(chan Result[T], len(routers))
	go func() {
		for _, router := range routers {
			wp.Execute(func() {
				results <- runOne(ctx, router, task, log)
			})
		}
		wp.Wait()
		close(results)
	}()
	return results
}

func runOne[T any](ctx context.Context, router string, task TaskFunc[T], log *slog.Logger) (res Result[T]) {
	res.Router = router
	if ctx.Err() != nil {
		res.Err = transport.FromContext(ctx, "batch", router)
		return res
	}
	started := time.Now()
	defer func() {
		if r := recover(); r != nil {
			log.Error("batch task panicked", "router", router, "panic", r)
			res.Err = transport.Errorf(transport.KindInternal, "batch", router, fmt.Errorf("panic: %v", r))
		}
		res.Elapsed = time.Since(started)
	}()
	res.Value, res.Err = task(ctx, router)
	return res
}

// Collect 读完通道并按 routers 的顺序排列结果
func Collect[T any](routers []string, ch <-chan Result[T], each func(Result[T])) []Result[T] {
	byName := make(map[string]Result[T], len(routers))
	for r := range ch {
		if each != nil {
			each(r)
		}
		byName[r.Router] = r
	}
	ordered := make([]Result[T], 0, len(routers))
	for _, name := range routers {
		if r, ok := byName[name]; ok {
			ordered = append(ordered, r)
		}
	}
	return ordered
}
