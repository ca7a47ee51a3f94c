package utils

import (
	"runtime/debug"
	"sync"
)

// DefaultConcurrency 未指定并发数时同时连接的设备数
const DefaultConcurrency = 5

// WorkerPool 控制并发任务的执行
type WorkerPool interface {
	Execute(task func())
	Wait()
}

type defaultWorkerPool struct {
	limit        chan struct{}
	wg           sync.WaitGroup
	panicHandler func(v any, stack []byte)
}

type Option func(*defaultWorkerPool)

// WithPanicHandler 任务 panic 时调用, 不设置时 panic 照常向上传播
func WithPanicHandler(handler func(v any, stack []byte)) Option {
	return func(wp *defaultWorkerPool) {
		wp.panicHandler = handler
	}
}

func NewWorkerPool(maxConcurrent uint, options ...Option) WorkerPool {
	if maxConcurrent == 0 {
		maxConcurrent = DefaultConcurrency
	}
	wp := &defaultWorkerPool{
		limit: make(chan struct{}, maxConcurrent),
	}
	for _, option := range options {
		option(wp)
	}
	return wp
}

// Execute 提交一个任务, 和 sync.WaitGroup.Go() 用法一致; 超过并发上限的任务排队等待
func (wp *defaultWorkerPool) Execute(task func()) {
	wp.wg.Go(func() {
		wp.limit <- struct{}{}
		defer func() { <-wp.limit }()
		if wp.panicHandler != nil {
			defer func() {
				if r := recover(); r != nil {
					wp.panicHandler(r, debug.Stack())
				}
			}()
		}
		task()
	})
}

func (wp *defaultWorkerPool) Wait() {
	wp.wg.Wait()
}
