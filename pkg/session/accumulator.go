package session

import (
	"bytes"
	"sync"
	"time"
)

// accumulator 只追加的输出缓冲, reader 协程写入, 写命令的协程读取长度和空闲时间
type accumulator struct {
	mu   sync.Mutex
	buf  bytes.Buffer
	last time.Time
	now  func() time.Time
}

func newAccumulator(now func() time.Time) *accumulator {
	return &accumulator{now: now, last: now()}
}

func (a *accumulator) Write(p []byte) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(p) > 0 {
		a.last = a.now()
	}
	return a.buf.Write(p)
}

// touch 写入命令也算作活动, 空闲计时从最后一次写入或收到数据开始
func (a *accumulator) touch() {
	a.mu.Lock()
	a.last = a.now()
	a.mu.Unlock()
}

func (a *accumulator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.buf.Len()
}

func (a *accumulator) idle() time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.now().Sub(a.last)
}

func (a *accumulator) String() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.buf.String()
}
