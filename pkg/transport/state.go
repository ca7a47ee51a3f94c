package transport

import (
	"fmt"
	"log/slog"
	"sync"
)

// State 会话/命令运行的生命周期状态
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	StateExecuting
	StateStreaming
	StateClosing
	StateClosed
	StateErrored
)

var stateNames = [...]string{
	StateIdle:       "idle",
	StateConnecting: "connecting",
	StateConnected:  "connected",
	StateExecuting:  "executing",
	StateStreaming:  "streaming",
	StateClosing:    "closing",
	StateClosed:     "closed",
	StateErrored:    "errored",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// Terminal Closed 与 Errored 为终态
func (s State) Terminal() bool {
	return s == StateClosed || s == StateErrored
}

var transitions = map[State][]State{
	StateIdle:       {StateConnecting},
	StateConnecting: {StateConnected},
	StateConnected:  {StateExecuting, StateStreaming, StateClosing},
	StateExecuting:  {StateClosing},
	StateStreaming:  {StateClosing},
	StateClosing:    {StateClosed},
}

// Lifecycle 记录一次运行的状态迁移
// Idle → Connecting → Connected → (Executing | Streaming) → Closing → Closed,
// 任一非终态可进入 Errored
type Lifecycle struct {
	mu      sync.Mutex
	state   State
	history []State
	log     *slog.Logger
}

// NewLifecycle 从 Idle 开始
func NewLifecycle(log *slog.Logger) *Lifecycle {
	return &Lifecycle{state: StateIdle, history: []State{StateIdle}, log: log}
}

// State 当前状态
func (l *Lifecycle) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// History 已经过的状态
func (l *Lifecycle) History() []State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]State(nil), l.history...)
}

// To 迁移到 next, 非法迁移返回错误且状态不变
func (l *Lifecycle) To(next State) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state.Terminal() {
		return fmt.Errorf("lifecycle: %s is terminal, cannot move to %s", l.state, next)
	}
	if next == StateErrored {
		l.set(next)
		return nil
	}
	for _, allowed := range transitions[l.state] {
		if allowed == next {
			l.set(next)
			return nil
		}
	}
	return fmt.Errorf("lifecycle: invalid transition %s -> %s", l.state, next)
}

// Fail 进入 Errored, 已处于终态时忽略
func (l *Lifecycle) Fail() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.state.Terminal() {
		l.set(StateErrored)
	}
}

func (l *Lifecycle) set(next State) {
	if l.log != nil {
		l.log.Debug("state change", "from", l.state.String(), "to", next.String())
	}
	l.state = next
	l.history = append(l.history, next)
}
