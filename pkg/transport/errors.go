package transport

import (
	"context"
	"errors"
	"fmt"
)

// Kind 错误类别, 对应运维的不同处理方式 (修网络 / 修凭据 / 加大超时)
type Kind string

const (
	KindConnection    Kind = "connection"
	KindChannel       Kind = "channel"
	KindTimeout       Kind = "timeout"
	KindRemoteCommand Kind = "remote_command"
	KindCanceled      Kind = "canceled"
	KindInvalid       Kind = "invalid"
	KindInternal      Kind = "internal"
)

// 与 errors.Is 配合使用的哨兵错误
var (
	ErrConnection    = errors.New("connection error")
	ErrChannel       = errors.New("channel error")
	ErrTimeout       = errors.New("timeout")
	ErrRemoteCommand = errors.New("remote command failed")
	ErrCanceled      = errors.New("canceled")
	ErrInvalid       = errors.New("invalid request")

	// ErrSessionDropped 会话在正常结束前断开, 已收到的输出被丢弃
	ErrSessionDropped = errors.New("session dropped before completion")
)

var sentinels = map[Kind]error{
	KindConnection:    ErrConnection,
	KindChannel:       ErrChannel,
	KindTimeout:       ErrTimeout,
	KindRemoteCommand: ErrRemoteCommand,
	KindCanceled:      ErrCanceled,
	KindInvalid:       ErrInvalid,
}

// Error 带分类的失败结果
type Error struct {
	Kind   Kind
	Op     string // connect, shell, write, quiesce, exec, close
	Target string
	Err    error

	// 仅 KindRemoteCommand
	ExitCode int
	Stderr   string
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s %s", e.Op, e.Target)
	if e.Kind == KindRemoteCommand {
		msg = fmt.Sprintf("%s: exit status %d", msg, e.ExitCode)
		if e.Stderr != "" {
			msg = fmt.Sprintf("%s: %s", msg, e.Stderr)
		}
		return msg
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", msg, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", msg, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Is 让 errors.Is(err, ErrTimeout) 之类的判断按 Kind 匹配
func (e *Error) Is(target error) bool {
	s, ok := sentinels[e.Kind]
	return ok && s == target
}

// Errorf 构造分类错误
func Errorf(kind Kind, op, target string, err error) *Error {
	return &Error{Kind: kind, Op: op, Target: target, Err: err}
}

// FromContext 将 ctx 结束的原因映射为 Timeout 或 Canceled
func FromContext(ctx context.Context, op, target string) *Error {
	err := context.Cause(ctx)
	if err == nil {
		err = ctx.Err()
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return Errorf(KindTimeout, op, target, err)
	}
	return Errorf(KindCanceled, op, target, err)
}

// KindOf 返回 err 的分类, nil 返回空字符串
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, context.Canceled):
		return KindCanceled
	}
	return KindInternal
}
