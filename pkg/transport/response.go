package transport

import (
	"errors"
	"time"

	"github.com/wentf9/routerctl/pkg/models"
)

// Response 调用方看到的结果: output 与 error 只有一个非空
type Response struct {
	Output    string        `json:"output,omitempty"`
	Error     string        `json:"error,omitempty"`
	Kind      Kind          `json:"kind,omitempty"`
	Marks     []models.Mark `json:"marks,omitempty"`
	ExitCode  *int          `json:"exit_code,omitempty"`
	Stderr    string        `json:"stderr,omitempty"`
	ElapsedMS int64         `json:"elapsed_ms"`
	Sessions  int           `json:"sessions"`
}

// SessionResponse 包装交互式会话的结果
func SessionResponse(res *models.SessionResult, err error, elapsed time.Duration) Response {
	r := Response{ElapsedMS: elapsed.Milliseconds(), Sessions: 1}
	if err != nil {
		r.Error = err.Error()
		r.Kind = KindOf(err)
		if r.Kind == KindInvalid {
			r.Sessions = 0
		}
		return r
	}
	r.Output = res.Output
	r.Marks = res.Marks
	return r
}

// ExecResponse 包装非交互命令的结果
func ExecResponse(res *models.ExecResult, err error, elapsed time.Duration) Response {
	r := Response{ElapsedMS: elapsed.Milliseconds(), Sessions: 1}
	if res != nil {
		code := res.ExitCode
		r.ExitCode = &code
		r.Stderr = res.Stderr
	}
	if err != nil {
		r.Error = err.Error()
		r.Kind = KindOf(err)
		var te *Error
		if errors.As(err, &te) && te.Kind == KindRemoteCommand {
			code := te.ExitCode
			r.ExitCode = &code
			r.Stderr = te.Stderr
		}
		if r.Kind == KindInvalid {
			r.Sessions = 0
		}
		return r
	}
	r.Output = res.Stdout
	return r
}
