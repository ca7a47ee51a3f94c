package models

import (
	"errors"
	"net"
	"strconv"
	"time"
)

// DefaultSSHPort 未指定端口时使用
const DefaultSSHPort = 22

var (
	ErrEmptyAddress  = errors.New("router address is empty")
	ErrEmptyUsername = errors.New("router username is empty")
	ErrEmptyPassword = errors.New("router password is empty")
)

// RouterTarget 描述一次调用要连接的设备, 每次调用由调用方重新提供
type RouterTarget struct {
	Hostname string `json:"hostname,omitempty" yaml:"hostname,omitempty"` // 展示用名称
	Address  string `json:"address" yaml:"address"`                       // IP 或域名
	Username string `json:"username" yaml:"username"`
	Password string `json:"password,omitempty" yaml:"password,omitempty"`
	Port     uint16 `json:"port,omitempty" yaml:"port,omitempty"`

	// 跳板机, 先连接它再通过隧道连接目标
	Jump *RouterTarget `json:"jump,omitempty" yaml:"jump,omitempty"`
}

// Validate 检查必填字段
func (t RouterTarget) Validate() error {
	if t.Address == "" {
		return ErrEmptyAddress
	}
	if t.Username == "" {
		return ErrEmptyUsername
	}
	if t.Password == "" {
		return ErrEmptyPassword
	}
	if t.Jump != nil {
		if err := t.Jump.Validate(); err != nil {
			return errors.Join(errors.New("jump host"), err)
		}
	}
	return nil
}

// EffectivePort 端口为 0 时返回 22
func (t RouterTarget) EffectivePort() uint16 {
	if t.Port == 0 {
		return DefaultSSHPort
	}
	return t.Port
}

// Addr 返回 host:port
func (t RouterTarget) Addr() string {
	return net.JoinHostPort(t.Address, strconv.Itoa(int(t.EffectivePort())))
}

// Name 日志和结果中使用的名称
func (t RouterTarget) Name() string {
	if t.Hostname != "" {
		return t.Hostname
	}
	return t.Address
}

// Step 交互式 shell 中提交的一行命令
type Step struct {
	Command string `json:"command" yaml:"command"`
	// 写入后等待的时间, 用于模式切换 (如 conf t) 后让设备稳定
	Settle time.Duration `json:"settle,omitempty" yaml:"settle,omitempty"`
}

// CommandScript 按顺序提交的命令
type CommandScript []Step

// Script 由命令字符串构建不带等待的脚本
func Script(commands ...string) CommandScript {
	s := make(CommandScript, 0, len(commands))
	for _, c := range commands {
		s = append(s, Step{Command: c})
	}
	return s
}

// Commands 返回脚本中的命令文本
func (s CommandScript) Commands() []string {
	out := make([]string, len(s))
	for i, step := range s {
		out[i] = step.Command
	}
	return out
}

// Outcome 单条命令的执行结论
type Outcome string

// OutcomeUnknown 交互式 shell 没有结束标记, 无法区分 "无输出" 与 "没有执行"
const OutcomeUnknown Outcome = "unknown"

// Mark 记录一条命令写入时 transcript 的偏移
type Mark struct {
	Command string  `json:"command"`
	Offset  int     `json:"offset"`
	Outcome Outcome `json:"outcome"`
}

// SessionResult 交互式会话的完整输出, 只在成功时返回
type SessionResult struct {
	Target  string        `json:"target"`
	Output  string        `json:"output"`
	Marks   []Mark        `json:"marks,omitempty"`
	Bytes   int           `json:"bytes"`
	Started time.Time     `json:"started"`
	Elapsed time.Duration `json:"elapsed"`
}

// Segment 返回第 i 条命令写入到下一条命令写入之间收到的文本
func (r *SessionResult) Segment(i int) string {
	if r == nil || i < 0 || i >= len(r.Marks) {
		return ""
	}
	start := r.Marks[i].Offset
	end := len(r.Output)
	if i+1 < len(r.Marks) {
		end = r.Marks[i+1].Offset
	}
	if start > end || end > len(r.Output) {
		return ""
	}
	return r.Output[start:end]
}

// ExecResult 非交互式命令的结果
type ExecResult struct {
	Target   string        `json:"target"`
	Command  string        `json:"command"`
	Stdout   string        `json:"stdout"`
	Stderr   string        `json:"stderr,omitempty"`
	ExitCode int           `json:"exit_code"`
	Elapsed  time.Duration `json:"elapsed"`
}
