package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Logger 全局日志实例, 默认输出到 stderr, 级别为 error
var Logger *slog.Logger

// LogLevel 运行时可调整的日志级别
var LogLevel *slog.LevelVar

func init() {
	LogLevel = &slog.LevelVar{}
	LogLevel.Set(slog.LevelError)
	Logger = New(os.Stderr)
}

// New 使用全局级别创建一个写入 w 的 text logger
func New(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: LogLevel,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.Attr{Key: "timestamp", Value: slog.TimeValue(a.Value.Time())}
			}
			return a
		},
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// SetLogLevel 按名称设置日志级别, 未知名称保持不变并返回 false
func SetLogLevel(level string) bool {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		LogLevel.Set(slog.LevelDebug)
	case "info":
		LogLevel.Set(slog.LevelInfo)
	case "warn", "warning":
		LogLevel.Set(slog.LevelWarn)
	case "error":
		LogLevel.Set(slog.LevelError)
	default:
		return false
	}
	return true
}

// Or 返回 l, 为 nil 时返回全局 Logger
func Or(l *slog.Logger) *slog.Logger {
	if l != nil {
		return l
	}
	return Logger
}

// Discard 丢弃所有输出, 测试中使用
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
