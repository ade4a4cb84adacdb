// Package aegobserve file: internal/aegobserve/logging.go
package aegobserve

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// ParseLevel 将配置字符串转换为日志级别，无法识别时为 INFO。
func ParseLevel(levelStr string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(levelStr)) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// NewLogger 创建结构化日志记录器。format 为 "text" 时输出文本格式，其余情况输出 JSON。
func NewLogger(w io.Writer, levelStr, format string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:     ParseLevel(levelStr),
		AddSource: true, // 添加代码源位置（文件:行号），方便调试
	}
	var handler slog.Handler
	if strings.EqualFold(format, "text") {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}
	return slog.New(handler)
}

// InitLogger 初始化全局的结构化日志记录器。
// 它应该在 main 函数的早期被调用。CLI 的正常输出走 stdout，日志统一写到 stderr。
func InitLogger(levelStr, format string) *slog.Logger {
	logger := NewLogger(os.Stderr, levelStr, format)
	slog.SetDefault(logger)
	return logger
}
