package logger

import (
	"fmt"
	"strings"

	"go.uber.org/zap/zapcore"
)

// Level 与 zapcore.Level 相同，调用方不必引入 zapcore
type Level = zapcore.Level

const (
	DebugLevel  = zapcore.DebugLevel
	InfoLevel   = zapcore.InfoLevel
	WarnLevel   = zapcore.WarnLevel
	ErrorLevel  = zapcore.ErrorLevel
	DPanicLevel = zapcore.DPanicLevel
	PanicLevel  = zapcore.PanicLevel
	FatalLevel  = zapcore.FatalLevel
)

// ParseLevel 不区分大小写，空字符串视为 info，接受 "warning"
func ParseLevel(s string) (Level, error) {
	switch v := strings.ToLower(strings.TrimSpace(s)); v {
	case "":
		return InfoLevel, nil
	case "warning":
		return WarnLevel, nil
	default:
		l, err := zapcore.ParseLevel(v)
		if err != nil {
			return InfoLevel, fmt.Errorf("logger: unknown level %q", s)
		}
		return l, nil
	}
}
