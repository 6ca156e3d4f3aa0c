package logger

import (
	"github.com/cloudwego/hertz/pkg/common/hlog"
	"github.com/rs/zerolog"

	hertzadapter "github.com/hertz-contrib/logger/zerolog"
)

// BindHertz 让 hertz 客户端通过全局日志输出，需要在 Init 之后调用
func BindHertz() {
	hlog.SetLogger(hertzadapter.From(Logger))
	hlog.SetLevel(HertzLevel(Logger.GetLevel()))
}

// HertzLevel 把 zerolog 级别映射为 hlog 级别
func HertzLevel(level zerolog.Level) hlog.Level {
	switch level {
	case zerolog.TraceLevel:
		return hlog.LevelTrace
	case zerolog.DebugLevel:
		return hlog.LevelDebug
	case zerolog.WarnLevel:
		return hlog.LevelWarn
	case zerolog.ErrorLevel:
		return hlog.LevelError
	case zerolog.FatalLevel, zerolog.PanicLevel:
		return hlog.LevelFatal
	default:
		return hlog.LevelInfo
	}
}
