package whatsapp

import (
	"context"
	"fmt"
	"log/slog"

	waLog "go.mau.fi/whatsmeow/util/log"
)

// slogAdapter routes whatsmeow's printf-style logging into slog.
type slogAdapter struct {
	log *slog.Logger
}

func newLogger(log *slog.Logger) waLog.Logger {
	return slogAdapter{log: log}
}

func (l slogAdapter) logf(level slog.Level, msg string, args ...interface{}) {
	if !l.log.Enabled(context.Background(), level) {
		return
	}
	l.log.Log(context.Background(), level, fmt.Sprintf(msg, args...))
}

func (l slogAdapter) Errorf(msg string, args ...interface{}) { l.logf(slog.LevelError, msg, args...) }
func (l slogAdapter) Warnf(msg string, args ...interface{})  { l.logf(slog.LevelWarn, msg, args...) }
func (l slogAdapter) Infof(msg string, args ...interface{})  { l.logf(slog.LevelInfo, msg, args...) }
func (l slogAdapter) Debugf(msg string, args ...interface{}) { l.logf(slog.LevelDebug, msg, args...) }

func (l slogAdapter) Sub(module string) waLog.Logger {
	return slogAdapter{log: l.log.With(slog.String("module", module))}
}
