package jobs

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/hibiken/asynq"
)

// slogLogger routes asynq's internal logging through slog.
type slogLogger struct {
	log *slog.Logger
}

var _ asynq.Logger = (*slogLogger)(nil)

// NewLogger adapts a slog logger to asynq.Logger.
func NewLogger(log *slog.Logger) asynq.Logger {
	if log == nil {
		log = slog.Default()
	}
	return &slogLogger{log: log.With(slog.String("component", "asynq"))}
}

func (l *slogLogger) Debug(args ...any) { l.log.Debug(fmt.Sprint(args...)) }
func (l *slogLogger) Info(args ...any)  { l.log.Info(fmt.Sprint(args...)) }
func (l *slogLogger) Warn(args ...any)  { l.log.Warn(fmt.Sprint(args...)) }
func (l *slogLogger) Error(args ...any) { l.log.Error(fmt.Sprint(args...)) }

// Fatal logs and exits, as asynq expects of its loggers.
func (l *slogLogger) Fatal(args ...any) {
	l.log.Error(fmt.Sprint(args...))
	os.Exit(1)
}
