package logging

import (
	"log/slog"
)

// CronLogger adapts an slog.Logger to the logger interface robfig/cron
// expects. Routine scheduler chatter goes to debug.
type CronLogger struct {
	logger *slog.Logger
}

// NewCronLogger wraps logger. A nil logger falls back to slog.Default().
func NewCronLogger(logger *slog.Logger) *CronLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &CronLogger{logger: logger}
}

// Info logs scheduler progress at debug level.
func (a *CronLogger) Info(msg string, keysAndValues ...interface{}) {
	a.logger.Debug(msg, keysAndValues...)
}

// Error logs a scheduler failure, such as a recovered job panic.
func (a *CronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	a.logger.Error(msg, append([]interface{}{Err(err)}, keysAndValues...)...)
}

// Logger returns the wrapped slog.Logger.
func (a *CronLogger) Logger() *slog.Logger {
	return a.logger
}
