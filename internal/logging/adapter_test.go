package logging

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/robfig/cron/v3"
)

var _ cron.Logger = (*CronLogger)(nil)

func TestNewCronLogger_WithNil(t *testing.T) {
	adapter := NewCronLogger(nil)
	if adapter.Logger() == nil {
		t.Error("expected slog.Default fallback")
	}
}

func TestCronLogger_Levels(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	adapter := NewCronLogger(logger)

	adapter.Info("wake", "now", "t")
	if buf.Len() != 0 {
		t.Errorf("cron info should log at debug, got %q", buf.String())
	}

	adapter.Error(errors.New("panic in job"), "job failed", "entry", 1)
	out := buf.String()
	if !strings.Contains(out, "level=ERROR") || !strings.Contains(out, "panic in job") || !strings.Contains(out, "entry=1") {
		t.Errorf("unexpected error output %q", out)
	}
}
