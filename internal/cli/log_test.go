package cli

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
)

func TestNewLoggerLevels(t *testing.T) {
	tests := []struct {
		name    string
		level   log.Level
		logFunc func(*log.Logger)
		wantLog bool
	}{
		{"info at info level", log.InfoLevel, func(l *log.Logger) { l.Info("reconciled state") }, true},
		{"debug at info level", log.InfoLevel, func(l *log.Logger) { l.Debug("candidate rejected") }, false},
		{"debug at debug level", log.DebugLevel, func(l *log.Logger) { l.Debug("candidate rejected") }, true},
		{"warn at error level", log.ErrorLevel, func(l *log.Logger) { l.Warn("cache set failed") }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			tt.logFunc(newLogger(&buf, tt.level))
			if got := buf.Len() > 0; got != tt.wantLog {
				t.Errorf("got log output = %v, want %v", got, tt.wantLog)
			}
		})
	}
}

func TestLoggerKeyValues(t *testing.T) {
	var buf bytes.Buffer
	newLogger(&buf, log.InfoLevel).Info("resolved state", "resolved", 3, "revisions", 4)

	got := buf.String()
	for _, want := range []string{"resolved state", "resolved=3", "revisions=4"} {
		if !strings.Contains(got, want) {
			t.Errorf("output %q does not contain %q", got, want)
		}
	}
}

func TestProgressDone(t *testing.T) {
	var buf bytes.Buffer
	newProgress(newLogger(&buf, log.InfoLevel)).done("Resolved 2 revisions")

	got := buf.String()
	if !strings.Contains(got, "Resolved 2 revisions (") {
		t.Errorf("progress output = %q, want message with elapsed time", got)
	}
}

func TestLoggerFromContext(t *testing.T) {
	if loggerFromContext(context.Background()) != log.Default() {
		t.Error("without a logger, loggerFromContext should return log.Default()")
	}

	var buf bytes.Buffer
	custom := newLogger(&buf, log.InfoLevel)
	ctx := withLogger(context.Background(), custom)
	if loggerFromContext(ctx) != custom {
		t.Fatal("loggerFromContext should return the attached logger")
	}
	loggerFromContext(ctx).Info("watching")
	if !strings.Contains(buf.String(), "watching") {
		t.Error("attached logger should write to its buffer")
	}
}
