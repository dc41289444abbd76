package logger

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNewDefaultLevels(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")

	dev, err := New("dev")
	if err != nil {
		t.Fatalf("New dev: %v", err)
	}
	if !dev.SugaredLogger.Desugar().Core().Enabled(zapcore.DebugLevel) {
		t.Error("dev logger should enable debug")
	}

	prod, err := New("prod")
	if err != nil {
		t.Fatalf("New prod: %v", err)
	}
	core := prod.SugaredLogger.Desugar().Core()
	if core.Enabled(zapcore.DebugLevel) {
		t.Error("prod logger should not enable debug")
	}
	if !core.Enabled(zapcore.InfoLevel) {
		t.Error("prod logger should enable info")
	}
}

func TestNewHonorsLogLevelEnv(t *testing.T) {
	t.Setenv("LOG_LEVEL", "error")

	log, err := New("dev")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	core := log.SugaredLogger.Desugar().Core()
	if core.Enabled(zapcore.WarnLevel) {
		t.Error("warn enabled despite LOG_LEVEL=error")
	}
	if !core.Enabled(zapcore.ErrorLevel) {
		t.Error("error not enabled")
	}
}

func TestNewRejectsInvalidLogLevel(t *testing.T) {
	t.Setenv("LOG_LEVEL", "loud")
	if _, err := New("dev"); err == nil {
		t.Error("expected an error for an unknown level")
	}
}

func TestWithKeepsLevel(t *testing.T) {
	t.Setenv("LOG_LEVEL", "warn")
	log, err := New("prod")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	scoped := log.With("service", "test")
	if scoped.SugaredLogger.Desugar().Core().Enabled(zapcore.InfoLevel) {
		t.Error("info enabled on scoped logger despite LOG_LEVEL=warn")
	}
}
