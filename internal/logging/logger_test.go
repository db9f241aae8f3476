package logging_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"conveyor/internal/config"
	"conveyor/internal/logging"
)

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected unsupported format error")
	}
}

func TestNewFromConfigWritesLogFile(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Paths.LogDir = filepath.Join(dir, "logs")
	cfg.Logging.Format = "json"

	logger, err := logging.NewFromConfig(&cfg)
	if err != nil {
		t.Fatalf("NewFromConfig: %v", err)
	}
	logger.Info("bridge started", logging.String("stream", "transfertask.events"))

	data, err := os.ReadFile(filepath.Join(cfg.Paths.LogDir, "conveyor.log"))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), `"msg":"bridge started"`) {
		t.Fatalf("log file missing record: %s", data)
	}
}

func TestWithContextCarriesJobFields(t *testing.T) {
	ctx := logging.WithJob(context.Background(), "uuid-1", "sandbox", "staging")
	fields := logging.ContextFields(ctx)
	keys := make(map[string]string, len(fields))
	for _, f := range fields {
		keys[f.Key] = f.Value.String()
	}
	if keys[logging.FieldJobUUID] != "uuid-1" || keys[logging.FieldTenant] != "sandbox" || keys[logging.FieldStage] != "staging" {
		t.Fatalf("unexpected context fields: %v", keys)
	}
}

func TestNopLoggerDiscards(t *testing.T) {
	logger := logging.NewNop()
	// Must not panic and must report disabled at every level.
	logger.Error("dropped")
	if logger.Enabled(context.Background(), 12) {
		t.Fatal("nop logger should never be enabled")
	}
}
