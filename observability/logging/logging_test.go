package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestSetupRenamesKeys(t *testing.T) {
	var buf bytes.Buffer
	logger := setup("nameshare", "test", &buf, slog.LevelInfo)
	logger.Info("snapshot taken", "ledger", "holders")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	for _, key := range []string{"timestamp", "severity", "message", "service", "env", "ledger"} {
		if _, ok := line[key]; !ok {
			t.Fatalf("expected key %q in %v", key, line)
		}
	}
	if line["severity"] != "INFO" || line["service"] != "nameshare" {
		t.Fatalf("unexpected line %v", line)
	}
}

func TestSetupHonoursLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := setup("nameshare", "", &buf, slog.LevelWarn)
	logger.Info("hidden")
	if buf.Len() != 0 {
		t.Fatalf("info line should be filtered, got %q", buf.String())
	}
}

func TestMaskField(t *testing.T) {
	if got := MaskField("reason", "too early"); got.Value.String() != "too early" {
		t.Fatalf("allowlisted key redacted: %v", got)
	}
	if got := MaskField("dsn", "postgres://u:p@h/db"); got.Value.String() != RedactedValue {
		t.Fatalf("expected redaction, got %v", got)
	}
}

func TestMaskDSN(t *testing.T) {
	masked := MaskDSN("postgres://ledger:hunter2@db:5432/events?sslmode=disable")
	if strings.Contains(masked, "hunter2") {
		t.Fatalf("password leaked: %s", masked)
	}
	if !strings.Contains(masked, "ledger") || !strings.Contains(masked, "db:5432") {
		t.Fatalf("unexpected mask %s", masked)
	}
	if got := MaskDSN("/var/lib/nameshare/events.db"); got != "/var/lib/nameshare/events.db" {
		t.Fatalf("file path changed: %s", got)
	}
}
