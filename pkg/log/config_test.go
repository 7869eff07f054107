package log

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestApplyConfigDefaults(t *testing.T) {
	l, err := ApplyConfig(nil)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if l.GetLevel() != InfoLevel {
		t.Fatalf("default level: %v", l.GetLevel())
	}
}

func TestApplyConfigRejectsUnknown(t *testing.T) {
	if _, err := ApplyConfig(&Config{Level: "chatty"}); err == nil {
		t.Fatalf("expected level error")
	}
	if _, err := ApplyConfig(&Config{Format: "xml"}); err == nil {
		t.Fatalf("expected format error")
	}
}

func TestApplyConfigFileOutputJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nibbana.log")
	l, err := ApplyConfig(&Config{Level: "debug", Format: "json", Output: path})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	l.Debug("to file", Str("k", "v"))

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(string(b))), &rec); err != nil {
		t.Fatalf("not json: %q", b)
	}
	if rec["msg"] != "to file" || rec["k"] != "v" {
		t.Fatalf("record: %v", rec)
	}
}
