package slog

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/unkn0wn-root/dictcache"
)

func TestLoggerWritesSortedFields(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(&buf, "debug")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	l.Warn("cache read failed", dictcache.Fields{
		"key": "sentences_猫_0",
		"err": errors.New("dial tcp: refused"),
	})

	line := strings.TrimSpace(buf.String())
	if strings.Index(line, `"err"`) > strings.Index(line, `"key"`) {
		t.Fatalf("fields not sorted: %s", line)
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(line), &rec); err != nil {
		t.Fatalf("unmarshal %q: %v", line, err)
	}
	if rec["level"] != "WARN" || rec["msg"] != "cache read failed" {
		t.Fatalf("record = %v", rec)
	}
	if rec["err"] != "dial tcp: refused" || rec["key"] != "sentences_猫_0" {
		t.Fatalf("fields = %v", rec)
	}
}

func TestLoggerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(&buf, "warn")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	l.Debug("fetched from backend", dictcache.Fields{"records": 3})
	l.Info("dictcache ready", nil)
	if buf.Len() != 0 {
		t.Fatalf("expected no output below warn, got %s", buf.String())
	}
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	if _, err := New(&bytes.Buffer{}, "loud"); err == nil {
		t.Fatalf("expected error")
	}
}
