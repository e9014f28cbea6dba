package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/abhisek/retain/internal/config"
)

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewWithOutput(config.LogConfig{Level: "debug", Format: "json"}, &buf)
	if err != nil {
		t.Fatalf("NewWithOutput: %v", err)
	}
	if log.GetLevel() != logrus.DebugLevel {
		t.Errorf("level = %s, want debug", log.GetLevel())
	}
	log.WithField("record_id", "r1").Info("replayed")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v (%q)", err, buf.String())
	}
	if entry["record_id"] != "r1" || entry["msg"] != "replayed" {
		t.Errorf("entry = %v", entry)
	}
}

func TestNew_Text(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewWithOutput(config.LogConfig{Level: "info", Format: "text"}, &buf)
	if err != nil {
		t.Fatalf("NewWithOutput: %v", err)
	}
	log.Debug("hidden")
	log.Info("shown")
	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, "shown") {
		t.Errorf("output = %q", out)
	}
}

func TestNew_Invalid(t *testing.T) {
	tests := []config.LogConfig{
		{Level: "loud"},
		{Level: "info", Format: "xml"},
	}
	for _, cfg := range tests {
		if _, err := NewWithOutput(cfg, &bytes.Buffer{}); err == nil {
			t.Errorf("NewWithOutput(%+v): expected error", cfg)
		}
	}
}
