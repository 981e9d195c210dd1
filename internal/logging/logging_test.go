package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	log, err := New("debug", "json", &buf)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if log.GetLevel() != logrus.DebugLevel {
		t.Errorf("level = %v, want debug", log.GetLevel())
	}
	log.WithFields(Fields{"source": "pleiades"}).Info("check completed")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("unmarshal %q: %v", buf.String(), err)
	}
	if entry["msg"] != "check completed" || entry["source"] != "pleiades" {
		t.Errorf("entry = %v", entry)
	}
}

func TestNew_Defaults(t *testing.T) {
	var buf bytes.Buffer
	log, err := New("", "", &buf)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if log.GetLevel() != logrus.InfoLevel {
		t.Errorf("level = %v, want info", log.GetLevel())
	}
	log.Debug("hidden")
	log.Info("shown")
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown") {
		t.Errorf("output = %q", buf.String())
	}
}

func TestNew_Invalid(t *testing.T) {
	tests := []struct {
		name, level, format string
	}{
		{"level", "loud", "text"},
		{"format", "info", "xml"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.level, tt.format, &bytes.Buffer{}); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}
