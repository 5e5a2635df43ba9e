package logging_test

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/omochice/syncws/internal/logging"
)

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer

	logger, err := logging.New(logging.Config{Level: "debug", Format: "json"}, &buf)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	logger.Debug().Str("session", "abc").Msg("hello")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to decode log line %q: %v", buf.String(), err)
	}
	if entry["message"] != "hello" {
		t.Errorf("message = %v, want %q", entry["message"], "hello")
	}
	if entry["session"] != "abc" {
		t.Errorf("session = %v, want %q", entry["session"], "abc")
	}
}

func TestNew_LevelFilters(t *testing.T) {
	var buf bytes.Buffer

	logger, err := logging.New(logging.Config{Level: "WARN", Format: "json"}, &buf)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	logger.Info().Msg("quiet")
	if buf.Len() != 0 {
		t.Errorf("expected info to be filtered, got %q", buf.String())
	}

	logger.Warn().Msg("loud")
	if !strings.Contains(buf.String(), "loud") {
		t.Errorf("expected warn entry, got %q", buf.String())
	}
}

func TestNew_Console(t *testing.T) {
	var buf bytes.Buffer

	logger, err := logging.New(logging.Config{}, &buf)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	logger.Info().Msg("connected")
	if !strings.Contains(buf.String(), "connected") {
		t.Errorf("console output = %q, want it to contain %q", buf.String(), "connected")
	}
}

func TestNew_Invalid(t *testing.T) {
	tests := []struct {
		name string
		cfg  logging.Config
	}{
		{name: "level", cfg: logging.Config{Level: "loud"}},
		{name: "format", cfg: logging.Config{Format: "xml"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := logging.New(tt.cfg, &bytes.Buffer{}); err == nil {
				t.Error("expected error")
			}
		})
	}
}
