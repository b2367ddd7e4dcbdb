package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected LogLevel
		zerolog  zerolog.Level
	}{
		{"debug", LevelDebug, zerolog.DebugLevel},
		{"DEBUG", LevelDebug, zerolog.DebugLevel},
		{" warning ", LevelWarn, zerolog.WarnLevel},
		{"warn", LevelWarn, zerolog.WarnLevel},
		{"error", LevelError, zerolog.ErrorLevel},
		{"info", LevelInfo, zerolog.InfoLevel},
		{"", LevelInfo, zerolog.InfoLevel},
		{"trace", LevelInfo, zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := ParseLevel(tt.input)
			if got != tt.expected {
				t.Errorf("ParseLevel(%q) = %q, want %q", tt.input, got, tt.expected)
			}
			if lvl := parseLevel(LogLevel(tt.input)); lvl != tt.zerolog {
				t.Errorf("parseLevel(%q) = %v, want %v", tt.input, lvl, tt.zerolog)
			}
		})
	}
}

func TestSetup_JSONFields(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := Setup(Config{Level: LevelInfo, Output: buf})

	logger.Info().Str("key", "GET /games?page=1&pageSize=24").Msg("Edge cache hit")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("Expected one JSON line, got %q: %v", buf.String(), err)
	}
	if line["service"] != "catalog-proxy" {
		t.Errorf("Expected service=catalog-proxy, got %v", line["service"])
	}
	if line["key"] != "GET /games?page=1&pageSize=24" {
		t.Errorf("Expected key field, got %v", line["key"])
	}
	if _, ok := line["time"]; !ok {
		t.Error("Expected a timestamp field")
	}
}

func TestSetup_Pretty(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := Setup(Config{Level: LevelInfo, Pretty: true, Output: buf})

	logger.Info().Msg("Catalog proxy listening")

	output := buf.String()
	if !strings.Contains(output, "Catalog proxy listening") {
		t.Errorf("Expected message in console output, got %q", output)
	}
	if strings.HasPrefix(strings.TrimSpace(output), "{") {
		t.Errorf("Expected console output, got JSON %q", output)
	}
}

func TestSetupNilOutput(t *testing.T) {
	logger := Setup(Config{Level: LevelError})
	logger.Debug().Msg("dropped")
}

func TestNewLogger_LevelFiltering(t *testing.T) {
	buf := &bytes.Buffer{}
	Setup(Config{Level: LevelWarn, Output: buf})

	logger := NewLogger("edge-proxy")
	logger.Debug().Msg("Serving stale entry, revalidating")
	logger.Info().Msg("Cached response")
	logger.Warn().Msg("Edge cache write failed")

	output := buf.String()
	if strings.Contains(output, "revalidating") || strings.Contains(output, "Cached response") {
		t.Errorf("Expected debug and info lines to be filtered at warn, got %q", output)
	}
	if !strings.Contains(output, "Edge cache write failed") {
		t.Errorf("Expected warn line, got %q", output)
	}
	if !strings.Contains(output, `"component":"edge-proxy"`) {
		t.Errorf("Expected component field, got %q", output)
	}
}
