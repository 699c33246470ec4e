package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestNewLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(Config{Level: "debug", Format: "json"}, "twscan", &buf)
	logger.Debug().Str("component", "test").Msg("hello")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("应输出 JSON: %v (%s)", err, buf.String())
	}
	if entry["app"] != "twscan" || entry["message"] != "hello" || entry["level"] != "debug" {
		t.Fatalf("日志字段不正确: %v", entry)
	}
}

func TestNewLoggerLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(Config{Level: "warn"}, "", &buf)
	logger.Info().Msg("dropped")
	if buf.Len() != 0 {
		t.Fatalf("info 级别应被过滤: %s", buf.String())
	}
}

func TestNewLoggerUnknownLevelDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(Config{Level: "verbose"}, "", &buf)
	logger.Debug().Msg("dropped")
	logger.Info().Msg("kept")
	if !strings.Contains(buf.String(), "kept") || strings.Contains(buf.String(), "dropped") {
		t.Fatalf("未知级别应回退到 info: %s", buf.String())
	}
}

func TestNewLoggerConsole(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(Config{Format: "console"}, "twscan", &buf)
	logger.Info().Msg("pretty")
	if strings.HasPrefix(buf.String(), "{") {
		t.Fatalf("console 格式不应输出 JSON: %s", buf.String())
	}
}
