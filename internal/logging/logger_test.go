package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
)

func TestNew_JSONFormatIncludesRequestID(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "info", "json")

	ctx := context.WithValue(context.Background(), middleware.RequestIDKey, "req-42")
	logger.InfoContext(ctx, "dashboard loaded", "user_id", "u1")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("decode log line: %v (%s)", err, buf.String())
	}
	if record["request_id"] != "req-42" {
		t.Errorf("expected request_id req-42, got %v", record["request_id"])
	}
	if record["user_id"] != "u1" {
		t.Errorf("expected user_id u1, got %v", record["user_id"])
	}
}

func TestNew_OmitsRequestIDWithoutContext(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "info", "text")

	logger.Info("no request")

	if strings.Contains(buf.String(), "request_id") {
		t.Errorf("expected no request_id attribute, got %q", buf.String())
	}
}

func TestNew_RespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "warn", "text")

	logger.Info("hidden")
	if buf.Len() != 0 {
		t.Errorf("expected info to be filtered at warn level, got %q", buf.String())
	}

	logger.Warn("shown")
	if !strings.Contains(buf.String(), "shown") {
		t.Errorf("expected warn record, got %q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"error":   slog.LevelError,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestRequestIDHandler_WithAttrsKeepsWrapping(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "info", "json").With("component", "follows")

	ctx := context.WithValue(context.Background(), middleware.RequestIDKey, "req-7")
	logger.InfoContext(ctx, "added")

	if !strings.Contains(buf.String(), `"request_id":"req-7"`) {
		t.Errorf("expected request_id after With, got %q", buf.String())
	}
	if !strings.Contains(buf.String(), `"component":"follows"`) {
		t.Errorf("expected component attr, got %q", buf.String())
	}
}
