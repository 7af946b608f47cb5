package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestSlogJSONCarriesFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(Config{Level: "debug", Format: "json"}, &buf).With(String("component", "engine"))

	log.Info(context.Background(), "shipment delivered",
		Int("received", 3),
		Float("latency", 2.5),
		Err(errors.New("late")),
	)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	if entry["msg"] != "shipment delivered" || entry["component"] != "engine" {
		t.Fatalf("unexpected entry %v", entry)
	}
	if entry["received"] != float64(3) || entry["latency"] != 2.5 || entry["error"] != "late" {
		t.Fatalf("missing fields in %v", entry)
	}
}

func TestSlogLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(Config{Level: "warn"}, &buf)

	log.Info(context.Background(), "hidden")
	log.Warn(context.Background(), "shown")

	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, "shown") {
		t.Fatalf("level filtering failed: %q", out)
	}
}

func TestZapBackend(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := NewZap(zap.New(core)).With(String("segment", "ab"))

	log.Warn(context.Background(), "capacity exceeded", Int("load", 12))

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	ctx := entries[0].ContextMap()
	if entries[0].Message != "capacity exceeded" || ctx["segment"] != "ab" || ctx["load"] != int64(12) {
		t.Fatalf("unexpected entry %+v", entries[0])
	}
	if NewZap(nil) == nil {
		t.Fatalf("NewZap(nil) should return a usable logger")
	}
}

func TestRequestLoggerReusesIncomingID(t *testing.T) {
	ctx := ContextWithRequestID(context.Background(), "req-1")
	ctx, _ = WithRequestLogger(ctx, nil)
	if got := RequestIDFromContext(ctx); got != "req-1" {
		t.Fatalf("expected req-1, got %q", got)
	}

	fresh, _ := WithRequestLogger(context.Background(), nil)
	if RequestIDFromContext(fresh) == "" {
		t.Fatalf("expected a generated request id")
	}
}

func TestFromContextFallback(t *testing.T) {
	fallback := Noop()
	if FromContext(context.Background(), fallback) != fallback {
		t.Fatalf("expected fallback logger")
	}

	var buf bytes.Buffer
	stored := NewWithWriter(Config{}, &buf)
	ctx := ContextWithLogger(context.Background(), stored)
	FromContext(ctx, fallback).Info(ctx, "from context")
	if !strings.Contains(buf.String(), "from context") {
		t.Fatalf("expected stored logger to be used, got %q", buf.String())
	}
}
