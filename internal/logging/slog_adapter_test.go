// Catalogus - Media Library Synchronization Engine
// Copyright 2026 Catalogus Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/catalogus/catalogus

package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func newBufferedSlogger(buf *bytes.Buffer) *slog.Logger {
	handler := &SlogHandler{logger: zerolog.New(buf)}
	return slog.New(handler)
}

func TestSlogHandlerLevels(t *testing.T) {
	tests := []struct {
		name  string
		log   func(l *slog.Logger)
		level string
	}{
		{"debug", func(l *slog.Logger) { l.Debug("msg") }, "debug"},
		{"info", func(l *slog.Logger) { l.Info("msg") }, "info"},
		{"warn", func(l *slog.Logger) { l.Warn("msg") }, "warn"},
		{"error", func(l *slog.Logger) { l.Error("msg") }, "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			zerolog.SetGlobalLevel(zerolog.TraceLevel)
			tt.log(newBufferedSlogger(&buf))

			if !strings.Contains(buf.String(), `"level":"`+tt.level+`"`) {
				t.Errorf("expected level %q in output: %s", tt.level, buf.String())
			}
		})
	}
}

func TestSlogHandlerAttrs(t *testing.T) {
	var buf bytes.Buffer
	logger := newBufferedSlogger(&buf)

	logger.Info("sync done",
		slog.String("subscription", "sub-1"),
		slog.Int64("items", 42),
		slog.Bool("fast", true),
	)

	output := buf.String()
	for _, want := range []string{`"subscription":"sub-1"`, `"items":42`, `"fast":true`, "sync done"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output: %s", want, output)
		}
	}
}

func TestSlogHandlerWithAttrs(t *testing.T) {
	var buf bytes.Buffer
	handler := &SlogHandler{logger: zerolog.New(&buf)}

	child := handler.WithAttrs([]slog.Attr{slog.String("service", "observer")})
	slog.New(child).Info("tick")

	if !strings.Contains(buf.String(), `"service":"observer"`) {
		t.Errorf("expected pre-configured attr in output: %s", buf.String())
	}
}

func TestSlogHandlerWithGroup(t *testing.T) {
	var buf bytes.Buffer
	handler := &SlogHandler{logger: zerolog.New(&buf)}

	grouped := handler.WithGroup("supervisor")
	slog.New(grouped).Info("service started", slog.String("name", "http"))

	if !strings.Contains(buf.String(), `"supervisor.name":"http"`) {
		t.Errorf("expected group-prefixed key in output: %s", buf.String())
	}
}

func TestSlogHandlerWithEmptyGroup(t *testing.T) {
	handler := &SlogHandler{logger: zerolog.New(&bytes.Buffer{})}

	if got := handler.WithGroup(""); got != handler {
		t.Error("expected WithGroup(\"\") to return the same handler")
	}
}

func TestSlogHandlerEnabled(t *testing.T) {
	handler := &SlogHandler{logger: zerolog.New(&bytes.Buffer{}).Level(zerolog.WarnLevel)}

	if handler.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("expected debug to be disabled at warn level")
	}
	if !handler.Enabled(context.Background(), slog.LevelError) {
		t.Error("expected error to be enabled at warn level")
	}
}

func TestNewSlogLogger(t *testing.T) {
	if NewSlogLogger() == nil {
		t.Fatal("NewSlogLogger() = nil, want non-nil")
	}
}
