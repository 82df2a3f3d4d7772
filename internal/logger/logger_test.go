package logger

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestNewWithWriter(t *testing.T) {
	buf := &bytes.Buffer{}
	log := NewWithWriter(buf)

	log.Info().Str("budget_id", "BDG-2024-1").Msg("test message")

	out := buf.String()
	if !strings.Contains(out, "test message") {
		t.Errorf("expected message in output, got: %s", out)
	}
	if !strings.Contains(out, `"budget_id":"BDG-2024-1"`) {
		t.Errorf("expected budget_id field in output, got: %s", out)
	}
	if !strings.Contains(out, `"service":"anggaran"`) {
		t.Errorf("expected service field in output, got: %s", out)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"warn", zerolog.WarnLevel},
		{"", zerolog.InfoLevel},
		{"bogus", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestFromContext(t *testing.T) {
	buf := &bytes.Buffer{}
	ctx := WithContext(context.Background(), NewWithWriter(buf))

	FromContext(ctx, Nop()).Info().Msg("from ctx")
	if buf.Len() == 0 {
		t.Error("expected output from context logger")
	}
}

func TestFromContext_Fallback(t *testing.T) {
	buf := &bytes.Buffer{}
	log := FromContext(context.Background(), NewWithWriter(buf))
	log.Info().Msg("fallback")
	if !strings.Contains(buf.String(), "fallback") {
		t.Error("expected fallback logger to be used")
	}
}
