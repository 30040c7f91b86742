package observability

import (
	"context"
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		want  zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"DEBUG", zapcore.DebugLevel},
		{"  warn  ", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"info", zapcore.InfoLevel},
		{"", zapcore.InfoLevel},
		{"bogus", zapcore.InfoLevel},
	}

	for _, tt := range tests {
		if got := parseLevel(tt.input); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestNewLogger(t *testing.T) {
	t.Parallel()

	logger, err := NewLogger("debug")
	if err != nil {
		t.Fatalf("NewLogger() unexpected error: %v", err)
	}
	if logger == nil {
		t.Fatal("NewLogger() returned nil logger")
	}
}

func TestCorrelationIDRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	if got := CorrelationIDFrom(ctx); got != "" {
		t.Fatalf("expected empty correlation id, got %q", got)
	}

	ctx = WithCorrelationID(ctx, "abc-123")
	if got := CorrelationIDFrom(ctx); got != "abc-123" {
		t.Fatalf("CorrelationIDFrom() = %q, want abc-123", got)
	}

	same := WithCorrelationID(context.Background(), "")
	if got := CorrelationIDFrom(same); got != "" {
		t.Fatalf("expected empty id preserved, got %q", got)
	}
}
