package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger_WritesJSONWithFields(t *testing.T) {
	var buf bytes.Buffer
	l := New(Options{Output: &buf, Level: LevelInfo, Format: FormatJSON})

	l.With(Component("ledger")).Info("lesson completed",
		StudentID("s-1"),
		LessonID("lesson1"),
		Points(10),
		Err(errors.New("boom")),
	)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "lesson completed", rec["msg"])
	assert.Equal(t, "INFO", rec["level"])
	assert.Equal(t, "ledger", rec["component"])
	assert.Equal(t, "s-1", rec["student_id"])
	assert.Equal(t, "lesson1", rec["lesson_id"])
	assert.EqualValues(t, 10, rec["points"])
	assert.Equal(t, "boom", rec["error"])
}

func TestLogger_RespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New(Options{Output: &buf, Level: LevelWarn, Format: FormatText})

	l.Info("hidden")
	assert.Empty(t, buf.String())

	l.Warn("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
	}{
		{"debug", LevelDebug},
		{" INFO ", LevelInfo},
		{"warning", LevelWarn},
		{"error", LevelError},
		{"nonsense", LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.in))
		})
	}
}

func TestContextRoundTrip(t *testing.T) {
	l := New(Options{Output: &bytes.Buffer{}})
	ctx := WithContext(context.Background(), l)
	assert.Same(t, l, FromContext(ctx))
	assert.NotNil(t, FromContext(context.Background()))
}
