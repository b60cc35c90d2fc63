package logging

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComponentLoggerAddsField(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "debug", Format: "json", Output: &buf})
	defer Init(Config{Level: "info"})

	l := Component("scoring")
	l.Info().Msg("hello")

	assert.Contains(t, buf.String(), `"component":"scoring"`)
	assert.Contains(t, buf.String(), `"message":"hello"`)
}

func TestCtxAttachesRequestID(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "info", Output: &buf})
	defer Init(Config{Level: "info"})

	id := NewRequestID()
	ctx := ContextWithRequestID(context.Background(), id)
	require.Equal(t, id, RequestIDFromContext(ctx))

	Ctx(ctx, Component("service")).Info().Msg("x")
	assert.Contains(t, buf.String(), id)
}

func TestParseLevel(t *testing.T) {
	tests := map[string]string{
		"debug":   "debug",
		"WARNING": "warn",
		"bogus":   "info",
	}
	for in, want := range tests {
		assert.Equal(t, want, parseLevel(in).String(), in)
	}
}
