package log

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *Config
		wantErr bool
	}{
		{name: "default", cfg: DefaultConfig(), wantErr: false},
		{name: "json", cfg: &Config{Level: "debug", Format: "json"}, wantErr: false},
		{name: "unknown level", cfg: &Config{Level: "loud", Format: "text"}, wantErr: true},
		{name: "unknown format", cfg: &Config{Level: "info", Format: "yaml"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := New(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Nil(t, logger)
				return
			}
			assert.NoError(t, err)
			assert.NotNil(t, logger)
		})
	}
}

func TestNew_requestID(t *testing.T) {
	buf := &bytes.Buffer{}
	logger, err := New(&Config{Level: "info", Format: "json", Output: buf})
	require.NoError(t, err)

	ctx := ContextWithRequestID(context.Background(), "req-1")
	logger.With("component", "test").InfoContext(ctx, "Served")

	record := map[string]any{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "req-1", record["request_id"])
	assert.Equal(t, "test", record["component"])
	assert.Equal(t, "Served", record["msg"])
}

func TestRequestIDFromContext(t *testing.T) {
	_, ok := RequestIDFromContext(context.Background())
	assert.False(t, ok)

	_, ok = RequestIDFromContext(ContextWithRequestID(context.Background(), ""))
	assert.False(t, ok)

	reqID, ok := RequestIDFromContext(ContextWithRequestID(context.Background(), "abc"))
	assert.True(t, ok)
	assert.Equal(t, "abc", reqID)
}
