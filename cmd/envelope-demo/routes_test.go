package main

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/probe-lab/go-envelope/envelope"
	ehttp "github.com/probe-lab/go-envelope/http"
)

func TestRouter(t *testing.T) {
	slog.SetLogLoggerLevel(slog.LevelError + 1)

	r := newRouter(defaultServeConfig())

	tests := []struct {
		method     string
		path       string
		wantStatus int
		wantType   string
		wantBody   string
	}{
		{http.MethodGet, "/healthz", http.StatusOK, envelope.ContentTypeJSON, `{"code":200,"data":{"status":"ok"},"msg":"success"}`},
		{http.MethodGet, "/v1/answer", http.StatusOK, envelope.ContentTypeJSON, `{"code":200,"data":42,"msg":"success"}`},
		{http.MethodGet, "/v1/echo?msg=hi", http.StatusOK, envelope.ContentTypeJSON, `{"code":200,"data":{"query":{"msg":["hi"]}},"msg":"hi"}`},
		{http.MethodGet, "/v1/fail", http.StatusInternalServerError, envelope.ContentTypeJSON, `{"code":500,"msg":"something went wrong"}`},
		{http.MethodGet, "/v1/teapot", http.StatusTeapot, envelope.ContentTypeJSON, `{"code":4180,"msg":"i'm a teapot"}`},
		{http.MethodGet, "/v1/panic", http.StatusInternalServerError, envelope.ContentTypeJSON, `{"code":500,"msg":"internal server error"}`},
		{http.MethodGet, "/nope", http.StatusNotFound, envelope.ContentTypeJSON, `{"code":404,"msg":"no route for /nope"}`},
		{http.MethodPost, "/healthz", http.StatusMethodNotAllowed, envelope.ContentTypeJSON, `{"code":405,"msg":"method POST not allowed"}`},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantType, rec.Header().Get("Content-Type"))
			assert.Equal(t, tt.wantBody, rec.Body.String())
			assert.NotEmpty(t, rec.Header().Get(ehttp.RequestIDHeader))
		})
	}
}

func TestRouter_broken(t *testing.T) {
	slog.SetLogLoggerLevel(slog.LevelError + 1)

	rec := httptest.NewRecorder()
	newRouter(defaultServeConfig()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/broken", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, envelope.ContentTypeText, rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "NaN")
}

func TestRouter_authentication(t *testing.T) {
	slog.SetLogLoggerLevel(slog.LevelError + 1)

	cfg := defaultServeConfig()
	cfg.APIKeys = []string{"secret"}
	cfg.APIUsers = []string{"alice"}
	r := newRouter(cfg)

	t.Run("health stays public", func(t *testing.T) {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("missing key", func(t *testing.T) {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/answer", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, `{"code":401,"msg":"please set the X-API-Key header"}`, rec.Body.String())
	})

	t.Run("valid key", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v1/echo", nil)
		req.Header.Set(ehttp.ApiKeyHeader, "secret")
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		env, err := envelope.Decode[echoResponse](rec.Body)
		require.NoError(t, err)
		assert.Equal(t, "alice", env.Data.User)
		assert.Equal(t, "echo", env.Message())
	})
}

func TestServeConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfgFn   func() *serveConfig
		wantErr bool
	}{
		{
			name:    "default",
			cfgFn:   defaultServeConfig,
			wantErr: false,
		},
		{
			name:    "nil",
			cfgFn:   func() *serveConfig { return nil },
			wantErr: true,
		},
		{
			name: "port out of range",
			cfgFn: func() *serveConfig {
				cfg := defaultServeConfig()
				cfg.Port = 65536
				return cfg
			},
			wantErr: true,
		},
		{
			name: "more users than keys",
			cfgFn: func() *serveConfig {
				cfg := defaultServeConfig()
				cfg.APIUsers = []string{"alice"}
				return cfg
			},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.wantErr {
				assert.Error(t, tt.cfgFn().Validate())
			} else {
				assert.NoError(t, tt.cfgFn().Validate())
			}
		})
	}
}
