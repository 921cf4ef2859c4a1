package fasthttp

import (
	"math"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/valyala/fasthttp"

	"github.com/probe-lab/go-envelope/envelope"
)

func TestRespond(t *testing.T) {
	tests := []struct {
		name       string
		respond    func(ctx *fasthttp.RequestCtx)
		wantStatus int
		wantBody   string
	}{
		{
			name:       "success",
			respond:    func(ctx *fasthttp.RequestCtx) { Success(ctx, 42) },
			wantStatus: http.StatusOK,
			wantBody:   `{"code":200,"data":42,"msg":"success"}`,
		},
		{
			name:       "success with message",
			respond:    func(ctx *fasthttp.RequestCtx) { SuccessWithMessage(ctx, map[string]bool{"ok": true}, "done") },
			wantStatus: http.StatusOK,
			wantBody:   `{"code":200,"data":{"ok":true},"msg":"done"}`,
		},
		{
			name:       "error",
			respond:    func(ctx *fasthttp.RequestCtx) { Error(ctx, "not found") },
			wantStatus: http.StatusInternalServerError,
			wantBody:   `{"code":500,"msg":"not found"}`,
		},
		{
			name:       "error with code",
			respond:    func(ctx *fasthttp.RequestCtx) { ErrorWithCode(ctx, "bad request", 4001, http.StatusBadRequest) },
			wantStatus: http.StatusBadRequest,
			wantBody:   `{"code":4001,"msg":"bad request"}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := &fasthttp.RequestCtx{}
			ctx.SetBodyString("stale")

			tt.respond(ctx)

			assert.Equal(t, tt.wantStatus, ctx.Response.StatusCode())
			assert.Equal(t, envelope.ContentTypeJSON, string(ctx.Response.Header.ContentType()))
			assert.Equal(t, tt.wantBody, string(ctx.Response.Body()))
		})
	}
}

func TestRespond_fallback(t *testing.T) {
	ctx := &fasthttp.RequestCtx{}

	Success(ctx, math.Inf(-1))

	assert.Equal(t, http.StatusInternalServerError, ctx.Response.StatusCode())
	assert.Equal(t, envelope.ContentTypeText, string(ctx.Response.Header.ContentType()))
	assert.NotEmpty(t, ctx.Response.Body())
}

func TestRespond_extraHeaders(t *testing.T) {
	resp := envelope.Success("x")
	resp.Header.Set("Cache-Control", "no-store")

	ctx := &fasthttp.RequestCtx{}
	Respond(ctx, resp)

	assert.Equal(t, "no-store", string(ctx.Response.Header.Peek("Cache-Control")))
	assert.Equal(t, envelope.ContentTypeJSON, string(ctx.Response.Header.ContentType()))
}
