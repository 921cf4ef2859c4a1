// Package fasthttp writes response envelopes through a *fasthttp.RequestCtx.
package fasthttp

import (
	"github.com/valyala/fasthttp"

	"github.com/probe-lab/go-envelope/envelope"
)

// Respond writes resp to ctx, replacing any previously set body.
func Respond(ctx *fasthttp.RequestCtx, resp *envelope.Response) {
	for key, values := range resp.Header {
		if key == "Content-Type" {
			continue
		}
		ctx.Response.Header.Del(key)
		for _, v := range values {
			ctx.Response.Header.Add(key, v)
		}
	}

	ctx.SetStatusCode(resp.Status)
	ctx.SetContentType(resp.ContentType())
	ctx.SetBody(resp.Body)
}

func Success[T any](ctx *fasthttp.RequestCtx, data T) {
	Respond(ctx, envelope.Success(data))
}

func SuccessWithMessage[T any](ctx *fasthttp.RequestCtx, data T, msg string) {
	Respond(ctx, envelope.SuccessWithMessage(data, msg))
}

func Error(ctx *fasthttp.RequestCtx, msg string) {
	Respond(ctx, envelope.Error(msg))
}

func ErrorWithCode(ctx *fasthttp.RequestCtx, msg string, code int, status int) {
	Respond(ctx, envelope.ErrorWithCode(msg, code, status))
}
