// Package gin writes response envelopes through a *gin.Context.
package gin

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/probe-lab/go-envelope/envelope"
)

// Respond writes resp to the context.
func Respond(c *gin.Context, resp *envelope.Response) {
	h := c.Writer.Header()
	for key, values := range resp.Header {
		h.Del(key)
		for _, v := range values {
			h.Add(key, v)
		}
	}
	c.Data(resp.Status, resp.ContentType(), resp.Body)
}

// AbortWith writes resp and stops the remaining handlers of the chain.
func AbortWith(c *gin.Context, resp *envelope.Response) {
	c.Abort()
	Respond(c, resp)
}

func Success[T any](c *gin.Context, data T) {
	Respond(c, envelope.Success(data))
}

func SuccessWithMessage[T any](c *gin.Context, data T, msg string) {
	Respond(c, envelope.SuccessWithMessage(data, msg))
}

func Error(c *gin.Context, msg string) {
	Respond(c, envelope.Error(msg))
}

func ErrorWithCode(c *gin.Context, msg string, code int, status int) {
	Respond(c, envelope.ErrorWithCode(msg, code, status))
}

// ErrorHandler replies with an error envelope carrying the last error that
// handlers attached via c.Error, unless a response was already written.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		err := c.Errors.Last().Err
		slog.ErrorContext(c.Request.Context(), "Request error", "err", err, "path", c.FullPath())
		Error(c, err.Error())
	}
}

// Recovery turns panics into a 500 error envelope.
func Recovery() gin.HandlerFunc {
	return gin.CustomRecoveryWithWriter(nil, func(c *gin.Context, rec any) {
		slog.ErrorContext(c.Request.Context(), "Recovered panic", "recover", rec, "path", c.FullPath())
		if c.Writer.Written() {
			c.Abort()
			return
		}
		AbortWith(c, envelope.Error("internal server error"))
	})
}
