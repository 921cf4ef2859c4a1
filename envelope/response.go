package envelope

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/probe-lab/go-envelope/ptr"
)

const (
	ContentTypeJSON = "application/json; charset=utf-8"
	ContentTypeText = "text/plain; charset=utf-8"
)

const fallbackMessage = "failed to serialize response"

// Response is a fully built HTTP response. Err is non-nil only if the body
// is the plain-text fallback that replaced an envelope which could not be
// rendered.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
	Err    error
}

var _ http.Handler = (*Response)(nil)

// Success responds with HTTP 200 and {"code":200,"data":data,"msg":"success"}.
func Success[T any](data T) *Response {
	return SuccessWithMessage(data, MsgSuccess)
}

// SuccessWithMessage is like [Success] but carries msg instead of "success".
func SuccessWithMessage[T any](data T, msg string) *Response {
	return New(http.StatusOK, Envelope[T]{
		Code: CodeSuccess,
		Data: ptr.Of(data),
		Msg:  ptr.Of(msg),
	})
}

// Error responds with HTTP 500 and {"code":500,"msg":msg}.
func Error(msg string) *Response {
	return ErrorWithCode(msg, CodeError, http.StatusInternalServerError)
}

// ErrorWithCode responds with the given HTTP status and {"code":code,"msg":msg}.
// The application code and the HTTP status are independent of each other.
func ErrorWithCode(msg string, code int, status int) *Response {
	return New(status, Envelope[any]{
		Code: code,
		Msg:  ptr.Of(msg),
	})
}

// New renders env under the given HTTP status. If the envelope cannot be
// serialized or the status cannot carry a body, the result is a plain-text
// 500 describing the problem.
func New[T any](status int, env Envelope[T]) *Response {
	if !bodyAllowed(status) {
		return fallback(invalidStatusError(status))
	}

	body, err := env.Marshal()
	if err != nil {
		return fallback(err)
	}

	return &Response{
		Status: status,
		Header: http.Header{"Content-Type": []string{ContentTypeJSON}},
		Body:   body,
	}
}

func fallback(err error) *Response {
	slog.Error("Failed to render response envelope", "err", err)
	fallbackCounter().Add(context.Background(), 1, metric.WithAttributes(attribute.String("reason", reason(err))))

	msg := err.Error()
	if msg == "" {
		msg = fallbackMessage
	}

	return &Response{
		Status: http.StatusInternalServerError,
		Header: http.Header{"Content-Type": []string{ContentTypeText}},
		Body:   []byte(msg),
		Err:    err,
	}
}

// ContentType returns the Content-Type header of the response.
func (r *Response) ContentType() string {
	return r.Header.Get("Content-Type")
}

// Write copies the headers, status and body of r to rw.
func (r *Response) Write(rw http.ResponseWriter) error {
	h := rw.Header()
	for key, values := range r.Header {
		h.Del(key)
		for _, v := range values {
			h.Add(key, v)
		}
	}

	rw.WriteHeader(r.Status)

	if _, err := rw.Write(r.Body); err != nil {
		return fmt.Errorf("write response body: %w", err)
	}

	return nil
}

func (r *Response) ServeHTTP(rw http.ResponseWriter, req *http.Request) {
	if err := r.Write(rw); err != nil {
		slog.Warn("Failed to write response", "err", err, "path", req.URL.Path)
	}
}

// fallbackCounter counts responses that degraded to the plain-text fallback.
// It is bound to the global meter provider, which forwards to whichever
// provider gets installed later on.
var fallbackCounter = sync.OnceValue(func() metric.Int64Counter {
	meter := otel.GetMeterProvider().Meter("envelope")
	counter, err := meter.Int64Counter("envelope_fallbacks_total", metric.WithDescription("Total number of responses that could not be rendered as an envelope."))
	if err != nil {
		slog.Warn("Failed to create fallback counter", "err", err)
		return noop.Int64Counter{}
	}
	return counter
})

// bodyAllowed reports whether status is a final HTTP status that may carry a
// response body. Informational statuses are not final and net/http would
// commit an implicit 200 on the first body write.
func bodyAllowed(status int) bool {
	switch {
	case status < 200 || status > 999:
		return false
	case status == http.StatusNoContent, status == http.StatusNotModified:
		return false
	default:
		return true
	}
}

type invalidStatusError int

func (e invalidStatusError) Error() string {
	return fmt.Sprintf("invalid HTTP status code %d", int(e))
}

func reason(err error) string {
	if _, ok := err.(invalidStatusError); ok {
		return "status"
	}
	return "serialization"
}
