package http

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/probe-lab/go-envelope/envelope"
)

// Write sends resp to rw. Write failures are logged, as there is nobody left
// to report them to.
func Write(rw http.ResponseWriter, resp *envelope.Response) {
	if err := resp.Write(rw); err != nil {
		slog.Warn("Failed to write response", "err", err, "status", resp.Status)
	}
}

func Encode[T any](rw http.ResponseWriter, data T) {
	Write(rw, envelope.Success(data))
}

func EncodeMsg[T any](rw http.ResponseWriter, data T, msg string) {
	Write(rw, envelope.SuccessWithMessage(data, msg))
}

func EncodeErr(rw http.ResponseWriter, errMsg string) {
	Write(rw, envelope.Error(errMsg))
}

func EncodeErrCode(rw http.ResponseWriter, errMsg string, code int, status int) {
	Write(rw, envelope.ErrorWithCode(errMsg, code, status))
}

// NotFound replies with a 404 envelope.
func NotFound(rw http.ResponseWriter, r *http.Request) {
	EncodeErrCode(rw, fmt.Sprintf("no route for %s", r.URL.Path), http.StatusNotFound, http.StatusNotFound)
}

// MethodNotAllowed replies with a 405 envelope.
func MethodNotAllowed(rw http.ResponseWriter, r *http.Request) {
	EncodeErrCode(rw, fmt.Sprintf("method %s not allowed", r.Method), http.StatusMethodNotAllowed, http.StatusMethodNotAllowed)
}

func DecodeAndClose[T any](rc io.ReadCloser) (*envelope.Envelope[T], error) {
	env, err := envelope.Decode[T](rc)
	if err != nil {
		_ = rc.Close()
		return nil, err
	}
	if err := rc.Close(); err != nil {
		return env, fmt.Errorf("close reader: %w", err)
	}
	return env, nil
}
