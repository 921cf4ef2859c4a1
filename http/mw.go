package http

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/probe-lab/go-envelope/log"
)

// RequestIDHeader is the name of the HTTP Header which contains the request id.
const (
	RequestIDHeader = "X-Request-Id"
	ApiKeyHeader    = "X-API-Key"
)

type Middleware func(http.Handler) http.Handler

type ResponseWriter struct {
	writer      http.ResponseWriter
	flusher     http.Flusher
	status      int
	written     int
	wroteHeader bool
	user        string
}

var (
	_ http.ResponseWriter = (*ResponseWriter)(nil)
	_ http.Flusher        = (*ResponseWriter)(nil)
)

func (w *ResponseWriter) Header() http.Header {
	return w.writer.Header()
}

func (w *ResponseWriter) WriteHeader(statusCode int) {
	w.writer.WriteHeader(statusCode)
	w.status = statusCode
	w.wroteHeader = true
}

func (w *ResponseWriter) Write(p []byte) (int, error) {
	w.wroteHeader = true
	n, err := w.writer.Write(p)
	w.written += n
	return n, err
}

func (w *ResponseWriter) Flush() {
	w.flusher.Flush()
}

func (w *ResponseWriter) Status() int {
	return w.status
}

func (w *ResponseWriter) GroupedStatus() int {
	return w.status / 100 * 100
}

func (w *ResponseWriter) User() string {
	return w.user
}

func WrapResponseWriter(rw http.ResponseWriter) (*ResponseWriter, error) {
	wrapped, ok := rw.(*ResponseWriter)
	if ok {
		return wrapped, nil
	}

	flusher, ok := rw.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("ResponseWriter does not implement http.Flusher")
	}

	return &ResponseWriter{
		writer:  rw,
		flusher: flusher,
		status:  http.StatusOK,
	}, nil
}

func MiddlewareChain(mws ...Middleware) Middleware {
	return func(next http.Handler) http.Handler {
		for i := len(mws) - 1; i >= 0; i-- {
			next = mws[i](next)
		}
		return next
	}
}

// MiddlewareRecover turns handler panics into a 500 error envelope. Panic
// logs are limited to one per second.
func MiddlewareRecover(next http.Handler) http.Handler {
	panicsCounter, err := otel.GetMeterProvider().Meter("http.server").Int64Counter("http_req_panics_recovered_total", metric.WithDescription("Total number of HTTP requests recovered from internal panic."))
	if err != nil {
		panic(fmt.Errorf("init panics counter: %w", err))
	}

	limiter := rate.NewLimiter(rate.Every(time.Second), 1)

	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		wrapped, err := WrapResponseWriter(rw)
		if err != nil {
			EncodeErr(rw, err.Error())
			return
		}

		defer func() {
			rec := recover()
			if rec == nil {
				return
			}

			// the server relies on this sentinel to abort the connection
			if rec == http.ErrAbortHandler {
				panic(rec)
			}

			ctx := r.Context()
			panicsCounter.Add(ctx, 1)
			if limiter.Allow() {
				slog.ErrorContext(ctx, "Recovered panic", "recover", rec, "stack", string(debug.Stack()))
			}

			if !wrapped.wroteHeader {
				EncodeErr(wrapped, "internal server error")
			}
		}()

		next.ServeHTTP(wrapped, r)
	})
}

func MiddlewareRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}

		rw.Header().Set(RequestIDHeader, requestID)

		ctx := log.ContextWithRequestID(r.Context(), requestID)
		next.ServeHTTP(rw, r.WithContext(ctx))
	})
}

func MiddlewareLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, req *http.Request) {
		start := time.Now()

		wrapped, err := WrapResponseWriter(rw)
		if err != nil {
			EncodeErr(rw, err.Error())
			return
		}

		next.ServeHTTP(wrapped, req)

		var logLevel slog.Level
		switch {
		case 400 <= wrapped.status && wrapped.status < 500:
			logLevel = slog.LevelWarn
		case 500 <= wrapped.status:
			logLevel = slog.LevelError
		default:
			logLevel = slog.LevelInfo
		}

		slog.Default().Log(req.Context(), logLevel, "Served",
			"method", req.Method,
			"path", req.URL.Path,
			"time", time.Since(start),
			"status", wrapped.status,
			"size", wrapped.written,
			"user", wrapped.user,
		)
	})
}

func MiddlewareMetric(provider metric.MeterProvider) Middleware {
	meter := provider.Meter("envelope")

	requestCount, err := meter.Int64Counter("requests")
	if err != nil {
		panic(fmt.Errorf("init requests int64 counter: %w", err))
	}

	inflight, err := meter.Int64UpDownCounter("in_flight")
	if err != nil {
		panic(fmt.Errorf("init in_flight int64 counter: %w", err))
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			inflight.Add(ctx, 1)
			defer inflight.Add(ctx, -1)

			wrapped, err := WrapResponseWriter(rw)
			if err != nil {
				EncodeErr(rw, err.Error())
				return
			}

			next.ServeHTTP(wrapped, r)

			requestCount.Add(ctx, 1, metric.WithAttributes(attribute.Int("status", wrapped.GroupedStatus())))
		})
	}
}

// MiddlewareTrace starts a server span per request and marks it as failed
// for 5xx responses.
func MiddlewareTrace(provider trace.TracerProvider) Middleware {
	tracer := provider.Tracer("envelope")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			ctx, span := tracer.Start(r.Context(), r.Method+" "+r.URL.Path,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					attribute.String("http.request.method", r.Method),
					attribute.String("url.path", r.URL.Path),
				),
			)
			defer span.End()

			wrapped, err := WrapResponseWriter(rw)
			if err != nil {
				span.RecordError(err)
				EncodeErr(rw, err.Error())
				return
			}

			next.ServeHTTP(wrapped, r.WithContext(ctx))

			span.SetAttributes(attribute.Int("http.response.status_code", wrapped.status))
			if wrapped.status >= 500 {
				span.SetStatus(codes.Error, http.StatusText(wrapped.status))
			}
		})
	}
}

// MiddlewareAuthentication only lets requests through that carry one of the
// given keys in the X-API-Key header. users[i] names the owner of keys[i] and
// is attached to the log line of the request.
func MiddlewareAuthentication(keys []string, users []string) Middleware {
	creds := make([]credential, len(keys))
	for i, key := range keys {
		creds[i] = credential{key: []byte(key)}
		if i < len(users) {
			creds[i].user = users[i]
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, req *http.Request) {
			key := req.Header.Get(ApiKeyHeader)
			if key == "" {
				EncodeErrCode(rw, fmt.Sprintf("please set the %s header", ApiKeyHeader), http.StatusUnauthorized, http.StatusUnauthorized)
				return
			}

			user, found := lookupCredential(creds, key)
			if !found {
				EncodeErrCode(rw, "unrecognized API key", http.StatusUnauthorized, http.StatusUnauthorized)
				return
			}

			wrapped, err := WrapResponseWriter(rw)
			if err != nil {
				EncodeErr(rw, err.Error())
				return
			}

			wrapped.user = user

			next.ServeHTTP(wrapped, req.WithContext(context.WithValue(req.Context(), userCtxKey{}, user)))
		})
	}
}

type credential struct {
	key  []byte
	user string
}

// lookupCredential compares key against every configured key in constant
// time and does not stop at the first match.
func lookupCredential(creds []credential, key string) (string, bool) {
	given := []byte(key)
	user, found := "", false
	for _, c := range creds {
		if subtle.ConstantTimeCompare(c.key, given) == 1 && !found {
			user, found = c.user, true
		}
	}
	return user, found
}

type userCtxKey struct{}

// UserFromContext returns the user that MiddlewareAuthentication resolved
// for the request.
func UserFromContext(ctx context.Context) (string, bool) {
	user, ok := ctx.Value(userCtxKey{}).(string)
	return user, ok
}
