package main

import (
	"math"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"

	ehttp "github.com/probe-lab/go-envelope/http"
)

type echoResponse struct {
	Query map[string][]string `json:"query"`
	User  string              `json:"user,omitempty"`
}

func newRouter(cfg *serveConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(
		ehttp.MiddlewareRequestID,
		ehttp.MiddlewareLogging,
		ehttp.MiddlewareMetric(otel.GetMeterProvider()),
		ehttp.MiddlewareTrace(otel.GetTracerProvider()),
		ehttp.MiddlewareRecover,
	)

	r.NotFound(ehttp.NotFound)
	r.MethodNotAllowed(ehttp.MethodNotAllowed)

	r.Get("/healthz", func(rw http.ResponseWriter, _ *http.Request) {
		ehttp.Encode(rw, map[string]string{"status": "ok"})
	})

	r.Route("/v1", func(r chi.Router) {
		if len(cfg.APIKeys) > 0 {
			r.Use(ehttp.MiddlewareAuthentication(cfg.APIKeys, cfg.APIUsers))
		}

		r.Get("/answer", func(rw http.ResponseWriter, _ *http.Request) {
			ehttp.Encode(rw, 42)
		})

		r.Get("/echo", func(rw http.ResponseWriter, req *http.Request) {
			user, _ := ehttp.UserFromContext(req.Context())
			msg := req.URL.Query().Get("msg")
			if msg == "" {
				msg = "echo"
			}
			ehttp.EncodeMsg(rw, echoResponse{Query: req.URL.Query(), User: user}, msg)
		})

		r.Get("/fail", func(rw http.ResponseWriter, _ *http.Request) {
			ehttp.EncodeErr(rw, "something went wrong")
		})

		r.Get("/teapot", func(rw http.ResponseWriter, _ *http.Request) {
			ehttp.EncodeErrCode(rw, "i'm a teapot", 4180, http.StatusTeapot)
		})

		r.Get("/broken", func(rw http.ResponseWriter, _ *http.Request) {
			ehttp.Encode(rw, map[string]float64{"ratio": math.NaN()})
		})

		r.Get("/panic", func(http.ResponseWriter, *http.Request) {
			panic("demo panic")
		})
	})

	return r
}
