// Package api configures and exposes the HTTP server, routes,
// metrics, docs and related middleware for the QR scan service.
package api

import (
	_ "embed"
	"fmt"
	"net/http"
	"qrscanner/internal/api/handler"
	"qrscanner/internal/config"
	"qrscanner/pkg/controller"
	"qrscanner/pkg/pagegroup"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/swaggest/swgui/v5emb"
)

// openAPISpec contains the embedded OpenAPI specification of the API.
//
//go:embed specs/openapi.yaml
var openAPISpec []byte

// Options holds configuration for the HTTP server and its dependencies.
// It is typically created from a config.Config via NewOptions.
// All durations are used to configure server timeouts, and zero values
// should be considered as using the defaults provided by net/http where applicable.
type Options struct {
	// Handler configures the scan endpoints.
	Handler handler.Options

	// Addr is the TCP address the server listens on, e.g. ":8080".
	Addr string
	// ReadTimeout is the maximum duration for reading the entire request, including the body.
	ReadTimeout time.Duration
	// ReadHeaderTimeout is the amount of time allowed to read request headers.
	ReadHeaderTimeout time.Duration
	// WriteTimeout is the maximum duration before timing out writes of the response.
	WriteTimeout time.Duration
	// IdleTimeout is the maximum amount of time to wait for the next request when keep-alives are enabled.
	IdleTimeout time.Duration
	// RequestTimeout bounds the handling of a request. Push channel connections are exempt.
	RequestTimeout time.Duration
	// MaxHeaderBytes controls the maximum number of bytes the server
	// will read parsing the request header's keys and values, including the request line.
	MaxHeaderBytes int
	// MetricsPath is the HTTP path at which Prometheus metrics are served.
	MetricsPath string
}

// NewOptions constructs an Options value from the provided application configuration.
func NewOptions(cfg *config.Config) (Options, error) {
	policy, err := pagegroup.ParseTextPolicy(cfg.Display.ExtractionText)
	if err != nil {
		return Options{}, fmt.Errorf("invalid display config: %w", err)
	}

	return Options{
		Handler: handler.Options{
			MaxUploadSize: cfg.HTTP.MaxUploadSize,
			TextPolicy:    policy,
		},

		Addr:              cfg.HTTP.Addr,
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
		IdleTimeout:       cfg.HTTP.IdleTimeout,
		RequestTimeout:    cfg.HTTP.RequestTimeout,
		MaxHeaderBytes:    cfg.HTTP.MaxHeaderBytes,
		MetricsPath:       cfg.HTTP.MetricsPath,
	}, nil
}

type Deps struct {
	handler.Deps
	// Push serves the push channel, usually a *pushhub.Hub.
	Push http.Handler
}

// Routes returns the handler of every endpoint of the service:
// - Prometheus metrics endpoint (MetricsPath)
// - Embedded OpenAPI spec and Swagger UI
// - the push channel at handler.ChannelPath
// - scan endpoints
// - pprof endpoints for profiling
// It is wrapped with the CORS, timeout and logging middlewares.
func Routes(deps Deps, opts Options) http.Handler {
	r := chi.NewRouter()
	r.NotFound(handler.NotFound)
	r.MethodNotAllowed(handler.MethodNotAllowed)

	// prometheus metrics server
	metricsPath := opts.MetricsPath
	if metricsPath == "" {
		metricsPath = "/metrics"
	}
	r.Handle(metricsPath, promhttp.Handler())

	// specs file
	r.Get("/specs/openapi.yaml", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/yaml")
		_, _ = w.Write(openAPISpec)
	})
	// swagger playground
	r.Handle("/docs/*", v5emb.New(
		"QR PDF Scanner API",
		"/specs/openapi.yaml",
		"/docs/",
	))

	if deps.Push != nil {
		r.Handle(handler.ChannelPath, deps.Push)
	}

	handler.New(deps.Deps, opts.Handler).Register(r)

	// pprof
	r.Mount("/debug/pprof", controller.Pprof())

	h := controller.WithCORS(r)
	h = controller.WithTimeout(h, opts.RequestTimeout)

	return controller.WithLogger(h)
}

// NewServer returns a configured *http.Server serving Routes.
func NewServer(deps Deps, opts Options) *http.Server {
	return &http.Server{
		Addr:              opts.Addr,
		Handler:           Routes(deps, opts),
		ReadTimeout:       opts.ReadTimeout,
		ReadHeaderTimeout: opts.ReadHeaderTimeout,
		WriteTimeout:      opts.WriteTimeout,
		IdleTimeout:       opts.IdleTimeout,
		MaxHeaderBytes:    opts.MaxHeaderBytes,
	}
}
