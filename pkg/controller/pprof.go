package controller

import (
	"net/http"
	"net/http/pprof"

	"github.com/go-chi/chi/v5"
)

// Pprof returns a router exposing the net/http/pprof handlers. It is meant to
// be mounted at /debug/pprof since the index resolves profiles from that path.
func Pprof() http.Handler {
	r := chi.NewRouter()

	r.Get("/cmdline", pprof.Cmdline)
	r.Get("/profile", pprof.Profile)
	r.HandleFunc("/symbol", pprof.Symbol)
	r.Get("/trace", pprof.Trace)
	r.Get("/", pprof.Index)
	r.Get("/*", pprof.Index)

	return r
}
