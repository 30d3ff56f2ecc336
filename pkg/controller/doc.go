// Package controller contains HTTP middlewares and helpers used by the API server.
//
// Provided middlewares:
//   - WithCORS: Adds permissive CORS headers and handles OPTIONS preflight.
//   - WithLogger: Attaches a request-scoped logger and request ID to the context and logs access info.
//   - WithTimeout: Bounds request handling, except for push channel upgrades.
//
// Provided helpers:
//   - WriteError, WriteJSON: Write JSON responses, mapping error kinds to status codes.
//   - Pprof: Returns a router exposing net/http/pprof handlers.
package controller
