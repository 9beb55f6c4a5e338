// Package controller contains HTTP middlewares and helper handlers used by the
// scan API server.
//
// Provided middlewares:
//   - WithCORS: Adds CORS headers for the read-only scan API and handles OPTIONS preflight.
//   - WithLogger: Attaches a request-scoped logger and request ID to the context and logs access info.
//   - WithRecover: Turns a panicking handler into a 500 JSON response.
//
// Provided helpers:
//   - PprofMux: Returns a ServeMux exposing net/http/pprof handlers under a prefix.
package controller
