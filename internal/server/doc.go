// Package server hosts the streamcast control plane API behind a single
// HTTP server.
//
// The server builds a consistent middleware chain of request IDs, security
// headers, CORS, rate limiting, auditing, and logging so handlers all share
// common protections and instrumentation.
package server
