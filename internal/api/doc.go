// Package api hosts the HTTP handlers that front the streamcast control
// plane.
//
// The handlers assembled by Handler validate requests, shape JSON responses,
// and delegate every lifecycle decision to the control.Orchestrator injected
// at construction time. The package does not reach for globals or singletons
// and expects callers to supply fully configured dependencies.
//
// Handler implementations assume upstream middleware from internal/server has
// already enforced rate limiting, security headers, and request logging. New
// routes should preserve that contract by avoiding duplicate validation and
// by leaning on the middleware guarantees established in the server stack.
package api
