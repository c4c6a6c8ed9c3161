package wowza

import (
	"context"
	"errors"
)

// Server identifies the administrative surface of one media server instance.
type Server struct {
	// Host is the public host streams are served from.
	Host string

	// APIBaseURL is the REST management endpoint, e.g. "http://host:8087".
	APIBaseURL string

	Username string
	Password string
}

// PushParams describes a platform push to start for an application.
type PushParams struct {
	// Name keys the push target on the server. It becomes the handle used
	// to stop or query the push later.
	Name string

	TargetURL    string
	StreamKey    string
	SourceStream string
}

// PushStart reports how a push was started.
type PushStart struct {
	Handle string `json:"handle"`
	Method string `json:"method"`
}

// PushActivity is the last observed state of a running push.
type PushActivity struct {
	Connected   bool  `json:"connected"`
	BitrateKbps int   `json:"bitrateKbps"`
	Viewers     int   `json:"viewers"`
	UptimeMs    int64 `json:"uptimeMs"`
}

// IncomingStream describes a publisher connected to the application, such as
// an external encoder.
type IncomingStream struct {
	Name        string `json:"name"`
	Connected   bool   `json:"connected"`
	BitrateKbps int    `json:"bitrateKbps"`
	UptimeMs    int64  `json:"uptimeMs"`
}

// ErrUnreachable marks failures where the server's state could not be
// determined at all (connection failure or timeout), as opposed to the
// server answering with an error. Callers report the two differently.
var ErrUnreachable = errors.New("media server unreachable")

// ErrPushNotFound is returned by QueryPush and StopPush when the server has
// no push registered under the handle.
var ErrPushNotFound = errors.New("push not found")

// Channel executes administrative commands against a media server.
// Implementations must be safe for concurrent use and must bound every call
// with the request context.
type Channel interface {
	// IsRunning reports whether the application instance is loaded.
	IsRunning(ctx context.Context, server Server, app string) (bool, error)

	// Activate loads the application instance. Activating an already
	// loaded instance is not an error.
	Activate(ctx context.Context, server Server, app string) error

	// Deactivate unloads the application instance.
	Deactivate(ctx context.Context, server Server, app string) error

	// PushToPlatform registers and starts a push of the application's
	// output to an external RTMP target.
	PushToPlatform(ctx context.Context, server Server, app string, params PushParams) (PushStart, error)

	// StopPush removes the push registered under the handle.
	StopPush(ctx context.Context, server Server, app, handle string) error

	// QueryPush returns the current activity of the push.
	QueryPush(ctx context.Context, server Server, app, handle string) (PushActivity, error)

	// IncomingStreams lists publishers currently connected to the
	// application.
	IncomingStreams(ctx context.Context, server Server, app string) ([]IncomingStream, error)
}

// NoopChannel is a Channel for tests and deployments without a reachable
// media server. Every application reports as running and every command
// succeeds without side effects.
type NoopChannel struct{}

func (NoopChannel) IsRunning(ctx context.Context, server Server, app string) (bool, error) {
	return true, nil
}

func (NoopChannel) Activate(ctx context.Context, server Server, app string) error { return nil }

func (NoopChannel) Deactivate(ctx context.Context, server Server, app string) error { return nil }

func (NoopChannel) PushToPlatform(ctx context.Context, server Server, app string, params PushParams) (PushStart, error) {
	return PushStart{Handle: params.Name, Method: "noop"}, nil
}

func (NoopChannel) StopPush(ctx context.Context, server Server, app, handle string) error {
	return nil
}

func (NoopChannel) QueryPush(ctx context.Context, server Server, app, handle string) (PushActivity, error) {
	return PushActivity{Connected: true}, nil
}

func (NoopChannel) IncomingStreams(ctx context.Context, server Server, app string) ([]IncomingStream, error) {
	return nil, nil
}
