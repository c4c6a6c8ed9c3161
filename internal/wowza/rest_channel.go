package wowza

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

const (
	defaultRequestTimeout = 5 * time.Second
	vhostPathPrefix       = "/v2/servers/_defaultServer_/vhosts/_defaultVHost_"
)

// RESTChannel drives a media server through its REST management API.
type RESTChannel struct {
	httpClient *http.Client
	timeout    time.Duration
}

// RESTOption mutates RESTChannel configuration.
type RESTOption func(*RESTChannel)

// WithHTTPClient overrides the HTTP client used for management calls.
func WithHTTPClient(client *http.Client) RESTOption {
	return func(c *RESTChannel) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithRequestTimeout bounds each management call. The per-call context still
// applies; whichever expires first wins.
func WithRequestTimeout(timeout time.Duration) RESTOption {
	return func(c *RESTChannel) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// NewRESTChannel builds a Channel speaking the server's REST management API.
func NewRESTChannel(opts ...RESTOption) *RESTChannel {
	channel := &RESTChannel{
		httpClient: &http.Client{Timeout: defaultRequestTimeout},
		timeout:    defaultRequestTimeout,
	}
	for _, opt := range opts {
		opt(channel)
	}
	return channel
}

type instanceInfoResponse struct {
	Name    string `json:"name"`
	Status  string `json:"status"`
	Loaded  bool   `json:"loaded"`
	Message string `json:"message,omitempty"`
}

type pushTargetRequest struct {
	EntryName    string `json:"entryName"`
	Profile      string `json:"profile"`
	Host         string `json:"host"`
	Application  string `json:"application"`
	StreamName   string `json:"streamName"`
	SourceStream string `json:"sourceStreamName"`
	Enabled      bool   `json:"enabled"`
}

type pushTargetInfoResponse struct {
	EntryName string `json:"entryName"`
	Status    string `json:"status"`
	Connected bool   `json:"isConnected"`
	Bitrate   int    `json:"currentBitrate"`
	Sessions  int    `json:"currentSessions"`
	UptimeMs  int64  `json:"uptimeMilliseconds"`
}

type incomingStreamsResponse struct {
	IncomingStreams []struct {
		Name        string `json:"name"`
		IsConnected bool   `json:"isConnected"`
		Bitrate     int    `json:"totalIncomingBitrate"`
		UptimeMs    int64  `json:"uptimeMilliseconds"`
	} `json:"incomingstreams"`
}

func (c *RESTChannel) IsRunning(ctx context.Context, server Server, app string) (bool, error) {
	var info instanceInfoResponse
	err := c.get(ctx, server, instancePath(app), &info)
	if err != nil {
		var status *statusError
		if errors.As(err, &status) && status.code == http.StatusNotFound {
			return false, nil
		}
		return false, err
	}
	if info.Loaded {
		return true, nil
	}
	return strings.EqualFold(info.Status, "loaded") || strings.EqualFold(info.Status, "running"), nil
}

func (c *RESTChannel) Activate(ctx context.Context, server Server, app string) error {
	err := c.do(ctx, server, http.MethodPut, instancePath(app)+"/actions/start", nil, nil)
	var status *statusError
	if errors.As(err, &status) && status.code == http.StatusConflict {
		// Already loaded.
		return nil
	}
	return err
}

func (c *RESTChannel) Deactivate(ctx context.Context, server Server, app string) error {
	err := c.do(ctx, server, http.MethodPut, instancePath(app)+"/actions/stop", nil, nil)
	var status *statusError
	if errors.As(err, &status) && status.code == http.StatusNotFound {
		return nil
	}
	return err
}

func (c *RESTChannel) PushToPlatform(ctx context.Context, server Server, app string, params PushParams) (PushStart, error) {
	if params.Name == "" {
		return PushStart{}, fmt.Errorf("push name is required")
	}
	target, key := splitTarget(params.TargetURL, params.StreamKey)
	payload := pushTargetRequest{
		EntryName:    params.Name,
		Profile:      "rtmp",
		Host:         target,
		Application:  app,
		StreamName:   key,
		SourceStream: params.SourceStream,
		Enabled:      true,
	}
	path := applicationPath(app) + "/pushpublish/mapentries/" + params.Name
	if err := c.do(ctx, server, http.MethodPost, path, payload, nil); err != nil {
		return PushStart{}, err
	}
	if err := c.do(ctx, server, http.MethodPut, path+"/actions/enable", nil, nil); err != nil {
		// The target exists but could not be enabled; remove it so the
		// caller does not leak a half-registered push.
		_ = c.do(context.WithoutCancel(ctx), server, http.MethodDelete, path, nil, nil)
		return PushStart{}, err
	}
	return PushStart{Handle: params.Name, Method: "pushpublish"}, nil
}

func (c *RESTChannel) StopPush(ctx context.Context, server Server, app, handle string) error {
	err := c.do(ctx, server, http.MethodDelete, applicationPath(app)+"/pushpublish/mapentries/"+handle, nil, nil)
	var status *statusError
	if errors.As(err, &status) && status.code == http.StatusNotFound {
		return ErrPushNotFound
	}
	return err
}

func (c *RESTChannel) QueryPush(ctx context.Context, server Server, app, handle string) (PushActivity, error) {
	var info pushTargetInfoResponse
	err := c.get(ctx, server, applicationPath(app)+"/pushpublish/mapentries/"+handle, &info)
	if err != nil {
		var status *statusError
		if errors.As(err, &status) && status.code == http.StatusNotFound {
			return PushActivity{}, ErrPushNotFound
		}
		return PushActivity{}, err
	}
	connected := info.Connected || strings.EqualFold(info.Status, "connected")
	return PushActivity{
		Connected:   connected,
		BitrateKbps: info.Bitrate,
		Viewers:     info.Sessions,
		UptimeMs:    info.UptimeMs,
	}, nil
}

func (c *RESTChannel) IncomingStreams(ctx context.Context, server Server, app string) ([]IncomingStream, error) {
	var response incomingStreamsResponse
	if err := c.get(ctx, server, instancePath(app)+"/incomingstreams", &response); err != nil {
		return nil, err
	}
	streams := make([]IncomingStream, 0, len(response.IncomingStreams))
	for _, raw := range response.IncomingStreams {
		streams = append(streams, IncomingStream{
			Name:        raw.Name,
			Connected:   raw.IsConnected,
			BitrateKbps: raw.Bitrate,
			UptimeMs:    raw.UptimeMs,
		})
	}
	return streams, nil
}

func applicationPath(app string) string {
	return vhostPathPrefix + "/applications/" + app
}

func instancePath(app string) string {
	return applicationPath(app) + "/instances/_definst_"
}

// splitTarget separates an rtmp://host/app base URL into the host/application
// form the push API expects, appending the stream key as the stream name.
func splitTarget(targetURL, streamKey string) (string, string) {
	trimmed := strings.TrimRight(strings.TrimSpace(targetURL), "/")
	return trimmed, strings.TrimSpace(streamKey)
}

// statusError carries a non-2xx management API response.
type statusError struct {
	code   int
	detail string
}

func (e *statusError) Error() string {
	if e.detail == "" {
		return fmt.Sprintf("media server returned status %d", e.code)
	}
	return fmt.Sprintf("media server returned status %d: %s", e.code, e.detail)
}

func (c *RESTChannel) get(ctx context.Context, server Server, path string, dest interface{}) error {
	return c.do(ctx, server, http.MethodGet, path, nil, dest)
}

func (c *RESTChannel) do(ctx context.Context, server Server, method, path string, payload, dest interface{}) error {
	base := strings.TrimRight(strings.TrimSpace(server.APIBaseURL), "/")
	if base == "" {
		return fmt.Errorf("server api base url is required")
	}

	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, base+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if server.Username != "" || server.Password != "" {
		req.SetBasicAuth(server.Username, server.Password)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isUnreachable(err) {
			return fmt.Errorf("%w: %v", ErrUnreachable, err)
		}
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &statusError{code: resp.StatusCode, detail: strings.TrimSpace(string(data))}
	}
	if dest == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(dest)
}

func isUnreachable(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}
