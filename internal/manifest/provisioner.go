// Package manifest defines the contract for regenerating the server-side
// manifest a playlist transmission plays from. Manifest content is produced
// by an external service; this package only drives it.
package manifest

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

const defaultRequestTimeout = 10 * time.Second

// Result reports a successful provisioning run.
type Result struct {
	ManifestName string `json:"manifestName"`
	ItemCount    int    `json:"itemCount"`
}

// Provisioner (re)generates the manifest for an owner's playlist.
type Provisioner interface {
	Provision(ctx context.Context, ownerLogin, playlistID string) (Result, error)
}

// ErrUnreachable marks provisioning failures where the provisioner could not
// be contacted at all.
var ErrUnreachable = errors.New("manifest provisioner unreachable")

// Noop is a Provisioner that reports success without generating anything.
// Used in tests and deployments where manifests are managed out of band.
type Noop struct{}

func (Noop) Provision(ctx context.Context, ownerLogin, playlistID string) (Result, error) {
	return Result{ManifestName: DefaultName}, nil
}

// DefaultName is the manifest filename the media server reads when none is
// negotiated explicitly.
const DefaultName = "playlist.smil"

// HTTPProvisioner drives a manifest generation service over HTTP.
type HTTPProvisioner struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewHTTPProvisioner builds a provisioner for the generation service rooted
// at baseURL. Token is optional bearer auth.
func NewHTTPProvisioner(baseURL, token string, client *http.Client) *HTTPProvisioner {
	if client == nil {
		client = &http.Client{Timeout: defaultRequestTimeout}
	}
	return &HTTPProvisioner{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		token:      strings.TrimSpace(token),
		httpClient: client,
	}
}

type provisionRequest struct {
	OwnerLogin string `json:"ownerLogin"`
	PlaylistID string `json:"playlistId"`
}

type provisionResponse struct {
	ManifestName string `json:"manifestName"`
	ItemCount    int    `json:"itemCount"`
	Error        string `json:"error,omitempty"`
}

func (p *HTTPProvisioner) Provision(ctx context.Context, ownerLogin, playlistID string) (Result, error) {
	if p.baseURL == "" {
		return Result{}, fmt.Errorf("provisioner base url is required")
	}
	payload, err := json.Marshal(provisionRequest{OwnerLogin: ownerLogin, PlaylistID: playlistID})
	if err != nil {
		return Result{}, fmt.Errorf("marshal provision request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/manifests", bytes.NewReader(payload))
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if p.token != "" {
		req.Header.Set("Authorization", "Bearer "+p.token)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return Result{}, fmt.Errorf("%w: %v", ErrUnreachable, err)
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return Result{}, fmt.Errorf("%w: %v", ErrUnreachable, err)
		}
		var opErr *net.OpError
		if errors.As(err, &opErr) {
			return Result{}, fmt.Errorf("%w: %v", ErrUnreachable, err)
		}
		return Result{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return Result{}, fmt.Errorf("provision manifest: %s: %s", resp.Status, strings.TrimSpace(string(data)))
	}

	var decoded provisionResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return Result{}, fmt.Errorf("decode provision response: %w", err)
	}
	if decoded.Error != "" {
		return Result{}, fmt.Errorf("provision manifest: %s", decoded.Error)
	}
	if decoded.ManifestName == "" {
		decoded.ManifestName = DefaultName
	}
	return Result{ManifestName: decoded.ManifestName, ItemCount: decoded.ItemCount}, nil
}
