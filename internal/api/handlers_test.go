package api

import (
	"context"
	"crypto/x509"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"streamcast/internal/control"
	"streamcast/internal/models"
	"streamcast/internal/store"
)

func newTestHandler(t *testing.T) *Handler {
	t.Helper()
	repo, err := store.NewMemory("")
	if err != nil {
		t.Fatalf("NewMemory: %v", err)
	}
	ctx := context.Background()
	if _, err := repo.UpsertEndpoint(ctx, models.StreamEndpoint{
		OwnerID:    "owner-1",
		Login:      "alpha",
		ServerHost: "edge.example.com",
		RTMPPort:   1935,
	}); err != nil {
		t.Fatalf("UpsertEndpoint: %v", err)
	}
	if _, err := repo.UpsertPlaylist(ctx, models.Playlist{
		ID:        "pl-1",
		OwnerID:   "owner-1",
		Name:      "rotation",
		ItemCount: 3,
	}); err != nil {
		t.Fatalf("UpsertPlaylist: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	orch := control.NewOrchestrator(repo,
		control.WithLogger(logger),
		control.WithProbeClient(&http.Client{Transport: unreachableTransport{}}),
		control.WithCertProbe(func(context.Context, string) ([]*x509.Certificate, error) {
			return nil, errors.New("no route to host")
		}),
	)
	return NewHandler(orch, repo, logger)
}

// unreachableTransport keeps playback probes off the network.
type unreachableTransport struct{}

func (unreachableTransport) RoundTrip(*http.Request) (*http.Response, error) {
	return nil, errors.New("no route to host")
}

func doRequest(h *Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	rec := httptest.NewRecorder()
	if path == "/healthz" {
		h.Health(rec, req)
	} else if path == "/api/platforms" {
		h.Platforms(rec, req)
	} else {
		h.Endpoints(rec, req)
	}
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var payload map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return payload
}

func TestHealthReportsOK(t *testing.T) {
	h := newTestHandler(t)
	rec := doRequest(h, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if payload := decodeBody(t, rec); payload["status"] != "ok" {
		t.Fatalf("unexpected payload %v", payload)
	}
}

func TestPlatformsListsCatalog(t *testing.T) {
	h := newTestHandler(t)
	rec := doRequest(h, http.MethodGet, "/api/platforms", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "youtube") {
		t.Fatalf("expected youtube in catalog, got %s", rec.Body.String())
	}
}

func TestEndpointStatusAndUnknownOwner(t *testing.T) {
	h := newTestHandler(t)
	rec := doRequest(h, http.MethodGet, "/api/endpoints/owner-1", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	payload := decodeBody(t, rec)
	if payload["login"] != "alpha" {
		t.Fatalf("unexpected status payload %v", payload)
	}

	rec = doRequest(h, http.MethodGet, "/api/endpoints/ghost", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if payload := decodeBody(t, rec); payload["kind"] != "not_found" {
		t.Fatalf("expected not_found kind, got %v", payload)
	}
}

func TestPowerActions(t *testing.T) {
	h := newTestHandler(t)
	rec := doRequest(h, http.MethodPost, "/api/endpoints/owner-1/power", `{"action":"on"}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if payload := decodeBody(t, rec); payload["running"] != true {
		t.Fatalf("expected running, got %v", payload)
	}

	rec = doRequest(h, http.MethodPost, "/api/endpoints/owner-1/power", `{"action":"reboot"}`, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown action, got %d", rec.Code)
	}

	rec = doRequest(h, http.MethodPost, "/api/endpoints/owner-1/power", `{"action":`, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed JSON, got %d", rec.Code)
	}

	rec = doRequest(h, http.MethodGet, "/api/endpoints/owner-1/power", "", nil)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestBlockRequiresElevatedRole(t *testing.T) {
	h := newTestHandler(t)
	rec := doRequest(h, http.MethodPost, "/api/endpoints/owner-1/block", "", map[string]string{
		"X-Actor-Id":   "user-9",
		"X-Actor-Role": "user",
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}

	rec = doRequest(h, http.MethodPost, "/api/endpoints/owner-1/block", "", map[string]string{
		"X-Actor-Id":   "admin-1",
		"X-Actor-Role": "admin",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if payload := decodeBody(t, rec); payload["blocked"] != true {
		t.Fatalf("unexpected payload %v", payload)
	}

	rec = doRequest(h, http.MethodPost, "/api/endpoints/owner-1/unblock", "", map[string]string{
		"X-Actor-Id":   "admin-1",
		"X-Actor-Role": "admin",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestSourceURLs(t *testing.T) {
	h := newTestHandler(t)
	rec := doRequest(h, http.MethodGet, "/api/endpoints/owner-1/urls", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	payload := decodeBody(t, rec)
	if payload["hls"] != "https://edge.example.com/alpha/alpha/playlist.m3u8" {
		t.Fatalf("unexpected HLS URL %v", payload["hls"])
	}
	if payload["rtmp"] != "rtmp://edge.example.com:1935/alpha/alpha" {
		t.Fatalf("unexpected RTMP URL %v", payload["rtmp"])
	}
}

func TestTransmissionLifecycle(t *testing.T) {
	h := newTestHandler(t)
	rec := doRequest(h, http.MethodPost, "/api/endpoints/owner-1/transmissions",
		`{"title":"Morning rotation","kind":"playlist","playlistId":"pl-1"}`, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	payload := decodeBody(t, rec)
	transmission, ok := payload["transmission"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected transmission object, got %v", payload)
	}
	id, _ := transmission["id"].(string)
	if id == "" {
		t.Fatalf("expected a transmission id, got %v", transmission)
	}

	rec = doRequest(h, http.MethodGet, "/api/endpoints/owner-1/transmissions", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	rec = doRequest(h, http.MethodDelete, "/api/endpoints/owner-1/transmissions/"+id, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(h, http.MethodDelete, "/api/endpoints/owner-1/transmissions/missing", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown transmission, got %d", rec.Code)
	}
}

func TestTransmissionValidationStatus(t *testing.T) {
	h := newTestHandler(t)
	rec := doRequest(h, http.MethodPost, "/api/endpoints/owner-1/transmissions", `{"kind":"external"}`, nil)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for missing title, got %d: %s", rec.Code, rec.Body.String())
	}
	if payload := decodeBody(t, rec); payload["kind"] != "validation" {
		t.Fatalf("expected validation kind, got %v", payload)
	}
}

func TestReloadScheduleWithoutActiveTransmission(t *testing.T) {
	h := newTestHandler(t)
	rec := doRequest(h, http.MethodPost, "/api/endpoints/owner-1/schedule/reload", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestSocialLiveLifecycle(t *testing.T) {
	h := newTestHandler(t)
	rec := doRequest(h, http.MethodPost, "/api/endpoints/owner-1/social-lives",
		`{"platformId":"youtube","streamKey":"yt-key"}`, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	payload := decodeBody(t, rec)
	session, ok := payload["session"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected session object, got %v", payload)
	}
	id, _ := session["id"].(string)
	if id == "" {
		t.Fatalf("expected session id, got %v", session)
	}

	rec = doRequest(h, http.MethodPost, "/api/endpoints/owner-1/social-lives",
		`{"platformId":"youtube","streamKey":"yt-key"}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for already active session, got %d", rec.Code)
	}
	if payload := decodeBody(t, rec); payload["already_active"] != true {
		t.Fatalf("expected already_active, got %v", payload)
	}

	rec = doRequest(h, http.MethodGet, "/api/endpoints/owner-1/social-lives/"+id, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for status, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(h, http.MethodPost, "/api/endpoints/owner-1/social-lives/"+id+"/stop", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for stop, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(h, http.MethodDelete, "/api/endpoints/owner-1/social-lives/"+id, "", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 for remove, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestSocialLiveMissingStreamKey(t *testing.T) {
	h := newTestHandler(t)
	rec := doRequest(h, http.MethodPost, "/api/endpoints/owner-1/social-lives", `{"platformId":"youtube"}`, nil)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestSocialLiveUnknownAction(t *testing.T) {
	h := newTestHandler(t)
	rec := doRequest(h, http.MethodPost, "/api/endpoints/owner-1/social-lives/sl-1/pause", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestDiagnosticsAcceptsEmptyBody(t *testing.T) {
	h := newTestHandler(t)
	rec := doRequest(h, http.MethodPost, "/api/endpoints/owner-1/diagnostics", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	payload := decodeBody(t, rec)
	if _, ok := payload["results"].([]interface{}); !ok {
		t.Fatalf("expected results array, got %v", payload)
	}
}

func TestStopRecordingWithoutActiveCapture(t *testing.T) {
	h := newTestHandler(t)
	rec := doRequest(h, http.MethodPost, "/api/endpoints/owner-1/recordings/stop", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if payload := decodeBody(t, rec); payload["already_stopped"] != true {
		t.Fatalf("expected already_stopped, got %v", payload)
	}
}

func TestUnknownRoute(t *testing.T) {
	h := newTestHandler(t)
	rec := doRequest(h, http.MethodGet, "/api/endpoints/owner-1/bogus", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	rec = doRequest(h, http.MethodGet, "/api/endpoints/", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for missing owner, got %d", rec.Code)
	}
}
