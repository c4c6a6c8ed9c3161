package manifest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestHTTPProvisionerSendsRequest(t *testing.T) {
	var received provisionRequest
	var auth string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/manifests" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		auth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&received)
		_ = json.NewEncoder(w).Encode(provisionResponse{ManifestName: "alpha.smil", ItemCount: 12})
	}))
	defer ts.Close()

	provisioner := NewHTTPProvisioner(ts.URL+"/", "secret-token", nil)
	result, err := provisioner.Provision(context.Background(), "alpha", "pl-1")
	if err != nil {
		t.Fatalf("Provision: %v", err)
	}
	if result.ManifestName != "alpha.smil" || result.ItemCount != 12 {
		t.Fatalf("unexpected result %+v", result)
	}
	if received.OwnerLogin != "alpha" || received.PlaylistID != "pl-1" {
		t.Fatalf("unexpected payload %+v", received)
	}
	if auth != "Bearer secret-token" {
		t.Fatalf("unexpected auth header %q", auth)
	}
}

func TestHTTPProvisionerDefaultsManifestName(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(provisionResponse{ItemCount: 3})
	}))
	defer ts.Close()

	result, err := NewHTTPProvisioner(ts.URL, "", nil).Provision(context.Background(), "alpha", "pl-1")
	if err != nil {
		t.Fatalf("Provision: %v", err)
	}
	if result.ManifestName != DefaultName {
		t.Fatalf("expected default manifest name, got %q", result.ManifestName)
	}
}

func TestHTTPProvisionerServiceError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(provisionResponse{Error: "playlist has no items"})
	}))
	defer ts.Close()

	_, err := NewHTTPProvisioner(ts.URL, "", nil).Provision(context.Background(), "alpha", "pl-1")
	if err == nil || !strings.Contains(err.Error(), "playlist has no items") {
		t.Fatalf("expected service error, got %v", err)
	}
	if errors.Is(err, ErrUnreachable) {
		t.Fatalf("a served error is not unreachable: %v", err)
	}
}

func TestHTTPProvisionerRejectedStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad playlist", http.StatusBadRequest)
	}))
	defer ts.Close()

	_, err := NewHTTPProvisioner(ts.URL, "", nil).Provision(context.Background(), "alpha", "pl-1")
	if err == nil || !strings.Contains(err.Error(), "bad playlist") {
		t.Fatalf("expected status error, got %v", err)
	}
	if errors.Is(err, ErrUnreachable) {
		t.Fatalf("a served error is not unreachable: %v", err)
	}
}

func TestHTTPProvisionerUnreachable(t *testing.T) {
	client := &http.Client{Timeout: 200 * time.Millisecond}
	_, err := NewHTTPProvisioner("http://127.0.0.1:1", "", client).Provision(context.Background(), "alpha", "pl-1")
	if !errors.Is(err, ErrUnreachable) {
		t.Fatalf("expected ErrUnreachable, got %v", err)
	}
}

func TestNoopProvisioner(t *testing.T) {
	result, err := Noop{}.Provision(context.Background(), "alpha", "pl-1")
	if err != nil {
		t.Fatalf("Provision: %v", err)
	}
	if result.ManifestName != DefaultName {
		t.Fatalf("unexpected result %+v", result)
	}
}
