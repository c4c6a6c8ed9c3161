package store

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewArchiveClientDisabledWithoutBucket(t *testing.T) {
	if NewArchiveClient(ArchiveConfig{}).Enabled() {
		t.Fatal("expected disabled client for empty config")
	}
	if NewArchiveClient(ArchiveConfig{Endpoint: "http://127.0.0.1:9000"}).Enabled() {
		t.Fatal("expected disabled client without bucket")
	}
	if NewArchiveClient(ArchiveConfig{Bucket: "recordings"}).Enabled() {
		t.Fatal("expected disabled client without endpoint")
	}
}

func TestArchiveClientStore(t *testing.T) {
	var gotPath, gotContentType, gotSHA, gotAuth string
	var gotBody []byte
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("unexpected method %s", r.Method)
		}
		gotPath = r.URL.Path
		gotContentType = r.Header.Get("Content-Type")
		gotSHA = r.Header.Get("x-amz-content-sha256")
		gotAuth = r.Header.Get("Authorization")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	artifact := filepath.Join(t.TempDir(), "recording.mp4")
	if err := os.WriteFile(artifact, []byte("mp4 payload"), 0o644); err != nil {
		t.Fatalf("write artifact: %v", err)
	}

	client := NewArchiveClient(ArchiveConfig{
		Endpoint:       ts.URL,
		Region:         "us-east-1",
		AccessKey:      "AKIA_TEST",
		SecretKey:      "secret",
		Bucket:         "recordings",
		Prefix:         "archive",
		PublicEndpoint: "https://cdn.example.com/recordings",
	})
	if !client.Enabled() {
		t.Fatal("expected enabled client")
	}

	ref, err := client.Store(context.Background(), "owner-1/recording.mp4", "video/mp4", artifact)
	if err != nil {
		t.Fatalf("Store: %v", err)
	}
	if ref.Key != "archive/owner-1/recording.mp4" {
		t.Fatalf("unexpected key %q", ref.Key)
	}
	if ref.URL != "https://cdn.example.com/recordings/archive/owner-1/recording.mp4" {
		t.Fatalf("unexpected public URL %q", ref.URL)
	}
	if gotPath != "/recordings/archive/owner-1/recording.mp4" {
		t.Fatalf("unexpected request path %q", gotPath)
	}
	if gotContentType != "video/mp4" {
		t.Fatalf("unexpected content type %q", gotContentType)
	}
	if gotSHA != "UNSIGNED-PAYLOAD" {
		t.Fatalf("unexpected payload hash %q", gotSHA)
	}
	if !strings.HasPrefix(gotAuth, "AWS4-HMAC-SHA256 Credential=AKIA_TEST/") {
		t.Fatalf("unexpected authorization header %q", gotAuth)
	}
	if string(gotBody) != "mp4 payload" {
		t.Fatalf("unexpected body %q", gotBody)
	}
}

func TestArchiveClientStoreRejectedStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "denied", http.StatusForbidden)
	}))
	defer ts.Close()

	artifact := filepath.Join(t.TempDir(), "recording.mp4")
	if err := os.WriteFile(artifact, []byte("payload"), 0o644); err != nil {
		t.Fatalf("write artifact: %v", err)
	}

	client := NewArchiveClient(ArchiveConfig{Endpoint: ts.URL, Bucket: "recordings"})
	if _, err := client.Store(context.Background(), "key.mp4", "video/mp4", artifact); err == nil {
		t.Fatal("expected error for rejected upload")
	}
}

func TestArchiveClientDelete(t *testing.T) {
	var gotMethod, gotPath string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ts.Close()

	client := NewArchiveClient(ArchiveConfig{Endpoint: ts.URL, Bucket: "recordings"})
	if err := client.Delete(context.Background(), "owner-1/recording.mp4"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if gotMethod != http.MethodDelete || gotPath != "/recordings/owner-1/recording.mp4" {
		t.Fatalf("unexpected request %s %s", gotMethod, gotPath)
	}
}

func TestArchiveKeyPrefixing(t *testing.T) {
	endpoint, _ := url.Parse("http://127.0.0.1:9000")
	client := &s3ArchiveClient{cfg: ArchiveConfig{Bucket: "recordings", Prefix: "/archive/"}, endpoint: endpoint}

	if got := client.applyPrefix("owner/clip.mp4"); got != "archive/owner/clip.mp4" {
		t.Fatalf("unexpected key %q", got)
	}
	if got := client.applyPrefix("archive/owner/clip.mp4"); got != "archive/owner/clip.mp4" {
		t.Fatalf("prefix should not double-apply, got %q", got)
	}
	if got := client.applyPrefix("/leading.mp4"); got != "archive/leading.mp4" {
		t.Fatalf("unexpected key %q", got)
	}
}
