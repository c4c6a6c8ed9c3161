package wowza

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

type recordedRequest struct {
	Method string
	Path   string
	Body   map[string]interface{}
}

// fakeManagementAPI scripts responses per method+path and records every call.
type fakeManagementAPI struct {
	mu        sync.Mutex
	responses map[string]func(w http.ResponseWriter)
	requests  []recordedRequest
}

func newFakeManagementAPI() *fakeManagementAPI {
	return &fakeManagementAPI{responses: make(map[string]func(w http.ResponseWriter))}
}

func (f *fakeManagementAPI) respond(method, path string, status int, payload interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[method+" "+path] = func(w http.ResponseWriter) {
		w.WriteHeader(status)
		if payload != nil {
			_ = json.NewEncoder(w).Encode(payload)
		}
	}
}

func (f *fakeManagementAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	recorded := recordedRequest{Method: r.Method, Path: r.URL.Path}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&recorded.Body)
	}
	f.requests = append(f.requests, recorded)
	handler, ok := f.responses[r.Method+" "+r.URL.Path]
	f.mu.Unlock()
	if !ok {
		http.Error(w, "unexpected request", http.StatusTeapot)
		return
	}
	handler(w)
}

func (f *fakeManagementAPI) recordedRequests() []recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]recordedRequest, len(f.requests))
	copy(out, f.requests)
	return out
}

func newTestChannel(t *testing.T, fake *fakeManagementAPI) (*RESTChannel, Server) {
	t.Helper()
	ts := httptest.NewServer(fake)
	t.Cleanup(ts.Close)
	channel := NewRESTChannel(WithHTTPClient(ts.Client()))
	return channel, Server{Host: "edge.example.com", APIBaseURL: ts.URL}
}

const alphaInstance = "/v2/servers/_defaultServer_/vhosts/_defaultVHost_/applications/alpha/instances/_definst_"
const alphaApp = "/v2/servers/_defaultServer_/vhosts/_defaultVHost_/applications/alpha"

func TestIsRunning(t *testing.T) {
	fake := newFakeManagementAPI()
	channel, server := newTestChannel(t, fake)

	fake.respond(http.MethodGet, alphaInstance, http.StatusOK, map[string]interface{}{"loaded": true})
	running, err := channel.IsRunning(context.Background(), server, "alpha")
	if err != nil || !running {
		t.Fatalf("expected running, got %v err=%v", running, err)
	}

	fake.respond(http.MethodGet, alphaInstance, http.StatusOK, map[string]interface{}{"status": "Running"})
	running, err = channel.IsRunning(context.Background(), server, "alpha")
	if err != nil || !running {
		t.Fatalf("expected running from status field, got %v err=%v", running, err)
	}

	fake.respond(http.MethodGet, alphaInstance, http.StatusNotFound, nil)
	running, err = channel.IsRunning(context.Background(), server, "alpha")
	if err != nil {
		t.Fatalf("404 should not be an error: %v", err)
	}
	if running {
		t.Fatal("missing instance should report not running")
	}
}

func TestActivateTreatsConflictAsSuccess(t *testing.T) {
	fake := newFakeManagementAPI()
	channel, server := newTestChannel(t, fake)

	fake.respond(http.MethodPut, alphaInstance+"/actions/start", http.StatusConflict, nil)
	if err := channel.Activate(context.Background(), server, "alpha"); err != nil {
		t.Fatalf("conflict should mean already started: %v", err)
	}

	fake.respond(http.MethodPut, alphaInstance+"/actions/start", http.StatusInternalServerError, nil)
	if err := channel.Activate(context.Background(), server, "alpha"); err == nil {
		t.Fatal("expected error for 500")
	}
}

func TestDeactivateToleratesMissingInstance(t *testing.T) {
	fake := newFakeManagementAPI()
	channel, server := newTestChannel(t, fake)

	fake.respond(http.MethodPut, alphaInstance+"/actions/stop", http.StatusNotFound, nil)
	if err := channel.Deactivate(context.Background(), server, "alpha"); err != nil {
		t.Fatalf("missing instance should not be an error: %v", err)
	}
}

func TestPushToPlatformRegistersAndEnables(t *testing.T) {
	fake := newFakeManagementAPI()
	channel, server := newTestChannel(t, fake)

	entry := alphaApp + "/pushpublish/mapentries/social_abc"
	fake.respond(http.MethodPost, entry, http.StatusCreated, nil)
	fake.respond(http.MethodPut, entry+"/actions/enable", http.StatusOK, nil)

	start, err := channel.PushToPlatform(context.Background(), server, "alpha", PushParams{
		Name:         "social_abc",
		TargetURL:    "rtmp://a.rtmp.youtube.com/live2/",
		StreamKey:    "yt-key",
		SourceStream: "alpha",
	})
	if err != nil {
		t.Fatalf("PushToPlatform: %v", err)
	}
	if start.Handle != "social_abc" || start.Method != "pushpublish" {
		t.Fatalf("unexpected start %+v", start)
	}

	requests := fake.recordedRequests()
	if len(requests) != 2 {
		t.Fatalf("expected 2 requests, got %d", len(requests))
	}
	if requests[0].Body["host"] != "rtmp://a.rtmp.youtube.com/live2" {
		t.Fatalf("expected trimmed target host, got %v", requests[0].Body["host"])
	}
	if requests[0].Body["streamName"] != "yt-key" {
		t.Fatalf("expected stream key as stream name, got %v", requests[0].Body["streamName"])
	}
	if requests[0].Body["sourceStreamName"] != "alpha" {
		t.Fatalf("expected source stream, got %v", requests[0].Body["sourceStreamName"])
	}
}

func TestPushToPlatformCleansUpOnEnableFailure(t *testing.T) {
	fake := newFakeManagementAPI()
	channel, server := newTestChannel(t, fake)

	entry := alphaApp + "/pushpublish/mapentries/social_abc"
	fake.respond(http.MethodPost, entry, http.StatusCreated, nil)
	fake.respond(http.MethodPut, entry+"/actions/enable", http.StatusInternalServerError, nil)
	fake.respond(http.MethodDelete, entry, http.StatusOK, nil)

	_, err := channel.PushToPlatform(context.Background(), server, "alpha", PushParams{
		Name:      "social_abc",
		TargetURL: "rtmp://a.rtmp.youtube.com/live2",
		StreamKey: "yt-key",
	})
	if err == nil {
		t.Fatal("expected enable failure")
	}

	requests := fake.recordedRequests()
	if len(requests) != 3 || requests[2].Method != http.MethodDelete {
		t.Fatalf("expected cleanup DELETE after enable failure, got %+v", requests)
	}
}

func TestStopPushMapsMissingEntry(t *testing.T) {
	fake := newFakeManagementAPI()
	channel, server := newTestChannel(t, fake)

	entry := alphaApp + "/pushpublish/mapentries/social_abc"
	fake.respond(http.MethodDelete, entry, http.StatusNotFound, nil)
	if err := channel.StopPush(context.Background(), server, "alpha", "social_abc"); !errors.Is(err, ErrPushNotFound) {
		t.Fatalf("expected ErrPushNotFound, got %v", err)
	}

	fake.respond(http.MethodDelete, entry, http.StatusOK, nil)
	if err := channel.StopPush(context.Background(), server, "alpha", "social_abc"); err != nil {
		t.Fatalf("StopPush: %v", err)
	}
}

func TestQueryPushReportsActivity(t *testing.T) {
	fake := newFakeManagementAPI()
	channel, server := newTestChannel(t, fake)

	entry := alphaApp + "/pushpublish/mapentries/social_abc"
	fake.respond(http.MethodGet, entry, http.StatusOK, map[string]interface{}{
		"status":             "Connected",
		"currentBitrate":     4200,
		"currentSessions":    7,
		"uptimeMilliseconds": 60000,
	})
	activity, err := channel.QueryPush(context.Background(), server, "alpha", "social_abc")
	if err != nil {
		t.Fatalf("QueryPush: %v", err)
	}
	if !activity.Connected || activity.BitrateKbps != 4200 || activity.Viewers != 7 {
		t.Fatalf("unexpected activity %+v", activity)
	}

	fake.respond(http.MethodGet, entry, http.StatusNotFound, nil)
	if _, err := channel.QueryPush(context.Background(), server, "alpha", "social_abc"); !errors.Is(err, ErrPushNotFound) {
		t.Fatalf("expected ErrPushNotFound, got %v", err)
	}
}

func TestIncomingStreams(t *testing.T) {
	fake := newFakeManagementAPI()
	channel, server := newTestChannel(t, fake)

	fake.respond(http.MethodGet, alphaInstance+"/incomingstreams", http.StatusOK, map[string]interface{}{
		"incomingstreams": []map[string]interface{}{
			{"name": "alpha", "isConnected": true, "totalIncomingBitrate": 3500, "uptimeMilliseconds": 120000},
			{"name": "alpha_backup", "isConnected": false},
		},
	})
	streams, err := channel.IncomingStreams(context.Background(), server, "alpha")
	if err != nil {
		t.Fatalf("IncomingStreams: %v", err)
	}
	if len(streams) != 2 {
		t.Fatalf("expected 2 streams, got %d", len(streams))
	}
	if streams[0].Name != "alpha" || !streams[0].Connected || streams[0].BitrateKbps != 3500 {
		t.Fatalf("unexpected stream %+v", streams[0])
	}
}

func TestUnreachableServerIsClassified(t *testing.T) {
	channel := NewRESTChannel(WithRequestTimeout(200 * time.Millisecond))
	server := Server{Host: "edge.example.com", APIBaseURL: "http://127.0.0.1:1"}

	_, err := channel.IsRunning(context.Background(), server, "alpha")
	if !errors.Is(err, ErrUnreachable) {
		t.Fatalf("expected ErrUnreachable, got %v", err)
	}
}

func TestRejectedResponseIsNotUnreachable(t *testing.T) {
	fake := newFakeManagementAPI()
	channel, server := newTestChannel(t, fake)

	fake.respond(http.MethodGet, alphaInstance, http.StatusInternalServerError, nil)
	_, err := channel.IsRunning(context.Background(), server, "alpha")
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.Is(err, ErrUnreachable) {
		t.Fatalf("a served error response is not unreachable: %v", err)
	}
}
