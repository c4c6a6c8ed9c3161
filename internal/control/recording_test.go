package control

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"streamcast/internal/models"
)

func TestStartRecordingSpawnsCapture(t *testing.T) {
	env := newTestEnv(t)
	res, err := env.orch.StartRecording(context.Background(), testOwner, "Late Show")
	if err != nil {
		t.Fatalf("StartRecording: %v", err)
	}
	session := res.Session
	if session.Status != models.RecordingActive || session.ProcessID == 0 {
		t.Fatalf("unexpected session %+v", session)
	}
	if !strings.HasPrefix(session.Filename, "recording_late-show_") || !strings.HasSuffix(session.Filename, ".mp4") {
		t.Fatalf("unexpected filename %q", session.Filename)
	}
	wantDir := filepath.Join(testLogin, "recordings")
	if !strings.Contains(session.Path, wantDir) {
		t.Fatalf("path %q should live under %q", session.Path, wantDir)
	}
	if len(env.supervisor.spawned) != 1 || env.supervisor.spawned[0] != session.Path {
		t.Fatalf("unexpected spawns %v", env.supervisor.spawned)
	}
}

func TestStartRecordingRejectsSecondCapture(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	if _, err := env.orch.StartRecording(ctx, testOwner, ""); err != nil {
		t.Fatalf("first StartRecording: %v", err)
	}
	_, err := env.orch.StartRecording(ctx, testOwner, "")
	wantKind(t, err, KindValidation)
	if len(env.supervisor.spawned) != 1 {
		t.Fatalf("second start must not spawn, got %d", len(env.supervisor.spawned))
	}
}

func TestStartRecordingSpawnFailure(t *testing.T) {
	env := newTestEnv(t)
	env.supervisor.spawnErr = errors.New("ffmpeg not found")
	ctx := context.Background()
	_, err := env.orch.StartRecording(ctx, testOwner, "")
	wantKind(t, err, KindProcess)
	if _, ok, _ := env.repo.ActiveRecording(ctx, testOwner); ok {
		t.Fatal("no session should exist after spawn failure")
	}
}

func TestStopRecordingMeasuresAndFinalizes(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	started, err := env.orch.StartRecording(ctx, testOwner, "")
	if err != nil {
		t.Fatalf("StartRecording: %v", err)
	}
	env.supervisor.sizes[started.Session.Path] = 1 << 20

	res, err := env.orch.StopRecording(ctx, testOwner)
	if err != nil {
		t.Fatalf("StopRecording: %v", err)
	}
	if res.AlreadyStopped {
		t.Fatal("unexpected already-stopped")
	}
	if res.Session.Status != models.RecordingStopped || res.Session.EndedAt == nil {
		t.Fatalf("session not finalized: %+v", res.Session)
	}
	if res.SizeBytes != 1<<20 {
		t.Fatalf("unexpected size %d", res.SizeBytes)
	}
	if len(env.supervisor.terminated) != 1 || env.supervisor.terminated[0] != started.Session.ProcessID {
		t.Fatalf("unexpected terminations %v", env.supervisor.terminated)
	}
}

func TestStopRecordingWithoutCaptureIsNoOp(t *testing.T) {
	env := newTestEnv(t)
	res, err := env.orch.StopRecording(context.Background(), testOwner)
	if err != nil {
		t.Fatalf("StopRecording: %v", err)
	}
	if !res.AlreadyStopped {
		t.Fatal("expected already-stopped")
	}
}

func TestStopRecordingSizeFailureStillStops(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	if _, err := env.orch.StartRecording(ctx, testOwner, ""); err != nil {
		t.Fatalf("StartRecording: %v", err)
	}
	env.supervisor.sizeErr = errors.New("stat: no such file")

	res, err := env.orch.StopRecording(ctx, testOwner)
	if err != nil {
		t.Fatalf("StopRecording: %v", err)
	}
	if res.Session.Status != models.RecordingStopped {
		t.Fatalf("expected stopped, got %q", res.Session.Status)
	}
	if res.SizeBytes != 0 {
		t.Fatalf("unmeasurable artifact should report zero, got %d", res.SizeBytes)
	}
}

func TestStopRecordingArchivesArtifact(t *testing.T) {
	env := newTestEnv(t)
	env.archive.enabled = true
	ctx := context.Background()
	started, err := env.orch.StartRecording(ctx, testOwner, "")
	if err != nil {
		t.Fatalf("StartRecording: %v", err)
	}
	env.supervisor.sizes[started.Session.Path] = 2048

	res, err := env.orch.StopRecording(ctx, testOwner)
	if err != nil {
		t.Fatalf("StopRecording: %v", err)
	}
	if res.ArchiveURL == "" {
		t.Fatal("expected an archive url")
	}
	if len(env.archive.stored) != 1 {
		t.Fatalf("expected one archived object, got %v", env.archive.stored)
	}
}

func TestStopRecordingArchiveFailureIsBestEffort(t *testing.T) {
	env := newTestEnv(t)
	env.archive.enabled = true
	env.archive.err = errors.New("bucket unavailable")
	ctx := context.Background()
	started, err := env.orch.StartRecording(ctx, testOwner, "")
	if err != nil {
		t.Fatalf("StartRecording: %v", err)
	}
	env.supervisor.sizes[started.Session.Path] = 2048

	res, err := env.orch.StopRecording(ctx, testOwner)
	if err != nil {
		t.Fatalf("StopRecording: %v", err)
	}
	if res.Session.Status != models.RecordingStopped || res.ArchiveURL != "" {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestStartRecordingBlockedEndpointRefused(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	if err := env.orch.Block(ctx, Actor{ID: "admin-1", Role: models.RoleAdmin}, testOwner); err != nil {
		t.Fatalf("Block: %v", err)
	}
	_, err := env.orch.StartRecording(ctx, testOwner, "")
	wantKind(t, err, KindValidation)
}
