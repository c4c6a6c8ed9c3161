package control

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"streamcast/internal/capture"
	"streamcast/internal/models"
)

// StartRecording captures the owner's published output to disk. At most one
// recording per owner can run; a second start is rejected rather than
// superseding the first, because killing a capture mid-file loses footage.
func (o *Orchestrator) StartRecording(ctx context.Context, ownerID, label string) (RecordingStartResult, error) {
	unlock, err := o.locks.acquire(ctx, ownerID)
	if err != nil {
		return RecordingStartResult{}, internalErr("acquire owner lock", err)
	}
	defer unlock()

	ep, err := o.loadEndpoint(ctx, ownerID)
	if err != nil {
		return RecordingStartResult{}, err
	}
	if ep.Blocked {
		return RecordingStartResult{}, validationErr("endpoint for owner %s is blocked", ownerID)
	}
	if o.supervisor == nil {
		return RecordingStartResult{}, processErr("recording is not enabled on this instance", nil)
	}
	if _, ok, err := o.repo.ActiveRecording(ctx, ownerID); err != nil {
		return RecordingStartResult{}, internalErr("load active recording", err)
	} else if ok {
		return RecordingStartResult{}, validationErr("a recording is already running for owner %s", ownerID)
	}

	startedAt := o.now().UTC()
	filename := capture.Filename(label, startedAt)
	dir := filepath.Join(o.recordingRoot, ep.Login, "recordings")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return RecordingStartResult{}, processErr("create recording directory", err)
	}
	destPath := filepath.Join(dir, filename)
	sourceURL := deriveSourceURLs(ep).HLS

	handle, err := o.supervisor.Spawn(sourceURL, destPath)
	if err != nil {
		return RecordingStartResult{}, processErr("spawn capture process", err)
	}
	session := models.RecordingSession{
		OwnerID:   ownerID,
		Filename:  filename,
		Path:      destPath,
		Status:    models.RecordingActive,
		ProcessID: handle.PID,
		StartedAt: startedAt,
	}
	session, err = o.repo.CreateRecording(ctx, session)
	if err != nil {
		if termErr := o.supervisor.Terminate(handle); termErr != nil {
			o.logger.Error("orphaned capture terminate failed", "pid", handle.PID, "error", termErr)
		}
		return RecordingStartResult{}, internalErr("create recording session", err)
	}
	o.logger.Info("recording started",
		"owner_id", ownerID, "session_id", session.ID, "pid", handle.PID, "path", destPath)
	return RecordingStartResult{Session: session}, nil
}

// StopRecording terminates the owner's capture, waits for the file to
// settle, then records its size. Measurement and archival are best effort;
// the session always ends up stopped. With no recording running the call is
// a successful no-op.
func (o *Orchestrator) StopRecording(ctx context.Context, ownerID string) (RecordingStopResult, error) {
	unlock, err := o.locks.acquire(ctx, ownerID)
	if err != nil {
		return RecordingStopResult{}, internalErr("acquire owner lock", err)
	}
	defer unlock()

	if _, err := o.loadEndpoint(ctx, ownerID); err != nil {
		return RecordingStopResult{}, err
	}
	session, ok, err := o.repo.ActiveRecording(ctx, ownerID)
	if err != nil {
		return RecordingStopResult{}, internalErr("load active recording", err)
	}
	if !ok {
		return RecordingStopResult{AlreadyStopped: true}, nil
	}
	if o.supervisor != nil {
		if err := o.supervisor.Terminate(capture.Handle{PID: session.ProcessID}); err != nil {
			o.logger.Warn("capture terminate failed",
				"session_id", session.ID, "pid", session.ProcessID, "error", err)
		}
		select {
		case <-time.After(o.recordingSettle):
		case <-ctx.Done():
		}
		if size, err := o.supervisor.Size(session.Path); err != nil {
			o.logger.Warn("recording size unavailable", "path", session.Path, "error", err)
		} else {
			session.SizeBytes = size
		}
	}

	ended := o.now().UTC()
	session.Status = models.RecordingStopped
	session.EndedAt = &ended

	if o.archive != nil && o.archive.Enabled() && session.SizeBytes > 0 {
		key := fmt.Sprintf("recordings/%s/%s", ownerID, session.Filename)
		if ref, err := o.archive.Store(ctx, key, "video/mp4", session.Path); err != nil {
			o.logger.Warn("recording archive failed", "session_id", session.ID, "error", err)
		} else {
			session.ArchiveURL = ref.URL
		}
	}
	if err := o.repo.UpdateRecording(ctx, session); err != nil {
		return RecordingStopResult{}, internalErr("persist recording session", err)
	}
	o.logger.Info("recording stopped",
		"owner_id", ownerID, "session_id", session.ID, "size_bytes", session.SizeBytes)
	return RecordingStopResult{
		Session:    session,
		SizeBytes:  session.SizeBytes,
		ArchiveURL: session.ArchiveURL,
	}, nil
}
