package control

import (
	"context"
	"errors"
	"strings"

	"streamcast/internal/manifest"
	"streamcast/internal/models"
)

// StartTransmissionParams describes the broadcast to start. PlaylistID is
// required for playlist transmissions and must be empty for external-source
// ones.
type StartTransmissionParams struct {
	OwnerID     string
	Title       string
	Description string
	Kind        string
	PlaylistID  string
}

func (p *StartTransmissionParams) normalize() error {
	p.Title = strings.TrimSpace(p.Title)
	if p.OwnerID == "" {
		return validationErr("owner id is required")
	}
	if p.Title == "" {
		return validationErr("transmission title is required")
	}
	if p.Kind == "" {
		if p.PlaylistID != "" {
			p.Kind = models.TransmissionKindPlaylist
		} else {
			p.Kind = models.TransmissionKindExternal
		}
	}
	switch p.Kind {
	case models.TransmissionKindPlaylist:
		if p.PlaylistID == "" {
			return validationErr("playlist transmission requires a playlist id")
		}
	case models.TransmissionKindExternal:
		if p.PlaylistID != "" {
			return validationErr("external-source transmission cannot reference a playlist")
		}
	default:
		return validationErr("unknown transmission kind %q", p.Kind)
	}
	return nil
}

// StartTransmission begins a broadcast for the owner. An already active
// transmission is finalized first so the new one supersedes it. For playlist
// transmissions the manifest must provision successfully; otherwise the new
// record is rolled back and no transmission is active. Channel activation is
// confirmed last and reports a warning rather than a failure, because at
// that point the transmission record and manifest are already in place.
func (o *Orchestrator) StartTransmission(ctx context.Context, params StartTransmissionParams) (StartTransmissionResult, error) {
	if err := params.normalize(); err != nil {
		return StartTransmissionResult{}, err
	}
	unlock, err := o.locks.acquire(ctx, params.OwnerID)
	if err != nil {
		return StartTransmissionResult{}, internalErr("acquire owner lock", err)
	}
	defer unlock()

	ep, err := o.loadEndpoint(ctx, params.OwnerID)
	if err != nil {
		return StartTransmissionResult{}, err
	}
	if ep.Blocked {
		return StartTransmissionResult{}, validationErr("endpoint for owner %s is blocked", params.OwnerID)
	}

	var playlistID *string
	if params.Kind == models.TransmissionKindPlaylist {
		pl, ok, err := o.repo.GetPlaylist(ctx, params.PlaylistID)
		if err != nil {
			return StartTransmissionResult{}, internalErr("load playlist", err)
		}
		if !ok || pl.OwnerID != params.OwnerID {
			return StartTransmissionResult{}, notFoundErr("playlist %s not found", params.PlaylistID)
		}
		if pl.ItemCount == 0 {
			return StartTransmissionResult{}, validationErr("playlist %s has no items", params.PlaylistID)
		}
		id := pl.ID
		playlistID = &id
	}

	result := StartTransmissionResult{URLs: deriveSourceURLs(ep)}

	current, ok, err := o.repo.ActiveTransmission(ctx, params.OwnerID)
	if err != nil {
		return StartTransmissionResult{}, internalErr("load active transmission", err)
	}
	if ok {
		if err := o.finalizeTransmission(ctx, current); err != nil {
			return StartTransmissionResult{}, err
		}
		id := current.ID
		result.Superseded = &id
		o.logger.Info("transmission superseded",
			"owner_id", params.OwnerID, "transmission_id", current.ID)
	}

	tx := models.Transmission{
		OwnerID:     params.OwnerID,
		Title:       params.Title,
		Description: params.Description,
		PlaylistID:  playlistID,
		Status:      models.TransmissionActive,
		Kind:        params.Kind,
		StartedAt:   o.now().UTC(),
	}
	tx, err = o.repo.CreateTransmission(ctx, tx)
	if err != nil {
		return StartTransmissionResult{}, internalErr("create transmission", err)
	}

	if params.Kind == models.TransmissionKindPlaylist {
		res, err := o.provisioner.Provision(ctx, ep.Login, *playlistID)
		if err != nil {
			if rbErr := o.finalizeTransmission(ctx, tx); rbErr != nil {
				o.logger.Error("transmission rollback failed",
					"transmission_id", tx.ID, "error", rbErr)
			}
			message := "provision manifest"
			if errors.Is(err, manifest.ErrUnreachable) {
				message += ": manifest service unreachable"
			}
			return StartTransmissionResult{}, remoteErr(message, err)
		}
		result.ManifestName = res.ManifestName
		result.ItemCount = res.ItemCount
	}

	running, err := o.channel.IsRunning(ctx, o.server(ep), ep.Login)
	if err != nil {
		result.Warning = "transmission started but channel activation could not be confirmed"
		o.logger.Warn("channel state unconfirmed",
			"owner_id", params.OwnerID, "transmission_id", tx.ID, "error", err)
	} else if !running {
		if err := o.channel.Activate(ctx, o.server(ep), ep.Login); err != nil {
			result.Warning = "transmission started but channel activation could not be confirmed"
			o.logger.Warn("channel activation unconfirmed",
				"owner_id", params.OwnerID, "transmission_id", tx.ID, "error", err)
		}
	}

	result.Transmission = tx
	o.logger.Info("transmission started",
		"owner_id", params.OwnerID, "transmission_id", tx.ID, "kind", tx.Kind)
	return result, nil
}

// StopTransmission finalizes the owner's transmission. The remote application
// is left running, idle and ready for the next start. Stopping a transmission
// that already finished is a successful no-op. A transmission belonging to
// another owner reports not found.
func (o *Orchestrator) StopTransmission(ctx context.Context, ownerID, transmissionID string) (StopTransmissionResult, error) {
	if transmissionID == "" {
		return StopTransmissionResult{}, validationErr("transmission id is required")
	}
	unlock, err := o.locks.acquire(ctx, ownerID)
	if err != nil {
		return StopTransmissionResult{}, internalErr("acquire owner lock", err)
	}
	defer unlock()

	if _, err := o.loadEndpoint(ctx, ownerID); err != nil {
		return StopTransmissionResult{}, err
	}
	tx, ok, err := o.repo.GetTransmission(ctx, transmissionID)
	if err != nil {
		return StopTransmissionResult{}, internalErr("load transmission", err)
	}
	if !ok || tx.OwnerID != ownerID {
		return StopTransmissionResult{}, notFoundErr("transmission %s not found", transmissionID)
	}
	if tx.Status == models.TransmissionFinished {
		return StopTransmissionResult{Transmission: tx, AlreadyFinished: true}, nil
	}
	if err := o.finalizeTransmission(ctx, tx); err != nil {
		return StopTransmissionResult{}, err
	}
	tx.Status = models.TransmissionFinished
	ended := o.now().UTC()
	tx.EndedAt = &ended
	o.logger.Info("transmission stopped", "owner_id", ownerID, "transmission_id", tx.ID)
	return StopTransmissionResult{Transmission: tx}, nil
}

// ReloadSchedule re-provisions the manifest for the owner's active playlist
// transmission, picking up playlist edits without restarting the broadcast.
func (o *Orchestrator) ReloadSchedule(ctx context.Context, ownerID string) (ReloadScheduleResult, error) {
	unlock, err := o.locks.acquire(ctx, ownerID)
	if err != nil {
		return ReloadScheduleResult{}, internalErr("acquire owner lock", err)
	}
	defer unlock()

	ep, err := o.loadEndpoint(ctx, ownerID)
	if err != nil {
		return ReloadScheduleResult{}, err
	}
	tx, ok, err := o.repo.ActiveTransmission(ctx, ownerID)
	if err != nil {
		return ReloadScheduleResult{}, internalErr("load active transmission", err)
	}
	if !ok {
		return ReloadScheduleResult{}, notFoundErr("no active transmission for owner %s", ownerID)
	}
	if tx.Kind != models.TransmissionKindPlaylist || tx.PlaylistID == nil {
		return ReloadScheduleResult{}, validationErr("active transmission has no playlist schedule")
	}
	res, err := o.provisioner.Provision(ctx, ep.Login, *tx.PlaylistID)
	if err != nil {
		return ReloadScheduleResult{}, remoteErr("provision manifest", err)
	}
	o.logger.Info("schedule reloaded",
		"owner_id", ownerID, "transmission_id", tx.ID, "items", res.ItemCount)
	return ReloadScheduleResult{Transmission: tx, ManifestName: res.ManifestName, ItemCount: res.ItemCount}, nil
}

// ListTransmissions returns the owner's transmission history, newest first.
func (o *Orchestrator) ListTransmissions(ctx context.Context, ownerID string) ([]models.Transmission, error) {
	if _, err := o.loadEndpoint(ctx, ownerID); err != nil {
		return nil, err
	}
	list, err := o.repo.ListTransmissions(ctx, ownerID, 0)
	if err != nil {
		return nil, internalErr("list transmissions", err)
	}
	return list, nil
}

func (o *Orchestrator) finalizeTransmission(ctx context.Context, tx models.Transmission) error {
	ended := o.now().UTC()
	tx.Status = models.TransmissionFinished
	tx.EndedAt = &ended
	if err := o.repo.UpdateTransmission(ctx, tx); err != nil {
		return internalErr("finalize transmission", err)
	}
	return nil
}
