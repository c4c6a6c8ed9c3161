package control

import (
	"context"
	"errors"
	"strings"

	"streamcast/internal/models"
	"streamcast/internal/store"
	"streamcast/internal/wowza"
)

type socialOp string

const (
	socialOpStop    socialOp = "stop"
	socialOpRestart socialOp = "restart"
	socialOpRemove  socialOp = "remove"
)

// socialTransition decides what an operation may do from a given session
// status. pushLive records whether the media server may still hold a push
// for the session, so the stop phase knows to tear it down.
type socialTransition struct {
	allowed  bool
	noop     bool
	pushLive bool
}

// socialTransitions is the session state machine. Statuses missing an
// operation entry reject it.
var socialTransitions = map[string]map[socialOp]socialTransition{
	models.SocialLiveStarting: {
		socialOpStop:    {allowed: true, pushLive: true},
		socialOpRestart: {allowed: true, pushLive: true},
	},
	models.SocialLiveActive: {
		socialOpStop:    {allowed: true, pushLive: true},
		socialOpRestart: {allowed: true, pushLive: true},
	},
	models.SocialLiveStopping: {
		socialOpStop:    {allowed: true, pushLive: true},
		socialOpRestart: {allowed: true, pushLive: true},
	},
	models.SocialLiveStopped: {
		socialOpStop:    {allowed: true, noop: true},
		socialOpRestart: {allowed: true},
		socialOpRemove:  {allowed: true},
	},
	models.SocialLiveError: {
		socialOpStop:    {allowed: true, pushLive: true},
		socialOpRestart: {allowed: true, pushLive: true},
		socialOpRemove:  {allowed: true},
	},
}

func socialDecide(status string, op socialOp) (socialTransition, error) {
	tr, ok := socialTransitions[status][op]
	if !ok {
		return socialTransition{}, validationErr("social live session in state %q does not allow %s", status, op)
	}
	return tr, nil
}

// StartSocialLiveParams describes a push to start. StreamKey is required for
// platforms that demand one; TargetURL overrides the platform base URL and
// is required for the custom platform.
type StartSocialLiveParams struct {
	OwnerID    string
	PlatformID string
	StreamKey  string
	TargetURL  string
}

// StartSocialLive pushes the owner's stream to a social platform. If a
// session for the same platform is already live the call is a successful
// no-op returning it. The session is recorded before the push is started so
// a crash mid-start leaves a visible record to reconcile.
func (o *Orchestrator) StartSocialLive(ctx context.Context, params StartSocialLiveParams) (SocialLiveResult, error) {
	unlock, err := o.locks.acquire(ctx, params.OwnerID)
	if err != nil {
		return SocialLiveResult{}, internalErr("acquire owner lock", err)
	}
	defer unlock()

	ep, err := o.loadEndpoint(ctx, params.OwnerID)
	if err != nil {
		return SocialLiveResult{}, err
	}
	if ep.Blocked {
		return SocialLiveResult{}, validationErr("endpoint for owner %s is blocked", params.OwnerID)
	}
	platform, err := o.resolvePlatform(ctx, params.PlatformID)
	if err != nil {
		return SocialLiveResult{}, err
	}
	target := strings.TrimSpace(params.TargetURL)
	if target == "" {
		target = platform.RTMPBaseURL
	}
	if target == "" {
		return SocialLiveResult{}, validationErr("platform %s requires a target url", platform.ID)
	}
	if platform.RequiresStreamKey && strings.TrimSpace(params.StreamKey) == "" {
		return SocialLiveResult{}, validationErr("platform %s requires a stream key", platform.ID)
	}

	sessions, err := o.repo.ListSocialLives(ctx, params.OwnerID, 0)
	if err != nil {
		return SocialLiveResult{}, internalErr("list social live sessions", err)
	}
	for _, s := range sessions {
		if s.PlatformID == platform.ID &&
			(s.Status == models.SocialLiveActive || s.Status == models.SocialLiveStarting) {
			return SocialLiveResult{Session: s, AlreadyActive: true}, nil
		}
	}

	session := models.SocialLiveSession{
		OwnerID:    params.OwnerID,
		PlatformID: platform.ID,
		Status:     models.SocialLiveStarting,
		RTMPTarget: target,
		StreamKey:  params.StreamKey,
		StartedAt:  o.now().UTC(),
	}
	session, err = o.repo.CreateSocialLive(ctx, session)
	if err != nil {
		return SocialLiveResult{}, internalErr("create social live session", err)
	}

	start, err := o.channel.PushToPlatform(ctx, o.server(ep), ep.Login, wowza.PushParams{
		Name:         "social_" + session.ID,
		TargetURL:    target,
		StreamKey:    params.StreamKey,
		SourceStream: ep.Login,
	})
	if err != nil {
		session.Status = models.SocialLiveError
		if updErr := o.repo.UpdateSocialLive(ctx, session); updErr != nil {
			o.logger.Error("mark social live error failed", "session_id", session.ID, "error", updErr)
		}
		return SocialLiveResult{}, channelErr("start platform push", err)
	}
	session.Status = models.SocialLiveActive
	session.Handle = start.Handle
	session.Method = start.Method
	if err := o.repo.UpdateSocialLive(ctx, session); err != nil {
		return SocialLiveResult{}, internalErr("persist social live session", err)
	}
	o.logger.Info("social live started",
		"owner_id", params.OwnerID, "session_id", session.ID, "platform", platform.ID)
	return SocialLiveResult{Session: session}, nil
}

// StopSocialLive tears down the session's push. A push the media server no
// longer knows about counts as stopped. Stopping an already stopped session
// is a successful no-op.
func (o *Orchestrator) StopSocialLive(ctx context.Context, ownerID, sessionID string) (SocialLiveResult, error) {
	unlock, err := o.locks.acquire(ctx, ownerID)
	if err != nil {
		return SocialLiveResult{}, internalErr("acquire owner lock", err)
	}
	defer unlock()

	ep, session, err := o.loadSocialLive(ctx, ownerID, sessionID)
	if err != nil {
		return SocialLiveResult{}, err
	}
	tr, err := socialDecide(session.Status, socialOpStop)
	if err != nil {
		return SocialLiveResult{}, err
	}
	if tr.noop {
		return SocialLiveResult{Session: session, AlreadyActive: false}, nil
	}
	if tr.pushLive && session.Handle != "" {
		if err := o.channel.StopPush(ctx, o.server(ep), ep.Login, session.Handle); err != nil &&
			!errors.Is(err, wowza.ErrPushNotFound) {
			return SocialLiveResult{}, channelErr("stop platform push", err)
		}
	}
	ended := o.now().UTC()
	session.Status = models.SocialLiveStopped
	session.EndedAt = &ended
	if err := o.repo.UpdateSocialLive(ctx, session); err != nil {
		return SocialLiveResult{}, internalErr("persist social live session", err)
	}
	o.logger.Info("social live stopped", "owner_id", ownerID, "session_id", session.ID)
	return SocialLiveResult{Session: session}, nil
}

// RestartSocialLive is a stop followed by a fresh start. The old session is
// finalized and kept as history; the push resumes under a new session with
// its own id and handle, which is the one returned.
func (o *Orchestrator) RestartSocialLive(ctx context.Context, ownerID, sessionID string) (SocialLiveResult, error) {
	unlock, err := o.locks.acquire(ctx, ownerID)
	if err != nil {
		return SocialLiveResult{}, internalErr("acquire owner lock", err)
	}
	defer unlock()

	ep, session, err := o.loadSocialLive(ctx, ownerID, sessionID)
	if err != nil {
		return SocialLiveResult{}, err
	}
	if ep.Blocked {
		return SocialLiveResult{}, validationErr("endpoint for owner %s is blocked", ownerID)
	}
	tr, err := socialDecide(session.Status, socialOpRestart)
	if err != nil {
		return SocialLiveResult{}, err
	}
	srv := o.server(ep)
	if tr.pushLive && session.Handle != "" {
		if err := o.channel.StopPush(ctx, srv, ep.Login, session.Handle); err != nil &&
			!errors.Is(err, wowza.ErrPushNotFound) {
			return SocialLiveResult{}, channelErr("stop platform push", err)
		}
	}
	if session.Status != models.SocialLiveStopped {
		ended := o.now().UTC()
		session.Status = models.SocialLiveStopped
		session.EndedAt = &ended
		if err := o.repo.UpdateSocialLive(ctx, session); err != nil {
			return SocialLiveResult{}, internalErr("persist social live session", err)
		}
	}

	next := models.SocialLiveSession{
		OwnerID:    session.OwnerID,
		PlatformID: session.PlatformID,
		Status:     models.SocialLiveStarting,
		RTMPTarget: session.RTMPTarget,
		StreamKey:  session.StreamKey,
		StartedAt:  o.now().UTC(),
	}
	next, err = o.repo.CreateSocialLive(ctx, next)
	if err != nil {
		return SocialLiveResult{}, internalErr("create social live session", err)
	}
	start, err := o.channel.PushToPlatform(ctx, srv, ep.Login, wowza.PushParams{
		Name:         "social_" + next.ID,
		TargetURL:    next.RTMPTarget,
		StreamKey:    next.StreamKey,
		SourceStream: ep.Login,
	})
	if err != nil {
		next.Status = models.SocialLiveError
		if updErr := o.repo.UpdateSocialLive(ctx, next); updErr != nil {
			o.logger.Error("mark social live error failed", "session_id", next.ID, "error", updErr)
		}
		return SocialLiveResult{}, channelErr("restart platform push", err)
	}
	next.Status = models.SocialLiveActive
	next.Handle = start.Handle
	next.Method = start.Method
	if err := o.repo.UpdateSocialLive(ctx, next); err != nil {
		return SocialLiveResult{}, internalErr("persist social live session", err)
	}
	o.logger.Info("social live restarted",
		"owner_id", ownerID, "previous_session_id", session.ID, "session_id", next.ID)
	return SocialLiveResult{Session: next}, nil
}

// SocialLiveStatus reports the push as the media server sees it. A push the
// server no longer knows about marks the session stopped, healing records
// left behind by a crash.
func (o *Orchestrator) SocialLiveStatus(ctx context.Context, ownerID, sessionID string) (SocialLiveStatusResult, error) {
	ep, session, err := o.loadSocialLive(ctx, ownerID, sessionID)
	if err != nil {
		return SocialLiveStatusResult{}, err
	}
	if session.Status == models.SocialLiveStopped || session.Handle == "" {
		return SocialLiveStatusResult{Session: session, Active: false}, nil
	}
	activity, err := o.channel.QueryPush(ctx, o.server(ep), ep.Login, session.Handle)
	if err != nil {
		if errors.Is(err, wowza.ErrPushNotFound) {
			ended := o.now().UTC()
			session.Status = models.SocialLiveStopped
			session.EndedAt = &ended
			if updErr := o.repo.UpdateSocialLive(ctx, session); updErr != nil {
				return SocialLiveStatusResult{}, internalErr("persist social live session", updErr)
			}
			return SocialLiveStatusResult{Session: session, Active: false}, nil
		}
		return SocialLiveStatusResult{}, channelErr("query platform push", err)
	}
	if activity.Connected && session.Status == models.SocialLiveStarting {
		session.Status = models.SocialLiveActive
	}
	session.BitrateKbps = activity.BitrateKbps
	session.Viewers = activity.Viewers
	if err := o.repo.UpdateSocialLive(ctx, session); err != nil {
		return SocialLiveStatusResult{}, internalErr("persist social live session", err)
	}
	return SocialLiveStatusResult{Session: session, Active: activity.Connected, Activity: activity}, nil
}

// RemoveSocialLive deletes a session record. Live sessions must be stopped
// first.
func (o *Orchestrator) RemoveSocialLive(ctx context.Context, ownerID, sessionID string) error {
	unlock, err := o.locks.acquire(ctx, ownerID)
	if err != nil {
		return internalErr("acquire owner lock", err)
	}
	defer unlock()

	_, session, err := o.loadSocialLive(ctx, ownerID, sessionID)
	if err != nil {
		return err
	}
	if _, err := socialDecide(session.Status, socialOpRemove); err != nil {
		return err
	}
	if err := o.repo.DeleteSocialLive(ctx, sessionID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return notFoundErr("social live session %s not found", sessionID)
		}
		return internalErr("delete social live session", err)
	}
	return nil
}

// ListSocialLives returns the owner's sessions, newest first.
func (o *Orchestrator) ListSocialLives(ctx context.Context, ownerID string) ([]models.SocialLiveSession, error) {
	if _, err := o.loadEndpoint(ctx, ownerID); err != nil {
		return nil, err
	}
	sessions, err := o.repo.ListSocialLives(ctx, ownerID, 0)
	if err != nil {
		return nil, internalErr("list social live sessions", err)
	}
	return sessions, nil
}

func (o *Orchestrator) loadSocialLive(ctx context.Context, ownerID, sessionID string) (models.StreamEndpoint, models.SocialLiveSession, error) {
	if sessionID == "" {
		return models.StreamEndpoint{}, models.SocialLiveSession{}, validationErr("session id is required")
	}
	ep, err := o.loadEndpoint(ctx, ownerID)
	if err != nil {
		return models.StreamEndpoint{}, models.SocialLiveSession{}, err
	}
	session, ok, err := o.repo.GetSocialLive(ctx, sessionID)
	if err != nil {
		return models.StreamEndpoint{}, models.SocialLiveSession{}, internalErr("load social live session", err)
	}
	if !ok || session.OwnerID != ownerID {
		return models.StreamEndpoint{}, models.SocialLiveSession{}, notFoundErr("social live session %s not found", sessionID)
	}
	return ep, session, nil
}
