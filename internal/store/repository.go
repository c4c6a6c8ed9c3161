package store

import (
	"context"
	"errors"

	"streamcast/internal/models"
)

// ErrNotFound is returned when a record does not exist. Callers that need to
// hide existence from foreign owners are expected to translate ownership
// mismatches into the same error.
var ErrNotFound = errors.New("record not found")

// Repository exposes the datastore operations required by the lifecycle
// orchestrator. ActiveTransmission and ActiveRecording are authoritative:
// the orchestrator re-checks them immediately before mutating, inside the
// owner lock.
type Repository interface {
	Ping(ctx context.Context) error
	Close(ctx context.Context) error

	GetEndpoint(ctx context.Context, ownerID string) (models.StreamEndpoint, bool, error)
	UpsertEndpoint(ctx context.Context, endpoint models.StreamEndpoint) (models.StreamEndpoint, error)
	SetEndpointBlocked(ctx context.Context, ownerID string, blocked bool) (models.StreamEndpoint, error)
	DeleteEndpoint(ctx context.Context, ownerID string) error

	UpsertPlaylist(ctx context.Context, playlist models.Playlist) (models.Playlist, error)
	GetPlaylist(ctx context.Context, id string) (models.Playlist, bool, error)

	CreateTransmission(ctx context.Context, transmission models.Transmission) (models.Transmission, error)
	GetTransmission(ctx context.Context, id string) (models.Transmission, bool, error)
	UpdateTransmission(ctx context.Context, transmission models.Transmission) error
	ActiveTransmission(ctx context.Context, ownerID string) (models.Transmission, bool, error)
	ListTransmissions(ctx context.Context, ownerID string, limit int) ([]models.Transmission, error)

	CreateSocialLive(ctx context.Context, session models.SocialLiveSession) (models.SocialLiveSession, error)
	GetSocialLive(ctx context.Context, id string) (models.SocialLiveSession, bool, error)
	UpdateSocialLive(ctx context.Context, session models.SocialLiveSession) error
	DeleteSocialLive(ctx context.Context, id string) error
	ListSocialLives(ctx context.Context, ownerID string, limit int) ([]models.SocialLiveSession, error)

	CreateRecording(ctx context.Context, session models.RecordingSession) (models.RecordingSession, error)
	GetRecording(ctx context.Context, id string) (models.RecordingSession, bool, error)
	UpdateRecording(ctx context.Context, session models.RecordingSession) error
	ActiveRecording(ctx context.Context, ownerID string) (models.RecordingSession, bool, error)

	ListPlatforms(ctx context.Context) ([]models.Platform, error)
	UpsertPlatform(ctx context.Context, platform models.Platform) (models.Platform, error)
}

var _ Repository = (*Memory)(nil)
