package models

import (
	"strings"
	"time"
)

// Transmission status values.
const (
	TransmissionActive   = "active"
	TransmissionFinished = "finished"
)

// Transmission kinds.
const (
	TransmissionKindPlaylist = "playlist"
	TransmissionKindExternal = "external-source"
)

// SocialLiveSession status values.
const (
	SocialLiveStarting = "starting"
	SocialLiveActive   = "active"
	SocialLiveStopping = "stopping"
	SocialLiveStopped  = "stopped"
	SocialLiveError    = "error"
)

// RecordingSession status values.
const (
	RecordingActive  = "recording"
	RecordingStopped = "stopped"
	RecordingError   = "error"
)

// Actor roles permitted to run elevated operations.
const (
	RoleAdmin    = "admin"
	RoleReseller = "reseller"
)

// ElevatedRole reports whether the role may run block/unblock/remove,
// ignoring case.
func ElevatedRole(role string) bool {
	return strings.EqualFold(role, RoleAdmin) || strings.EqualFold(role, RoleReseller)
}

// StreamEndpoint binds an owner to the media server instance and application
// name their streams use. One per owner.
type StreamEndpoint struct {
	OwnerID     string    `json:"ownerId"`
	Login       string    `json:"login"`
	ServerHost  string    `json:"serverHost"`
	APIBaseURL  string    `json:"apiBaseUrl"`
	APIUsername string    `json:"apiUsername"`
	APIPassword string    `json:"apiPassword"`
	RTMPPort    int       `json:"rtmpPort"`
	Blocked     bool      `json:"blocked"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Transmission is a playlist-driven or external-source broadcast. Rows are
// never deleted; stopping or superseding a transmission finalizes it.
type Transmission struct {
	ID          string     `json:"id"`
	OwnerID     string     `json:"ownerId"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	PlaylistID  *string    `json:"playlistId,omitempty"`
	Status      string     `json:"status"`
	Kind        string     `json:"kind"`
	StartedAt   time.Time  `json:"startedAt"`
	EndedAt     *time.Time `json:"endedAt,omitempty"`
}

// SocialLiveSession is one push of the owner's stream to an external
// platform. Handle is the remote process or session identifier returned when
// the push started; stop and restart must present exactly this handle.
type SocialLiveSession struct {
	ID          string     `json:"id"`
	OwnerID     string     `json:"ownerId"`
	PlatformID  string     `json:"platformId"`
	Status      string     `json:"status"`
	Handle      string     `json:"handle,omitempty"`
	Method      string     `json:"method,omitempty"`
	RTMPTarget  string     `json:"rtmpTarget,omitempty"`
	StreamKey   string     `json:"streamKey,omitempty"`
	BitrateKbps int        `json:"bitrateKbps,omitempty"`
	Viewers     int        `json:"viewers,omitempty"`
	StartedAt   time.Time  `json:"startedAt"`
	EndedAt     *time.Time `json:"endedAt,omitempty"`
}

// RecordingSession is a local capture of the owner's published output.
type RecordingSession struct {
	ID         string     `json:"id"`
	OwnerID    string     `json:"ownerId"`
	Filename   string     `json:"filename"`
	Path       string     `json:"path"`
	Status     string     `json:"status"`
	SizeBytes  int64      `json:"sizeBytes"`
	ProcessID  int        `json:"processId,omitempty"`
	ArchiveURL string     `json:"archiveUrl,omitempty"`
	StartedAt  time.Time  `json:"startedAt"`
	EndedAt    *time.Time `json:"endedAt,omitempty"`
}

// Playlist is the minimal view of a playlist the orchestrator validates
// before starting a transmission.
type Playlist struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"ownerId"`
	Name      string    `json:"name"`
	ItemCount int       `json:"itemCount"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Platform describes a social streaming destination.
type Platform struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	RTMPBaseURL       string `json:"rtmpBaseUrl"`
	RequiresStreamKey bool   `json:"requiresStreamKey"`
	SupportsHTTPS     bool   `json:"supportsHttps"`
}
