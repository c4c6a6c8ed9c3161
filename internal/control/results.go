package control

import (
	"fmt"

	"streamcast/internal/models"
	"streamcast/internal/wowza"
)

// SourceURLs carries every address a viewer or encoder can use to reach an
// owner's stream.
type SourceURLs struct {
	HLS         string `json:"hls"`
	RTMP        string `json:"rtmp"`
	RTMPS       string `json:"rtmps"`
	Recommended string `json:"recommended"`
}

func deriveSourceURLs(ep models.StreamEndpoint) SourceURLs {
	port := ep.RTMPPort
	if port == 0 {
		port = 1935
	}
	urls := SourceURLs{
		HLS:   fmt.Sprintf("https://%s/%s/%s/playlist.m3u8", ep.ServerHost, ep.Login, ep.Login),
		RTMP:  fmt.Sprintf("rtmp://%s:%d/%s/%s", ep.ServerHost, port, ep.Login, ep.Login),
		RTMPS: fmt.Sprintf("rtmps://%s:443/%s/%s", ep.ServerHost, ep.Login, ep.Login),
	}
	urls.Recommended = urls.HLS
	return urls
}

// ToggleResult reports a power state change. AlreadyInState is set when the
// endpoint was already where the caller asked it to be and nothing was sent
// to the media server.
type ToggleResult struct {
	Running        bool `json:"running"`
	AlreadyInState bool `json:"already_in_state,omitempty"`
}

// RestartResult reports the two phases of a restart.
type RestartResult struct {
	Stopped bool `json:"stopped"`
	Started bool `json:"started"`
}

// EndpointStatus is a read-only snapshot of an owner's endpoint.
type EndpointStatus struct {
	Login        string               `json:"login"`
	Running      bool                 `json:"running"`
	Blocked      bool                 `json:"blocked"`
	Transmission *models.Transmission `json:"transmission,omitempty"`
	URLs         SourceURLs           `json:"urls"`
}

// StartTransmissionResult reports a newly started transmission. Warning is
// non-empty when the manifest was provisioned but the channel activation
// outcome could not be confirmed; the transmission is still active.
type StartTransmissionResult struct {
	Transmission models.Transmission `json:"transmission"`
	ManifestName string              `json:"manifest_name"`
	ItemCount    int                 `json:"item_count"`
	URLs         SourceURLs          `json:"urls"`
	Superseded   *string             `json:"superseded,omitempty"`
	Warning      string              `json:"warning,omitempty"`
}

// StopTransmissionResult reports a finished transmission. AlreadyFinished
// is set when the transmission had ended before the call.
type StopTransmissionResult struct {
	Transmission    models.Transmission `json:"transmission"`
	AlreadyFinished bool                `json:"already_finished,omitempty"`
}

// ReloadScheduleResult reports a re-provisioned manifest for the active
// transmission.
type ReloadScheduleResult struct {
	Transmission models.Transmission `json:"transmission"`
	ManifestName string              `json:"manifest_name"`
	ItemCount    int                 `json:"item_count"`
}

// SocialLiveResult reports a social push lifecycle change.
type SocialLiveResult struct {
	Session       models.SocialLiveSession `json:"session"`
	AlreadyActive bool                     `json:"already_active,omitempty"`
}

// SocialLiveStatusResult reports the live activity of a social push as seen
// by the media server.
type SocialLiveStatusResult struct {
	Session  models.SocialLiveSession `json:"session"`
	Active   bool                     `json:"active"`
	Activity wowza.PushActivity       `json:"activity"`
}

// RecordingStartResult reports a newly spawned capture.
type RecordingStartResult struct {
	Session models.RecordingSession `json:"session"`
}

// RecordingStopResult reports a terminated capture. AlreadyStopped is set
// when no capture was running; SizeBytes is zero when the artifact could not
// be measured.
type RecordingStopResult struct {
	Session        models.RecordingSession `json:"session"`
	SizeBytes      int64                   `json:"size_bytes"`
	ArchiveURL     string                  `json:"archive_url,omitempty"`
	AlreadyStopped bool                    `json:"already_stopped,omitempty"`
}

// DiagnosticStatus grades a single diagnostic check.
type DiagnosticStatus string

const (
	DiagnosticOK      DiagnosticStatus = "success"
	DiagnosticWarning DiagnosticStatus = "warning"
	DiagnosticError   DiagnosticStatus = "error"
)

// Diagnostic is one entry in a diagnostics report.
type Diagnostic struct {
	Status  DiagnosticStatus `json:"status"`
	Title   string           `json:"title"`
	Message string           `json:"message"`
	Detail  string           `json:"details,omitempty"`
}

// IncomingStreamStatus reports whether an encoder is currently publishing
// into the owner's application.
type IncomingStreamStatus struct {
	Publishing bool                   `json:"publishing"`
	Streams    []wowza.IncomingStream `json:"streams,omitempty"`
}
