package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"streamcast/internal/control"
	"streamcast/internal/observability/logging"
	"streamcast/internal/store"
)

// Handler fronts the control plane REST API.
type Handler struct {
	Control *control.Orchestrator
	Store   store.Repository
	Logger  *slog.Logger
}

func NewHandler(orch *control.Orchestrator, repo store.Repository, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{Control: orch, Store: repo, Logger: logger}
}

// Actor identity is established upstream; the deployment fronts this API
// with its account system and forwards the caller's identity in headers.
func actorFromRequest(r *http.Request) control.Actor {
	return control.Actor{
		ID:   strings.TrimSpace(r.Header.Get("X-Actor-Id")),
		Role: strings.TrimSpace(r.Header.Get("X-Actor-Role")),
	}
}

// Health reports liveness and datastore reachability.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
		return
	}
	if h.Store != nil {
		if err := h.Store.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Platforms lists the social platform catalog.
func (h *Handler) Platforms(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
		return
	}
	platforms, err := h.Control.ListPlatforms(r.Context())
	if err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, platforms)
}

// Endpoints routes every /api/endpoints/{owner}... request.
func (h *Handler) Endpoints(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/endpoints/"), "/")
	parts := strings.Split(rest, "/")
	if rest == "" || parts[0] == "" {
		writeError(w, http.StatusNotFound, errors.New("owner id is required"))
		return
	}
	ownerID := parts[0]
	r = r.WithContext(logging.ContextWithOwnerID(r.Context(), ownerID))

	switch {
	case len(parts) == 1:
		h.endpointRoot(w, r, ownerID)
	case parts[1] == "power" && len(parts) == 2:
		h.power(w, r, ownerID)
	case parts[1] == "block" && len(parts) == 2:
		h.block(w, r, ownerID, true)
	case parts[1] == "unblock" && len(parts) == 2:
		h.block(w, r, ownerID, false)
	case parts[1] == "urls" && len(parts) == 2:
		h.urls(w, r, ownerID)
	case parts[1] == "incoming-streams" && len(parts) == 2:
		h.incomingStreams(w, r, ownerID)
	case parts[1] == "diagnostics" && len(parts) == 2:
		h.diagnostics(w, r, ownerID)
	case parts[1] == "transmissions" && len(parts) == 2:
		h.transmissions(w, r, ownerID)
	case parts[1] == "transmissions" && len(parts) == 3:
		h.transmissionByID(w, r, ownerID, parts[2])
	case parts[1] == "schedule" && len(parts) == 3 && parts[2] == "reload":
		h.reloadSchedule(w, r, ownerID)
	case parts[1] == "social-lives":
		h.socialLives(w, r, ownerID, parts[2:])
	case parts[1] == "recordings" && len(parts) == 2:
		h.startRecording(w, r, ownerID)
	case parts[1] == "recordings" && len(parts) == 3 && parts[2] == "stop":
		h.stopRecording(w, r, ownerID)
	default:
		writeError(w, http.StatusNotFound, fmt.Errorf("no route for %s", r.URL.Path))
	}
}

func (h *Handler) endpointRoot(w http.ResponseWriter, r *http.Request, ownerID string) {
	switch r.Method {
	case http.MethodGet:
		status, err := h.Control.Status(r.Context(), ownerID)
		if err != nil {
			writeOpError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, status)
	case http.MethodDelete:
		if err := h.Control.Remove(r.Context(), actorFromRequest(r), ownerID); err != nil {
			writeOpError(w, err)
			return
		}
		writeJSON(w, http.StatusNoContent, nil)
	default:
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
	}
}

func (h *Handler) power(w http.ResponseWriter, r *http.Request, ownerID string) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
		return
	}
	var body struct {
		Action string `json:"action"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	switch body.Action {
	case "on":
		res, err := h.Control.ToggleOn(r.Context(), ownerID)
		if err != nil {
			writeOpError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	case "off":
		res, err := h.Control.ToggleOff(r.Context(), ownerID)
		if err != nil {
			writeOpError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	case "restart":
		res, err := h.Control.Restart(r.Context(), ownerID)
		if err != nil {
			writeOpError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	default:
		writeError(w, http.StatusBadRequest, fmt.Errorf("unknown power action %q", body.Action))
	}
}

func (h *Handler) block(w http.ResponseWriter, r *http.Request, ownerID string, blocked bool) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
		return
	}
	actor := actorFromRequest(r)
	var err error
	if blocked {
		err = h.Control.Block(r.Context(), actor, ownerID)
	} else {
		err = h.Control.Unblock(r.Context(), actor, ownerID)
	}
	if err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"blocked": blocked})
}

func (h *Handler) urls(w http.ResponseWriter, r *http.Request, ownerID string) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
		return
	}
	urls, err := h.Control.SourceURLs(r.Context(), ownerID)
	if err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, urls)
}

func (h *Handler) incomingStreams(w http.ResponseWriter, r *http.Request, ownerID string) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
		return
	}
	status, err := h.Control.IncomingStreamState(r.Context(), ownerID)
	if err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (h *Handler) diagnostics(w http.ResponseWriter, r *http.Request, ownerID string) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
		return
	}
	var body struct {
		Checks []string `json:"checks"`
	}
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}
	results, err := h.Control.RunDiagnostics(r.Context(), ownerID, body.Checks)
	if err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"results": results})
}

func (h *Handler) transmissions(w http.ResponseWriter, r *http.Request, ownerID string) {
	switch r.Method {
	case http.MethodGet:
		list, err := h.Control.ListTransmissions(r.Context(), ownerID)
		if err != nil {
			writeOpError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	case http.MethodPost:
		var body struct {
			Title       string `json:"title"`
			Description string `json:"description"`
			Kind        string `json:"kind"`
			PlaylistID  string `json:"playlistId"`
		}
		if err := decodeJSON(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		res, err := h.Control.StartTransmission(r.Context(), control.StartTransmissionParams{
			OwnerID:     ownerID,
			Title:       body.Title,
			Description: body.Description,
			Kind:        body.Kind,
			PlaylistID:  body.PlaylistID,
		})
		if err != nil {
			writeOpError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, res)
	default:
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
	}
}

func (h *Handler) transmissionByID(w http.ResponseWriter, r *http.Request, ownerID, transmissionID string) {
	if r.Method != http.MethodDelete {
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
		return
	}
	res, err := h.Control.StopTransmission(r.Context(), ownerID, transmissionID)
	if err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) reloadSchedule(w http.ResponseWriter, r *http.Request, ownerID string) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
		return
	}
	res, err := h.Control.ReloadSchedule(r.Context(), ownerID)
	if err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) socialLives(w http.ResponseWriter, r *http.Request, ownerID string, parts []string) {
	switch len(parts) {
	case 0:
		h.socialLiveCollection(w, r, ownerID)
	case 1:
		h.socialLiveByID(w, r, ownerID, parts[0])
	case 2:
		h.socialLiveAction(w, r, ownerID, parts[0], parts[1])
	default:
		writeError(w, http.StatusNotFound, fmt.Errorf("no route for %s", r.URL.Path))
	}
}

func (h *Handler) socialLiveCollection(w http.ResponseWriter, r *http.Request, ownerID string) {
	switch r.Method {
	case http.MethodGet:
		sessions, err := h.Control.ListSocialLives(r.Context(), ownerID)
		if err != nil {
			writeOpError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, sessions)
	case http.MethodPost:
		var body struct {
			PlatformID string `json:"platformId"`
			StreamKey  string `json:"streamKey"`
			TargetURL  string `json:"targetUrl"`
		}
		if err := decodeJSON(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		res, err := h.Control.StartSocialLive(r.Context(), control.StartSocialLiveParams{
			OwnerID:    ownerID,
			PlatformID: body.PlatformID,
			StreamKey:  body.StreamKey,
			TargetURL:  body.TargetURL,
		})
		if err != nil {
			writeOpError(w, err)
			return
		}
		status := http.StatusCreated
		if res.AlreadyActive {
			status = http.StatusOK
		}
		writeJSON(w, status, res)
	default:
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
	}
}

func (h *Handler) socialLiveByID(w http.ResponseWriter, r *http.Request, ownerID, sessionID string) {
	switch r.Method {
	case http.MethodGet:
		res, err := h.Control.SocialLiveStatus(r.Context(), ownerID, sessionID)
		if err != nil {
			writeOpError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	case http.MethodDelete:
		if err := h.Control.RemoveSocialLive(r.Context(), ownerID, sessionID); err != nil {
			writeOpError(w, err)
			return
		}
		writeJSON(w, http.StatusNoContent, nil)
	default:
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
	}
}

func (h *Handler) socialLiveAction(w http.ResponseWriter, r *http.Request, ownerID, sessionID, action string) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
		return
	}
	var (
		res control.SocialLiveResult
		err error
	)
	switch action {
	case "stop":
		res, err = h.Control.StopSocialLive(r.Context(), ownerID, sessionID)
	case "restart":
		res, err = h.Control.RestartSocialLive(r.Context(), ownerID, sessionID)
	default:
		writeError(w, http.StatusNotFound, fmt.Errorf("unknown social live action %q", action))
		return
	}
	if err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) startRecording(w http.ResponseWriter, r *http.Request, ownerID string) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
		return
	}
	var body struct {
		Label string `json:"label"`
	}
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}
	res, err := h.Control.StartRecording(r.Context(), ownerID, body.Label)
	if err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (h *Handler) stopRecording(w http.ResponseWriter, r *http.Request, ownerID string) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
		return
	}
	res, err := h.Control.StopRecording(r.Context(), ownerID)
	if err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
