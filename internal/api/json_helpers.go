package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"streamcast/internal/control"
	"streamcast/internal/manifest"
	"streamcast/internal/wowza"
)

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// writeOpError maps an orchestrator failure onto an HTTP status. Timeouts
// against the media server or manifest service surface as 504 so callers can
// tell "no answer" from "rejected".
func writeOpError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch control.KindOf(err) {
	case control.KindValidation:
		status = http.StatusUnprocessableEntity
	case control.KindNotFound:
		status = http.StatusNotFound
	case control.KindAuthorization:
		status = http.StatusForbidden
	case control.KindRemote:
		status = http.StatusBadGateway
		if errors.Is(err, wowza.ErrUnreachable) || errors.Is(err, manifest.ErrUnreachable) {
			status = http.StatusGatewayTimeout
		}
	}

	payload := map[string]string{"error": err.Error()}
	var opErr *control.OpError
	if errors.As(err, &opErr) {
		payload["error"] = opErr.Message
		payload["kind"] = string(opErr.Kind)
		if detail := opErr.Detail(); detail != "" {
			payload["details"] = detail
		}
	}
	writeJSON(w, status, payload)
}

func decodeJSON(r *http.Request, dest interface{}) error {
	if r.Body == nil {
		return errors.New("request body is required")
	}
	defer r.Body.Close()

	decoder := json.NewDecoder(r.Body)
	decoder.UseNumber()
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return err
	}
	return nil
}
