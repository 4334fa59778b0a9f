package webui

import (
	"encoding/json"
	"errors"
	"net/http"

	"productstudio/studio"
)

// ErrorResponse is the JSON body of every failed request.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
	// Refunded is set on generation failures whose cost was credited back.
	Refunded bool `json:"refunded,omitempty"`
}

// writeJSON writes data as JSON with the given status code.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Headers are already written, nothing useful to do on failure.
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes an ErrorResponse.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{
		Error:   http.StatusText(status),
		Code:    code,
		Message: message,
	})
}

// writeStudioError maps an orchestrator failure onto its HTTP status.
func writeStudioError(w http.ResponseWriter, err error) {
	var serr *studio.Error
	if !errors.As(err, &serr) {
		writeError(w, http.StatusInternalServerError, "internal", "unexpected error")
		return
	}
	status := StatusForKind(serr.Kind)
	writeJSON(w, status, ErrorResponse{
		Error:    http.StatusText(status),
		Code:     string(serr.Kind),
		Message:  serr.Error(),
		Refunded: serr.Refunded,
	})
}

// StatusForKind returns the HTTP status for a studio error kind.
func StatusForKind(kind studio.Kind) int {
	switch kind {
	case studio.KindReservationFailed:
		return http.StatusPaymentRequired
	case studio.KindContentRejected:
		return http.StatusUnprocessableEntity
	case studio.KindSourceUnavailable, studio.KindGenerationFailed:
		return http.StatusBadGateway
	case studio.KindStorageError, studio.KindMetadataError:
		return http.StatusInternalServerError
	case studio.KindNoIdentity:
		return http.StatusUnauthorized
	case studio.KindInvalidRequest:
		return http.StatusBadRequest
	case studio.KindBusy:
		return http.StatusConflict
	case studio.KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// decodeJSON reads a JSON request body of at most maxBytes into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, maxBytes int64, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
