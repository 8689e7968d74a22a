// Package httpx holds the JSON request/response conventions shared by the
// escrow server, the SDK and the CLI.
package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"pledge/pkg/escrow"
)

func NewRequestID() string { return "req_" + uuid.NewString() }

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func ReadJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func WriteError(w http.ResponseWriter, status int, code, message string, details any) {
	resp := map[string]any{
		"request_id": NewRequestID(),
		"error": map[string]any{
			"code": code, "message": message, "details": details,
		},
	}
	WriteJSON(w, status, resp)
}

// WriteDomainError maps an escrow domain failure onto the error envelope.
// Unknown errors are reported as a 500 without leaking internals.
func WriteDomainError(w http.ResponseWriter, err error) {
	var de *escrow.Error
	if !errors.As(err, &de) {
		WriteError(w, http.StatusInternalServerError, "INTERNAL", "internal error", nil)
		return
	}
	WriteError(w, StatusForKind(de.Kind), de.Code, de.Message, map[string]any{"kind": string(de.Kind)})
}

// StatusForKind maps the domain error taxonomy to HTTP status codes.
func StatusForKind(k escrow.Kind) int {
	switch k {
	case escrow.KindAuthorization:
		return http.StatusForbidden
	case escrow.KindState:
		return http.StatusConflict
	case escrow.KindTime, escrow.KindArithmetic:
		return http.StatusUnprocessableEntity
	case escrow.KindRange:
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
