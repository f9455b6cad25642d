package api

import (
	"encoding/json"
	"net/http"
)

// Kind is one of the error kinds every REST handler maps its failure to
// before writing a response; the HTTP status is derived solely from the
// kind, never set ad hoc per handler.
type Kind string

const (
	KindNotFound      Kind = "not_found"
	KindConflict      Kind = "conflict"
	KindShutdown      Kind = "shutdown"
	KindClusterTimeout Kind = "cluster_timeout"
	KindBadParameter  Kind = "bad_parameter"
	KindInternal      Kind = "internal"
	KindStorageEngine Kind = "storage_engine"
)

// statusForKind is the single (code, message) -> HTTP status translation
// point every handler goes through.
func statusForKind(kind Kind) int {
	switch kind {
	case KindBadParameter:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindShutdown:
		return http.StatusServiceUnavailable
	case KindClusterTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// errorBody is the structured JSON error body every failed request
// returns: {error: true, errorNum, errorMessage, code}.
type errorBody struct {
	Error        bool   `json:"error"`
	ErrorNum     int    `json:"errorNum"`
	ErrorMessage string `json:"errorMessage"`
	Code         int    `json:"code"`
}

// writeError emits the structured error body with the status derived from
// kind.
func writeError(w http.ResponseWriter, kind Kind, errorNum int, message string) {
	status := statusForKind(kind)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{
		Error:        true,
		ErrorNum:     errorNum,
		ErrorMessage: message,
		Code:         status,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
