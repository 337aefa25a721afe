package handler

import (
	"encoding/json"
	"net/http"

	apperrors "github.com/kislikjeka/pocketledger/internal/shared/errors"
)

// maxBodyBytes bounds request bodies; backups are the largest payload
const maxBodyBytes = 32 << 20

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, code int, payload any) {
	response, err := json.Marshal(payload)
	if err != nil {
		respondAppError(w, apperrors.Internal("failed to encode response", err))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

// respondError classifies err and sends it with the matching status
func respondError(w http.ResponseWriter, err error) {
	respondAppError(w, apperrors.FromError(err))
}

func respondAppError(w http.ResponseWriter, appErr *apperrors.AppError) {
	body, _ := json.Marshal(ErrorResponse{Error: appErr.PublicMessage(), Code: appErr.Code})
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(appErr.HTTPStatus())
	w.Write(body)
}

// RouteNotFound answers requests for unknown paths
func RouteNotFound(w http.ResponseWriter, r *http.Request) {
	respondAppError(w, apperrors.NotFound("route "+r.URL.Path))
}

// MethodNotAllowed answers known paths requested with the wrong method
func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	respondAppError(w, apperrors.New(apperrors.ErrCodeMethod, r.Method+" is not allowed on "+r.URL.Path))
}

// decodeJSON reads the request body into v, rejecting unknown fields
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		respondAppError(w, apperrors.BadRequest("invalid request body: "+err.Error()))
		return false
	}
	return true
}
