package handler

import (
	"context"
	"net/http"
)

// ProfileService reads and writes the display name
type ProfileService interface {
	Username(ctx context.Context) (string, error)
	SetUsername(ctx context.Context, name string) (string, error)
}

// ProfileHandler handles profile requests
type ProfileHandler struct {
	profile ProfileService
}

// NewProfileHandler creates a new profile handler
func NewProfileHandler(p ProfileService) *ProfileHandler {
	return &ProfileHandler{profile: p}
}

// ProfileResponse is both the request and the response body
type ProfileResponse struct {
	Username string `json:"username"`
}

// GetProfile handles GET /profile
func (h *ProfileHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	name, err := h.profile.Username(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, ProfileResponse{Username: name})
}

// UpdateProfile handles PUT /profile
func (h *ProfileHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req ProfileResponse
	if !decodeJSON(w, r, &req) {
		return
	}

	name, err := h.profile.SetUsername(r.Context(), req.Username)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, ProfileResponse{Username: name})
}
