package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/identity"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"
)

var errMissingBearer = errors.New("missing bearer token")

// RoomsHandler serves room setup and public reads.
type RoomsHandler struct {
	service  *app.SessionService
	verifier TokenVerifier
}

func NewRoomsHandler(service *app.SessionService, verifier TokenVerifier) *RoomsHandler {
	return &RoomsHandler{service: service, verifier: verifier}
}

type createRoomRequest struct {
	QuizID string `json:"quizId"`
}

type createRoomResponse struct {
	ID       string `json:"id"`
	JoinCode string `json:"joinCode"`
}

// Create handles POST /api/rooms. The bearer becomes the room's owner.
func (h *RoomsHandler) Create(w http.ResponseWriter, r *http.Request) {
	token, ok := identity.BearerToken(r.Header.Get("Authorization"))
	if !ok || h.verifier == nil {
		writeError(w, http.StatusUnauthorized, errMissingBearer)
		return
	}
	owner, err := h.verifier.Verify(token)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}

	var req createRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.QuizID == "" {
		writeError(w, http.StatusBadRequest, errors.New("quizId is required"))
		return
	}

	room, err := h.service.CreateRoom(r.Context(), owner.Ref, req.QuizID)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, createRoomResponse{ID: room.ID, JoinCode: room.JoinCode})
}

// Leaderboard handles GET /api/rooms/{code}/leaderboard with public standings.
func (h *RoomsHandler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	standings, err := h.service.Leaderboard(r.Context(), mux.Vars(r)["code"])
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"standings": domain.Public(standings)})
}

func statusFor(err error) int {
	switch domain.ErrorCode(err) {
	case domain.CodeNotFound:
		return http.StatusNotFound
	case domain.CodeValidation:
		return http.StatusBadRequest
	case domain.CodePermission:
		return http.StatusForbidden
	case domain.CodeInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusConflict
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Debug().Err(err).Msg("write response")
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	message := err.Error()
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Msg("request failed")
		message = "internal error"
	}
	writeJSON(w, status, map[string]string{"error": message})
}
