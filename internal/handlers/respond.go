// internal/handlers/respond.go
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"chessonline/internal/matchmaking"
	"chessonline/internal/rooms"
)

// apiResponse is the uniform envelope the transport layer speaks. The
// core packages return plain errors; only this layer formats them.
type apiResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

func respondOK(w http.ResponseWriter, message string, data any) {
	writeJSON(w, http.StatusOK, apiResponse{Success: true, Message: message, Data: data})
}

func respondCreated(w http.ResponseWriter, message string, data any) {
	writeJSON(w, http.StatusCreated, apiResponse{Success: true, Message: message, Data: data})
}

func respondError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, apiResponse{Success: false, Message: message})
}

// respondFromError resolves a core error into the envelope. Anything
// outside the known taxonomy is treated as a persistence failure and
// not echoed to the client.
func respondFromError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, rooms.ErrRoomNotFound):
		respondError(w, http.StatusNotFound, "room not found")
	case errors.Is(err, rooms.ErrAlreadySeated):
		respondError(w, http.StatusConflict, "you are already in this room")
	case errors.Is(err, rooms.ErrNotASeatHolder):
		respondError(w, http.StatusBadRequest, "you are not in this room")
	case errors.Is(err, rooms.ErrRoomUnavailable):
		respondError(w, http.StatusConflict, "room is not available for joining")
	case errors.Is(err, rooms.ErrConflict):
		respondError(w, http.StatusConflict, "room changed concurrently, please retry")
	case errors.Is(err, rooms.ErrNoCapacity):
		respondError(w, http.StatusServiceUnavailable, "no available room capacity")
	case errors.Is(err, rooms.ErrCodeExhausted):
		respondError(w, http.StatusServiceUnavailable, "could not allocate a room code")
	case errors.Is(err, matchmaking.ErrAlreadyInQueue):
		respondError(w, http.StatusConflict, "you are already in matchmaking queue")
	case errors.Is(err, matchmaking.ErrNotInQueue):
		respondError(w, http.StatusNotFound, "you are not in matchmaking queue")
	default:
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, resp apiResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}
