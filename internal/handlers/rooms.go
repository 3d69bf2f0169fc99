// internal/handlers/rooms.go
package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"chessonline/internal/matchmaking"
	"chessonline/internal/models"
	"chessonline/internal/rooms"
)

// RoomsAPI bundles the room endpoints' collaborators.
type RoomsAPI struct {
	Manager *rooms.Manager
	Match   *matchmaking.Coordinator
	Log     *logrus.Logger
}

var validRoomTypes = map[models.RoomType]bool{
	models.RoomTypePublic:  true,
	models.RoomTypePrivate: true,
}

type roomRequest struct {
	TimeControl int             `json:"time_control"`
	RoomType    models.RoomType `json:"room_type"`

	// Matchmaking-only knobs.
	MaxWaitTime         int   `json:"max_wait_time"` // seconds
	AllowRandomOpponent *bool `json:"allow_random_opponent"`
}

// decodeRoomRequest parses the shared request payload, applying the
// defaults the original API used (10 minutes, public).
func decodeRoomRequest(r *http.Request) (roomRequest, bool) {
	req := roomRequest{TimeControl: 10, RoomType: models.RoomTypePublic}
	if r.Body == nil {
		return req, true
	}
	err := json.NewDecoder(r.Body).Decode(&req)
	if err != nil && err.Error() != "EOF" {
		return req, false
	}
	if req.TimeControl <= 0 {
		req.TimeControl = 10
	}
	if req.RoomType == "" {
		req.RoomType = models.RoomTypePublic
	}
	return req, validRoomTypes[req.RoomType]
}

// CreatePrivateRoomHandler handles POST /rooms/create-private.
func CreatePrivateRoomHandler(api *RoomsAPI) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requireUser(w, r)
		if !ok {
			return
		}
		req, ok := decodeRoomRequest(r)
		if !ok {
			respondError(w, http.StatusBadRequest, "invalid room request payload")
			return
		}

		asn, err := api.Manager.CreatePrivateRoom(r.Context(), userID, req.TimeControl, req.RoomType)
		if err != nil {
			respondFromError(w, err)
			return
		}
		respondCreated(w, "Private room created successfully", map[string]any{
			"room":               asn.Room,
			"player_slot":        asn.Seat,
			"share_code":         asn.Room.RoomCode,
			"waiting_for_friend": true,
		})
	}
}

// QuickJoinHandler handles POST /rooms/quick-join.
func QuickJoinHandler(api *RoomsAPI) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requireUser(w, r)
		if !ok {
			return
		}
		req, ok := decodeRoomRequest(r)
		if !ok {
			respondError(w, http.StatusBadRequest, "invalid room request payload")
			return
		}

		asn, err := api.Manager.AllocateForQuickJoin(r.Context(), userID, req.TimeControl, req.RoomType)
		if err != nil {
			respondFromError(w, err)
			return
		}
		respondOK(w, "Joined room", map[string]any{
			"room":        asn.Room,
			"player_slot": asn.Seat,
		})
	}
}

// FindMatchHandler handles POST /rooms/find-match.
func FindMatchHandler(api *RoomsAPI) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requireUser(w, r)
		if !ok {
			return
		}
		req, ok := decodeRoomRequest(r)
		if !ok {
			respondError(w, http.StatusBadRequest, "invalid room request payload")
			return
		}

		allowRandom := true
		if req.AllowRandomOpponent != nil {
			allowRandom = *req.AllowRandomOpponent
		}
		crit := matchmaking.Criteria{
			TimeControl: req.TimeControl,
			RoomType:    req.RoomType,
			Preferences: matchmaking.Preferences{
				MaxWaitTime:         time.Duration(req.MaxWaitTime) * time.Second,
				AllowRandomOpponent: allowRandom,
			},
		}

		res, err := api.Match.StartMatchmaking(r.Context(), userID, crit)
		if err != nil {
			respondFromError(w, err)
			return
		}
		if res.Status == matchmaking.StatusMatched {
			respondOK(w, "Match found! Game started", res)
			return
		}
		respondOK(w, "Added to matchmaking queue", res)
	}
}

// CancelMatchmakingHandler handles POST /rooms/cancel-matchmaking.
func CancelMatchmakingHandler(api *RoomsAPI) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requireUser(w, r)
		if !ok {
			return
		}
		if err := api.Match.CancelMatchmaking(userID); err != nil {
			respondFromError(w, err)
			return
		}
		respondOK(w, "Matchmaking cancelled", nil)
	}
}

// MatchmakingStatusHandler handles GET /rooms/matchmaking-status.
func MatchmakingStatusHandler(api *RoomsAPI) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := requireUser(w, r); !ok {
			return
		}
		respondOK(w, "Matchmaking queue status", api.Match.QueueStatus())
	}
}

// JoinByCodeHandler handles POST /rooms/join/{code}.
func JoinByCodeHandler(api *RoomsAPI) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requireUser(w, r)
		if !ok {
			return
		}
		code := r.PathValue("code")
		if len(code) != rooms.CodeLength {
			respondError(w, http.StatusBadRequest, "invalid room code")
			return
		}

		asn, err := api.Manager.JoinByCode(r.Context(), userID, code)
		if err != nil {
			respondFromError(w, err)
			return
		}
		respondOK(w, "Joined room successfully", map[string]any{
			"room":         asn.Room,
			"player_slot":  asn.Seat,
			"game_started": asn.Room.Status == models.RoomStatusInProgress,
		})
	}
}

// LeaveRoomHandler handles POST /rooms/{id}/leave.
func LeaveRoomHandler(api *RoomsAPI) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requireUser(w, r)
		if !ok {
			return
		}
		roomID, err := uuid.Parse(r.PathValue("id"))
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid room id")
			return
		}

		if err := api.Manager.LeaveRoom(r.Context(), userID, roomID); err != nil {
			respondFromError(w, err)
			return
		}
		respondOK(w, "Left room successfully", nil)
	}
}

// FinishRoomHandler handles POST /rooms/{id}/finish — the external
// signal from the game engine that a match ended.
func FinishRoomHandler(api *RoomsAPI) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := requireUser(w, r); !ok {
			return
		}
		roomID, err := uuid.Parse(r.PathValue("id"))
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid room id")
			return
		}

		if err := api.Manager.FinishRoom(r.Context(), roomID); err != nil {
			respondFromError(w, err)
			return
		}
		respondOK(w, "Room marked finished", nil)
	}
}

// RoomInfoHandler handles GET /rooms/{id}.
func RoomInfoHandler(api *RoomsAPI) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := requireUser(w, r); !ok {
			return
		}
		roomID, err := uuid.Parse(r.PathValue("id"))
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid room id")
			return
		}

		info, err := api.Manager.GetRoomInfo(r.Context(), roomID)
		if err != nil {
			respondFromError(w, err)
			return
		}
		respondOK(w, "Room info retrieved successfully", info)
	}
}

// ProvisionRoomsHandler handles POST /admin/rooms/provision. Idempotent
// maintenance action that pre-creates the whole room pool.
func ProvisionRoomsHandler(api *RoomsAPI) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := requireUser(w, r); !ok {
			return
		}
		total, err := api.Manager.ProvisionAllRooms(r.Context())
		if err != nil {
			api.Log.WithError(err).Error("room provisioning failed")
			respondFromError(w, err)
			return
		}
		respondOK(w, "Room pool provisioned", map[string]any{
			"total_rooms": total,
		})
	}
}
