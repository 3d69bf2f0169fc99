// internal/models/room.go
package models

import (
	"time"

	"github.com/google/uuid"
)

// RoomType distinguishes publicly joinable rooms from invite-only ones.
type RoomType string

const (
	RoomTypePublic  RoomType = "public"
	RoomTypePrivate RoomType = "private"
)

// RoomStatus is the room lifecycle state. Transitions are owned by
// rooms.Manager; the Reaper moves finished rooms back to waiting.
type RoomStatus string

const (
	RoomStatusWaiting    RoomStatus = "waiting"     // empty, reusable
	RoomStatusQueued     RoomStatus = "queued"      // one seat taken, waiting for an opponent
	RoomStatusInProgress RoomStatus = "in_progress" // both seats taken, game running
	RoomStatusFinished   RoomStatus = "finished"    // terminal until recycled
)

// CreationMode records how a room was populated, used for join-eligibility checks.
type CreationMode string

const (
	CreationModePrivateRoom CreationMode = "private_room"
	CreationModeMatchmaking CreationMode = "matchmaking"
)

// Seat identifies one of the two player slots on a room.
type Seat string

const (
	SeatPlayer1 Seat = "player1"
	SeatPlayer2 Seat = "player2"
	SeatNone    Seat = ""
)

// Room is a reusable two-seat container for one chess match plus its
// lifecycle metadata. Room rows are owned by the store; nothing caches
// them across calls.
type Room struct {
	ID       uuid.UUID `json:"id"`
	RoomCode string    `json:"room_code"`

	RoomType     RoomType     `json:"room_type"`
	Status       RoomStatus   `json:"status"`
	CreationMode CreationMode `json:"creation_mode,omitempty"`

	// TimeControl is minutes per player.
	TimeControl       int `json:"time_control"`
	MaxSpectators     int `json:"max_spectators"`
	CurrentSpectators int `json:"current_spectators"`

	Player1ID *uuid.UUID `json:"player1_id,omitempty"`
	Player2ID *uuid.UUID `json:"player2_id,omitempty"`

	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	GameStartedAt  *time.Time `json:"game_started_at,omitempty"`
	GameFinishedAt *time.Time `json:"game_finished_at,omitempty"`
}

// IsEmpty reports whether both seats are free.
func (r *Room) IsEmpty() bool {
	return r.Player1ID == nil && r.Player2ID == nil
}

// HasOneSeat reports whether exactly one seat is taken.
func (r *Room) HasOneSeat() bool {
	return (r.Player1ID != nil) != (r.Player2ID != nil)
}

// IsFull reports whether both seats are taken.
func (r *Room) IsFull() bool {
	return r.Player1ID != nil && r.Player2ID != nil
}

// OpenSeat returns the first free seat, or SeatNone if the room is full.
func (r *Room) OpenSeat() Seat {
	if r.Player1ID == nil {
		return SeatPlayer1
	}
	if r.Player2ID == nil {
		return SeatPlayer2
	}
	return SeatNone
}

// SeatOf returns which seat userID occupies, or SeatNone.
func (r *Room) SeatOf(userID uuid.UUID) Seat {
	if r.Player1ID != nil && *r.Player1ID == userID {
		return SeatPlayer1
	}
	if r.Player2ID != nil && *r.Player2ID == userID {
		return SeatPlayer2
	}
	return SeatNone
}
