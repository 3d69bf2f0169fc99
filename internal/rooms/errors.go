// internal/rooms/errors.go
package rooms

import "errors"

var (
	// ErrRoomNotFound indicates no room exists for the given id or code.
	ErrRoomNotFound = errors.New("room not found")

	// ErrAlreadySeated indicates the user already occupies a seat in the room.
	ErrAlreadySeated = errors.New("user already seated in this room")

	// ErrNotASeatHolder indicates the user occupies neither seat of the room.
	ErrNotASeatHolder = errors.New("user is not seated in this room")

	// ErrRoomUnavailable indicates the room is in the wrong status or mode
	// for the requested operation, or contention invalidated every candidate.
	ErrRoomUnavailable = errors.New("room is not available")

	// ErrNoCapacity indicates no room could be claimed or synthesized.
	ErrNoCapacity = errors.New("no available room capacity")

	// ErrCodeExhausted indicates the code generator ran out of attempts
	// without drawing a free code.
	ErrCodeExhausted = errors.New("room code generation exhausted")

	// ErrCodeTaken is returned by the store when an insert collides with
	// the unique room_code index. Callers regenerate and retry, bounded.
	ErrCodeTaken = errors.New("room code already taken")

	// ErrConflict is returned by the store when a conditional write finds
	// the row's status or seats no longer match the values read.
	ErrConflict = errors.New("room was modified concurrently")

	// ErrUserNotFound indicates a UserLookup miss.
	ErrUserNotFound = errors.New("user not found")
)
