// internal/rooms/store.go
package rooms

import (
	"context"
	"time"

	"github.com/google/uuid"

	"chessonline/internal/models"
)

// Store is the persistence collaborator for room records. It is the only
// component that owns room rows; the Manager never caches them across
// calls. Every status/seat mutation goes through UpdateRoomIf so that a
// read-check-write is one indivisible unit.
type Store interface {
	GetRoom(ctx context.Context, id uuid.UUID) (*models.Room, error)
	GetRoomByCode(ctx context.Context, code string) (*models.Room, error)

	// FindRooms returns up to limit rooms with the given status, type and
	// time control, earliest created_at first.
	FindRooms(ctx context.Context, status models.RoomStatus, roomType models.RoomType, timeControl, limit int) ([]*models.Room, error)

	// FindEmptyWaiting returns up to limit fully empty waiting rooms,
	// earliest created_at first, regardless of type and time control.
	FindEmptyWaiting(ctx context.Context, limit int) ([]*models.Room, error)

	// InsertRoom persists a new room. A room_code collision returns
	// ErrCodeTaken.
	InsertRoom(ctx context.Context, room *models.Room) error

	// UpdateRoomIf writes room's current fields only if the stored row
	// still carries the expected status and seats. A mismatch returns
	// ErrConflict and writes nothing.
	UpdateRoomIf(ctx context.Context, room *models.Room, expectStatus models.RoomStatus, expectP1, expectP2 *uuid.UUID) error

	CodeExists(ctx context.Context, code string) (bool, error)

	// BulkInsertRooms inserts rooms, skipping codes that already exist.
	BulkInsertRooms(ctx context.Context, batch []*models.Room) error

	// RecycleFinished resets finished rooms last touched before the cutoff
	// back to waiting, clearing seats, spectators and game timestamps.
	// Returns the number of rooms recycled.
	RecycleFinished(ctx context.Context, before time.Time) (int64, error)
}

// UserLookup resolves player display fields for room projections.
type UserLookup interface {
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}
