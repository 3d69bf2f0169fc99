// internal/rooms/store_mem.go
package rooms

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"chessonline/internal/models"
)

// MemoryStore is a mutex-guarded in-memory Store, used when the service
// runs without Postgres (dev mode) and by unit tests. It enforces the
// same room_code uniqueness and conditional-write semantics as the SQL
// store.
type MemoryStore struct {
	mu    sync.Mutex
	rooms map[uuid.UUID]*models.Room
	codes map[string]uuid.UUID
	users map[uuid.UUID]*models.User
	seq   int64
	seqOf map[uuid.UUID]int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rooms: make(map[uuid.UUID]*models.Room),
		codes: make(map[string]uuid.UUID),
		users: make(map[uuid.UUID]*models.User),
		seqOf: make(map[uuid.UUID]int64),
	}
}

// PutUser registers a user for projection lookups.
func (s *MemoryStore) PutUser(u *models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *u
	s.users[u.ID] = &cp
}

func (s *MemoryStore) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *MemoryStore) GetRoom(ctx context.Context, id uuid.UUID) (*models.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[id]
	if !ok {
		return nil, ErrRoomNotFound
	}
	return copyRoom(r), nil
}

func (s *MemoryStore) GetRoomByCode(ctx context.Context, code string) (*models.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.codes[code]
	if !ok {
		return nil, ErrRoomNotFound
	}
	return copyRoom(s.rooms[id]), nil
}

func (s *MemoryStore) FindRooms(ctx context.Context, status models.RoomStatus, roomType models.RoomType, timeControl, limit int) ([]*models.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Room
	for _, r := range s.rooms {
		if r.Status == status && r.RoomType == roomType && r.TimeControl == timeControl {
			out = append(out, copyRoom(r))
		}
	}
	s.sortByAge(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) FindEmptyWaiting(ctx context.Context, limit int) ([]*models.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Room
	for _, r := range s.rooms {
		if r.Status == models.RoomStatusWaiting && r.IsEmpty() {
			out = append(out, copyRoom(r))
		}
	}
	s.sortByAge(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) InsertRoom(ctx context.Context, room *models.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.codes[room.RoomCode]; taken {
		return ErrCodeTaken
	}
	s.seq++
	s.seqOf[room.ID] = s.seq
	s.codes[room.RoomCode] = room.ID
	s.rooms[room.ID] = copyRoom(room)
	return nil
}

func (s *MemoryStore) UpdateRoomIf(ctx context.Context, room *models.Room, expectStatus models.RoomStatus, expectP1, expectP2 *uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.rooms[room.ID]
	if !ok {
		return ErrRoomNotFound
	}
	if cur.Status != expectStatus || !sameSeat(cur.Player1ID, expectP1) || !sameSeat(cur.Player2ID, expectP2) {
		return ErrConflict
	}
	s.rooms[room.ID] = copyRoom(room)
	return nil
}

func (s *MemoryStore) CodeExists(ctx context.Context, code string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.codes[code]
	return ok, nil
}

func (s *MemoryStore) BulkInsertRooms(ctx context.Context, batch []*models.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, room := range batch {
		if _, taken := s.codes[room.RoomCode]; taken {
			continue
		}
		s.seq++
		s.seqOf[room.ID] = s.seq
		s.codes[room.RoomCode] = room.ID
		s.rooms[room.ID] = copyRoom(room)
	}
	return nil
}

func (s *MemoryStore) RecycleFinished(ctx context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	now := time.Now()
	for _, r := range s.rooms {
		if r.Status != models.RoomStatusFinished || !r.UpdatedAt.Before(before) {
			continue
		}
		r.Status = models.RoomStatusWaiting
		r.Player1ID = nil
		r.Player2ID = nil
		r.CurrentSpectators = 0
		r.GameStartedAt = nil
		r.GameFinishedAt = nil
		r.CreationMode = ""
		r.UpdatedAt = now
		n++
	}
	return n, nil
}

// RoomCount reports how many rooms the store holds.
func (s *MemoryStore) RoomCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rooms)
}

// sortByAge orders rooms earliest-created first, insertion order as the
// tie-break. Caller holds the lock.
func (s *MemoryStore) sortByAge(rs []*models.Room) {
	sort.Slice(rs, func(i, j int) bool {
		if rs[i].CreatedAt.Equal(rs[j].CreatedAt) {
			return s.seqOf[rs[i].ID] < s.seqOf[rs[j].ID]
		}
		return rs[i].CreatedAt.Before(rs[j].CreatedAt)
	})
}

func sameSeat(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func copyRoom(r *models.Room) *models.Room {
	cp := *r
	if r.Player1ID != nil {
		v := *r.Player1ID
		cp.Player1ID = &v
	}
	if r.Player2ID != nil {
		v := *r.Player2ID
		cp.Player2ID = &v
	}
	if r.GameStartedAt != nil {
		v := *r.GameStartedAt
		cp.GameStartedAt = &v
	}
	if r.GameFinishedAt != nil {
		v := *r.GameFinishedAt
		cp.GameFinishedAt = &v
	}
	return &cp
}
