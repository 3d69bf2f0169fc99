// internal/rooms/manager.go
package rooms

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"chessonline/internal/models"
)

const (
	// allocateAttempts bounds how many times an allocation re-runs its
	// candidate search after losing a conditional write.
	allocateAttempts = 3

	// candidateLimit is how many candidate rooms each search pulls per pass.
	candidateLimit = 5

	defaultTimeControl   = 10
	defaultMaxSpectators = 3

	provisionBatchSize = 1000
)

// RoomEvent is pushed to the event publisher whenever a room crosses a
// lifecycle boundary the realtime gateway cares about.
type RoomEvent struct {
	Type      string            `json:"type"`
	RoomID    uuid.UUID         `json:"room_id"`
	RoomCode  string            `json:"room_code"`
	Status    models.RoomStatus `json:"status"`
	Players   []uuid.UUID       `json:"players,omitempty"`
	Timestamp int64             `json:"timestamp"`
}

// EventPublisher delivers room events to downstream consumers.
type EventPublisher interface {
	PublishRoomEvent(ctx context.Context, ev RoomEvent) error
}

// PlayerInfo carries the display fields a client needs to render an opponent.
type PlayerInfo struct {
	ID        uuid.UUID `json:"id"`
	Username  string    `json:"username,omitempty"`
	AvatarURL string    `json:"avatar_url,omitempty"`
}

// RoomInfo is the read-only projection of a room returned by every
// manager operation.
type RoomInfo struct {
	ID                uuid.UUID           `json:"id"`
	RoomCode          string              `json:"room_code"`
	RoomType          models.RoomType     `json:"room_type"`
	Status            models.RoomStatus   `json:"status"`
	CreationMode      models.CreationMode `json:"creation_mode,omitempty"`
	TimeControl       int                 `json:"time_control"`
	MaxSpectators     int                 `json:"max_spectators"`
	CurrentSpectators int                 `json:"current_spectators"`
	Player1           *PlayerInfo         `json:"player1,omitempty"`
	Player2           *PlayerInfo         `json:"player2,omitempty"`
	CreatedAt         time.Time           `json:"created_at"`
	GameStartedAt     *time.Time          `json:"game_started_at,omitempty"`
	GameFinishedAt    *time.Time          `json:"game_finished_at,omitempty"`
}

// Assignment reports which seat an allocation gave the caller.
type Assignment struct {
	Seat models.Seat `json:"seat"`
	Room *RoomInfo   `json:"room"`
}

// Manager owns every valid room state transition and all slot
// assignment. It holds no room state of its own; each operation performs
// its read-check-write against the store as one conditional unit.
type Manager struct {
	store  Store
	users  UserLookup
	codes  *CodeGenerator
	events EventPublisher
	log    *logrus.Logger
}

func NewManager(store Store, users UserLookup, codes *CodeGenerator, logger *logrus.Logger) *Manager {
	if logger == nil {
		logger = logrus.New()
	}
	return &Manager{
		store: store,
		users: users,
		codes: codes,
		log:   logger,
	}
}

// SetEventPublisher wires an optional downstream event sink.
func (m *Manager) SetEventPublisher(p EventPublisher) {
	m.events = p
}

// AllocateForQuickJoin finds or creates a seat for userID. Search
// priority: a matching waiting room, then a matching queued room the
// user is not already in, then a fresh room with a generated code.
// Losing a conditional write moves on to the next candidate; the whole
// search reruns a bounded number of times before giving up with
// ErrRoomUnavailable.
func (m *Manager) AllocateForQuickJoin(ctx context.Context, userID uuid.UUID, timeControl int, roomType models.RoomType) (*Assignment, error) {
	for attempt := 0; attempt < allocateAttempts; attempt++ {
		waiting, err := m.store.FindRooms(ctx, models.RoomStatusWaiting, roomType, timeControl, candidateLimit)
		if err != nil {
			return nil, fmt.Errorf("search waiting rooms: %w", err)
		}
		for _, cand := range waiting {
			if !cand.IsEmpty() {
				continue
			}
			asn, err := m.seatInto(ctx, cand, userID, models.CreationModeMatchmaking)
			if err == nil {
				return asn, nil
			}
			if !errors.Is(err, ErrConflict) {
				return nil, err
			}
		}

		queued, err := m.store.FindRooms(ctx, models.RoomStatusQueued, roomType, timeControl, candidateLimit)
		if err != nil {
			return nil, fmt.Errorf("search queued rooms: %w", err)
		}
		for _, cand := range queued {
			if cand.SeatOf(userID) != models.SeatNone {
				continue
			}
			asn, err := m.seatInto(ctx, cand, userID, models.CreationModeMatchmaking)
			if err == nil {
				return asn, nil
			}
			if !errors.Is(err, ErrConflict) {
				return nil, err
			}
		}

		asn, err := m.createSeeded(ctx, userID, timeControl, roomType, models.CreationModeMatchmaking)
		if err == nil {
			return asn, nil
		}
		if !errors.Is(err, ErrCodeTaken) {
			return nil, err
		}
		// Another allocator stole the generated code; rerun the search.
	}
	return nil, ErrRoomUnavailable
}

// CreatePrivateRoom claims a fully empty waiting room for userID, seats
// them as player1 and leaves the room queued behind its share code. When
// the pool has no empty room left, a fresh one is synthesized instead of
// failing closed.
func (m *Manager) CreatePrivateRoom(ctx context.Context, userID uuid.UUID, timeControl int, roomType models.RoomType) (*Assignment, error) {
	if timeControl <= 0 {
		timeControl = defaultTimeControl
	}
	for attempt := 0; attempt < allocateAttempts; attempt++ {
		empties, err := m.store.FindEmptyWaiting(ctx, candidateLimit)
		if err != nil {
			return nil, fmt.Errorf("search empty rooms: %w", err)
		}
		for _, cand := range empties {
			asn, err := m.claimPrivate(ctx, cand, userID, timeControl, roomType)
			if err == nil {
				return asn, nil
			}
			if !errors.Is(err, ErrConflict) {
				return nil, err
			}
		}

		asn, err := m.createSeeded(ctx, userID, timeControl, roomType, models.CreationModePrivateRoom)
		if err == nil {
			return asn, nil
		}
		if errors.Is(err, ErrCodeTaken) {
			continue
		}
		return nil, fmt.Errorf("%w: %w", ErrNoCapacity, err)
	}
	return nil, ErrNoCapacity
}

// JoinByCode seats userID into the room behind a share code. Rooms that
// are already playing or finished, and queued rooms that were populated
// by matchmaking, are not joinable.
func (m *Manager) JoinByCode(ctx context.Context, userID uuid.UUID, code string) (*Assignment, error) {
	room, err := m.store.GetRoomByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrRoomNotFound) {
			return nil, ErrRoomNotFound
		}
		return nil, fmt.Errorf("lookup room by code: %w", err)
	}

	if room.Status == models.RoomStatusInProgress || room.Status == models.RoomStatusFinished {
		return nil, ErrRoomUnavailable
	}
	if room.SeatOf(userID) != models.SeatNone {
		return nil, ErrAlreadySeated
	}
	if room.Status == models.RoomStatusQueued && room.CreationMode == models.CreationModeMatchmaking {
		return nil, ErrRoomUnavailable
	}

	asn, err := m.seatInto(ctx, room, userID, models.CreationModePrivateRoom)
	if errors.Is(err, ErrConflict) {
		// The room changed hands between read and write; callers see the
		// same result as a full room.
		return nil, ErrRoomUnavailable
	}
	return asn, err
}

// LeaveRoom clears whichever seat holds userID and demotes the room:
// in_progress falls back to queued, queued falls back to waiting.
func (m *Manager) LeaveRoom(ctx context.Context, userID, roomID uuid.UUID) error {
	room, err := m.store.GetRoom(ctx, roomID)
	if err != nil {
		if errors.Is(err, ErrRoomNotFound) {
			return ErrRoomNotFound
		}
		return fmt.Errorf("lookup room: %w", err)
	}

	if room.Status == models.RoomStatusFinished {
		// Terminal rooms keep their seats for the record; the reaper
		// clears them.
		return ErrRoomUnavailable
	}
	seat := room.SeatOf(userID)
	if seat == models.SeatNone {
		return ErrNotASeatHolder
	}

	expectStatus, expectP1, expectP2 := room.Status, room.Player1ID, room.Player2ID

	updated := *room
	if seat == models.SeatPlayer1 {
		updated.Player1ID = nil
	} else {
		updated.Player2ID = nil
	}
	if updated.IsEmpty() {
		updated.Status = models.RoomStatusWaiting
	} else {
		updated.Status = models.RoomStatusQueued
	}
	updated.UpdatedAt = time.Now()

	if err := m.store.UpdateRoomIf(ctx, &updated, expectStatus, expectP1, expectP2); err != nil {
		if errors.Is(err, ErrConflict) {
			return ErrConflict
		}
		return fmt.Errorf("commit leave: %w", err)
	}
	m.log.WithFields(logrus.Fields{
		"room":   room.ID,
		"user":   userID,
		"status": updated.Status,
	}).Info("player left room")
	return nil
}

// FinishRoom records the end of a match: in_progress becomes finished
// and game_finished_at is stamped. The Reaper recycles the room later.
func (m *Manager) FinishRoom(ctx context.Context, roomID uuid.UUID) error {
	room, err := m.store.GetRoom(ctx, roomID)
	if err != nil {
		if errors.Is(err, ErrRoomNotFound) {
			return ErrRoomNotFound
		}
		return fmt.Errorf("lookup room: %w", err)
	}
	if room.Status != models.RoomStatusInProgress {
		return ErrRoomUnavailable
	}

	expectP1, expectP2 := room.Player1ID, room.Player2ID
	now := time.Now()
	updated := *room
	updated.Status = models.RoomStatusFinished
	updated.GameFinishedAt = &now
	updated.UpdatedAt = now

	if err := m.store.UpdateRoomIf(ctx, &updated, models.RoomStatusInProgress, expectP1, expectP2); err != nil {
		if errors.Is(err, ErrConflict) {
			return ErrConflict
		}
		return fmt.Errorf("commit finish: %w", err)
	}
	m.publish(ctx, "game_finished", &updated)
	return nil
}

// GetRoomInfo returns the read-only projection of a room, including
// opponent display fields. No side effects.
func (m *Manager) GetRoomInfo(ctx context.Context, roomID uuid.UUID) (*RoomInfo, error) {
	room, err := m.store.GetRoom(ctx, roomID)
	if err != nil {
		if errors.Is(err, ErrRoomNotFound) {
			return nil, ErrRoomNotFound
		}
		return nil, fmt.Errorf("lookup room: %w", err)
	}
	return m.project(ctx, room), nil
}

// CreateMatchRoom seats two matched players directly into an empty or
// fresh room and starts the game. Used by the match coordinator.
func (m *Manager) CreateMatchRoom(ctx context.Context, player1, player2 uuid.UUID, timeControl int, roomType models.RoomType) (*RoomInfo, error) {
	if timeControl <= 0 {
		timeControl = defaultTimeControl
	}
	now := time.Now()
	for attempt := 0; attempt < allocateAttempts; attempt++ {
		empties, err := m.store.FindEmptyWaiting(ctx, candidateLimit)
		if err != nil {
			return nil, fmt.Errorf("search empty rooms: %w", err)
		}
		for _, cand := range empties {
			expectStatus, expectP1, expectP2 := cand.Status, cand.Player1ID, cand.Player2ID
			p1, p2 := player1, player2
			updated := *cand
			updated.Player1ID = &p1
			updated.Player2ID = &p2
			updated.Status = models.RoomStatusInProgress
			updated.CreationMode = models.CreationModeMatchmaking
			updated.TimeControl = timeControl
			updated.RoomType = roomType
			updated.GameStartedAt = &now
			updated.UpdatedAt = now

			err := m.store.UpdateRoomIf(ctx, &updated, expectStatus, expectP1, expectP2)
			if err == nil {
				m.publish(ctx, "game_started", &updated)
				return m.project(ctx, &updated), nil
			}
			if !errors.Is(err, ErrConflict) {
				return nil, fmt.Errorf("commit match room: %w", err)
			}
		}

		code, err := m.codes.Generate(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrNoCapacity, err)
		}
		p1, p2 := player1, player2
		room := &models.Room{
			ID:            uuid.New(),
			RoomCode:      code,
			RoomType:      roomType,
			Status:        models.RoomStatusInProgress,
			CreationMode:  models.CreationModeMatchmaking,
			TimeControl:   timeControl,
			MaxSpectators: defaultMaxSpectators,
			Player1ID:     &p1,
			Player2ID:     &p2,
			CreatedAt:     now,
			UpdatedAt:     now,
			GameStartedAt: &now,
		}
		err = m.store.InsertRoom(ctx, room)
		if err == nil {
			m.publish(ctx, "game_started", room)
			return m.project(ctx, room), nil
		}
		if !errors.Is(err, ErrCodeTaken) {
			return nil, fmt.Errorf("insert match room: %w", err)
		}
	}
	return nil, ErrNoCapacity
}

// ProvisionAllRooms pre-creates one waiting room per code in the entire
// code space, skipping codes that already exist. Administrative and
// idempotent; inserts run in fixed-size batches.
func (m *Manager) ProvisionAllRooms(ctx context.Context) (int, error) {
	total := 0
	batch := make([]*models.Room, 0, provisionBatchSize)
	now := time.Now()
	for offset := 0; offset < codeSpace; offset++ {
		batch = append(batch, &models.Room{
			ID:            uuid.New(),
			RoomCode:      FormatCode(offset),
			RoomType:      models.RoomTypePublic,
			Status:        models.RoomStatusWaiting,
			TimeControl:   defaultTimeControl,
			MaxSpectators: defaultMaxSpectators,
			CreatedAt:     now,
			UpdatedAt:     now,
		})
		if len(batch) == provisionBatchSize {
			if err := ctx.Err(); err != nil {
				return total, err
			}
			if err := m.store.BulkInsertRooms(ctx, batch); err != nil {
				return total, fmt.Errorf("bulk insert rooms: %w", err)
			}
			total += len(batch)
			batch = batch[:0]
		}
	}
	if len(batch) > 0 {
		if err := m.store.BulkInsertRooms(ctx, batch); err != nil {
			return total, fmt.Errorf("bulk insert rooms: %w", err)
		}
		total += len(batch)
	}
	m.log.WithField("rooms", total).Info("room pool provisioned")
	return total, nil
}

// seatInto claims the open seat of room for userID with one conditional
// write against the exact status and seats that were read. Claiming a
// waiting room also stamps the creation mode; filling the second seat
// starts the game.
func (m *Manager) seatInto(ctx context.Context, room *models.Room, userID uuid.UUID, mode models.CreationMode) (*Assignment, error) {
	seat := room.OpenSeat()
	if seat == models.SeatNone {
		return nil, ErrConflict
	}

	expectStatus, expectP1, expectP2 := room.Status, room.Player1ID, room.Player2ID

	uid := userID
	now := time.Now()
	updated := *room
	if seat == models.SeatPlayer1 {
		updated.Player1ID = &uid
	} else {
		updated.Player2ID = &uid
	}
	if expectStatus == models.RoomStatusWaiting {
		updated.CreationMode = mode
	}
	if updated.IsFull() {
		updated.Status = models.RoomStatusInProgress
		updated.GameStartedAt = &now
	} else {
		updated.Status = models.RoomStatusQueued
	}
	updated.UpdatedAt = now

	if err := m.store.UpdateRoomIf(ctx, &updated, expectStatus, expectP1, expectP2); err != nil {
		if errors.Is(err, ErrConflict) {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("commit seat assignment: %w", err)
	}

	if updated.Status == models.RoomStatusInProgress {
		m.publish(ctx, "game_started", &updated)
	}
	m.log.WithFields(logrus.Fields{
		"room":   updated.ID,
		"user":   userID,
		"seat":   seat,
		"status": updated.Status,
	}).Info("seat assigned")
	return &Assignment{Seat: seat, Room: m.project(ctx, &updated)}, nil
}

// createSeeded synthesizes a brand new room with a generated code and
// userID in seat one. An ErrCodeTaken return means a racing generator
// won the code; callers rerun their search.
func (m *Manager) createSeeded(ctx context.Context, userID uuid.UUID, timeControl int, roomType models.RoomType, mode models.CreationMode) (*Assignment, error) {
	code, err := m.codes.Generate(ctx)
	if err != nil {
		return nil, err
	}

	uid := userID
	now := time.Now()
	room := &models.Room{
		ID:            uuid.New(),
		RoomCode:      code,
		RoomType:      roomType,
		Status:        models.RoomStatusQueued,
		CreationMode:  mode,
		TimeControl:   timeControl,
		MaxSpectators: defaultMaxSpectators,
		Player1ID:     &uid,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := m.store.InsertRoom(ctx, room); err != nil {
		if errors.Is(err, ErrCodeTaken) {
			return nil, ErrCodeTaken
		}
		return nil, fmt.Errorf("insert room: %w", err)
	}
	m.log.WithFields(logrus.Fields{
		"room": room.ID,
		"code": room.RoomCode,
		"user": userID,
	}).Info("room created")
	return &Assignment{Seat: models.SeatPlayer1, Room: m.project(ctx, room)}, nil
}

// claimPrivate converts an empty waiting room into userID's private room
// with one conditional write.
func (m *Manager) claimPrivate(ctx context.Context, room *models.Room, userID uuid.UUID, timeControl int, roomType models.RoomType) (*Assignment, error) {
	expectStatus, expectP1, expectP2 := room.Status, room.Player1ID, room.Player2ID

	uid := userID
	now := time.Now()
	updated := *room
	updated.Player1ID = &uid
	updated.Status = models.RoomStatusQueued
	updated.CreationMode = models.CreationModePrivateRoom
	updated.TimeControl = timeControl
	updated.RoomType = roomType
	updated.UpdatedAt = now

	if err := m.store.UpdateRoomIf(ctx, &updated, expectStatus, expectP1, expectP2); err != nil {
		if errors.Is(err, ErrConflict) {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("commit private room claim: %w", err)
	}
	m.log.WithFields(logrus.Fields{
		"room": updated.ID,
		"code": updated.RoomCode,
		"user": userID,
	}).Info("private room claimed")
	return &Assignment{Seat: models.SeatPlayer1, Room: m.project(ctx, &updated)}, nil
}

// project builds the read-only view of a room, resolving player display
// fields when a user lookup is wired. Lookup failures degrade to the
// bare player id.
func (m *Manager) project(ctx context.Context, room *models.Room) *RoomInfo {
	info := &RoomInfo{
		ID:                room.ID,
		RoomCode:          room.RoomCode,
		RoomType:          room.RoomType,
		Status:            room.Status,
		CreationMode:      room.CreationMode,
		TimeControl:       room.TimeControl,
		MaxSpectators:     room.MaxSpectators,
		CurrentSpectators: room.CurrentSpectators,
		CreatedAt:         room.CreatedAt,
		GameStartedAt:     room.GameStartedAt,
		GameFinishedAt:    room.GameFinishedAt,
	}
	info.Player1 = m.playerInfo(ctx, room.Player1ID)
	info.Player2 = m.playerInfo(ctx, room.Player2ID)
	return info
}

func (m *Manager) playerInfo(ctx context.Context, id *uuid.UUID) *PlayerInfo {
	if id == nil {
		return nil
	}
	pi := &PlayerInfo{ID: *id}
	if m.users == nil {
		return pi
	}
	u, err := m.users.GetUserByID(ctx, *id)
	if err != nil {
		m.log.WithError(err).WithField("user", *id).Debug("player lookup failed for projection")
		return pi
	}
	pi.Username = u.Username
	pi.AvatarURL = u.AvatarURL
	return pi
}

func (m *Manager) publish(ctx context.Context, typ string, room *models.Room) {
	if m.events == nil {
		return
	}
	ev := RoomEvent{
		Type:      typ,
		RoomID:    room.ID,
		RoomCode:  room.RoomCode,
		Status:    room.Status,
		Timestamp: time.Now().Unix(),
	}
	if room.Player1ID != nil {
		ev.Players = append(ev.Players, *room.Player1ID)
	}
	if room.Player2ID != nil {
		ev.Players = append(ev.Players, *room.Player2ID)
	}
	if err := m.events.PublishRoomEvent(ctx, ev); err != nil {
		m.log.WithError(err).WithField("event", typ).Warn("failed to publish room event")
	}
}
