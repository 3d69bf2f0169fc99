package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"chessonline/internal/models"
	"chessonline/internal/rooms"
)

// RoomStore is the Postgres implementation of rooms.Store. Status and
// seat fields are only ever written through a conditional UPDATE whose
// WHERE clause re-checks the values the caller read, so a lost race
// surfaces as rooms.ErrConflict instead of a silent overwrite.
type RoomStore struct {
	pool *pgxpool.Pool
}

func NewRoomStore(pool *pgxpool.Pool) *RoomStore {
	return &RoomStore{pool: pool}
}

const roomColumns = `
	id, room_code, room_type, status, creation_mode,
	time_control, max_spectators, current_spectators,
	player1_id, player2_id,
	created_at, updated_at, game_started_at, game_finished_at`

func (s *RoomStore) GetRoom(ctx context.Context, id uuid.UUID) (*models.Room, error) {
	q := `SELECT ` + roomColumns + ` FROM rooms WHERE id = $1`
	return s.queryOne(ctx, q, id)
}

func (s *RoomStore) GetRoomByCode(ctx context.Context, code string) (*models.Room, error) {
	q := `SELECT ` + roomColumns + ` FROM rooms WHERE room_code = $1`
	return s.queryOne(ctx, q, code)
}

func (s *RoomStore) FindRooms(ctx context.Context, status models.RoomStatus, roomType models.RoomType, timeControl, limit int) ([]*models.Room, error) {
	q := `
	SELECT ` + roomColumns + `
	FROM rooms
	WHERE status = $1 AND room_type = $2 AND time_control = $3
	ORDER BY created_at ASC
	LIMIT $4`
	return s.queryMany(ctx, q, status, roomType, timeControl, limit)
}

func (s *RoomStore) FindEmptyWaiting(ctx context.Context, limit int) ([]*models.Room, error) {
	q := `
	SELECT ` + roomColumns + `
	FROM rooms
	WHERE status = $1 AND player1_id IS NULL AND player2_id IS NULL
	ORDER BY created_at ASC
	LIMIT $2`
	return s.queryMany(ctx, q, models.RoomStatusWaiting, limit)
}

func (s *RoomStore) InsertRoom(ctx context.Context, room *models.Room) error {
	q := `
	INSERT INTO rooms (` + roomColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`
	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, execErr := tx.Exec(ctx, q,
			room.ID, room.RoomCode, room.RoomType, room.Status, nullMode(room.CreationMode),
			room.TimeControl, room.MaxSpectators, room.CurrentSpectators,
			room.Player1ID, room.Player2ID,
			room.CreatedAt, room.UpdatedAt, room.GameStartedAt, room.GameFinishedAt,
		)
		return execErr
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return rooms.ErrCodeTaken
		}
		return fmt.Errorf("insert room: %w", err)
	}
	return nil
}

// UpdateRoomIf commits the room's fields only when the row still carries
// the expected status and seats. IS NOT DISTINCT FROM makes the NULL
// seat comparisons exact.
func (s *RoomStore) UpdateRoomIf(ctx context.Context, room *models.Room, expectStatus models.RoomStatus, expectP1, expectP2 *uuid.UUID) error {
	q := `
	UPDATE rooms
	SET room_type = $1, status = $2, creation_mode = $3,
	    time_control = $4, max_spectators = $5, current_spectators = $6,
	    player1_id = $7, player2_id = $8,
	    updated_at = $9, game_started_at = $10, game_finished_at = $11
	WHERE id = $12
	  AND status = $13
	  AND player1_id IS NOT DISTINCT FROM $14
	  AND player2_id IS NOT DISTINCT FROM $15`

	tag, err := s.pool.Exec(ctx, q,
		room.RoomType, room.Status, nullMode(room.CreationMode),
		room.TimeControl, room.MaxSpectators, room.CurrentSpectators,
		room.Player1ID, room.Player2ID,
		room.UpdatedAt, room.GameStartedAt, room.GameFinishedAt,
		room.ID,
		expectStatus, expectP1, expectP2,
	)
	if err != nil {
		return fmt.Errorf("conditional room update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return rooms.ErrConflict
	}
	return nil
}

func (s *RoomStore) CodeExists(ctx context.Context, code string) (bool, error) {
	var tmp int
	err := s.pool.QueryRow(ctx, `SELECT 1 FROM rooms WHERE room_code = $1 LIMIT 1`, code).Scan(&tmp)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("probe room code: %w", err)
	}
	return true, nil
}

func (s *RoomStore) BulkInsertRooms(ctx context.Context, batch []*models.Room) error {
	q := `
	INSERT INTO rooms (` + roomColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	ON CONFLICT (room_code) DO NOTHING`
	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		b := &pgx.Batch{}
		for _, room := range batch {
			b.Queue(q,
				room.ID, room.RoomCode, room.RoomType, room.Status, nullMode(room.CreationMode),
				room.TimeControl, room.MaxSpectators, room.CurrentSpectators,
				room.Player1ID, room.Player2ID,
				room.CreatedAt, room.UpdatedAt, room.GameStartedAt, room.GameFinishedAt,
			)
		}
		return tx.SendBatch(ctx, b).Close()
	})
}

func (s *RoomStore) RecycleFinished(ctx context.Context, before time.Time) (int64, error) {
	q := `
	UPDATE rooms
	SET status = $1,
	    player1_id = NULL, player2_id = NULL,
	    current_spectators = 0,
	    creation_mode = NULL,
	    game_started_at = NULL, game_finished_at = NULL,
	    updated_at = now()
	WHERE status = $2 AND updated_at < $3`

	tag, err := s.pool.Exec(ctx, q, models.RoomStatusWaiting, models.RoomStatusFinished, before)
	if err != nil {
		return 0, fmt.Errorf("recycle finished rooms: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *RoomStore) queryOne(ctx context.Context, q string, arg any) (*models.Room, error) {
	var r models.Room
	var mode *string
	err := s.pool.QueryRow(ctx, q, arg).Scan(
		&r.ID, &r.RoomCode, &r.RoomType, &r.Status, &mode,
		&r.TimeControl, &r.MaxSpectators, &r.CurrentSpectators,
		&r.Player1ID, &r.Player2ID,
		&r.CreatedAt, &r.UpdatedAt, &r.GameStartedAt, &r.GameFinishedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, rooms.ErrRoomNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query room: %w", err)
	}
	if mode != nil {
		r.CreationMode = models.CreationMode(*mode)
	}
	return &r, nil
}

func (s *RoomStore) queryMany(ctx context.Context, q string, args ...any) ([]*models.Room, error) {
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query rooms: %w", err)
	}
	defer rows.Close()

	var out []*models.Room
	for rows.Next() {
		var r models.Room
		var mode *string
		err := rows.Scan(
			&r.ID, &r.RoomCode, &r.RoomType, &r.Status, &mode,
			&r.TimeControl, &r.MaxSpectators, &r.CurrentSpectators,
			&r.Player1ID, &r.Player2ID,
			&r.CreatedAt, &r.UpdatedAt, &r.GameStartedAt, &r.GameFinishedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan room: %w", err)
		}
		if mode != nil {
			r.CreationMode = models.CreationMode(*mode)
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}

// nullMode maps the zero creation mode to SQL NULL.
func nullMode(m models.CreationMode) *string {
	if m == "" {
		return nil
	}
	s := string(m)
	return &s
}
