package rooms

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chessonline/internal/models"
)

func seedFinishedRoom(t *testing.T, store *MemoryStore, code string, age time.Duration) *models.Room {
	t.Helper()
	p1 := uuid.New()
	p2 := uuid.New()
	then := time.Now().Add(-age)
	room := &models.Room{
		ID:             uuid.New(),
		RoomCode:       code,
		RoomType:       models.RoomTypePublic,
		Status:         models.RoomStatusFinished,
		CreationMode:   models.CreationModeMatchmaking,
		TimeControl:    10,
		Player1ID:      &p1,
		Player2ID:      &p2,
		CreatedAt:      then,
		UpdatedAt:      then,
		GameStartedAt:  &then,
		GameFinishedAt: &then,
	}
	require.NoError(t, store.InsertRoom(context.Background(), room))
	return room
}

func TestReaperRecyclesStaleFinishedRooms(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	stale := seedFinishedRoom(t, store, "111111", 2*time.Hour)
	fresh := seedFinishedRoom(t, store, "222222", 5*time.Minute)

	reaper := NewReaper(store, DefaultReapInterval, time.Hour, logger)
	reaper.Sweep(ctx)

	recycled, err := store.GetRoom(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoomStatusWaiting, recycled.Status)
	assert.True(t, recycled.IsEmpty())
	assert.Empty(t, recycled.CreationMode)
	assert.Nil(t, recycled.GameStartedAt)
	assert.Nil(t, recycled.GameFinishedAt)
	assert.Equal(t, "111111", recycled.RoomCode)

	kept, err := store.GetRoom(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoomStatusFinished, kept.Status)
	assert.True(t, kept.IsFull())
}

func TestReaperLeavesLiveRoomsAlone(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	p1 := uuid.New()
	then := time.Now().Add(-3 * time.Hour)
	live := &models.Room{
		ID:          uuid.New(),
		RoomCode:    "333333",
		RoomType:    models.RoomTypePublic,
		Status:      models.RoomStatusQueued,
		TimeControl: 10,
		Player1ID:   &p1,
		CreatedAt:   then,
		UpdatedAt:   then,
	}
	require.NoError(t, store.InsertRoom(ctx, live))

	NewReaper(store, DefaultReapInterval, time.Hour, logger).Sweep(ctx)

	room, err := store.GetRoom(ctx, live.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoomStatusQueued, room.Status)
	require.NotNil(t, room.Player1ID)
	assert.Equal(t, p1, *room.Player1ID)
}

func TestReaperRunStopsOnCancel(t *testing.T) {
	store := NewMemoryStore()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	seedFinishedRoom(t, store, "444444", 2*time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	reaper := NewReaper(store, 10*time.Millisecond, time.Hour, logger)

	done := make(chan struct{})
	go func() {
		reaper.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		ctx := context.Background()
		rs, err := store.FindEmptyWaiting(ctx, 1)
		return err == nil && len(rs) == 1
	}, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reaper did not stop on context cancel")
	}
}
