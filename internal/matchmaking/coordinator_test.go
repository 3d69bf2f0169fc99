package matchmaking

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chessonline/internal/models"
	"chessonline/internal/rooms"
)

// failingAllocator simulates the room store being down mid-match.
type failingAllocator struct{}

func (failingAllocator) CreateMatchRoom(ctx context.Context, player1, player2 uuid.UUID, timeControl int, roomType models.RoomType) (*rooms.RoomInfo, error) {
	return nil, errors.New("connection refused")
}

func newTestCoordinator(t *testing.T) (*Coordinator, *Queue, *rooms.MemoryStore) {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	store := rooms.NewMemoryStore()
	mgr := rooms.NewManager(store, store, rooms.NewCodeGenerator(store), logger)
	queue := NewQueue(logger)
	return NewCoordinator(queue, mgr, logger), queue, store
}

func TestStartMatchmakingFirstPlayerSearches(t *testing.T) {
	ctx := context.Background()
	coord, queue, store := newTestCoordinator(t)

	res, err := coord.StartMatchmaking(ctx, uuid.New(), blitz())
	require.NoError(t, err)

	assert.Equal(t, StatusSearching, res.Status)
	assert.Equal(t, 1, res.QueuePosition)
	assert.True(t, res.CanCancel)
	assert.Nil(t, res.Room)
	assert.Equal(t, 1, queue.Size())
	assert.Equal(t, 0, store.RoomCount())
}

func TestStartMatchmakingPairsSecondPlayer(t *testing.T) {
	ctx := context.Background()
	coord, queue, store := newTestCoordinator(t)
	userA := uuid.New()
	userB := uuid.New()

	_, err := coord.StartMatchmaking(ctx, userA, blitz())
	require.NoError(t, err)

	res, err := coord.StartMatchmaking(ctx, userB, blitz())
	require.NoError(t, err)

	assert.Equal(t, StatusMatched, res.Status)
	require.NotNil(t, res.OpponentID)
	assert.Equal(t, userA, *res.OpponentID)
	require.NotNil(t, res.Room)
	assert.Equal(t, models.RoomStatusInProgress, res.Room.Status)
	assert.Equal(t, models.CreationModeMatchmaking, res.Room.CreationMode)
	require.NotNil(t, res.Room.Player1)
	require.NotNil(t, res.Room.Player2)
	assert.Equal(t, userA, res.Room.Player1.ID)
	assert.Equal(t, userB, res.Room.Player2.ID)

	assert.Equal(t, 0, queue.Size())
	assert.Equal(t, 1, store.RoomCount())
}

func TestStartMatchmakingDuplicateEntry(t *testing.T) {
	ctx := context.Background()
	coord, _, _ := newTestCoordinator(t)
	userID := uuid.New()

	_, err := coord.StartMatchmaking(ctx, userID, blitz())
	require.NoError(t, err)

	_, err = coord.StartMatchmaking(ctx, userID, blitz())
	assert.ErrorIs(t, err, ErrAlreadyInQueue)
}

func TestStartMatchmakingRollbackOnAllocationFailure(t *testing.T) {
	ctx := context.Background()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	queue := NewQueue(logger)
	broken := NewCoordinator(queue, failingAllocator{}, logger)

	userA := uuid.New()
	userB := uuid.New()

	_, err := broken.StartMatchmaking(ctx, userA, blitz())
	require.NoError(t, err)

	// Allocation fails after userA's entry was claimed; both players end
	// up waiting instead of being dropped.
	res, err := broken.StartMatchmaking(ctx, userB, blitz())
	require.NoError(t, err)
	assert.Equal(t, StatusSearching, res.Status)
	assert.True(t, res.CanCancel)
	assert.Equal(t, 2, queue.Size())

	// userA kept their original enqueue time, so once allocation works
	// again a third player matches them first.
	store := rooms.NewMemoryStore()
	mgr := rooms.NewManager(store, store, rooms.NewCodeGenerator(store), logger)
	working := NewCoordinator(queue, mgr, logger)

	got, err := working.StartMatchmaking(ctx, uuid.New(), blitz())
	require.NoError(t, err)
	assert.Equal(t, StatusMatched, got.Status)
	require.NotNil(t, got.OpponentID)
	assert.Equal(t, userA, *got.OpponentID)
	assert.Equal(t, 1, queue.Size())
}

func TestCancelMatchmaking(t *testing.T) {
	ctx := context.Background()
	coord, queue, _ := newTestCoordinator(t)
	userID := uuid.New()

	_, err := coord.StartMatchmaking(ctx, userID, blitz())
	require.NoError(t, err)

	require.NoError(t, coord.CancelMatchmaking(userID))
	assert.Equal(t, 0, queue.Size())
	assert.ErrorIs(t, coord.CancelMatchmaking(userID), ErrNotInQueue)
}

func TestQueueStatus(t *testing.T) {
	ctx := context.Background()
	coord, _, _ := newTestCoordinator(t)

	_, err := coord.StartMatchmaking(ctx, uuid.New(), blitz())
	require.NoError(t, err)

	st := coord.QueueStatus()
	assert.Equal(t, 1, st.TotalPlayers)
	require.Len(t, st.Queue, 1)
	assert.Contains(t, st.Queue[0].UserID, "...")
}

func TestMatchFoundEventPublished(t *testing.T) {
	ctx := context.Background()
	coord, _, _ := newTestCoordinator(t)
	pub := &capturePublisher{}
	coord.SetEventPublisher(pub)

	userA := uuid.New()
	userB := uuid.New()
	_, err := coord.StartMatchmaking(ctx, userA, blitz())
	require.NoError(t, err)
	_, err = coord.StartMatchmaking(ctx, userB, blitz())
	require.NoError(t, err)

	require.NotEmpty(t, pub.events)
	last := pub.events[len(pub.events)-1]
	assert.Equal(t, "match_found", last.Type)
	assert.Equal(t, []uuid.UUID{userA, userB}, last.Players)
}

// capturePublisher records room events for assertions.
type capturePublisher struct {
	events []rooms.RoomEvent
}

func (p *capturePublisher) PublishRoomEvent(ctx context.Context, ev rooms.RoomEvent) error {
	p.events = append(p.events, ev)
	return nil
}
