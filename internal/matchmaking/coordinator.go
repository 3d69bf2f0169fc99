// internal/matchmaking/coordinator.go
package matchmaking

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"chessonline/internal/models"
	"chessonline/internal/rooms"
)

// RoomAllocator is the slice of the room lifecycle manager the
// coordinator needs to materialize a match.
type RoomAllocator interface {
	CreateMatchRoom(ctx context.Context, player1, player2 uuid.UUID, timeControl int, roomType models.RoomType) (*rooms.RoomInfo, error)
}

const (
	StatusMatched   = "matched"
	StatusSearching = "searching"
)

// Result is the outcome of a StartMatchmaking call.
type Result struct {
	Status        string          `json:"status"`
	Room          *rooms.RoomInfo `json:"room,omitempty"`
	OpponentID    *uuid.UUID      `json:"opponent_id,omitempty"`
	QueuePosition int             `json:"queue_position,omitempty"`
	EstimatedWait string          `json:"estimated_wait_time,omitempty"`
	CanCancel     bool            `json:"can_cancel"`
}

// Coordinator pairs queue entries and hands them to the room manager.
type Coordinator struct {
	queue     *Queue
	allocator RoomAllocator
	events    rooms.EventPublisher
	log       *logrus.Logger
}

func NewCoordinator(queue *Queue, allocator RoomAllocator, logger *logrus.Logger) *Coordinator {
	if logger == nil {
		logger = logrus.New()
	}
	return &Coordinator{
		queue:     queue,
		allocator: allocator,
		log:       logger,
	}
}

// SetEventPublisher wires an optional downstream event sink.
func (c *Coordinator) SetEventPublisher(p rooms.EventPublisher) {
	c.events = p
}

// StartMatchmaking claims a waiting opponent and seats both players into
// a game, or inserts the caller into the queue. When room allocation
// fails after the opponent's entry was already claimed, both players are
// put back in the queue rather than dropped: the opponent keeps their
// original enqueue time, the caller is enqueued fresh.
func (c *Coordinator) StartMatchmaking(ctx context.Context, userID uuid.UUID, crit Criteria) (*Result, error) {
	opp, pos, err := c.queue.MatchOrEnqueue(userID, crit)
	if err != nil {
		return nil, err
	}

	if opp == nil {
		return &Result{
			Status:        StatusSearching,
			QueuePosition: pos,
			EstimatedWait: "30-60 seconds",
			CanCancel:     true,
		}, nil
	}

	info, err := c.allocator.CreateMatchRoom(ctx, opp.UserID, userID, crit.TimeControl, crit.RoomType)
	if err != nil {
		c.log.WithError(err).WithFields(logrus.Fields{
			"user":     userID,
			"opponent": opp.UserID,
		}).Error("match allocation failed, re-enqueueing both players")

		c.queue.Reinstate(*opp)
		pos, enqErr := c.queue.Enqueue(userID, crit)
		if enqErr != nil {
			c.log.WithError(enqErr).WithField("user", userID).Warn("could not re-enqueue caller after failed match")
		}
		return &Result{
			Status:        StatusSearching,
			QueuePosition: pos,
			EstimatedWait: "30-60 seconds",
			CanCancel:     true,
		}, nil
	}

	c.publishMatchFound(ctx, info, opp.UserID, userID)

	oppID := opp.UserID
	return &Result{
		Status:     StatusMatched,
		Room:       info,
		OpponentID: &oppID,
	}, nil
}

// CancelMatchmaking removes the caller's queue entry and its expiry timer.
func (c *Coordinator) CancelMatchmaking(userID uuid.UUID) error {
	return c.queue.Cancel(userID)
}

// QueueStatus returns the redacted queue snapshot.
func (c *Coordinator) QueueStatus() Status {
	return c.queue.Snapshot()
}

func (c *Coordinator) publishMatchFound(ctx context.Context, info *rooms.RoomInfo, p1, p2 uuid.UUID) {
	if c.events == nil {
		return
	}
	ev := rooms.RoomEvent{
		Type:      "match_found",
		RoomID:    info.ID,
		RoomCode:  info.RoomCode,
		Status:    info.Status,
		Players:   []uuid.UUID{p1, p2},
		Timestamp: time.Now().Unix(),
	}
	if err := c.events.PublishRoomEvent(ctx, ev); err != nil {
		c.log.WithError(err).Warn("failed to publish match_found event")
	}
}
