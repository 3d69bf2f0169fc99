// internal/matchmaking/queue.go
package matchmaking

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"chessonline/internal/models"
)

var (
	// ErrAlreadyInQueue indicates the user already has a live queue entry.
	ErrAlreadyInQueue = errors.New("user is already in the matchmaking queue")

	// ErrNotInQueue indicates the user has no live queue entry.
	ErrNotInQueue = errors.New("user is not in the matchmaking queue")
)

// DefaultMaxWait is how long an entry waits before expiring when the
// player did not ask for a specific wait limit.
const DefaultMaxWait = 60 * time.Second

// Preferences are the optional knobs a player can set when queueing.
type Preferences struct {
	MaxWaitTime         time.Duration `json:"max_wait_time"`
	AllowRandomOpponent bool          `json:"allow_random_opponent"`
}

// Criteria is what a player is queueing for. Two entries match only on
// identical TimeControl and RoomType.
type Criteria struct {
	TimeControl int             `json:"time_control"`
	RoomType    models.RoomType `json:"room_type"`
	Preferences Preferences     `json:"preferences"`
}

// Entry is one waiting player. Entries are owned exclusively by the
// Queue; callers only ever see copies.
type Entry struct {
	UserID      uuid.UUID
	TimeControl int
	RoomType    models.RoomType
	Preferences Preferences
	EnqueuedAt  time.Time

	seq uint64
}

// Queue is the in-memory registry of players waiting for an automatic
// opponent. All operations run under one mutex so that enqueue, find and
// remove always execute as a single critical section; each live entry
// has exactly one pending expiry timer in the registry.
type Queue struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*Entry
	timers  map[uuid.UUID]*time.Timer
	seq     uint64

	log *logrus.Logger
}

func NewQueue(logger *logrus.Logger) *Queue {
	if logger == nil {
		logger = logrus.New()
	}
	return &Queue{
		entries: make(map[uuid.UUID]*Entry),
		timers:  make(map[uuid.UUID]*time.Timer),
		log:     logger,
	}
}

// Enqueue inserts a live entry for userID and schedules its expiry.
// Returns the queue position (1-based) after insertion.
func (q *Queue) Enqueue(userID uuid.UUID, crit Criteria) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.entries[userID]; ok {
		return 0, ErrAlreadyInQueue
	}
	q.insertLocked(userID, crit, time.Now())
	return len(q.entries), nil
}

// FindMatch returns a copy of the earliest-enqueued entry with identical
// time control and room type, excluding the caller, or nil. Read-only.
func (q *Queue) FindMatch(timeControl int, roomType models.RoomType, excludeUserID uuid.UUID) *Entry {
	q.mu.Lock()
	defer q.mu.Unlock()
	if e := q.findLocked(timeControl, roomType, excludeUserID); e != nil {
		cp := *e
		return &cp
	}
	return nil
}

// MatchOrEnqueue is the pairing critical section: under one lock it
// rejects a duplicate entry for userID, claims (removes) the earliest
// matching opponent if one is waiting, or inserts userID's own entry.
// Two concurrent calls can never both claim the same opponent.
func (q *Queue) MatchOrEnqueue(userID uuid.UUID, crit Criteria) (opponent *Entry, position int, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.entries[userID]; ok {
		return nil, 0, ErrAlreadyInQueue
	}

	if opp := q.findLocked(crit.TimeControl, crit.RoomType, userID); opp != nil {
		cp := *opp
		q.removeLocked(opp.UserID)
		return &cp, 0, nil
	}

	q.insertLocked(userID, crit, time.Now())
	return nil, len(q.entries), nil
}

// Cancel removes userID's entry and its pending expiry timer. The first
// remover wins; a later cancel sees ErrNotInQueue and changes nothing.
func (q *Queue) Cancel(userID uuid.UUID) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.entries[userID]; !ok {
		return ErrNotInQueue
	}
	q.removeLocked(userID)
	return nil
}

// Reinstate puts a previously claimed entry back, preserving its
// original enqueue time so it keeps its place in matching order. The
// expiry timer is rescheduled for the remaining wait. If the user
// re-queued in the meantime, the live entry wins and the stale one is
// dropped.
func (q *Queue) Reinstate(e Entry) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.entries[e.UserID]; ok {
		return
	}
	q.seq++
	cp := e
	cp.seq = q.seq
	q.entries[e.UserID] = &cp

	wait := maxWait(e.Preferences)
	remaining := wait - time.Since(e.EnqueuedAt)
	if remaining < time.Second {
		remaining = time.Second
	}
	q.scheduleExpiryLocked(e.UserID, remaining)
}

// Size reports the number of live entries.
func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// EntryStatus is one redacted row of the queue snapshot.
type EntryStatus struct {
	UserID      string          `json:"user_id"`
	TimeControl int             `json:"time_control"`
	RoomType    models.RoomType `json:"room_type"`
	WaitSeconds int64           `json:"wait_seconds"`
}

// Status is a read-only view of the whole queue.
type Status struct {
	TotalPlayers int           `json:"total_players"`
	Queue        []EntryStatus `json:"queue"`
}

// Snapshot returns the current queue status, longest-waiting first.
// User identifiers are redacted to a short prefix. Never mutates.
func (q *Queue) Snapshot() Status {
	q.mu.Lock()
	defer q.mu.Unlock()

	st := Status{TotalPlayers: len(q.entries), Queue: []EntryStatus{}}
	ordered := make([]*Entry, 0, len(q.entries))
	for _, e := range q.entries {
		ordered = append(ordered, e)
	}
	for i := 1; i < len(ordered); i++ {
		for j := i; j > 0 && earlier(ordered[j], ordered[j-1]); j-- {
			ordered[j], ordered[j-1] = ordered[j-1], ordered[j]
		}
	}
	now := time.Now()
	for _, e := range ordered {
		st.Queue = append(st.Queue, EntryStatus{
			UserID:      redactID(e.UserID),
			TimeControl: e.TimeControl,
			RoomType:    e.RoomType,
			WaitSeconds: int64(now.Sub(e.EnqueuedAt).Seconds()),
		})
	}
	return st
}

// insertLocked adds a live entry and schedules its expiry. Caller holds the lock.
func (q *Queue) insertLocked(userID uuid.UUID, crit Criteria, at time.Time) {
	q.seq++
	q.entries[userID] = &Entry{
		UserID:      userID,
		TimeControl: crit.TimeControl,
		RoomType:    crit.RoomType,
		Preferences: crit.Preferences,
		EnqueuedAt:  at,
		seq:         q.seq,
	}
	q.scheduleExpiryLocked(userID, maxWait(crit.Preferences))
}

// findLocked returns the earliest matching live entry. Caller holds the lock.
func (q *Queue) findLocked(timeControl int, roomType models.RoomType, excludeUserID uuid.UUID) *Entry {
	var best *Entry
	for _, e := range q.entries {
		if e.UserID == excludeUserID || e.TimeControl != timeControl || e.RoomType != roomType {
			continue
		}
		if best == nil || earlier(e, best) {
			best = e
		}
	}
	return best
}

// removeLocked deletes the entry and stops its pending timer. Caller holds the lock.
func (q *Queue) removeLocked(userID uuid.UUID) {
	delete(q.entries, userID)
	if t, ok := q.timers[userID]; ok {
		t.Stop()
		delete(q.timers, userID)
	}
}

// scheduleExpiryLocked registers the 1:1 expiry timer for userID's
// current entry. When the timer fires it re-checks, under the lock, that
// it is still the registered timer for a still-live entry; a stale fire
// is a no-op. Caller holds the lock.
func (q *Queue) scheduleExpiryLocked(userID uuid.UUID, wait time.Duration) {
	var timer *time.Timer
	timer = time.AfterFunc(wait, func() {
		q.mu.Lock()
		defer q.mu.Unlock()
		if q.timers[userID] != timer {
			return
		}
		delete(q.timers, userID)
		if _, ok := q.entries[userID]; !ok {
			return
		}
		delete(q.entries, userID)
		q.log.WithField("user", userID).Info("matchmaking entry expired")
	})
	q.timers[userID] = timer
}

func maxWait(p Preferences) time.Duration {
	if p.MaxWaitTime > 0 {
		return p.MaxWaitTime
	}
	return DefaultMaxWait
}

func earlier(a, b *Entry) bool {
	if a.EnqueuedAt.Equal(b.EnqueuedAt) {
		return a.seq < b.seq
	}
	return a.EnqueuedAt.Before(b.EnqueuedAt)
}

func redactID(id uuid.UUID) string {
	return id.String()[:8] + "..."
}
