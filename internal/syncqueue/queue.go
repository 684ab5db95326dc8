// Package syncqueue implements the score sync queue: the in-memory work list
// of (principal, target score) pushes awaiting submission to the ledger, and
// the background worker that drains it.
//
// A score push costs a real transaction fee, so local score changes are only
// pushed when a principal crosses a decile milestone the ledger has not yet
// recorded (see ShouldSync).
package syncqueue

import (
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
)

// SyncStep is the score distance that makes a principal due for a push: a new
// decile milestone the ledger has not yet recorded.
const SyncStep = 10

// ShouldSync reports whether a principal's local score is due to be pushed to
// the ledger. True iff localScore has reached a decile milestone at least
// SyncStep above ledgerScore. Pass 0 for principals the ledger has never
// recorded.
func ShouldSync(localScore, ledgerScore int) bool {
	return localScore >= ledgerScore+SyncStep
}

// Item is one queued score push.
type Item struct {
	ID          string
	Principal   string
	TargetScore int
	Attempts    int
	LastAttempt time.Time // zero until the first attempt
	NotBefore   time.Time // backoff gate; zero means immediately eligible

	boff backoff.BackOff
}

// ItemView is a read-only projection of a queued item for the reporting
// surface.
type ItemView struct {
	ID          string    `json:"id"`
	Principal   string    `json:"principal"`
	TargetScore int       `json:"target_score"`
	Attempts    int       `json:"attempts"`
	LastAttempt time.Time `json:"last_attempt,omitempty"`
	NotBefore   time.Time `json:"not_before,omitempty"`
}

// Queue is the injectable score sync queue. It is safe for concurrent use by
// the authentication path, the startup scan and the drain worker.
//
// At most one live item exists per principal: enqueueing a principal that is
// already queued replaces its target score and resets its attempt count
// instead of duplicating the item.
type Queue struct {
	mu    sync.Mutex
	items []*Item          // FIFO order
	index map[string]*Item // principal -> live item

	backoffBase time.Duration
	backoffCap  time.Duration
}

// NewQueue creates an empty queue. Failed items become eligible again after
// base×2^attempts, capped at cap.
func NewQueue(base, cap time.Duration) *Queue {
	return &Queue{
		index:       make(map[string]*Item),
		backoffBase: base,
		backoffCap:  cap,
	}
}

// Enqueue adds a score push for principal, or updates the live item if one is
// already queued. Updating resets the attempt count and the backoff gate so
// the new target is pushed promptly.
func (q *Queue) Enqueue(principal string, targetScore int) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if item, ok := q.index[principal]; ok {
		item.TargetScore = targetScore
		item.Attempts = 0
		item.NotBefore = time.Time{}
		item.boff.Reset()
		return
	}

	item := &Item{
		ID:          uuid.New().String(),
		Principal:   principal,
		TargetScore: targetScore,
		boff:        q.newBackoff(),
	}
	q.items = append(q.items, item)
	q.index[principal] = item
}

func (q *Queue) newBackoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = q.backoffBase
	b.Multiplier = 2
	b.MaxInterval = q.backoffCap
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0 // attempt bounding is the worker's job
	b.Reset()
	return b
}

// NextEligible returns a snapshot of the first item whose backoff gate has
// passed. The item stays queued; the worker resolves it with Complete or
// Fail. A snapshot is returned rather than the live item because Enqueue may
// replace the target while the worker holds it.
func (q *Queue) NextEligible(now time.Time) (Item, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, item := range q.items {
		if item.NotBefore.IsZero() || !now.Before(item.NotBefore) {
			return Item{
				ID:          item.ID,
				Principal:   item.Principal,
				TargetScore: item.TargetScore,
				Attempts:    item.Attempts,
				LastAttempt: item.LastAttempt,
				NotBefore:   item.NotBefore,
			}, true
		}
	}
	return Item{}, false
}

// Complete removes a resolved item, but only if its target still matches the
// snapshot that was submitted. A replace that landed while the push was in
// flight leaves the item queued so the newer target is still pushed.
func (q *Queue) Complete(id string, target int) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, item := range q.items {
		if item.ID != id {
			continue
		}
		if item.TargetScore != target {
			return
		}
		q.items = append(q.items[:i], q.items[i+1:]...)
		delete(q.index, item.Principal)
		return
	}
}

// Fail records a failed attempt: the attempt count is incremented and the
// item is gated behind its next backoff delay, then moved to the tail so one
// failing principal never blocks the rest of the queue. Returns the new
// attempt count.
func (q *Queue) Fail(id string, now time.Time) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, item := range q.items {
		if item.ID != id {
			continue
		}
		item.Attempts++
		item.LastAttempt = now
		item.NotBefore = now.Add(item.boff.NextBackOff())

		q.items = append(q.items[:i], q.items[i+1:]...)
		q.items = append(q.items, item)
		return item.Attempts
	}
	return 0
}

// Drop removes an item that exceeded its attempt budget or cannot be
// submitted at all. Dropped items leave no queue trace on purpose: the
// failure is recorded on the principal record, which is what the reporting
// surface exposes. Unlike Complete, a drop is unconditional.
func (q *Queue) Drop(id string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.remove(id)
}

func (q *Queue) remove(id string) {
	for i, item := range q.items {
		if item.ID == id {
			q.items = append(q.items[:i], q.items[i+1:]...)
			delete(q.index, item.Principal)
			return
		}
	}
}

// Depth returns the number of live items.
func (q *Queue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Snapshot returns a read-only view of the queue in FIFO order.
func (q *Queue) Snapshot() []ItemView {
	q.mu.Lock()
	defer q.mu.Unlock()

	views := make([]ItemView, 0, len(q.items))
	for _, item := range q.items {
		views = append(views, ItemView{
			ID:          item.ID,
			Principal:   item.Principal,
			TargetScore: item.TargetScore,
			Attempts:    item.Attempts,
			LastAttempt: item.LastAttempt,
			NotBefore:   item.NotBefore,
		})
	}
	return views
}
