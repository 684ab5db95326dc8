package syncqueue

import (
	"context"
	"log"
	"time"

	"github.com/veralabs/resonance/pkg/ledger"
	"github.com/veralabs/resonance/pkg/store"
)

// Ledger is the slice of the ledger client the worker needs.
type Ledger interface {
	AdjustScore(ctx context.Context, principal string, score int) (ledger.TxRef, error)
	Score(ctx context.Context, address string) (int, error)
}

// Store is the slice of the local state store the worker needs.
type Store interface {
	Update(ctx context.Context, address string, fn func(p *store.Principal) error) (*store.Principal, error)
}

// Worker drains the score sync queue. One submission runs at a time; the
// ledger client's nonce sequencer serializes it against every other write
// path in the process.
type Worker struct {
	queue        *Queue
	ledger       Ledger
	store        Store
	maxAttempts  int
	pollInterval time.Duration

	unconfiguredReported bool
}

// NewWorker creates a drain worker. Items that fail transiently more than
// maxAttempts times are dropped with a reported failure.
func NewWorker(queue *Queue, l Ledger, s Store, maxAttempts int, pollInterval time.Duration) *Worker {
	return &Worker{
		queue:        queue,
		ledger:       l,
		store:        s,
		maxAttempts:  maxAttempts,
		pollInterval: pollInterval,
	}
}

// Run drains eligible items until the context is cancelled. Failures inside a
// drain pass are contained per item; the loop itself never exits on error.
func (w *Worker) Run(ctx context.Context) {
	log.Printf("[SyncWorker] Starting (poll interval %s, max attempts %d)", w.pollInterval, w.maxAttempts)

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Printf("[SyncWorker] Shutting down")
			return
		case <-ticker.C:
			w.drain(ctx)
		}
	}
}

// drain processes every currently eligible item. Failed items leave the
// eligible set via their backoff gate, so the pass terminates.
func (w *Worker) drain(ctx context.Context) {
	for {
		item, ok := w.queue.NextEligible(time.Now())
		if !ok {
			return
		}
		w.process(ctx, item)

		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

// process submits one queued push. It works on a snapshot: the live item may
// be replaced with a new target while the submission is in flight, in which
// case Complete leaves it queued and a later pass pushes the new target.
func (w *Worker) process(ctx context.Context, item Item) {
	ref, err := w.ledger.AdjustScore(ctx, item.Principal, item.TargetScore)
	now := time.Now()

	switch {
	case err == nil:
		w.queue.Complete(item.ID, item.TargetScore)
		w.recordOutcome(ctx, item.Principal, item.TargetScore, string(ref))
		log.Printf("[SyncWorker] Score push submitted for %s: target=%d tx=%s", item.Principal, item.TargetScore, ref)

	case ledger.IsRejected(err):
		// Authoritative rejection: resolve by re-reading ledger state, never
		// by resubmitting the write.
		w.queue.Complete(item.ID, item.TargetScore)
		log.Printf("[SyncWorker] Score push rejected for %s, reconciling from ledger: %v", item.Principal, err)
		w.reconcileFromLedger(ctx, item.Principal, err)

	case ledger.IsUnconfigured(err):
		w.queue.Drop(item.ID)
		if !w.unconfiguredReported {
			w.unconfiguredReported = true
			log.Printf("[SyncWorker] Score writes not configured, dropping queued pushes: %v", err)
		}
		w.recordFailure(ctx, item.Principal, err)

	default:
		attempts := w.queue.Fail(item.ID, now)
		if attempts > w.maxAttempts {
			w.queue.Drop(item.ID)
			log.Printf("[SyncWorker] Dropping score push for %s after %d attempts: %v", item.Principal, attempts, err)
			w.recordFailure(ctx, item.Principal, err)
			return
		}
		log.Printf("[SyncWorker] Transient failure for %s (attempt %d/%d), backing off: %v",
			item.Principal, attempts, w.maxAttempts, err)
	}
}

// recordOutcome persists a successful push. A store failure here must not
// lose the update silently: the next should-sync evaluation re-reads the
// ledger score, so logging and moving on reconciles idempotently.
func (w *Worker) recordOutcome(ctx context.Context, principal string, target int, ref string) {
	_, err := w.store.Update(ctx, principal, func(p *store.Principal) error {
		p.LedgerScore = &target
		p.LastSyncOK = true
		p.LastSyncError = ""
		p.LastSyncRef = ref
		p.LastSyncMs = time.Now().UnixMilli()
		return nil
	})
	if err != nil {
		log.Printf("[SyncWorker] Failed to record sync outcome for %s: %v", principal, err)
	}
}

func (w *Worker) recordFailure(ctx context.Context, principal string, cause error) {
	_, err := w.store.Update(ctx, principal, func(p *store.Principal) error {
		p.LastSyncOK = false
		p.LastSyncError = cause.Error()
		p.LastSyncMs = time.Now().UnixMilli()
		return nil
	})
	if err != nil {
		log.Printf("[SyncWorker] Failed to record sync failure for %s: %v", principal, err)
	}
}

func (w *Worker) reconcileFromLedger(ctx context.Context, principal string, cause error) {
	observed, err := w.ledger.Score(ctx, principal)
	if err != nil {
		log.Printf("[SyncWorker] Could not re-read ledger score for %s: %v", principal, err)
		w.recordFailure(ctx, principal, cause)
		return
	}
	if observed < 0 {
		observed = 0
	} else if observed > 100 {
		observed = 100
	}

	_, err = w.store.Update(ctx, principal, func(p *store.Principal) error {
		p.LedgerScore = &observed
		p.LastSyncOK = true
		p.LastSyncError = ""
		p.LastSyncRef = "" // reconciled from a read, no transaction behind it
		p.LastSyncMs = time.Now().UnixMilli()
		return nil
	})
	if err != nil {
		log.Printf("[SyncWorker] Failed to reconcile ledger score for %s: %v", principal, err)
	}
}
