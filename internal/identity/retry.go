package identity

import (
	"context"
	"log"
	"time"

	"github.com/veralabs/resonance/pkg/store"
)

// RetrySweeper periodically re-runs the mint orchestrator over principals
// whose credential is failed or was never attempted, so principals who
// authenticated while the ledger was unavailable still converge on an active
// credential.
type RetrySweeper struct {
	store    Store
	orch     *Orchestrator
	interval time.Duration
}

// NewRetrySweeper creates a sweeper over failed and pending principals.
func NewRetrySweeper(s Store, orch *Orchestrator, interval time.Duration) *RetrySweeper {
	return &RetrySweeper{store: s, orch: orch, interval: interval}
}

// Run sweeps until the context is cancelled.
func (r *RetrySweeper) Run(ctx context.Context) {
	log.Printf("[MintRetry] Starting (interval %s)", r.interval)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Printf("[MintRetry] Shutting down")
			return
		case <-ticker.C:
			if err := r.Sweep(ctx); err != nil {
				log.Printf("[MintRetry] Sweep failed: %v", err)
			}
		}
	}
}

// Sweep runs EnsureCredential for every failed and pending principal.
// Per-principal failures are logged and skipped.
func (r *RetrySweeper) Sweep(ctx context.Context) error {
	for _, status := range []store.CredentialStatus{store.StatusFailed, store.StatusPending} {
		addrs, err := r.store.ListByStatus(ctx, status)
		if err != nil {
			return err
		}

		for _, addr := range addrs {
			if err := r.orch.EnsureCredential(ctx, addr); err != nil {
				log.Printf("[MintRetry] Could not retry %s: %v", addr, err)
			}

			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
		}
	}
	return nil
}
