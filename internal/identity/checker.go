package identity

import (
	"context"
	"log"
	"time"

	"github.com/veralabs/resonance/pkg/store"
)

// ConfirmationChecker polls principals whose mint is awaiting confirmation
// and finalizes local status once the ledger reports the credential.
//
// A mint that stays unconfirmed past the slow-mint threshold is only logged.
// The ledger may simply be slow, and flipping to failed on elapsed time alone
// would make the orchestrator's decision table submit a duplicate mint.
type ConfirmationChecker struct {
	store    Store
	ledger   Ledger
	interval time.Duration
	slowMint time.Duration
}

// NewConfirmationChecker creates a checker that sweeps every interval and
// warns about mints unconfirmed for longer than slowMint.
func NewConfirmationChecker(s Store, l Ledger, interval, slowMint time.Duration) *ConfirmationChecker {
	return &ConfirmationChecker{
		store:    s,
		ledger:   l,
		interval: interval,
		slowMint: slowMint,
	}
}

// Run sweeps until the context is cancelled. A failed sweep is logged and the
// next tick runs anyway.
func (c *ConfirmationChecker) Run(ctx context.Context) {
	log.Printf("[ConfirmChecker] Starting (interval %s)", c.interval)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Printf("[ConfirmChecker] Shutting down")
			return
		case <-ticker.C:
			if err := c.Sweep(ctx); err != nil {
				log.Printf("[ConfirmChecker] Sweep failed: %v", err)
			}
		}
	}
}

// Sweep checks every principal currently in the minting state. Individual
// per-principal failures are logged and skipped; they never abort the sweep.
// An empty minting set is a successful no-op.
func (c *ConfirmationChecker) Sweep(ctx context.Context) error {
	addrs, err := c.store.ListByStatus(ctx, store.StatusMinting)
	if err != nil {
		return err
	}

	for _, addr := range addrs {
		if err := c.confirm(ctx, addr); err != nil {
			log.Printf("[ConfirmChecker] Could not check %s: %v", addr, err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
	return nil
}

func (c *ConfirmationChecker) confirm(ctx context.Context, address string) error {
	_, err := c.store.Update(ctx, address, func(p *store.Principal) error {
		// Another loop may have finalized this principal between the set
		// listing and here.
		if p.CredentialStatus != store.StatusMinting {
			return nil
		}

		owns, err := c.ledger.HasCredential(ctx, address)
		if err != nil {
			return err
		}

		if !owns {
			if age := time.Since(time.UnixMilli(p.MintSubmittedAtMs)); p.MintSubmittedAtMs > 0 && age > c.slowMint {
				log.Printf("[ConfirmChecker] Mint for %s unconfirmed after %s (tx=%s), still waiting",
					address, age.Round(time.Second), p.CredentialRef)
			}
			return nil
		}

		p.CredentialStatus = store.StatusActive
		p.CredentialRef = ""
		p.CredentialError = ""

		tokenID, err := c.ledger.CredentialTokenID(ctx, address)
		if err != nil {
			log.Printf("[ConfirmChecker] Credential confirmed for %s but token id lookup failed: %v", address, err)
			return nil
		}
		p.CredentialID = &tokenID
		log.Printf("[ConfirmChecker] Credential confirmed for %s: token id %d", address, tokenID)
		return nil
	})
	return err
}
