// Package identity manages the lifecycle of the per-principal identity
// credential: deciding when a mint is needed, submitting it, confirming it
// against the ledger and retrying failures. Credential issuance is advisory:
// it never blocks a principal's ability to authenticate.
package identity

import (
	"context"
	"log"
	"time"

	"github.com/veralabs/resonance/pkg/ledger"
	"github.com/veralabs/resonance/pkg/store"
)

// Ledger is the slice of the ledger client the identity components need.
type Ledger interface {
	HasCredential(ctx context.Context, address string) (bool, error)
	CredentialTokenID(ctx context.Context, address string) (int64, error)
	MintCredential(ctx context.Context, to string) (ledger.TxRef, error)
}

// Store is the slice of the local state store the identity components need.
type Store interface {
	Update(ctx context.Context, address string, fn func(p *store.Principal) error) (*store.Principal, error)
	ListByStatus(ctx context.Context, status store.CredentialStatus) ([]string, error)
}

// Orchestrator decides whether a principal needs a credential minted and
// submits the mint. It is invoked synchronously on a principal's first
// authentication and asynchronously by the retry sweep.
type Orchestrator struct {
	store  Store
	ledger Ledger
}

// NewOrchestrator creates a mint orchestrator.
func NewOrchestrator(s Store, l Ledger) *Orchestrator {
	return &Orchestrator{store: s, ledger: l}
}

// EnsureCredential drives the principal toward exactly one active credential.
//
// The decision runs inside the store's per-address critical section, so
// concurrent triggers for the same principal serialize and can never produce
// two outstanding mint references. In order:
//
//  1. Ledger already reports ownership: trust it over any local status, go
//     active, no write.
//  2. Status failed or pending (never attempted): submit a mint.
//  3. Status minting with no transaction reference (crash mid-submission):
//     submit a mint.
//  4. Otherwise (minting with a live reference, or active): leave it to the
//     confirmation checker.
//
// A mint submission failure marks the principal failed and records the reason
// on the record; it is never surfaced as a fatal error to the caller.
func (o *Orchestrator) EnsureCredential(ctx context.Context, address string) error {
	_, err := o.store.Update(ctx, address, func(p *store.Principal) error {
		owns, err := o.ledger.HasCredential(ctx, address)
		if err != nil {
			// An unreadable ledger must never be read as ownership; fall
			// through to the local decision table.
			log.Printf("[Identity] Ownership check failed for %s: %v", address, err)
			owns = false
		}

		if owns {
			o.activate(ctx, p)
			return nil
		}

		switch {
		case p.CredentialStatus == store.StatusPending,
			p.CredentialStatus == store.StatusFailed,
			p.CredentialStatus == store.StatusAbsent:
			o.submitMint(ctx, p)

		case p.CredentialStatus == store.StatusMinting && p.CredentialRef == "":
			o.submitMint(ctx, p)

		default:
			// Minting with a live reference, or already active: the
			// confirmation checker owns the next transition.
		}
		return nil
	})
	return err
}

// activate transitions the record to active from a positive ledger read. The
// token identifier is fetched best-effort; a missing id leaves the field
// unset for a later read to fill in.
func (o *Orchestrator) activate(ctx context.Context, p *store.Principal) {
	p.CredentialStatus = store.StatusActive
	p.CredentialRef = ""
	p.CredentialError = ""

	tokenID, err := o.ledger.CredentialTokenID(ctx, p.Address)
	if err != nil {
		log.Printf("[Identity] Credential confirmed for %s but token id lookup failed: %v", p.Address, err)
		return
	}
	p.CredentialID = &tokenID
	log.Printf("[Identity] Credential active for %s: token id %d", p.Address, tokenID)
}

func (o *Orchestrator) submitMint(ctx context.Context, p *store.Principal) {
	ref, err := o.ledger.MintCredential(ctx, p.Address)
	if err != nil {
		p.CredentialStatus = store.StatusFailed
		p.CredentialRef = ""
		p.CredentialError = err.Error()
		log.Printf("[Identity] Mint submission failed for %s: %v", p.Address, err)
		return
	}

	p.CredentialStatus = store.StatusMinting
	p.CredentialRef = string(ref)
	p.CredentialError = ""
	p.MintSubmittedAtMs = time.Now().UnixMilli()
	log.Printf("[Identity] Mint submitted for %s: tx=%s", p.Address, ref)
}
