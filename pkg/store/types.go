// Package store provides the durable local state for reconciliation: one
// record per wallet-authenticated principal, kept in Redis and mirrored
// against the external ledger by the engine's background loops.
//
// All keys are namespaced by instance name so multiple engine instances can
// safely coexist on a single Redis server.
package store

import (
	"fmt"
	"strings"
)

// CredentialStatus is the lifecycle state of a principal's identity
// credential. Transitions are driven exclusively by the mint orchestrator and
// the confirmation checker; no other component writes this field.
type CredentialStatus string

const (
	// StatusAbsent means no record of a credential attempt exists. Projections
	// of unknown principals report this state.
	StatusAbsent CredentialStatus = "absent"

	// StatusPending means the credential has never been attempted. New
	// principal records start here.
	StatusPending CredentialStatus = "pending"

	// StatusMinting means a mint transaction has been submitted and awaits
	// confirmation.
	StatusMinting CredentialStatus = "minting"

	// StatusActive means the ledger has confirmed the credential.
	StatusActive CredentialStatus = "active"

	// StatusFailed means the last mint submission failed; the retry sweep
	// will attempt it again.
	StatusFailed CredentialStatus = "failed"
)

// Validate checks if the CredentialStatus is a valid enum value.
func (s CredentialStatus) Validate() error {
	switch s {
	case StatusAbsent, StatusPending, StatusMinting, StatusActive, StatusFailed:
		return nil
	default:
		return fmt.Errorf("unknown credential status: %q", s)
	}
}

// AllStatuses lists every valid credential status. Used to keep the status
// index sets consistent on save.
func AllStatuses() []CredentialStatus {
	return []CredentialStatus{StatusAbsent, StatusPending, StatusMinting, StatusActive, StatusFailed}
}

// Principal is the durable record for one wallet address. LocalScore is the
// authoritative local reputation value; LedgerScore is the last value pushed
// to or observed on the ledger and may lag behind it.
type Principal struct {
	Address    string `json:"address"`
	LocalScore int    `json:"local_score"`

	// LedgerScore is nil until the first successful sync or ledger read.
	LedgerScore *int `json:"ledger_score,omitempty"`

	CredentialStatus CredentialStatus `json:"credential_status"`

	// CredentialRef is the outstanding mint transaction reference. Set iff
	// the status is minting.
	CredentialRef string `json:"credential_ref,omitempty"`

	// CredentialID is the ledger-assigned token identifier. Set only once the
	// status is active.
	CredentialID *int64 `json:"credential_id,omitempty"`

	// CredentialError holds the last mint failure reason, for the reporting
	// surface.
	CredentialError string `json:"credential_error,omitempty"`

	// MintSubmittedAtMs is the Unix-millisecond timestamp of the outstanding
	// mint submission, used by the confirmation checker's slow-mint warning.
	MintSubmittedAtMs int64 `json:"mint_submitted_at_ms,omitempty"`

	FirstSeenMs int64 `json:"first_seen_ms"`

	// Last sync outcome, for the reporting surface. LastSyncRef is the
	// transaction reference of the last successful push; empty when the last
	// outcome was a failure or a read-side reconciliation.
	LastSyncOK    bool   `json:"last_sync_ok"`
	LastSyncError string `json:"last_sync_error,omitempty"`
	LastSyncRef   string `json:"last_sync_ref,omitempty"`
	LastSyncMs    int64  `json:"last_sync_ms,omitempty"`
}

// Validate checks field values and the credential lifecycle invariants:
// a token identifier implies active status, and an outstanding transaction
// reference implies minting status. Every save path enforces this.
func (p *Principal) Validate() error {
	if p.Address == "" {
		return fmt.Errorf("principal address cannot be empty")
	}
	if p.Address != strings.ToLower(p.Address) {
		return fmt.Errorf("principal address must be case-normalized: %q", p.Address)
	}

	if p.LocalScore < 0 || p.LocalScore > 100 {
		return fmt.Errorf("local score out of range [0,100]: %d", p.LocalScore)
	}
	if p.LedgerScore != nil && (*p.LedgerScore < 0 || *p.LedgerScore > 100) {
		return fmt.Errorf("ledger score out of range [0,100]: %d", *p.LedgerScore)
	}

	if err := p.CredentialStatus.Validate(); err != nil {
		return err
	}

	if p.CredentialID != nil && p.CredentialStatus != StatusActive {
		return fmt.Errorf("credential id set but status is %q, not %q", p.CredentialStatus, StatusActive)
	}
	if p.CredentialRef != "" && p.CredentialStatus != StatusMinting {
		return fmt.Errorf("credential ref set but status is %q, not %q", p.CredentialStatus, StatusMinting)
	}

	return nil
}
