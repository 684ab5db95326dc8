// Package ledger provides the client-side view of the external reputation
// ledger: read queries (credential ownership, scores, interaction history),
// write submissions (credential mint, score adjust, interaction record) and a
// health probe. The wire protocol itself lives behind the Transport interface;
// this package owns the semantics layered on top of it: nonce sequencing,
// failure classification, event merging and the bounded fallback scans.
package ledger

import (
	"errors"
	"fmt"
	"math/big"
)

// TxRef is an opaque transaction reference returned when a write is submitted.
// A non-empty TxRef means the write was accepted into the ledger's pending
// set, not that it has been confirmed.
type TxRef string

// EventRole selects which side of an interaction event an event-log query
// filters on. The ledger's event index is one-directional per role, so a full
// history for one principal requires one query per role.
type EventRole string

const (
	// RoleInitiator filters events where the principal initiated the interaction.
	RoleInitiator EventRole = "initiator"

	// RoleResponder filters events where the principal was the responder.
	RoleResponder EventRole = "responder"
)

// Interaction is one merged, deduplicated interaction history entry.
type Interaction struct {
	Initiator string `json:"initiator"`
	Responder string `json:"responder"`
	Type      int    `json:"type"`
	Timestamp int64  `json:"timestamp"`
	ContentID string `json:"content_id"`
	TxRef     TxRef  `json:"tx_ref"`
	Height    uint64 `json:"height"`
}

// HealthSnapshot is the structured result of the health probe. The probe never
// fails past the client boundary; on error Connected is false and Err carries
// the reason.
type HealthSnapshot struct {
	Connected     bool     `json:"connected"`
	TipHeight     uint64   `json:"tip_height,omitempty"`
	FeeRate       uint64   `json:"fee_rate,omitempty"`
	ReadOnly      bool     `json:"read_only"`
	SignerAddress string   `json:"signer_address,omitempty"`
	SignerBalance *big.Int `json:"signer_balance,omitempty"`
	Err           string   `json:"error,omitempty"`
}

// TransferLog is a raw credential transfer event row from the transport.
type TransferLog struct {
	TokenID int64
	To      string
	Height  uint64
	TxRef   TxRef
}

// InteractionLog is a raw interaction event row from the transport.
type InteractionLog struct {
	Initiator string
	Responder string
	Type      int
	Timestamp int64
	ContentID string
	TxRef     TxRef
	Height    uint64
}

// MintRequest is a fully sequenced credential mint submission.
type MintRequest struct {
	Sequence uint64
	To       string
	GasLimit uint64
	FeeCap   uint64
	TipCap   uint64
}

// ScoreAdjustRequest is a fully sequenced score adjustment submission. Score
// is the absolute target value, not a delta.
type ScoreAdjustRequest struct {
	Sequence  uint64
	Principal string
	Score     int
	GasLimit  uint64
	FeeCap    uint64
	TipCap    uint64
}

// InteractionRequest is a fully sequenced interaction record submission.
type InteractionRequest struct {
	Sequence        uint64
	Initiator       string
	Responder       string
	Type            int
	ContentID       [32]byte
	InitiatorWeight uint64
	ResponderWeight uint64
	GasLimit        uint64
	FeeCap          uint64
	TipCap          uint64
}

// FailureKind classifies a ledger operation failure. The reconciliation loops
// key their retry behaviour off this classification.
type FailureKind string

const (
	// FailureTransient covers timeouts, temporary RPC unavailability and
	// sequencing congestion. Safe to retry with backoff.
	FailureTransient FailureKind = "transient"

	// FailureRejected covers authoritative contract-level rejection (e.g. a
	// credential that already exists). Never retried; resolved by re-reading
	// ledger state.
	FailureRejected FailureKind = "rejected"

	// FailureUnconfigured covers missing signing key or contract address. The
	// affected write path degrades to a no-op rather than crashing.
	FailureUnconfigured FailureKind = "unconfigured"
)

// Failure is a classified ledger operation error.
type Failure struct {
	Kind FailureKind
	Op   string
	Err  error
}

func (f *Failure) Error() string {
	if f.Err == nil {
		return fmt.Sprintf("ledger %s: %s failure", f.Op, f.Kind)
	}
	return fmt.Sprintf("ledger %s: %s failure: %v", f.Op, f.Kind, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

// Transient wraps err as a retryable failure of op.
func Transient(op string, err error) error {
	return &Failure{Kind: FailureTransient, Op: op, Err: err}
}

// Rejected wraps err as an authoritative contract-level rejection of op.
func Rejected(op string, err error) error {
	return &Failure{Kind: FailureRejected, Op: op, Err: err}
}

// Unconfigured reports that op cannot run because reason is missing from the
// configuration.
func Unconfigured(op, reason string) error {
	return &Failure{Kind: FailureUnconfigured, Op: op, Err: errors.New(reason)}
}

func failureKind(err error) (FailureKind, bool) {
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind, true
	}
	return "", false
}

// IsTransient reports whether err is a retryable ledger failure. Unclassified
// errors are treated as transient: an unknown outcome must never be read as a
// confirmed success or rejection.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	kind, ok := failureKind(err)
	return !ok || kind == FailureTransient
}

// IsRejected reports whether err is an authoritative contract-level rejection.
func IsRejected(err error) bool {
	kind, ok := failureKind(err)
	return ok && kind == FailureRejected
}

// IsUnconfigured reports whether err means the write path is not configured.
func IsUnconfigured(err error) bool {
	kind, ok := failureKind(err)
	return ok && kind == FailureUnconfigured
}
