package ledger

import (
	"context"
	"math/big"
)

// Transport is the wire-protocol boundary. Implementations talk whatever RPC
// protocol the external ledger defines; this package only requires the
// semantic operations below.
//
// Submit errors should be classified with Transient / Rejected / Unconfigured
// so the reconciliation loops can pick the right recovery. Unclassified errors
// are treated as transient.
type Transport interface {
	// TipHeight returns the current ledger tip height.
	TipHeight(ctx context.Context) (uint64, error)

	// FeeRate returns the ledger's current fee-rate estimate.
	FeeRate(ctx context.Context) (uint64, error)

	// Balance returns the native balance of address.
	Balance(ctx context.Context, address string) (*big.Int, error)

	// PendingSequence returns the next unused sequence number for address,
	// including transactions still in the ledger's pending set.
	PendingSequence(ctx context.Context, address string) (uint64, error)

	// CredentialBalance returns the number of identity credentials owned by
	// owner.
	CredentialBalance(ctx context.Context, owner string) (int, error)

	// CredentialByIndex returns the token identifier at index in owner's
	// enumerable credential set. Some ledger implementations omit enumerable
	// ownership support; callers must be prepared for this to fail.
	CredentialByIndex(ctx context.Context, owner string, index int) (int64, error)

	// TransferLogs returns credential transfer events to the given address
	// within [fromHeight, toHeight].
	TransferLogs(ctx context.Context, to string, fromHeight, toHeight uint64) ([]TransferLog, error)

	// Score returns the reputation score recorded on the ledger for address.
	Score(ctx context.Context, address string) (int, error)

	// InteractionLogs returns interaction events from fromHeight to the tip,
	// filtered by the principal's role. The underlying event index is
	// one-directional per role.
	InteractionLogs(ctx context.Context, role EventRole, address string, fromHeight uint64) ([]InteractionLog, error)

	// SubmitMint submits a credential mint transaction and returns its
	// transaction reference.
	SubmitMint(ctx context.Context, req MintRequest) (TxRef, error)

	// SubmitScoreAdjust submits a score adjustment transaction.
	SubmitScoreAdjust(ctx context.Context, req ScoreAdjustRequest) (TxRef, error)

	// SubmitInteraction submits an interaction record transaction.
	SubmitInteraction(ctx context.Context, req InteractionRequest) (TxRef, error)
}
