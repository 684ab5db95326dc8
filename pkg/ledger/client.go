package ledger

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"
)

// Gas limits per write operation. The interaction limit is generous because
// the registry contract updates both principals' event indexes in one call.
const (
	mintGasLimit        = 200_000
	scoreAdjustGasLimit = 100_000
	interactionGasLimit = 500_000
)

// Interaction weights are fixed at the minimum the registry contract accepts.
// Score effects are governed by the sync mechanism, not by per-interaction
// weight.
const minimumInteractionWeight = 1

// ErrNoCredential is returned by CredentialTokenID when the principal owns no
// identity credential.
var ErrNoCredential = errors.New("principal owns no identity credential")

// Config carries the client's view of the ledger deployment. An empty
// SignerAddress puts the client in read-only mode; an empty contract address
// degrades the operations that need it to unconfigured failures.
type Config struct {
	SignerAddress      string
	CredentialContract string
	ScoreContract      string
	RegistryContract   string

	// TokenScanWindow bounds the transfer-log fallback scan used when the
	// direct ownership-index query fails. Zero applies the default.
	TokenScanWindow uint64

	// InteractionScanWindow bounds interaction history queries. Zero applies
	// the default.
	InteractionScanWindow uint64

	// CallTimeout bounds every individual transport call. Zero applies the
	// default.
	CallTimeout time.Duration
}

const (
	defaultTokenScanWindow       = 10_000
	defaultInteractionScanWindow = 50_000
	defaultCallTimeout           = 15 * time.Second
)

// Client is the stateless semantic layer over a Transport. Reads are safe to
// retry freely; writes are serialized through the client's NonceSequencer.
// The client is safe for concurrent use.
type Client struct {
	transport Transport
	nonces    *NonceSequencer
	cfg       Config
}

// NewClient creates a ledger client over the given transport. The client owns
// the process-wide nonce sequencer for cfg.SignerAddress.
func NewClient(transport Transport, cfg Config) *Client {
	if cfg.TokenScanWindow == 0 {
		cfg.TokenScanWindow = defaultTokenScanWindow
	}
	if cfg.InteractionScanWindow == 0 {
		cfg.InteractionScanWindow = defaultInteractionScanWindow
	}
	if cfg.CallTimeout == 0 {
		cfg.CallTimeout = defaultCallTimeout
	}

	c := &Client{
		transport: transport,
		cfg:       cfg,
	}
	c.nonces = NewNonceSequencer(func(ctx context.Context) (uint64, error) {
		return transport.PendingSequence(ctx, cfg.SignerAddress)
	})
	return c
}

// ReadOnly reports whether the client has no signing principal configured.
// All write operations fail with an unconfigured failure in read-only mode.
func (c *Client) ReadOnly() bool {
	return c.cfg.SignerAddress == ""
}

func (c *Client) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.cfg.CallTimeout)
}

// HasCredential reports whether the principal owns an identity credential.
func (c *Client) HasCredential(ctx context.Context, address string) (bool, error) {
	if c.cfg.CredentialContract == "" {
		return false, Unconfigured("credential lookup", "credential contract address not configured")
	}

	cctx, cancel := c.callCtx(ctx)
	defer cancel()

	balance, err := c.transport.CredentialBalance(cctx, address)
	if err != nil {
		return false, Transient("credential lookup", err)
	}
	return balance > 0, nil
}

// CredentialTokenID returns the principal's credential token identifier.
// When the direct ownership-index query fails or the ledger omits enumerable
// ownership support, it falls back to scanning a bounded recent window of
// transfer events to the principal, returning the most recent match. Returns
// ErrNoCredential when the principal owns none.
func (c *Client) CredentialTokenID(ctx context.Context, address string) (int64, error) {
	if c.cfg.CredentialContract == "" {
		return 0, Unconfigured("token lookup", "credential contract address not configured")
	}

	cctx, cancel := c.callCtx(ctx)
	defer cancel()

	balance, err := c.transport.CredentialBalance(cctx, address)
	if err != nil {
		return 0, Transient("token lookup", err)
	}
	if balance == 0 {
		return 0, ErrNoCredential
	}

	tokenID, err := c.transport.CredentialByIndex(cctx, address, 0)
	if err == nil {
		return tokenID, nil
	}

	log.Printf("[Ledger] Ownership-index query failed for %s, falling back to transfer scan: %v", address, err)
	return c.tokenIDFromTransfers(ctx, address)
}

// tokenIDFromTransfers scans the recent transfer-event window for a transfer
// to the principal. The window is bounded to keep query cost predictable.
func (c *Client) tokenIDFromTransfers(ctx context.Context, address string) (int64, error) {
	cctx, cancel := c.callCtx(ctx)
	defer cancel()

	tip, err := c.transport.TipHeight(cctx)
	if err != nil {
		return 0, Transient("token lookup", err)
	}

	from := uint64(0)
	if tip > c.cfg.TokenScanWindow {
		from = tip - c.cfg.TokenScanWindow
	}

	logs, err := c.transport.TransferLogs(cctx, address, from, tip)
	if err != nil {
		return 0, Transient("token lookup", err)
	}
	if len(logs) == 0 {
		return 0, ErrNoCredential
	}

	// Most recent transfer wins.
	best := logs[0]
	for _, l := range logs[1:] {
		if l.Height >= best.Height {
			best = l
		}
	}
	return best.TokenID, nil
}

// Score returns the reputation score the ledger currently records for the
// principal.
func (c *Client) Score(ctx context.Context, address string) (int, error) {
	if c.cfg.ScoreContract == "" {
		return 0, Unconfigured("score lookup", "score contract address not configured")
	}

	cctx, cancel := c.callCtx(ctx)
	defer cancel()

	score, err := c.transport.Score(cctx, address)
	if err != nil {
		return 0, Transient("score lookup", err)
	}
	return score, nil
}

// Interactions returns the principal's interaction history, newest first.
//
// The event index is one-directional per role, so the history is assembled
// from two queries (principal as initiator, principal as responder), merged
// and deduplicated by transaction reference. Pagination is applied in memory
// over the merged set; the two filtered queries are independent page sources,
// so offsets cannot be pushed down to the ledger.
func (c *Client) Interactions(ctx context.Context, address string, offset, limit int) ([]Interaction, error) {
	if c.cfg.RegistryContract == "" {
		return nil, Unconfigured("interaction lookup", "registry contract address not configured")
	}
	if limit <= 0 {
		limit = 10
	}
	if offset < 0 {
		offset = 0
	}

	cctx, cancel := c.callCtx(ctx)
	defer cancel()

	tip, err := c.transport.TipHeight(cctx)
	if err != nil {
		return nil, Transient("interaction lookup", err)
	}
	from := uint64(0)
	if tip > c.cfg.InteractionScanWindow {
		from = tip - c.cfg.InteractionScanWindow
	}

	// One side failing must not hide the other: each role query degrades to
	// an empty result set on error.
	asInitiator, err := c.transport.InteractionLogs(cctx, RoleInitiator, address, from)
	if err != nil {
		log.Printf("[Ledger] Initiator-side interaction query failed for %s: %v", address, err)
		asInitiator = nil
	}
	asResponder, err := c.transport.InteractionLogs(cctx, RoleResponder, address, from)
	if err != nil {
		log.Printf("[Ledger] Responder-side interaction query failed for %s: %v", address, err)
		asResponder = nil
	}

	merged := mergeInteractionLogs(asInitiator, asResponder)

	if offset >= len(merged) {
		return []Interaction{}, nil
	}
	end := offset + limit
	if end > len(merged) {
		end = len(merged)
	}
	return merged[offset:end], nil
}

// mergeInteractionLogs combines both role-filtered result sets, deduplicates
// by transaction reference and sorts newest first.
func mergeInteractionLogs(sets ...[]InteractionLog) []Interaction {
	seen := make(map[TxRef]struct{})
	var merged []Interaction

	for _, set := range sets {
		for _, l := range set {
			if _, dup := seen[l.TxRef]; dup {
				continue
			}
			seen[l.TxRef] = struct{}{}
			merged = append(merged, Interaction{
				Initiator: l.Initiator,
				Responder: l.Responder,
				Type:      l.Type,
				Timestamp: l.Timestamp,
				ContentID: l.ContentID,
				TxRef:     l.TxRef,
				Height:    l.Height,
			})
		}
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Height > merged[j].Height
	})
	return merged
}

// MintCredential submits an identity credential mint for the principal and
// returns the transaction reference. The returned reference means submitted,
// not confirmed.
func (c *Client) MintCredential(ctx context.Context, to string) (TxRef, error) {
	const op = "mint"
	if err := c.writable(op, c.cfg.CredentialContract, "credential contract address"); err != nil {
		return "", err
	}

	return c.submit(ctx, op, func(cctx context.Context, seq, feeRate uint64) (TxRef, error) {
		return c.transport.SubmitMint(cctx, MintRequest{
			Sequence: seq,
			To:       to,
			GasLimit: mintGasLimit,
			FeeCap:   feeRate * 2,
			TipCap:   feeRate,
		})
	})
}

// AdjustScore submits an absolute score adjustment for the principal.
func (c *Client) AdjustScore(ctx context.Context, principal string, score int) (TxRef, error) {
	const op = "score adjust"
	if err := c.writable(op, c.cfg.ScoreContract, "score contract address"); err != nil {
		return "", err
	}

	return c.submit(ctx, op, func(cctx context.Context, seq, feeRate uint64) (TxRef, error) {
		return c.transport.SubmitScoreAdjust(cctx, ScoreAdjustRequest{
			Sequence:  seq,
			Principal: principal,
			Score:     score,
			GasLimit:  scoreAdjustGasLimit,
			FeeCap:    feeRate * 2,
			TipCap:    feeRate,
		})
	})
}

// RecordInteraction submits an interaction record between two principals. The
// content identifier is derived from metadata (or from the participants and
// type when metadata is empty) and need not be unique across repeated
// identical interactions.
func (c *Client) RecordInteraction(ctx context.Context, initiator, responder string, interactionType int, metadata string) (TxRef, error) {
	const op = "interaction record"
	if err := c.writable(op, c.cfg.RegistryContract, "registry contract address"); err != nil {
		return "", err
	}

	return c.submit(ctx, op, func(cctx context.Context, seq, feeRate uint64) (TxRef, error) {
		return c.transport.SubmitInteraction(cctx, InteractionRequest{
			Sequence:        seq,
			Initiator:       initiator,
			Responder:       responder,
			Type:            interactionType,
			ContentID:       ContentID(initiator, responder, interactionType, metadata),
			InitiatorWeight: minimumInteractionWeight,
			ResponderWeight: minimumInteractionWeight,
			GasLimit:        interactionGasLimit,
			FeeCap:          feeRate * 2,
			TipCap:          feeRate,
		})
	})
}

func (c *Client) writable(op, contract, what string) error {
	if c.ReadOnly() {
		return Unconfigured(op, "no signing principal configured (read-only mode)")
	}
	if contract == "" {
		return Unconfigured(op, what+" not configured")
	}
	return nil
}

// submit runs one build-sign-submit sequence under an exclusive nonce lease.
// The lease is committed only when the transport accepted the transaction; any
// other outcome aborts the lease so the sequencer re-seeds from the ledger.
func (c *Client) submit(ctx context.Context, op string, send func(ctx context.Context, seq, feeRate uint64) (TxRef, error)) (TxRef, error) {
	lease, err := c.nonces.Acquire(ctx)
	if err != nil {
		return "", err
	}

	cctx, cancel := c.callCtx(ctx)
	defer cancel()

	feeRate, err := c.transport.FeeRate(cctx)
	if err != nil {
		lease.Abort()
		return "", Transient(op, fmt.Errorf("failed to probe fee rate: %w", err))
	}

	ref, err := send(cctx, lease.Sequence(), feeRate)
	if err != nil {
		lease.Abort()
		if IsRejected(err) || IsUnconfigured(err) {
			return "", err
		}
		return "", Transient(op, err)
	}

	lease.Commit()
	return ref, nil
}

// Health probes the ledger and reports a structured status. It never returns
// an error: a failed probe is reported as a disconnected snapshot.
func (c *Client) Health(ctx context.Context) HealthSnapshot {
	cctx, cancel := c.callCtx(ctx)
	defer cancel()

	snapshot := HealthSnapshot{ReadOnly: c.ReadOnly()}

	tip, err := c.transport.TipHeight(cctx)
	if err != nil {
		snapshot.Err = err.Error()
		return snapshot
	}
	snapshot.Connected = true
	snapshot.TipHeight = tip

	feeRate, err := c.transport.FeeRate(cctx)
	if err != nil {
		snapshot.Err = err.Error()
	} else {
		snapshot.FeeRate = feeRate
	}

	if !c.ReadOnly() {
		snapshot.SignerAddress = c.cfg.SignerAddress
		balance, err := c.transport.Balance(cctx, c.cfg.SignerAddress)
		if err != nil {
			snapshot.Err = err.Error()
		} else {
			snapshot.SignerBalance = balance
		}
	}

	return snapshot
}
