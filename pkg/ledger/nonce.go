package ledger

import (
	"context"
	"fmt"
)

// NonceSequencer serializes all write submissions for the single signing
// principal. It is a single-slot gate: only one build-sign-submit sequence may
// hold a lease at a time, across every write path in the process. Concurrent
// submission of two transactions from the same signer with equal or
// out-of-order sequence numbers gets one of them rejected, or stalls the
// ledger's acceptance of every later transaction from that signer, so this is
// the most safety-critical invariant in the engine.
type NonceSequencer struct {
	slot chan struct{} // capacity 1; holding the token means holding the gate

	// Guarded by the slot token, never touched without holding it.
	next   uint64
	seeded bool

	pending func(ctx context.Context) (uint64, error)
}

// NewNonceSequencer creates a sequencer that seeds itself lazily from pending,
// which should return the signer's current pending sequence number on the
// ledger.
func NewNonceSequencer(pending func(ctx context.Context) (uint64, error)) *NonceSequencer {
	s := &NonceSequencer{
		slot:    make(chan struct{}, 1),
		pending: pending,
	}
	s.slot <- struct{}{}
	return s
}

// Acquire blocks until the gate is free, then returns a lease holding the next
// uncontested sequence number. The caller must finish with exactly one of
// Commit (the transaction reached the ledger's pending set) or Abort (it did
// not, or its fate is unknown).
func (s *NonceSequencer) Acquire(ctx context.Context) (*NonceLease, error) {
	select {
	case <-ctx.Done():
		return nil, Transient("sequence", ctx.Err())
	case <-s.slot:
	}

	if !s.seeded {
		seq, err := s.pending(ctx)
		if err != nil {
			s.slot <- struct{}{}
			return nil, Transient("sequence", fmt.Errorf("failed to seed sequence number: %w", err))
		}
		s.next = seq
		s.seeded = true
	}

	return &NonceLease{seq: s.next, owner: s}, nil
}

// NonceLease is an exclusively held sequence number. While a lease is live no
// other write may begin construction.
type NonceLease struct {
	seq   uint64
	owner *NonceSequencer
	done  bool
}

// Sequence returns the leased sequence number.
func (l *NonceLease) Sequence() uint64 { return l.seq }

// Commit records that the leased number was consumed by a submitted
// transaction and releases the gate.
func (l *NonceLease) Commit() {
	if l.done {
		return
	}
	l.done = true
	l.owner.next = l.seq + 1
	l.owner.slot <- struct{}{}
}

// Abort releases the gate without consuming the number. The sequencer drops
// its cached position and re-seeds from the ledger on the next Acquire: a
// timed-out submission may still land, and re-seeding is what keeps a
// landed-but-unreported transaction from stalling later writes.
func (l *NonceLease) Abort() {
	if l.done {
		return
	}
	l.done = true
	l.owner.seeded = false
	l.owner.slot <- struct{}{}
}
