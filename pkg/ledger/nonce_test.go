package ledger

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNonceSequencer(t *testing.T) {
	ctx := context.Background()

	t.Run("seeds lazily from the ledger", func(t *testing.T) {
		calls := 0
		s := NewNonceSequencer(func(ctx context.Context) (uint64, error) {
			calls++
			return 17, nil
		})
		assert.Equal(t, 0, calls)

		lease, err := s.Acquire(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint64(17), lease.Sequence())
		assert.Equal(t, 1, calls)
		lease.Commit()

		// Committed leases advance locally without re-seeding.
		lease, err = s.Acquire(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint64(18), lease.Sequence())
		assert.Equal(t, 1, calls)
		lease.Commit()
	})

	t.Run("abort re-seeds on the next acquire", func(t *testing.T) {
		pending := uint64(5)
		s := NewNonceSequencer(func(ctx context.Context) (uint64, error) {
			return pending, nil
		})

		lease, err := s.Acquire(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint64(5), lease.Sequence())
		lease.Abort()

		// The aborted submission landed after all; the ledger moved on.
		pending = 6
		lease, err = s.Acquire(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint64(6), lease.Sequence())
		lease.Commit()
	})

	t.Run("seed failure releases the gate", func(t *testing.T) {
		fail := true
		s := NewNonceSequencer(func(ctx context.Context) (uint64, error) {
			if fail {
				return 0, errors.New("rpc down")
			}
			return 3, nil
		})

		_, err := s.Acquire(ctx)
		require.Error(t, err)
		assert.True(t, IsTransient(err))

		fail = false
		lease, err := s.Acquire(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint64(3), lease.Sequence())
		lease.Commit()
	})

	t.Run("acquire respects context cancellation while held", func(t *testing.T) {
		s := NewNonceSequencer(func(ctx context.Context) (uint64, error) {
			return 0, nil
		})

		lease, err := s.Acquire(ctx)
		require.NoError(t, err)

		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		_, err = s.Acquire(cancelled)
		require.Error(t, err)
		assert.True(t, IsTransient(err))

		lease.Commit()
	})

	t.Run("concurrent commits yield strictly increasing sequences", func(t *testing.T) {
		s := NewNonceSequencer(func(ctx context.Context) (uint64, error) {
			return 100, nil
		})

		const n = 50
		var mu sync.Mutex
		var seen []uint64

		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				lease, err := s.Acquire(ctx)
				require.NoError(t, err)
				mu.Lock()
				seen = append(seen, lease.Sequence())
				mu.Unlock()
				lease.Commit()
			}()
		}
		wg.Wait()

		require.Len(t, seen, n)
		sort.Slice(seen, func(i, j int) bool { return seen[i] < seen[j] })
		for i, seq := range seen {
			assert.Equal(t, uint64(100+i), seq)
		}
	})

	t.Run("commit and abort are idempotent", func(t *testing.T) {
		s := NewNonceSequencer(func(ctx context.Context) (uint64, error) {
			return 0, nil
		})

		lease, err := s.Acquire(ctx)
		require.NoError(t, err)
		lease.Commit()
		lease.Commit()
		lease.Abort()

		// The gate must still be single-slot: one more acquire succeeds.
		lease, err = s.Acquire(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint64(1), lease.Sequence())
		lease.Commit()
	})
}
