package identity

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veralabs/resonance/pkg/ledger"
	"github.com/veralabs/resonance/pkg/store"
)

const testAddr = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"

// fakeLedger scripts the credential-side ledger operations.
type fakeLedger struct {
	mu        sync.Mutex
	owns      bool
	ownsErr   error
	tokenID   int64
	tokenErr  error
	mintErr   error
	mintCalls int
}

func (f *fakeLedger) HasCredential(ctx context.Context, address string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.owns, f.ownsErr
}

func (f *fakeLedger) CredentialTokenID(ctx context.Context, address string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tokenID, f.tokenErr
}

func (f *fakeLedger) MintCredential(ctx context.Context, to string) (ledger.TxRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mintCalls++
	if f.mintErr != nil {
		return "", f.mintErr
	}
	return "0xminttx", nil
}

func (f *fakeLedger) mints() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.mintCalls
}

// fakeStore mirrors the Redis store's Update contract: per-address mutual
// exclusion and validation on save.
type fakeStore struct {
	mu         sync.Mutex
	principals map[string]*store.Principal
}

func newFakeStore(records ...*store.Principal) *fakeStore {
	s := &fakeStore{principals: make(map[string]*store.Principal)}
	for _, p := range records {
		copied := *p
		s.principals[p.Address] = &copied
	}
	return s
}

func (s *fakeStore) Update(ctx context.Context, address string, fn func(p *store.Principal) error) (*store.Principal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.principals[address]
	if !ok {
		return nil, errors.New("principal not found")
	}
	if err := fn(p); err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	copied := *p
	return &copied, nil
}

func (s *fakeStore) ListByStatus(ctx context.Context, status store.CredentialStatus) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var addrs []string
	for addr, p := range s.principals {
		if p.CredentialStatus == status {
			addrs = append(addrs, addr)
		}
	}
	return addrs, nil
}

func (s *fakeStore) get(address string) *store.Principal {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *s.principals[address]
	return &copied
}

func pendingPrincipal() *store.Principal {
	return &store.Principal{
		Address:          testAddr,
		LocalScore:       50,
		CredentialStatus: store.StatusPending,
	}
}

func TestEnsureCredential(t *testing.T) {
	ctx := context.Background()

	t.Run("pending principal gets a mint submitted", func(t *testing.T) {
		l := &fakeLedger{}
		s := newFakeStore(pendingPrincipal())
		orch := NewOrchestrator(s, l)

		require.NoError(t, orch.EnsureCredential(ctx, testAddr))

		p := s.get(testAddr)
		assert.Equal(t, store.StatusMinting, p.CredentialStatus)
		assert.Equal(t, "0xminttx", p.CredentialRef)
		assert.NotZero(t, p.MintSubmittedAtMs)
		assert.Equal(t, 1, l.mints())
	})

	t.Run("ledger ownership wins over local status", func(t *testing.T) {
		l := &fakeLedger{owns: true, tokenID: 42}
		p := pendingPrincipal()
		p.CredentialStatus = store.StatusFailed
		p.CredentialError = "old failure"
		s := newFakeStore(p)
		orch := NewOrchestrator(s, l)

		require.NoError(t, orch.EnsureCredential(ctx, testAddr))

		got := s.get(testAddr)
		assert.Equal(t, store.StatusActive, got.CredentialStatus)
		require.NotNil(t, got.CredentialID)
		assert.Equal(t, int64(42), *got.CredentialID)
		assert.Empty(t, got.CredentialError)
		assert.Equal(t, 0, l.mints(), "owned credential must never be re-minted")
	})

	t.Run("ownership with failed token lookup still activates", func(t *testing.T) {
		l := &fakeLedger{owns: true, tokenErr: errors.New("rpc down")}
		s := newFakeStore(pendingPrincipal())
		orch := NewOrchestrator(s, l)

		require.NoError(t, orch.EnsureCredential(ctx, testAddr))

		got := s.get(testAddr)
		assert.Equal(t, store.StatusActive, got.CredentialStatus)
		assert.Nil(t, got.CredentialID)
	})

	t.Run("failed principal is retried", func(t *testing.T) {
		l := &fakeLedger{}
		p := pendingPrincipal()
		p.CredentialStatus = store.StatusFailed
		p.CredentialError = "gas too low"
		s := newFakeStore(p)
		orch := NewOrchestrator(s, l)

		require.NoError(t, orch.EnsureCredential(ctx, testAddr))

		got := s.get(testAddr)
		assert.Equal(t, store.StatusMinting, got.CredentialStatus)
		assert.Empty(t, got.CredentialError)
	})

	t.Run("minting without a reference is resubmitted", func(t *testing.T) {
		l := &fakeLedger{}
		p := pendingPrincipal()
		p.CredentialStatus = store.StatusMinting
		s := newFakeStore(p)
		orch := NewOrchestrator(s, l)

		require.NoError(t, orch.EnsureCredential(ctx, testAddr))
		assert.Equal(t, 1, l.mints())
	})

	t.Run("minting with a live reference is left alone", func(t *testing.T) {
		l := &fakeLedger{}
		p := pendingPrincipal()
		p.CredentialStatus = store.StatusMinting
		p.CredentialRef = "0xoutstanding"
		s := newFakeStore(p)
		orch := NewOrchestrator(s, l)

		require.NoError(t, orch.EnsureCredential(ctx, testAddr))

		got := s.get(testAddr)
		assert.Equal(t, 0, l.mints())
		assert.Equal(t, "0xoutstanding", got.CredentialRef)
	})

	t.Run("mint failure marks the record failed, not fatal", func(t *testing.T) {
		l := &fakeLedger{mintErr: ledger.Transient("mint", errors.New("rpc down"))}
		s := newFakeStore(pendingPrincipal())
		orch := NewOrchestrator(s, l)

		require.NoError(t, orch.EnsureCredential(ctx, testAddr))

		got := s.get(testAddr)
		assert.Equal(t, store.StatusFailed, got.CredentialStatus)
		assert.Contains(t, got.CredentialError, "rpc down")
		assert.Empty(t, got.CredentialRef)
	})

	t.Run("unreadable ownership check falls through to local table", func(t *testing.T) {
		l := &fakeLedger{ownsErr: errors.New("rpc down")}
		s := newFakeStore(pendingPrincipal())
		orch := NewOrchestrator(s, l)

		require.NoError(t, orch.EnsureCredential(ctx, testAddr))

		// Local status was pending, so a mint is attempted anyway.
		assert.Equal(t, 1, l.mints())
	})

	t.Run("concurrent triggers never produce two mint references", func(t *testing.T) {
		l := &fakeLedger{}
		s := newFakeStore(pendingPrincipal())
		orch := NewOrchestrator(s, l)

		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				assert.NoError(t, orch.EnsureCredential(ctx, testAddr))
			}()
		}
		wg.Wait()

		// The first trigger flips the status to minting with a reference;
		// every later one sees that and leaves it to the checker.
		assert.Equal(t, 1, l.mints())
		assert.Equal(t, store.StatusMinting, s.get(testAddr).CredentialStatus)
	})
}
