package engine

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veralabs/resonance/internal/config"
	"github.com/veralabs/resonance/pkg/ledger"
	"github.com/veralabs/resonance/pkg/store"
)

const testAddr = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"

// fakeTransport is a minimal in-memory ledger. Minted credentials and pushed
// scores become visible to subsequent reads, which is what the confirmation
// checker and the sync worker reconcile against.
type fakeTransport struct {
	mu      sync.Mutex
	nonce   uint64
	owned   map[string]bool
	scores  map[string]int
	mintErr error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		owned:  make(map[string]bool),
		scores: make(map[string]int),
	}
}

func (f *fakeTransport) TipHeight(ctx context.Context) (uint64, error) { return 1000, nil }
func (f *fakeTransport) FeeRate(ctx context.Context) (uint64, error)   { return 100, nil }

func (f *fakeTransport) Balance(ctx context.Context, address string) (*big.Int, error) {
	return big.NewInt(1_000_000), nil
}

func (f *fakeTransport) PendingSequence(ctx context.Context, address string) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.nonce, nil
}

func (f *fakeTransport) CredentialBalance(ctx context.Context, owner string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.owned[owner] {
		return 1, nil
	}
	return 0, nil
}

func (f *fakeTransport) CredentialByIndex(ctx context.Context, owner string, index int) (int64, error) {
	return 42, nil
}

func (f *fakeTransport) TransferLogs(ctx context.Context, to string, fromHeight, toHeight uint64) ([]ledger.TransferLog, error) {
	return nil, nil
}

func (f *fakeTransport) Score(ctx context.Context, address string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.scores[address], nil
}

func (f *fakeTransport) InteractionLogs(ctx context.Context, role ledger.EventRole, address string, fromHeight uint64) ([]ledger.InteractionLog, error) {
	return nil, nil
}

func (f *fakeTransport) SubmitMint(ctx context.Context, req ledger.MintRequest) (ledger.TxRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.mintErr != nil {
		return "", f.mintErr
	}
	f.nonce = req.Sequence + 1
	f.owned[req.To] = true
	return "0xminttx", nil
}

func (f *fakeTransport) SubmitScoreAdjust(ctx context.Context, req ledger.ScoreAdjustRequest) (ledger.TxRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nonce = req.Sequence + 1
	f.scores[req.Principal] = req.Score
	return "0xscoretx", nil
}

func (f *fakeTransport) SubmitInteraction(ctx context.Context, req ledger.InteractionRequest) (ledger.TxRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nonce = req.Sequence + 1
	return "0xlinktx", nil
}

func testEngineConfig(t *testing.T) *config.Config {
	cfg := &config.Config{
		Version: "1.0",
		Ledger: config.LedgerConfig{
			RPCURL:  "http://localhost:8545",
			ChainID: 31337,
		},
		Sync: config.SyncConfig{
			PollIntervalSeconds: 1,
			BackoffBaseMs:       50,
			BackoffCapMs:        200,
		},
		Identity: config.IdentityConfig{
			ConfirmIntervalSeconds: 1,
			RetryIntervalSeconds:   1,
		},
		Report: config.ReportConfig{Addr: "127.0.0.1:0"},
	}
	require.NoError(t, cfg.Validate())
	// Validate applies the production intervals to zero fields; force the
	// short test values back in.
	cfg.Sync.PollIntervalSeconds = 1
	cfg.Identity.ConfirmIntervalSeconds = 1
	cfg.Identity.RetryIntervalSeconds = 1
	return cfg
}

func setupEngine(t *testing.T) (*Engine, *fakeTransport, *store.Client) {
	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())
	t.Cleanup(mr.Close)

	storeClient, err := store.NewClient(&redis.Options{Addr: mr.Addr()}, "test-instance")
	require.NoError(t, err)
	t.Cleanup(func() { storeClient.Close() })

	transport := newFakeTransport()
	ledgerClient := ledger.NewClient(transport, ledger.Config{
		SignerAddress:      "0x1111111111111111111111111111111111111111",
		CredentialContract: "0x2222222222222222222222222222222222222222",
		ScoreContract:      "0x3333333333333333333333333333333333333333",
		RegistryContract:   "0x4444444444444444444444444444444444444444",
	})

	return New(storeClient, ledgerClient, testEngineConfig(t), "test-instance"), transport, storeClient
}

func TestOnPrincipalAuthenticated(t *testing.T) {
	ctx := context.Background()

	t.Run("rejects malformed address", func(t *testing.T) {
		e, _, _ := setupEngine(t)
		_, err := e.OnPrincipalAuthenticated(ctx, "not-an-address", 50)
		assert.Error(t, err)
	})

	t.Run("first authentication creates the record and submits a mint", func(t *testing.T) {
		e, _, _ := setupEngine(t)

		p, err := e.OnPrincipalAuthenticated(ctx, testAddr, 50)
		require.NoError(t, err)

		assert.Equal(t, testAddr, p.Address)
		assert.Equal(t, 50, p.LocalScore)
		assert.NotZero(t, p.FirstSeenMs)
		// The orchestrator ran inline and the fake ledger accepted the mint.
		assert.Equal(t, store.StatusMinting, p.CredentialStatus)
		assert.Equal(t, "0xminttx", p.CredentialRef)

		// Score 50 against an unrecorded ledger is a due milestone.
		assert.Equal(t, 1, e.QueueDepth())
	})

	t.Run("normalizes mixed-case addresses to one record", func(t *testing.T) {
		e, _, storeClient := setupEngine(t)

		_, err := e.OnPrincipalAuthenticated(ctx, testAddr, 50)
		require.NoError(t, err)
		_, err = e.OnPrincipalAuthenticated(ctx, "0xAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA", 55)
		require.NoError(t, err)

		addrs, err := storeClient.ListPrincipals(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{testAddr}, addrs)
	})

	t.Run("repeat authentication updates the local score", func(t *testing.T) {
		e, _, storeClient := setupEngine(t)

		_, err := e.OnPrincipalAuthenticated(ctx, testAddr, 50)
		require.NoError(t, err)

		p, err := e.OnPrincipalAuthenticated(ctx, testAddr, 63)
		require.NoError(t, err)
		assert.Equal(t, 63, p.LocalScore)

		got, err := storeClient.GetPrincipal(ctx, testAddr)
		require.NoError(t, err)
		assert.Equal(t, 63, got.LocalScore)
	})

	t.Run("clamps out-of-range scores", func(t *testing.T) {
		e, _, _ := setupEngine(t)

		_, err := e.OnPrincipalAuthenticated(ctx, testAddr, 50)
		require.NoError(t, err)

		p, err := e.OnPrincipalAuthenticated(ctx, testAddr, 250)
		require.NoError(t, err)
		assert.Equal(t, 100, p.LocalScore)
	})

	t.Run("mint failure never fails authentication", func(t *testing.T) {
		e, transport, _ := setupEngine(t)
		transport.mintErr = errors.New("rpc down")

		p, err := e.OnPrincipalAuthenticated(ctx, testAddr, 50)
		require.NoError(t, err)
		assert.Equal(t, store.StatusFailed, p.CredentialStatus)
		assert.NotEmpty(t, p.CredentialError)
	})
}

func TestForceResync(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown principal is an error", func(t *testing.T) {
		e, _, _ := setupEngine(t)
		assert.Error(t, e.ForceResync(ctx, testAddr))
	})

	t.Run("enqueues the current local score unconditionally", func(t *testing.T) {
		e, _, _ := setupEngine(t)

		_, err := e.OnPrincipalAuthenticated(ctx, testAddr, 50)
		require.NoError(t, err)
		queued := e.QueueSnapshot()[0]
		e.queue.Complete(queued.ID, queued.TargetScore)
		require.Equal(t, 0, e.QueueDepth())

		require.NoError(t, e.ForceResync(ctx, testAddr))
		assert.Equal(t, 1, e.QueueDepth())
		assert.Equal(t, 50, e.QueueSnapshot()[0].TargetScore)
	})
}

func TestStatusOf(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown principal projects as absent", func(t *testing.T) {
		e, _, _ := setupEngine(t)
		view, err := e.StatusOf(ctx, testAddr)
		require.NoError(t, err)
		assert.Equal(t, store.StatusAbsent, view.CredentialStatus)
		assert.Equal(t, testAddr, view.Address)
	})

	t.Run("known principal includes queue state", func(t *testing.T) {
		e, _, _ := setupEngine(t)
		_, err := e.OnPrincipalAuthenticated(ctx, testAddr, 50)
		require.NoError(t, err)

		view, err := e.StatusOf(ctx, testAddr)
		require.NoError(t, err)
		assert.Equal(t, 50, view.LocalScore)
		require.NotNil(t, view.Queued)
		assert.Equal(t, 50, view.Queued.TargetScore)
	})
}

// TestReconciliationEndToEnd drives the full loop: authentication, mint
// submission, ledger confirmation, score push, and the no-further-sync steady
// state.
func TestReconciliationEndToEnd(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	e, _, storeClient := setupEngine(t)

	done := make(chan struct{})
	go func() {
		e.Run(ctx)
		close(done)
	}()

	_, err := e.OnPrincipalAuthenticated(ctx, testAddr, 50)
	require.NoError(t, err)

	// The checker confirms the mint and the worker pushes the score.
	require.Eventually(t, func() bool {
		p, err := storeClient.GetPrincipal(ctx, testAddr)
		if err != nil {
			return false
		}
		return p.CredentialStatus == store.StatusActive &&
			p.LedgerScore != nil && *p.LedgerScore == 50 &&
			e.QueueDepth() == 0
	}, 10*time.Second, 50*time.Millisecond)

	p, err := storeClient.GetPrincipal(ctx, testAddr)
	require.NoError(t, err)
	require.NotNil(t, p.CredentialID)
	assert.Equal(t, int64(42), *p.CredentialID)
	assert.Empty(t, p.CredentialRef)
	assert.True(t, p.LastSyncOK)

	// A score below the next milestone must not queue another push.
	_, err = e.OnPrincipalAuthenticated(ctx, testAddr, 55)
	require.NoError(t, err)
	assert.Equal(t, 0, e.QueueDepth())

	// The next milestone queues again.
	_, err = e.OnPrincipalAuthenticated(ctx, testAddr, 60)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		p, err := storeClient.GetPrincipal(ctx, testAddr)
		return err == nil && p.LedgerScore != nil && *p.LedgerScore == 60
	}, 10*time.Second, 50*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("engine did not stop after cancellation")
	}
}
