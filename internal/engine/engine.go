// Package engine wires the reconciliation components together: the score sync
// queue and its worker, the mint orchestrator, the retry sweep and the
// confirmation checker, plus the reporting HTTP surface. The engine owns the
// three long-lived background loops and the foreground authentication entry
// point.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/veralabs/resonance/internal/config"
	"github.com/veralabs/resonance/internal/identity"
	"github.com/veralabs/resonance/internal/syncqueue"
	"github.com/veralabs/resonance/pkg/ledger"
	"github.com/veralabs/resonance/pkg/store"
)

// Engine is the reconciliation engine. Construct with New, start the
// background loops with Run, and feed it authentications through
// OnPrincipalAuthenticated.
type Engine struct {
	store        *store.Client
	ledger       *ledger.Client
	queue        *syncqueue.Queue
	worker       *syncqueue.Worker
	orch         *identity.Orchestrator
	checker      *identity.ConfirmationChecker
	retry        *identity.RetrySweeper
	cfg          *config.Config
	instanceName string
	report       *ReportServer

	wg sync.WaitGroup
}

// New creates an engine over the given store and ledger clients. The queue
// and loops are owned by the engine; tests construct isolated instances the
// same way.
func New(storeClient *store.Client, ledgerClient *ledger.Client, cfg *config.Config, instanceName string) *Engine {
	queue := syncqueue.NewQueue(cfg.BackoffBase(), cfg.BackoffCap())
	orch := identity.NewOrchestrator(storeClient, ledgerClient)

	e := &Engine{
		store:        storeClient,
		ledger:       ledgerClient,
		queue:        queue,
		cfg:          cfg,
		instanceName: instanceName,
		orch:         orch,
	}
	e.worker = syncqueue.NewWorker(queue, ledgerClient, storeClient,
		cfg.Sync.MaxAttempts, time.Duration(cfg.Sync.PollIntervalSeconds)*time.Second)
	e.checker = identity.NewConfirmationChecker(storeClient, ledgerClient,
		time.Duration(cfg.Identity.ConfirmIntervalSeconds)*time.Second,
		time.Duration(cfg.Identity.SlowMintSeconds)*time.Second)
	e.retry = identity.NewRetrySweeper(storeClient, orch,
		time.Duration(cfg.Identity.RetryIntervalSeconds)*time.Second)
	e.report = NewReportServer(e, cfg.Report.Addr)
	return e
}

// Run starts the reporting server and the three background loops, then blocks
// until the context is cancelled and all loops have exited. Each loop is
// independently supervised: an error in one sweep never terminates the
// process.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.report.Start(); err != nil {
		return fmt.Errorf("failed to start report server: %w", err)
	}
	defer e.report.Shutdown(context.Background())

	log.Printf("[Engine] Starting for instance '%s'", e.instanceName)

	e.initialScan(ctx)

	for _, loop := range []func(context.Context){e.worker.Run, e.checker.Run, e.retry.Run} {
		loop := loop
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			loop(ctx)
		}()
	}

	<-ctx.Done()
	log.Printf("[Engine] Shutting down...")
	e.wg.Wait()
	log.Printf("[Engine] All loops exited, shutdown complete")
	return nil
}

// initialScan enqueues a score push for every principal whose local score has
// outrun the ledger, so work queued before a restart is not lost. Scan
// failures only cost the initial backfill; the auth path re-evaluates on the
// next authentication.
func (e *Engine) initialScan(ctx context.Context) {
	addrs, err := e.store.ListPrincipals(ctx)
	if err != nil {
		log.Printf("[Engine] Initial sync scan failed: %v", err)
		return
	}

	enqueued := 0
	for _, addr := range addrs {
		p, err := e.store.GetPrincipal(ctx, addr)
		if err != nil {
			log.Printf("[Engine] Initial scan could not read %s: %v", addr, err)
			continue
		}
		if syncqueue.ShouldSync(p.LocalScore, ledgerScoreOf(p)) {
			e.queue.Enqueue(p.Address, p.LocalScore)
			enqueued++
		}
	}

	if enqueued > 0 {
		e.logEvent("initial_scan", map[string]interface{}{
			"principals": len(addrs),
			"enqueued":   enqueued,
		})
	}
}

// OnPrincipalAuthenticated is the foreground entry point, called after a
// wallet signature has been verified. It creates the principal record on
// first sight, updates the local score, evaluates whether a ledger push is
// due, and runs the mint orchestrator inline.
//
// Write-path failures never propagate to the caller; credential and score
// sync are best-effort background guarantees surfaced as status fields. Only
// a malformed address is rejected synchronously.
func (e *Engine) OnPrincipalAuthenticated(ctx context.Context, address string, score int) (*store.Principal, error) {
	addr, err := ledger.NormalizeAddress(address)
	if err != nil {
		return nil, err
	}
	score = clampScore(score)

	p, err := e.store.GetPrincipal(ctx, addr)
	switch {
	case store.IsNotFound(err):
		p = &store.Principal{
			Address:          addr,
			LocalScore:       e.cfg.Sync.InitialScore,
			CredentialStatus: store.StatusPending,
			FirstSeenMs:      time.Now().UnixMilli(),
		}
		if err := e.store.CreatePrincipal(ctx, p); err != nil {
			return nil, fmt.Errorf("failed to create principal record: %w", err)
		}
		e.logEvent("principal_registered", map[string]interface{}{
			"address":     addr,
			"local_score": p.LocalScore,
		})

	case err != nil:
		return nil, fmt.Errorf("failed to load principal record: %w", err)

	default:
		p, err = e.store.Update(ctx, addr, func(p *store.Principal) error {
			p.LocalScore = score
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to update principal record: %w", err)
		}
	}

	if syncqueue.ShouldSync(p.LocalScore, ledgerScoreOf(p)) {
		e.queue.Enqueue(p.Address, p.LocalScore)
		e.logEvent("sync_enqueued", map[string]interface{}{
			"address":      p.Address,
			"target_score": p.LocalScore,
			"ledger_score": ledgerScoreOf(p),
		})
	}

	if err := e.orch.EnsureCredential(ctx, p.Address); err != nil {
		log.Printf("[Engine] Credential orchestration failed for %s: %v", p.Address, err)
	}

	// Re-read so the caller sees the post-orchestration credential state.
	if fresh, err := e.store.GetPrincipal(ctx, addr); err == nil {
		p = fresh
	}
	return p, nil
}

// ForceResync unconditionally enqueues a ledger push of the principal's
// current local score. This is the one explicit external mutation trigger
// besides authentication.
func (e *Engine) ForceResync(ctx context.Context, address string) error {
	addr, err := ledger.NormalizeAddress(address)
	if err != nil {
		return err
	}

	p, err := e.store.GetPrincipal(ctx, addr)
	if err != nil {
		return fmt.Errorf("failed to load principal record: %w", err)
	}

	e.queue.Enqueue(p.Address, p.LocalScore)
	e.logEvent("force_resync", map[string]interface{}{
		"address":      p.Address,
		"target_score": p.LocalScore,
	})
	return nil
}

// StatusView is the read-only reporting projection for one principal.
type StatusView struct {
	Address          string                 `json:"address"`
	LocalScore       int                    `json:"local_score"`
	LedgerScore      *int                   `json:"ledger_score,omitempty"`
	CredentialStatus store.CredentialStatus `json:"credential_status"`
	CredentialRef    string                 `json:"credential_ref,omitempty"`
	CredentialID     *int64                 `json:"credential_id,omitempty"`
	CredentialError  string                 `json:"credential_error,omitempty"`
	LastSyncOK       bool                   `json:"last_sync_ok"`
	LastSyncError    string                 `json:"last_sync_error,omitempty"`
	LastSyncRef      string                 `json:"last_sync_ref,omitempty"`
	LastSyncMs       int64                  `json:"last_sync_ms,omitempty"`
	Queued           *syncqueue.ItemView    `json:"queued,omitempty"`
}

// StatusOf returns the reporting projection for an address. Unknown
// principals project as credential status absent rather than an error.
func (e *Engine) StatusOf(ctx context.Context, address string) (*StatusView, error) {
	addr, err := ledger.NormalizeAddress(address)
	if err != nil {
		return nil, err
	}

	p, err := e.store.GetPrincipal(ctx, addr)
	if store.IsNotFound(err) {
		return &StatusView{Address: addr, CredentialStatus: store.StatusAbsent}, nil
	}
	if err != nil {
		return nil, err
	}

	view := &StatusView{
		Address:          p.Address,
		LocalScore:       p.LocalScore,
		LedgerScore:      p.LedgerScore,
		CredentialStatus: p.CredentialStatus,
		CredentialRef:    p.CredentialRef,
		CredentialID:     p.CredentialID,
		CredentialError:  p.CredentialError,
		LastSyncOK:       p.LastSyncOK,
		LastSyncError:    p.LastSyncError,
		LastSyncRef:      p.LastSyncRef,
		LastSyncMs:       p.LastSyncMs,
	}
	for _, item := range e.queue.Snapshot() {
		if item.Principal == p.Address {
			item := item
			view.Queued = &item
			break
		}
	}
	return view, nil
}

// QueueSnapshot returns the sync queue's reporting projection.
func (e *Engine) QueueSnapshot() []syncqueue.ItemView {
	return e.queue.Snapshot()
}

// QueueDepth returns the number of live sync queue items.
func (e *Engine) QueueDepth() int {
	return e.queue.Depth()
}

// LedgerHealth returns the ledger health snapshot.
func (e *Engine) LedgerHealth(ctx context.Context) ledger.HealthSnapshot {
	return e.ledger.Health(ctx)
}

func ledgerScoreOf(p *store.Principal) int {
	if p.LedgerScore == nil {
		return 0
	}
	return *p.LedgerScore
}

func clampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// logEvent logs a structured event in JSON format.
func (e *Engine) logEvent(eventType string, data map[string]interface{}) {
	data["timestamp"] = time.Now().UTC().Format(time.RFC3339)
	data["level"] = "info"
	data["component"] = "engine"
	data["event_type"] = eventType
	data["instance"] = e.instanceName

	jsonData, err := json.Marshal(data)
	if err != nil {
		log.Printf("[Engine] Failed to marshal log event: %v", err)
		return
	}

	log.Println(string(jsonData))
}
