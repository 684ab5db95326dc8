package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/veralabs/resonance/internal/syncqueue"
	"github.com/veralabs/resonance/pkg/ledger"
)

// ReportServer exposes the engine's reporting surface over HTTP: queue depth
// and per-item attempt counts, per-principal credential status, last sync
// outcome and the ledger health snapshot. Everything is a read-only
// projection except the explicit force-resync trigger.
type ReportServer struct {
	engine *Engine
	addr   string
	server *http.Server
}

// NewReportServer creates a reporting server bound to addr.
func NewReportServer(e *Engine, addr string) *ReportServer {
	return &ReportServer{engine: e, addr: addr}
}

// Start starts the HTTP server in the background.
func (s *ReportServer) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.healthHandler)
	mux.HandleFunc("/status", s.statusHandler)
	mux.HandleFunc("/queue", s.queueHandler)
	mux.HandleFunc("/resync", s.resyncHandler)

	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Printf("Report server error: %v\n", err)
		}
	}()

	return nil
}

// Shutdown gracefully shuts down the reporting server.
func (s *ReportServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// HealthResponse is the JSON response for GET /healthz.
type HealthResponse struct {
	Status string                `json:"status"`
	Store  string                `json:"store"`
	Ledger ledger.HealthSnapshot `json:"ledger"`
	Error  string                `json:"error,omitempty"`
}

// healthHandler handles GET /healthz. Returns 200 when the store is
// reachable. The ledger snapshot is informational and never fails the check;
// the engine keeps running (and retrying) through ledger outages.
func (s *ReportServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	response := HealthResponse{
		Status: "healthy",
		Ledger: s.engine.LedgerHealth(ctx),
	}

	if err := s.engine.store.Ping(ctx); err != nil {
		response.Status = "unhealthy"
		response.Store = "disconnected"
		response.Error = err.Error()
		writeJSON(w, http.StatusServiceUnavailable, response)
		return
	}
	response.Store = "connected"
	writeJSON(w, http.StatusOK, response)
}

// statusHandler handles GET /status?address=0x...
func (s *ReportServer) statusHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	view, err := s.engine.StatusOf(r.Context(), r.URL.Query().Get("address"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// QueueResponse is the JSON response for GET /queue.
type QueueResponse struct {
	Depth int                  `json:"depth"`
	Items []syncqueue.ItemView `json:"items"`
}

// queueHandler handles GET /queue.
func (s *ReportServer) queueHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	items := s.engine.QueueSnapshot()
	writeJSON(w, http.StatusOK, QueueResponse{Depth: len(items), Items: items})
}

// resyncHandler handles POST /resync?address=0x... which is the explicit
// force-resync trigger.
func (s *ReportServer) resyncHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	address := r.URL.Query().Get("address")
	if err := s.engine.ForceResync(r.Context(), address); err != nil {
		status := http.StatusNotFound
		if !ledger.IsValidAddress(address) {
			status = http.StatusBadRequest
		}
		http.Error(w, err.Error(), status)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
