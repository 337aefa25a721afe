package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/kislikjeka/pocketledger/internal/backup"
	"github.com/kislikjeka/pocketledger/internal/ledger"
)

// Version is reported by the health endpoints
const Version = "1.0.0"

const checkTimeout = 2 * time.Second

var startTime = time.Now()

// Pinger checks that the store answers
type Pinger interface {
	Ping(ctx context.Context) error
}

// BackupInfo reports the snapshot kept under lastBackup
type BackupInfo interface {
	LastBackup(ctx context.Context) (*backup.Snapshot, error)
}

// HealthHandler handles health check requests
type HealthHandler struct {
	store   Pinger
	backend string
	ledger  Reconciler
	backups BackupInfo
}

// NewHealthHandler creates a new health handler. backend names the store
// in detailed reports.
func NewHealthHandler(store Pinger, backend string) *HealthHandler {
	return &HealthHandler{store: store, backend: backend}
}

// WithLedger adds a balance consistency check to the detailed report
func (h *HealthHandler) WithLedger(r Reconciler) *HealthHandler {
	h.ledger = r
	return h
}

// WithBackups adds the age of the last backup to the detailed report
func (h *HealthHandler) WithBackups(b BackupInfo) *HealthHandler {
	h.backups = b
	return h
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status  string            `json:"status"`
	Version string            `json:"version"`
	Checks  map[string]string `json:"checks"`
	Uptime  string            `json:"uptime,omitempty"`
}

// GetHealth handles GET /health
func GetHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, HealthResponse{
		Status:  "ok",
		Version: Version,
		Uptime:  time.Since(startTime).Round(time.Second).String(),
		Checks:  map[string]string{},
	})
}

// GetHealthDetailed handles GET /health/detailed. An unreachable store makes
// the service unavailable; drifted balances only degrade it.
func (h *HealthHandler) GetHealthDetailed(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
	defer cancel()

	checks := map[string]string{}
	status := "ok"

	if err := h.store.Ping(ctx); err != nil {
		checks["store"] = "unhealthy: " + err.Error()
		respondJSON(w, http.StatusServiceUnavailable, HealthResponse{
			Status:  "down",
			Version: Version,
			Checks:  checks,
		})
		return
	}
	checks["store"] = "healthy (" + h.backend + ")"

	if h.ledger != nil {
		discrepancies, err := h.ledger.Reconcile(ctx)
		switch {
		case err != nil:
			checks["ledger"] = "unreadable: " + err.Error()
			status = "degraded"
		case len(discrepancies) > 0:
			checks["ledger"] = fmt.Sprintf("%d account(s) out of balance", len(discrepancies))
			status = "degraded"
		default:
			checks["ledger"] = "consistent"
		}
	}

	if h.backups != nil {
		snap, err := h.backups.LastBackup(ctx)
		switch {
		case errors.Is(err, ledger.ErrNotFound):
			checks["backup"] = "none taken"
		case err != nil:
			checks["backup"] = "unreadable: " + err.Error()
			status = "degraded"
		default:
			checks["backup"] = "last taken " + time.Since(snap.Timestamp).Round(time.Minute).String() + " ago"
		}
	}

	respondJSON(w, http.StatusOK, HealthResponse{
		Status:  status,
		Version: Version,
		Uptime:  time.Since(startTime).Round(time.Second).String(),
		Checks:  checks,
	})
}

// GetReadiness handles GET /health/ready
func (h *HealthHandler) GetReadiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
	defer cancel()

	if err := h.store.Ping(ctx); err != nil {
		respondJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: "store not ready", Code: "STORE_FAILURE"})
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// GetLiveness handles GET /health/live
func GetLiveness(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}
