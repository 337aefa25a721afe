package handler

import (
	"context"
	"io"
	"net/http"

	"github.com/kislikjeka/pocketledger/internal/backup"
	"github.com/kislikjeka/pocketledger/internal/migration"
	apperrors "github.com/kislikjeka/pocketledger/internal/shared/errors"
)

// BackupService exports and replaces the whole ledger
type BackupService interface {
	Export(ctx context.Context) (*backup.Snapshot, error)
	Restore(ctx context.Context, snap *backup.Snapshot) error
	RestoreLastBackup(ctx context.Context) error
	ClearAllData(ctx context.Context) error
}

// BulkRunner serializes a whole-state operation with the cached mutations
// and refreshes the cache afterwards
type BulkRunner interface {
	Bulk(ctx context.Context, op string, fn func(ctx context.Context) error) error
}

// Migrator repairs legacy records after a restore
type Migrator interface {
	Run(ctx context.Context) (migration.Report, error)
}

// BackupHandler handles backup, restore and clear requests
type BackupHandler struct {
	backup   BackupService
	bulk     BulkRunner
	migrator Migrator
}

// NewBackupHandler creates a new backup handler. migrator may be nil, in
// which case restored snapshots are not migrated.
func NewBackupHandler(b BackupService, bulk BulkRunner, m Migrator) *BackupHandler {
	return &BackupHandler{backup: b, bulk: bulk, migrator: m}
}

// RestoreResponse reports what a restore loaded
type RestoreResponse struct {
	Status       string            `json:"status"`
	Accounts     int               `json:"accounts"`
	Transactions int               `json:"transactions"`
	Migration    *migration.Report `json:"migration,omitempty"`
}

// Export handles GET /backup
func (h *BackupHandler) Export(w http.ResponseWriter, r *http.Request) {
	snap, err := h.backup.Export(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	w.Header().Set("Content-Disposition", `attachment; filename="`+snap.FileName()+`"`)
	respondJSON(w, http.StatusOK, snap)
}

// Restore handles POST /backup/restore. The body is validated in full before
// anything is written.
func (h *BackupHandler) Restore(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		respondAppError(w, apperrors.BadRequest("failed to read request body"))
		return
	}
	snap, err := backup.Parse(body)
	if err != nil {
		respondError(w, err)
		return
	}

	resp := RestoreResponse{Status: "restored"}
	resp.Accounts, resp.Transactions = snap.Counts()

	err = h.bulk.Bulk(r.Context(), "restore", func(ctx context.Context) error {
		if err := h.backup.Restore(ctx, snap); err != nil {
			return err
		}
		return h.migrate(ctx, &resp)
	})
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

// RestoreLast handles POST /backup/restore-last
func (h *BackupHandler) RestoreLast(w http.ResponseWriter, r *http.Request) {
	resp := RestoreResponse{Status: "restored"}
	err := h.bulk.Bulk(r.Context(), "restore last backup", func(ctx context.Context) error {
		if err := h.backup.RestoreLastBackup(ctx); err != nil {
			return err
		}
		return h.migrate(ctx, &resp)
	})
	if err != nil {
		respondError(w, err)
		return
	}
	if resp.Migration != nil {
		resp.Accounts = resp.Migration.AccountsRead
		resp.Transactions = resp.Migration.TransactionsRead
	}
	respondJSON(w, http.StatusOK, resp)
}

// ClearData handles DELETE /data
func (h *BackupHandler) ClearData(w http.ResponseWriter, r *http.Request) {
	if err := h.bulk.Bulk(r.Context(), "clear", h.backup.ClearAllData); err != nil {
		respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *BackupHandler) migrate(ctx context.Context, resp *RestoreResponse) error {
	if h.migrator == nil {
		return nil
	}
	report, err := h.migrator.Run(ctx)
	if err != nil {
		return err
	}
	resp.Migration = &report
	return nil
}
