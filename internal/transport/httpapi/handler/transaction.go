package handler

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/kislikjeka/pocketledger/internal/ledger"
	apperrors "github.com/kislikjeka/pocketledger/internal/shared/errors"
	"github.com/kislikjeka/pocketledger/pkg/clock"
)

// TransactionWriter performs transaction mutations
type TransactionWriter interface {
	AddTransaction(ctx context.Context, in ledger.TransactionInput) (*ledger.Transaction, error)
	UpdateTransaction(ctx context.Context, id string, patch ledger.TransactionPatch) (*ledger.Transaction, error)
	DeleteTransaction(ctx context.Context, id string) error
}

// TransactionReader reads transactions from the ledger
type TransactionReader interface {
	GetTransactions(ctx context.Context, filter ledger.TransactionFilter) ([]ledger.Transaction, error)
	GetTransaction(ctx context.Context, id string) (*ledger.Transaction, error)
}

// TransactionHandler handles transaction-related HTTP requests
type TransactionHandler struct {
	writer TransactionWriter
	reader TransactionReader
	clock  clock.Clock
}

// NewTransactionHandler creates a new transaction handler
func NewTransactionHandler(writer TransactionWriter, reader TransactionReader, clk clock.Clock) *TransactionHandler {
	return &TransactionHandler{
		writer: writer,
		reader: reader,
		clock:  clock.OrSystem(clk),
	}
}

// CreateTransactionRequest represents the transaction creation request.
// Date defaults to today.
type CreateTransactionRequest struct {
	ID       string                 `json:"id"`
	Amount   decimal.Decimal        `json:"amount"`
	Type     ledger.TransactionType `json:"type"`
	Category string                 `json:"category"`
	SourceID string                 `json:"sourceId"`
	Source   string                 `json:"source"`
	Date     string                 `json:"date"`
	Note     string                 `json:"note"`
}

// UpdateTransactionRequest lists the fields to change
type UpdateTransactionRequest struct {
	Amount   *decimal.Decimal        `json:"amount"`
	Type     *ledger.TransactionType `json:"type"`
	Category *string                 `json:"category"`
	SourceID *string                 `json:"sourceId"`
	Source   *string                 `json:"source"`
	Date     *string                 `json:"date"`
	Note     *string                 `json:"note"`
}

// TransactionsListResponse represents the response for listing transactions
type TransactionsListResponse struct {
	Transactions []ledger.Transaction `json:"transactions"`
	Total        int                  `json:"total"`
}

// CreateTransaction handles POST /transactions
func (h *TransactionHandler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req CreateTransactionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Date == "" {
		req.Date = clock.Today(h.clock)
	}

	tx, err := h.writer.AddTransaction(r.Context(), ledger.TransactionInput{
		ID:       req.ID,
		Amount:   req.Amount,
		Type:     req.Type,
		Category: req.Category,
		SourceID: req.SourceID,
		Source:   req.Source,
		Date:     req.Date,
		Note:     req.Note,
	})
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, tx)
}

// GetTransactions handles GET /transactions
func (h *TransactionHandler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	filter, err := ParseTransactionFilter(r.URL.Query())
	if err != nil {
		respondError(w, err)
		return
	}

	txs, err := h.reader.GetTransactions(r.Context(), filter)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, TransactionsListResponse{Transactions: txs, Total: len(txs)})
}

// GetTransaction handles GET /transactions/{id}
func (h *TransactionHandler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	tx, err := h.reader.GetTransaction(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, tx)
}

// UpdateTransaction handles PUT /transactions/{id}
func (h *TransactionHandler) UpdateTransaction(w http.ResponseWriter, r *http.Request) {
	var req UpdateTransactionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	tx, err := h.writer.UpdateTransaction(r.Context(), chi.URLParam(r, "id"), ledger.TransactionPatch{
		Amount:   req.Amount,
		Type:     req.Type,
		Category: req.Category,
		SourceID: req.SourceID,
		Source:   req.Source,
		Date:     req.Date,
		Note:     req.Note,
	})
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, tx)
}

// DeleteTransaction handles DELETE /transactions/{id}
func (h *TransactionHandler) DeleteTransaction(w http.ResponseWriter, r *http.Request) {
	if err := h.writer.DeleteTransaction(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ParseTransactionFilter reads the list query parameters:
// type, category, account, account_name, start, end and sort=date
func ParseTransactionFilter(q url.Values) (ledger.TransactionFilter, error) {
	f := ledger.TransactionFilter{
		Type:        ledger.TransactionType(q.Get("type")),
		Category:    q.Get("category"),
		AccountID:   q.Get("account"),
		AccountName: q.Get("account_name"),
		StartDate:   q.Get("start"),
		EndDate:     q.Get("end"),
	}

	if f.Type != "" && !f.Type.IsValid() {
		return f, apperrors.Validation(fmt.Sprintf("type must be %q or %q", ledger.TransactionTypeIncome, ledger.TransactionTypeExpense))
	}

	switch q.Get("sort") {
	case "":
	case "date":
		f.SortByDate = true
	default:
		return f, apperrors.Validation("sort must be \"date\"")
	}
	return f, nil
}
