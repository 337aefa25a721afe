package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/kislikjeka/pocketledger/internal/ledger"
	apperrors "github.com/kislikjeka/pocketledger/internal/shared/errors"
	"github.com/kislikjeka/pocketledger/pkg/money"
)

// AccountWriter performs account mutations
type AccountWriter interface {
	AddAccount(ctx context.Context, in ledger.AccountInput) (*ledger.Account, error)
	UpdateAccount(ctx context.Context, id string, patch ledger.AccountPatch) (*ledger.Account, error)
	AdjustOpeningBalance(ctx context.Context, id string, opening decimal.Decimal) (*ledger.Account, error)
	DeleteAccount(ctx context.Context, id string) error
}

// AccountReader reads accounts from the ledger
type AccountReader interface {
	GetAccounts(ctx context.Context) ([]ledger.Account, error)
	GetAccount(ctx context.Context, id string) (*ledger.Account, error)
	HasSufficientFunds(ctx context.Context, accountID string, amount decimal.Decimal) (bool, error)
}

// AccountHandler handles account-related HTTP requests
type AccountHandler struct {
	writer AccountWriter
	reader AccountReader
}

// NewAccountHandler creates a new account handler
func NewAccountHandler(writer AccountWriter, reader AccountReader) *AccountHandler {
	return &AccountHandler{writer: writer, reader: reader}
}

// CreateAccountRequest represents the account creation request
type CreateAccountRequest struct {
	ID             string             `json:"id"`
	Name           string             `json:"name"`
	Type           ledger.AccountType `json:"type"`
	OpeningBalance decimal.Decimal    `json:"openingBalance"`
}

// UpdateAccountRequest lists the fields to change
type UpdateAccountRequest struct {
	Name    *string             `json:"name"`
	Type    *ledger.AccountType `json:"type"`
	Balance *decimal.Decimal    `json:"balance"`
}

// OpeningBalanceRequest sets an account's opening balance
type OpeningBalanceRequest struct {
	OpeningBalance decimal.Decimal `json:"openingBalance"`
}

// AccountsListResponse represents the response for listing accounts
type AccountsListResponse struct {
	Accounts []ledger.Account `json:"accounts"`
}

// SufficientFundsResponse answers a funds check
type SufficientFundsResponse struct {
	AccountID  string          `json:"accountId"`
	Amount     decimal.Decimal `json:"amount"`
	Sufficient bool            `json:"sufficient"`
}

// CreateAccount handles POST /accounts
func (h *AccountHandler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req CreateAccountRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	account, err := h.writer.AddAccount(r.Context(), ledger.AccountInput{
		ID:             req.ID,
		Name:           req.Name,
		Type:           req.Type,
		OpeningBalance: req.OpeningBalance,
	})
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, account)
}

// GetAccounts handles GET /accounts
func (h *AccountHandler) GetAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.reader.GetAccounts(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, AccountsListResponse{Accounts: accounts})
}

// GetAccount handles GET /accounts/{id}
func (h *AccountHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	account, err := h.reader.GetAccount(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, account)
}

// UpdateAccount handles PUT /accounts/{id}
func (h *AccountHandler) UpdateAccount(w http.ResponseWriter, r *http.Request) {
	var req UpdateAccountRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Name == nil && req.Type == nil && req.Balance == nil {
		respondAppError(w, apperrors.Validation("nothing to update"))
		return
	}

	account, err := h.writer.UpdateAccount(r.Context(), chi.URLParam(r, "id"), ledger.AccountPatch{
		Name:    req.Name,
		Type:    req.Type,
		Balance: req.Balance,
	})
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, account)
}

// SetOpeningBalance handles PUT /accounts/{id}/opening-balance
func (h *AccountHandler) SetOpeningBalance(w http.ResponseWriter, r *http.Request) {
	var req OpeningBalanceRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	account, err := h.writer.AdjustOpeningBalance(r.Context(), chi.URLParam(r, "id"), req.OpeningBalance)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, account)
}

// DeleteAccount handles DELETE /accounts/{id}
func (h *AccountHandler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	if err := h.writer.DeleteAccount(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CheckFunds handles GET /accounts/{id}/funds?amount=
func (h *AccountHandler) CheckFunds(w http.ResponseWriter, r *http.Request) {
	amount, err := money.Parse(r.URL.Query().Get("amount"))
	if err != nil {
		respondAppError(w, apperrors.Validation(err.Error()))
		return
	}

	id := chi.URLParam(r, "id")
	ok, err := h.reader.HasSufficientFunds(r.Context(), id, amount)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, SufficientFundsResponse{AccountID: id, Amount: amount, Sufficient: ok})
}
