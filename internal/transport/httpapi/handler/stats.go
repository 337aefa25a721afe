package handler

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/kislikjeka/pocketledger/internal/analytics"
	"github.com/kislikjeka/pocketledger/internal/appstate"
	"github.com/kislikjeka/pocketledger/internal/ledger"
	apperrors "github.com/kislikjeka/pocketledger/internal/shared/errors"
	"github.com/kislikjeka/pocketledger/pkg/clock"
)

// SummaryProvider derives the quick overview from the in-memory mirror
type SummaryProvider interface {
	Stats() appstate.Summary
}

// AnalyticsService computes the month summaries from the store
type AnalyticsService interface {
	MonthlyStats(ctx context.Context, year, month int) (analytics.MonthlyStats, error)
	CategoryStats(ctx context.Context, year, month int) ([]analytics.CategoryTotal, error)
}

// Reconciler checks the balance invariant
type Reconciler interface {
	Reconcile(ctx context.Context) ([]ledger.Discrepancy, error)
}

// StatsHandler handles summary and reconciliation requests
type StatsHandler struct {
	summary    SummaryProvider
	analytics  AnalyticsService
	reconciler Reconciler
	clock      clock.Clock
}

// NewStatsHandler creates a new stats handler
func NewStatsHandler(summary SummaryProvider, a AnalyticsService, rec Reconciler, clk clock.Clock) *StatsHandler {
	return &StatsHandler{
		summary:    summary,
		analytics:  a,
		reconciler: rec,
		clock:      clock.OrSystem(clk),
	}
}

// CategoryStatsResponse is the expense breakdown of one month
type CategoryStatsResponse struct {
	Year       int                       `json:"year"`
	Month      int                       `json:"month"`
	Categories []analytics.CategoryTotal `json:"categories"`
}

// ReconcileResponse lists accounts whose balance disagrees with history
type ReconcileResponse struct {
	Consistent    bool                 `json:"consistent"`
	Discrepancies []ledger.Discrepancy `json:"discrepancies"`
}

// GetStats handles GET /stats
func (h *StatsHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.summary.Stats())
}

// GetMonthlyStats handles GET /stats/monthly?year=&month=
func (h *StatsHandler) GetMonthlyStats(w http.ResponseWriter, r *http.Request) {
	p, err := h.period(r.URL.Query())
	if err != nil {
		respondError(w, err)
		return
	}

	stats, err := h.analytics.MonthlyStats(r.Context(), p.Year, p.Month)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

// GetCategoryStats handles GET /stats/categories?year=&month=
func (h *StatsHandler) GetCategoryStats(w http.ResponseWriter, r *http.Request) {
	p, err := h.period(r.URL.Query())
	if err != nil {
		respondError(w, err)
		return
	}

	categories, err := h.analytics.CategoryStats(r.Context(), p.Year, p.Month)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, CategoryStatsResponse{Year: p.Year, Month: p.Month, Categories: categories})
}

// Reconcile handles GET /reconcile
func (h *StatsHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	discrepancies, err := h.reconciler.Reconcile(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	if discrepancies == nil {
		discrepancies = []ledger.Discrepancy{}
	}
	respondJSON(w, http.StatusOK, ReconcileResponse{
		Consistent:    len(discrepancies) == 0,
		Discrepancies: discrepancies,
	})
}

// period reads year and month, defaulting each to the current month
func (h *StatsHandler) period(q url.Values) (clock.Period, error) {
	p := clock.CurrentPeriod(h.clock)
	if v := q.Get("year"); v != "" {
		year, err := strconv.Atoi(v)
		if err != nil {
			return p, apperrors.Validation("year must be a number")
		}
		p.Year = year
	}
	if v := q.Get("month"); v != "" {
		month, err := strconv.Atoi(v)
		if err != nil {
			return p, apperrors.Validation("month must be a number")
		}
		p.Month = month
	}
	return p, nil
}
