package analytics

import (
	"context"

	"github.com/kislikjeka/pocketledger/internal/ledger"
)

// TransactionReader is the part of the ledger the aggregator reads
type TransactionReader interface {
	GetTransactions(ctx context.Context, filter ledger.TransactionFilter) ([]ledger.Transaction, error)
}

// Service computes summaries from the stored transactions
type Service struct {
	reader TransactionReader
}

// NewService creates an analytics service
func NewService(reader TransactionReader) *Service {
	return &Service{reader: reader}
}

func (s *Service) monthTransactions(ctx context.Context, year, month int) ([]ledger.Transaction, error) {
	if err := validPeriod(year, month); err != nil {
		return nil, err
	}
	start, end := MonthBounds(year, month)
	return s.reader.GetTransactions(ctx, ledger.TransactionFilter{StartDate: start, EndDate: end})
}

// MonthlyStats returns the income, expense and savings of a month
func (s *Service) MonthlyStats(ctx context.Context, year, month int) (MonthlyStats, error) {
	txs, err := s.monthTransactions(ctx, year, month)
	if err != nil {
		return MonthlyStats{}, err
	}
	return Monthly(txs, year, month), nil
}

// CategoryStats returns the expense totals per category of a month
func (s *Service) CategoryStats(ctx context.Context, year, month int) ([]CategoryTotal, error) {
	txs, err := s.monthTransactions(ctx, year, month)
	if err != nil {
		return nil, err
	}
	return ByCategory(txs, year, month), nil
}
