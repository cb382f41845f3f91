package reports

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	pkgerrors "github.com/angelmondragon/tipsplit-backend/pkg/errors"
	"github.com/angelmondragon/tipsplit-backend/pkg/logger"
)

const (
	defaultWindow = 30 * 24 * time.Hour
	maxWindow     = 366 * 24 * time.Hour
	ratioPlaces   = 4
)

// Service answers operational reporting queries.
type Service interface {
	Daily(ctx context.Context, window Window) ([]DailySummary, error)
	Currencies(ctx context.Context, window Window) ([]CurrencySummary, error)
	Recipients(ctx context.Context, window Window) ([]RecipientSummary, error)
	Payment(ctx context.Context, paymentHash string) (*PaymentHistory, error)
}

type service struct {
	repo Repository
	logg *logger.Logger
	now  func() time.Time
}

// NewService builds the reports service.
func NewService(repo Repository, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("reports repository required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{repo: repo, logg: logg, now: time.Now}, nil
}

func (s *service) Daily(ctx context.Context, window Window) ([]DailySummary, error) {
	window, err := s.resolve(window)
	if err != nil {
		return nil, err
	}
	rows, err := s.repo.DailyTotals(ctx, window)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load daily totals")
	}
	return rows, nil
}

func (s *service) Currencies(ctx context.Context, window Window) ([]CurrencySummary, error) {
	window, err := s.resolve(window)
	if err != nil {
		return nil, err
	}
	rows, err := s.repo.CurrencyTotals(ctx, window)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load currency totals")
	}
	for i := range rows {
		rows[i].TipRatio = tipRatio(rows[i].TipAmount, rows[i].TotalAmount)
	}
	return rows, nil
}

func (s *service) Recipients(ctx context.Context, window Window) ([]RecipientSummary, error) {
	window, err := s.resolve(window)
	if err != nil {
		return nil, err
	}
	rows, err := s.repo.RecipientTotals(ctx, window)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load recipient totals")
	}
	for i := range rows {
		rows[i].TipRatio = tipRatio(rows[i].TipAmount, rows[i].TotalAmount)
	}
	return rows, nil
}

func (s *service) Payment(ctx context.Context, paymentHash string) (*PaymentHistory, error) {
	hash := strings.TrimSpace(paymentHash)
	if hash == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment hash is required")
	}
	split, err := s.repo.FindSplit(ctx, hash)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load split")
	}
	if split == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("payment %s not found", hash))
	}
	events, err := s.repo.ListEvents(ctx, hash)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment events")
	}
	return &PaymentHistory{Split: split, Events: events}, nil
}

// resolve fills a missing bound and rejects inverted or oversized windows.
func (s *service) resolve(window Window) (Window, error) {
	if window.To.IsZero() {
		window.To = s.now().UTC()
	}
	if window.From.IsZero() {
		window.From = window.To.Add(-defaultWindow)
	}
	window.From, window.To = window.From.UTC(), window.To.UTC()
	if !window.From.Before(window.To) {
		return Window{}, pkgerrors.New(pkgerrors.CodeValidation, "report window must end after it starts").
			WithDetails(map[string]any{"from": window.From, "to": window.To})
	}
	if window.To.Sub(window.From) > maxWindow {
		return Window{}, pkgerrors.New(pkgerrors.CodeValidation, "report window exceeds 366 days")
	}
	return window, nil
}

func tipRatio(tip, total int64) decimal.Decimal {
	if total <= 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(tip).DivRound(decimal.NewFromInt(total), ratioPlaces)
}
