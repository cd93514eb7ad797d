package service

import (
	"context"
	"time"

	"barbershop/backend/internal/domain"
	"barbershop/backend/internal/ledger"
	"barbershop/backend/internal/store"
)

func validDate(date string) bool {
	_, err := time.Parse(domain.DateLayout, date)
	return err == nil
}

func (s *Service) DailyStats(ctx context.Context, date string) (domain.DailyStats, error) {
	if date == "" {
		date = s.Today()
	} else if !validDate(date) {
		return domain.DailyStats{}, store.ErrInvalidInput
	}
	state, err := s.repo.LoadState(ctx)
	if err != nil {
		return domain.DailyStats{}, err
	}
	return ledger.StatsForDate(state, date), nil
}

// DailySales lists the sales of date with their resolved staff role, for the
// printable report.
func (s *Service) DailySales(ctx context.Context, date string) ([]domain.Sale, domain.DailyStats, error) {
	if date == "" {
		date = s.Today()
	} else if !validDate(date) {
		return nil, domain.DailyStats{}, store.ErrInvalidInput
	}
	state, err := s.repo.LoadState(ctx)
	if err != nil {
		return nil, domain.DailyStats{}, err
	}

	sales := make([]domain.Sale, 0)
	for _, sale := range state.History {
		if sale.Date == date {
			sale.Role = ledger.StaffRole(sale.Role, state.Barbers)
			sale.PaymentMethod = ledger.PaymentMethodOf(sale)
			sales = append(sales, sale)
		}
	}
	return sales, ledger.StatsForDate(state, date), nil
}

func (s *Service) MonthSummary(ctx context.Context, month string) (domain.MonthSummary, error) {
	if month == "" {
		month = ledger.MonthOf(s.now(), s.loc)
	} else if _, err := time.Parse(domain.MonthLayout, month); err != nil {
		return domain.MonthSummary{}, store.ErrInvalidInput
	}
	state, err := s.repo.LoadState(ctx)
	if err != nil {
		return domain.MonthSummary{}, err
	}
	return ledger.MonthSummary(state, month), nil
}

func (s *Service) TopServices(ctx context.Context, limit int) ([]domain.ServiceCount, error) {
	state, err := s.repo.LoadState(ctx)
	if err != nil {
		return nil, err
	}
	return ledger.TopServices(state, limit), nil
}
