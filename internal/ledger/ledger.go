// Package ledger derives financial figures from the sales history. Nothing
// here is stored.
package ledger

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"barbershop/backend/internal/domain"
)

// ItemSeparator joins service names inside Sale.Items.
const ItemSeparator = ", "

// StaffRole resolves the role behind a sale: roster ids are looked up in the
// current roster, anything else is taken as the role itself.
func StaffRole(identity string, barbers []domain.Barber) string {
	for _, b := range barbers {
		if b.ID == identity {
			return b.Role
		}
	}
	return identity
}

// PaymentMethodOf treats legacy sales without a method as cash.
func PaymentMethodOf(sale domain.Sale) string {
	if sale.PaymentMethod == "" {
		return domain.PaymentCash
	}
	return sale.PaymentMethod
}

// NormalizePaymentMethod accepts the two methods the till offers; empty means cash.
func NormalizePaymentMethod(method string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(method)) {
	case "", domain.PaymentCash:
		return domain.PaymentCash, true
	case domain.PaymentBenefit:
		return domain.PaymentBenefit, true
	}
	return "", false
}

func StatsForDate(state domain.State, date string) domain.DailyStats {
	stats := domain.DailyStats{
		Date:     date,
		Owner:    decimal.Zero,
		Employee: decimal.Zero,
		Total:    decimal.Zero,
		Expenses: decimal.Zero,
		Cash:     decimal.Zero,
		Benefit:  decimal.Zero,
	}

	for _, sale := range state.History {
		if sale.Date != date {
			continue
		}
		stats.Count++
		stats.Total = stats.Total.Add(sale.Total)
		if StaffRole(sale.Role, state.Barbers) == domain.RoleOwner {
			stats.Owner = stats.Owner.Add(sale.Total)
		} else {
			stats.Employee = stats.Employee.Add(sale.Total)
		}
		if PaymentMethodOf(sale) == domain.PaymentBenefit {
			stats.Benefit = stats.Benefit.Add(sale.Total)
		} else {
			stats.Cash = stats.Cash.Add(sale.Total)
		}
	}

	for _, expense := range state.Expenses {
		if expense.Date == date {
			stats.Expenses = stats.Expenses.Add(expense.Amount)
		}
	}

	stats.Net = stats.Total.Sub(stats.Expenses)
	return stats
}

// MonthSummary charges every fixed expense in full for the month.
func MonthSummary(state domain.State, month string) domain.MonthSummary {
	summary := domain.MonthSummary{
		Month:    month,
		Sales:    decimal.Zero,
		Expenses: decimal.Zero,
		Fixed:    decimal.Zero,
		Days:     []domain.DailyStats{},
	}

	days := map[string]struct{}{}
	for _, sale := range state.History {
		if strings.HasPrefix(sale.Date, month) {
			summary.Sales = summary.Sales.Add(sale.Total)
			days[sale.Date] = struct{}{}
		}
	}
	for _, expense := range state.Expenses {
		if strings.HasPrefix(expense.Date, month) {
			summary.Expenses = summary.Expenses.Add(expense.Amount)
			days[expense.Date] = struct{}{}
		}
	}
	for _, fixed := range state.FixedExpenses {
		summary.Fixed = summary.Fixed.Add(fixed.Amount)
	}
	summary.Net = summary.Sales.Sub(summary.Expenses).Sub(summary.Fixed)

	dates := make([]string, 0, len(days))
	for d := range days {
		dates = append(dates, d)
	}
	sort.Strings(dates)
	for _, d := range dates {
		summary.Days = append(summary.Days, StatsForDate(state, d))
	}
	return summary
}

// TopServices counts how often each service name was sold. Booking sales
// ("Booking: A + B") count under their full label.
func TopServices(state domain.State, limit int) []domain.ServiceCount {
	counts := map[string]int{}
	total := 0
	for _, sale := range state.History {
		for _, name := range strings.Split(sale.Items, ItemSeparator) {
			name = strings.TrimSpace(name)
			if name == "" {
				continue
			}
			counts[name]++
			total++
		}
	}

	out := make([]domain.ServiceCount, 0, len(counts))
	for name, count := range counts {
		out = append(out, domain.ServiceCount{Name: name, Count: count, SharePercent: count * 100 / total})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Name < out[j].Name
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// MonthOf returns the "YYYY-MM" month of t in loc.
func MonthOf(t time.Time, loc *time.Location) string {
	if loc != nil {
		t = t.In(loc)
	}
	return t.Format(domain.MonthLayout)
}
