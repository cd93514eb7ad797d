package store

import (
	"context"
	"errors"
	"time"

	"barbershop/backend/internal/domain"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
)

// Repository persists the shop document. Backends differ in storage layout but
// share the merge rules of ApplyPatch: sales and expenses are upserted by id,
// every other collection that is present replaces the stored one.
type Repository interface {
	LoadState(ctx context.Context) (domain.State, error)
	ApplyPatch(ctx context.Context, patch domain.StatePatch) error

	UpsertSale(ctx context.Context, sale domain.Sale) error
	DeleteSale(ctx context.Context, id int64) error
	UpsertExpense(ctx context.Context, expense domain.Expense) error
	DeleteExpense(ctx context.Context, id int64) error
	ResetLedger(ctx context.Context) error

	ListAppointments(ctx context.Context) ([]domain.Appointment, error)
	CreateAppointment(ctx context.Context, appt domain.Appointment) (*domain.Appointment, error)
	UpdateAppointmentStatus(ctx context.Context, id string, status string) (*domain.Appointment, error)
	DeleteAppointment(ctx context.Context, id string) error
	DeletePendingBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// MergeSales applies upsert-or-append semantics: incoming rows replace stored
// rows with the same id and are appended otherwise. Stored order is kept.
func MergeSales(existing []domain.Sale, incoming []domain.Sale) []domain.Sale {
	merged := append([]domain.Sale(nil), existing...)
	index := make(map[int64]int, len(merged))
	for i, sale := range merged {
		index[sale.ID] = i
	}
	for _, sale := range incoming {
		if pos, ok := index[sale.ID]; ok {
			merged[pos] = sale
			continue
		}
		index[sale.ID] = len(merged)
		merged = append(merged, sale)
	}
	return merged
}

func MergeExpenses(existing []domain.Expense, incoming []domain.Expense) []domain.Expense {
	merged := append([]domain.Expense(nil), existing...)
	index := make(map[int64]int, len(merged))
	for i, expense := range merged {
		index[expense.ID] = i
	}
	for _, expense := range incoming {
		if pos, ok := index[expense.ID]; ok {
			merged[pos] = expense
			continue
		}
		index[expense.ID] = len(merged)
		merged = append(merged, expense)
	}
	return merged
}

// ApplyPatchToState is the in-process rendition of the merge rules, shared by
// the document-shaped backends.
func ApplyPatchToState(state domain.State, patch domain.StatePatch) domain.State {
	if patch.History != nil {
		state.History = MergeSales(state.History, *patch.History)
	}
	if patch.Expenses != nil {
		state.Expenses = MergeExpenses(state.Expenses, *patch.Expenses)
	}
	if patch.FixedExpenses != nil {
		state.FixedExpenses = append([]domain.FixedExpense(nil), (*patch.FixedExpenses)...)
	}
	if patch.Services != nil {
		state.Services = append([]domain.Service(nil), (*patch.Services)...)
	}
	if patch.Barbers != nil {
		state.Barbers = append([]domain.Barber(nil), (*patch.Barbers)...)
	}
	if patch.Appointments != nil {
		state.Appointments = append([]domain.Appointment(nil), (*patch.Appointments)...)
	}
	if patch.Settings != nil {
		state.Settings = *patch.Settings
	}
	return state
}
