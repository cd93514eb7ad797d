package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"barbershop/backend/internal/domain"
	"barbershop/backend/internal/events"
	"barbershop/backend/internal/ledger"
	"barbershop/backend/internal/store"
	"barbershop/backend/internal/xid"
)

// BookingItemPrefix marks sales that came from a completed appointment.
const BookingItemPrefix = "Booking: "

func normalizePaymentMethod(method string) (string, error) {
	normalized, ok := ledger.NormalizePaymentMethod(method)
	if !ok {
		return "", ErrUnknownPaymentMethod
	}
	return normalized, nil
}

// staffIdentity falls back to the caller's role when no staff member is named.
func staffIdentity(ctx context.Context, role string) string {
	if role = strings.TrimSpace(role); role != "" {
		return role
	}
	if actor, ok := ActorFromContext(ctx); ok && actor.Role != "" {
		return actor.Role
	}
	return domain.RoleEmployee
}

func (s *Service) newSale(ctx context.Context, id int64, date, role string, total decimal.Decimal, items, method string) domain.Sale {
	now := s.now().In(s.loc)
	if id == 0 {
		id = xid.Numeric(now)
	}
	if date == "" {
		date = now.Format(domain.DateLayout)
	}
	return domain.Sale{
		ID:            id,
		Time:          now.Format("15:04:05"),
		Date:          date,
		Role:          staffIdentity(ctx, role),
		Total:         total,
		Items:         items,
		PaymentMethod: method,
	}
}

func (s *Service) RecordSale(ctx context.Context, req domain.SaleRequest) (domain.Sale, error) {
	items := make([]string, 0, len(req.Items))
	for _, item := range req.Items {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	if len(items) == 0 {
		return domain.Sale{}, ErrEmptySale
	}
	if req.Total.IsNegative() {
		return domain.Sale{}, store.ErrInvalidInput
	}
	if req.Date != "" && !validDate(req.Date) {
		return domain.Sale{}, store.ErrInvalidInput
	}
	method, err := normalizePaymentMethod(req.PaymentMethod)
	if err != nil {
		return domain.Sale{}, err
	}

	sale := s.newSale(ctx, req.ID, req.Date, req.Role, req.Total, strings.Join(items, ledger.ItemSeparator), method)
	if err := s.repo.UpsertSale(ctx, sale); err != nil {
		return domain.Sale{}, err
	}
	return sale, nil
}

func (s *Service) DeleteSale(ctx context.Context, id int64) error {
	return s.repo.DeleteSale(ctx, id)
}

// CompleteAppointment turns a booking into a sale and removes it from the
// schedule. The stored price is used unless the request overrides it.
func (s *Service) CompleteAppointment(ctx context.Context, req domain.CompleteAppointmentRequest) (domain.Sale, error) {
	method, err := normalizePaymentMethod(req.PaymentMethod)
	if err != nil {
		return domain.Sale{}, err
	}

	appt, sale, err := s.completeLocal(ctx, req, method)
	if err != nil {
		return domain.Sale{}, err
	}

	s.forgetExternally(ctx, appt)
	s.publish(ctx, events.AppointmentCompleted, appt)
	return sale, nil
}

// completeLocal removes the appointment before charging it, so a failed step
// never leaves both the booking and its sale behind. If the sale cannot be
// stored the appointment is put back.
func (s *Service) completeLocal(ctx context.Context, req domain.CompleteAppointmentRequest, method string) (domain.Appointment, domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	appts, err := s.repo.ListAppointments(ctx)
	if err != nil {
		return domain.Appointment{}, domain.Sale{}, err
	}
	appt, err := resolve(appts, domain.AppointmentRef{ID: req.ID})
	if err != nil {
		return domain.Appointment{}, domain.Sale{}, err
	}

	price := appt.Price
	if req.Price != nil {
		price = *req.Price
	}
	if !price.IsPositive() {
		return domain.Appointment{}, domain.Sale{}, ErrPriceRequired
	}

	if err := s.repo.DeleteAppointment(ctx, appt.ID); err != nil {
		return domain.Appointment{}, domain.Sale{}, fmt.Errorf("remove completed appointment: %w", err)
	}
	sale := s.newSale(ctx, 0, "", req.Role, price, BookingItemPrefix+appt.Service, method)
	if err := s.repo.UpsertSale(ctx, sale); err != nil {
		if _, restoreErr := s.repo.CreateAppointment(ctx, appt); restoreErr != nil {
			log.Error().Err(restoreErr).Str("appointment_id", appt.ID).Msg("completed appointment could not be restored")
		}
		return domain.Appointment{}, domain.Sale{}, fmt.Errorf("record booking sale: %w", err)
	}
	return appt, sale, nil
}

func (s *Service) AddExpense(ctx context.Context, req domain.ExpenseRequest) (domain.Expense, error) {
	if !req.Amount.IsPositive() {
		return domain.Expense{}, store.ErrInvalidInput
	}
	if req.Date == "" {
		req.Date = s.Today()
	} else if !validDate(req.Date) {
		return domain.Expense{}, store.ErrInvalidInput
	}

	expense := domain.Expense{
		ID:     xid.Numeric(s.now()),
		Date:   req.Date,
		Amount: req.Amount,
		Note:   strings.TrimSpace(req.Note),
	}
	if err := s.repo.UpsertExpense(ctx, expense); err != nil {
		return domain.Expense{}, err
	}
	return expense, nil
}

func (s *Service) DeleteExpense(ctx context.Context, id int64) error {
	return s.repo.DeleteExpense(ctx, id)
}

func (s *Service) AddFixedExpense(ctx context.Context, req domain.FixedExpenseRequest) (domain.FixedExpense, error) {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" || !req.Amount.IsPositive() {
		return domain.FixedExpense{}, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.repo.LoadState(ctx)
	if err != nil {
		return domain.FixedExpense{}, err
	}
	fixed := domain.FixedExpense{ID: xid.Numeric(s.now()), Name: req.Name, Amount: req.Amount}
	list := append(state.FixedExpenses, fixed)
	if err := s.repo.ApplyPatch(ctx, domain.StatePatch{FixedExpenses: &list}); err != nil {
		return domain.FixedExpense{}, err
	}
	return fixed, nil
}

func (s *Service) RemoveFixedExpense(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.repo.LoadState(ctx)
	if err != nil {
		return err
	}
	kept := make([]domain.FixedExpense, 0, len(state.FixedExpenses))
	for _, f := range state.FixedExpenses {
		if f.ID != id {
			kept = append(kept, f)
		}
	}
	if len(kept) == len(state.FixedExpenses) {
		return store.ErrNotFound
	}
	return s.repo.ApplyPatch(ctx, domain.StatePatch{FixedExpenses: &kept})
}

func (s *Service) ReplaceServices(ctx context.Context, services []domain.Service) ([]domain.Service, error) {
	seen := make(map[string]struct{}, len(services))
	cleaned := make([]domain.Service, 0, len(services))
	for _, svc := range services {
		svc.Name = strings.TrimSpace(svc.Name)
		if svc.Name == "" || svc.Price.IsNegative() || svc.Duration < 0 {
			return nil, store.ErrInvalidInput
		}
		if _, dup := seen[svc.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate service %q", store.ErrInvalidInput, svc.Name)
		}
		seen[svc.Name] = struct{}{}
		cleaned = append(cleaned, svc)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.repo.ApplyPatch(ctx, domain.StatePatch{Services: &cleaned}); err != nil {
		return nil, err
	}
	return cleaned, nil
}

func (s *Service) UpsertBarber(ctx context.Context, barber domain.Barber) (domain.Barber, error) {
	barber.Name = strings.TrimSpace(barber.Name)
	if barber.Name == "" || (barber.Role != domain.RoleOwner && barber.Role != domain.RoleEmployee) {
		return domain.Barber{}, store.ErrInvalidInput
	}
	if barber.ID == "" {
		barber.ID = xid.New("barber")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.repo.LoadState(ctx)
	if err != nil {
		return domain.Barber{}, err
	}
	roster := append([]domain.Barber(nil), state.Barbers...)
	replaced := false
	for i := range roster {
		if roster[i].ID == barber.ID {
			roster[i] = barber
			replaced = true
		}
	}
	if !replaced {
		roster = append(roster, barber)
	}
	if err := s.repo.ApplyPatch(ctx, domain.StatePatch{Barbers: &roster}); err != nil {
		return domain.Barber{}, err
	}
	return barber, nil
}

func (s *Service) DeleteBarber(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.repo.LoadState(ctx)
	if err != nil {
		return err
	}
	kept := make([]domain.Barber, 0, len(state.Barbers))
	for _, b := range state.Barbers {
		if b.ID != id {
			kept = append(kept, b)
		}
	}
	if len(kept) == len(state.Barbers) {
		return store.ErrNotFound
	}
	return s.repo.ApplyPatch(ctx, domain.StatePatch{Barbers: &kept})
}

func (s *Service) UpdateSettings(ctx context.Context, settings domain.Settings) (domain.Settings, error) {
	if err := validateSettings(settings); err != nil {
		return domain.Settings{}, err
	}
	settings = settings.WithDefaults()

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.repo.ApplyPatch(ctx, domain.StatePatch{Settings: &settings}); err != nil {
		return domain.Settings{}, err
	}
	return settings, nil
}
