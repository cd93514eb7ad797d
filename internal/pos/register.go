// Package pos is the till: a cart of services, the staff member on duty and an
// optional back-dated ledger day. Changes are applied to the synced document
// and pushed with a save.
package pos

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"barbershop/backend/internal/domain"
	"barbershop/backend/internal/ledger"
	"barbershop/backend/internal/xid"
)

// BookingItemPrefix marks sales that came from a completed appointment.
const BookingItemPrefix = "Booking: "

var (
	ErrEmptyCart            = errors.New("cart is empty")
	ErrUnknownPaymentMethod = errors.New("unknown payment method")
	ErrPriceRequired        = errors.New("price is required for this appointment")
	ErrInvalidDate          = errors.New("date must be YYYY-MM-DD")
	ErrInvalidAmount        = errors.New("amount must be positive")
	ErrInvalidService       = errors.New("service needs a name and a non-negative price")
	ErrNoSuchItem           = errors.New("no such item")
)

// Backend is the synced shop document.
type Backend interface {
	State() domain.State
	Update(fn func(*domain.State))
	Save(ctx context.Context) error
	Cancel(ctx context.Context, ref domain.AppointmentRef) error
}

type Register struct {
	backend Backend
	loc     *time.Location
	now     func() time.Time

	mu          sync.Mutex
	cart        []domain.Service
	managedDate string
	staff       string
}

func NewRegister(backend Backend, loc *time.Location, now func() time.Time) *Register {
	if loc == nil {
		loc = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	return &Register{backend: backend, loc: loc, now: now, staff: domain.RoleEmployee}
}

func (r *Register) AddToCart(svc domain.Service) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cart = append(r.cart, svc)
}

func (r *Register) RemoveFromCart(index int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if index < 0 || index >= len(r.cart) {
		return ErrNoSuchItem
	}
	r.cart = append(r.cart[:index], r.cart[index+1:]...)
	return nil
}

func (r *Register) ClearCart() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cart = nil
}

func (r *Register) Cart() []domain.Service {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Service(nil), r.cart...)
}

func (r *Register) CartTotal() decimal.Decimal {
	r.mu.Lock()
	defer r.mu.Unlock()
	total := decimal.Zero
	for _, svc := range r.cart {
		total = total.Add(svc.Price)
	}
	return total
}

// SetManagedDate books later entries on date instead of today. An empty date
// goes back to today.
func (r *Register) SetManagedDate(date string) error {
	date = strings.TrimSpace(date)
	if date != "" {
		if _, err := time.Parse(domain.DateLayout, date); err != nil {
			return ErrInvalidDate
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.managedDate = date
	return nil
}

// Date is the ledger day new entries are booked on.
func (r *Register) Date() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.date()
}

func (r *Register) date() string {
	if r.managedDate != "" {
		return r.managedDate
	}
	return r.now().In(r.loc).Format(domain.DateLayout)
}

// SetStaff records who is working the till: a roster id or a plain role.
func (r *Register) SetStaff(identity string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if identity = strings.TrimSpace(identity); identity == "" {
		identity = domain.RoleEmployee
	}
	r.staff = identity
}

func (r *Register) Staff() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.staff
}

func (r *Register) newSale(total decimal.Decimal, items, method string) domain.Sale {
	now := r.now().In(r.loc)
	return domain.Sale{
		ID:            xid.Numeric(now),
		Time:          now.Format("15:04:05"),
		Date:          r.date(),
		Role:          r.staff,
		Total:         total,
		Items:         items,
		PaymentMethod: method,
	}
}

// ConfirmSale turns the cart into a sale, clears it and saves. The sale is
// kept locally even when the save fails.
func (r *Register) ConfirmSale(ctx context.Context, method string) (domain.Sale, error) {
	method, ok := ledger.NormalizePaymentMethod(method)
	if !ok {
		return domain.Sale{}, ErrUnknownPaymentMethod
	}

	r.mu.Lock()
	if len(r.cart) == 0 {
		r.mu.Unlock()
		return domain.Sale{}, ErrEmptyCart
	}
	names := make([]string, 0, len(r.cart))
	total := decimal.Zero
	for _, svc := range r.cart {
		names = append(names, svc.Name)
		total = total.Add(svc.Price)
	}
	sale := r.newSale(total, strings.Join(names, ledger.ItemSeparator), method)
	r.cart = nil
	r.mu.Unlock()

	r.backend.Update(func(s *domain.State) {
		s.History = append(s.History, sale)
	})
	return sale, r.backend.Save(ctx)
}

// CompleteAppointment charges a served appointment. The stored price is used
// unless it is zero, in which case price must be supplied.
func (r *Register) CompleteAppointment(ctx context.Context, appt domain.Appointment, price *decimal.Decimal, method string) (domain.Sale, error) {
	method, ok := ledger.NormalizePaymentMethod(method)
	if !ok {
		return domain.Sale{}, ErrUnknownPaymentMethod
	}
	total := appt.Price
	if total.IsZero() {
		if price == nil || price.IsNegative() {
			return domain.Sale{}, ErrPriceRequired
		}
		total = *price
	}

	r.mu.Lock()
	sale := r.newSale(total, BookingItemPrefix+appt.Service, method)
	r.mu.Unlock()

	r.backend.Update(func(s *domain.State) {
		s.History = append(s.History, sale)
		kept := s.Appointments[:0]
		for _, a := range s.Appointments {
			if a.ID != appt.ID {
				kept = append(kept, a)
			}
		}
		s.Appointments = kept
	})
	if err := r.backend.Save(ctx); err != nil {
		return sale, err
	}

	ref := domain.AppointmentRef{ID: appt.ID}
	if appt.ID == "" {
		start := appt.StartTime
		ref = domain.AppointmentRef{Name: appt.Name, StartTime: &start}
	}
	if err := r.backend.Cancel(ctx, ref); err != nil {
		log.Warn().Err(err).Str("appointment_id", appt.ID).Msg("completed appointment could not be removed remotely")
	}
	return sale, nil
}

func (r *Register) AddExpense(ctx context.Context, amount decimal.Decimal, note string) (domain.Expense, error) {
	if !amount.IsPositive() {
		return domain.Expense{}, ErrInvalidAmount
	}
	r.mu.Lock()
	expense := domain.Expense{
		ID:     xid.Numeric(r.now()),
		Date:   r.date(),
		Amount: amount,
		Note:   strings.TrimSpace(note),
	}
	r.mu.Unlock()

	r.backend.Update(func(s *domain.State) {
		s.Expenses = append(s.Expenses, expense)
	})
	return expense, r.backend.Save(ctx)
}

func (r *Register) AddFixedExpense(ctx context.Context, name string, amount decimal.Decimal) (domain.FixedExpense, error) {
	name = strings.TrimSpace(name)
	if name == "" || !amount.IsPositive() {
		return domain.FixedExpense{}, ErrInvalidAmount
	}
	fixed := domain.FixedExpense{ID: xid.Numeric(r.now()), Name: name, Amount: amount}
	r.backend.Update(func(s *domain.State) {
		s.FixedExpenses = append(s.FixedExpenses, fixed)
	})
	return fixed, r.backend.Save(ctx)
}

func (r *Register) RemoveFixedExpense(ctx context.Context, id int64) error {
	found := false
	r.backend.Update(func(s *domain.State) {
		kept := make([]domain.FixedExpense, 0, len(s.FixedExpenses))
		for _, f := range s.FixedExpenses {
			if f.ID == id {
				found = true
				continue
			}
			kept = append(kept, f)
		}
		s.FixedExpenses = kept
	})
	if !found {
		return ErrNoSuchItem
	}
	return r.backend.Save(ctx)
}

func validService(svc domain.Service) (domain.Service, error) {
	svc.Name = strings.TrimSpace(svc.Name)
	if svc.Name == "" || svc.Price.IsNegative() || svc.Duration < 0 {
		return domain.Service{}, ErrInvalidService
	}
	return svc, nil
}

func (r *Register) AddService(ctx context.Context, svc domain.Service) error {
	svc, err := validService(svc)
	if err != nil {
		return err
	}
	r.backend.Update(func(s *domain.State) {
		s.Services = append(s.Services, svc)
	})
	return r.backend.Save(ctx)
}

func (r *Register) UpdateService(ctx context.Context, index int, svc domain.Service) error {
	svc, err := validService(svc)
	if err != nil {
		return err
	}
	found := false
	r.backend.Update(func(s *domain.State) {
		if index >= 0 && index < len(s.Services) {
			s.Services[index] = svc
			found = true
		}
	})
	if !found {
		return ErrNoSuchItem
	}
	return r.backend.Save(ctx)
}

func (r *Register) DeleteService(ctx context.Context, index int) error {
	found := false
	r.backend.Update(func(s *domain.State) {
		if index >= 0 && index < len(s.Services) {
			s.Services = append(s.Services[:index], s.Services[index+1:]...)
			found = true
		}
	})
	if !found {
		return ErrNoSuchItem
	}
	return r.backend.Save(ctx)
}
