// Package booking drives the customer's self-booking flow: pick services,
// pick a slot, leave contact details, then wait for the shop to confirm.
package booking

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"barbershop/backend/internal/domain"
	"barbershop/backend/internal/notify"
)

type Step int

const (
	SelectingServices Step = iota
	SelectingSlot
	EnteringContact
	Pending
	Confirmed
	Cancelled
)

func (s Step) String() string {
	switch s {
	case SelectingServices:
		return "selecting_services"
	case SelectingSlot:
		return "selecting_slot"
	case EnteringContact:
		return "entering_contact"
	case Pending:
		return "pending"
	case Confirmed:
		return "confirmed"
	case Cancelled:
		return "cancelled"
	}
	return "unknown"
}

// ServiceSeparator joins the names of a multi-service booking.
const ServiceSeparator = " + "

const DefaultWatchInterval = 5 * time.Second

var (
	ErrNoServices      = errors.New("select at least one service")
	ErrUnknownService  = errors.New("unknown service")
	ErrSlotUnavailable = errors.New("slot is past or busy")
	ErrNoSlot          = errors.New("select a time slot")
	ErrMissingContact  = errors.New("name and phone are required")
	ErrWrongStep       = errors.New("not allowed at this step")
)

// API is the part of the server the wizard talks to.
type API interface {
	Slots(ctx context.Context, date string) ([]domain.Slot, error)
	Book(ctx context.Context, req domain.BookingRequest) (domain.BookingResponse, error)
	Appointments(ctx context.Context, phone string) ([]domain.Appointment, error)
}

type Wizard struct {
	api           API
	catalog       []domain.Service
	watchInterval time.Duration

	mu          sync.Mutex
	step        Step
	selected    []domain.Service
	slot        *domain.Slot
	name        string
	phone       string
	appointment *domain.Appointment
	depositLink string
}

func New(api API, catalog []domain.Service, watchInterval time.Duration) *Wizard {
	if watchInterval <= 0 {
		watchInterval = DefaultWatchInterval
	}
	return &Wizard{
		api:           api,
		catalog:       append([]domain.Service(nil), catalog...),
		watchInterval: watchInterval,
	}
}

func (w *Wizard) Step() Step {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.step
}

// ToggleService adds a catalog service to the selection, or removes it when
// already selected.
func (w *Wizard) ToggleService(name string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.step != SelectingServices {
		return ErrWrongStep
	}

	for i, svc := range w.selected {
		if svc.Name == name {
			w.selected = append(w.selected[:i], w.selected[i+1:]...)
			return nil
		}
	}
	for _, svc := range w.catalog {
		if svc.Name == name {
			w.selected = append(w.selected, svc)
			return nil
		}
	}
	return ErrUnknownService
}

func (w *Wizard) Selected() []domain.Service {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]domain.Service(nil), w.selected...)
}

// Duration is the booked length: the sum of the selected services.
func (w *Wizard) Duration() time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.duration()
}

func (w *Wizard) duration() time.Duration {
	minutes := 0
	for _, svc := range w.selected {
		minutes += svc.Minutes()
	}
	return time.Duration(minutes) * time.Minute
}

func (w *Wizard) Total() decimal.Decimal {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.total()
}

func (w *Wizard) total() decimal.Decimal {
	total := decimal.Zero
	for _, svc := range w.selected {
		total = total.Add(svc.Price)
	}
	return total
}

func (w *Wizard) ChooseServices() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.step != SelectingServices {
		return ErrWrongStep
	}
	if len(w.selected) == 0 {
		return ErrNoServices
	}
	w.step = SelectingSlot
	return nil
}

func (w *Wizard) Slots(ctx context.Context, date string) ([]domain.Slot, error) {
	return w.api.Slots(ctx, date)
}

func (w *Wizard) PickSlot(slot domain.Slot) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.step != SelectingSlot && w.step != EnteringContact {
		return ErrWrongStep
	}
	if !slot.Available() {
		return ErrSlotUnavailable
	}
	w.slot = &slot
	w.step = EnteringContact
	return nil
}

// Back returns to the previous selection step.
func (w *Wizard) Back() {
	w.mu.Lock()
	defer w.mu.Unlock()
	switch w.step {
	case SelectingSlot:
		w.step = SelectingServices
	case EnteringContact:
		w.step = SelectingSlot
	}
}

func (w *Wizard) SetContact(name, phone string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.name = strings.TrimSpace(name)
	w.phone = notify.NormalizePhone(phone)
}

// Submit books the chosen slot and moves the wizard to Pending.
func (w *Wizard) Submit(ctx context.Context) (domain.BookingResponse, error) {
	w.mu.Lock()
	if w.step != EnteringContact && w.step != SelectingSlot {
		w.mu.Unlock()
		return domain.BookingResponse{}, ErrWrongStep
	}
	if len(w.selected) == 0 {
		w.mu.Unlock()
		return domain.BookingResponse{}, ErrNoServices
	}
	if w.slot == nil {
		w.mu.Unlock()
		return domain.BookingResponse{}, ErrNoSlot
	}
	if !w.slot.Available() {
		w.mu.Unlock()
		return domain.BookingResponse{}, ErrSlotUnavailable
	}
	if w.name == "" || w.phone == "" {
		w.mu.Unlock()
		return domain.BookingResponse{}, ErrMissingContact
	}

	names := make([]string, 0, len(w.selected))
	for _, svc := range w.selected {
		names = append(names, svc.Name)
	}
	req := domain.BookingRequest{
		Name:      w.name,
		Phone:     w.phone,
		Service:   strings.Join(names, ServiceSeparator),
		Price:     w.total(),
		StartTime: w.slot.Start,
		EndTime:   w.slot.Start.Add(w.duration()),
	}
	w.mu.Unlock()

	resp, err := w.api.Book(ctx, req)
	if err != nil {
		return domain.BookingResponse{}, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.appointment = resp.Appointment
	w.depositLink = resp.DepositLink
	w.step = Pending
	return resp, nil
}

func (w *Wizard) Appointment() *domain.Appointment {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.appointment == nil {
		return nil
	}
	appt := *w.appointment
	return &appt
}

func (w *Wizard) DepositLink() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.depositLink
}

// Watch polls the customer's appointments until the booking disappears, which
// moves the wizard to Cancelled, or ctx ends. A confirmed booking moves it to
// Confirmed and keeps watching.
func (w *Wizard) Watch(ctx context.Context) error {
	w.mu.Lock()
	if w.appointment == nil || (w.step != Pending && w.step != Confirmed) {
		w.mu.Unlock()
		return ErrWrongStep
	}
	id, phone := w.appointment.ID, w.appointment.Phone
	w.mu.Unlock()

	ticker := time.NewTicker(w.watchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		appts, err := w.api.Appointments(ctx, phone)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Warn().Err(err).Str("appointment_id", id).Msg("appointment status check failed")
			continue
		}
		if w.observe(id, appts) == Cancelled {
			return nil
		}
	}
}

func (w *Wizard) observe(id string, appts []domain.Appointment) Step {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, appt := range appts {
		if appt.ID != id {
			continue
		}
		copied := appt
		w.appointment = &copied
		if appt.Status == domain.StatusConfirmed {
			w.step = Confirmed
		}
		return w.step
	}
	w.step = Cancelled
	return w.step
}
