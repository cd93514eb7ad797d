package booking

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"barbershop/backend/internal/domain"
)

type fakeAPI struct {
	mu      sync.Mutex
	booked  []domain.BookingRequest
	appts   []domain.Appointment
	listErr error
}

func (f *fakeAPI) Slots(_ context.Context, _ string) ([]domain.Slot, error) {
	return nil, nil
}

func (f *fakeAPI) Book(_ context.Context, req domain.BookingRequest) (domain.BookingResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.booked = append(f.booked, req)
	appt := domain.Appointment{ID: "appt-1", Name: req.Name, Phone: req.Phone, Service: req.Service,
		StartTime: req.StartTime, EndTime: req.EndTime, Status: domain.StatusPending}
	f.appts = []domain.Appointment{appt}
	return domain.BookingResponse{Success: true, Appointment: &appt, DepositLink: "https://wa.me/973"}, nil
}

func (f *fakeAPI) Appointments(_ context.Context, _ string) ([]domain.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]domain.Appointment(nil), f.appts...), nil
}

func (f *fakeAPI) set(fn func(*fakeAPI)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

var catalog = []domain.Service{
	{Name: "Haircut", Price: decimal.RequireFromString("1"), Duration: 30},
	{Name: "Beard trim", Price: decimal.RequireFromString("1")},
	{Name: "Hair dye", Price: decimal.RequireFromString("1.5"), Duration: 60},
}

var slotStart = time.Date(2024, 6, 1, 11, 0, 0, 0, time.UTC)

func bookedWizard(t *testing.T, api *fakeAPI, every time.Duration) *Wizard {
	t.Helper()
	w := New(api, catalog, every)
	for _, name := range []string{"Haircut", "Hair dye"} {
		if err := w.ToggleService(name); err != nil {
			t.Fatalf("toggle %s: %v", name, err)
		}
	}
	if err := w.ChooseServices(); err != nil {
		t.Fatalf("choose services: %v", err)
	}
	if err := w.PickSlot(domain.Slot{Time: "11:00", Start: slotStart}); err != nil {
		t.Fatalf("pick slot: %v", err)
	}
	w.SetContact(" Ali ", "٣٣٠٠ ١١٢٢")
	if _, err := w.Submit(context.Background()); err != nil {
		t.Fatalf("submit: %v", err)
	}
	return w
}

func TestSubmitBuildsBookingFromSelection(t *testing.T) {
	api := &fakeAPI{}
	w := bookedWizard(t, api, time.Hour)

	if w.Step() != Pending {
		t.Fatalf("expected pending, got %s", w.Step())
	}
	req := api.booked[0]
	if req.Service != "Haircut + Hair dye" || !req.Price.Equal(decimal.RequireFromString("2.5")) {
		t.Fatalf("unexpected request %+v", req)
	}
	if !req.EndTime.Equal(slotStart.Add(90*time.Minute)) {
		t.Fatalf("expected 90 minute booking, got %s", req.EndTime.Sub(req.StartTime))
	}
	if req.Name != "Ali" || req.Phone != "33001122" {
		t.Fatalf("expected normalised contact, got %q %q", req.Name, req.Phone)
	}
	if w.DepositLink() == "" {
		t.Fatalf("expected deposit link")
	}
}

func TestSubmitValidation(t *testing.T) {
	w := New(&fakeAPI{}, catalog, 0)
	if err := w.ChooseServices(); !errors.Is(err, ErrNoServices) {
		t.Fatalf("expected ErrNoServices, got %v", err)
	}
	if err := w.ToggleService("Manicure"); !errors.Is(err, ErrUnknownService) {
		t.Fatalf("expected ErrUnknownService, got %v", err)
	}

	_ = w.ToggleService("Beard trim")
	if w.Duration() != 30*time.Minute {
		t.Fatalf("expected default duration, got %s", w.Duration())
	}
	_ = w.ChooseServices()
	if _, err := w.Submit(context.Background()); !errors.Is(err, ErrNoSlot) {
		t.Fatalf("expected ErrNoSlot, got %v", err)
	}
	if err := w.PickSlot(domain.Slot{Start: slotStart, Busy: true}); !errors.Is(err, ErrSlotUnavailable) {
		t.Fatalf("expected busy slot rejected, got %v", err)
	}
	if err := w.PickSlot(domain.Slot{Start: slotStart, Past: true}); !errors.Is(err, ErrSlotUnavailable) {
		t.Fatalf("expected past slot rejected, got %v", err)
	}
	_ = w.PickSlot(domain.Slot{Start: slotStart})
	w.SetContact("Ali", "")
	if _, err := w.Submit(context.Background()); !errors.Is(err, ErrMissingContact) {
		t.Fatalf("expected ErrMissingContact, got %v", err)
	}

	w.Back()
	w.Back()
	if w.Step() != SelectingServices {
		t.Fatalf("expected back to services, got %s", w.Step())
	}
	_ = w.ToggleService("Beard trim")
	if len(w.Selected()) != 0 {
		t.Fatalf("expected toggle to deselect")
	}
}

func TestWatchConfirmsThenCancels(t *testing.T) {
	api := &fakeAPI{}
	w := bookedWizard(t, api, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Watch(ctx) }()

	api.set(func(f *fakeAPI) { f.appts[0].Status = domain.StatusConfirmed })
	deadline := time.Now().Add(time.Second)
	for w.Step() != Confirmed {
		if time.Now().After(deadline) {
			t.Fatalf("expected confirmed, still %s", w.Step())
		}
		time.Sleep(2 * time.Millisecond)
	}

	api.set(func(f *fakeAPI) { f.appts = nil })
	if err := <-done; err != nil {
		t.Fatalf("watch: %v", err)
	}
	if w.Step() != Cancelled {
		t.Fatalf("expected cancelled, got %s", w.Step())
	}
}

func TestWatchIgnoresErrorsAndStopsWithContext(t *testing.T) {
	api := &fakeAPI{}
	w := bookedWizard(t, api, 5*time.Millisecond)
	api.set(func(f *fakeAPI) { f.listErr = errors.New("offline") })

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if err := w.Watch(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline, got %v", err)
	}
	if w.Step() != Pending {
		t.Fatalf("expected still pending, got %s", w.Step())
	}
}

func TestWatchRequiresBooking(t *testing.T) {
	if err := New(&fakeAPI{}, catalog, 0).Watch(context.Background()); !errors.Is(err, ErrWrongStep) {
		t.Fatalf("expected ErrWrongStep, got %v", err)
	}
}
