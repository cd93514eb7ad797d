package pos

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"barbershop/backend/internal/client"
	"barbershop/backend/internal/domain"
	"barbershop/backend/internal/httpapi"
	"barbershop/backend/internal/ledger"
	"barbershop/backend/internal/service"
	"barbershop/backend/internal/store/memory"
)

type fakeBackend struct {
	state     domain.State
	saves     int
	cancelled []domain.AppointmentRef
}

func (f *fakeBackend) State() domain.State { return f.state.Clone() }

func (f *fakeBackend) Update(fn func(*domain.State)) { fn(&f.state) }

func (f *fakeBackend) Save(context.Context) error {
	f.saves++
	return nil
}

func (f *fakeBackend) Cancel(_ context.Context, ref domain.AppointmentRef) error {
	f.cancelled = append(f.cancelled, ref)
	return nil
}

func dec(v string) decimal.Decimal { return decimal.RequireFromString(v) }

var fixedNow = time.Date(2024, 6, 1, 18, 30, 0, 0, time.UTC)

func newRegister(b Backend) *Register {
	return NewRegister(b, time.UTC, func() time.Time { return fixedNow })
}

func TestConfirmSaleSumsCartAndClearsIt(t *testing.T) {
	backend := &fakeBackend{}
	reg := newRegister(backend)
	reg.AddToCart(domain.Service{Name: "Haircut", Price: dec("1.000")})
	reg.AddToCart(domain.Service{Name: "Hair wash", Price: dec("0.500")})
	reg.SetStaff("barber-1")

	sale, err := reg.ConfirmSale(context.Background(), "Benefit")
	if err != nil {
		t.Fatalf("confirm sale: %v", err)
	}
	if !sale.Total.Equal(dec("1.5")) || sale.Items != "Haircut, Hair wash" {
		t.Fatalf("unexpected sale %+v", sale)
	}
	if sale.PaymentMethod != domain.PaymentBenefit || sale.Role != "barber-1" || sale.Date != "2024-06-01" || sale.Time != "18:30:00" {
		t.Fatalf("unexpected sale metadata %+v", sale)
	}
	if len(reg.Cart()) != 0 || backend.saves != 1 || len(backend.state.History) != 1 {
		t.Fatalf("expected cart cleared and one save, got cart=%d saves=%d", len(reg.Cart()), backend.saves)
	}
}

func TestConfirmSaleRejectsEmptyCartAndUnknownMethod(t *testing.T) {
	backend := &fakeBackend{}
	reg := newRegister(backend)

	if _, err := reg.ConfirmSale(context.Background(), "cash"); !errors.Is(err, ErrEmptyCart) {
		t.Fatalf("expected ErrEmptyCart, got %v", err)
	}
	reg.AddToCart(domain.Service{Name: "Haircut", Price: dec("1")})
	if _, err := reg.ConfirmSale(context.Background(), "card"); !errors.Is(err, ErrUnknownPaymentMethod) {
		t.Fatalf("expected ErrUnknownPaymentMethod, got %v", err)
	}
	if len(reg.Cart()) != 1 || backend.saves != 0 {
		t.Fatalf("expected cart untouched after rejection")
	}
}

func TestManagedDateBacksDateEntries(t *testing.T) {
	backend := &fakeBackend{}
	reg := newRegister(backend)

	if err := reg.SetManagedDate("01/05/2024"); !errors.Is(err, ErrInvalidDate) {
		t.Fatalf("expected ErrInvalidDate, got %v", err)
	}
	if err := reg.SetManagedDate("2024-05-28"); err != nil {
		t.Fatalf("set managed date: %v", err)
	}
	expense, err := reg.AddExpense(context.Background(), dec("2.250"), " towels ")
	if err != nil {
		t.Fatalf("add expense: %v", err)
	}
	if expense.Date != "2024-05-28" || expense.Note != "towels" {
		t.Fatalf("unexpected expense %+v", expense)
	}
	_ = reg.SetManagedDate("")
	if reg.Date() != "2024-06-01" {
		t.Fatalf("expected today, got %s", reg.Date())
	}
	if _, err := reg.AddExpense(context.Background(), dec("0"), "nothing"); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}

func TestCompleteAppointmentUsesStoredOrSuppliedPrice(t *testing.T) {
	backend := &fakeBackend{state: domain.State{Appointments: []domain.Appointment{
		{ID: "a1", Service: "Haircut + Beard trim", Price: dec("2")},
		{ID: "a2", Service: "Hair dye"},
	}}}
	reg := newRegister(backend)

	sale, err := reg.CompleteAppointment(context.Background(), backend.state.Appointments[0], nil, "")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if !sale.Total.Equal(dec("2")) || sale.Items != "Booking: Haircut + Beard trim" || sale.PaymentMethod != domain.PaymentCash {
		t.Fatalf("unexpected sale %+v", sale)
	}

	unpriced := backend.state.Appointments[0]
	if unpriced.ID != "a2" {
		t.Fatalf("expected completed appointment removed, got %+v", backend.state.Appointments)
	}
	if _, err := reg.CompleteAppointment(context.Background(), unpriced, nil, "cash"); !errors.Is(err, ErrPriceRequired) {
		t.Fatalf("expected ErrPriceRequired, got %v", err)
	}
	price := dec("1.5")
	if _, err := reg.CompleteAppointment(context.Background(), unpriced, &price, "cash"); err != nil {
		t.Fatalf("complete with price: %v", err)
	}
	if len(backend.state.Appointments) != 0 || len(backend.cancelled) != 2 || backend.cancelled[1].ID != "a2" {
		t.Fatalf("expected both appointments cancelled remotely, got %+v", backend.cancelled)
	}
}

func TestCatalogAndFixedExpenseEdits(t *testing.T) {
	backend := &fakeBackend{}
	reg := newRegister(backend)
	ctx := context.Background()

	if err := reg.AddService(ctx, domain.Service{Name: " ", Price: dec("1")}); !errors.Is(err, ErrInvalidService) {
		t.Fatalf("expected ErrInvalidService, got %v", err)
	}
	_ = reg.AddService(ctx, domain.Service{Name: "Haircut", Price: dec("1")})
	_ = reg.AddService(ctx, domain.Service{Name: "Styling", Price: dec("1")})
	if err := reg.UpdateService(ctx, 1, domain.Service{Name: "Styling", Price: dec("1.5"), Duration: 45}); err != nil {
		t.Fatalf("update service: %v", err)
	}
	if err := reg.DeleteService(ctx, 0); err != nil {
		t.Fatalf("delete service: %v", err)
	}
	if err := reg.DeleteService(ctx, 5); !errors.Is(err, ErrNoSuchItem) {
		t.Fatalf("expected ErrNoSuchItem, got %v", err)
	}
	if len(backend.state.Services) != 1 || backend.state.Services[0].Minutes() != 45 {
		t.Fatalf("unexpected catalog %+v", backend.state.Services)
	}

	fixed, err := reg.AddFixedExpense(ctx, "Rent", dec("150"))
	if err != nil {
		t.Fatalf("add fixed: %v", err)
	}
	if err := reg.RemoveFixedExpense(ctx, fixed.ID); err != nil {
		t.Fatalf("remove fixed: %v", err)
	}
	if err := reg.RemoveFixedExpense(ctx, fixed.ID); !errors.Is(err, ErrNoSuchItem) {
		t.Fatalf("expected ErrNoSuchItem, got %v", err)
	}
}

func TestRegisterThroughSyncClient(t *testing.T) {
	now := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	svc := service.New(memory.New(), nil, nil, nil, service.Options{Now: func() time.Time { return now }})
	auth := httpapi.NewAuthManager("test-secret-test-secret-test-secret", time.Hour, "Barber#2024", "")
	srv := httptest.NewServer(httpapi.New(svc, auth, "*").Handler())
	defer srv.Close()

	ctx := context.Background()
	c := client.New(srv.URL, client.Options{})
	if _, err := c.Login(ctx, domain.RoleEmployee, ""); err != nil {
		t.Fatalf("login: %v", err)
	}
	start := time.Date(2024, 6, 1, 15, 0, 0, 0, time.UTC)
	if _, err := c.Book(ctx, domain.BookingRequest{Name: "Ali", Phone: "33001122", Service: "Haircut", Price: dec("1"), StartTime: start, EndTime: start.Add(30 * time.Minute)}); err != nil {
		t.Fatalf("book: %v", err)
	}
	if err := c.Refresh(ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	reg := NewRegister(c, time.UTC, func() time.Time { return now })
	reg.AddToCart(domain.Service{Name: "Beard trim", Price: dec("1")})
	if _, err := reg.ConfirmSale(ctx, "cash"); err != nil {
		t.Fatalf("confirm sale: %v", err)
	}
	if _, err := reg.CompleteAppointment(ctx, c.State().Appointments[0], nil, "benefit"); err != nil {
		t.Fatalf("complete: %v", err)
	}

	state, err := svc.State(ctx)
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	if len(state.Appointments) != 0 {
		t.Fatalf("expected appointment removed on the server, got %+v", state.Appointments)
	}
	stats := ledger.StatsForDate(state, "2024-06-01")
	if stats.Count != 2 || !stats.Cash.Equal(dec("1")) || !stats.Benefit.Equal(dec("1")) {
		t.Fatalf("unexpected stats %+v", stats)
	}
}
