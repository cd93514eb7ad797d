package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"barbershop/backend/internal/domain"
	"barbershop/backend/internal/service"
	"barbershop/backend/internal/store/memory"
)

const testOwnerPassword = "Barber#2024"

var testNow = time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)

// newTestAPI builds a full API with an in-memory store, real AuthManager and
// real Service so handler tests exercise the complete request path.
func newTestAPI(t *testing.T) *API {
	t.Helper()

	repo := memory.New()
	svc := service.New(repo, nil, nil, nil, service.Options{
		Location: time.UTC,
		Now:      func() time.Time { return testNow },
	})
	auth := NewAuthManager("test-secret-test-secret-test-secret", time.Hour, testOwnerPassword, "")

	return New(svc, auth, "*")
}

func doJSON(t *testing.T, h http.Handler, method, path, token string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	var body *bytes.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func loginAs(t *testing.T, h http.Handler, role, password string) string {
	t.Helper()
	rec := doJSON(t, h, http.MethodPost, "/api/auth/login", "", domain.LoginRequest{Role: role, Password: password})
	if rec.Code != http.StatusOK {
		t.Fatalf("%s login failed: %d %s", role, rec.Code, rec.Body.String())
	}
	var resp domain.LoginResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode login: %v", err)
	}
	return resp.AccessToken
}

func TestHandleHealth(t *testing.T) {
	handler := newTestAPI(t).Handler()

	rec := doJSON(t, handler, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["ok"] != true {
		t.Fatalf("expected ok:true, got %v", body["ok"])
	}
}

func TestHandleLogin_InvalidCredentials(t *testing.T) {
	handler := newTestAPI(t).Handler()

	rec := doJSON(t, handler, http.MethodPost, "/api/auth/login", "", domain.LoginRequest{Role: "owner", Password: "nope"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestDataServesDefaultCatalogAndCamelCaseKeys(t *testing.T) {
	handler := newTestAPI(t).Handler()

	rec := doJSON(t, handler, http.MethodGet, "/api/data", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]json.RawMessage
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	for _, key := range []string{"history", "expenses", "fixedExpenses", "services", "barbers", "appointments", "settings"} {
		if _, ok := body[key]; !ok {
			t.Fatalf("expected key %q", key)
		}
	}
	var services []domain.Service
	_ = json.Unmarshal(body["services"], &services)
	if len(services) != len(domain.DefaultServices()) {
		t.Fatalf("expected default catalog, got %d services", len(services))
	}
	if !strings.Contains(string(body["services"]), `"price":1`) {
		t.Fatalf("expected prices as JSON numbers, got %s", body["services"])
	}
}

func TestSaveRequiresStaffToken(t *testing.T) {
	handler := newTestAPI(t).Handler()

	rec := doJSON(t, handler, http.MethodPost, "/api/save", "", map[string]any{"history": []any{}})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}

	token := loginAs(t, handler, domain.RoleEmployee, "")
	payload := map[string]any{
		"history": []map[string]any{{"id": 1717228800000, "time": "10:00:00", "date": "2024-06-01", "role": "employee", "total": 1.5, "items": "Haircut, Hair wash"}},
		"legacy":  true,
	}
	rec = doJSON(t, handler, http.MethodPost, "/api/save", token, payload)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d %s", rec.Code, rec.Body.String())
	}

	var state domain.State
	_ = json.NewDecoder(doJSON(t, handler, http.MethodGet, "/api/data", "", nil).Body).Decode(&state)
	if len(state.History) != 1 || state.History[0].Items != "Haircut, Hair wash" {
		t.Fatalf("expected saved sale, got %+v", state.History)
	}
}

func TestBookingFlowThroughAPI(t *testing.T) {
	handler := newTestAPI(t).Handler()
	start := time.Date(2024, 6, 1, 11, 0, 0, 0, time.UTC)
	booking := map[string]any{
		"name": "Ali", "phone": "33001122", "service": "Haircut", "price": 1,
		"startTime": start.Format(time.RFC3339), "endTime": start.Add(30 * time.Minute).Format(time.RFC3339),
	}

	rec := doJSON(t, handler, http.MethodPost, "/api/calendar/book", "", booking)
	if rec.Code != http.StatusOK {
		t.Fatalf("book: %d %s", rec.Code, rec.Body.String())
	}
	var booked domain.BookingResponse
	_ = json.NewDecoder(rec.Body).Decode(&booked)
	if !booked.Success || booked.Appointment == nil || !strings.HasPrefix(booked.DepositLink, "https://wa.me/") {
		t.Fatalf("unexpected booking response %+v", booked)
	}

	dup := doJSON(t, handler, http.MethodPost, "/api/calendar/book", "", booking)
	var dupResp domain.BookingResponse
	_ = json.NewDecoder(dup.Body).Decode(&dupResp)
	if !dupResp.Duplicate {
		t.Fatalf("expected duplicate booking response, got %+v", dupResp)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/calendar/busy?start=2024-06-01", "", nil)
	var busy []domain.BusyInterval
	_ = json.NewDecoder(rec.Body).Decode(&busy)
	if len(busy) != 1 || !busy[0].Start.Equal(start) {
		t.Fatalf("expected one busy interval, got %+v", busy)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/calendar/slots?date=2024-06-01", "", nil)
	var slots []domain.Slot
	_ = json.NewDecoder(rec.Body).Decode(&slots)
	for _, s := range slots {
		if s.Time == "11:00" && !s.Busy {
			t.Fatalf("expected 11:00 busy")
		}
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/calendar/confirm", "", map[string]any{"id": booked.Appointment.ID})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected confirm to require staff, got %d", rec.Code)
	}
	staff := loginAs(t, handler, domain.RoleEmployee, "")
	rec = doJSON(t, handler, http.MethodPost, "/api/calendar/confirm", staff, map[string]any{"name": "Ali", "startTime": start.Format(time.RFC3339)})
	if rec.Code != http.StatusOK {
		t.Fatalf("confirm: %d %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/appointments?phone=33001122", "", nil)
	var mine []domain.Appointment
	_ = json.NewDecoder(rec.Body).Decode(&mine)
	if len(mine) != 1 || mine[0].Status != domain.StatusConfirmed {
		t.Fatalf("expected confirmed appointment, got %+v", mine)
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/calendar/cancel", "", map[string]any{"phone": "33001122", "index": 0})
	if rec.Code != http.StatusOK {
		t.Fatalf("cancel: %d %s", rec.Code, rec.Body.String())
	}
	rec = doJSON(t, handler, http.MethodPost, "/api/calendar/cancel", "", map[string]any{"id": booked.Appointment.ID})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for cancelled appointment, got %d", rec.Code)
	}
	var gone map[string]any
	_ = json.NewDecoder(rec.Body).Decode(&gone)
	if gone["success"] != false {
		t.Fatalf("expected success:false, got %v", gone)
	}
}

func TestBookConflictReturns409(t *testing.T) {
	handler := newTestAPI(t).Handler()
	start := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	first := map[string]any{"name": "A", "phone": "1", "service": "Haircut", "startTime": start, "endTime": start.Add(time.Hour)}
	second := map[string]any{"name": "B", "phone": "2", "service": "Haircut", "startTime": start.Add(30 * time.Minute), "endTime": start.Add(time.Hour)}

	if rec := doJSON(t, handler, http.MethodPost, "/api/calendar/book", "", first); rec.Code != http.StatusOK {
		t.Fatalf("first booking: %d", rec.Code)
	}
	if rec := doJSON(t, handler, http.MethodPost, "/api/calendar/book", "", second); rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestOwnerOnlyEndpoints(t *testing.T) {
	handler := newTestAPI(t).Handler()
	employee := loginAs(t, handler, domain.RoleEmployee, "")
	owner := loginAs(t, handler, domain.RoleOwner, testOwnerPassword)

	if rec := doJSON(t, handler, http.MethodGet, "/api/stats/daily?date=2024-06-01", employee, nil); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for employee, got %d", rec.Code)
	}

	rec := doJSON(t, handler, http.MethodPost, "/api/sales", employee, domain.SaleRequest{Date: "2024-06-01", Items: []string{"Haircut", "Hair wash"}, PaymentMethod: "benefit", Total: mustDecimal("1.5")})
	if rec.Code != http.StatusCreated {
		t.Fatalf("record sale: %d %s", rec.Code, rec.Body.String())
	}
	rec = doJSON(t, handler, http.MethodPost, "/api/expenses", employee, domain.ExpenseRequest{Date: "2024-06-01", Amount: mustDecimal("0.5"), Note: "towels"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("add expense: %d %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/stats/daily?date=2024-06-01", owner, nil)
	var stats domain.DailyStats
	_ = json.NewDecoder(rec.Body).Decode(&stats)
	if !stats.Net.Equal(mustDecimal("1")) || !stats.Benefit.Equal(mustDecimal("1.5")) {
		t.Fatalf("unexpected stats %+v", stats)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/reports/daily?date=2024-06-01&format=csv", owner, nil)
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Fatalf("expected csv, got %q", ct)
	}
	if !strings.Contains(rec.Body.String(), "summary,net,1.000") || !strings.Contains(rec.Body.String(), "Haircut, Hair wash") {
		t.Fatalf("unexpected csv body %s", rec.Body.String())
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/reports/daily?date=2024-06-01&format=html", owner, nil)
	if !strings.Contains(rec.Body.String(), "<h2>Daily Report 2024-06-01</h2>") {
		t.Fatalf("unexpected html %s", rec.Body.String())
	}

	if rec := doJSON(t, handler, http.MethodPut, "/api/settings", owner, domain.Settings{OpenTime: "9", CloseTime: "21:00"}); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad clock, got %d", rec.Code)
	}
	if rec := doJSON(t, handler, http.MethodPost, "/api/reset", owner, nil); rec.Code != http.StatusOK {
		t.Fatalf("reset: %d", rec.Code)
	}
	rec = doJSON(t, handler, http.MethodGet, "/api/reports/month?month=2024-06", owner, nil)
	var month domain.MonthSummary
	_ = json.NewDecoder(rec.Body).Decode(&month)
	if !month.Sales.IsZero() {
		t.Fatalf("expected empty ledger after reset, got %+v", month)
	}
}

func TestDeleteUnknownSaleReturns404(t *testing.T) {
	handler := newTestAPI(t).Handler()
	token := loginAs(t, handler, domain.RoleEmployee, "")

	if rec := doJSON(t, handler, http.MethodDelete, "/api/sales/42", token, nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if rec := doJSON(t, handler, http.MethodDelete, "/api/sales/abc", token, nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}
