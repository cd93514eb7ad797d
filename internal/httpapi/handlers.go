package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"barbershop/backend/internal/domain"
)

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	if !a.loginLimiter.Allow(clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, errors.New("too many login attempts"))
		return
	}

	var req domain.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.auth.Login(req)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleData(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	state, err := a.service.State(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (a *API) handleSave(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	var patch domain.StatePatch
	if err := decodeLenient(r, &patch); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := a.service.Save(r.Context(), patch); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, domain.SuccessResponse{Success: true})
}

// queryDate reads a calendar date from the first present key. Full instants
// are accepted and mapped to the shop's date.
func (a *API) queryDate(r *http.Request, keys ...string) (string, error) {
	for _, key := range keys {
		raw := strings.TrimSpace(r.URL.Query().Get(key))
		if raw == "" {
			continue
		}
		if _, err := time.Parse(domain.DateLayout, raw); err == nil {
			return raw, nil
		}
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return "", errors.New(key + " must be YYYY-MM-DD or an RFC3339 instant")
		}
		return ts.In(a.service.Location()).Format(domain.DateLayout), nil
	}
	return a.service.Today(), nil
}

func (a *API) handleBusy(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	date, err := a.queryDate(r, "start", "date")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	intervals, err := a.service.Busy(r.Context(), date)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, intervals)
}

func (a *API) handleSlots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	date, err := a.queryDate(r, "date")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	slots, err := a.service.Slots(r.Context(), date)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, slots)
}

func (a *API) handleBook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	if !a.bookLimiter.Allow("book:" + clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, errors.New("too many booking attempts"))
		return
	}

	var req domain.BookingRequest
	if err := decodeLenient(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	resp, err := a.service.Book(r.Context(), req)
	if err != nil {
		writeUnsuccessful(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleConfirm(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	var ref domain.AppointmentRef
	if err := decodeJSON(r, &ref); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	resp, err := a.service.Confirm(r.Context(), ref)
	if err != nil {
		writeUnsuccessful(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleCancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	var ref domain.AppointmentRef
	if err := decodeJSON(r, &ref); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := a.service.Cancel(r.Context(), ref); err != nil {
		writeUnsuccessful(w, err)
		return
	}
	writeJSON(w, http.StatusOK, domain.SuccessResponse{Success: true})
}

func (a *API) handleAppointments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	appts, err := a.service.AppointmentsByPhone(r.Context(), r.URL.Query().Get("phone"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, appts)
}

func (a *API) handleCompleteAppointment(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	var req domain.CompleteAppointmentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	sale, err := a.service.CompleteAppointment(r.Context(), req)
	if err != nil {
		writeUnsuccessful(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "sale": sale})
}

func (a *API) handleSales(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	var req domain.SaleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	sale, err := a.service.RecordSale(r.Context(), req)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, sale)
}

func (a *API) handleSaleActions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		writeMethodNotAllowed(w)
		return
	}
	id, err := strconv.ParseInt(pathID(r, "/api/sales/"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New("numeric sale id required"))
		return
	}
	if err := a.service.DeleteSale(r.Context(), id); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, domain.SuccessResponse{Success: true})
}

func (a *API) handleExpenses(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	var req domain.ExpenseRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	expense, err := a.service.AddExpense(r.Context(), req)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, expense)
}

func (a *API) handleExpenseActions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		writeMethodNotAllowed(w)
		return
	}
	id, err := strconv.ParseInt(pathID(r, "/api/expenses/"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New("numeric expense id required"))
		return
	}
	if err := a.service.DeleteExpense(r.Context(), id); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, domain.SuccessResponse{Success: true})
}

func (a *API) handleFixedExpenses(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	var req domain.FixedExpenseRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	fixed, err := a.service.AddFixedExpense(r.Context(), req)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, fixed)
}

func (a *API) handleFixedExpenseActions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		writeMethodNotAllowed(w)
		return
	}
	id, err := strconv.ParseInt(pathID(r, "/api/fixed-expenses/"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New("numeric fixed expense id required"))
		return
	}
	if err := a.service.RemoveFixedExpense(r.Context(), id); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, domain.SuccessResponse{Success: true})
}

func (a *API) handleServices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		writeMethodNotAllowed(w)
		return
	}
	var services []domain.Service
	if err := decodeJSON(r, &services); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	saved, err := a.service.ReplaceServices(r.Context(), services)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

func (a *API) handleBarbers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	var barber domain.Barber
	if err := decodeJSON(r, &barber); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	saved, err := a.service.UpsertBarber(r.Context(), barber)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

func (a *API) handleBarberActions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		writeMethodNotAllowed(w)
		return
	}
	id := pathID(r, "/api/barbers/")
	if id == "" {
		writeError(w, http.StatusBadRequest, errors.New("barber id required"))
		return
	}
	if err := a.service.DeleteBarber(r.Context(), id); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, domain.SuccessResponse{Success: true})
}

func (a *API) handleSettings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		writeMethodNotAllowed(w)
		return
	}
	var settings domain.Settings
	if err := decodeJSON(r, &settings); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	saved, err := a.service.UpdateSettings(r.Context(), settings)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

func (a *API) handleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	if err := a.service.ResetLedger(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, domain.SuccessResponse{Success: true})
}
