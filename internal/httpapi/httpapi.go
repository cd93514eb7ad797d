package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"barbershop/backend/internal/domain"
	"barbershop/backend/internal/service"
	"barbershop/backend/internal/store"
	"barbershop/backend/internal/xid"
)

var staffRoles = []string{domain.RoleOwner, domain.RoleEmployee}

type API struct {
	service       *service.Service
	auth          *AuthManager
	allowedOrigin string
	loginLimiter  *attemptLimiter
	bookLimiter   *attemptLimiter
}

func New(svc *service.Service, auth *AuthManager, allowedOrigin string) *API {
	if allowedOrigin == "" {
		allowedOrigin = "*"
	}
	return &API{
		service:       svc,
		auth:          auth,
		allowedOrigin: allowedOrigin,
		loginLimiter:  newAttemptLimiter(5, time.Minute),
		bookLimiter:   newAttemptLimiter(20, time.Minute),
	}
}

type attemptLimiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	entries map[string][]time.Time
}

func newAttemptLimiter(max int, window time.Duration) *attemptLimiter {
	if max < 1 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &attemptLimiter{max: max, window: window, entries: make(map[string][]time.Time)}
}

func (l *attemptLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	now := time.Now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	history := l.entries[key]
	kept := make([]time.Time, 0, len(history)+1)
	for _, ts := range history {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.max {
		l.entries[key] = kept
		return false
	}
	kept = append(kept, now)
	l.entries[key] = kept
	return true
}

func clientKey(r *http.Request) string {
	host := strings.TrimSpace(r.RemoteAddr)
	if host == "" {
		return "unknown"
	}
	if addr, err := netip.ParseAddrPort(host); err == nil {
		return addr.Addr().String()
	}
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		return host[:idx]
	}
	return host
}

func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", a.handleHealth)
	mux.HandleFunc("/api/auth/login", a.handleLogin)

	mux.HandleFunc("/api/data", a.handleData)
	mux.HandleFunc("/api/save", a.requireAuth(a.handleSave, staffRoles...))

	mux.HandleFunc("/api/calendar/busy", a.handleBusy)
	mux.HandleFunc("/api/calendar/slots", a.handleSlots)
	mux.HandleFunc("/api/calendar/book", a.handleBook)
	mux.HandleFunc("/api/calendar/confirm", a.requireAuth(a.handleConfirm, staffRoles...))
	mux.HandleFunc("/api/calendar/cancel", a.handleCancel)
	mux.HandleFunc("/api/appointments", a.handleAppointments)
	mux.HandleFunc("/api/appointments/complete", a.requireAuth(a.handleCompleteAppointment, staffRoles...))

	mux.HandleFunc("/api/sales", a.requireAuth(a.handleSales, staffRoles...))
	mux.HandleFunc("/api/sales/", a.requireAuth(a.handleSaleActions, staffRoles...))
	mux.HandleFunc("/api/expenses", a.requireAuth(a.handleExpenses, staffRoles...))
	mux.HandleFunc("/api/expenses/", a.requireAuth(a.handleExpenseActions, staffRoles...))
	mux.HandleFunc("/api/fixed-expenses", a.requireAuth(a.handleFixedExpenses, domain.RoleOwner))
	mux.HandleFunc("/api/fixed-expenses/", a.requireAuth(a.handleFixedExpenseActions, domain.RoleOwner))
	mux.HandleFunc("/api/services", a.requireAuth(a.handleServices, domain.RoleOwner))
	mux.HandleFunc("/api/barbers", a.requireAuth(a.handleBarbers, domain.RoleOwner))
	mux.HandleFunc("/api/barbers/", a.requireAuth(a.handleBarberActions, domain.RoleOwner))
	mux.HandleFunc("/api/settings", a.requireAuth(a.handleSettings, domain.RoleOwner))
	mux.HandleFunc("/api/reset", a.requireAuth(a.handleReset, domain.RoleOwner))

	mux.HandleFunc("/api/stats/daily", a.requireAuth(a.handleDailyStats, domain.RoleOwner))
	mux.HandleFunc("/api/reports/daily", a.requireAuth(a.handleDailyReport, domain.RoleOwner))
	mux.HandleFunc("/api/reports/month", a.requireAuth(a.handleMonthReport, domain.RoleOwner))
	mux.HandleFunc("/api/reports/top-services", a.requireAuth(a.handleTopServices, domain.RoleOwner))

	return a.withMiddleware(mux)
}

func (a *API) requireAuth(next http.HandlerFunc, roles ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authorization := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
			writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}

		token := strings.TrimSpace(authorization[len("Bearer "):])
		actor, err := a.auth.ParseToken(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err)
			return
		}

		if len(roles) > 0 && !isRoleAllowed(actor.Role, roles) {
			writeError(w, http.StatusForbidden, errors.New("forbidden role"))
			return
		}

		next(w, r.WithContext(service.WithActor(r.Context(), actor)))
	}
}

func isRoleAllowed(role string, allowed []string) bool {
	for _, allow := range allowed {
		if role == allow {
			return true
		}
	}
	return false
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (a *API) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimSpace(r.Header.Get("X-Request-Id"))
		if requestID == "" || len(requestID) > 128 {
			requestID = xid.New("req")
		}

		w.Header().Set("X-Request-Id", requestID)
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-Id")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if r.Method == http.MethodPost || r.Method == http.MethodPut {
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		startedAt := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		var event *zerolog.Event
		switch {
		case rec.status >= 500:
			event = log.Error()
		case rec.status >= 400:
			event = log.Warn()
		default:
			event = log.Info()
		}
		event.Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Str("client_ip", clientKey(r)).
			Dur("latency", time.Since(startedAt)).
			Msg("request processed")
	})
}

// statusFor maps domain errors onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrSlotUnavailable):
		return http.StatusConflict
	case errors.Is(err, store.ErrInvalidInput),
		errors.Is(err, service.ErrPriceRequired),
		errors.Is(err, service.ErrUnknownPaymentMethod),
		errors.Is(err, service.ErrEmptySale):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return err
	}
	return nil
}

// decodeLenient accepts documents written by older clients, which may carry
// fields this server does not know.
func decodeLenient(r *http.Request, dest any) error {
	return json.NewDecoder(r.Body).Decode(dest)
}

func parsePositiveLimit(raw string, fallback int, max int) int {
	limit := fallback
	trimmed := strings.TrimSpace(raw)
	if trimmed != "" {
		if parsed, err := strconv.Atoi(trimmed); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if max > 0 && limit > max {
		return max
	}
	return limit
}

// pathID returns the trailing path segment after prefix.
func pathID(r *http.Request, prefix string) string {
	return strings.TrimSpace(strings.Trim(strings.TrimPrefix(r.URL.Path, prefix), "/"))
}

func writeMethodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}

func writeError(w http.ResponseWriter, status int, err error) {
	// 5xx details stay in the log.
	msg := err.Error()
	if status >= 500 {
		log.Error().Err(err).Int("status", status).Msg("internal error")
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}

// writeUnsuccessful answers confirm/cancel style calls whose target is gone.
func writeUnsuccessful(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= 500 {
		writeError(w, status, err)
		return
	}
	writeJSON(w, status, map[string]any{
		"success": false,
		"error":   err.Error(),
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
