// Package client keeps a local copy of the shop document and synchronises it
// with the server by polling. Saves are coalesced so at most one is in flight.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"barbershop/backend/internal/domain"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrSlotUnavailable = errors.New("slot is no longer available")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrOffline         = errors.New("server unreachable, showing local copy")
)

const DefaultRefreshInterval = 20 * time.Second

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

func (e *APIError) Unwrap() error {
	switch e.Status {
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict:
		return ErrSlotUnavailable
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrUnauthorized
	}
	return nil
}

type Options struct {
	HTTPClient *http.Client
	// MirrorPath is where the last known state is kept; empty disables the mirror.
	MirrorPath string
	Token      string
}

type Client struct {
	baseURL string
	http    *http.Client
	mirror  string

	mu          sync.Mutex
	token       string
	state       domain.State
	offline     bool
	saving      bool
	savePending bool
	// generation changes on every local edit and save; a refresh that
	// started under an older generation is stale.
	generation uint64
}

func New(baseURL string, opts Options) *Client {
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    opts.HTTPClient,
		mirror:  opts.MirrorPath,
		token:   opts.Token,
		state:   domain.State{}.Normalized(),
	}
}

// State returns a copy of the local document.
func (c *Client) State() domain.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Clone()
}

// Update mutates the local document. Call Save to push the change.
func (c *Client) Update(fn func(*domain.State)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(&c.state)
	c.generation++
}

// Offline reports whether the last refresh fell back to the mirror.
func (c *Client) Offline() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.offline
}

func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

func (c *Client) Login(ctx context.Context, role, password string) (domain.LoginResponse, error) {
	var resp domain.LoginResponse
	if err := c.do(ctx, http.MethodPost, "/api/auth/login", domain.LoginRequest{Role: role, Password: password}, &resp); err != nil {
		return domain.LoginResponse{}, err
	}
	c.SetToken(resp.AccessToken)
	return resp, nil
}

// Save pushes the local document. A call made while a save is in flight
// returns at once; every such call is served by a single follow-up save
// issued after the in-flight one completes.
func (c *Client) Save(ctx context.Context) error {
	c.mu.Lock()
	if c.saving {
		c.savePending = true
		c.mu.Unlock()
		return nil
	}
	c.saving = true
	c.generation++
	c.mu.Unlock()

	for {
		c.mu.Lock()
		snapshot := c.state.Clone()
		c.mu.Unlock()

		err := c.push(ctx, snapshot)
		if err == nil {
			c.writeMirror(snapshot)
		}

		c.mu.Lock()
		if !c.savePending || ctx.Err() != nil {
			c.saving = false
			c.savePending = false
			c.mu.Unlock()
			return err
		}
		c.savePending = false
		c.mu.Unlock()

		if err != nil {
			log.Warn().Err(err).Msg("save failed, retrying with deferred changes")
		}
	}
}

// push sends every collection except appointments, which only change through
// the booking endpoints so a stale copy never drops a fresh booking.
func (c *Client) push(ctx context.Context, state domain.State) error {
	patch := domain.PatchFromState(state)
	patch.Appointments = nil
	return c.do(ctx, http.MethodPost, "/api/save", patch, nil)
}

// readGeneration returns the current generation, or false while a save is in
// flight or pending.
func (c *Client) readGeneration() (uint64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.saving || c.savePending {
		return 0, false
	}
	return c.generation, true
}

// superseded reports whether local edits or saves happened since gen.
// Callers hold c.mu.
func (c *Client) superseded(gen uint64) bool {
	return c.saving || c.savePending || c.generation != gen
}

// Refresh replaces the local document with the server's. It does nothing while
// a save is in flight or pending, and its result is dropped when the local
// document changed while the read was in flight. When the server cannot be
// reached the mirror is loaded without appointments and the client is marked
// offline.
func (c *Client) Refresh(ctx context.Context) error {
	gen, ok := c.readGeneration()
	if !ok {
		return nil
	}

	var state domain.State
	err := c.do(ctx, http.MethodGet, "/api/data", nil, &state)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) || ctx.Err() != nil {
			return err
		}
		return c.goOffline(gen, err)
	}

	c.mu.Lock()
	if c.superseded(gen) {
		c.mu.Unlock()
		return nil
	}
	c.state = state.Normalized()
	c.offline = false
	c.mu.Unlock()

	c.writeMirror(state)
	return nil
}

func (c *Client) goOffline(gen uint64, cause error) error {
	state, err := c.readMirror()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrOffline, cause)
	}
	state.Appointments = []domain.Appointment{}

	c.mu.Lock()
	if !c.superseded(gen) {
		c.state = state.Normalized()
	}
	c.offline = true
	c.mu.Unlock()

	log.Warn().Err(cause).Msg("server unreachable, using local mirror")
	return fmt.Errorf("%w: %v", ErrOffline, cause)
}

// Run refreshes on every tick until ctx ends.
func (c *Client) Run(ctx context.Context, every time.Duration) {
	if every <= 0 {
		every = DefaultRefreshInterval
	}
	if err := c.Refresh(ctx); err != nil && ctx.Err() == nil {
		log.Warn().Err(err).Msg("refresh failed")
	}

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.Refresh(ctx); err != nil && ctx.Err() == nil {
				log.Warn().Err(err).Msg("refresh failed")
			}
		}
	}
}

func (c *Client) Slots(ctx context.Context, date string) ([]domain.Slot, error) {
	var slots []domain.Slot
	err := c.do(ctx, http.MethodGet, "/api/calendar/slots?date="+url.QueryEscape(date), nil, &slots)
	return slots, err
}

func (c *Client) Book(ctx context.Context, req domain.BookingRequest) (domain.BookingResponse, error) {
	var resp domain.BookingResponse
	err := c.do(ctx, http.MethodPost, "/api/calendar/book", req, &resp)
	return resp, err
}

func (c *Client) Confirm(ctx context.Context, ref domain.AppointmentRef) (domain.ConfirmResponse, error) {
	var resp domain.ConfirmResponse
	err := c.do(ctx, http.MethodPost, "/api/calendar/confirm", ref, &resp)
	return resp, err
}

func (c *Client) Cancel(ctx context.Context, ref domain.AppointmentRef) error {
	return c.do(ctx, http.MethodPost, "/api/calendar/cancel", ref, nil)
}

func (c *Client) Appointments(ctx context.Context, phone string) ([]domain.Appointment, error) {
	var appts []domain.Appointment
	err := c.do(ctx, http.MethodGet, "/api/appointments?phone="+url.QueryEscape(phone), nil, &appts)
	return appts, err
}

func (c *Client) do(ctx context.Context, method, path string, payload any, dest any) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.mu.Lock()
	token := c.token
	c.mu.Unlock()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var failure struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&failure)
		return &APIError{Status: resp.StatusCode, Message: failure.Error}
	}
	if dest == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(dest)
}
