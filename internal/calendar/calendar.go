// Package calendar talks to the shop's external calendar script. The feed is
// advisory: callers treat every error as "no extra busy time".
package calendar

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"barbershop/backend/internal/domain"
)

type Bridge interface {
	Busy(ctx context.Context, from, to time.Time) ([]domain.BusyInterval, error)
	Book(ctx context.Context, appt domain.Appointment) error
	Delete(ctx context.Context, name string, startTime time.Time) error
	Enabled() bool
}

type HTTPBridge struct {
	url  string
	http *http.Client
}

func NewHTTPBridge(endpoint string, timeout time.Duration) *HTTPBridge {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPBridge{
		url:  strings.TrimSpace(endpoint),
		http: &http.Client{Timeout: timeout},
	}
}

func (b *HTTPBridge) Enabled() bool {
	return b.url != ""
}

func (b *HTTPBridge) endpoint(action string, extra url.Values) (string, error) {
	u, err := url.Parse(b.url)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("action", action)
	for k, vs := range extra {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (b *HTTPBridge) Busy(ctx context.Context, from, to time.Time) ([]domain.BusyInterval, error) {
	target, err := b.endpoint("busy", url.Values{
		"start": {from.UTC().Format(time.RFC3339)},
		"end":   {to.UTC().Format(time.RFC3339)},
	})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	resp, err := b.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("calendar busy returned %d", resp.StatusCode)
	}

	var intervals []domain.BusyInterval
	if err := json.NewDecoder(resp.Body).Decode(&intervals); err != nil {
		return nil, fmt.Errorf("decode calendar busy: %w", err)
	}
	out := intervals[:0]
	for _, iv := range intervals {
		if iv.End.After(iv.Start) {
			out = append(out, iv)
		}
	}
	return out, nil
}

func (b *HTTPBridge) Book(ctx context.Context, appt domain.Appointment) error {
	return b.post(ctx, "book", appt)
}

func (b *HTTPBridge) Delete(ctx context.Context, name string, startTime time.Time) error {
	return b.post(ctx, "delete", map[string]string{
		"name":      name,
		"startTime": startTime.UTC().Format(time.RFC3339),
	})
}

func (b *HTTPBridge) post(ctx context.Context, action string, payload any) error {
	target, err := b.endpoint(action, nil)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := b.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("calendar %s returned %d", action, resp.StatusCode)
	}
	return nil
}

type NoopBridge struct{}

func NewNoopBridge() *NoopBridge {
	return &NoopBridge{}
}

func (NoopBridge) Busy(context.Context, time.Time, time.Time) ([]domain.BusyInterval, error) {
	return nil, nil
}

func (NoopBridge) Book(context.Context, domain.Appointment) error {
	return nil
}

func (NoopBridge) Delete(context.Context, string, time.Time) error {
	return nil
}

func (NoopBridge) Enabled() bool {
	return false
}
