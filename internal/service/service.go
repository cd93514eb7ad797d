package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"barbershop/backend/internal/availability"
	"barbershop/backend/internal/cache"
	"barbershop/backend/internal/calendar"
	"barbershop/backend/internal/domain"
	"barbershop/backend/internal/events"
	"barbershop/backend/internal/notify"
	"barbershop/backend/internal/store"
	"barbershop/backend/internal/xid"
)

var (
	ErrSlotUnavailable      = errors.New("slot is no longer available")
	ErrPriceRequired        = errors.New("price is required for this appointment")
	ErrUnknownPaymentMethod = errors.New("unknown payment method")
	ErrEmptySale            = errors.New("sale has no items")
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Options struct {
	Location     *time.Location
	DedupeWindow time.Duration
	BusyCacheTTL time.Duration
	Composer     notify.Composer
	Now          func() time.Time
}

type Service struct {
	repo      store.Repository
	calendar  calendar.Bridge
	busyCache cache.BusyCache
	publisher events.Publisher
	composer  notify.Composer

	loc          *time.Location
	dedupeWindow time.Duration
	busyTTL      time.Duration
	now          func() time.Time

	// serialises read-modify-write sequences against the repository
	mu sync.Mutex
}

func New(repo store.Repository, bridge calendar.Bridge, busyCache cache.BusyCache, publisher events.Publisher, opts Options) *Service {
	if bridge == nil {
		bridge = calendar.NewNoopBridge()
	}
	if busyCache == nil {
		busyCache = cache.NoopBusyCache{}
	}
	if publisher == nil {
		publisher = events.NewNoopPublisher()
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.DedupeWindow <= 0 {
		opts.DedupeWindow = 60 * time.Second
	}
	if opts.BusyCacheTTL <= 0 {
		opts.BusyCacheTTL = 30 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Composer.Location == nil {
		opts.Composer.Location = opts.Location
	}

	return &Service{
		repo:         repo,
		calendar:     bridge,
		busyCache:    busyCache,
		publisher:    publisher,
		composer:     opts.Composer,
		loc:          opts.Location,
		dedupeWindow: opts.DedupeWindow,
		busyTTL:      opts.BusyCacheTTL,
		now:          opts.Now,
	}
}

func (s *Service) Location() *time.Location {
	return s.loc
}

// Today is the current calendar date at the shop.
func (s *Service) Today() string {
	return s.now().In(s.loc).Format(domain.DateLayout)
}

// State returns the whole document after dropping elapsed pending bookings.
// An empty catalog is served as the default one.
func (s *Service) State(ctx context.Context) (domain.State, error) {
	if _, err := s.SweepExpired(ctx); err != nil {
		return domain.State{}, err
	}
	state, err := s.repo.LoadState(ctx)
	if err != nil {
		return domain.State{}, err
	}
	if len(state.Services) == 0 {
		state.Services = domain.DefaultServices()
	}
	return state, nil
}

// Save merges a partial document: sales and expenses by id, every other
// provided collection replaces the stored one.
func (s *Service) Save(ctx context.Context, patch domain.StatePatch) error {
	if patch.Empty() {
		return nil
	}
	if patch.Settings != nil {
		if err := validateSettings(*patch.Settings); err != nil {
			return err
		}
	}
	if patch.History != nil {
		sales := append([]domain.Sale(nil), (*patch.History)...)
		for i := range sales {
			if sales[i].ID == 0 {
				sales[i].ID = xid.Numeric(s.now())
			}
		}
		patch.History = &sales
	}
	if patch.Expenses != nil {
		expenses := append([]domain.Expense(nil), (*patch.Expenses)...)
		for i := range expenses {
			if expenses[i].ID == 0 {
				expenses[i].ID = xid.Numeric(s.now())
			}
		}
		patch.Expenses = &expenses
	}
	if patch.Appointments != nil {
		appts := append([]domain.Appointment(nil), (*patch.Appointments)...)
		for i := range appts {
			if appts[i].ID == "" {
				appts[i].ID = xid.New("appt")
			}
		}
		patch.Appointments = &appts
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.repo.ApplyPatch(ctx, patch); err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	return nil
}

// SweepExpired deletes pending appointments whose start already passed.
// Confirmed appointments are kept.
func (s *Service) SweepExpired(ctx context.Context) (int, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	appts, err := s.repo.ListAppointments(ctx)
	if err != nil {
		return 0, err
	}
	expired := make([]domain.Appointment, 0)
	for _, appt := range appts {
		if appt.IsPending() && appt.StartTime.Before(now) {
			expired = append(expired, appt)
		}
	}
	if len(expired) == 0 {
		return 0, nil
	}

	removed, err := s.repo.DeletePendingBefore(ctx, now)
	if err != nil {
		return 0, err
	}
	for _, appt := range expired {
		s.publish(ctx, events.AppointmentExpired, appt)
	}
	log.Info().Int("removed", removed).Msg("expired pending appointments swept")
	return removed, nil
}

// RunExpirySweeper sweeps on every tick until ctx ends.
func (s *Service) RunExpirySweeper(ctx context.Context, every time.Duration) {
	if every <= 0 {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.SweepExpired(ctx); err != nil && ctx.Err() == nil {
				log.Warn().Err(err).Msg("expiry sweep failed")
			}
		}
	}
}

func (s *Service) ResetLedger(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.repo.ResetLedger(ctx)
}

func (s *Service) publish(ctx context.Context, eventType string, appt domain.Appointment) {
	if err := s.publisher.Publish(ctx, eventType, appt); err != nil {
		log.Warn().Err(err).Str("event", eventType).Str("appointment_id", appt.ID).Msg("event publish failed")
	}
}

func validateSettings(settings domain.Settings) error {
	settings = settings.WithDefaults()
	if _, err := availability.ParseClock(settings.OpenTime); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidInput, err)
	}
	if _, err := availability.ParseClock(settings.CloseTime); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidInput, err)
	}
	return nil
}
