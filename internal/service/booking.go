package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"barbershop/backend/internal/availability"
	"barbershop/backend/internal/cache"
	"barbershop/backend/internal/domain"
	"barbershop/backend/internal/events"
	"barbershop/backend/internal/notify"
	"barbershop/backend/internal/store"
)

func (s *Service) settings(ctx context.Context) (domain.Settings, error) {
	state, err := s.repo.LoadState(ctx)
	if err != nil {
		return domain.Settings{}, err
	}
	return state.Settings.WithDefaults(), nil
}

// externalBusy reads the calendar feed through the cache. Any failure yields
// no intervals.
func (s *Service) externalBusy(ctx context.Context, from, to time.Time) []domain.BusyInterval {
	if !s.calendar.Enabled() {
		return nil
	}

	key := cache.BusyKey(from, to)
	cached, ok, err := s.busyCache.Get(ctx, key)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("busy cache read failed")
	} else if ok {
		return cached
	}

	intervals, err := s.calendar.Busy(ctx, from, to)
	if err != nil {
		log.Warn().Err(err).Msg("calendar busy feed unavailable")
		return nil
	}
	if err := s.busyCache.Set(ctx, key, intervals, s.busyTTL); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("busy cache write failed")
	}
	return intervals
}

// invalidateBusy drops the cached feed of the day holding appt and of the
// previous day, whose overnight shift may reach into it.
func (s *Service) invalidateBusy(ctx context.Context, settings domain.Settings, appt domain.Appointment) {
	start := appt.StartTime.In(s.loc)
	for _, day := range []time.Time{start, start.AddDate(0, 0, -1)} {
		from, to, err := availability.BusyWindow(day.Format(domain.DateLayout), settings, s.loc)
		if err != nil {
			return
		}
		if err := s.busyCache.Delete(ctx, cache.BusyKey(from, to)); err != nil {
			log.Warn().Err(err).Msg("busy cache invalidation failed")
		}
	}
}

// Busy lists local and external busy intervals touching the opening hours of date.
func (s *Service) Busy(ctx context.Context, date string) ([]domain.BusyInterval, error) {
	if _, err := s.SweepExpired(ctx); err != nil {
		return nil, err
	}
	settings, err := s.settings(ctx)
	if err != nil {
		return nil, err
	}
	from, to, err := availability.BusyWindow(date, settings, s.loc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrInvalidInput, err)
	}

	appts, err := s.repo.ListAppointments(ctx)
	if err != nil {
		return nil, err
	}
	local := availability.Overlapping(availability.FromAppointments(appts), from, to)
	return append(local, s.externalBusy(ctx, from, to)...), nil
}

func (s *Service) Slots(ctx context.Context, date string) ([]domain.Slot, error) {
	if _, err := s.SweepExpired(ctx); err != nil {
		return nil, err
	}
	settings, err := s.settings(ctx)
	if err != nil {
		return nil, err
	}
	from, to, err := availability.BusyWindow(date, settings, s.loc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrInvalidInput, err)
	}
	appts, err := s.repo.ListAppointments(ctx)
	if err != nil {
		return nil, err
	}

	slots, err := availability.ComputeSlots(date, settings, appts, s.externalBusy(ctx, from, to), s.now(), s.loc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrInvalidInput, err)
	}
	return slots, nil
}

// Book stores a pending appointment. A repeat of the same phone and start
// within the dedupe window returns the earlier booking instead.
func (s *Service) Book(ctx context.Context, req domain.BookingRequest) (domain.BookingResponse, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Phone = notify.NormalizePhone(req.Phone)
	req.Service = strings.TrimSpace(req.Service)
	if req.Name == "" || req.Phone == "" || req.Service == "" {
		return domain.BookingResponse{}, store.ErrInvalidInput
	}
	if req.StartTime.IsZero() || !req.EndTime.After(req.StartTime) {
		return domain.BookingResponse{}, store.ErrInvalidInput
	}
	if req.Price.IsNegative() {
		return domain.BookingResponse{}, store.ErrInvalidInput
	}

	now := s.now()
	if !req.StartTime.After(now) {
		return domain.BookingResponse{}, ErrSlotUnavailable
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	appts, err := s.repo.ListAppointments(ctx)
	if err != nil {
		return domain.BookingResponse{}, err
	}
	for _, existing := range appts {
		if existing.Phone == req.Phone && existing.StartTime.Equal(req.StartTime) &&
			!existing.CreatedAt.IsZero() && now.Sub(existing.CreatedAt) < s.dedupeWindow {
			dup := existing
			return domain.BookingResponse{
				Success:     true,
				Duplicate:   true,
				Appointment: &dup,
				DepositLink: s.composer.DepositRequest(dup),
			}, nil
		}
	}

	settings, err := s.settings(ctx)
	if err != nil {
		return domain.BookingResponse{}, err
	}
	open, err := availability.WithinOpeningHours(req.StartTime, settings, s.loc)
	if err != nil {
		return domain.BookingResponse{}, fmt.Errorf("%w: %v", store.ErrInvalidInput, err)
	}
	if !open {
		return domain.BookingResponse{}, ErrSlotUnavailable
	}

	busy := availability.FromAppointments(appts)
	if !availability.IsBusy(req.StartTime, busy) {
		day := req.StartTime.In(s.loc).Format(domain.DateLayout)
		if from, to, err := availability.BusyWindow(day, settings, s.loc); err == nil {
			busy = append(busy, s.externalBusy(ctx, from, to)...)
		}
	}
	if availability.IsBusy(req.StartTime, busy) {
		return domain.BookingResponse{}, ErrSlotUnavailable
	}

	created, err := s.repo.CreateAppointment(ctx, domain.Appointment{
		Name:      req.Name,
		Phone:     req.Phone,
		Service:   req.Service,
		Price:     req.Price,
		StartTime: req.StartTime.UTC(),
		EndTime:   req.EndTime.UTC(),
		Status:    domain.StatusPending,
		CreatedAt: now.UTC(),
	})
	if err != nil {
		return domain.BookingResponse{}, err
	}

	s.publish(ctx, events.AppointmentBooked, *created)
	log.Info().Str("appointment_id", created.ID).Time("start", created.StartTime).Msg("appointment booked")

	return domain.BookingResponse{
		Success:     true,
		Appointment: created,
		DepositLink: s.composer.DepositRequest(*created),
	}, nil
}

// resolve finds the appointment a reference points to. A phone+index
// reference counts only that phone's appointments, in stored order.
func resolve(appts []domain.Appointment, ref domain.AppointmentRef) (domain.Appointment, error) {
	switch {
	case ref.ID != "":
		for _, appt := range appts {
			if appt.ID == ref.ID {
				return appt, nil
			}
		}
	case ref.Name != "" && ref.StartTime != nil:
		for _, appt := range appts {
			if appt.Name == ref.Name && appt.StartTime.Equal(*ref.StartTime) {
				return appt, nil
			}
		}
	case ref.Phone != "" && ref.Index != nil:
		phone := notify.NormalizePhone(ref.Phone)
		n := 0
		for _, appt := range appts {
			if appt.Phone != phone {
				continue
			}
			if n == *ref.Index {
				return appt, nil
			}
			n++
		}
	default:
		return domain.Appointment{}, store.ErrInvalidInput
	}
	return domain.Appointment{}, store.ErrNotFound
}

func (s *Service) Confirm(ctx context.Context, ref domain.AppointmentRef) (domain.ConfirmResponse, error) {
	confirmed, err := s.confirmLocal(ctx, ref)
	if err != nil {
		return domain.ConfirmResponse{}, err
	}

	if s.calendar.Enabled() {
		if err := s.calendar.Book(ctx, *confirmed); err != nil {
			log.Warn().Err(err).Str("appointment_id", confirmed.ID).Msg("calendar book failed")
		}
		if settings, err := s.settings(ctx); err == nil {
			s.invalidateBusy(ctx, settings, *confirmed)
		}
	}
	s.publish(ctx, events.AppointmentConfirmed, *confirmed)

	return domain.ConfirmResponse{
		Success:          true,
		Appointment:      confirmed,
		ConfirmationLink: s.composer.Confirmation(*confirmed),
	}, nil
}

func (s *Service) confirmLocal(ctx context.Context, ref domain.AppointmentRef) (*domain.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	appts, err := s.repo.ListAppointments(ctx)
	if err != nil {
		return nil, err
	}
	target, err := resolve(appts, ref)
	if err != nil {
		return nil, err
	}
	return s.repo.UpdateAppointmentStatus(ctx, target.ID, domain.StatusConfirmed)
}

// Cancel removes the appointment locally first. The calendar delete is best
// effort, runs after the local delete and never rolls it back.
func (s *Service) Cancel(ctx context.Context, ref domain.AppointmentRef) error {
	target, err := s.cancelLocal(ctx, ref)
	if err != nil {
		return err
	}

	s.forgetExternally(ctx, target)
	s.publish(ctx, events.AppointmentCancelled, target)
	return nil
}

func (s *Service) cancelLocal(ctx context.Context, ref domain.AppointmentRef) (domain.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	appts, err := s.repo.ListAppointments(ctx)
	if err != nil {
		return domain.Appointment{}, err
	}
	target, err := resolve(appts, ref)
	if err != nil {
		return domain.Appointment{}, err
	}
	if err := s.repo.DeleteAppointment(ctx, target.ID); err != nil {
		return domain.Appointment{}, err
	}
	return target, nil
}

// forgetExternally must be called without s.mu held; the bridge may be slow.
func (s *Service) forgetExternally(ctx context.Context, appt domain.Appointment) {
	if !s.calendar.Enabled() {
		return
	}
	if err := s.calendar.Delete(ctx, appt.Name, appt.StartTime); err != nil {
		log.Warn().Err(err).Str("appointment_id", appt.ID).Msg("calendar delete failed")
	}
	if settings, err := s.settings(ctx); err == nil {
		s.invalidateBusy(ctx, settings, appt)
	}
}

func (s *Service) AppointmentsByPhone(ctx context.Context, phone string) ([]domain.Appointment, error) {
	phone = notify.NormalizePhone(phone)
	if phone == "" {
		return nil, store.ErrInvalidInput
	}
	if _, err := s.SweepExpired(ctx); err != nil {
		return nil, err
	}
	appts, err := s.repo.ListAppointments(ctx)
	if err != nil {
		return nil, err
	}
	mine := make([]domain.Appointment, 0)
	for _, appt := range appts {
		if appt.Phone == phone {
			mine = append(mine, appt)
		}
	}
	return mine, nil
}
