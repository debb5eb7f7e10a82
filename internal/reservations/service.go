package reservations

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"reserver/internal/bus"
	"reserver/internal/resources"
	"reserver/internal/shared/apperrors"
	"reserver/internal/shared/config"
	"reserver/internal/shared/constants"
	"reserver/pkg/cache"
	"reserver/pkg/clock"
	"reserver/pkg/logger"
	"reserver/pkg/metrics"
)

// ResourceDirectory is the slice of the resources service the allocator
// needs. resources.Service satisfies it.
type ResourceDirectory interface {
	RefreshStatus(ctx context.Context, id int64) (*resources.Resource, error)
	GetSchedule(ctx context.Context, resourceID int64) (*resources.ScheduleResponse, error)
}

// WaitlistService is invoked when a cancel frees a window. Implemented by
// the waitlist package; injected via setter to break the package cycle.
type WaitlistService interface {
	CheckAndOfferSlot(ctx context.Context, resourceID int64, start, end time.Time) error
}

// ApprovalService handles the approval-request side of gated bookings.
// Injected via setter for the same reason.
type ApprovalService interface {
	OpenRequest(ctx context.Context, reservationID, requesterID, approverID int64, message string) error
	ResolveForCancelledReservation(ctx context.Context, reservationID int64) error
}

// Notifier persists in-app notifications. Implemented by the notifications
// package.
type Notifier interface {
	Notify(ctx context.Context, userID int64, notificationType, title, message, link string) error
}

// Pusher delivers realtime socket messages. Implemented by the socket hub.
type Pusher interface {
	SendToUser(userID int64, message interface{})
}

type Service interface {
	CreateReservation(ctx context.Context, userID int64, req CreateReservationRequest) (*ReservationResponse, error)
	CreateRecurringSeries(ctx context.Context, userID int64, req CreateRecurringRequest) ([]ReservationResponse, error)
	CancelReservation(ctx context.Context, userID int64, isAdmin bool, reservationID int64, reason string) (*ReservationResponse, error)
	CancelSeries(ctx context.Context, userID int64, isAdmin bool, parentID int64, reason string) (int, error)

	GetReservation(ctx context.Context, userID int64, isAdmin bool, reservationID int64) (*ReservationResponse, error)
	ListUserReservations(ctx context.Context, userID int64, query ReservationListQuery) (*PaginatedReservations, error)
	GetResourceDay(ctx context.Context, resourceID int64, date string) (*ResourceDayResponse, error)
	GetAudit(ctx context.Context, userID int64, isAdmin bool, reservationID int64) ([]AuditEntry, error)

	// ActivatePending re-checks for conflicts and activates a pending
	// reservation. Called by the approval coordinator. On conflict the
	// reservation comes back rejected together with the ConflictError.
	ActivatePending(ctx context.Context, approverID, reservationID int64) (*Reservation, error)
	RejectPending(ctx context.Context, approverID, reservationID int64, reason string) (*Reservation, error)

	// Scheduler steps.
	ExpireFinished(ctx context.Context) (int, error)
	FireReminders(ctx context.Context) (int, error)

	// Late wiring; the waitlist and approvals packages depend on this one.
	SetWaitlistService(w WaitlistService)
	SetApprovalService(a ApprovalService)
}

type service struct {
	repo      Repository
	resources ResourceDirectory
	cache     cache.Service
	events    *bus.Bus
	notifier  Notifier
	pusher    Pusher
	clock     clock.Clock
	log       *logger.Logger
	cfg       config.ReservationConfig
	batchSize int

	waitlist  WaitlistService
	approvals ApprovalService
}

func NewService(
	repo Repository,
	resourceDir ResourceDirectory,
	cacheService cache.Service,
	events *bus.Bus,
	notifier Notifier,
	pusher Pusher,
	clk clock.Clock,
	log *logger.Logger,
	cfg *config.Config,
) Service {
	return &service{
		repo:      repo,
		resources: resourceDir,
		cache:     cacheService,
		events:    events,
		notifier:  notifier,
		pusher:    pusher,
		clock:     clk,
		log:       log,
		cfg:       cfg.Reservation,
		batchSize: cfg.Scheduler.BatchSize,
	}
}

// SetWaitlistService wires the waitlist engine in after construction; the
// waitlist package depends on this one, so the dependency cannot go through
// the constructor.
func (s *service) SetWaitlistService(w WaitlistService) {
	s.waitlist = w
}

// SetApprovalService wires the approval coordinator in after construction.
func (s *service) SetApprovalService(a ApprovalService) {
	s.approvals = a
}

func (s *service) CreateReservation(ctx context.Context, userID int64, req CreateReservationRequest) (*ReservationResponse, error) {
	start, end := req.Start.UTC(), req.End.UTC()
	now := s.clock.Now()

	if err := s.validateWindow(start, end, now, s.cfg.MaxDuration); err != nil {
		return nil, err
	}

	resource, err := s.checkResourceBookable(ctx, req.ResourceID, start, end)
	if err != nil {
		return nil, err
	}

	reservation := &Reservation{
		UserID:     userID,
		ResourceID: req.ResourceID,
		StartTime:  start,
		EndTime:    end,
		Status:     StatusActive,
	}
	if resource.RequiresApproval {
		if resource.DefaultApproverID == nil {
			return nil, apperrors.Newf(apperrors.KindNoApprover,
				"resource %q requires approval but has no approver configured", resource.Name)
		}
		reservation.Status = StatusPendingApproval
	}

	if err := s.repo.CreateWithConflictCheck(ctx, reservation, userID, now); err != nil {
		var conflict *apperrors.ConflictError
		if errors.As(err, &conflict) {
			metrics.ReservationConflicts.Inc()
		}
		return nil, err
	}
	s.invalidateCache(ctx)

	if reservation.Status == StatusPendingApproval {
		if s.approvals != nil {
			if err := s.approvals.OpenRequest(ctx, reservation.ID, userID, *resource.DefaultApproverID, ""); err != nil {
				s.log.Error("approval request creation failed",
					"reservation_id", reservation.ID, "error", err)
			}
		}
	} else {
		metrics.ReservationsCreated.Inc()
		s.log.LogReservationCreated(ctx, reservation.ID, reservation.ResourceID, userID)
		s.events.Publish(bus.EventReservationCreated, bus.ReservationData{
			ReservationID: reservation.ID,
			ResourceID:    reservation.ResourceID,
			ResourceName:  resource.Name,
			UserID:        userID,
			Start:         reservation.StartTime,
			End:           reservation.EndTime,
			Status:        string(reservation.Status),
		})
	}

	resp := reservation.ToResponse()
	resp.ResourceName = resource.Name
	return &resp, nil
}

func (s *service) CreateRecurringSeries(ctx context.Context, userID int64, req CreateRecurringRequest) ([]ReservationResponse, error) {
	start, end := req.Start.UTC(), req.End.UTC()
	now := s.clock.Now()

	if err := s.validateWindow(start, end, now, s.cfg.MaxDuration); err != nil {
		return nil, err
	}

	resource, err := s.checkResourceBookable(ctx, req.ResourceID, start, end)
	if err != nil {
		return nil, err
	}
	if resource.RequiresApproval {
		return nil, apperrors.New(apperrors.KindValidation,
			"recurring bookings are not supported on approval-gated resources")
	}

	occurrences, err := Expand(start, end, req.Rule)
	if err != nil {
		return nil, err
	}

	schedule, err := s.resources.GetSchedule(ctx, req.ResourceID)
	if err != nil {
		return nil, err
	}
	for _, occ := range occurrences {
		if !resources.WithinBusinessHours(schedule.BusinessHours, occ.Start, occ.End) {
			return nil, apperrors.Newf(apperrors.KindValidation,
				"occurrence %s falls outside business hours", occ.Start.Format(time.RFC3339))
		}
		if resources.BlackedOut(schedule.BlackoutDates, occ.Start, occ.End) {
			return nil, apperrors.Newf(apperrors.KindValidation,
				"occurrence %s falls in a blackout period", occ.Start.Format(time.RFC3339))
		}
	}

	interval := req.Rule.Interval
	if interval == 0 {
		interval = 1
	}
	rule := &RecurrenceRule{
		Frequency:       req.Rule.Frequency,
		Interval:        interval,
		DaysOfWeek:      req.Rule.DaysOfWeek,
		EndType:         req.Rule.EndType,
		EndDate:         req.Rule.EndDate,
		OccurrenceCount: req.Rule.OccurrenceCount,
	}

	items := make([]*Reservation, len(occurrences))
	for i, occ := range occurrences {
		items[i] = &Reservation{
			UserID:              userID,
			ResourceID:          req.ResourceID,
			StartTime:           occ.Start,
			EndTime:             occ.End,
			Status:              StatusActive,
			IsRecurringInstance: true,
		}
	}

	if err := s.repo.CreateSeriesWithConflictCheck(ctx, rule, items, userID, now); err != nil {
		var conflict *apperrors.ConflictError
		if errors.As(err, &conflict) {
			metrics.ReservationConflicts.Inc()
		}
		return nil, err
	}
	s.invalidateCache(ctx)

	responses := make([]ReservationResponse, len(items))
	for i, item := range items {
		metrics.ReservationsCreated.Inc()
		s.events.Publish(bus.EventReservationCreated, bus.ReservationData{
			ReservationID: item.ID,
			ResourceID:    item.ResourceID,
			ResourceName:  resource.Name,
			UserID:        userID,
			Start:         item.StartTime,
			End:           item.EndTime,
			Status:        string(item.Status),
		})
		responses[i] = item.ToResponse()
		responses[i].ResourceName = resource.Name
	}
	s.log.LogReservationCreated(ctx, items[0].ID, req.ResourceID, userID)

	return responses, nil
}

func (s *service) CancelReservation(ctx context.Context, userID int64, isAdmin bool, reservationID int64, reason string) (*ReservationResponse, error) {
	existing, err := s.repo.GetByID(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	if existing.UserID != userID && !isAdmin {
		return nil, apperrors.New(apperrors.KindForbidden, "not allowed to cancel this reservation")
	}
	wasActive := existing.Status == StatusActive
	wasPending := existing.Status == StatusPendingApproval

	now := s.clock.Now()
	cancelled, err := s.repo.Cancel(ctx, reservationID, reason, userID, now)
	if err != nil {
		return nil, err
	}
	s.invalidateCache(ctx)
	metrics.ReservationsCancelled.Inc()
	s.log.LogReservationCancelled(ctx, cancelled.ID, cancelled.ResourceID, userID)

	s.events.Publish(bus.EventReservationCancelled, bus.ReservationData{
		ReservationID: cancelled.ID,
		ResourceID:    cancelled.ResourceID,
		UserID:        cancelled.UserID,
		Start:         cancelled.StartTime,
		End:           cancelled.EndTime,
		Status:        string(cancelled.Status),
		Reason:        reason,
	})

	if wasPending && s.approvals != nil {
		if err := s.approvals.ResolveForCancelledReservation(ctx, cancelled.ID); err != nil {
			s.log.Error("approval resolution on cancel failed",
				"reservation_id", cancelled.ID, "error", err)
		}
	}

	// Only an active reservation was blocking the window; its cancel is
	// what frees a slot for the waitlist.
	if wasActive && s.waitlist != nil {
		if err := s.waitlist.CheckAndOfferSlot(ctx, cancelled.ResourceID, cancelled.StartTime, cancelled.EndTime); err != nil {
			s.log.Error("waitlist offer on cancel failed",
				"resource_id", cancelled.ResourceID, "error", err)
		}
	}

	resp := cancelled.ToResponse()
	return &resp, nil
}

func (s *service) CancelSeries(ctx context.Context, userID int64, isAdmin bool, parentID int64, reason string) (int, error) {
	parent, err := s.repo.GetByID(ctx, parentID)
	if err != nil {
		return 0, err
	}
	if parent.RecurrenceRuleID == nil || parent.ParentReservationID != nil {
		return 0, apperrors.Newf(apperrors.KindValidation,
			"reservation %d is not the parent of a recurring series", parentID)
	}
	if parent.UserID != userID && !isAdmin {
		return 0, apperrors.New(apperrors.KindForbidden, "not allowed to cancel this series")
	}

	series, err := s.repo.ListSeries(ctx, parentID)
	if err != nil {
		return 0, err
	}

	now := s.clock.Now()
	cancelled := 0
	for i := range series {
		occ := &series[i]
		if occ.Status != StatusActive || !occ.StartTime.After(now) {
			continue
		}
		done, err := s.repo.Cancel(ctx, occ.ID, reason, userID, now)
		if err != nil {
			s.log.Error("series occurrence cancel failed", "reservation_id", occ.ID, "error", err)
			continue
		}
		cancelled++
		s.events.Publish(bus.EventReservationCancelled, bus.ReservationData{
			ReservationID: done.ID,
			ResourceID:    done.ResourceID,
			UserID:        done.UserID,
			Start:         done.StartTime,
			End:           done.EndTime,
			Status:        string(done.Status),
			Reason:        reason,
		})
		if s.waitlist != nil {
			if err := s.waitlist.CheckAndOfferSlot(ctx, done.ResourceID, done.StartTime, done.EndTime); err != nil {
				s.log.Error("waitlist offer on series cancel failed",
					"resource_id", done.ResourceID, "error", err)
			}
		}
	}

	if cancelled > 0 {
		s.invalidateCache(ctx)
		metrics.ReservationsCancelled.Add(float64(cancelled))
	}
	return cancelled, nil
}

func (s *service) GetReservation(ctx context.Context, userID int64, isAdmin bool, reservationID int64) (*ReservationResponse, error) {
	reservation, err := s.repo.GetByID(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	if reservation.UserID != userID && !isAdmin {
		return nil, apperrors.New(apperrors.KindForbidden, "not allowed to view this reservation")
	}
	resp := reservation.ToResponse()
	return &resp, nil
}

func (s *service) ListUserReservations(ctx context.Context, userID int64, query ReservationListQuery) (*PaginatedReservations, error) {
	if query.Page == 0 {
		query.Page = 1
	}
	if query.Limit == 0 {
		query.Limit = 10
	}

	if query.Status == "" {
		var cached PaginatedReservations
		key := constants.BuildUserReservationsKey(userID, query.Page)
		err := s.cache.GetOrSet(ctx, key, constants.TTL_USER_RESERVATIONS, func() (interface{}, error) {
			return s.listUserFromStore(ctx, userID, query)
		}, &cached)
		if err == nil {
			return &cached, nil
		}
	}

	return s.listUserFromStore(ctx, userID, query)
}

func (s *service) listUserFromStore(ctx context.Context, userID int64, query ReservationListQuery) (*PaginatedReservations, error) {
	items, totalCount, err := s.repo.ListByUser(ctx, userID, query)
	if err != nil {
		return nil, err
	}

	responses := make([]ReservationResponse, len(items))
	for i := range items {
		responses[i] = items[i].ToResponse()
	}
	return &PaginatedReservations{
		Reservations: responses,
		TotalCount:   totalCount,
		Page:         query.Page,
		Limit:        query.Limit,
		TotalPages:   int(math.Ceil(float64(totalCount) / float64(query.Limit))),
	}, nil
}

func (s *service) GetResourceDay(ctx context.Context, resourceID int64, date string) (*ResourceDayResponse, error) {
	dayStart, err := time.Parse("2006-01-02", date)
	if err != nil {
		return nil, apperrors.Newf(apperrors.KindValidation, "invalid date %q, expected YYYY-MM-DD", date)
	}
	dayEnd := dayStart.AddDate(0, 0, 1)

	fetch := func() (interface{}, error) {
		items, err := s.repo.ListByResourceWindow(ctx, resourceID, dayStart, dayEnd)
		if err != nil {
			return nil, err
		}
		windows := make([]TimeWindow, len(items))
		for i, item := range items {
			windows[i] = TimeWindow{Start: item.StartTime, End: item.EndTime, Status: item.Status}
		}
		return &ResourceDayResponse{ResourceID: resourceID, Date: date, Windows: windows}, nil
	}

	var cached ResourceDayResponse
	key := constants.BuildResourceDayKey(resourceID, date)
	if err := s.cache.GetOrSet(ctx, key, constants.TTL_RESOURCE_DAY, fetch, &cached); err == nil {
		return &cached, nil
	}

	out, err := fetch()
	if err != nil {
		return nil, err
	}
	return out.(*ResourceDayResponse), nil
}

func (s *service) GetAudit(ctx context.Context, userID int64, isAdmin bool, reservationID int64) ([]AuditEntry, error) {
	reservation, err := s.repo.GetByID(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	if reservation.UserID != userID && !isAdmin {
		return nil, apperrors.New(apperrors.KindForbidden, "not allowed to view this reservation")
	}
	return s.repo.ListAudit(ctx, reservationID)
}

func (s *service) ActivatePending(ctx context.Context, approverID, reservationID int64) (*Reservation, error) {
	now := s.clock.Now()
	reservation, err := s.repo.ActivatePending(ctx, reservationID, approverID, now)
	if err != nil {
		var conflict *apperrors.ConflictError
		if errors.As(err, &conflict) && reservation != nil {
			// The rejection was committed; tell the world about the state
			// change before surfacing the conflict.
			metrics.ReservationConflicts.Inc()
			s.invalidateCache(ctx)
			s.events.Publish(bus.EventReservationUpdated, bus.ReservationData{
				ReservationID: reservation.ID,
				ResourceID:    reservation.ResourceID,
				UserID:        reservation.UserID,
				ApproverID:    approverID,
				Start:         reservation.StartTime,
				End:           reservation.EndTime,
				Status:        string(reservation.Status),
				Reason:        reservation.CancellationReason,
			})
		}
		return reservation, err
	}

	s.invalidateCache(ctx)
	metrics.ReservationsCreated.Inc()
	s.events.Publish(bus.EventReservationUpdated, bus.ReservationData{
		ReservationID: reservation.ID,
		ResourceID:    reservation.ResourceID,
		UserID:        reservation.UserID,
		ApproverID:    approverID,
		Start:         reservation.StartTime,
		End:           reservation.EndTime,
		Status:        string(reservation.Status),
	})
	return reservation, nil
}

func (s *service) RejectPending(ctx context.Context, approverID, reservationID int64, reason string) (*Reservation, error) {
	now := s.clock.Now()
	reservation, err := s.repo.MarkRejected(ctx, reservationID, reason, approverID, now)
	if err != nil {
		return nil, err
	}

	s.invalidateCache(ctx)
	s.events.Publish(bus.EventReservationCancelled, bus.ReservationData{
		ReservationID: reservation.ID,
		ResourceID:    reservation.ResourceID,
		UserID:        reservation.UserID,
		ApproverID:    approverID,
		Start:         reservation.StartTime,
		End:           reservation.EndTime,
		Status:        string(reservation.Status),
		Reason:        reason,
	})
	return reservation, nil
}

func (s *service) ExpireFinished(ctx context.Context) (int, error) {
	now := s.clock.Now()
	total := 0

	for {
		batch, err := s.repo.ExpireBatch(ctx, now, s.batchSize)
		if err != nil {
			return total, err
		}
		if len(batch) == 0 {
			break
		}

		total += len(batch)
		for i := range batch {
			expired := &batch[i]
			s.events.Publish(bus.EventReservationExpired, bus.ReservationData{
				ReservationID: expired.ID,
				ResourceID:    expired.ResourceID,
				UserID:        expired.UserID,
				Start:         expired.StartTime,
				End:           expired.EndTime,
				Status:        string(expired.Status),
			})
			if s.waitlist != nil {
				if err := s.waitlist.CheckAndOfferSlot(ctx, expired.ResourceID, expired.StartTime, expired.EndTime); err != nil {
					s.log.Error("waitlist offer on expiry failed",
						"resource_id", expired.ResourceID, "error", err)
				}
			}
		}

		if len(batch) < s.batchSize {
			break
		}
	}

	if total > 0 {
		s.invalidateCache(ctx)
	}
	return total, nil
}

func (s *service) FireReminders(ctx context.Context) (int, error) {
	now := s.clock.Now()
	candidates, err := s.repo.ReminderCandidates(ctx, now, s.cfg.DefaultReminderHours, s.batchSize)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, cand := range candidates {
		reservation := cand.Reservation
		title := "Upcoming reservation"
		message := fmt.Sprintf("Your reservation for %s starts at %s",
			cand.ResourceName, reservation.StartTime.UTC().Format("15:04 on Jan 2"))
		link := fmt.Sprintf("/reservations/%d", reservation.ID)

		if s.notifier != nil {
			if err := s.notifier.Notify(ctx, reservation.UserID, "reservation_reminder", title, message, link); err != nil {
				s.log.Error("reminder notification failed", "reservation_id", reservation.ID, "error", err)
				continue
			}
		}
		if s.pusher != nil {
			s.pusher.SendToUser(reservation.UserID, map[string]interface{}{
				"type":           "reservation_reminder",
				"reservation_id": reservation.ID,
				"resource_id":    reservation.ResourceID,
				"resource_name":  cand.ResourceName,
				"start":          reservation.StartTime,
				"end":            reservation.EndTime,
			})
		}
		if err := s.repo.MarkReminderSent(ctx, reservation.ID); err != nil {
			s.log.Error("reminder flag update failed", "reservation_id", reservation.ID, "error", err)
			continue
		}
		sent++
	}
	return sent, nil
}

func (s *service) validateWindow(start, end, now time.Time, maxDuration time.Duration) error {
	if !end.After(start) {
		return apperrors.New(apperrors.KindValidation, "end must be after start")
	}
	if !start.After(now) {
		return apperrors.New(apperrors.KindValidation, "start must be in the future")
	}
	duration := end.Sub(start)
	if duration < s.cfg.MinDuration {
		return apperrors.Newf(apperrors.KindValidation,
			"reservation must be at least %s", s.cfg.MinDuration)
	}
	if duration > maxDuration {
		return apperrors.Newf(apperrors.KindValidation,
			"reservation must be at most %s", maxDuration)
	}
	return nil
}

func (s *service) checkResourceBookable(ctx context.Context, resourceID int64, start, end time.Time) (*resources.Resource, error) {
	resource, err := s.resources.RefreshStatus(ctx, resourceID)
	if err != nil {
		return nil, err
	}
	if !resource.Available {
		return nil, apperrors.Newf(apperrors.KindValidation, "resource %q is not accepting bookings", resource.Name)
	}
	if resource.Status == resources.StatusUnavailable {
		return nil, apperrors.Newf(apperrors.KindValidation, "resource %q is unavailable", resource.Name)
	}

	schedule, err := s.resources.GetSchedule(ctx, resourceID)
	if err != nil {
		return nil, err
	}
	if !resources.WithinBusinessHours(schedule.BusinessHours, start, end) {
		return nil, apperrors.New(apperrors.KindValidation, "requested window falls outside business hours")
	}
	if resources.BlackedOut(schedule.BlackoutDates, start, end) {
		return nil, apperrors.New(apperrors.KindValidation, "requested window falls in a blackout period")
	}
	return resource, nil
}

func (s *service) invalidateCache(ctx context.Context) {
	for _, pattern := range []string{
		constants.PATTERN_INVALIDATE_RESOURCES_ALL,
		constants.PATTERN_INVALIDATE_DASHBOARD_ALL,
		constants.CACHE_PREFIX + ":reservations:*",
	} {
		if err := s.cache.DeletePattern(ctx, pattern); err != nil {
			s.log.Debug("cache invalidation failed", "pattern", pattern, "error", err)
		}
	}
}
