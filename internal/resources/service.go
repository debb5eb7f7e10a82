package resources

import (
	"context"
	"math"

	"reserver/internal/bus"
	"reserver/internal/shared/apperrors"
	"reserver/internal/shared/constants"
	"reserver/pkg/cache"
	"reserver/pkg/clock"
	"reserver/pkg/logger"
)

type Service interface {
	CreateResource(ctx context.Context, creatorID int64, req CreateResourceRequest) (*ResourceResponse, error)
	GetResource(ctx context.Context, id int64) (*ResourceResponse, error)
	ListResources(ctx context.Context, query ResourceListQuery) (*PaginatedResources, error)
	UpdateResource(ctx context.Context, id int64, req UpdateResourceRequest) (*ResourceResponse, error)
	SetUnavailable(ctx context.Context, id int64) (*ResourceResponse, error)
	SetAvailable(ctx context.Context, id int64) (*ResourceResponse, error)

	SetBusinessHours(ctx context.Context, resourceID int64, req BusinessHoursRequest) ([]BusinessHours, error)
	GetSchedule(ctx context.Context, resourceID int64) (*ScheduleResponse, error)
	AddBlackoutDate(ctx context.Context, resourceID, adminID int64, req BlackoutDateRequest) (*BlackoutDate, error)
	RemoveBlackoutDate(ctx context.Context, resourceID, blackoutID int64) error

	// RefreshStatus recomputes and, when changed, persists the resource
	// status. Reservation commits and the scheduler both go through this.
	RefreshStatus(ctx context.Context, id int64) (*Resource, error)

	// AutoResetUnavailable flips resources whose explicit unavailability has
	// aged past auto_reset_hours back to available. Scheduler step.
	AutoResetUnavailable(ctx context.Context) (int, error)
}

type ScheduleResponse struct {
	ResourceID    int64           `json:"resource_id"`
	BusinessHours []BusinessHours `json:"business_hours"`
	BlackoutDates []BlackoutDate  `json:"blackout_dates"`
}

type service struct {
	repo   Repository
	cache  cache.Service
	events *bus.Bus
	clock  clock.Clock
	log    *logger.Logger
}

func NewService(repo Repository, cacheService cache.Service, events *bus.Bus, clk clock.Clock, log *logger.Logger) Service {
	return &service{
		repo:   repo,
		cache:  cacheService,
		events: events,
		clock:  clk,
		log:    log,
	}
}

func (s *service) CreateResource(ctx context.Context, creatorID int64, req CreateResourceRequest) (*ResourceResponse, error) {
	autoReset := req.AutoResetHours
	if autoReset == 0 {
		autoReset = 24
	}

	resource := &Resource{
		Name:              req.Name,
		Description:       req.Description,
		Available:         true,
		Status:            StatusAvailable,
		AutoResetHours:    autoReset,
		RequiresApproval:  req.RequiresApproval,
		DefaultApproverID: req.DefaultApproverID,
		Tags:              req.Tags,
		CreatedBy:         creatorID,
	}

	if err := s.repo.Create(ctx, resource); err != nil {
		return nil, err
	}

	s.events.Publish(bus.EventResourceCreated, bus.ResourceData{
		ResourceID: resource.ID,
		Name:       resource.Name,
		Status:     string(resource.Status),
	})
	s.invalidateCache(ctx)

	resp := resource.ToResponse()
	return &resp, nil
}

func (s *service) GetResource(ctx context.Context, id int64) (*ResourceResponse, error) {
	resource, err := s.RefreshStatus(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := resource.ToResponse()
	return &resp, nil
}

func (s *service) ListResources(ctx context.Context, query ResourceListQuery) (*PaginatedResources, error) {
	if query.Page == 0 {
		query.Page = 1
	}
	if query.Limit == 0 {
		query.Limit = 10
	}

	// Listings tolerate slightly stale statuses; the detail endpoint is the
	// fresh read.
	if query.Search == "" && query.Tag == "" {
		var cached PaginatedResources
		key := constants.BuildResourceListKey(query.Page, query.Limit, query.Status)
		err := s.cache.GetOrSet(ctx, key, constants.TTL_RESOURCE_LIST, func() (interface{}, error) {
			return s.listFromStore(ctx, query)
		}, &cached)
		if err == nil {
			return &cached, nil
		}
	}

	return s.listFromStore(ctx, query)
}

func (s *service) listFromStore(ctx context.Context, query ResourceListQuery) (*PaginatedResources, error) {
	items, totalCount, err := s.repo.List(ctx, query)
	if err != nil {
		return nil, err
	}

	responses := make([]ResourceResponse, len(items))
	for i := range items {
		responses[i] = items[i].ToResponse()
	}

	return &PaginatedResources{
		Resources:  responses,
		TotalCount: totalCount,
		Page:       query.Page,
		Limit:      query.Limit,
		TotalPages: int(math.Ceil(float64(totalCount) / float64(query.Limit))),
	}, nil
}

func (s *service) UpdateResource(ctx context.Context, id int64, req UpdateResourceRequest) (*ResourceResponse, error) {
	updates := map[string]interface{}{}
	if req.Name != nil {
		updates["name"] = *req.Name
	}
	if req.Description != nil {
		updates["description"] = *req.Description
	}
	if req.Available != nil {
		updates["available"] = *req.Available
	}
	if req.AutoResetHours != nil {
		updates["auto_reset_hours"] = *req.AutoResetHours
	}
	if req.RequiresApproval != nil {
		updates["requires_approval"] = *req.RequiresApproval
	}
	if req.DefaultApproverID != nil {
		updates["default_approver_id"] = *req.DefaultApproverID
	}
	if req.Tags != nil {
		updates["tags"] = req.Tags
	}
	if len(updates) == 0 {
		return nil, apperrors.New(apperrors.KindValidation, "no fields to update")
	}

	resource, err := s.repo.Update(ctx, id, updates)
	if err != nil {
		return nil, err
	}

	s.events.Publish(bus.EventResourceUpdated, bus.ResourceData{
		ResourceID: resource.ID,
		Name:       resource.Name,
		Status:     string(resource.Status),
	})
	s.invalidateCache(ctx)

	resp := resource.ToResponse()
	return &resp, nil
}

func (s *service) SetUnavailable(ctx context.Context, id int64) (*ResourceResponse, error) {
	resource, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	if err := s.repo.SetStatus(ctx, id, StatusUnavailable, &now); err != nil {
		return nil, err
	}
	resource.Status = StatusUnavailable
	resource.UnavailableSince = &now

	s.events.Publish(bus.EventResourceUnavailable, bus.ResourceData{
		ResourceID: resource.ID,
		Name:       resource.Name,
		Status:     string(StatusUnavailable),
	})
	s.invalidateCache(ctx)

	resp := resource.ToResponse()
	return &resp, nil
}

func (s *service) SetAvailable(ctx context.Context, id int64) (*ResourceResponse, error) {
	resource, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := s.repo.SetStatus(ctx, id, StatusAvailable, nil); err != nil {
		return nil, err
	}
	resource.Status = StatusAvailable
	resource.UnavailableSince = nil

	s.events.Publish(bus.EventResourceAvailable, bus.ResourceData{
		ResourceID: resource.ID,
		Name:       resource.Name,
		Status:     string(StatusAvailable),
	})
	s.invalidateCache(ctx)

	resp := resource.ToResponse()
	return &resp, nil
}

func (s *service) SetBusinessHours(ctx context.Context, resourceID int64, req BusinessHoursRequest) ([]BusinessHours, error) {
	if _, err := s.repo.GetByID(ctx, resourceID); err != nil {
		return nil, err
	}

	seen := map[int]bool{}
	hours := make([]BusinessHours, 0, len(req.Hours))
	for _, day := range req.Hours {
		if seen[day.DayOfWeek] {
			return nil, apperrors.Newf(apperrors.KindValidation, "duplicate day_of_week %d", day.DayOfWeek)
		}
		seen[day.DayOfWeek] = true

		h := BusinessHours{
			ResourceID: resourceID,
			DayOfWeek:  day.DayOfWeek,
			OpenTime:   day.OpenTime,
			CloseTime:  day.CloseTime,
			IsClosed:   day.IsClosed,
		}
		if h.OpenTime == "" {
			h.OpenTime = "09:00"
		}
		if h.CloseTime == "" {
			h.CloseTime = "17:00"
		}
		if !h.IsClosed {
			open, errOpen := parseClock(h.OpenTime)
			closeAt, errClose := parseClock(h.CloseTime)
			if errOpen != nil || errClose != nil || closeAt <= open {
				return nil, apperrors.Newf(apperrors.KindValidation,
					"invalid hours %s-%s for day %d", h.OpenTime, h.CloseTime, day.DayOfWeek)
			}
		}
		hours = append(hours, h)
	}

	if err := s.repo.ReplaceBusinessHours(ctx, resourceID, hours); err != nil {
		return nil, err
	}

	// The schedule can flip the computed status (e.g. every day closed).
	if _, err := s.RefreshStatus(ctx, resourceID); err != nil {
		s.log.Warn("status refresh after schedule change failed", "resource_id", resourceID, "error", err)
	}
	s.invalidateCache(ctx)

	return hours, nil
}

func (s *service) GetSchedule(ctx context.Context, resourceID int64) (*ScheduleResponse, error) {
	if _, err := s.repo.GetByID(ctx, resourceID); err != nil {
		return nil, err
	}

	hours, err := s.repo.GetBusinessHours(ctx, resourceID)
	if err != nil {
		return nil, err
	}
	blackouts, err := s.repo.ListBlackoutDates(ctx, resourceID)
	if err != nil {
		return nil, err
	}

	return &ScheduleResponse{
		ResourceID:    resourceID,
		BusinessHours: hours,
		BlackoutDates: blackouts,
	}, nil
}

func (s *service) AddBlackoutDate(ctx context.Context, resourceID, adminID int64, req BlackoutDateRequest) (*BlackoutDate, error) {
	if _, err := s.repo.GetByID(ctx, resourceID); err != nil {
		return nil, err
	}
	if !req.EndDate.After(req.StartDate) {
		return nil, apperrors.New(apperrors.KindValidation, "end_date must be after start_date")
	}

	blackout := &BlackoutDate{
		ResourceID: resourceID,
		StartDate:  req.StartDate.UTC(),
		EndDate:    req.EndDate.UTC(),
		Reason:     req.Reason,
		CreatedBy:  adminID,
	}
	if err := s.repo.AddBlackoutDate(ctx, blackout); err != nil {
		return nil, err
	}

	if _, err := s.RefreshStatus(ctx, resourceID); err != nil {
		s.log.Warn("status refresh after blackout failed", "resource_id", resourceID, "error", err)
	}
	s.invalidateCache(ctx)

	return blackout, nil
}

func (s *service) RemoveBlackoutDate(ctx context.Context, resourceID, blackoutID int64) error {
	if err := s.repo.DeleteBlackoutDate(ctx, resourceID, blackoutID); err != nil {
		return err
	}
	if _, err := s.RefreshStatus(ctx, resourceID); err != nil {
		s.log.Warn("status refresh after blackout removal failed", "resource_id", resourceID, "error", err)
	}
	s.invalidateCache(ctx)
	return nil
}

func (s *service) RefreshStatus(ctx context.Context, id int64) (*Resource, error) {
	resource, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	hasActive, err := s.repo.HasActiveReservationAt(ctx, id, now)
	if err != nil {
		return nil, err
	}
	hours, err := s.repo.GetBusinessHours(ctx, id)
	if err != nil {
		return nil, err
	}
	blackouts, err := s.repo.ListBlackoutDates(ctx, id)
	if err != nil {
		return nil, err
	}

	computed := ComputeStatus(StatusInput{
		UnavailableSince: resource.UnavailableSince,
		AutoResetHours:   resource.AutoResetHours,
		HasActiveNow:     hasActive,
		ScheduleClosed:   ScheduleClosed(hours, blackouts, now),
	}, now)

	if computed == resource.Status {
		return resource, nil
	}

	since := resource.UnavailableSince
	if computed != StatusUnavailable {
		// Auto-reset fired or the schedule cleared.
		since = nil
	}
	if err := s.repo.SetStatus(ctx, id, computed, since); err != nil {
		return nil, err
	}

	resource.Status = computed
	resource.UnavailableSince = since
	s.invalidateCache(ctx)
	return resource, nil
}

func (s *service) AutoResetUnavailable(ctx context.Context) (int, error) {
	due, err := s.repo.AutoResetDue(ctx, s.clock.Now())
	if err != nil {
		return 0, err
	}

	reset := 0
	for i := range due {
		resource := &due[i]
		if err := s.repo.SetStatus(ctx, resource.ID, StatusAvailable, nil); err != nil {
			s.log.Warn("auto-reset failed", "resource_id", resource.ID, "error", err)
			continue
		}
		reset++
		s.events.Publish(bus.EventResourceAvailable, bus.ResourceData{
			ResourceID: resource.ID,
			Name:       resource.Name,
			Status:     string(StatusAvailable),
		})
	}

	if reset > 0 {
		s.invalidateCache(ctx)
	}
	return reset, nil
}

func (s *service) invalidateCache(ctx context.Context) {
	if err := s.cache.DeletePattern(ctx, constants.PATTERN_INVALIDATE_RESOURCES_ALL); err != nil {
		s.log.Debug("resource cache invalidation failed", "error", err)
	}
	if err := s.cache.DeletePattern(ctx, constants.PATTERN_INVALIDATE_DASHBOARD_ALL); err != nil {
		s.log.Debug("dashboard cache invalidation failed", "error", err)
	}
}
