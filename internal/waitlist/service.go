package waitlist

import (
	"context"
	"errors"
	"fmt"
	"time"

	"reserver/internal/bus"
	"reserver/internal/reservations"
	"reserver/internal/shared/apperrors"
	"reserver/internal/shared/config"
	"reserver/internal/shared/constants"
	"reserver/pkg/cache"
	"reserver/pkg/clock"
	"reserver/pkg/logger"
	"reserver/pkg/metrics"
)

// Service runs the per-resource waitlist queues. It satisfies
// reservations.WaitlistService so freed windows flow in from the allocator
// without an import cycle.
type Service interface {
	Join(ctx context.Context, userID int64, req JoinWaitlistRequest) (*WaitlistEntryResponse, error)
	Leave(ctx context.Context, userID int64, entryID int64) error
	Accept(ctx context.Context, userID int64, entryID int64) (*reservations.ReservationResponse, error)
	Decline(ctx context.Context, userID int64, entryID int64) error
	ListMine(ctx context.Context, userID int64) ([]WaitlistEntryResponse, error)
	GetPosition(ctx context.Context, userID, resourceID int64) (*PositionResponse, error)

	// CheckAndOfferSlot hands a freed window to the best-matching queued
	// entry. At most one offer is made per freed window.
	CheckAndOfferSlot(ctx context.Context, resourceID int64, start, end time.Time) error

	// ExpireStaleOffers is the scheduler step that lapses overdue offers
	// and re-offers their windows down the queue.
	ExpireStaleOffers(ctx context.Context) (int, error)
}

type service struct {
	repo         Repository
	reservations reservations.Service
	resources    reservations.ResourceDirectory
	cache        cache.Service
	events       *bus.Bus
	notifier     reservations.Notifier
	pusher       reservations.Pusher
	clock        clock.Clock
	log          *logger.Logger
	offerTTL     time.Duration
	batchSize    int
}

func NewService(
	repo Repository,
	reservationService reservations.Service,
	resourceDir reservations.ResourceDirectory,
	cacheService cache.Service,
	events *bus.Bus,
	notifier reservations.Notifier,
	pusher reservations.Pusher,
	clk clock.Clock,
	log *logger.Logger,
	cfg *config.Config,
) Service {
	return &service{
		repo:         repo,
		reservations: reservationService,
		resources:    resourceDir,
		cache:        cacheService,
		events:       events,
		notifier:     notifier,
		pusher:       pusher,
		clock:        clk,
		log:          log,
		offerTTL:     cfg.Waitlist.OfferTTL,
		batchSize:    cfg.Scheduler.BatchSize,
	}
}

func (s *service) Join(ctx context.Context, userID int64, req JoinWaitlistRequest) (*WaitlistEntryResponse, error) {
	start, end := req.DesiredStart.UTC(), req.DesiredEnd.UTC()
	if !end.After(start) {
		return nil, apperrors.New(apperrors.KindValidation, "desired_end must be after desired_start")
	}
	if !start.After(s.clock.Now()) {
		return nil, apperrors.New(apperrors.KindValidation, "desired_start must be in the future")
	}
	if _, err := s.resources.RefreshStatus(ctx, req.ResourceID); err != nil {
		return nil, err
	}

	entry := &WaitlistEntry{
		UserID:       userID,
		ResourceID:   req.ResourceID,
		DesiredStart: start,
		DesiredEnd:   end,
		FlexibleTime: req.FlexibleTime,
	}
	if err := s.repo.Join(ctx, entry); err != nil {
		return nil, err
	}
	s.invalidatePosition(ctx, req.ResourceID, userID)

	resp := entry.ToResponse()
	return &resp, nil
}

func (s *service) Leave(ctx context.Context, userID int64, entryID int64) error {
	entry, err := s.ownEntry(ctx, userID, entryID)
	if err != nil {
		return err
	}

	settled, err := s.repo.Settle(ctx, entryID, StatusCancelled)
	if err != nil {
		return err
	}
	s.invalidatePosition(ctx, settled.ResourceID, userID)

	// Leaving while holding an offer releases the offered window back to
	// the rest of the queue.
	if entry.Status == StatusOffered && entry.OfferStart != nil && entry.OfferEnd != nil {
		if err := s.CheckAndOfferSlot(ctx, entry.ResourceID, *entry.OfferStart, *entry.OfferEnd); err != nil {
			s.log.Error("re-offer after leave failed", "entry_id", entryID, "error", err)
		}
	}
	return nil
}

func (s *service) Decline(ctx context.Context, userID int64, entryID int64) error {
	entry, err := s.ownEntry(ctx, userID, entryID)
	if err != nil {
		return err
	}
	if entry.Status != StatusOffered {
		return apperrors.Newf(apperrors.KindValidation, "waitlist entry %d has no open offer", entryID)
	}
	return s.Leave(ctx, userID, entryID)
}

func (s *service) Accept(ctx context.Context, userID int64, entryID int64) (*reservations.ReservationResponse, error) {
	entry, err := s.ownEntry(ctx, userID, entryID)
	if err != nil {
		return nil, err
	}
	if entry.Status != StatusOffered || entry.OfferStart == nil || entry.OfferEnd == nil {
		return nil, apperrors.Newf(apperrors.KindValidation, "waitlist entry %d has no open offer", entryID)
	}
	now := s.clock.Now()
	if entry.OfferExpiresAt != nil && now.After(*entry.OfferExpiresAt) {
		if _, err := s.repo.Settle(ctx, entryID, StatusExpired); err != nil {
			s.log.Error("settling lapsed offer failed", "entry_id", entryID, "error", err)
		}
		return nil, apperrors.Newf(apperrors.KindOfferExpired, "offer for waitlist entry %d has expired", entryID)
	}

	reservation, err := s.reservations.CreateReservation(ctx, userID, reservations.CreateReservationRequest{
		ResourceID: entry.ResourceID,
		Start:      *entry.OfferStart,
		End:        *entry.OfferEnd,
	})
	if err != nil {
		var conflict *apperrors.ConflictError
		if errors.As(err, &conflict) {
			// The window was taken back between offer and accept. The entry
			// is spent; pass the window down the queue anyway in case a
			// flexible candidate still fits.
			if _, settleErr := s.repo.Settle(ctx, entryID, StatusExpired); settleErr != nil {
				s.log.Error("settling conflicted offer failed", "entry_id", entryID, "error", settleErr)
			}
			s.invalidatePosition(ctx, entry.ResourceID, userID)
			if offerErr := s.CheckAndOfferSlot(ctx, entry.ResourceID, *entry.OfferStart, *entry.OfferEnd); offerErr != nil {
				s.log.Error("re-offer after conflict failed", "entry_id", entryID, "error", offerErr)
			}
		}
		return nil, err
	}

	if _, err := s.repo.Settle(ctx, entryID, StatusFulfilled); err != nil {
		s.log.Error("settling fulfilled entry failed", "entry_id", entryID, "error", err)
	}
	s.invalidatePosition(ctx, entry.ResourceID, userID)

	s.events.Publish(bus.EventWaitlistAccepted, bus.WaitlistData{
		EntryID:      entry.ID,
		ResourceID:   entry.ResourceID,
		UserID:       userID,
		DesiredStart: entry.DesiredStart,
		DesiredEnd:   entry.DesiredEnd,
	})
	return reservation, nil
}

func (s *service) ListMine(ctx context.Context, userID int64) ([]WaitlistEntryResponse, error) {
	entries, err := s.repo.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	responses := make([]WaitlistEntryResponse, len(entries))
	for i := range entries {
		responses[i] = entries[i].ToResponse()
	}
	return responses, nil
}

func (s *service) GetPosition(ctx context.Context, userID, resourceID int64) (*PositionResponse, error) {
	fetch := func() (interface{}, error) {
		entries, err := s.repo.ListForUser(ctx, userID)
		if err != nil {
			return nil, err
		}

		// A user can wait on several windows of the same resource; report
		// the closest place in line. A lone outstanding offer reports
		// position 0: the entry already left the waiting line.
		best := -1
		for i := range entries {
			if entries[i].ResourceID != resourceID {
				continue
			}
			pos := entries[i].Position
			if best == -1 || (pos > 0 && (best == 0 || pos < best)) {
				best = pos
			}
		}
		if best == -1 {
			return nil, apperrors.Newf(apperrors.KindNotFound,
				"user %d is not on the waitlist for resource %d", userID, resourceID)
		}

		size, err := s.repo.QueueSize(ctx, resourceID)
		if err != nil {
			return nil, err
		}
		return &PositionResponse{ResourceID: resourceID, Position: best, QueueSize: size}, nil
	}

	var cached PositionResponse
	key := constants.BuildWaitlistPositionKey(resourceID, userID)
	if err := s.cache.GetOrSet(ctx, key, constants.TTL_WAITLIST_POSITION, fetch, &cached); err == nil {
		return &cached, nil
	}

	out, err := fetch()
	if err != nil {
		return nil, err
	}
	return out.(*PositionResponse), nil
}

func (s *service) CheckAndOfferSlot(ctx context.Context, resourceID int64, start, end time.Time) error {
	candidates, err := s.repo.CandidatesForWindow(ctx, resourceID, start, end)
	if err != nil {
		return err
	}
	if len(candidates) == 0 {
		return nil
	}

	now := s.clock.Now()
	expiresAt := now.Add(s.offerTTL)
	entry, err := s.repo.MarkOffered(ctx, candidates[0].ID, start, end, now, expiresAt)
	if err != nil {
		return err
	}
	metrics.WaitlistOffers.Inc()
	s.log.LogWaitlistOffer(ctx, entry.ID, resourceID, entry.UserID)
	s.invalidatePosition(ctx, resourceID, entry.UserID)

	resourceName := s.resourceName(ctx, resourceID)
	s.events.Publish(bus.EventWaitlistOffer, bus.WaitlistData{
		EntryID:        entry.ID,
		ResourceID:     resourceID,
		ResourceName:   resourceName,
		UserID:         entry.UserID,
		DesiredStart:   start,
		DesiredEnd:     end,
		Position:       entry.Position,
		OfferExpiresAt: &expiresAt,
	})

	title := "Waitlist slot available"
	message := fmt.Sprintf("A slot for %s opened up from %s to %s. The offer expires at %s.",
		resourceName,
		start.UTC().Format("15:04 on Jan 2"),
		end.UTC().Format("15:04"),
		expiresAt.UTC().Format("15:04"))
	link := fmt.Sprintf("/waitlist/%d", entry.ID)
	if err := s.notifier.Notify(ctx, entry.UserID, "resource_available", title, message, link); err != nil {
		s.log.Error("waitlist offer notification failed", "entry_id", entry.ID, "error", err)
	}
	if s.pusher != nil {
		s.pusher.SendToUser(entry.UserID, map[string]interface{}{
			"type":             "waitlist_offer",
			"entry_id":         entry.ID,
			"resource_id":      resourceID,
			"resource_name":    resourceName,
			"offer_start":      start,
			"offer_end":        end,
			"offer_expires_at": expiresAt,
		})
	}
	return nil
}

func (s *service) ExpireStaleOffers(ctx context.Context) (int, error) {
	now := s.clock.Now()
	total := 0

	for {
		stale, err := s.repo.ExpiredOffers(ctx, now, s.batchSize)
		if err != nil {
			return total, err
		}
		if len(stale) == 0 {
			break
		}

		for i := range stale {
			entry := &stale[i]
			if _, err := s.repo.Settle(ctx, entry.ID, StatusExpired); err != nil {
				s.log.Error("expiring stale offer failed", "entry_id", entry.ID, "error", err)
				continue
			}
			total++
			s.invalidatePosition(ctx, entry.ResourceID, entry.UserID)

			s.events.Publish(bus.EventWaitlistExpired, bus.WaitlistData{
				EntryID:      entry.ID,
				ResourceID:   entry.ResourceID,
				UserID:       entry.UserID,
				DesiredStart: entry.DesiredStart,
				DesiredEnd:   entry.DesiredEnd,
			})
			if err := s.notifier.Notify(ctx, entry.UserID, "system_announcement",
				"Waitlist offer expired",
				fmt.Sprintf("Your waitlist offer for resource %d expired without a response", entry.ResourceID),
				fmt.Sprintf("/waitlist/%d", entry.ID)); err != nil {
				s.log.Error("offer expiry notification failed", "entry_id", entry.ID, "error", err)
			}

			// The window is still free; pass it to the next candidate.
			if entry.OfferStart != nil && entry.OfferEnd != nil {
				if err := s.CheckAndOfferSlot(ctx, entry.ResourceID, *entry.OfferStart, *entry.OfferEnd); err != nil {
					s.log.Error("re-offer after expiry failed", "entry_id", entry.ID, "error", err)
				}
			}
		}

		if len(stale) < s.batchSize {
			break
		}
	}
	return total, nil
}

func (s *service) ownEntry(ctx context.Context, userID, entryID int64) (*WaitlistEntry, error) {
	entry, err := s.repo.GetByID(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if entry.UserID != userID {
		return nil, apperrors.New(apperrors.KindForbidden, "not allowed to modify this waitlist entry")
	}
	return entry, nil
}

func (s *service) resourceName(ctx context.Context, resourceID int64) string {
	resource, err := s.resources.RefreshStatus(ctx, resourceID)
	if err != nil {
		return fmt.Sprintf("resource %d", resourceID)
	}
	return resource.Name
}

func (s *service) invalidatePosition(ctx context.Context, resourceID, userID int64) {
	key := constants.BuildWaitlistPositionKey(resourceID, userID)
	if err := s.cache.Delete(ctx, key); err != nil {
		s.log.Debug("waitlist position cache invalidation failed", "key", key, "error", err)
	}
}
