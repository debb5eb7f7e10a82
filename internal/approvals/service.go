package approvals

import (
	"context"
	"errors"
	"fmt"
	"math"

	"reserver/internal/reservations"
	"reserver/internal/shared/apperrors"
	"reserver/pkg/clock"
	"reserver/pkg/logger"
)

const conflictOnApprovalReason = "conflict on approval"

// Service coordinates approval requests for gated reservations. It also
// satisfies reservations.ApprovalService, which is how the allocator opens
// requests without importing this package.
type Service interface {
	OpenRequest(ctx context.Context, reservationID, requesterID, approverID int64, message string) error
	ResolveForCancelledReservation(ctx context.Context, reservationID int64) error

	Approve(ctx context.Context, approverID, requestID int64, message string) (*ApprovalResponse, error)
	Reject(ctx context.Context, approverID, requestID int64, message string) (*ApprovalResponse, error)
	ListPending(ctx context.Context, approverID int64, query ApprovalListQuery) (*PaginatedApprovals, error)
}

type service struct {
	repo         Repository
	reservations reservations.Service
	notifier     reservations.Notifier
	pusher       reservations.Pusher
	clock        clock.Clock
	log          *logger.Logger
}

func NewService(
	repo Repository,
	reservationService reservations.Service,
	notifier reservations.Notifier,
	pusher reservations.Pusher,
	clk clock.Clock,
	log *logger.Logger,
) Service {
	return &service{
		repo:         repo,
		reservations: reservationService,
		notifier:     notifier,
		pusher:       pusher,
		clock:        clk,
		log:          log,
	}
}

func (s *service) OpenRequest(ctx context.Context, reservationID, requesterID, approverID int64, message string) error {
	request := &ApprovalRequest{
		ReservationID:  reservationID,
		RequesterID:    requesterID,
		ApproverID:     approverID,
		Status:         StatusPending,
		RequestMessage: message,
	}
	if err := s.repo.Create(ctx, request); err != nil {
		return err
	}

	title := "Approval needed"
	body := fmt.Sprintf("Reservation %d is waiting for your approval", reservationID)
	link := fmt.Sprintf("/approvals/%d", request.ID)
	// The stored notification type set is closed; the approval ask lands
	// as an announcement while the socket push keeps its own type.
	if err := s.notifier.Notify(ctx, approverID, "system_announcement", title, body, link); err != nil {
		s.log.Error("approver notification failed", "request_id", request.ID, "error", err)
	}
	if s.pusher != nil {
		s.pusher.SendToUser(approverID, map[string]interface{}{
			"type":           "approval_request",
			"request_id":     request.ID,
			"reservation_id": reservationID,
			"requester_id":   requesterID,
		})
	}
	return nil
}

// ResolveForCancelledReservation closes the pending request when the
// requester cancels before a decision lands. No approval request is an
// acceptable state here; the reservation may have been resolved already.
func (s *service) ResolveForCancelledReservation(ctx context.Context, reservationID int64) error {
	request, err := s.repo.GetPendingByReservation(ctx, reservationID)
	if err != nil {
		if apperrors.KindOf(err) == apperrors.KindNotFound {
			return nil
		}
		return err
	}

	_, err = s.repo.Resolve(ctx, request.ID, StatusRejected, "cancelled by requester", s.clock.Now())
	if err != nil && apperrors.KindOf(err) != apperrors.KindAlreadyResolved {
		return err
	}
	return nil
}

func (s *service) Approve(ctx context.Context, approverID, requestID int64, message string) (*ApprovalResponse, error) {
	request, err := s.repo.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if request.ApproverID != approverID {
		return nil, apperrors.New(apperrors.KindForbidden, "only the assigned approver can decide this request")
	}

	if request.Status != StatusPending {
		return nil, apperrors.Newf(apperrors.KindAlreadyResolved,
			"approval request %d already %s", requestID, request.Status)
	}

	reservation, err := s.reservations.ActivatePending(ctx, approverID, request.ReservationID)
	if err != nil {
		var conflict *apperrors.ConflictError
		if errors.As(err, &conflict) {
			// The window filled up while the request sat in the queue. The
			// reservation is already rejected; close the request to match
			// and tell the requester what happened.
			resolved, resolveErr := s.repo.Resolve(ctx, requestID, StatusRejected, conflictOnApprovalReason, s.clock.Now())
			if resolveErr != nil {
				s.log.Error("conflict resolution of approval request failed",
					"request_id", requestID, "error", resolveErr)
				resolved = request
			}
			s.notifyRequester(ctx, resolved, "reservation_cancelled",
				"Reservation could not be approved",
				fmt.Sprintf("Reservation %d was rejected: the time slot was taken while approval was pending", request.ReservationID))
			return nil, err
		}
		return nil, err
	}

	resolved, err := s.repo.Resolve(ctx, requestID, StatusApproved, message, s.clock.Now())
	if err != nil {
		return nil, err
	}

	s.notifyRequester(ctx, resolved, "reservation_confirmed",
		"Reservation approved",
		fmt.Sprintf("Your reservation %d has been approved", reservation.ID))

	out := resolved.ToResponse()
	return &out, nil
}

func (s *service) Reject(ctx context.Context, approverID, requestID int64, message string) (*ApprovalResponse, error) {
	request, err := s.repo.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if request.ApproverID != approverID {
		return nil, apperrors.New(apperrors.KindForbidden, "only the assigned approver can decide this request")
	}

	if request.Status != StatusPending {
		return nil, apperrors.Newf(apperrors.KindAlreadyResolved,
			"approval request %d already %s", requestID, request.Status)
	}

	if _, err := s.reservations.RejectPending(ctx, approverID, request.ReservationID, message); err != nil {
		// A reservation the requester cancelled in the meantime is already
		// settled; the request still needs closing.
		if apperrors.KindOf(err) != apperrors.KindAlreadyResolved {
			return nil, err
		}
	}

	resolved, err := s.repo.Resolve(ctx, requestID, StatusRejected, message, s.clock.Now())
	if err != nil {
		return nil, err
	}

	s.notifyRequester(ctx, resolved, "reservation_cancelled",
		"Reservation rejected",
		fmt.Sprintf("Your reservation %d was rejected", resolved.ReservationID))

	out := resolved.ToResponse()
	return &out, nil
}

func (s *service) ListPending(ctx context.Context, approverID int64, query ApprovalListQuery) (*PaginatedApprovals, error) {
	if query.Page == 0 {
		query.Page = 1
	}
	if query.Limit == 0 {
		query.Limit = 10
	}

	requests, totalCount, err := s.repo.ListPendingForApprover(ctx, approverID, query)
	if err != nil {
		return nil, err
	}

	responses := make([]ApprovalResponse, len(requests))
	for i := range requests {
		responses[i] = requests[i].ToResponse()
	}
	return &PaginatedApprovals{
		Requests:   responses,
		TotalCount: totalCount,
		Page:       query.Page,
		Limit:      query.Limit,
		TotalPages: int(math.Ceil(float64(totalCount) / float64(query.Limit))),
	}, nil
}

func (s *service) notifyRequester(ctx context.Context, request *ApprovalRequest, notificationType, title, message string) {
	link := fmt.Sprintf("/reservations/%d", request.ReservationID)
	if err := s.notifier.Notify(ctx, request.RequesterID, notificationType, title, message, link); err != nil {
		s.log.Error("requester notification failed", "request_id", request.ID, "error", err)
	}
	if s.pusher != nil {
		s.pusher.SendToUser(request.RequesterID, map[string]interface{}{
			"type":           notificationType,
			"request_id":     request.ID,
			"reservation_id": request.ReservationID,
			"status":         request.Status,
		})
	}
}
