package approvals

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reserver/internal/reservations"
	"reserver/internal/shared/apperrors"
	"reserver/pkg/clock"
	"reserver/pkg/logger"
)

type fakeRepo struct {
	mu       sync.Mutex
	nextID   int64
	requests map[int64]*ApprovalRequest
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{requests: map[int64]*ApprovalRequest{}}
}

func (f *fakeRepo) Create(ctx context.Context, request *ApprovalRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	request.ID = f.nextID
	f.requests[request.ID] = request
	return nil
}

func (f *fakeRepo) GetByID(ctx context.Context, id int64) (*ApprovalRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.requests[id]
	if !ok {
		return nil, apperrors.Newf(apperrors.KindNotFound, "approval request %d not found", id)
	}
	copied := *r
	return &copied, nil
}

func (f *fakeRepo) GetPendingByReservation(ctx context.Context, reservationID int64) (*ApprovalRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.requests {
		if r.ReservationID == reservationID && r.Status == StatusPending {
			copied := *r
			return &copied, nil
		}
	}
	return nil, apperrors.Newf(apperrors.KindNotFound, "no pending approval request for reservation %d", reservationID)
}

func (f *fakeRepo) ListPendingForApprover(ctx context.Context, approverID int64, query ApprovalListQuery) ([]ApprovalRequest, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []ApprovalRequest
	for _, r := range f.requests {
		if r.ApproverID == approverID && r.Status == StatusPending {
			out = append(out, *r)
		}
	}
	return out, int64(len(out)), nil
}

func (f *fakeRepo) Resolve(ctx context.Context, id int64, status RequestStatus, responseMessage string, now time.Time) (*ApprovalRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.requests[id]
	if !ok {
		return nil, apperrors.Newf(apperrors.KindNotFound, "approval request %d not found", id)
	}
	if r.Status != StatusPending {
		return nil, apperrors.Newf(apperrors.KindAlreadyResolved, "approval request %d already %s", id, r.Status)
	}
	r.Status = status
	r.ResponseMessage = responseMessage
	r.RespondedAt = &now
	copied := *r
	return &copied, nil
}

// stubReservations implements reservations.Service with only the two methods
// the coordinator calls; the rest are unused.
type stubReservations struct {
	reservations.Service

	activateFn func(ctx context.Context, approverID, reservationID int64) (*reservations.Reservation, error)
	rejectFn   func(ctx context.Context, approverID, reservationID int64, reason string) (*reservations.Reservation, error)
}

func (s *stubReservations) ActivatePending(ctx context.Context, approverID, reservationID int64) (*reservations.Reservation, error) {
	return s.activateFn(ctx, approverID, reservationID)
}

func (s *stubReservations) RejectPending(ctx context.Context, approverID, reservationID int64, reason string) (*reservations.Reservation, error) {
	return s.rejectFn(ctx, approverID, reservationID, reason)
}

type sentNotification struct {
	userID           int64
	notificationType string
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
}

func (f *fakeNotifier) Notify(ctx context.Context, userID int64, notificationType, title, message, link string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentNotification{userID, notificationType})
	return nil
}

type fakePusher struct {
	mu       sync.Mutex
	messages []interface{}
}

func (f *fakePusher) SendToUser(userID int64, message interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, message)
}

const (
	requesterID = int64(10)
	approverID  = int64(99)
)

func newTestService(t *testing.T, stub *stubReservations) (Service, *fakeRepo, *fakeNotifier) {
	t.Helper()
	repo := newFakeRepo()
	notifier := &fakeNotifier{}
	clk := clock.NewFake(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	svc := NewService(repo, stub, notifier, &fakePusher{}, clk, logger.GetDefault())
	return svc, repo, notifier
}

func TestOpenRequestNotifiesApprover(t *testing.T) {
	svc, repo, notifier := newTestService(t, &stubReservations{})

	err := svc.OpenRequest(context.Background(), 1, requesterID, approverID, "need the projector")
	require.NoError(t, err)

	request, err := repo.GetByID(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, request.Status)
	assert.Equal(t, "need the projector", request.RequestMessage)

	require.Len(t, notifier.sent, 1)
	assert.Equal(t, approverID, notifier.sent[0].userID)
	assert.Equal(t, "system_announcement", notifier.sent[0].notificationType)
}

func TestApproveActivatesReservation(t *testing.T) {
	activated := int64(0)
	stub := &stubReservations{
		activateFn: func(ctx context.Context, approver, reservationID int64) (*reservations.Reservation, error) {
			activated = reservationID
			return &reservations.Reservation{ID: reservationID, Status: reservations.StatusActive}, nil
		},
	}
	svc, _, notifier := newTestService(t, stub)

	require.NoError(t, svc.OpenRequest(context.Background(), 5, requesterID, approverID, ""))
	notifier.sent = nil

	result, err := svc.Approve(context.Background(), approverID, 1, "go ahead")
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, result.Status)
	assert.Equal(t, "go ahead", result.ResponseMessage)
	assert.NotNil(t, result.RespondedAt)
	assert.Equal(t, int64(5), activated)

	require.Len(t, notifier.sent, 1)
	assert.Equal(t, requesterID, notifier.sent[0].userID)
	assert.Equal(t, "reservation_confirmed", notifier.sent[0].notificationType)
}

func TestApproveRequiresAssignedApprover(t *testing.T) {
	svc, _, _ := newTestService(t, &stubReservations{})
	require.NoError(t, svc.OpenRequest(context.Background(), 5, requesterID, approverID, ""))

	_, err := svc.Approve(context.Background(), requesterID, 1, "")
	assert.Equal(t, apperrors.KindForbidden, apperrors.KindOf(err))
}

func TestApproveConflictRejectsRequest(t *testing.T) {
	stub := &stubReservations{
		activateFn: func(ctx context.Context, approver, reservationID int64) (*reservations.Reservation, error) {
			return &reservations.Reservation{ID: reservationID, Status: reservations.StatusRejected},
				&apperrors.ConflictError{ResourceID: 1, Windows: []apperrors.TimeWindow{{
					Start: time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC),
					End:   time.Date(2025, 6, 2, 11, 0, 0, 0, time.UTC),
				}}}
		},
	}
	svc, repo, notifier := newTestService(t, stub)

	require.NoError(t, svc.OpenRequest(context.Background(), 5, requesterID, approverID, ""))
	notifier.sent = nil

	_, err := svc.Approve(context.Background(), approverID, 1, "")
	require.Error(t, err)
	var conflict *apperrors.ConflictError
	assert.ErrorAs(t, err, &conflict)

	request, err := repo.GetByID(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, request.Status)
	assert.Equal(t, "conflict on approval", request.ResponseMessage)

	require.Len(t, notifier.sent, 1)
	assert.Equal(t, requesterID, notifier.sent[0].userID)
	assert.Equal(t, "reservation_cancelled", notifier.sent[0].notificationType)
}

func TestApproveTwiceAlreadyResolved(t *testing.T) {
	stub := &stubReservations{
		activateFn: func(ctx context.Context, approver, reservationID int64) (*reservations.Reservation, error) {
			return &reservations.Reservation{ID: reservationID, Status: reservations.StatusActive}, nil
		},
	}
	svc, _, _ := newTestService(t, stub)

	require.NoError(t, svc.OpenRequest(context.Background(), 5, requesterID, approverID, ""))
	_, err := svc.Approve(context.Background(), approverID, 1, "")
	require.NoError(t, err)

	_, err = svc.Approve(context.Background(), approverID, 1, "")
	assert.Equal(t, apperrors.KindAlreadyResolved, apperrors.KindOf(err))
}

func TestRejectClosesRequestAndReservation(t *testing.T) {
	rejectedReason := ""
	stub := &stubReservations{
		rejectFn: func(ctx context.Context, approver, reservationID int64, reason string) (*reservations.Reservation, error) {
			rejectedReason = reason
			return &reservations.Reservation{ID: reservationID, Status: reservations.StatusRejected}, nil
		},
	}
	svc, _, notifier := newTestService(t, stub)

	require.NoError(t, svc.OpenRequest(context.Background(), 5, requesterID, approverID, ""))
	notifier.sent = nil

	result, err := svc.Reject(context.Background(), approverID, 1, "room is being renovated")
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, result.Status)
	assert.Equal(t, "room is being renovated", rejectedReason)

	require.Len(t, notifier.sent, 1)
	assert.Equal(t, "reservation_cancelled", notifier.sent[0].notificationType)
}

func TestResolveForCancelledReservation(t *testing.T) {
	svc, repo, _ := newTestService(t, &stubReservations{})
	require.NoError(t, svc.OpenRequest(context.Background(), 5, requesterID, approverID, ""))

	require.NoError(t, svc.ResolveForCancelledReservation(context.Background(), 5))

	request, err := repo.GetByID(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, request.Status)
	assert.Equal(t, "cancelled by requester", request.ResponseMessage)

	// No pending request is not an error.
	require.NoError(t, svc.ResolveForCancelledReservation(context.Background(), 404))
}

func TestListPendingPaginates(t *testing.T) {
	svc, _, _ := newTestService(t, &stubReservations{})
	for i := int64(1); i <= 3; i++ {
		require.NoError(t, svc.OpenRequest(context.Background(), i, requesterID, approverID, ""))
	}

	page, err := svc.ListPending(context.Background(), approverID, ApprovalListQuery{Page: 1, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(3), page.TotalCount)
	assert.Len(t, page.Requests, 3)
	assert.Equal(t, 1, page.TotalPages)
}
