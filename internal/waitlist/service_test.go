package waitlist

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reserver/internal/bus"
	"reserver/internal/reservations"
	"reserver/internal/resources"
	"reserver/internal/shared/apperrors"
	"reserver/internal/shared/config"
	"reserver/pkg/clock"
	"reserver/pkg/logger"
)

type fakeRepo struct {
	mu      sync.Mutex
	nextID  int64
	entries map[int64]*WaitlistEntry
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{entries: map[int64]*WaitlistEntry{}}
}

func (f *fakeRepo) waitingCountLocked(resourceID int64) int {
	n := 0
	for _, e := range f.entries {
		if e.ResourceID == resourceID && e.Status == StatusWaiting {
			n++
		}
	}
	return n
}

func (f *fakeRepo) compactWaitingLocked(resourceID int64, removedPosition int) {
	for _, e := range f.entries {
		if e.ResourceID == resourceID && e.Status == StatusWaiting && e.Position > removedPosition {
			e.Position--
		}
	}
}

func (f *fakeRepo) Join(ctx context.Context, entry *WaitlistEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.entries {
		if e.UserID == entry.UserID && e.ResourceID == entry.ResourceID &&
			e.DesiredStart.Equal(entry.DesiredStart) && e.DesiredEnd.Equal(entry.DesiredEnd) &&
			e.Status.InQueue() {
			return apperrors.Newf(apperrors.KindConflict,
				"user %d is already on the waitlist for resource %d over that window", entry.UserID, entry.ResourceID)
		}
	}
	f.nextID++
	entry.ID = f.nextID
	entry.Status = StatusWaiting
	entry.Position = f.waitingCountLocked(entry.ResourceID) + 1
	f.entries[entry.ID] = entry
	return nil
}

func (f *fakeRepo) GetByID(ctx context.Context, id int64) (*WaitlistEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.entries[id]
	if !ok {
		return nil, apperrors.Newf(apperrors.KindNotFound, "waitlist entry %d not found", id)
	}
	copied := *e
	return &copied, nil
}

func (f *fakeRepo) ListForUser(ctx context.Context, userID int64) ([]WaitlistEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []WaitlistEntry
	for _, e := range f.entries {
		if e.UserID == userID && e.Status.InQueue() {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (f *fakeRepo) QueueSize(ctx context.Context, resourceID int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(f.waitingCountLocked(resourceID)), nil
}

func (f *fakeRepo) CandidatesForWindow(ctx context.Context, resourceID int64, start, end time.Time) ([]WaitlistEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []WaitlistEntry
	for _, e := range f.entries {
		if e.ResourceID != resourceID || e.Status != StatusWaiting {
			continue
		}
		exact := e.DesiredStart.Equal(start) && e.DesiredEnd.Equal(end)
		flexible := e.FlexibleTime && !e.DesiredStart.After(end) && !e.DesiredEnd.Before(start)
		if exact || flexible {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (f *fakeRepo) MarkOffered(ctx context.Context, id int64, offerStart, offerEnd, offeredAt, expiresAt time.Time) (*WaitlistEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.entries[id]
	if !ok {
		return nil, apperrors.Newf(apperrors.KindNotFound, "waitlist entry %d not found", id)
	}
	if e.Status != StatusWaiting {
		return nil, apperrors.Newf(apperrors.KindAlreadyResolved, "waitlist entry %d is no longer waiting", id)
	}
	vacated := e.Position
	e.Status = StatusOffered
	e.Position = 0
	e.OfferStart = &offerStart
	e.OfferEnd = &offerEnd
	e.OfferedAt = &offeredAt
	e.OfferExpiresAt = &expiresAt
	f.compactWaitingLocked(e.ResourceID, vacated)
	copied := *e
	return &copied, nil
}

func (f *fakeRepo) Settle(ctx context.Context, id int64, status EntryStatus) (*WaitlistEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.entries[id]
	if !ok {
		return nil, apperrors.Newf(apperrors.KindNotFound, "waitlist entry %d not found", id)
	}
	if !e.Status.InQueue() {
		return nil, apperrors.Newf(apperrors.KindAlreadyResolved, "waitlist entry %d is already %s", id, e.Status)
	}
	wasWaiting := e.Status == StatusWaiting
	removed := e.Position
	e.Status = status
	if wasWaiting {
		e.Position = 0
		f.compactWaitingLocked(e.ResourceID, removed)
	}
	copied := *e
	return &copied, nil
}

func (f *fakeRepo) ExpiredOffers(ctx context.Context, now time.Time, limit int) ([]WaitlistEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []WaitlistEntry
	for _, e := range f.entries {
		if e.Status == StatusOffered && e.OfferExpiresAt != nil && !e.OfferExpiresAt.After(now) {
			out = append(out, *e)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

// stubReservations only serves CreateReservation; everything else is unused.
type stubReservations struct {
	reservations.Service

	createFn func(ctx context.Context, userID int64, req reservations.CreateReservationRequest) (*reservations.ReservationResponse, error)
}

func (s *stubReservations) CreateReservation(ctx context.Context, userID int64, req reservations.CreateReservationRequest) (*reservations.ReservationResponse, error) {
	return s.createFn(ctx, userID, req)
}

type fakeResources struct{}

func (fakeResources) RefreshStatus(ctx context.Context, id int64) (*resources.Resource, error) {
	return &resources.Resource{ID: id, Name: "Room A", Available: true, Status: resources.StatusAvailable}, nil
}

func (fakeResources) GetSchedule(ctx context.Context, resourceID int64) (*resources.ScheduleResponse, error) {
	return &resources.ScheduleResponse{ResourceID: resourceID}, nil
}

type noopCache struct{}

func (noopCache) Get(ctx context.Context, key string, dest interface{}) error {
	return apperrors.New(apperrors.KindNotFound, "cache miss")
}
func (noopCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return nil
}
func (noopCache) Delete(ctx context.Context, key string) error      { return nil }
func (noopCache) DeletePattern(ctx context.Context, p string) error { return nil }
func (noopCache) Exists(ctx context.Context, key string) bool       { return false }
func (noopCache) Ping(ctx context.Context) error                    { return nil }
func (noopCache) GetOrSet(ctx context.Context, key string, ttl time.Duration, fetcher func() (interface{}, error), dest interface{}) error {
	data, err := fetcher()
	if err != nil {
		return err
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dest)
}

type fakeNotifier struct {
	mu    sync.Mutex
	types []string
}

func (f *fakeNotifier) Notify(ctx context.Context, userID int64, notificationType, title, message, link string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.types = append(f.types, notificationType)
	return nil
}

type fakePusher struct{}

func (fakePusher) SendToUser(userID int64, message interface{}) {}

type fixture struct {
	svc      Service
	repo     *fakeRepo
	stub     *stubReservations
	notifier *fakeNotifier
	clk      *clock.Fake
	bus      *bus.Bus
	events   []bus.Event
	eventsMu sync.Mutex
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	fx := &fixture{
		repo:     newFakeRepo(),
		stub:     &stubReservations{},
		notifier: &fakeNotifier{},
		clk:      clock.NewFake(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)),
	}
	fx.bus = bus.New(fx.clk, logger.GetDefault())
	fx.bus.Subscribe("test", 64, func(ev bus.Event) {
		fx.eventsMu.Lock()
		fx.events = append(fx.events, ev)
		fx.eventsMu.Unlock()
	})

	cfg := &config.Config{
		Waitlist:  config.WaitlistConfig{OfferTTL: 30 * time.Minute},
		Scheduler: config.SchedulerConfig{BatchSize: 200},
	}
	fx.svc = NewService(fx.repo, fx.stub, fakeResources{}, noopCache{}, fx.bus,
		fx.notifier, fakePusher{}, fx.clk, logger.GetDefault(), cfg)
	return fx
}

func (fx *fixture) eventTypes() []string {
	fx.bus.Close()
	fx.eventsMu.Lock()
	defer fx.eventsMu.Unlock()
	out := make([]string, len(fx.events))
	for i, ev := range fx.events {
		out[i] = ev.Type
	}
	return out
}

func (fx *fixture) window() (time.Time, time.Time) {
	start := fx.clk.Now().Add(2 * time.Hour)
	return start, start.Add(time.Hour)
}

func TestJoinAssignsDensePositions(t *testing.T) {
	fx := newFixture(t)
	start, end := fx.window()

	for i := int64(1); i <= 3; i++ {
		entry, err := fx.svc.Join(context.Background(), i, JoinWaitlistRequest{
			ResourceID: 1, DesiredStart: start, DesiredEnd: end,
		})
		require.NoError(t, err)
		assert.Equal(t, int(i), entry.Position)
	}
}

func TestJoinRejectsDuplicates(t *testing.T) {
	fx := newFixture(t)
	start, end := fx.window()

	_, err := fx.svc.Join(context.Background(), 1, JoinWaitlistRequest{ResourceID: 1, DesiredStart: start, DesiredEnd: end})
	require.NoError(t, err)

	_, err = fx.svc.Join(context.Background(), 1, JoinWaitlistRequest{ResourceID: 1, DesiredStart: start, DesiredEnd: end})
	assert.Equal(t, apperrors.KindConflict, apperrors.KindOf(err))
}

func TestJoinAllowsSeparateWindowsOnSameResource(t *testing.T) {
	fx := newFixture(t)
	start, end := fx.window()

	first, err := fx.svc.Join(context.Background(), 1, JoinWaitlistRequest{
		ResourceID: 1, DesiredStart: start, DesiredEnd: end,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, first.Position)

	second, err := fx.svc.Join(context.Background(), 1, JoinWaitlistRequest{
		ResourceID: 1, DesiredStart: start.Add(3 * time.Hour), DesiredEnd: end.Add(3 * time.Hour),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, second.Position)

	// Only the exact window is held against the user.
	_, err = fx.svc.Join(context.Background(), 1, JoinWaitlistRequest{
		ResourceID: 1, DesiredStart: start, DesiredEnd: end,
	})
	assert.Equal(t, apperrors.KindConflict, apperrors.KindOf(err))
}

func TestJoinValidatesWindow(t *testing.T) {
	fx := newFixture(t)
	now := fx.clk.Now()

	_, err := fx.svc.Join(context.Background(), 1, JoinWaitlistRequest{
		ResourceID: 1, DesiredStart: now.Add(2 * time.Hour), DesiredEnd: now.Add(time.Hour),
	})
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))

	_, err = fx.svc.Join(context.Background(), 1, JoinWaitlistRequest{
		ResourceID: 1, DesiredStart: now.Add(-time.Hour), DesiredEnd: now.Add(time.Hour),
	})
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))
}

func TestCheckAndOfferSlotOffersFirstInLine(t *testing.T) {
	fx := newFixture(t)
	start, end := fx.window()

	first, err := fx.svc.Join(context.Background(), 1, JoinWaitlistRequest{ResourceID: 1, DesiredStart: start, DesiredEnd: end})
	require.NoError(t, err)
	_, err = fx.svc.Join(context.Background(), 2, JoinWaitlistRequest{ResourceID: 1, DesiredStart: start, DesiredEnd: end})
	require.NoError(t, err)

	require.NoError(t, fx.svc.CheckAndOfferSlot(context.Background(), 1, start, end))

	offered, err := fx.repo.GetByID(context.Background(), first.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusOffered, offered.Status)
	require.NotNil(t, offered.OfferExpiresAt)
	assert.Equal(t, fx.clk.Now().Add(30*time.Minute), *offered.OfferExpiresAt)

	// One offer per freed window; the second entry stays waiting.
	second, err := fx.repo.GetByID(context.Background(), first.ID+1)
	require.NoError(t, err)
	assert.Equal(t, StatusWaiting, second.Status)

	assert.Equal(t, []string{"resource_available"}, fx.notifier.types)
	assert.Contains(t, fx.eventTypes(), bus.EventWaitlistOffer)
}

func TestOfferVacatesWaitingLine(t *testing.T) {
	fx := newFixture(t)
	start, end := fx.window()

	var ids []int64
	for i := int64(1); i <= 3; i++ {
		entry, err := fx.svc.Join(context.Background(), i, JoinWaitlistRequest{
			ResourceID: 1, DesiredStart: start, DesiredEnd: end,
		})
		require.NoError(t, err)
		ids = append(ids, entry.ID)
	}

	require.NoError(t, fx.svc.CheckAndOfferSlot(context.Background(), 1, start, end))

	// The offered entry drops out of the line and the waiting positions
	// stay a dense 1..N.
	offered, err := fx.repo.GetByID(context.Background(), ids[0])
	require.NoError(t, err)
	assert.Equal(t, StatusOffered, offered.Status)
	assert.Equal(t, 0, offered.Position)

	for i, want := range []int{1, 2} {
		waiting, err := fx.repo.GetByID(context.Background(), ids[i+1])
		require.NoError(t, err)
		assert.Equal(t, StatusWaiting, waiting.Status)
		assert.Equal(t, want, waiting.Position)
	}

	size, err := fx.repo.QueueSize(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), size)
}

func TestGetPositionReportsClosestWaitingPlace(t *testing.T) {
	fx := newFixture(t)
	start, end := fx.window()

	_, err := fx.svc.Join(context.Background(), 2, JoinWaitlistRequest{
		ResourceID: 1, DesiredStart: start, DesiredEnd: end,
	})
	require.NoError(t, err)
	_, err = fx.svc.Join(context.Background(), 1, JoinWaitlistRequest{
		ResourceID: 1, DesiredStart: start, DesiredEnd: end,
	})
	require.NoError(t, err)
	_, err = fx.svc.Join(context.Background(), 1, JoinWaitlistRequest{
		ResourceID: 1, DesiredStart: start.Add(3 * time.Hour), DesiredEnd: end.Add(3 * time.Hour),
	})
	require.NoError(t, err)

	pos, err := fx.svc.GetPosition(context.Background(), 1, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, pos.Position)
	assert.Equal(t, int64(3), pos.QueueSize)
}

func TestCheckAndOfferSlotMatchesFlexibleEntries(t *testing.T) {
	fx := newFixture(t)
	start, end := fx.window()

	entry, err := fx.svc.Join(context.Background(), 1, JoinWaitlistRequest{
		ResourceID:   1,
		DesiredStart: start.Add(-time.Hour),
		DesiredEnd:   end.Add(time.Hour),
		FlexibleTime: true,
	})
	require.NoError(t, err)

	require.NoError(t, fx.svc.CheckAndOfferSlot(context.Background(), 1, start, end))

	offered, err := fx.repo.GetByID(context.Background(), entry.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusOffered, offered.Status)
	assert.Equal(t, start, *offered.OfferStart)
	assert.Equal(t, end, *offered.OfferEnd)
}

func TestCheckAndOfferSlotNoCandidates(t *testing.T) {
	fx := newFixture(t)
	start, end := fx.window()

	_, err := fx.svc.Join(context.Background(), 1, JoinWaitlistRequest{
		ResourceID: 1, DesiredStart: start.Add(5 * time.Hour), DesiredEnd: end.Add(5 * time.Hour),
	})
	require.NoError(t, err)

	require.NoError(t, fx.svc.CheckAndOfferSlot(context.Background(), 1, start, end))
	assert.Empty(t, fx.notifier.types)
}

func TestAcceptCreatesReservation(t *testing.T) {
	fx := newFixture(t)
	start, end := fx.window()
	fx.stub.createFn = func(ctx context.Context, userID int64, req reservations.CreateReservationRequest) (*reservations.ReservationResponse, error) {
		return &reservations.ReservationResponse{ID: 77, ResourceID: req.ResourceID, Start: req.Start, End: req.End}, nil
	}

	entry, err := fx.svc.Join(context.Background(), 1, JoinWaitlistRequest{ResourceID: 1, DesiredStart: start, DesiredEnd: end})
	require.NoError(t, err)
	_, err = fx.svc.Join(context.Background(), 2, JoinWaitlistRequest{ResourceID: 1, DesiredStart: start, DesiredEnd: end})
	require.NoError(t, err)
	require.NoError(t, fx.svc.CheckAndOfferSlot(context.Background(), 1, start, end))

	reservation, err := fx.svc.Accept(context.Background(), 1, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(77), reservation.ID)

	fulfilled, err := fx.repo.GetByID(context.Background(), entry.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFulfilled, fulfilled.Status)

	// The second entry moved up to the head when the offer was made.
	remaining, err := fx.repo.GetByID(context.Background(), entry.ID+1)
	require.NoError(t, err)
	assert.Equal(t, 1, remaining.Position)

	assert.Contains(t, fx.eventTypes(), bus.EventWaitlistAccepted)
}

func TestAcceptExpiredOffer(t *testing.T) {
	fx := newFixture(t)
	start, end := fx.window()

	entry, err := fx.svc.Join(context.Background(), 1, JoinWaitlistRequest{ResourceID: 1, DesiredStart: start, DesiredEnd: end})
	require.NoError(t, err)
	require.NoError(t, fx.svc.CheckAndOfferSlot(context.Background(), 1, start, end))

	fx.clk.Advance(31 * time.Minute)

	_, err = fx.svc.Accept(context.Background(), 1, entry.ID)
	assert.Equal(t, apperrors.KindOfferExpired, apperrors.KindOf(err))

	expired, err := fx.repo.GetByID(context.Background(), entry.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusExpired, expired.Status)
}

func TestAcceptConflictReoffersDownTheQueue(t *testing.T) {
	fx := newFixture(t)
	start, end := fx.window()
	fx.stub.createFn = func(ctx context.Context, userID int64, req reservations.CreateReservationRequest) (*reservations.ReservationResponse, error) {
		return nil, &apperrors.ConflictError{ResourceID: req.ResourceID, Windows: []apperrors.TimeWindow{{Start: req.Start, End: req.End}}}
	}

	first, err := fx.svc.Join(context.Background(), 1, JoinWaitlistRequest{ResourceID: 1, DesiredStart: start, DesiredEnd: end})
	require.NoError(t, err)
	second, err := fx.svc.Join(context.Background(), 2, JoinWaitlistRequest{ResourceID: 1, DesiredStart: start, DesiredEnd: end})
	require.NoError(t, err)
	require.NoError(t, fx.svc.CheckAndOfferSlot(context.Background(), 1, start, end))

	_, err = fx.svc.Accept(context.Background(), 1, first.ID)
	require.Error(t, err)
	var conflict *apperrors.ConflictError
	assert.ErrorAs(t, err, &conflict)

	spent, err := fx.repo.GetByID(context.Background(), first.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusExpired, spent.Status)

	next, err := fx.repo.GetByID(context.Background(), second.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusOffered, next.Status)
}

func TestExpireStaleOffersReoffers(t *testing.T) {
	fx := newFixture(t)
	start, end := fx.window()

	first, err := fx.svc.Join(context.Background(), 1, JoinWaitlistRequest{ResourceID: 1, DesiredStart: start, DesiredEnd: end})
	require.NoError(t, err)
	second, err := fx.svc.Join(context.Background(), 2, JoinWaitlistRequest{ResourceID: 1, DesiredStart: start, DesiredEnd: end})
	require.NoError(t, err)
	require.NoError(t, fx.svc.CheckAndOfferSlot(context.Background(), 1, start, end))

	fx.clk.Advance(31 * time.Minute)

	expired, err := fx.svc.ExpireStaleOffers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, expired)

	lapsed, err := fx.repo.GetByID(context.Background(), first.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusExpired, lapsed.Status)

	reoffered, err := fx.repo.GetByID(context.Background(), second.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusOffered, reoffered.Status)
	assert.Equal(t, 0, reoffered.Position)

	assert.Contains(t, fx.eventTypes(), bus.EventWaitlistExpired)
}

func TestLeaveCompactsQueue(t *testing.T) {
	fx := newFixture(t)
	start, end := fx.window()

	first, err := fx.svc.Join(context.Background(), 1, JoinWaitlistRequest{ResourceID: 1, DesiredStart: start, DesiredEnd: end})
	require.NoError(t, err)
	second, err := fx.svc.Join(context.Background(), 2, JoinWaitlistRequest{ResourceID: 1, DesiredStart: start, DesiredEnd: end})
	require.NoError(t, err)

	t.Run("stranger forbidden", func(t *testing.T) {
		err := fx.svc.Leave(context.Background(), 2, first.ID)
		assert.Equal(t, apperrors.KindForbidden, apperrors.KindOf(err))
	})

	require.NoError(t, fx.svc.Leave(context.Background(), 1, first.ID))

	moved, err := fx.repo.GetByID(context.Background(), second.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, moved.Position)
}
