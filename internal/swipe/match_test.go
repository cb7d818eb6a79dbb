package swipe

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rajivgeraev/flippy-swipe/internal/apperr"
	"github.com/rajivgeraev/flippy-swipe/internal/models"
	"github.com/rajivgeraev/flippy-swipe/internal/remote"
)

var profileA = models.User{FirstName: "Анна", LastName: "Смирнова"}

func TestRightSwipeCreatesTradeOfferAndNotification(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userA, userB := uuid.New(), uuid.New()
	x := f.item(userA, "bike")
	y := f.item(userB, "guitar")

	scope, err := f.sessions.CreateSession(ctx, userA, x.ID)
	require.NoError(t, err)

	pool, err := f.builder.BuildPool(ctx, userA, nil, 1)
	require.NoError(t, err)
	require.Equal(t, []uuid.UUID{y.ID}, itemIDs(pool))

	_, err = f.history.RecordSwipe(ctx, scope.Session.ID, userA, y.ID, models.DirectionRight)
	require.NoError(t, err)

	outcome := f.match.OnRightSwipe(ctx, scope.Session, y, profileA)
	assert.Equal(t, OutcomeCreated, outcome)

	records := f.store.SwipeRecords()
	require.Len(t, records, 1)
	assert.Equal(t, scope.Session.ID, records[0].SessionID)
	assert.Equal(t, userA, records[0].UserID)
	assert.Equal(t, y.ID, records[0].ItemID)
	assert.Equal(t, models.DirectionRight, records[0].Direction)

	offers := f.store.TradeOffers()
	require.Len(t, offers, 1)
	offer := offers[0]
	assert.Equal(t, x.ID, offer.TradeAnchorID)
	assert.Equal(t, y.ID, offer.TargetItemID)
	assert.Equal(t, userA, offer.OfferingUserID)
	assert.Equal(t, userA, offer.TradeAnchorOwnerID)
	assert.Equal(t, userB, offer.TargetItemOwnerID)

	notifications := f.store.Notifications()
	require.Len(t, notifications, 1)
	n := notifications[0]
	assert.Equal(t, userB, n.UserID)
	assert.Equal(t, offer.ID, n.TradeOfferID)
	assert.Equal(t, models.TradeOfferPayload{
		TradeAnchorID:    x.ID,
		TradeAnchorTitle: "bike",
		TradeAnchorImage: x.MainImage(),
		TargetItemID:     y.ID,
		TargetItemTitle:  "guitar",
		TargetItemImage:  y.MainImage(),
		OfferingUserName: "Анна Смирнова",
		CreatedAt:        offer.CreatedAt,
	}, n.Payload)

	history, err := f.history.GetSwipeHistory(ctx, scope.Session.ID, userA)
	require.NoError(t, err)
	pool, err = f.builder.BuildPool(ctx, userA, history, 1)
	require.NoError(t, err)
	assert.Empty(t, pool)
}

func TestOfflineRightSwipeSyncsWithoutRetroactiveOffer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userA, userB := uuid.New(), uuid.New()
	x := f.item(userA, "bike")
	y := f.item(userB, "guitar")

	scope, err := f.sessions.CreateSession(ctx, userA, x.ID)
	require.NoError(t, err)

	f.store.SetOffline(true)
	_, err = f.history.RecordSwipe(ctx, scope.Session.ID, userA, y.ID, models.DirectionRight)
	require.NoError(t, err)
	assert.Len(t, f.pending(t, userA), 1)

	assert.Equal(t, OutcomeFailed, f.match.OnRightSwipe(ctx, scope.Session, y, profileA))
	assert.Equal(t, 1, f.logs.FilterMessage("не удалось проверить объявление").Len())

	f.store.SetOffline(false)
	res, err := f.syncEngine(userA).SyncNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Synced)

	records := f.store.SwipeRecords()
	require.Len(t, records, 1)
	assert.Equal(t, y.ID, records[0].ItemID)
	assert.Empty(t, f.store.TradeOffers())
	assert.Empty(t, f.store.Notifications())
}

func TestRightSwipeOnUnavailableItem(t *testing.T) {
	f := newFixture(t)
	userA := uuid.New()
	x := f.item(userA, "bike")
	y := f.item(uuid.New(), "guitar")
	f.store.SetItemStatus(y.ID, models.ItemPending)

	session := models.SwipeSession{ID: uuid.New(), UserID: userA, TradeAnchorID: x.ID}
	assert.Equal(t, OutcomeUnavailable, f.match.OnRightSwipe(context.Background(), session, y, profileA))
	assert.Empty(t, f.store.TradeOffers())

	gone := models.Item{ID: uuid.New(), OwnerID: uuid.New(), Status: models.ItemAvailable}
	assert.Equal(t, OutcomeUnavailable, f.match.OnRightSwipe(context.Background(), session, gone, profileA))
}

func TestRepeatedRightSwipeDoesNotDuplicateOffer(t *testing.T) {
	f := newFixture(t)
	userA := uuid.New()
	x := f.item(userA, "bike")
	y := f.item(uuid.New(), "guitar")
	session := models.SwipeSession{ID: uuid.New(), UserID: userA, TradeAnchorID: x.ID}

	assert.Equal(t, OutcomeCreated, f.match.OnRightSwipe(context.Background(), session, y, profileA))
	assert.Equal(t, OutcomeDuplicate, f.match.OnRightSwipe(context.Background(), session, y, profileA))
	assert.Len(t, f.store.TradeOffers(), 1)
	assert.Len(t, f.store.Notifications(), 1)
}

func TestNotificationFailureIsSwallowed(t *testing.T) {
	f := newFixture(t)
	userA := uuid.New()
	x := f.item(userA, "bike")
	y := f.item(uuid.New(), "guitar")
	session := models.SwipeSession{ID: uuid.New(), UserID: userA, TradeAnchorID: x.ID}
	f.store.FailNext(remote.OpCreateNotification, apperr.New(apperr.Permission, "CreateNotification", "нет доступа"))

	assert.Equal(t, OutcomeFailed, f.match.OnRightSwipe(context.Background(), session, y, profileA))
	assert.Len(t, f.store.TradeOffers(), 1)
	assert.Empty(t, f.store.Notifications())

	logged := f.logs.FilterMessage("не удалось создать уведомление").All()
	require.Len(t, logged, 1)
	assert.Equal(t, "permission", logged[0].ContextMap()["kind"])
}

func TestDispatchRunsInBackground(t *testing.T) {
	f := newFixture(t)
	userA := uuid.New()
	x := f.item(userA, "bike")
	y := f.item(uuid.New(), "guitar")

	scope, err := f.sessions.CreateSession(context.Background(), userA, x.ID)
	require.NoError(t, err)

	outcomes := make(chan Outcome, 1)
	f.match.Dispatch(scope, y, profileA, func(o Outcome) { outcomes <- o })
	f.match.Wait()

	assert.Equal(t, OutcomeCreated, <-outcomes)
	assert.Len(t, f.store.TradeOffers(), 1)
}

func TestDispatchAfterAbandonIsDiscarded(t *testing.T) {
	f := newFixture(t)
	userA := uuid.New()
	x := f.item(userA, "bike")
	y := f.item(uuid.New(), "guitar")

	scope, err := f.sessions.CreateSession(context.Background(), userA, x.ID)
	require.NoError(t, err)
	require.NoError(t, f.sessions.AbandonSession(scope))

	outcomes := make(chan Outcome, 1)
	f.match.Dispatch(scope, y, profileA, func(o Outcome) { outcomes <- o })
	f.match.Wait()

	assert.Equal(t, OutcomeDiscarded, <-outcomes)
	assert.Empty(t, f.store.TradeOffers())
	assert.Empty(t, f.store.Notifications())
}

func TestDispatchAfterCloseIsDiscarded(t *testing.T) {
	f := newFixture(t)
	userA := uuid.New()
	x := f.item(userA, "bike")
	y := f.item(uuid.New(), "guitar")

	scope, err := f.sessions.CreateSession(context.Background(), userA, x.ID)
	require.NoError(t, err)

	f.match.Close()

	outcomes := make(chan Outcome, 1)
	f.match.Dispatch(scope, y, profileA, func(o Outcome) { outcomes <- o })

	assert.Equal(t, OutcomeDiscarded, <-outcomes)
	assert.Empty(t, f.store.TradeOffers())
}

func TestDispatchConcurrentWithClose(t *testing.T) {
	f := newFixture(t)
	userA := uuid.New()
	x := f.item(userA, "bike")

	scope, err := f.sessions.CreateSession(context.Background(), userA, x.ID)
	require.NoError(t, err)

	const n = 8
	outcomes := make(chan Outcome, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		y := f.item(uuid.New(), "item")
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.match.Dispatch(scope, y, profileA, func(o Outcome) { outcomes <- o })
		}()
	}
	f.match.Close()
	wg.Wait()
	f.match.Wait()
	close(outcomes)

	var created, discarded int
	for o := range outcomes {
		switch o {
		case OutcomeCreated:
			created++
		case OutcomeDiscarded:
			discarded++
		}
	}
	assert.Equal(t, n, created+discarded)
	assert.Len(t, f.store.TradeOffers(), created)
}
