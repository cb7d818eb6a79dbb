package swipe

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rajivgeraev/flippy-swipe/internal/apperr"
	"github.com/rajivgeraev/flippy-swipe/internal/models"
	"github.com/rajivgeraev/flippy-swipe/internal/remote"
)

func TestRecordSwipeOnline(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sessionID, userID, itemID := uuid.New(), uuid.New(), uuid.New()

	entry, err := f.history.RecordSwipe(ctx, sessionID, userID, itemID, models.DirectionRight)
	require.NoError(t, err)

	records := f.store.SwipeRecords()
	require.Len(t, records, 1)
	assert.Equal(t, entry.SwipeRecord, records[0])
	assert.Empty(t, f.pending(t, userID))
}

func TestRecordSwipeNetworkFailureKeepsEntryQueued(t *testing.T) {
	f := newFixture(t)
	f.store.SetOffline(true)
	userID := uuid.New()

	entry, err := f.history.RecordSwipe(context.Background(), uuid.New(), userID, uuid.New(), models.DirectionLeft)
	require.NoError(t, err)

	queue := f.pending(t, userID)
	require.Len(t, queue, 1)
	assert.Equal(t, entry.ID, queue[0].ID)
	assert.Equal(t, int(testPolicy.MaxRetries)+1, f.store.Calls(remote.OpPutSwipeRecord))
	assert.Empty(t, f.store.SwipeRecords())
}

func TestRecordSwipeSkipsRemoteWhenSignalOffline(t *testing.T) {
	f := newFixture(t)
	f.signal.Set(false)
	userID := uuid.New()

	_, err := f.history.RecordSwipe(context.Background(), uuid.New(), userID, uuid.New(), models.DirectionRight)
	require.NoError(t, err)

	assert.Len(t, f.pending(t, userID), 1)
	assert.Zero(t, f.store.Calls(remote.OpPutSwipeRecord))
}

func TestRecordSwipeFatalRemoteErrorIsSurfaced(t *testing.T) {
	f := newFixture(t)
	f.store.FailNext(remote.OpPutSwipeRecord, apperr.New(apperr.Permission, "PutSwipeRecord", "нет доступа"))
	userID := uuid.New()

	_, err := f.history.RecordSwipe(context.Background(), uuid.New(), userID, uuid.New(), models.DirectionRight)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrPermission)

	assert.Equal(t, 1, f.store.Calls(remote.OpPutSwipeRecord))
	assert.Empty(t, f.pending(t, userID))
	assert.Equal(t, 1, f.logs.FilterMessage("удаленное хранилище отвергло свайп").Len())
}

func TestRecordSwipeRejectsInvalidDirection(t *testing.T) {
	f := newFixture(t)
	userID := uuid.New()

	_, err := f.history.RecordSwipe(context.Background(), uuid.New(), userID, uuid.New(), models.Direction("up"))
	assert.ErrorIs(t, err, apperr.ErrValidation)
	assert.Empty(t, f.pending(t, userID))
}

func TestRecordSwipeLocalFailureIsFatal(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.kv.Close())

	_, err := f.history.RecordSwipe(context.Background(), uuid.New(), uuid.New(), uuid.New(), models.DirectionLeft)
	assert.ErrorIs(t, err, apperr.ErrLocalStore)
	assert.Zero(t, f.store.Calls(remote.OpPutSwipeRecord))
}

func TestGetSwipeHistoryIncludesPendingEntries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sessionID, otherSession, userID := uuid.New(), uuid.New(), uuid.New()

	synced, err := f.history.RecordSwipe(ctx, sessionID, userID, uuid.New(), models.DirectionLeft)
	require.NoError(t, err)

	f.signal.Set(false)
	queued, err := f.history.RecordSwipe(ctx, sessionID, userID, uuid.New(), models.DirectionRight)
	require.NoError(t, err)
	_, err = f.history.RecordSwipe(ctx, otherSession, userID, uuid.New(), models.DirectionRight)
	require.NoError(t, err)

	history, err := f.history.GetSwipeHistory(ctx, sessionID, userID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, synced.ID, history[0].ID)
	assert.Equal(t, queued.ID, history[1].ID)
}

func TestGetSwipeHistoryDoesNotDuplicateSyncedEntry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sessionID, userID := uuid.New(), uuid.New()

	f.signal.Set(false)
	entry, err := f.history.RecordSwipe(ctx, sessionID, userID, uuid.New(), models.DirectionLeft)
	require.NoError(t, err)

	// Запись попала в хранилище, но еще не удалена из очереди
	require.NoError(t, f.store.PutSwipeRecord(ctx, entry.SwipeRecord))

	history, err := f.history.GetSwipeHistory(ctx, sessionID, userID)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestRepeatedSwipeIsAppendedButExcludedOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sessionID, userID, itemID := uuid.New(), uuid.New(), uuid.New()

	for _, dir := range []models.Direction{models.DirectionLeft, models.DirectionRight} {
		_, err := f.history.RecordSwipe(ctx, sessionID, userID, itemID, dir)
		require.NoError(t, err)
	}

	history, err := f.history.GetSwipeHistory(ctx, sessionID, userID)
	require.NoError(t, err)
	assert.Len(t, history, 2)
	assert.Len(t, SwipedItems(history), 1)
	assert.Empty(t, f.pending(t, userID))
}

func TestRepeatedOfflineSwipesAllReachLedger(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sessionID, userID, itemID := uuid.New(), uuid.New(), uuid.New()

	f.signal.Set(false)
	for _, dir := range []models.Direction{models.DirectionLeft, models.DirectionRight} {
		_, err := f.history.RecordSwipe(ctx, sessionID, userID, itemID, dir)
		require.NoError(t, err)
	}
	f.signal.Set(true)

	res, err := f.syncEngine(userID).SyncNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, SyncResult{Synced: 2}, res)

	records := f.store.SwipeRecords()
	require.Len(t, records, 2)
	assert.Equal(t, models.DirectionLeft, records[0].Direction)
	assert.Equal(t, models.DirectionRight, records[1].Direction)

	history, err := f.history.GetSwipeHistory(ctx, sessionID, userID)
	require.NoError(t, err)
	assert.Len(t, history, 2)
	assert.Len(t, SwipedItems(history), 1)
}

func TestGetSwipeHistorySurfacesRemoteError(t *testing.T) {
	f := newFixture(t)
	f.store.FailNext(remote.OpListSwipeRecords, apperr.New(apperr.Permission, "ListSwipeRecords", "нет доступа"))

	_, err := f.history.GetSwipeHistory(context.Background(), uuid.New(), uuid.New())
	assert.ErrorIs(t, err, apperr.ErrPermission)
}
