package swipe

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rajivgeraev/flippy-swipe/internal/apperr"
	"github.com/rajivgeraev/flippy-swipe/internal/connectivity"
	"github.com/rajivgeraev/flippy-swipe/internal/logger"
	"github.com/rajivgeraev/flippy-swipe/internal/models"
	"github.com/rajivgeraev/flippy-swipe/internal/remote"
	"github.com/rajivgeraev/flippy-swipe/internal/retry"
)

// HistoryStore ведет журнал свайпов. Запись проходит в две фазы: сначала
// свайп попадает в локальную очередь, затем отправляется в удаленное
// хранилище. Свайп считается записанным, как только он в очереди.
type HistoryStore struct {
	remote remote.Store
	caches Caches
	policy retry.Policy
	signal connectivity.Signal
	log    *zap.Logger
	now    func() time.Time
}

// NewHistoryStore создает журнал. signal может быть nil, тогда сеть
// считается доступной.
func NewHistoryStore(store remote.Store, caches Caches, policy retry.Policy, signal connectivity.Signal, log *zap.Logger) *HistoryStore {
	return &HistoryStore{
		remote: store,
		caches: caches,
		policy: policy,
		signal: signal,
		log:    logger.OrNop(log).Named("history"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// RecordSwipe записывает решение пользователя.
//
// Ошибка локальной записи возвращается сразу. Если удаленная запись не
// удалась из-за сети, свайп остается в очереди для SyncEngine и вызов
// завершается успешно. Если удаленное хранилище отвергло свайп, запись
// удаляется из очереди и ошибка возвращается с её категорией.
func (h *HistoryStore) RecordSwipe(ctx context.Context, sessionID, userID, itemID uuid.UUID, dir models.Direction) (models.PendingSwipe, error) {
	const op = "swipe.RecordSwipe"

	if !dir.Valid() {
		return models.PendingSwipe{}, apperr.New(apperr.Validation, op, "недопустимое направление свайпа")
	}

	now := h.now()
	entry := models.PendingSwipe{
		SwipeRecord: models.SwipeRecord{
			ID:        uuid.New(),
			SessionID: sessionID,
			UserID:    userID,
			ItemID:    itemID,
			Direction: dir,
			Timestamp: now,
		},
		QueuedAt: now,
	}

	cache := h.caches(userID)
	if err := cache.EnqueuePendingSwipe(entry); err != nil {
		return models.PendingSwipe{}, err
	}

	log := h.log.With(
		zap.Stringer("user_id", userID),
		zap.Stringer("session_id", sessionID),
		zap.Stringer("item_id", itemID),
		zap.Stringer("entry_id", entry.ID),
	)

	if h.signal != nil && !h.signal.Online() {
		log.Debug("сеть недоступна, свайп оставлен в очереди")
		return entry, nil
	}

	err := h.policy.Execute(ctx, func(ctx context.Context) error {
		return h.remote.PutSwipeRecord(ctx, entry.SwipeRecord)
	})
	switch {
	case err == nil:
		if err := cache.RemovePendingSwipe(entry.ID); err != nil {
			// Запись уже в удаленном хранилище, повторная отправка идемпотентна
			log.Warn("не удалось удалить свайп из очереди", zap.Error(err))
		}
		return entry, nil

	case apperr.IsRetryable(err) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		log.Info("свайп оставлен в очереди до синхронизации", zap.Error(err))
		return entry, nil
	}

	log.Error("удаленное хранилище отвергло свайп",
		zap.Error(err),
		zap.Stringer("kind", apperr.KindOf(err)),
	)
	if rmErr := cache.RemovePendingSwipe(entry.ID); rmErr != nil {
		log.Warn("не удалось удалить отвергнутый свайп из очереди", zap.Error(rmErr))
	}
	return entry, err
}

// GetSwipeHistory возвращает записи сессии из удаленного хранилища,
// дополненные еще не отправленными записями из локальной очереди
func (h *HistoryStore) GetSwipeHistory(ctx context.Context, sessionID, userID uuid.UUID) ([]models.SwipeRecord, error) {
	records, err := retry.Do(ctx, h.policy, func(ctx context.Context) ([]models.SwipeRecord, error) {
		return h.remote.ListSwipeRecords(ctx, sessionID, userID)
	})
	if err != nil {
		return nil, err
	}

	queue, err := h.caches(userID).ListPendingSwipes()
	if err != nil {
		return nil, err
	}

	known := make(map[uuid.UUID]struct{}, len(records))
	for _, r := range records {
		known[r.ID] = struct{}{}
	}
	for _, e := range queue {
		if e.SessionID != sessionID || e.UserID != userID {
			continue
		}
		if _, ok := known[e.ID]; ok {
			continue
		}
		known[e.ID] = struct{}{}
		records = append(records, e.SwipeRecord)
	}
	return records, nil
}

// SwipedItems возвращает множество объявлений, встречающихся в истории
func SwipedItems(history []models.SwipeRecord) map[uuid.UUID]struct{} {
	set := make(map[uuid.UUID]struct{}, len(history))
	for _, r := range history {
		set[r.ItemID] = struct{}{}
	}
	return set
}
