package swipe

import (
	"context"
	"errors"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/rajivgeraev/flippy-swipe/internal/apperr"
	"github.com/rajivgeraev/flippy-swipe/internal/connectivity"
	"github.com/rajivgeraev/flippy-swipe/internal/logger"
	"github.com/rajivgeraev/flippy-swipe/internal/remote"
	"github.com/rajivgeraev/flippy-swipe/internal/retry"
)

// ErrSyncInProgress возвращается, если синхронизация уже идет.
// Повторный запуск не ставится в очередь.
var ErrSyncInProgress = errors.New("синхронизация уже выполняется")

// SyncResult описывает итог одного прохода синхронизации
type SyncResult struct {
	Synced    int  `json:"synced"`
	Dropped   int  `json:"dropped"`
	Remaining int  `json:"remaining"`
	Coalesced bool `json:"coalesced"`
}

// SyncEngine отправляет очередь свайпов одного пользователя в удаленное
// хранилище. Одновременно выполняется не больше одного прохода.
type SyncEngine struct {
	remote  remote.Store
	cache   LocalCache
	policy  retry.Policy
	log     *zap.Logger
	syncing atomic.Bool
}

// NewSyncEngine создает движок синхронизации для очереди cache
func NewSyncEngine(store remote.Store, cache LocalCache, policy retry.Policy, log *zap.Logger) *SyncEngine {
	return &SyncEngine{
		remote: store,
		cache:  cache,
		policy: policy,
		log:    logger.OrNop(log).Named("sync"),
	}
}

// Syncing сообщает, идет ли сейчас проход
func (e *SyncEngine) Syncing() bool {
	return e.syncing.Load()
}

// SyncNow выполняет проход по очереди в порядке добавления.
//
// Запись, отвергнутая хранилищем, удаляется из очереди и логируется.
// Временная ошибка прерывает проход, оставшиеся записи ждут следующего
// запуска, а ошибка возвращается вместе с частичным результатом.
func (e *SyncEngine) SyncNow(ctx context.Context) (SyncResult, error) {
	if !e.syncing.CompareAndSwap(false, true) {
		return SyncResult{Coalesced: true}, ErrSyncInProgress
	}
	defer e.syncing.Store(false)

	queue, err := e.cache.ListPendingSwipes()
	if err != nil {
		return SyncResult{}, err
	}

	var (
		res     SyncResult
		passErr error
	)
	for _, entry := range queue {
		err := e.policy.Execute(ctx, func(ctx context.Context) error {
			return e.remote.PutSwipeRecord(ctx, entry.SwipeRecord)
		})

		if err != nil && (apperr.IsRetryable(err) || ctx.Err() != nil) {
			passErr = err
			break
		}

		if err != nil {
			e.log.Error("свайп отвергнут хранилищем и удален из очереди",
				zap.Stringer("user_id", entry.UserID),
				zap.Stringer("session_id", entry.SessionID),
				zap.Stringer("item_id", entry.ItemID),
				zap.Stringer("entry_id", entry.ID),
				zap.Stringer("kind", apperr.KindOf(err)),
				zap.Error(err),
			)
			res.Dropped++
		} else {
			res.Synced++
		}

		if err := e.cache.RemovePendingSwipe(entry.ID); err != nil {
			return res, err
		}
	}

	rest, err := e.cache.ListPendingSwipes()
	if err != nil {
		return res, err
	}
	res.Remaining = len(rest)

	if passErr != nil {
		e.log.Warn("синхронизация прервана",
			zap.Int("synced", res.Synced),
			zap.Int("remaining", res.Remaining),
			zap.Error(passErr),
		)
		return res, passErr
	}

	if res.Synced > 0 || res.Dropped > 0 {
		e.log.Info("синхронизация завершена",
			zap.Int("synced", res.Synced),
			zap.Int("dropped", res.Dropped),
			zap.Int("remaining", res.Remaining),
		)
	}
	return res, nil
}

// Run запускает проход при старте, если очередь не пуста и сеть доступна,
// и затем на каждое восстановление сети. Завершается при отмене ctx.
func (e *SyncEngine) Run(ctx context.Context, signal connectivity.Signal) {
	events, unsubscribe := signal.Subscribe()
	defer unsubscribe()

	if signal.Online() {
		if pending, err := e.cache.HasPendingSwipes(); err != nil {
			e.log.Error("не удалось прочитать очередь", zap.Error(err))
		} else if pending {
			e.trigger(ctx)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			if ev == connectivity.Online {
				e.trigger(ctx)
			}
		}
	}
}

func (e *SyncEngine) trigger(ctx context.Context) {
	if _, err := e.SyncNow(ctx); err != nil && !errors.Is(err, ErrSyncInProgress) && ctx.Err() == nil {
		e.log.Debug("проход синхронизации не завершен", zap.Error(err))
	}
}
