// Package swipe реализует движок сессий свайпов: журнал решений с локальной
// очередью, подбор кандидатов, сессии вокруг якоря обмена, синхронизацию
// очереди и создание предложений обмена по свайпу вправо.
package swipe

import (
	"github.com/google/uuid"

	"github.com/rajivgeraev/flippy-swipe/internal/localcache"
	"github.com/rajivgeraev/flippy-swipe/internal/models"
)

// LocalCache это локальное хранилище одного пользователя
type LocalCache interface {
	GetSession() (*models.SwipeSession, error)
	PutSession(session models.SwipeSession) error
	ClearSession() error

	EnqueuePendingSwipe(entry models.PendingSwipe) error
	ListPendingSwipes() ([]models.PendingSwipe, error)
	RemovePendingSwipe(id uuid.UUID) error
	RemovePendingForSession(sessionID uuid.UUID) (int, error)
	HasPendingSwipes() (bool, error)
}

// Caches выдает локальный кэш пользователя
type Caches func(userID uuid.UUID) LocalCache

// CachesFrom строит Caches поверх SQLite-хранилища
func CachesFrom(kv *localcache.KV) Caches {
	return func(userID uuid.UUID) LocalCache {
		return kv.ForUser(userID)
	}
}

var _ LocalCache = (*localcache.Cache)(nil)
