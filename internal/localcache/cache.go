package localcache

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/rajivgeraev/flippy-swipe/internal/apperr"
	"github.com/rajivgeraev/flippy-swipe/internal/models"
)

// Cache хранит сессию и очередь неотправленных свайпов одного пользователя.
// Все операции синхронные и не обращаются к сети.
type Cache struct {
	kv     *KV
	userID uuid.UUID
}

// New создает кэш пользователя userID поверх kv
func New(kv *KV, userID uuid.UUID) *Cache {
	return &Cache{kv: kv, userID: userID}
}

func (c *Cache) sessionKey() string {
	return "session:" + c.userID.String()
}

func (c *Cache) pendingKey() string {
	return "pendingSwipes:" + c.userID.String()
}

// GetSession возвращает сохраненную сессию или nil
func (c *Cache) GetSession() (*models.SwipeSession, error) {
	data, ok, err := c.kv.Get(c.sessionKey())
	if err != nil || !ok {
		return nil, err
	}

	var session models.SwipeSession
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, apperr.Wrap(apperr.LocalStore, "localcache.GetSession", fmt.Errorf("ошибка при разборе сессии: %w", err))
	}
	return &session, nil
}

// PutSession сохраняет сессию, заменяя предыдущую
func (c *Cache) PutSession(session models.SwipeSession) error {
	data, err := json.Marshal(session)
	if err != nil {
		return apperr.Wrap(apperr.LocalStore, "localcache.PutSession", err)
	}
	return c.kv.Set(c.sessionKey(), data)
}

// ClearSession удаляет сохраненную сессию
func (c *Cache) ClearSession() error {
	return c.kv.Remove(c.sessionKey())
}

// EnqueuePendingSwipe добавляет свайп в конец очереди.
// Повторная постановка записи с тем же ID ничего не меняет.
func (c *Cache) EnqueuePendingSwipe(entry models.PendingSwipe) error {
	return c.updateQueue("localcache.EnqueuePendingSwipe", func(queue []models.PendingSwipe) []models.PendingSwipe {
		for _, e := range queue {
			if e.ID == entry.ID {
				return queue
			}
		}
		return append(queue, entry)
	})
}

// ListPendingSwipes возвращает очередь в порядке добавления
func (c *Cache) ListPendingSwipes() ([]models.PendingSwipe, error) {
	data, ok, err := c.kv.Get(c.pendingKey())
	if err != nil || !ok {
		return nil, err
	}
	return decodeQueue("localcache.ListPendingSwipes", data)
}

// RemovePendingSwipe удаляет запись из очереди. Удаление уже удаленной
// записи является no-op.
func (c *Cache) RemovePendingSwipe(id uuid.UUID) error {
	return c.updateQueue("localcache.RemovePendingSwipe", func(queue []models.PendingSwipe) []models.PendingSwipe {
		for i, e := range queue {
			if e.ID == id {
				return append(queue[:i], queue[i+1:]...)
			}
		}
		return queue
	})
}

// RemovePendingForSession удаляет все записи сессии и возвращает их количество
func (c *Cache) RemovePendingForSession(sessionID uuid.UUID) (int, error) {
	var removed int
	err := c.updateQueue("localcache.RemovePendingForSession", func(queue []models.PendingSwipe) []models.PendingSwipe {
		kept := queue[:0]
		for _, e := range queue {
			if e.SessionID == sessionID {
				removed++
				continue
			}
			kept = append(kept, e)
		}
		return kept
	})
	return removed, err
}

// HasPendingSwipes сообщает, есть ли неотправленные свайпы
func (c *Cache) HasPendingSwipes() (bool, error) {
	queue, err := c.ListPendingSwipes()
	return len(queue) > 0, err
}

func (c *Cache) updateQueue(op string, fn func([]models.PendingSwipe) []models.PendingSwipe) error {
	return c.kv.Update(c.pendingKey(), func(current []byte) ([]byte, error) {
		var queue []models.PendingSwipe
		if current != nil {
			var err error
			if queue, err = decodeQueue(op, current); err != nil {
				return nil, err
			}
		}

		queue = fn(queue)
		if len(queue) == 0 {
			return nil, nil
		}

		data, err := json.Marshal(queue)
		if err != nil {
			return nil, apperr.Wrap(apperr.LocalStore, op, err)
		}
		return data, nil
	})
}

func decodeQueue(op string, data []byte) ([]models.PendingSwipe, error) {
	var queue []models.PendingSwipe
	if err := json.Unmarshal(data, &queue); err != nil {
		return nil, apperr.Wrap(apperr.LocalStore, op, fmt.Errorf("ошибка при разборе очереди: %w", err))
	}
	return queue, nil
}
