package swipe

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/rajivgeraev/flippy-swipe/internal/apperr"
	"github.com/rajivgeraev/flippy-swipe/internal/models"
	"github.com/rajivgeraev/flippy-swipe/internal/remote"
	"github.com/rajivgeraev/flippy-swipe/internal/retry"
)

// PoolBuilder подбирает объявления других пользователей для свайпов
type PoolBuilder struct {
	remote  remote.Store
	history *HistoryStore
	policy  retry.Policy
}

// NewPoolBuilder создает подборщик кандидатов
func NewPoolBuilder(store remote.Store, history *HistoryStore, policy retry.Policy) *PoolBuilder {
	return &PoolBuilder{remote: store, history: history, policy: policy}
}

// BuildPool возвращает до batchSize доступных объявлений других
// пользователей, исключая объявления из history. Порядок совпадает с
// порядком хранилища. Пустой результат означает, что кандидаты закончились.
func (b *PoolBuilder) BuildPool(ctx context.Context, userID uuid.UUID, history []models.SwipeRecord, batchSize int) ([]models.Item, error) {
	if batchSize <= 0 {
		return nil, apperr.New(apperr.Validation, "swipe.BuildPool", "размер пачки должен быть положительным")
	}

	items, err := retry.Do(ctx, b.policy, func(ctx context.Context) ([]models.Item, error) {
		return b.remote.ListAvailableItems(ctx, userID)
	})
	if err != nil {
		return nil, err
	}

	swiped := SwipedItems(history)
	pool := make([]models.Item, 0, min(batchSize, len(items)))
	for _, item := range items {
		if len(pool) == batchSize {
			break
		}
		if item.OwnerID == userID || !item.IsAvailable() {
			continue
		}
		if _, ok := swiped[item.ID]; ok {
			continue
		}
		pool = append(pool, item)
	}
	return pool, nil
}

// Refill заново получает историю сессии, подбирает кандидатов и добавляет
// их в pool. Если сессия завершилась во время подбора, результат
// отбрасывается и возвращается ErrSessionClosed.
func (b *PoolBuilder) Refill(scope *Scope, pool *CandidatePool, batchSize int) (int, error) {
	ctx := scope.Context()
	session := scope.Session

	history, err := b.history.GetSwipeHistory(ctx, session.ID, session.UserID)
	if err == nil {
		var items []models.Item
		items, err = b.BuildPool(ctx, session.UserID, history, batchSize)
		if err == nil {
			if scopeErr := scope.Err(); scopeErr != nil {
				return 0, scopeErr
			}
			return pool.Append(items), nil
		}
	}

	if scopeErr := scope.Err(); scopeErr != nil {
		return 0, scopeErr
	}
	return 0, err
}

// CandidatePool это упорядоченный список кандидатов с курсором.
// Объявление, однажды попавшее в пул, повторно не добавляется.
type CandidatePool struct {
	mu     sync.Mutex
	items  []models.Item
	cursor int
	seen   map[uuid.UUID]struct{}
}

// NewCandidatePool создает пул из начальной пачки
func NewCandidatePool(items []models.Item) *CandidatePool {
	p := &CandidatePool{seen: make(map[uuid.UUID]struct{})}
	p.Append(items)
	return p
}

// Append добавляет новые объявления в конец и возвращает их количество
func (p *CandidatePool) Append(items []models.Item) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	var added int
	for _, item := range items {
		if _, ok := p.seen[item.ID]; ok {
			continue
		}
		p.seen[item.ID] = struct{}{}
		p.items = append(p.items, item)
		added++
	}
	return added
}

// Current возвращает объявление под курсором
func (p *CandidatePool) Current() (models.Item, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cursor >= len(p.items) {
		return models.Item{}, false
	}
	return p.items[p.cursor], true
}

// Advance сдвигает курсор на следующее объявление
func (p *CandidatePool) Advance() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cursor < len(p.items) {
		p.cursor++
	}
}

// Remaining возвращает количество объявлений от курсора до конца
func (p *CandidatePool) Remaining() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.items) - p.cursor
}

// Upcoming возвращает копию объявлений от курсора до конца
func (p *CandidatePool) Upcoming() []models.Item {
	p.mu.Lock()
	defer p.mu.Unlock()
	upcoming := make([]models.Item, 0, len(p.items)-p.cursor)
	return append(upcoming, p.items[p.cursor:]...)
}

// NeedsRefill сообщает, что осталось меньше threshold объявлений
func (p *CandidatePool) NeedsRefill(threshold int) bool {
	return p.Remaining() < threshold
}
