package remote

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/rajivgeraev/flippy-swipe/internal/apperr"
	"github.com/rajivgeraev/flippy-swipe/internal/models"
)

// Имена операций для внедрения сбоев в MemoryStore
const (
	OpGetItem            = "GetItem"
	OpListAvailableItems = "ListAvailableItems"
	OpGetUser            = "GetUser"
	OpCreateSession      = "CreateSession"
	OpGetSession         = "GetSession"
	OpPutSwipeRecord     = "PutSwipeRecord"
	OpListSwipeRecords   = "ListSwipeRecords"
	OpFindTradeOffer     = "FindTradeOffer"
	OpCreateTradeOffer   = "CreateTradeOffer"
	OpListTradeOffers    = "ListTradeOffers"
	OpCreateNotification = "CreateNotification"
	OpListNotifications  = "ListNotifications"
)

// ErrOffline возвращается MemoryStore в режиме без сети
var ErrOffline = errors.New("network is unreachable")

type memoryState struct {
	items         []models.Item // порядок вставки это порядок хранилища
	users         map[uuid.UUID]models.User
	sessions      map[uuid.UUID]models.SwipeSession
	records       []models.SwipeRecord
	offers        []models.TradeOffer
	notifications []models.Notification
}

func (st *memoryState) clone() *memoryState {
	c := &memoryState{
		items:         append([]models.Item(nil), st.items...),
		users:         make(map[uuid.UUID]models.User, len(st.users)),
		sessions:      make(map[uuid.UUID]models.SwipeSession, len(st.sessions)),
		records:       append([]models.SwipeRecord(nil), st.records...),
		offers:        append([]models.TradeOffer(nil), st.offers...),
		notifications: append([]models.Notification(nil), st.notifications...),
	}
	for k, v := range st.users {
		c.users[k] = v
	}
	for k, v := range st.sessions {
		c.sessions[k] = v
	}
	return c
}

// MemoryStore хранит документы в памяти процесса. Используется в тестах
// и в режиме REMOTE_BACKEND=memory. Поддерживает имитацию отключения сети
// и разовые сбои отдельных операций.
type MemoryStore struct {
	core *memoryCore
	inTx bool
}

type memoryCore struct {
	mu       sync.Mutex
	state    *memoryState
	offline  bool
	failures map[string][]error
	calls    map[string]int
}

// NewMemoryStore создает пустое хранилище
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{core: &memoryCore{
		state: &memoryState{
			users:    make(map[uuid.UUID]models.User),
			sessions: make(map[uuid.UUID]models.SwipeSession),
		},
		failures: make(map[string][]error),
		calls:    make(map[string]int),
	}}
}

// lock захватывает хранилище. Внутри транзакции блокировка уже удерживается.
func (s *MemoryStore) lock() func() {
	if s.inTx {
		return func() {}
	}
	s.core.mu.Lock()
	return s.core.mu.Unlock
}

// SetOffline включает или выключает режим без сети
func (s *MemoryStore) SetOffline(offline bool) {
	defer s.lock()()
	s.core.offline = offline
}

// FailNext заставляет следующие вызовы op вернуть errs по порядку
func (s *MemoryStore) FailNext(op string, errs ...error) {
	defer s.lock()()
	s.core.failures[op] = append(s.core.failures[op], errs...)
}

// Calls возвращает количество вызовов операции op
func (s *MemoryStore) Calls(op string) int {
	defer s.lock()()
	return s.core.calls[op]
}

// PutItem добавляет или заменяет объявление
func (s *MemoryStore) PutItem(item models.Item) {
	defer s.lock()()
	for i, it := range s.core.state.items {
		if it.ID == item.ID {
			s.core.state.items[i] = item
			return
		}
	}
	s.core.state.items = append(s.core.state.items, item)
}

// SetItemStatus меняет статус объявления
func (s *MemoryStore) SetItemStatus(id uuid.UUID, status models.ItemStatus) {
	defer s.lock()()
	for i := range s.core.state.items {
		if s.core.state.items[i].ID == id {
			s.core.state.items[i].Status = status
		}
	}
}

// PutUser добавляет или заменяет пользователя
func (s *MemoryStore) PutUser(user models.User) {
	defer s.lock()()
	s.core.state.users[user.ID] = user
}

// SwipeRecords возвращает копию всех записей свайпов
func (s *MemoryStore) SwipeRecords() []models.SwipeRecord {
	defer s.lock()()
	return append([]models.SwipeRecord(nil), s.core.state.records...)
}

// TradeOffers возвращает копию всех предложений обмена
func (s *MemoryStore) TradeOffers() []models.TradeOffer {
	defer s.lock()()
	return append([]models.TradeOffer(nil), s.core.state.offers...)
}

// Notifications возвращает копию всех уведомлений
func (s *MemoryStore) Notifications() []models.Notification {
	defer s.lock()()
	return append([]models.Notification(nil), s.core.state.notifications...)
}

// enter учитывает вызов и возвращает внедренную ошибку. Вызывается под s.core.mu.
func (s *MemoryStore) enter(ctx context.Context, op string) error {
	s.core.calls[op]++
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.core.offline {
		return apperr.Wrap(apperr.Transient, op, ErrOffline)
	}
	if queued := s.core.failures[op]; len(queued) > 0 {
		s.core.failures[op] = queued[1:]
		return queued[0]
	}
	return nil
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	defer s.lock()()
	if s.core.offline {
		return apperr.Wrap(apperr.Transient, "Ping", ErrOffline)
	}
	return ctx.Err()
}

// InTx выполняет fn, откатывая изменения при ошибке. Хранилище
// заблокировано на всё время транзакции, fn получает представление без
// собственной блокировки.
func (s *MemoryStore) InTx(ctx context.Context, fn func(tx Store) error) error {
	if s.inTx {
		return fn(s)
	}

	s.core.mu.Lock()
	defer s.core.mu.Unlock()

	snapshot := s.core.state.clone()
	if err := fn(&MemoryStore{core: s.core, inTx: true}); err != nil {
		s.core.state = snapshot
		return err
	}
	return nil
}

func (s *MemoryStore) GetItem(ctx context.Context, id uuid.UUID) (models.Item, error) {
	defer s.lock()()
	if err := s.enter(ctx, OpGetItem); err != nil {
		return models.Item{}, err
	}
	for _, it := range s.core.state.items {
		if it.ID == id {
			return it, nil
		}
	}
	return models.Item{}, apperr.New(apperr.NotFound, OpGetItem, "объявление не найдено")
}

func (s *MemoryStore) ListAvailableItems(ctx context.Context, excludeOwnerID uuid.UUID) ([]models.Item, error) {
	defer s.lock()()
	if err := s.enter(ctx, OpListAvailableItems); err != nil {
		return nil, err
	}
	var items []models.Item
	for _, it := range s.core.state.items {
		if it.Status == models.ItemAvailable && it.OwnerID != excludeOwnerID {
			items = append(items, it)
		}
	}
	return items, nil
}

func (s *MemoryStore) GetUser(ctx context.Context, id uuid.UUID) (models.User, error) {
	defer s.lock()()
	if err := s.enter(ctx, OpGetUser); err != nil {
		return models.User{}, err
	}
	user, ok := s.core.state.users[id]
	if !ok {
		return models.User{}, apperr.New(apperr.NotFound, OpGetUser, "пользователь не найден")
	}
	return user, nil
}

func (s *MemoryStore) CreateSession(ctx context.Context, session models.SwipeSession) error {
	defer s.lock()()
	if err := s.enter(ctx, OpCreateSession); err != nil {
		return err
	}
	if existing, exists := s.core.state.sessions[session.ID]; exists {
		if existing.UserID != session.UserID || existing.TradeAnchorID != session.TradeAnchorID {
			return apperr.New(apperr.Validation, OpCreateSession, "сессия уже существует")
		}
		return nil
	}
	s.core.state.sessions[session.ID] = session
	return nil
}

func (s *MemoryStore) GetSession(ctx context.Context, id uuid.UUID) (models.SwipeSession, error) {
	defer s.lock()()
	if err := s.enter(ctx, OpGetSession); err != nil {
		return models.SwipeSession{}, err
	}
	session, ok := s.core.state.sessions[id]
	if !ok {
		return models.SwipeSession{}, apperr.New(apperr.NotFound, OpGetSession, "сессия не найдена")
	}
	return session, nil
}

func (s *MemoryStore) PutSwipeRecord(ctx context.Context, record models.SwipeRecord) error {
	defer s.lock()()
	if err := s.enter(ctx, OpPutSwipeRecord); err != nil {
		return err
	}
	if !record.Direction.Valid() {
		return apperr.New(apperr.Validation, OpPutSwipeRecord, "недопустимое направление")
	}
	for _, r := range s.core.state.records {
		if r.ID == record.ID {
			return nil
		}
	}
	s.core.state.records = append(s.core.state.records, record)
	return nil
}

func (s *MemoryStore) ListSwipeRecords(ctx context.Context, sessionID, userID uuid.UUID) ([]models.SwipeRecord, error) {
	defer s.lock()()
	if err := s.enter(ctx, OpListSwipeRecords); err != nil {
		return nil, err
	}
	var records []models.SwipeRecord
	for _, r := range s.core.state.records {
		if r.SessionID == sessionID && r.UserID == userID {
			records = append(records, r)
		}
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Timestamp.Before(records[j].Timestamp)
	})
	return records, nil
}

func (s *MemoryStore) FindTradeOffer(ctx context.Context, anchorID, targetID, offeringUserID uuid.UUID) (models.TradeOffer, error) {
	defer s.lock()()
	if err := s.enter(ctx, OpFindTradeOffer); err != nil {
		return models.TradeOffer{}, err
	}
	for _, o := range s.core.state.offers {
		if o.TradeAnchorID == anchorID && o.TargetItemID == targetID &&
			o.OfferingUserID == offeringUserID && o.Status == models.TradeOfferPending {
			return o, nil
		}
	}
	return models.TradeOffer{}, apperr.New(apperr.NotFound, OpFindTradeOffer, "предложение не найдено")
}

func (s *MemoryStore) CreateTradeOffer(ctx context.Context, offer models.TradeOffer) error {
	defer s.lock()()
	if err := s.enter(ctx, OpCreateTradeOffer); err != nil {
		return err
	}
	s.core.state.offers = append(s.core.state.offers, offer)
	return nil
}

func (s *MemoryStore) ListTradeOffers(ctx context.Context, userID uuid.UUID) ([]models.TradeOffer, error) {
	defer s.lock()()
	if err := s.enter(ctx, OpListTradeOffers); err != nil {
		return nil, err
	}
	var offers []models.TradeOffer
	for i := len(s.core.state.offers) - 1; i >= 0; i-- {
		o := s.core.state.offers[i]
		if o.OfferingUserID == userID || o.TargetItemOwnerID == userID {
			offers = append(offers, o)
		}
	}
	return offers, nil
}

func (s *MemoryStore) CreateNotification(ctx context.Context, n models.Notification) error {
	defer s.lock()()
	if err := s.enter(ctx, OpCreateNotification); err != nil {
		return err
	}
	s.core.state.notifications = append(s.core.state.notifications, n)
	return nil
}

func (s *MemoryStore) ListNotifications(ctx context.Context, userID uuid.UUID, limit int) ([]models.Notification, error) {
	defer s.lock()()
	if err := s.enter(ctx, OpListNotifications); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}
	var out []models.Notification
	for i := len(s.core.state.notifications) - 1; i >= 0 && len(out) < limit; i-- {
		if n := s.core.state.notifications[i]; n.UserID == userID {
			out = append(out, n)
		}
	}
	return out, nil
}

var _ Store = (*MemoryStore)(nil)
