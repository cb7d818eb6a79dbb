package swipe

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rajivgeraev/flippy-swipe/internal/apperr"
	"github.com/rajivgeraev/flippy-swipe/internal/logger"
	"github.com/rajivgeraev/flippy-swipe/internal/models"
	"github.com/rajivgeraev/flippy-swipe/internal/remote"
	"github.com/rajivgeraev/flippy-swipe/internal/retry"
)

// ErrSessionClosed возвращается операциями, результат которых пришел
// после завершения сессии
var ErrSessionClosed = apperr.New(apperr.SessionExpired, "swipe", "сессия завершена")

// Scope это сессия вместе с контекстом её жизни. Контекст отменяется при
// отказе от сессии, и все запущенные в ней операции отбрасывают результат.
type Scope struct {
	Session models.SwipeSession

	ctx    context.Context
	cancel context.CancelFunc
}

// NewScope создает область жизни для session
func NewScope(session models.SwipeSession) *Scope {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scope{Session: session, ctx: ctx, cancel: cancel}
}

// Context отменяется при закрытии сессии
func (s *Scope) Context() context.Context { return s.ctx }

// Err возвращает ErrSessionClosed после закрытия сессии
func (s *Scope) Err() error {
	if s.ctx.Err() != nil {
		return ErrSessionClosed
	}
	return nil
}

// Close отменяет операции сессии, не трогая локальный кэш.
// Используется при остановке сервиса.
func (s *Scope) Close() { s.cancel() }

// SessionManager создает, восстанавливает и завершает сессии
type SessionManager struct {
	remote remote.Store
	caches Caches
	policy retry.Policy
	log    *zap.Logger
	now    func() time.Time
}

// NewSessionManager создает менеджер сессий
func NewSessionManager(store remote.Store, caches Caches, policy retry.Policy, log *zap.Logger) *SessionManager {
	return &SessionManager{
		remote: store,
		caches: caches,
		policy: policy,
		log:    logger.OrNop(log).Named("session"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// CreateSession создает сессию вокруг объявления anchorID. Якорь должен
// принадлежать userID и быть доступным, иначе возвращается ошибка
// AnchorUnavailable. Проверка и создание выполняются в одной транзакции.
func (m *SessionManager) CreateSession(ctx context.Context, userID, anchorID uuid.UUID) (*Scope, error) {
	const op = "swipe.CreateSession"

	session := models.SwipeSession{
		ID:            uuid.New(),
		UserID:        userID,
		TradeAnchorID: anchorID,
		CreatedAt:     m.now(),
	}

	err := m.policy.Execute(ctx, func(ctx context.Context) error {
		return m.remote.InTx(ctx, func(tx remote.Store) error {
			anchor, err := tx.GetItem(ctx, anchorID)
			if errors.Is(err, apperr.ErrNotFound) {
				return apperr.Wrap(apperr.AnchorUnavailable, op, err)
			}
			if err != nil {
				return err
			}

			switch {
			case anchor.OwnerID != userID:
				return apperr.New(apperr.AnchorUnavailable, op, "объявление принадлежит другому пользователю")
			case !anchor.IsAvailable():
				return apperr.New(apperr.AnchorUnavailable, op, "объявление недоступно для обмена")
			}

			return tx.CreateSession(ctx, session)
		})
	})
	if err != nil {
		return nil, err
	}

	if err := m.caches(userID).PutSession(session); err != nil {
		return nil, err
	}

	m.log.Info("создана сессия свайпов",
		zap.Stringer("user_id", userID),
		zap.Stringer("session_id", session.ID),
		zap.Stringer("item_id", anchorID),
	)
	return NewScope(session), nil
}

// RestoreSession возвращает сессию из локального кэша или nil.
// Сессия не перепроверяется в удаленном хранилище.
func (m *SessionManager) RestoreSession(ctx context.Context, userID uuid.UUID) (*Scope, error) {
	session, err := m.caches(userID).GetSession()
	if err != nil || session == nil {
		return nil, err
	}
	if session.UserID != userID {
		return nil, apperr.New(apperr.LocalStore, "swipe.RestoreSession", "в кэше сессия другого пользователя")
	}
	return NewScope(*session), nil
}

// AbandonSession завершает сессию: отменяет её операции, удаляет сессию
// из локального кэша и неотправленные свайпы этой сессии. Запись сессии
// в удаленном хранилище остается.
func (m *SessionManager) AbandonSession(scope *Scope) error {
	scope.Close()

	session := scope.Session
	cache := m.caches(session.UserID)

	cached, err := cache.GetSession()
	if err != nil {
		return err
	}
	// Более новую сессию не трогаем
	if cached != nil && cached.ID == session.ID {
		if err := cache.ClearSession(); err != nil {
			return err
		}
	}

	removed, err := cache.RemovePendingForSession(session.ID)
	if err != nil {
		return err
	}

	m.log.Info("сессия завершена",
		zap.Stringer("user_id", session.UserID),
		zap.Stringer("session_id", session.ID),
		zap.Int("dropped_pending", removed),
	)
	return nil
}
