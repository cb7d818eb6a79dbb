package swipe

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rajivgeraev/flippy-swipe/internal/apperr"
	"github.com/rajivgeraev/flippy-swipe/internal/config"
	"github.com/rajivgeraev/flippy-swipe/internal/connectivity"
	"github.com/rajivgeraev/flippy-swipe/internal/db"
	"github.com/rajivgeraev/flippy-swipe/internal/logger"
	"github.com/rajivgeraev/flippy-swipe/internal/middleware"
	"github.com/rajivgeraev/flippy-swipe/internal/models"
	"github.com/rajivgeraev/flippy-swipe/internal/remote"
	"github.com/rajivgeraev/flippy-swipe/internal/retry"
	core "github.com/rajivgeraev/flippy-swipe/internal/swipe"
	"github.com/rajivgeraev/flippy-swipe/internal/utils"
)

// PendingLister перечисляет пользователей с неотправленными свайпами
type PendingLister interface {
	PendingUsers() ([]uuid.UUID, error)
}

// userState хранит сессию пользователя. mu сериализует операции одного
// пользователя: курсор пула сдвигается только после записи свайпа.
type userState struct {
	mu      sync.Mutex
	scope   *core.Scope
	pool    *core.CandidatePool
	profile models.User
	engine  *core.SyncEngine
}

// SwipeService представляет сервис для свайпов
type SwipeService struct {
	cfg        *config.Config
	jwtService *utils.JWTService
	store      remote.Store
	caches     core.Caches
	pending    PendingLister
	signal     connectivity.Signal
	log        *zap.Logger
	policy     retry.Policy

	sessions *core.SessionManager
	history  *core.HistoryStore
	builder  *core.PoolBuilder
	match    *core.MatchPipeline

	mu    sync.Mutex
	users map[uuid.UUID]*userState
	spawn func(*core.SyncEngine)
}

// NewSwipeService создает новый экземпляр SwipeService
func NewSwipeService(cfg *config.Config, store remote.Store, caches core.Caches, pending PendingLister, signal connectivity.Signal, log *zap.Logger) *SwipeService {
	log = logger.OrNop(log)
	policy := cfg.Swipe.RetryPolicy()
	policy.OnRetry = func(attempt uint, delay time.Duration, err error) {
		log.Debug("повтор операции",
			zap.Uint("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
	}
	history := core.NewHistoryStore(store, caches, policy, signal, log)

	return &SwipeService{
		cfg:        cfg,
		jwtService: utils.NewJWTService(cfg.JWTSecret),
		store:      store,
		caches:     caches,
		pending:    pending,
		signal:     signal,
		log:        log.Named("swipe-service"),
		policy:     policy,
		sessions:   core.NewSessionManager(store, caches, policy, log),
		history:    history,
		builder:    core.NewPoolBuilder(store, history, policy),
		match:      core.NewMatchPipeline(store, log),
		users:      make(map[uuid.UUID]*userState),
	}
}

// state возвращает состояние пользователя, создавая его при первом обращении
func (s *SwipeService) state(userID uuid.UUID) *userState {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.users[userID]
	if !ok {
		st = &userState{
			engine: core.NewSyncEngine(s.store, s.caches(userID), s.policy, s.log),
		}
		s.users[userID] = st
		if s.spawn != nil {
			s.spawn(st.engine)
		}
	}
	return st
}

// Run синхронизирует очереди пользователей при старте и при каждом
// восстановлении сети. Завершается при отмене ctx.
func (s *SwipeService) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	s.mu.Lock()
	s.spawn = func(e *core.SyncEngine) {
		g.Go(func() error {
			e.Run(gctx, s.signal)
			return nil
		})
	}
	for _, st := range s.users {
		s.spawn(st.engine)
	}
	s.mu.Unlock()

	if s.pending != nil {
		users, err := s.pending.PendingUsers()
		if err != nil {
			s.log.Error("не удалось получить очереди свайпов", zap.Error(err))
		}
		for _, id := range users {
			s.state(id)
		}
		s.log.Info("запущена синхронизация", zap.Int("users_with_pending", len(users)))
	}

	<-gctx.Done()

	s.mu.Lock()
	s.spawn = nil
	for _, st := range s.users {
		if st.scope != nil {
			st.scope.Close()
		}
	}
	s.mu.Unlock()

	err := g.Wait()
	s.match.Close()
	return err
}

// current возвращает активную сессию пользователя, восстанавливая её из
// локального кэша. Вызывается под st.mu.
func (s *SwipeService) current(ctx context.Context, userID uuid.UUID, st *userState) (*core.Scope, error) {
	if st.scope != nil && st.scope.Err() == nil {
		return st.scope, nil
	}

	scope, err := s.sessions.RestoreSession(ctx, userID)
	if err != nil || scope == nil {
		return nil, err
	}
	st.scope = scope
	st.pool = nil
	st.profile = s.loadProfile(ctx, userID)
	return scope, nil
}

// candidates возвращает пул сессии, собирая его при необходимости.
// Вызывается под st.mu.
func (s *SwipeService) candidates(st *userState) (*core.CandidatePool, error) {
	if st.pool == nil {
		pool := core.NewCandidatePool(nil)
		if _, err := s.builder.Refill(st.scope, pool, s.cfg.Swipe.PoolBatchSize); err != nil {
			return nil, err
		}
		st.pool = pool
	}
	return st.pool, nil
}

// loadProfile получает профиль для уведомлений. Ошибка не мешает свайпам.
func (s *SwipeService) loadProfile(ctx context.Context, userID uuid.UUID) models.User {
	profile, err := s.store.GetUser(ctx, userID)
	if err != nil {
		s.log.Debug("профиль пользователя недоступен", zap.Stringer("user_id", userID), zap.Error(err))
		return models.User{ID: userID}
	}
	return profile
}

func sessionResponse(scope *core.Scope, pool *core.CandidatePool) fiber.Map {
	return fiber.Map{
		"session":    scope.Session,
		"candidates": pool.Upcoming(),
	}
}

// CreateSession создает сессию вокруг выбранного объявления
func (s *SwipeService) CreateSession(c fiber.Ctx) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Пользователь не авторизован"})
	}

	var requestData struct {
		TradeAnchorID string `json:"trade_anchor_id"`
	}
	if err := c.Bind().Body(&requestData); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат данных"})
	}

	anchorID, err := uuid.Parse(requestData.TradeAnchorID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID объявления"})
	}

	ctx, cancel := db.GetContext(context.Background())
	defer cancel()

	st := s.state(userID)
	st.mu.Lock()
	defer st.mu.Unlock()

	previous, err := s.current(ctx, userID, st)
	if err != nil {
		return utils.SendError(c, err)
	}

	scope, err := s.sessions.CreateSession(ctx, userID, anchorID)
	if err != nil {
		return utils.SendError(c, err)
	}

	// Смена якоря: старая сессия завершается после создания новой
	if previous != nil {
		if err := s.sessions.AbandonSession(previous); err != nil {
			s.log.Warn("не удалось завершить предыдущую сессию", zap.Error(err))
		}
	}

	st.scope = scope
	st.pool = nil
	st.profile = s.loadProfile(ctx, userID)

	pool, err := s.candidates(st)
	if err != nil {
		return utils.SendError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(sessionResponse(scope, pool))
}

// GetCurrentSession возвращает активную сессию и её кандидатов
func (s *SwipeService) GetCurrentSession(c fiber.Ctx) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Пользователь не авторизован"})
	}

	ctx, cancel := db.GetContext(context.Background())
	defer cancel()

	st := s.state(userID)
	st.mu.Lock()
	defer st.mu.Unlock()

	scope, err := s.current(ctx, userID, st)
	if err != nil {
		return utils.SendError(c, err)
	}
	if scope == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Нет активной сессии"})
	}

	pool, err := s.candidates(st)
	if err != nil {
		return utils.SendError(c, err)
	}
	return c.JSON(sessionResponse(scope, pool))
}

// AbandonSession завершает активную сессию
func (s *SwipeService) AbandonSession(c fiber.Ctx) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Пользователь не авторизован"})
	}

	ctx, cancel := db.GetContext(context.Background())
	defer cancel()

	st := s.state(userID)
	st.mu.Lock()
	defer st.mu.Unlock()

	scope, err := s.current(ctx, userID, st)
	if err != nil {
		return utils.SendError(c, err)
	}
	if scope == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Нет активной сессии"})
	}

	if err := s.sessions.AbandonSession(scope); err != nil {
		return utils.SendError(c, err)
	}
	st.scope = nil
	st.pool = nil

	return c.JSON(fiber.Map{"success": true})
}

// GetCandidates возвращает оставшихся кандидатов начиная с текущего
func (s *SwipeService) GetCandidates(c fiber.Ctx) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Пользователь не авторизован"})
	}

	ctx, cancel := db.GetContext(context.Background())
	defer cancel()

	st := s.state(userID)
	st.mu.Lock()
	defer st.mu.Unlock()

	scope, err := s.current(ctx, userID, st)
	if err != nil {
		return utils.SendError(c, err)
	}
	if scope == nil {
		return utils.SendError(c, core.ErrSessionClosed)
	}

	pool, err := s.candidates(st)
	if err != nil {
		return utils.SendError(c, err)
	}
	return c.JSON(fiber.Map{"candidates": pool.Upcoming()})
}

// RecordSwipe записывает решение по текущему кандидату
func (s *SwipeService) RecordSwipe(c fiber.Ctx) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Пользователь не авторизован"})
	}

	var requestData struct {
		ItemID    string           `json:"item_id"`
		Direction models.Direction `json:"direction"`
	}
	if err := c.Bind().Body(&requestData); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат данных"})
	}

	itemID, err := uuid.Parse(requestData.ItemID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID объявления"})
	}
	if !requestData.Direction.Valid() {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Направление должно быть left или right"})
	}

	ctx, cancel := db.GetContext(context.Background())
	defer cancel()

	st := s.state(userID)
	st.mu.Lock()
	defer st.mu.Unlock()

	scope, err := s.current(ctx, userID, st)
	if err != nil {
		return utils.SendError(c, err)
	}
	if scope == nil {
		return utils.SendError(c, core.ErrSessionClosed)
	}

	pool, err := s.candidates(st)
	if err != nil {
		return utils.SendError(c, err)
	}

	target, ok := pool.Current()
	if !ok || target.ID != itemID {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "Свайп возможен только по текущему объявлению"})
	}

	entry, err := s.history.RecordSwipe(ctx, scope.Session.ID, userID, itemID, requestData.Direction)
	if err != nil {
		return utils.SendError(c, err)
	}
	pool.Advance()

	if requestData.Direction == models.DirectionRight {
		s.match.Dispatch(scope, target, st.profile, nil)
	}

	if pool.NeedsRefill(s.cfg.Swipe.RefillThreshold) {
		if _, err := s.builder.Refill(scope, pool, s.cfg.Swipe.PoolBatchSize); err != nil && !errors.Is(err, core.ErrSessionClosed) {
			// Свайп уже записан, пул дозагрузится при следующем свайпе
			s.log.Warn("не удалось дозагрузить кандидатов", zap.Stringer("user_id", userID), zap.Error(err))
		}
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"swipe":      entry.SwipeRecord,
		"candidates": pool.Upcoming(),
	})
}

// SyncNow отправляет очередь свайпов пользователя
func (s *SwipeService) SyncNow(c fiber.Ctx) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Пользователь не авторизован"})
	}

	ctx, cancel := db.GetContext(context.Background())
	defer cancel()

	res, err := s.state(userID).engine.SyncNow(ctx)
	switch {
	case errors.Is(err, core.ErrSyncInProgress):
		return c.Status(fiber.StatusAccepted).JSON(res)
	case err != nil && apperr.IsRetryable(err):
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error":     apperr.UserMessage(err),
			"retryable": true,
			"result":    res,
		})
	case err != nil:
		return utils.SendError(c, err)
	}
	return c.JSON(res)
}
