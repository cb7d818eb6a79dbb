package swipe

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rajivgeraev/flippy-swipe/internal/apperr"
	"github.com/rajivgeraev/flippy-swipe/internal/logger"
	"github.com/rajivgeraev/flippy-swipe/internal/models"
	"github.com/rajivgeraev/flippy-swipe/internal/remote"
)

// Outcome это итог обработки свайпа вправо
type Outcome int

const (
	OutcomeCreated     Outcome = iota // созданы предложение и уведомление
	OutcomeUnavailable                // объявление уже недоступно
	OutcomeDuplicate                  // такое предложение уже есть
	OutcomeFailed                     // ошибка записи, залогирована
	OutcomeDiscarded                  // сессия завершилась до записи
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCreated:
		return "created"
	case OutcomeUnavailable:
		return "unavailable"
	case OutcomeDuplicate:
		return "duplicate"
	case OutcomeFailed:
		return "failed"
	case OutcomeDiscarded:
		return "discarded"
	}
	return "unknown"
}

// MatchPipeline создает предложение обмена и уведомление по свайпу вправо.
// Ошибки только логируются: свайп уже записан независимо от результата.
type MatchPipeline struct {
	remote remote.Store
	log    *zap.Logger
	now    func() time.Time

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewMatchPipeline создает обработчик свайпов вправо
func NewMatchPipeline(store remote.Store, log *zap.Logger) *MatchPipeline {
	return &MatchPipeline{
		remote: store,
		log:    logger.OrNop(log).Named("match"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// OnRightSwipe перепроверяет доступность target и создает предложение
// обмена якоря сессии на target и уведомление его владельцу
func (p *MatchPipeline) OnRightSwipe(ctx context.Context, session models.SwipeSession, target models.Item, profile models.User) Outcome {
	log := p.log.With(
		zap.Stringer("user_id", session.UserID),
		zap.Stringer("session_id", session.ID),
		zap.Stringer("item_id", target.ID),
	)
	fail := func(msg string, err error) Outcome {
		if ctx.Err() != nil {
			log.Debug("сессия завершена, результат отброшен", zap.Error(err))
			return OutcomeDiscarded
		}
		log.Warn(msg, zap.Error(err), zap.Stringer("kind", apperr.KindOf(err)))
		return OutcomeFailed
	}

	current, err := p.remote.GetItem(ctx, target.ID)
	if errors.Is(err, apperr.ErrNotFound) {
		log.Debug("объявление удалено до создания предложения")
		return OutcomeUnavailable
	}
	if err != nil {
		return fail("не удалось проверить объявление", err)
	}
	if !current.IsAvailable() || current.OwnerID == session.UserID {
		log.Debug("объявление недоступно для обмена", zap.String("status", string(current.Status)))
		return OutcomeUnavailable
	}

	anchor, err := p.remote.GetItem(ctx, session.TradeAnchorID)
	if err != nil {
		return fail("не удалось получить якорь обмена", err)
	}

	_, err = p.remote.FindTradeOffer(ctx, anchor.ID, current.ID, session.UserID)
	if err == nil {
		log.Debug("предложение обмена уже существует")
		return OutcomeDuplicate
	}
	if !errors.Is(err, apperr.ErrNotFound) {
		return fail("не удалось проверить существующие предложения", err)
	}

	if ctx.Err() != nil {
		return OutcomeDiscarded
	}

	now := p.now()
	offer := models.TradeOffer{
		ID:                 uuid.New(),
		TradeAnchorID:      anchor.ID,
		TargetItemID:       current.ID,
		OfferingUserID:     session.UserID,
		TradeAnchorOwnerID: anchor.OwnerID,
		TargetItemOwnerID:  current.OwnerID,
		Status:             models.TradeOfferPending,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := p.remote.CreateTradeOffer(ctx, offer); err != nil {
		return fail("не удалось создать предложение обмена", err)
	}

	notification := models.Notification{
		ID:           uuid.New(),
		UserID:       current.OwnerID,
		Type:         models.NotificationTradeOffer,
		TradeOfferID: offer.ID,
		Payload: models.TradeOfferPayload{
			TradeAnchorID:    anchor.ID,
			TradeAnchorTitle: anchor.Title,
			TradeAnchorImage: anchor.MainImage(),
			TargetItemID:     current.ID,
			TargetItemTitle:  current.Title,
			TargetItemImage:  current.MainImage(),
			OfferingUserName: profile.DisplayName(),
			CreatedAt:        now,
		},
		CreatedAt: now,
	}
	if err := p.remote.CreateNotification(ctx, notification); err != nil {
		// Предложение уже создано, уведомление теряется
		return fail("не удалось создать уведомление", err)
	}

	log.Info("создано предложение обмена", zap.Stringer("trade_offer_id", offer.ID))
	return OutcomeCreated
}

// Dispatch запускает OnRightSwipe в фоне в рамках сессии scope.
// done вызывается с итогом, если не nil.
func (p *MatchPipeline) Dispatch(scope *Scope, target models.Item, profile models.User, done func(Outcome)) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.log.Debug("обработчик остановлен, свайп вправо пропущен",
			zap.Stringer("session_id", scope.Session.ID),
			zap.Stringer("item_id", target.ID),
		)
		if done != nil {
			done(OutcomeDiscarded)
		}
		return
	}
	p.wg.Add(1)
	p.mu.Unlock()

	go func() {
		defer p.wg.Done()

		outcome := p.OnRightSwipe(scope.Context(), scope.Session, target, profile)
		if done != nil {
			done(outcome)
		}
	}()
}

// Wait ждет завершения всех запущенных обработок
func (p *MatchPipeline) Wait() {
	p.wg.Wait()
}

// Close запрещает новые обработки и ждет завершения запущенных.
// Dispatch после Close сразу сообщает OutcomeDiscarded.
func (p *MatchPipeline) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	p.wg.Wait()
}
