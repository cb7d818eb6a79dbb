// Package remote описывает удаленное хранилище объявлений, сессий,
// свайпов, предложений обмена и уведомлений.
package remote

import (
	"context"

	"github.com/google/uuid"

	"github.com/rajivgeraev/flippy-swipe/internal/models"
)

// Store это удаленное хранилище документов. Все ошибки помечены
// категорией apperr в месте возникновения.
type Store interface {
	Ping(ctx context.Context) error

	// InTx выполняет fn атомарно. Внутри fn нужно использовать переданный tx.
	InTx(ctx context.Context, fn func(tx Store) error) error

	GetItem(ctx context.Context, id uuid.UUID) (models.Item, error)
	// ListAvailableItems возвращает доступные объявления всех пользователей,
	// кроме excludeOwnerID, в порядке хранилища
	ListAvailableItems(ctx context.Context, excludeOwnerID uuid.UUID) ([]models.Item, error)
	GetUser(ctx context.Context, id uuid.UUID) (models.User, error)

	// CreateSession идемпотентна по ID сессии
	CreateSession(ctx context.Context, session models.SwipeSession) error
	GetSession(ctx context.Context, id uuid.UUID) (models.SwipeSession, error)

	// PutSwipeRecord идемпотентна по ID записи. Повторный свайп того же
	// объявления имеет новый ID и добавляется в журнал.
	PutSwipeRecord(ctx context.Context, record models.SwipeRecord) error
	ListSwipeRecords(ctx context.Context, sessionID, userID uuid.UUID) ([]models.SwipeRecord, error)

	// FindTradeOffer возвращает ошибку NotFound, если предложения нет
	FindTradeOffer(ctx context.Context, anchorID, targetID, offeringUserID uuid.UUID) (models.TradeOffer, error)
	CreateTradeOffer(ctx context.Context, offer models.TradeOffer) error
	ListTradeOffers(ctx context.Context, userID uuid.UUID) ([]models.TradeOffer, error)

	CreateNotification(ctx context.Context, n models.Notification) error
	ListNotifications(ctx context.Context, userID uuid.UUID, limit int) ([]models.Notification, error)
}
