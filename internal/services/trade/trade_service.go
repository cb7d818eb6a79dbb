package trade

import (
	"context"
	"strconv"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rajivgeraev/flippy-swipe/internal/config"
	"github.com/rajivgeraev/flippy-swipe/internal/db"
	"github.com/rajivgeraev/flippy-swipe/internal/logger"
	"github.com/rajivgeraev/flippy-swipe/internal/middleware"
	"github.com/rajivgeraev/flippy-swipe/internal/models"
	"github.com/rajivgeraev/flippy-swipe/internal/remote"
	"github.com/rajivgeraev/flippy-swipe/internal/retry"
	"github.com/rajivgeraev/flippy-swipe/internal/utils"
)

// TradeService представляет сервис для чтения предложений обмена и уведомлений
type TradeService struct {
	cfg        *config.Config
	jwtService *utils.JWTService
	store      remote.Store
	policy     retry.Policy
	log        *zap.Logger
}

// NewTradeService создает новый экземпляр TradeService
func NewTradeService(cfg *config.Config, store remote.Store, log *zap.Logger) *TradeService {
	return &TradeService{
		cfg:        cfg,
		jwtService: utils.NewJWTService(cfg.JWTSecret),
		store:      store,
		policy:     cfg.Swipe.RetryPolicy(),
		log:        logger.OrNop(log).Named("trade-service"),
	}
}

// GetMyTrades возвращает список входящих и исходящих предложений обмена
func (s *TradeService) GetMyTrades(c fiber.Ctx) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Пользователь не авторизован"})
	}

	// Получаем тип предложений (входящие/исходящие/все)
	tradeType := c.Query("type", "all") // all, incoming, outgoing
	status := c.Query("status", "all")  // all, pending, accepted, rejected, canceled

	ctx, cancel := db.GetContext(context.Background())
	defer cancel()

	offers, err := retry.Do(ctx, s.policy, func(ctx context.Context) ([]models.TradeOffer, error) {
		return s.store.ListTradeOffers(ctx, userID)
	})
	if err != nil {
		s.log.Warn("ошибка получения предложений обмена", zap.Stringer("user_id", userID), zap.Error(err))
		return utils.SendError(c, err)
	}

	trades := FilterOffers(offers, userID, tradeType, status)
	return c.JSON(fiber.Map{
		"trades": trades,
		"count":  len(trades),
	})
}

// FilterOffers отбирает предложения по направлению и статусу.
// Входящие адресованы владельцу целевого объявления.
func FilterOffers(offers []models.TradeOffer, userID uuid.UUID, tradeType, status string) []models.TradeOffer {
	trades := make([]models.TradeOffer, 0, len(offers))
	for _, o := range offers {
		switch tradeType {
		case "incoming":
			if o.TargetItemOwnerID != userID {
				continue
			}
		case "outgoing":
			if o.OfferingUserID != userID {
				continue
			}
		}
		if status != "all" && string(o.Status) != status {
			continue
		}
		trades = append(trades, o)
	}
	return trades
}

// GetNotifications возвращает последние уведомления пользователя
func (s *TradeService) GetNotifications(c fiber.Ctx) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Пользователь не авторизован"})
	}

	limit, err := strconv.Atoi(c.Query("limit", "50"))
	if err != nil || limit <= 0 || limit > 200 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Параметр limit должен быть от 1 до 200"})
	}

	ctx, cancel := db.GetContext(context.Background())
	defer cancel()

	notifications, err := retry.Do(ctx, s.policy, func(ctx context.Context) ([]models.Notification, error) {
		return s.store.ListNotifications(ctx, userID, limit)
	})
	if err != nil {
		s.log.Warn("ошибка получения уведомлений", zap.Stringer("user_id", userID), zap.Error(err))
		return utils.SendError(c, err)
	}
	if notifications == nil {
		notifications = []models.Notification{}
	}

	return c.JSON(fiber.Map{
		"notifications": notifications,
		"count":         len(notifications),
	})
}
