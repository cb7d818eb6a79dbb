package trade

import (
	"github.com/gofiber/fiber/v3"

	"github.com/rajivgeraev/flippy-swipe/internal/middleware"
)

// SetupRoutes настраивает маршруты для API обменов
func (s *TradeService) SetupRoutes(app *fiber.App) {
	auth := middleware.AuthMiddleware(s.jwtService)

	// Маршрут для получения списка предложений обмена
	app.Get("/api/trades", auth, s.GetMyTrades)

	// Маршрут для получения уведомлений о предложениях
	app.Get("/api/notifications", auth, s.GetNotifications)
}
