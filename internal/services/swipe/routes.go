package swipe

import (
	"github.com/gofiber/fiber/v3"

	"github.com/rajivgeraev/flippy-swipe/internal/middleware"
)

// SetupRoutes настраивает маршруты для API свайпов
func (s *SwipeService) SetupRoutes(app *fiber.App) {
	// Группа для API свайпов
	api := app.Group("/api/swipe")

	// Защищенные маршруты (требуют авторизации)
	api.Use(middleware.AuthMiddleware(s.jwtService))

	// Сессия вокруг якоря обмена
	api.Post("/sessions", s.CreateSession)
	api.Get("/sessions/current", s.GetCurrentSession)
	api.Delete("/sessions/current", s.AbandonSession)

	// Кандидаты и свайпы
	api.Get("/candidates", s.GetCandidates)
	api.Post("/swipes", s.RecordSwipe)

	// Ручной запуск синхронизации очереди
	api.Post("/sync", s.SyncNow)
}
