package utils

import (
	"github.com/gofiber/fiber/v3"

	"github.com/rajivgeraev/flippy-swipe/internal/apperr"
)

// StatusFor возвращает HTTP-статус для категории ошибки
func StatusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.Validation:
		return fiber.StatusBadRequest
	case apperr.Permission:
		return fiber.StatusForbidden
	case apperr.NotFound:
		return fiber.StatusNotFound
	case apperr.AnchorUnavailable:
		return fiber.StatusConflict
	case apperr.SessionExpired:
		return fiber.StatusGone
	case apperr.Transient:
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

// SendError отправляет ошибку в JSON с понятным пользователю текстом
func SendError(c fiber.Ctx, err error) error {
	kind := apperr.KindOf(err)
	return c.Status(StatusFor(kind)).JSON(fiber.Map{
		"error":     apperr.UserMessage(err),
		"kind":      kind.String(),
		"retryable": apperr.IsRetryable(err),
	})
}
