package models

import (
	"time"

	"github.com/google/uuid"
)

// Direction определяет направление свайпа
type Direction string

const (
	DirectionLeft  Direction = "left"
	DirectionRight Direction = "right"
)

// Valid проверяет направление свайпа
func (d Direction) Valid() bool {
	return d == DirectionLeft || d == DirectionRight
}

// SwipeSession закрепляет одно объявление пользователя (якорь обмена).
// После создания не изменяется, при смене якоря создается новая сессия.
type SwipeSession struct {
	ID            uuid.UUID `json:"id"`
	UserID        uuid.UUID `json:"user_id"`
	TradeAnchorID uuid.UUID `json:"trade_anchor_id"`
	CreatedAt     time.Time `json:"created_at"`
}

// SwipeRecord представляет одно решение пользователя в рамках сессии
type SwipeRecord struct {
	ID        uuid.UUID `json:"id"`
	SessionID uuid.UUID `json:"session_id"`
	UserID    uuid.UUID `json:"user_id"`
	ItemID    uuid.UUID `json:"item_id"`
	Direction Direction `json:"direction"`
	Timestamp time.Time `json:"timestamp"`
}

// PendingSwipe это свайп, еще не подтвержденный удаленным хранилищем
type PendingSwipe struct {
	SwipeRecord
	QueuedAt time.Time `json:"queued_at"`
}
