package models

import (
	"time"

	"github.com/google/uuid"
)

// NotificationType определяет тип уведомления
type NotificationType string

const NotificationTradeOffer NotificationType = "trade_offer"

// TradeOfferPayload содержит денормализованные данные для отображения уведомления
type TradeOfferPayload struct {
	TradeAnchorID    uuid.UUID `json:"trade_anchor_id"`
	TradeAnchorTitle string    `json:"trade_anchor_title"`
	TradeAnchorImage string    `json:"trade_anchor_image"`
	TargetItemID     uuid.UUID `json:"target_item_id"`
	TargetItemTitle  string    `json:"target_item_title"`
	TargetItemImage  string    `json:"target_item_image"`
	OfferingUserName string    `json:"offering_user_name"`
	CreatedAt        time.Time `json:"created_at"`
}

// Notification адресовано владельцу объявления, на которое свайпнули вправо
type Notification struct {
	ID           uuid.UUID         `json:"id"`
	UserID       uuid.UUID         `json:"user_id"`
	Type         NotificationType  `json:"type"`
	TradeOfferID uuid.UUID         `json:"trade_offer_id"`
	Payload      TradeOfferPayload `json:"payload"`
	IsRead       bool              `json:"is_read"`
	CreatedAt    time.Time         `json:"created_at"`
}
