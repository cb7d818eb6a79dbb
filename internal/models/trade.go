package models

import (
	"time"

	"github.com/google/uuid"
)

// TradeOfferStatus определяет состояние предложения обмена
type TradeOfferStatus string

const (
	TradeOfferPending  TradeOfferStatus = "pending"
	TradeOfferAccepted TradeOfferStatus = "accepted"
	TradeOfferRejected TradeOfferStatus = "rejected"
	TradeOfferCanceled TradeOfferStatus = "canceled"
)

// TradeOffer представляет предложение обмена, созданное свайпом вправо
type TradeOffer struct {
	ID                 uuid.UUID        `json:"id"`
	TradeAnchorID      uuid.UUID        `json:"trade_anchor_id"`
	TargetItemID       uuid.UUID        `json:"target_item_id"`
	OfferingUserID     uuid.UUID        `json:"offering_user_id"`
	TradeAnchorOwnerID uuid.UUID        `json:"trade_anchor_owner_id"`
	TargetItemOwnerID  uuid.UUID        `json:"target_item_owner_id"`
	Status             TradeOfferStatus `json:"status"`
	CreatedAt          time.Time        `json:"created_at"`
	UpdatedAt          time.Time        `json:"updated_at"`
}

// User представляет минимальную информацию о пользователе
type User struct {
	ID        uuid.UUID `json:"id"`
	Username  string    `json:"username,omitempty"`
	FirstName string    `json:"first_name,omitempty"`
	LastName  string    `json:"last_name,omitempty"`
	AvatarURL string    `json:"avatar_url,omitempty"`
}

// DisplayName возвращает имя для показа в уведомлениях
func (u User) DisplayName() string {
	switch {
	case u.FirstName != "" && u.LastName != "":
		return u.FirstName + " " + u.LastName
	case u.FirstName != "":
		return u.FirstName
	case u.Username != "":
		return u.Username
	default:
		return "Пользователь"
	}
}
