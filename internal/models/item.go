package models

import (
	"time"

	"github.com/google/uuid"
)

// ItemStatus определяет доступность объявления для обмена
type ItemStatus string

const (
	ItemAvailable   ItemStatus = "available"
	ItemPending     ItemStatus = "pending"
	ItemUnavailable ItemStatus = "unavailable"
)

// Valid проверяет, что статус входит в допустимый набор
func (s ItemStatus) Valid() bool {
	switch s {
	case ItemAvailable, ItemPending, ItemUnavailable:
		return true
	}
	return false
}

// Item представляет объявление пользователя, доступное для обмена.
// Движок свайпов читает только ID, OwnerID и Status, остальные поля
// нужны для уведомлений и отображения.
type Item struct {
	ID          uuid.UUID  `json:"id"`
	OwnerID     uuid.UUID  `json:"owner_id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Category    string     `json:"category,omitempty"`
	Condition   string     `json:"condition,omitempty"`
	Images      []string   `json:"images,omitempty"`
	Status      ItemStatus `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// MainImage возвращает URL основного изображения или пустую строку
func (i Item) MainImage() string {
	if len(i.Images) == 0 {
		return ""
	}
	return i.Images[0]
}

// IsAvailable сообщает, можно ли предлагать объявление для обмена
func (i Item) IsAvailable() bool {
	return i.Status == ItemAvailable
}
