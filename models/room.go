package models

import "time"

// Room помещение из внешнего справочника. Устройство хранит только ссылку.
type Room struct {
	ID        uint      `json:"id" gorm:"primarykey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	ExternalID string `json:"external_id" gorm:"uniqueIndex;not null;type:varchar(100)"`
	Name       string `json:"name" gorm:"type:varchar(200)"`
	Building   string `json:"building" gorm:"type:varchar(200)"`
	Floor      string `json:"floor" gorm:"type:varchar(20)"`
}

// TableName задает имя таблицы для модели Room
func (Room) TableName() string {
	return "rooms"
}
