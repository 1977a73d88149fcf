package models

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

// DirectoryUser пользователь из внешнего справочника (каталог сотрудников).
// Запись синхронизируется ретранслятором изменений и используется для разрешения держателей.
type DirectoryUser struct {
	ID        uint           `json:"id" gorm:"primarykey"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"deleted_at" gorm:"index"`

	// Идентификатор во внешнем справочнике
	ExternalID string `json:"external_id" gorm:"uniqueIndex;not null;type:varchar(100)"`
	Email      string `json:"email" gorm:"index;type:varchar(200)"`

	// Отображаемые данные
	DisplayName string `json:"display_name" gorm:"type:varchar(200)"`
	Title       string `json:"title" gorm:"type:varchar(200)"`
	Department  string `json:"department" gorm:"type:varchar(200)"`
	Avatar      string `json:"avatar" gorm:"type:varchar(500)"`
}

// TableName задает имя таблицы для модели DirectoryUser
func (DirectoryUser) TableName() string {
	return "directory_users"
}

// Snapshot возвращает снимок данных для держателя устройства
func (u *DirectoryUser) Snapshot() HolderSnapshot {
	id := u.ID
	return HolderSnapshot{
		UserID:     &id,
		Name:       u.GetDisplayName(),
		Title:      u.Title,
		Department: u.Department,
		Avatar:     u.Avatar,
	}
}

// GetDisplayName возвращает отображаемое имя, при его отсутствии - email
func (u *DirectoryUser) GetDisplayName() string {
	if name := strings.TrimSpace(u.DisplayName); name != "" {
		return name
	}
	return u.Email
}
