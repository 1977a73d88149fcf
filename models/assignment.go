package models

import (
	"time"

	"gorm.io/datatypes"
)

// AssignmentRecord запись журнала назначений устройства.
// Журнал только дополняется: существующие записи закрываются, но не удаляются
// (кроме явного ремонта журнала).
type AssignmentRecord struct {
	ID        uint      `json:"id" gorm:"primarykey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	DeviceID uint `json:"device_id" gorm:"not null;uniqueIndex:idx_assignment_device_seq"`
	Sequence int  `json:"sequence" gorm:"not null;uniqueIndex:idx_assignment_device_seq"`

	// Держатель. nil допустим только для отметки об отзыве без держателя
	// и во временном состоянии до ремонта журнала.
	UserID           *uint  `json:"user_id" gorm:"index"`
	FullnameSnapshot string `json:"fullname_snapshot" gorm:"type:varchar(200)"` // Имя на момент назначения

	StartDate time.Time  `json:"start_date" gorm:"not null;index"`
	EndDate   *time.Time `json:"end_date" gorm:"index"` // nil = запись открыта

	AssignedBy    string                       `json:"assigned_by" gorm:"type:varchar(100)"`
	RevokedBy     *string                      `json:"revoked_by" gorm:"type:varchar(100)"`
	RevokedReason datatypes.JSONSlice[string] `json:"revoked_reason"`
	Notes         string                       `json:"notes" gorm:"type:text"`

	// Ссылка на загруженный акт передачи
	DocumentRef *string `json:"document_ref" gorm:"type:varchar(300)"`
}

// TableName задает имя таблицы для модели AssignmentRecord
func (AssignmentRecord) TableName() string {
	return "assignment_records"
}

// IsOpen проверяет, открыта ли запись
func (r *AssignmentRecord) IsOpen() bool {
	return r.EndDate == nil
}

// HasDocument проверяет наличие акта передачи
func (r *AssignmentRecord) HasDocument() bool {
	return r.DocumentRef != nil && *r.DocumentRef != ""
}

// BelongsTo проверяет, принадлежит ли запись пользователю
func (r *AssignmentRecord) BelongsTo(userID uint) bool {
	return r.UserID != nil && *r.UserID == userID
}

// IsRevocationMarker отметка об отзыве у устройства без держателя:
// закрытая запись без пользователя, в которой указан отозвавший.
func (r *AssignmentRecord) IsRevocationMarker() bool {
	return r.UserID == nil && r.EndDate != nil && r.RevokedBy != nil
}

// Close закрывает запись
func (r *AssignmentRecord) Close(at time.Time, revokedBy string, reasons []string) {
	if at.Before(r.StartDate) {
		at = r.StartDate
	}
	r.EndDate = &at
	if revokedBy != "" {
		r.RevokedBy = &revokedBy
	}
	if len(reasons) > 0 {
		r.RevokedReason = datatypes.NewJSONSlice(reasons)
	}
}

// Reopen снова открывает запись
func (r *AssignmentRecord) Reopen() {
	r.EndDate = nil
	r.RevokedBy = nil
	r.RevokedReason = nil
}
