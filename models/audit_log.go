package models

import "time"

// DeviceAuditLog запись аудита операций над устройствами
type DeviceAuditLog struct {
	ID        uint       `json:"id" gorm:"primaryKey"`
	DeviceID  uint       `json:"device_id" gorm:"not null;index"`
	Kind      DeviceKind `json:"kind" gorm:"not null;type:varchar(20);index"`
	Action    string     `json:"action" gorm:"not null;index;type:varchar(50)"`
	ActorID   string     `json:"actor_id" gorm:"index;type:varchar(100)"`
	Details   string     `json:"details" gorm:"type:text"`
	OldStatus string     `json:"old_status" gorm:"type:varchar(30)"`
	NewStatus string     `json:"new_status" gorm:"type:varchar(30)"`
	Success   bool       `json:"success" gorm:"index"`
	ErrorMsg  string     `json:"error_message" gorm:"size:1000"`
	CreatedAt time.Time  `json:"created_at" gorm:"index"`
}

// TableName задает имя таблицы для модели DeviceAuditLog
func (DeviceAuditLog) TableName() string {
	return "device_audit_logs"
}
