package models

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// HolderSnapshot денормализованные данные текущего держателя устройства.
// Обновляется движком назначений и ретранслятором внешних изменений.
type HolderSnapshot struct {
	UserID     *uint  `json:"id" gorm:"index"`
	Name       string `json:"name" gorm:"type:varchar(200)"`
	Title      string `json:"title" gorm:"type:varchar(200)"`
	Department string `json:"department" gorm:"type:varchar(200)"`
	Avatar     string `json:"avatar" gorm:"type:varchar(500)"`
}

// IsSet проверяет, заполнен ли держатель
func (h HolderSnapshot) IsSet() bool {
	return h.UserID != nil
}

// Device учитываемое устройство любого типа
type Device struct {
	ID        uint      `json:"id" gorm:"primarykey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Основные характеристики
	Kind         DeviceKind `json:"kind" gorm:"not null;type:varchar(20);uniqueIndex:idx_devices_kind_serial;index"`
	Serial       string     `json:"serial" gorm:"not null;type:varchar(100);uniqueIndex:idx_devices_kind_serial"`
	Name         string     `json:"name" gorm:"not null;type:varchar(200)"`
	Manufacturer string     `json:"manufacturer" gorm:"type:varchar(100);index"`
	Model        string     `json:"model" gorm:"type:varchar(100)"`
	Type         string     `json:"type" gorm:"type:varchar(50)"`
	ReleaseYear  *int       `json:"release_year"`

	// Специфичные для типа характеристики (схема в KindSchema)
	Specs datatypes.JSONMap `json:"specs"`

	PurchasePrice decimal.Decimal `json:"purchase_price" gorm:"type:decimal(10,2)"`
	Notes         string          `json:"notes" gorm:"type:text"`

	// Ссылка на помещение из внешнего справочника
	RoomID *uint `json:"room_id" gorm:"index"`

	// Состояние назначения
	Holder            HolderSnapshot `json:"holder" gorm:"embedded;embeddedPrefix:holder_"`
	Status            DeviceStatus   `json:"status" gorm:"not null;type:varchar(30);index;default:'Standby'"`
	BrokenReason      *string        `json:"broken_reason" gorm:"type:varchar(500)"`
	BrokenDescription *string        `json:"broken_description" gorm:"type:text"`

	// Версия для оптимистической блокировки
	Version int `json:"version" gorm:"not null;default:1"`

	History []AssignmentRecord `json:"-" gorm:"foreignKey:DeviceID;constraint:OnDelete:CASCADE"`
}

// TableName задает имя таблицы для модели Device
func (Device) TableName() string {
	return "devices"
}

// IsBroken проверяет признак поломки
func (d *Device) IsBroken() bool {
	return d.BrokenReason != nil && strings.TrimSpace(*d.BrokenReason) != ""
}

// SetHolder заполняет снимок держателя из пользователя справочника
func (d *Device) SetHolder(user *DirectoryUser) {
	if user == nil {
		d.Holder = HolderSnapshot{}
		return
	}
	d.Holder = user.Snapshot()
}

// ClearHolder очищает держателя
func (d *Device) ClearHolder() {
	d.Holder = HolderSnapshot{}
}

// MarkBroken устанавливает признак поломки
func (d *Device) MarkBroken(reason, description string) {
	reason = strings.TrimSpace(reason)
	d.BrokenReason = &reason
	if description = strings.TrimSpace(description); description != "" {
		d.BrokenDescription = &description
	} else {
		d.BrokenDescription = nil
	}
}

// ClearBroken снимает признак поломки
func (d *Device) ClearBroken() {
	d.BrokenReason = nil
	d.BrokenDescription = nil
}

// SortRecords упорядочивает записи истории по дате начала, затем по порядковому номеру
func SortRecords(records []AssignmentRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		if !records[i].StartDate.Equal(records[j].StartDate) {
			return records[i].StartDate.Before(records[j].StartDate)
		}
		return records[i].Sequence < records[j].Sequence
	})
}

// OpenRecord возвращает последнюю открытую запись истории (nil, если держателя нет).
// Ожидает записи, упорядоченные SortRecords.
func OpenRecord(records []AssignmentRecord) *AssignmentRecord {
	for i := len(records) - 1; i >= 0; i-- {
		if records[i].IsOpen() {
			return &records[i]
		}
	}
	return nil
}

// NextSequence возвращает следующий порядковый номер записи
func NextSequence(records []AssignmentRecord) int {
	max := 0
	for _, r := range records {
		if r.Sequence > max {
			max = r.Sequence
		}
	}
	return max + 1
}
