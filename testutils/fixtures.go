package testutils

import (
	"fmt"
	"testing"
	"time"

	"gorm.io/gorm"

	"backend_inventory/models"
)

// CreateTestUser создает пользователя справочника
func CreateTestUser(t *testing.T, db *gorm.DB, externalID, name string) *models.DirectoryUser {
	t.Helper()

	user := &models.DirectoryUser{
		ExternalID:  externalID,
		Email:       externalID + "@example.com",
		DisplayName: name,
		Title:       "Engineer",
		Department:  "IT",
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("Failed to create test user: %v", err)
	}
	return user
}

// CreateTestDevice создает устройство без держателя
func CreateTestDevice(t *testing.T, db *gorm.DB, kind models.DeviceKind, serial string) *models.Device {
	t.Helper()

	device := &models.Device{
		Kind:         kind,
		Serial:       serial,
		Name:         fmt.Sprintf("Test %s %s", kind, serial),
		Manufacturer: "Dell",
		Status:       models.StatusStandby,
		Version:      1,
	}
	if err := db.Create(device).Error; err != nil {
		t.Fatalf("Failed to create test device: %v", err)
	}
	return device
}

// CreateTestRecord добавляет запись журнала в обход движка (для испорченных журналов)
func CreateTestRecord(t *testing.T, db *gorm.DB, deviceID uint, seq int, userID *uint, start time.Time, end *time.Time) *models.AssignmentRecord {
	t.Helper()

	record := &models.AssignmentRecord{
		DeviceID:   deviceID,
		Sequence:   seq,
		UserID:     userID,
		StartDate:  start,
		EndDate:    end,
		AssignedBy: "test",
	}
	if err := db.Create(record).Error; err != nil {
		t.Fatalf("Failed to create test record: %v", err)
	}
	return record
}

// UintPtr возвращает указатель на значение
func UintPtr(v uint) *uint { return &v }

// TimePtr возвращает указатель на значение
func TimePtr(v time.Time) *time.Time { return &v }
