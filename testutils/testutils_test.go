package testutils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backend_inventory/models"
)

func TestSetupTestDB(t *testing.T) {
	db := SetupTestDB(t)
	require.NotNil(t, db, "Database should not be nil")

	// Проверяем, что таблицы созданы
	for _, table := range []string{"devices", "assignment_records", "directory_users", "rooms", "device_audit_logs"} {
		assert.True(t, db.Migrator().HasTable(table), "table %s should exist", table)
	}
}

func TestOneOpenRecordIndex(t *testing.T) {
	db := SetupTestDB(t)
	user := CreateTestUser(t, db, "u1", "User One")
	device := CreateTestDevice(t, db, models.KindLaptop, "SN-1")

	CreateTestRecord(t, db, device.ID, 1, UintPtr(user.ID), device.CreatedAt, nil)

	// Вторая открытая запись нарушает частичный уникальный индекс
	second := &models.AssignmentRecord{
		DeviceID:  device.ID,
		Sequence:  2,
		UserID:    UintPtr(user.ID),
		StartDate: device.CreatedAt,
	}
	assert.Error(t, db.Create(second).Error)
}
