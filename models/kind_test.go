package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKind(t *testing.T) {
	kind, ok := ParseKind("Laptops")
	require.True(t, ok)
	assert.Equal(t, KindLaptop, kind)

	kind, ok = ParseKind(" phone ")
	require.True(t, ok)
	assert.Equal(t, KindPhone, kind)

	_, ok = ParseKind("tablet")
	assert.False(t, ok)
	assert.False(t, DeviceKind("tablet").IsValid())
	assert.Equal(t, "projectors", KindProjector.Plural())
}

func TestKindSchema_ValidateSpecs(t *testing.T) {
	schemas := DefaultKindSchemas()
	require.Len(t, schemas, len(AllKinds))

	// По умолчанию обязательны только имя и серийный номер
	for _, kind := range AllKinds {
		assert.Empty(t, schemas[kind].Required, kind)
		assert.NoError(t, schemas[kind].ValidateSpecs(nil), kind)
	}

	phone := schemas[KindPhone]
	assert.NoError(t, phone.ValidateSpecs(map[string]interface{}{"imei": "356938035643809"}))
	assert.NoError(t, phone.ValidateSpecs(map[string]interface{}{"os": "iOS"}))
	assert.Error(t, phone.ValidateSpecs(map[string]interface{}{"imei": "1", "color": "red"}))

	// Обязательные ключи задаются только файлом схем
	strict := KindSchema{Kind: KindPhone, Allowed: phone.Allowed, Required: []string{"imei"}}
	assert.Error(t, strict.ValidateSpecs(map[string]interface{}{"os": "iOS"}))
	assert.NoError(t, strict.ValidateSpecs(map[string]interface{}{"imei": "1"}))

	// Схема без ограничений принимает любые ключи
	open := KindSchema{Kind: KindTool}
	assert.NoError(t, open.ValidateSpecs(map[string]interface{}{"anything": 1}))
}

func TestAssignmentRecord_Lifecycle(t *testing.T) {
	start := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	userID := uint(7)
	rec := AssignmentRecord{UserID: &userID, StartDate: start}

	assert.True(t, rec.IsOpen())
	assert.True(t, rec.BelongsTo(7))
	assert.False(t, rec.BelongsTo(8))
	assert.False(t, rec.IsRevocationMarker())

	// Окончание не может быть раньше начала
	rec.Close(start.Add(-time.Hour), "admin", []string{"returned"})
	require.NotNil(t, rec.EndDate)
	assert.True(t, rec.EndDate.Equal(start))
	assert.Equal(t, "admin", *rec.RevokedBy)
	assert.Equal(t, []string{"returned"}, []string(rec.RevokedReason))

	rec.Reopen()
	assert.True(t, rec.IsOpen())
	assert.Nil(t, rec.RevokedBy)
	assert.Empty(t, rec.RevokedReason)

	marker := AssignmentRecord{StartDate: start}
	marker.Close(start, "admin", nil)
	assert.True(t, marker.IsRevocationMarker())
}

func TestSortRecordsAndOpenRecord(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := base.Add(time.Hour)
	records := []AssignmentRecord{
		{Sequence: 3, StartDate: base.Add(2 * time.Hour)},
		{Sequence: 2, StartDate: base, EndDate: &end},
		{Sequence: 1, StartDate: base, EndDate: &end},
	}

	SortRecords(records)
	assert.Equal(t, []int{1, 2, 3}, []int{records[0].Sequence, records[1].Sequence, records[2].Sequence})
	assert.Equal(t, 3, OpenRecord(records).Sequence)
	assert.Equal(t, 4, NextSequence(records))
	assert.Nil(t, OpenRecord(records[:2]))
	assert.Equal(t, 1, NextSequence(nil))
}

func TestDirectoryUser_Snapshot(t *testing.T) {
	user := &DirectoryUser{ID: 5, Email: "a@example.com", Title: "Engineer"}
	assert.Equal(t, "a@example.com", user.GetDisplayName())

	user.DisplayName = "Alice"
	snapshot := user.Snapshot()
	require.NotNil(t, snapshot.UserID)
	assert.Equal(t, uint(5), *snapshot.UserID)
	assert.Equal(t, "Alice", snapshot.Name)
	assert.True(t, snapshot.IsSet())
}
