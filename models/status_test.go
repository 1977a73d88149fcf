package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDeriveStatus(t *testing.T) {
	doc := "act.pdf"
	userID := uint(1)
	open := &AssignmentRecord{UserID: &userID, StartDate: time.Now()}
	documented := &AssignmentRecord{UserID: &userID, StartDate: time.Now(), DocumentRef: &doc}

	t.Run("Поломка имеет приоритет", func(t *testing.T) {
		assert.Equal(t, StatusBroken, DeriveStatus(nil, true))
		assert.Equal(t, StatusBroken, DeriveStatus(documented, true))
	})

	t.Run("Без держателя", func(t *testing.T) {
		assert.Equal(t, StatusStandby, DeriveStatus(nil, false))
	})

	t.Run("Держатель без документа", func(t *testing.T) {
		assert.Equal(t, StatusPendingDocumentation, DeriveStatus(open, false))
	})

	t.Run("Держатель с документом", func(t *testing.T) {
		assert.Equal(t, StatusActive, DeriveStatus(documented, false))
	})
}

func TestParseStatus(t *testing.T) {
	cases := map[string]DeviceStatus{
		"Active":                StatusActive,
		" standby ":             StatusStandby,
		"BROKEN":                StatusBroken,
		"pending_documentation": StatusPendingDocumentation,
		"PendingDocumentation":  StatusPendingDocumentation,
	}
	for input, want := range cases {
		got, ok := ParseStatus(input)
		assert.True(t, ok, input)
		assert.Equal(t, want, got, input)
	}

	_, ok := ParseStatus("lost")
	assert.False(t, ok)
}

func TestValidateBrokenTransition(t *testing.T) {
	assert.ErrorIs(t, ValidateBrokenTransition("  "), ErrBrokenReasonRequired)
	assert.NoError(t, ValidateBrokenTransition("экран"))
}

func TestDeviceBrokenFields(t *testing.T) {
	d := &Device{}
	assert.False(t, d.IsBroken())

	d.MarkBroken("не включается", "после падения")
	assert.True(t, d.IsBroken())
	assert.Equal(t, "после падения", *d.BrokenDescription)

	d.ClearBroken()
	assert.False(t, d.IsBroken())
	assert.Nil(t, d.BrokenReason)
	assert.Nil(t, d.BrokenDescription)
}
