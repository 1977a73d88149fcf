package models

import (
	"errors"
	"strings"
)

// DeviceStatus жизненный статус устройства. Всегда вычисляется из фактов
// (открытая запись истории, документ, признак поломки), хранится как денормализованное поле.
type DeviceStatus string

const (
	StatusActive               DeviceStatus = "Active"
	StatusStandby              DeviceStatus = "Standby"
	StatusBroken               DeviceStatus = "Broken"
	StatusPendingDocumentation DeviceStatus = "PendingDocumentation"
)

// ErrBrokenReasonRequired возвращается при переводе в Broken без причины
var ErrBrokenReasonRequired = errors.New("необходимо указать причину поломки")

// ParseStatus разбирает статус без учета регистра, допускает snake_case
func ParseStatus(value string) (DeviceStatus, bool) {
	normalized := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(value), "_", ""))
	switch normalized {
	case "active":
		return StatusActive, true
	case "standby":
		return StatusStandby, true
	case "broken":
		return StatusBroken, true
	case "pendingdocumentation":
		return StatusPendingDocumentation, true
	}
	return "", false
}

// DeriveStatus вычисляет статус устройства. Чистая функция без побочных эффектов:
// поломка имеет приоритет, затем наличие открытой записи и документа передачи.
func DeriveStatus(open *AssignmentRecord, isBroken bool) DeviceStatus {
	if isBroken {
		return StatusBroken
	}
	if open == nil {
		return StatusStandby
	}
	if open.HasDocument() {
		return StatusActive
	}
	return StatusPendingDocumentation
}

// ValidateBrokenTransition проверяет явный переход в Broken
func ValidateBrokenTransition(reason string) error {
	if strings.TrimSpace(reason) == "" {
		return ErrBrokenReasonRequired
	}
	return nil
}
