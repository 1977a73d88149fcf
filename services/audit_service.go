package services

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"gorm.io/gorm"

	"backend_inventory/models"
)

// AuditAction типы действий для аудита
type AuditAction string

const (
	ActionDeviceCreate    AuditAction = "device.create"
	ActionDeviceUpdate    AuditAction = "device.update"
	ActionDeviceDelete    AuditAction = "device.delete"
	ActionDeviceAssign    AuditAction = "device.assign"
	ActionDeviceRevoke    AuditAction = "device.revoke"
	ActionDeviceBroken    AuditAction = "device.broken"
	ActionDeviceRepaired  AuditAction = "device.repaired"
	ActionDeviceDocument  AuditAction = "device.document"
	ActionDeviceReconcile AuditAction = "device.reconcile"
)

// AuditService сервис для аудит логов
type AuditService struct {
	db     *gorm.DB
	logger *log.Logger
}

// NewAuditService создает новый сервис аудита
func NewAuditService(db *gorm.DB, logger *log.Logger) *AuditService {
	return &AuditService{
		db:     db,
		logger: logger,
	}
}

// AuditContext контекст для аудита
type AuditContext struct {
	DeviceID  uint
	Kind      models.DeviceKind
	ActorID   string
	Action    AuditAction
	OldStatus models.DeviceStatus
	NewStatus models.DeviceStatus
	Details   map[string]interface{}
	Success   bool
	ErrorMsg  string
}

// Log записывает аудит лог. Ошибка записи только логируется вызывающим.
func (as *AuditService) Log(ctx context.Context, actx AuditContext) error {
	if as == nil || as.db == nil {
		return nil
	}

	entry := &models.DeviceAuditLog{
		DeviceID:  actx.DeviceID,
		Kind:      actx.Kind,
		Action:    string(actx.Action),
		ActorID:   actx.ActorID,
		OldStatus: string(actx.OldStatus),
		NewStatus: string(actx.NewStatus),
		Success:   actx.Success,
		ErrorMsg:  actx.ErrorMsg,
		CreatedAt: time.Now(),
	}

	// Сериализуем детали
	if actx.Details != nil {
		if detailsJSON, err := json.Marshal(actx.Details); err == nil {
			entry.Details = string(detailsJSON)
		}
	}

	if err := as.db.WithContext(ctx).Create(entry).Error; err != nil {
		if as.logger != nil {
			as.logger.Printf("Failed to create audit log: %v", err)
		}
		return err
	}

	return nil
}

// LogSuccess записывает успешное действие
func (as *AuditService) LogSuccess(ctx context.Context, actx AuditContext) error {
	actx.Success = true
	return as.Log(ctx, actx)
}

// LogFailure записывает неуспешное действие
func (as *AuditService) LogFailure(ctx context.Context, actx AuditContext, err error) error {
	actx.Success = false
	actx.ErrorMsg = err.Error()
	return as.Log(ctx, actx)
}

// AuditFilters фильтры для поиска аудит логов
type AuditFilters struct {
	Action  string
	Success *bool
	Limit   int
	Offset  int
}

// GetDeviceLogs получает аудит логи устройства, новые первыми
func (as *AuditService) GetDeviceLogs(ctx context.Context, kind models.DeviceKind, deviceID uint, filters AuditFilters) ([]models.DeviceAuditLog, error) {
	query := as.db.WithContext(ctx).Where("device_id = ? AND kind = ?", deviceID, kind)

	if filters.Action != "" {
		query = query.Where("action = ?", filters.Action)
	}

	if filters.Success != nil {
		query = query.Where("success = ?", *filters.Success)
	}

	// Сортировка и пагинация
	query = query.Order("created_at DESC").Order("id DESC")

	if filters.Limit > 0 {
		query = query.Limit(filters.Limit)
	}

	if filters.Offset > 0 {
		query = query.Offset(filters.Offset)
	}

	var logs []models.DeviceAuditLog
	if err := query.Find(&logs).Error; err != nil {
		return nil, err
	}

	return logs, nil
}

// CleanupOldLogs удаляет старые аудит логи
func (as *AuditService) CleanupOldLogs(ctx context.Context, retentionDays int) (int64, error) {
	cutoffDate := time.Now().AddDate(0, 0, -retentionDays)

	result := as.db.WithContext(ctx).Where("created_at < ?", cutoffDate).
		Delete(&models.DeviceAuditLog{})

	if result.Error != nil {
		return 0, result.Error
	}

	if as.logger != nil {
		as.logger.Printf("Cleaned up %d audit logs older than %d days",
			result.RowsAffected, retentionDays)
	}

	return result.RowsAffected, nil
}
