package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

// MaintenanceScheduler запускает ремонт журнала и очистку аудита по расписанию
type MaintenanceScheduler struct {
	engine        *AssignmentEngine
	audit         *AuditService
	cron          *cron.Cron
	logger        *log.Logger
	retentionDays int
}

// NewMaintenanceScheduler создает планировщик обслуживания
func NewMaintenanceScheduler(engine *AssignmentEngine, audit *AuditService, retentionDays int, logger *log.Logger) *MaintenanceScheduler {
	return &MaintenanceScheduler{
		engine:        engine,
		audit:         audit,
		cron:          cron.New(),
		logger:        logger,
		retentionDays: retentionDays,
	}
}

// Start регистрирует задачи и запускает планировщик
func (ms *MaintenanceScheduler) Start(reconcileSpec string) error {
	if _, err := ms.cron.AddFunc(reconcileSpec, ms.RunReconcile); err != nil {
		return fmt.Errorf("failed to add reconcile job: %w", err)
	}

	if ms.retentionDays > 0 {
		if _, err := ms.cron.AddFunc("@daily", ms.RunAuditCleanup); err != nil {
			return fmt.Errorf("failed to add audit cleanup job: %w", err)
		}
	}

	ms.cron.Start()
	ms.logger.Printf("✅ Maintenance scheduler started (reconcile: %s)", reconcileSpec)
	return nil
}

// Stop останавливает планировщик и ждет завершения запущенных задач
func (ms *MaintenanceScheduler) Stop() {
	<-ms.cron.Stop().Done()
	ms.logger.Println("Maintenance scheduler stopped")
}

// RunReconcile выполняет ремонт журналов всех устройств
func (ms *MaintenanceScheduler) RunReconcile() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	report, err := ms.engine.ReconcileAll(ctx, "", false)
	if err != nil {
		ms.logger.Printf("❌ Scheduled reconcile failed: %v", err)
		return
	}
	ms.logger.Printf("Scheduled reconcile finished: scanned=%d repaired=%d failed=%d",
		report.Scanned, report.Repaired, report.Failed)
}

// RunAuditCleanup удаляет устаревшие записи аудита
func (ms *MaintenanceScheduler) RunAuditCleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if _, err := ms.audit.CleanupOldLogs(ctx, ms.retentionDays); err != nil {
		ms.logger.Printf("❌ Audit cleanup failed: %v", err)
	}
}
