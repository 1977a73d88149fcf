package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"gorm.io/gorm"

	"backend_inventory/metrics"
	"backend_inventory/models"
)

// Операции движка назначений
const (
	OpAssign         = "assign"
	OpRevoke         = "revoke"
	OpSetBroken      = "set_broken"
	OpClearBroken    = "clear_broken"
	OpAttachDocument = "attach_document"
	OpReconcile      = "reconcile"
)

var errVersionConflict = errors.New("version conflict")

// Actor аутентифицированный автор изменения
type Actor struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Label возвращает подпись автора для журнала
func (a Actor) Label() string {
	if strings.TrimSpace(a.Name) != "" {
		return a.Name
	}
	return a.ID
}

// IsZero проверяет, что автор не указан
func (a Actor) IsZero() bool {
	return strings.TrimSpace(a.ID) == ""
}

// SystemActor автор системных операций (ремонт журнала, CLI)
var SystemActor = Actor{ID: ReconcileActor, Name: ReconcileActor}

// EngineOptions параметры движка назначений
type EngineOptions struct {
	OperationTimeout   time.Duration
	MaxConflictRetries int
	// RejectSameHolder запрещает повторное назначение текущему держателю
	RejectSameHolder bool
	// LogFormat формат строк ENGINE_LOG: json (по умолчанию) или text
	LogFormat string
}

// DefaultEngineOptions параметры по умолчанию
func DefaultEngineOptions() EngineOptions {
	return EngineOptions{
		OperationTimeout:   5 * time.Second,
		MaxConflictRetries: 3,
	}
}

// AssignmentEngine изменяет держателя, журнал и статус устройства как одну операцию
type AssignmentEngine struct {
	db        *gorm.DB
	directory UserDirectory
	cache     ListingCache
	audit     *AuditService
	notifier  BrokenDeviceNotifier
	logger    *log.Logger
	opts      EngineOptions
	now       func() time.Time
}

// NewAssignmentEngine создает движок назначений
func NewAssignmentEngine(db *gorm.DB, directory UserDirectory, cache ListingCache, audit *AuditService, notifier BrokenDeviceNotifier, logger *log.Logger, opts EngineOptions) *AssignmentEngine {
	defaults := DefaultEngineOptions()
	if opts.OperationTimeout <= 0 {
		opts.OperationTimeout = defaults.OperationTimeout
	}
	if opts.MaxConflictRetries < 0 {
		opts.MaxConflictRetries = 0
	}
	return &AssignmentEngine{
		db:        db,
		directory: directory,
		cache:     cache,
		audit:     audit,
		notifier:  notifier,
		logger:    logger,
		opts:      opts,
		now:       time.Now,
	}
}

// SetClock подменяет источник времени
func (e *AssignmentEngine) SetClock(now func() time.Time) {
	e.now = now
}

// assignmentFacts факты, из которых выводится статус
type assignmentFacts struct {
	holderID          uint
	holderName        string
	holderTitle       string
	holderDepartment  string
	holderAvatar      string
	status            models.DeviceStatus
	brokenReason      string
	brokenDescription string
}

func factsOf(d *models.Device) assignmentFacts {
	f := assignmentFacts{
		holderName:       d.Holder.Name,
		holderTitle:      d.Holder.Title,
		holderDepartment: d.Holder.Department,
		holderAvatar:     d.Holder.Avatar,
		status:           d.Status,
	}
	if d.Holder.UserID != nil {
		f.holderID = *d.Holder.UserID
	}
	if d.BrokenReason != nil {
		f.brokenReason = *d.BrokenReason
	}
	if d.BrokenDescription != nil {
		f.brokenDescription = *d.BrokenDescription
	}
	return f
}

// deviceState устройство и его журнал внутри одной транзакции
type deviceState struct {
	device  models.Device
	records []models.AssignmentRecord
	dirty   map[int]bool
	dropped []uint
	before  assignmentFacts
}

func (s *deviceState) openIndex() int {
	for i := len(s.records) - 1; i >= 0; i-- {
		if s.records[i].IsOpen() {
			return i
		}
	}
	return -1
}

func (s *deviceState) open() *models.AssignmentRecord {
	if i := s.openIndex(); i >= 0 {
		return &s.records[i]
	}
	return nil
}

func (s *deviceState) markDirty(i int) {
	s.dirty[i] = true
}

func (s *deviceState) appendRecord(rec models.AssignmentRecord) {
	rec.DeviceID = s.device.ID
	rec.Sequence = models.NextSequence(s.records)
	s.records = append(s.records, rec)
	s.markDirty(len(s.records) - 1)
}

// instant момент операции, не раньше любой даты журнала
func (s *deviceState) instant(now time.Time) time.Time {
	at := now
	for _, rec := range s.records {
		if rec.StartDate.After(at) {
			at = rec.StartDate
		}
		if rec.EndDate != nil && rec.EndDate.After(at) {
			at = *rec.EndDate
		}
	}
	return at
}

func (s *deviceState) changed() bool {
	return len(s.dirty) > 0 || len(s.dropped) > 0 || factsOf(&s.device) != s.before
}

type mutationFunc func(s *deviceState, now time.Time) error

// Assign назначает устройство пользователю
func (e *AssignmentEngine) Assign(ctx context.Context, kind models.DeviceKind, deviceID uint, targetRef, reason string, actor Actor) (*DeviceView, error) {
	start := time.Now()
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if strings.TrimSpace(targetRef) == "" {
		return nil, NewValidationError("не указан пользователь для назначения")
	}

	user, err := e.directory.Resolve(ctx, targetRef)
	if err != nil {
		e.finish(ctx, OpAssign, ActionDeviceAssign, kind, deviceID, actor, nil, start, err, nil)
		return nil, err
	}

	state, err := e.mutate(ctx, OpAssign, kind, deviceID, func(s *deviceState, now time.Time) error {
		at := s.instant(now)
		if i := s.openIndex(); i >= 0 {
			if e.opts.RejectSameHolder && s.records[i].BelongsTo(user.ID) {
				return NewValidationError("устройство уже назначено пользователю %s", user.GetDisplayName())
			}
			s.records[i].Close(at, actor.Label(), nil)
			s.markDirty(i)
		}

		userID := user.ID
		s.appendRecord(models.AssignmentRecord{
			UserID:           &userID,
			FullnameSnapshot: user.GetDisplayName(),
			StartDate:        at,
			AssignedBy:       actor.Label(),
			Notes:            strings.TrimSpace(reason),
		})
		s.device.SetHolder(user)
		return nil
	})

	e.finish(ctx, OpAssign, ActionDeviceAssign, kind, deviceID, actor, state, start, err, map[string]interface{}{
		"user_id": user.ID,
		"reason":  reason,
	})
	if err != nil {
		return nil, err
	}
	return e.view(ctx, state), nil
}

// Revoke отзывает устройство у держателя.
// newStatus Broken с непустыми причинами отмечает поломку (причины через "; ").
// В остальных случаях, в том числе без newStatus, поломка снимается и статус Standby.
func (e *AssignmentEngine) Revoke(ctx context.Context, kind models.DeviceKind, deviceID uint, reasons []string, newStatus string, actor Actor) (*DeviceView, error) {
	start := time.Now()
	if err := requireActor(actor); err != nil {
		return nil, err
	}

	cleaned := make([]string, 0, len(reasons))
	for _, r := range reasons {
		if r = strings.TrimSpace(r); r != "" {
			cleaned = append(cleaned, r)
		}
	}
	requested, _ := models.ParseStatus(newStatus)

	state, err := e.mutate(ctx, OpRevoke, kind, deviceID, func(s *deviceState, now time.Time) error {
		at := s.instant(now)
		if i := s.openIndex(); i >= 0 {
			s.records[i].Close(at, actor.Label(), cleaned)
			s.markDirty(i)
		} else {
			// Отметка об отзыве без держателя
			marker := models.AssignmentRecord{StartDate: at}
			marker.Close(at, actor.Label(), cleaned)
			s.appendRecord(marker)
		}
		s.device.ClearHolder()

		if requested == models.StatusBroken && len(cleaned) > 0 {
			s.device.MarkBroken(strings.Join(cleaned, "; "), "")
		} else {
			s.device.ClearBroken()
		}
		return nil
	})

	e.finish(ctx, OpRevoke, ActionDeviceRevoke, kind, deviceID, actor, state, start, err, map[string]interface{}{
		"reasons":    cleaned,
		"new_status": newStatus,
	})
	if err != nil {
		return nil, err
	}
	return e.view(ctx, state), nil
}

// SetBroken отмечает устройство неисправным. Держатель не меняется.
func (e *AssignmentEngine) SetBroken(ctx context.Context, kind models.DeviceKind, deviceID uint, reason, description string, actor Actor) (*DeviceView, error) {
	start := time.Now()
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if err := models.ValidateBrokenTransition(reason); err != nil {
		return nil, &ValidationError{Message: err.Error()}
	}

	state, err := e.mutate(ctx, OpSetBroken, kind, deviceID, func(s *deviceState, _ time.Time) error {
		s.device.MarkBroken(reason, description)
		return nil
	})

	e.finish(ctx, OpSetBroken, ActionDeviceBroken, kind, deviceID, actor, state, start, err, map[string]interface{}{
		"reason":      reason,
		"description": description,
	})
	if err != nil {
		return nil, err
	}
	return e.view(ctx, state), nil
}

// ClearBroken снимает признак поломки
func (e *AssignmentEngine) ClearBroken(ctx context.Context, kind models.DeviceKind, deviceID uint, actor Actor) (*DeviceView, error) {
	start := time.Now()
	if err := requireActor(actor); err != nil {
		return nil, err
	}

	state, err := e.mutate(ctx, OpClearBroken, kind, deviceID, func(s *deviceState, _ time.Time) error {
		s.device.ClearBroken()
		return nil
	})

	e.finish(ctx, OpClearBroken, ActionDeviceRepaired, kind, deviceID, actor, state, start, err, nil)
	if err != nil {
		return nil, err
	}
	return e.view(ctx, state), nil
}

// AttachHandoverDocument прикрепляет акт передачи к открытой записи.
// Документ принимается только для текущего держателя.
func (e *AssignmentEngine) AttachHandoverDocument(ctx context.Context, kind models.DeviceKind, deviceID, userID uint, documentRef string, actor Actor) (*DeviceView, error) {
	start := time.Now()
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	documentRef = strings.TrimSpace(documentRef)
	if documentRef == "" {
		return nil, NewValidationError("не указан документ")
	}

	state, err := e.mutate(ctx, OpAttachDocument, kind, deviceID, func(s *deviceState, _ time.Time) error {
		i := s.openIndex()
		if i < 0 || !s.records[i].BelongsTo(userID) {
			return &NotCurrentHolderError{DeviceID: deviceID, UserID: userID}
		}
		s.records[i].DocumentRef = &documentRef
		s.markDirty(i)
		return nil
	})

	e.finish(ctx, OpAttachDocument, ActionDeviceDocument, kind, deviceID, actor, state, start, err, map[string]interface{}{
		"user_id":      userID,
		"document_ref": documentRef,
	})
	if err != nil {
		return nil, err
	}
	return e.view(ctx, state), nil
}

// ReconcileOutcome результат ремонта одного устройства
type ReconcileOutcome struct {
	DeviceID   uint              `json:"device_id"`
	Kind       models.DeviceKind `json:"kind"`
	Serial     string            `json:"serial"`
	Violations []Violation       `json:"violations"`
	Changed    bool              `json:"changed"`
	Dropped    int               `json:"dropped"`
	Error      string            `json:"error,omitempty"`
}

// Reconcile восстанавливает инварианты журнала устройства. Идемпотентна.
func (e *AssignmentEngine) Reconcile(ctx context.Context, kind models.DeviceKind, deviceID uint, actor Actor) (*ReconcileOutcome, error) {
	start := time.Now()
	outcome := &ReconcileOutcome{DeviceID: deviceID, Kind: kind}

	state, err := e.mutate(ctx, OpReconcile, kind, deviceID, func(s *deviceState, now time.Time) error {
		outcome.Serial = s.device.Serial
		outcome.Violations = CheckInvariants(&s.device, s.records)

		result := ReconcileLedger(&s.device, s.records, now)
		if !result.Changed {
			return nil
		}

		for _, rec := range result.Dropped {
			s.dropped = append(s.dropped, rec.ID)
		}
		s.records = result.Records
		s.dirty = make(map[int]bool, len(result.Dirty))
		for _, i := range result.Dirty {
			s.markDirty(i)
		}
		if s.device.BrokenReason == nil {
			s.device.BrokenDescription = nil
		}
		outcome.Dropped = len(result.Dropped)
		return nil
	})

	if err == nil {
		outcome.Changed = state.changed()
		if outcome.Changed {
			metrics.IncReconcile("repaired")
		} else {
			metrics.IncReconcile("clean")
		}
	} else {
		metrics.IncReconcile("failed")
	}

	// Чистые устройства не попадают в аудит
	if err != nil || outcome.Changed {
		e.finish(ctx, OpReconcile, ActionDeviceReconcile, kind, deviceID, actor, state, start, err, map[string]interface{}{
			"violations": len(outcome.Violations),
			"dropped":    outcome.Dropped,
		})
	}
	if err != nil {
		return nil, err
	}
	return outcome, nil
}

// ReconcileReport итог ремонта всех устройств
type ReconcileReport struct {
	DryRun    bool               `json:"dry_run"`
	StartedAt time.Time          `json:"started_at"`
	Duration  string             `json:"duration"`
	Scanned   int                `json:"scanned"`
	Repaired  int                `json:"repaired"`
	Failed    int                `json:"failed"`
	Devices   []ReconcileOutcome `json:"devices"`
}

// ReconcileAll проходит по всем устройствам. В режиме dryRun только сообщает
// о нарушениях и ничего не записывает. В отчет попадают устройства с нарушениями.
func (e *AssignmentEngine) ReconcileAll(ctx context.Context, kind models.DeviceKind, dryRun bool) (*ReconcileReport, error) {
	report := &ReconcileReport{DryRun: dryRun, StartedAt: time.Now()}

	query := e.db.WithContext(ctx).Model(&models.Device{}).Order("id")
	if kind != "" {
		query = query.Where("kind = ?", kind)
	}

	var devices []struct {
		ID   uint
		Kind models.DeviceKind
	}
	if err := query.Select("id", "kind").Find(&devices).Error; err != nil {
		return nil, internalError("list devices", err)
	}

	for _, d := range devices {
		if err := ctx.Err(); err != nil {
			return report, &InternalError{Op: OpReconcile, Err: err}
		}
		report.Scanned++

		var outcome *ReconcileOutcome
		var err error
		if dryRun {
			outcome, err = e.inspect(ctx, d.Kind, d.ID)
		} else {
			outcome, err = e.Reconcile(ctx, d.Kind, d.ID, SystemActor)
		}

		if err != nil {
			report.Failed++
			report.Devices = append(report.Devices, ReconcileOutcome{DeviceID: d.ID, Kind: d.Kind, Error: err.Error()})
			continue
		}
		if outcome.Changed {
			report.Repaired++
		}
		if outcome.Changed || len(outcome.Violations) > 0 {
			report.Devices = append(report.Devices, *outcome)
		}
	}

	report.Duration = time.Since(report.StartedAt).String()
	if e.logger != nil {
		e.logger.Printf("🔧 Ремонт журнала (dry-run=%v): проверено %d, исправлено %d, ошибок %d",
			dryRun, report.Scanned, report.Repaired, report.Failed)
	}
	return report, nil
}

// inspect проверяет устройство без записи
func (e *AssignmentEngine) inspect(ctx context.Context, kind models.DeviceKind, deviceID uint) (*ReconcileOutcome, error) {
	opCtx, cancel := context.WithTimeout(ctx, e.opts.OperationTimeout)
	defer cancel()

	state, err := loadState(e.db.WithContext(opCtx), kind, deviceID)
	if err != nil {
		return nil, e.storageError(opCtx, "load", err)
	}

	result := ReconcileLedger(&state.device, state.records, e.now())
	return &ReconcileOutcome{
		DeviceID:   deviceID,
		Kind:       kind,
		Serial:     state.device.Serial,
		Violations: CheckInvariants(&state.device, state.records),
		Changed:    result.Changed,
		Dropped:    len(result.Dropped),
	}, nil
}

// mutate выполняет изменение в транзакции с проверкой версии.
// Конфликт версий повторяется ограниченное число раз, таймаут не повторяется.
func (e *AssignmentEngine) mutate(ctx context.Context, op string, kind models.DeviceKind, deviceID uint, fn mutationFunc) (*deviceState, error) {
	for attempt := 0; attempt <= e.opts.MaxConflictRetries; attempt++ {
		state, err := e.applyOnce(ctx, kind, deviceID, fn)
		if err == nil {
			return state, nil
		}
		if !errors.Is(err, errVersionConflict) {
			return nil, err
		}
		metrics.IncEngineConflict(op)
		if e.logger != nil {
			e.logger.Printf("⚠️ Конфликт версий устройства %d (%s), попытка %d", deviceID, op, attempt+1)
		}
	}
	return nil, &ConflictError{Message: "устройство изменено параллельно, повторите операцию"}
}

func (e *AssignmentEngine) applyOnce(ctx context.Context, kind models.DeviceKind, deviceID uint, fn mutationFunc) (state *deviceState, err error) {
	opCtx, cancel := context.WithTimeout(ctx, e.opts.OperationTimeout)
	defer cancel()

	tx := e.db.WithContext(opCtx).Begin()
	if tx.Error != nil {
		return nil, e.storageError(opCtx, "begin", tx.Error)
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			state, err = nil, &InternalError{Op: "mutate", Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	state, err = loadState(tx, kind, deviceID)
	if err != nil {
		tx.Rollback()
		return nil, e.storageError(opCtx, "load", err)
	}

	if err := fn(state, e.now()); err != nil {
		tx.Rollback()
		return nil, err
	}

	state.device.Status = models.DeriveStatus(state.open(), state.device.IsBroken())
	if !state.changed() {
		tx.Rollback()
		return state, nil
	}

	if err := persistState(tx, state, e.now()); err != nil {
		tx.Rollback()
		return nil, e.storageError(opCtx, "persist", err)
	}

	if err := tx.Commit().Error; err != nil {
		return nil, e.storageError(opCtx, "commit", err)
	}
	return state, nil
}

func loadState(db *gorm.DB, kind models.DeviceKind, deviceID uint) (*deviceState, error) {
	var device models.Device
	if err := db.Where("id = ? AND kind = ?", deviceID, kind).First(&device).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Resource: string(kind), ID: fmt.Sprint(deviceID)}
		}
		return nil, err
	}

	var records []models.AssignmentRecord
	if err := db.Where("device_id = ?", deviceID).Order("start_date ASC, sequence ASC").Find(&records).Error; err != nil {
		return nil, err
	}
	models.SortRecords(records)

	return &deviceState{
		device:  device,
		records: records,
		dirty:   make(map[int]bool),
		before:  factsOf(&device),
	}, nil
}

// persistState записывает устройство с проверкой версии, затем журнал.
// Закрытия записываются раньше новых записей из-за уникального индекса открытой записи.
func persistState(tx *gorm.DB, s *deviceState, now time.Time) error {
	d := &s.device
	updates := map[string]interface{}{
		"holder_user_id":     d.Holder.UserID,
		"holder_name":        d.Holder.Name,
		"holder_title":       d.Holder.Title,
		"holder_department":  d.Holder.Department,
		"holder_avatar":      d.Holder.Avatar,
		"status":             string(d.Status),
		"broken_reason":      d.BrokenReason,
		"broken_description": d.BrokenDescription,
		"version":            gorm.Expr("version + 1"),
		"updated_at":         now,
	}

	res := tx.Model(&models.Device{}).Where("id = ? AND version = ?", d.ID, d.Version).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errVersionConflict
	}
	d.Version++
	d.UpdatedAt = now

	for _, id := range s.dropped {
		if err := tx.Delete(&models.AssignmentRecord{}, id).Error; err != nil {
			return err
		}
	}

	for i := range s.records {
		if s.dirty[i] && s.records[i].ID != 0 {
			if err := tx.Save(&s.records[i]).Error; err != nil {
				return err
			}
		}
	}
	for i := range s.records {
		if s.dirty[i] && s.records[i].ID == 0 {
			if err := tx.Create(&s.records[i]).Error; err != nil {
				return err
			}
		}
	}

	return nil
}

func (e *AssignmentEngine) storageError(ctx context.Context, op string, err error) error {
	if errors.Is(err, errVersionConflict) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &InternalError{Op: op, Err: fmt.Errorf("превышено время ожидания хранилища: %w", context.DeadlineExceeded)}
	}
	return internalError(op, err)
}

// finish выполняет действия после операции: инвалидация кэша, аудит,
// метрики, уведомление. Ошибки этих действий только логируются.
func (e *AssignmentEngine) finish(ctx context.Context, op string, action AuditAction, kind models.DeviceKind, deviceID uint, actor Actor, state *deviceState, start time.Time, opErr error, details map[string]interface{}) {
	bgCtx := context.WithoutCancel(ctx)

	result := metrics.ResultSuccess
	if opErr != nil {
		result = metrics.ResultError
	}
	metrics.ObserveEngineOperation(op, result, time.Since(start))

	actx := AuditContext{
		DeviceID: deviceID,
		Kind:     kind,
		ActorID:  actor.ID,
		Action:   action,
		Details:  details,
	}
	if state != nil {
		actx.OldStatus = state.before.status
		actx.NewStatus = state.device.Status
	}

	logDetails := map[string]interface{}{
		"kind":      kind,
		"device_id": deviceID,
		"duration":  time.Since(start).String(),
	}
	for k, v := range details {
		logDetails[k] = v
	}

	if opErr != nil {
		logDetails["status"] = "failed"
		logDetails["error"] = opErr.Error()
		e.logOperation(op, actor, logDetails)

		var notFound *NotFoundError
		if !errors.As(opErr, &notFound) || notFound.Resource != string(kind) {
			if err := e.audit.LogFailure(bgCtx, actx, opErr); err != nil && e.logger != nil {
				e.logger.Printf("⚠️ Не удалось записать аудит %s: %v", op, err)
			}
		}
		return
	}

	logDetails["status"] = "success"
	logDetails["old_status"] = actx.OldStatus
	logDetails["new_status"] = actx.NewStatus
	e.logOperation(op, actor, logDetails)

	// Инвалидация только после фиксации транзакции
	if e.cache != nil && state.changed() {
		e.cache.Invalidate(bgCtx, kind)
	}

	if err := e.audit.LogSuccess(bgCtx, actx); err != nil && e.logger != nil {
		e.logger.Printf("⚠️ Не удалось записать аудит %s: %v", op, err)
	}

	if e.notifier != nil && state.before.status != models.StatusBroken && state.device.Status == models.StatusBroken {
		if err := e.notifier.NotifyBroken(bgCtx, &state.device, actor); err != nil && e.logger != nil {
			e.logger.Printf("⚠️ Не удалось отправить уведомление о поломке устройства %d: %v", deviceID, err)
		}
	}
}

// logOperation пишет структурированную строку лога операции движка
func (e *AssignmentEngine) logOperation(op string, actor Actor, details map[string]interface{}) {
	if e.logger == nil {
		return
	}
	logData := map[string]interface{}{
		"timestamp": time.Now().Format(time.RFC3339),
		"operation": op,
		"actor_id":  actor.ID,
		"actor":     actor.Label(),
	}
	for key, value := range details {
		logData[key] = value
	}

	if e.opts.LogFormat == "text" {
		keys := make([]string, 0, len(logData))
		for key := range logData {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		pairs := make([]string, 0, len(keys))
		for _, key := range keys {
			pairs = append(pairs, fmt.Sprintf("%s=%v", key, logData[key]))
		}
		e.logger.Printf("ENGINE_LOG: %s", strings.Join(pairs, " "))
		return
	}

	logJSON, _ := json.Marshal(logData)
	e.logger.Printf("ENGINE_LOG: %s", string(logJSON))
}

func (e *AssignmentEngine) view(ctx context.Context, state *deviceState) *DeviceView {
	history, err := BuildHistory(ctx, e.directory, state.records)
	if err != nil && e.logger != nil {
		e.logger.Printf("⚠️ Не удалось разрешить пользователей истории устройства %d: %v", state.device.ID, err)
	}
	return &DeviceView{Device: state.device, History: history}
}

func requireActor(actor Actor) error {
	if actor.IsZero() {
		return NewValidationError("операция требует аутентифицированного пользователя")
	}
	return nil
}
