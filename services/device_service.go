package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"backend_inventory/models"
)

// DeviceAttributes описательные поля устройства. nil означает "не изменять".
type DeviceAttributes struct {
	Name          *string                `json:"name"`
	Serial        *string                `json:"serial"`
	Manufacturer  *string                `json:"manufacturer"`
	Model         *string                `json:"model"`
	Type          *string                `json:"type"`
	ReleaseYear   *int                   `json:"releaseYear"`
	Specs         map[string]interface{} `json:"specs"`
	PurchasePrice *decimal.Decimal       `json:"purchasePrice"`
	Notes         *string                `json:"notes"`
	RoomID        *uint                  `json:"roomId"`
}

// CreateDeviceRequest запрос на создание устройства
type CreateDeviceRequest struct {
	DeviceAttributes
	// AssignedTo пользователь, которому устройство сразу назначается
	AssignedTo string `json:"assignedTo"`
	Reason     string `json:"reason"`
}

// UpdateDeviceRequest запрос на изменение устройства. Поля assigned и status
// передаются движку назначений, остальные обновляются напрямую.
type UpdateDeviceRequest struct {
	DeviceAttributes
	Assigned          json.RawMessage `json:"assigned"`
	Status            *string         `json:"status"`
	BrokenReason      *string         `json:"brokenReason"`
	BrokenDescription *string         `json:"brokenDescription"`
	Reason            string          `json:"reason"`
}

// DeviceService реестр устройств всех типов
type DeviceService struct {
	db        *gorm.DB
	engine    *AssignmentEngine
	directory UserDirectory
	cache     ListingCache
	audit     *AuditService
	schemas   map[models.DeviceKind]models.KindSchema
	logger    *log.Logger
}

// NewDeviceService создает реестр устройств
func NewDeviceService(db *gorm.DB, engine *AssignmentEngine, directory UserDirectory, cache ListingCache, audit *AuditService, schemas map[models.DeviceKind]models.KindSchema, logger *log.Logger) *DeviceService {
	if schemas == nil {
		schemas = models.DefaultKindSchemas()
	}
	return &DeviceService{
		db:        db,
		engine:    engine,
		directory: directory,
		cache:     cache,
		audit:     audit,
		schemas:   schemas,
		logger:    logger,
	}
}

// Engine возвращает движок назначений
func (s *DeviceService) Engine() *AssignmentEngine {
	return s.engine
}

// Create создает устройство. С указанным держателем устройство создается
// с открытой записью журнала в статусе PendingDocumentation.
func (s *DeviceService) Create(ctx context.Context, kind models.DeviceKind, req CreateDeviceRequest, actor Actor) (*DeviceView, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}

	name := trimmed(req.Name)
	serial := trimmed(req.Serial)
	if name == "" {
		return nil, NewValidationError("поле name обязательно")
	}
	if serial == "" {
		return nil, NewValidationError("поле serial обязательно")
	}

	device := models.Device{
		Kind:    kind,
		Serial:  serial,
		Name:    name,
		Status:  models.StatusStandby,
		Version: 1,
	}
	if err := s.applyAttributes(&device, req.DeviceAttributes); err != nil {
		return nil, err
	}
	if err := s.validateSpecs(kind, device.Specs); err != nil {
		return nil, err
	}

	var holder *models.DirectoryUser
	if ref := strings.TrimSpace(req.AssignedTo); ref != "" {
		user, err := s.directory.Resolve(ctx, ref)
		if err != nil {
			return nil, err
		}
		holder = user
	}

	if err := s.ensureSerialFree(ctx, kind, serial, 0); err != nil {
		return nil, err
	}

	var records []models.AssignmentRecord
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if holder != nil {
			device.SetHolder(holder)
		}

		if err := tx.Create(&device).Error; err != nil {
			return err
		}

		if holder != nil {
			userID := holder.ID
			record := models.AssignmentRecord{
				DeviceID:         device.ID,
				Sequence:         1,
				UserID:           &userID,
				FullnameSnapshot: holder.GetDisplayName(),
				StartDate:        time.Now(),
				AssignedBy:       actor.Label(),
				Notes:            strings.TrimSpace(req.Reason),
			}
			if err := tx.Create(&record).Error; err != nil {
				return err
			}
			records = append(records, record)
		}

		status := models.DeriveStatus(models.OpenRecord(records), device.IsBroken())
		if status != device.Status {
			device.Status = status
			if err := tx.Model(&device).Update("status", string(status)).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if isUniqueViolation(err) {
			return nil, duplicateSerialError(kind, serial)
		}
		return nil, internalError("create device", err)
	}

	s.afterWrite(ctx, kind, device.ID, ActionDeviceCreate, actor, "", device.Status, map[string]interface{}{
		"serial": serial,
	})

	history, _ := BuildHistory(ctx, s.directory, records)
	return &DeviceView{Device: device, History: history}, nil
}

// Get возвращает устройство с разрешенной историей
func (s *DeviceService) Get(ctx context.Context, kind models.DeviceKind, id uint) (*DeviceView, error) {
	device, records, err := s.load(ctx, kind, id)
	if err != nil {
		return nil, err
	}

	history, err := BuildHistory(ctx, s.directory, records)
	if err != nil && s.logger != nil {
		s.logger.Printf("⚠️ Не удалось разрешить пользователей истории устройства %d: %v", id, err)
	}
	return &DeviceView{Device: *device, History: history}, nil
}

// History возвращает журнал назначений устройства
func (s *DeviceService) History(ctx context.Context, kind models.DeviceKind, id uint) ([]HistoryEntry, error) {
	view, err := s.Get(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	return view.History, nil
}

// Update обновляет атрибуты устройства. Изменения держателя и статуса
// выполняются через движок назначений.
func (s *DeviceService) Update(ctx context.Context, kind models.DeviceKind, id uint, req UpdateDeviceRequest, actor Actor) (*DeviceView, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}

	// Все проверки выполняются до первой записи
	assigned, hasAssigned, err := parseAssigned(req.Assigned)
	if err != nil {
		return nil, err
	}

	var targetStatus models.DeviceStatus
	if req.Status != nil {
		status, ok := models.ParseStatus(*req.Status)
		if !ok {
			return nil, NewValidationError("неизвестный статус: %s", *req.Status)
		}
		switch status {
		case models.StatusActive, models.StatusPendingDocumentation:
			return nil, NewValidationError("статус %s вычисляется автоматически и не может быть установлен", status)
		case models.StatusBroken:
			if err := models.ValidateBrokenTransition(trimmed(req.BrokenReason)); err != nil {
				return nil, &ValidationError{Message: err.Error()}
			}
		}
		targetStatus = status
	}

	device, _, err := s.load(ctx, kind, id)
	if err != nil {
		return nil, err
	}

	updates, err := s.attributeUpdates(kind, device, req.DeviceAttributes)
	if err != nil {
		return nil, err
	}
	if serial, ok := updates["serial"].(string); ok {
		if err := s.ensureSerialFree(ctx, kind, serial, id); err != nil {
			return nil, err
		}
	}

	// Новый держатель разрешается до записи атрибутов
	var target *models.DirectoryUser
	if hasAssigned && len(assigned) > 0 {
		if target, err = s.directory.Resolve(ctx, assigned[len(assigned)-1]); err != nil {
			return nil, err
		}
	}

	if len(updates) > 0 {
		updates["version"] = gorm.Expr("version + 1")
		if err := s.db.WithContext(ctx).Model(&models.Device{}).Where("id = ?", id).Updates(updates).Error; err != nil {
			if isUniqueViolation(err) {
				return nil, duplicateSerialError(kind, fmt.Sprint(updates["serial"]))
			}
			return nil, internalError("update device", err)
		}
		delete(updates, "version")
		s.afterWrite(ctx, kind, id, ActionDeviceUpdate, actor, device.Status, device.Status, map[string]interface{}{
			"fields": updatedFields(updates),
		})
	}

	if hasAssigned {
		if err := s.applyAssigned(ctx, kind, id, target, req.Reason, actor); err != nil {
			return nil, err
		}
	}

	switch targetStatus {
	case models.StatusBroken:
		if _, err := s.engine.SetBroken(ctx, kind, id, trimmed(req.BrokenReason), trimmed(req.BrokenDescription), actor); err != nil {
			return nil, err
		}
	case models.StatusStandby:
		if _, err := s.engine.ClearBroken(ctx, kind, id, actor); err != nil {
			return nil, err
		}
	}

	return s.Get(ctx, kind, id)
}

// applyAssigned назначает target или отзывает устройство, если target == nil.
// Совпадение с текущим держателем или отсутствие держателя при отзыве ничего не меняют.
func (s *DeviceService) applyAssigned(ctx context.Context, kind models.DeviceKind, id uint, target *models.DirectoryUser, reason string, actor Actor) error {
	device, _, err := s.load(ctx, kind, id)
	if err != nil {
		return err
	}

	if target == nil {
		if !device.Holder.IsSet() {
			return nil
		}
		var reasons []string
		if r := strings.TrimSpace(reason); r != "" {
			reasons = []string{r}
		}
		_, err := s.engine.Revoke(ctx, kind, id, reasons, "", actor)
		return err
	}

	if device.Holder.UserID != nil && *device.Holder.UserID == target.ID {
		return nil
	}

	_, err = s.engine.Assign(ctx, kind, id, target.ExternalID, reason, actor)
	return err
}

// Delete удаляет устройство вместе с журналом
func (s *DeviceService) Delete(ctx context.Context, kind models.DeviceKind, id uint, actor Actor) error {
	if err := requireActor(actor); err != nil {
		return err
	}

	device, _, err := s.load(ctx, kind, id)
	if err != nil {
		return err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("device_id = ?", id).Delete(&models.AssignmentRecord{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Device{}, id).Error
	})
	if err != nil {
		return internalError("delete device", err)
	}

	s.afterWrite(ctx, kind, id, ActionDeviceDelete, actor, device.Status, "", map[string]interface{}{
		"serial": device.Serial,
	})
	return nil
}

// Audit возвращает журнал аудита устройства
func (s *DeviceService) Audit(ctx context.Context, kind models.DeviceKind, id uint, limit, offset int) ([]models.DeviceAuditLog, error) {
	if _, _, err := s.load(ctx, kind, id); err != nil {
		return nil, err
	}
	logs, err := s.audit.GetDeviceLogs(ctx, kind, id, AuditFilters{Limit: limit, Offset: offset})
	if err != nil {
		return nil, internalError("audit logs", err)
	}
	return logs, nil
}

func (s *DeviceService) load(ctx context.Context, kind models.DeviceKind, id uint) (*models.Device, []models.AssignmentRecord, error) {
	state, err := loadState(s.db.WithContext(ctx), kind, id)
	if err != nil {
		return nil, nil, internalError("load device", err)
	}
	return &state.device, state.records, nil
}

func (s *DeviceService) afterWrite(ctx context.Context, kind models.DeviceKind, id uint, action AuditAction, actor Actor, oldStatus, newStatus models.DeviceStatus, details map[string]interface{}) {
	bgCtx := context.WithoutCancel(ctx)
	if s.cache != nil {
		s.cache.Invalidate(bgCtx, kind)
	}
	if err := s.audit.LogSuccess(bgCtx, AuditContext{
		DeviceID:  id,
		Kind:      kind,
		ActorID:   actor.ID,
		Action:    action,
		OldStatus: oldStatus,
		NewStatus: newStatus,
		Details:   details,
	}); err != nil && s.logger != nil {
		s.logger.Printf("⚠️ Не удалось записать аудит %s: %v", action, err)
	}
}

func (s *DeviceService) applyAttributes(device *models.Device, attrs DeviceAttributes) error {
	if attrs.Manufacturer != nil {
		device.Manufacturer = strings.TrimSpace(*attrs.Manufacturer)
	}
	if attrs.Model != nil {
		device.Model = strings.TrimSpace(*attrs.Model)
	}
	if attrs.Type != nil {
		device.Type = strings.TrimSpace(*attrs.Type)
	}
	if attrs.ReleaseYear != nil {
		if err := validateReleaseYear(*attrs.ReleaseYear); err != nil {
			return err
		}
		year := *attrs.ReleaseYear
		device.ReleaseYear = &year
	}
	if attrs.Specs != nil {
		device.Specs = datatypes.JSONMap(attrs.Specs)
	}
	if attrs.PurchasePrice != nil {
		if attrs.PurchasePrice.IsNegative() {
			return NewValidationError("стоимость не может быть отрицательной")
		}
		device.PurchasePrice = *attrs.PurchasePrice
	}
	if attrs.Notes != nil {
		device.Notes = *attrs.Notes
	}
	if attrs.RoomID != nil {
		room := *attrs.RoomID
		device.RoomID = &room
	}
	return nil
}

func (s *DeviceService) attributeUpdates(kind models.DeviceKind, device *models.Device, attrs DeviceAttributes) (map[string]interface{}, error) {
	updates := make(map[string]interface{})

	if attrs.Name != nil {
		name := strings.TrimSpace(*attrs.Name)
		if name == "" {
			return nil, NewValidationError("поле name не может быть пустым")
		}
		updates["name"] = name
	}
	if attrs.Serial != nil {
		serial := strings.TrimSpace(*attrs.Serial)
		if serial == "" {
			return nil, NewValidationError("поле serial не может быть пустым")
		}
		if serial != device.Serial {
			updates["serial"] = serial
		}
	}

	updated := *device
	if err := s.applyAttributes(&updated, attrs); err != nil {
		return nil, err
	}
	if attrs.Specs != nil {
		if err := s.validateSpecs(kind, updated.Specs); err != nil {
			return nil, err
		}
		updates["specs"] = updated.Specs
	}
	if attrs.Manufacturer != nil {
		updates["manufacturer"] = updated.Manufacturer
	}
	if attrs.Model != nil {
		updates["model"] = updated.Model
	}
	if attrs.Type != nil {
		updates["type"] = updated.Type
	}
	if attrs.ReleaseYear != nil {
		updates["release_year"] = *updated.ReleaseYear
	}
	if attrs.PurchasePrice != nil {
		updates["purchase_price"] = updated.PurchasePrice
	}
	if attrs.Notes != nil {
		updates["notes"] = updated.Notes
	}
	if attrs.RoomID != nil {
		updates["room_id"] = *updated.RoomID
	}

	return updates, nil
}

func (s *DeviceService) validateSpecs(kind models.DeviceKind, specs datatypes.JSONMap) error {
	schema, ok := s.schemas[kind]
	if !ok {
		return nil
	}
	if err := schema.ValidateSpecs(specs); err != nil {
		return &ValidationError{Message: err.Error()}
	}
	return nil
}

func (s *DeviceService) ensureSerialFree(ctx context.Context, kind models.DeviceKind, serial string, exceptID uint) error {
	var count int64
	query := s.db.WithContext(ctx).Model(&models.Device{}).Where("kind = ? AND serial = ?", kind, serial)
	if exceptID != 0 {
		query = query.Where("id <> ?", exceptID)
	}
	if err := query.Count(&count).Error; err != nil {
		return internalError("check serial", err)
	}
	if count > 0 {
		return duplicateSerialError(kind, serial)
	}
	return nil
}

// parseAssigned разбирает поле assigned: массив ссылок на пользователей
// (строки, числа или объекты с id/email/externalId).
func parseAssigned(raw json.RawMessage) ([]string, bool, error) {
	trimmedRaw := strings.TrimSpace(string(raw))
	if trimmedRaw == "" || trimmedRaw == "null" {
		return nil, false, nil
	}

	var items []interface{}
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, false, NewValidationError("поле assigned должно быть массивом")
	}

	refs := make([]string, 0, len(items))
	for _, item := range items {
		ref, ok := ParseUserRef(item)
		if !ok {
			return nil, false, NewValidationError("некорректный элемент поля assigned")
		}
		refs = append(refs, ref)
	}
	return refs, true, nil
}

// ParseUserRef приводит ссылку на пользователя из JSON (строка, число, объект) к строке
func ParseUserRef(item interface{}) (string, bool) {
	switch v := item.(type) {
	case string:
		v = strings.TrimSpace(v)
		return v, v != ""
	case float64:
		if v <= 0 || v != float64(uint64(v)) {
			return "", false
		}
		return strconv.FormatUint(uint64(v), 10), true
	case map[string]interface{}:
		for _, key := range []string{"externalId", "external_id", "email", "id"} {
			if value, ok := v[key]; ok {
				return ParseUserRef(value)
			}
		}
	}
	return "", false
}

func validateReleaseYear(year int) error {
	if year < 1970 || year > time.Now().Year()+1 {
		return NewValidationError("некорректный год выпуска: %d", year)
	}
	return nil
}

func updatedFields(updates map[string]interface{}) []string {
	fields := make([]string, 0, len(updates))
	for k := range updates {
		fields = append(fields, k)
	}
	return fields
}

func duplicateSerialError(kind models.DeviceKind, serial string) error {
	return &ConflictError{
		Message:   fmt.Sprintf("устройство %s с серийным номером %s уже существует", kind, serial),
		Duplicate: true,
	}
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key")
}

func trimmed(value *string) string {
	if value == nil {
		return ""
	}
	return strings.TrimSpace(*value)
}
