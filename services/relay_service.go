package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"backend_inventory/metrics"
	"backend_inventory/models"
)

// Типы событий внешнего справочника
const (
	EventUserChanged = "user_changed"
	EventUserDeleted = "user_deleted"
	EventRoomChanged = "room_changed"
	EventRoomDeleted = "room_deleted"
)

// Итог обработки события
const (
	EventApplied = "applied"
	EventIgnored = "ignored"
	EventFailed  = "failed"
)

// ExternalID идентификатор из внешней системы: строка или число
type ExternalID string

// UnmarshalJSON принимает строку или число
func (id *ExternalID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ExternalID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("некорректный идентификатор: %s", string(data))
	}
	*id = ExternalID(n.String())
	return nil
}

// UserPayload данные пользователя в событии
type UserPayload struct {
	ID          ExternalID `json:"id"`
	Email       string     `json:"email"`
	DisplayName string     `json:"displayName"`
	Title       string     `json:"title"`
	Department  string     `json:"department"`
	Avatar      string     `json:"avatar"`
}

// RoomPayload данные помещения в событии
type RoomPayload struct {
	ID       ExternalID `json:"id"`
	Name     string     `json:"name"`
	Building string     `json:"building"`
	Floor    string     `json:"floor"`
}

// ChangeEvent конверт события внешнего справочника.
// Данные передаются в поле user или room, либо в обобщенном поле doc.
type ChangeEvent struct {
	Type   string          `json:"type"`
	User   *UserPayload    `json:"user,omitempty"`
	Room   *RoomPayload    `json:"room,omitempty"`
	Doc    json.RawMessage `json:"doc,omitempty"`
	Source string          `json:"source"`
}

// EventResult результат обработки одного события
type EventResult struct {
	Type     string `json:"type"`
	Status   string `json:"status"`
	Affected int64  `json:"affected"`
	Error    string `json:"error,omitempty"`
}

// RelayService применяет изменения внешнего справочника: обновляет снимки
// держателей и инвалидирует кэш списков. Повторная доставка события безопасна.
type RelayService struct {
	db        *gorm.DB
	directory UserDirectory
	cache     ListingCache
	logger    *log.Logger
}

// NewRelayService создает ретранслятор изменений
func NewRelayService(db *gorm.DB, directory UserDirectory, cache ListingCache, logger *log.Logger) *RelayService {
	return &RelayService{
		db:        db,
		directory: directory,
		cache:     cache,
		logger:    logger,
	}
}

// HandleBatch обрабатывает события по одному. Ошибка одного события
// не останавливает обработку остальных.
func (r *RelayService) HandleBatch(ctx context.Context, events []ChangeEvent) []EventResult {
	results := make([]EventResult, 0, len(events))
	for _, event := range events {
		results = append(results, r.safeHandle(ctx, event))
	}
	return results
}

func (r *RelayService) safeHandle(ctx context.Context, event ChangeEvent) (result EventResult) {
	defer func() {
		if rec := recover(); rec != nil {
			result = EventResult{Type: event.Type, Status: EventFailed, Error: fmt.Sprintf("panic: %v", rec)}
			metrics.IncRelayEvent(event.Type, metrics.ResultError)
			r.logf("❌ Паника при обработке события %s: %v", event.Type, rec)
		}
	}()

	res, err := r.Handle(ctx, event)
	if err != nil {
		return EventResult{Type: event.Type, Status: EventFailed, Error: err.Error()}
	}
	return *res
}

// Handle обрабатывает одно событие. Неизвестные типы игнорируются.
func (r *RelayService) Handle(ctx context.Context, event ChangeEvent) (*EventResult, error) {
	result := &EventResult{Type: event.Type, Status: EventApplied}

	var err error
	switch event.Type {
	case EventUserChanged:
		result.Affected, err = r.userChanged(ctx, event)
	case EventUserDeleted:
		result.Affected, err = r.userDeleted(ctx, event)
	case EventRoomChanged:
		result.Affected, err = r.roomChanged(ctx, event)
	case EventRoomDeleted:
		result.Affected, err = r.roomDeleted(ctx, event)
	default:
		result.Status = EventIgnored
		metrics.IncRelayEvent("unknown", metrics.ResultIgnored)
		r.logf("Пропущено событие неизвестного типа %q от %s", event.Type, event.Source)
		return result, nil
	}

	if err != nil {
		metrics.IncRelayEvent(event.Type, metrics.ResultError)
		r.logf("❌ Ошибка обработки события %s от %s: %v", event.Type, event.Source, err)
		return nil, err
	}

	// Пользователь или помещение могут встречаться в любом списке
	if r.cache != nil {
		r.cache.InvalidateAll(context.WithoutCancel(ctx))
	}

	metrics.IncRelayEvent(event.Type, metrics.ResultSuccess)
	r.logf("✅ Событие %s от %s применено, затронуто устройств: %d", event.Type, event.Source, result.Affected)
	return result, nil
}

func (r *RelayService) userChanged(ctx context.Context, event ChangeEvent) (int64, error) {
	payload, err := decodePayload(event.User, event.Doc)
	if err != nil {
		return 0, err
	}
	if payload.ID == "" {
		return 0, NewValidationError("в событии %s не указан id пользователя", event.Type)
	}

	incoming := &models.DirectoryUser{
		ExternalID:  string(payload.ID),
		Email:       strings.TrimSpace(payload.Email),
		DisplayName: strings.TrimSpace(payload.DisplayName),
		Title:       payload.Title,
		Department:  payload.Department,
		Avatar:      payload.Avatar,
	}

	// Повторная доставка не переписывает справочник
	user, err := r.directory.Resolve(ctx, incoming.ExternalID)
	if err != nil || user.ExternalID != incoming.ExternalID || !sameProfile(user, incoming) {
		if user, err = r.directory.Upsert(ctx, incoming); err != nil {
			return 0, err
		}
	}

	return r.restampHolder(ctx, user)
}

func sameProfile(a, b *models.DirectoryUser) bool {
	return a.Email == b.Email && a.DisplayName == b.DisplayName &&
		a.Title == b.Title && a.Department == b.Department && a.Avatar == b.Avatar
}

// restampHolder обновляет отображаемые поля держателя на устройствах.
// Устройства с актуальным снимком не трогаются.
// Снимки имени в журнале не меняются: история показывает данные справочника.
func (r *RelayService) restampHolder(ctx context.Context, user *models.DirectoryUser) (int64, error) {
	snapshot := user.Snapshot()
	res := r.db.WithContext(ctx).Model(&models.Device{}).
		Where("holder_user_id = ?", user.ID).
		Where("COALESCE(holder_name, '') <> ? OR COALESCE(holder_title, '') <> ? OR COALESCE(holder_department, '') <> ? OR COALESCE(holder_avatar, '') <> ?",
			snapshot.Name, snapshot.Title, snapshot.Department, snapshot.Avatar).
		Updates(map[string]interface{}{
			"holder_name":       snapshot.Name,
			"holder_title":      snapshot.Title,
			"holder_department": snapshot.Department,
			"holder_avatar":     snapshot.Avatar,
			"updated_at":        time.Now(),
		})
	if res.Error != nil {
		return 0, internalError("restamp holder", res.Error)
	}
	return res.RowsAffected, nil
}

func (r *RelayService) userDeleted(ctx context.Context, event ChangeEvent) (int64, error) {
	payload, err := decodePayload(event.User, event.Doc)
	if err != nil {
		return 0, err
	}
	if payload.ID == "" {
		return 0, NewValidationError("в событии %s не указан id пользователя", event.Type)
	}

	user, err := r.directory.MarkDeleted(ctx, string(payload.ID))
	if err != nil {
		var notFound *NotFoundError
		if errors.As(err, &notFound) {
			// Повторная доставка или неизвестный пользователь
			return 0, nil
		}
		return 0, err
	}

	var held int64
	if err := r.db.WithContext(ctx).Model(&models.Device{}).
		Where("holder_user_id = ?", user.ID).Count(&held).Error; err != nil {
		return 0, internalError("count held devices", err)
	}
	if held > 0 {
		r.logf("⚠️ Удаленный пользователь %s остается держателем %d устройств", user.ExternalID, held)
	}
	return held, nil
}

func (r *RelayService) roomChanged(ctx context.Context, event ChangeEvent) (int64, error) {
	payload, err := decodePayload(event.Room, event.Doc)
	if err != nil {
		return 0, err
	}
	if payload.ID == "" {
		return 0, NewValidationError("в событии %s не указан id помещения", event.Type)
	}

	room := models.Room{
		ExternalID: string(payload.ID),
		Name:       strings.TrimSpace(payload.Name),
		Building:   payload.Building,
		Floor:      payload.Floor,
	}

	var stored models.Room
	err = r.db.WithContext(ctx).Where("external_id = ?", room.ExternalID).First(&stored).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, internalError("load room", err)
	}
	if err != nil || stored.Name != room.Name || stored.Building != room.Building || stored.Floor != room.Floor {
		err = r.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "external_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"name", "building", "floor", "updated_at"}),
		}).Create(&room).Error
		if err != nil {
			return 0, internalError("upsert room", err)
		}
		if err := r.db.WithContext(ctx).Where("external_id = ?", room.ExternalID).First(&stored).Error; err != nil {
			return 0, internalError("upsert room", err)
		}
	}

	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Device{}).Where("room_id = ?", stored.ID).Count(&count).Error; err != nil {
		return 0, internalError("count room devices", err)
	}
	return count, nil
}

func (r *RelayService) roomDeleted(ctx context.Context, event ChangeEvent) (int64, error) {
	payload, err := decodePayload(event.Room, event.Doc)
	if err != nil {
		return 0, err
	}
	if payload.ID == "" {
		return 0, NewValidationError("в событии %s не указан id помещения", event.Type)
	}

	var affected int64
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var room models.Room
		if err := tx.Where("external_id = ?", string(payload.ID)).First(&room).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}

		res := tx.Model(&models.Device{}).Where("room_id = ?", room.ID).
			Updates(map[string]interface{}{"room_id": nil, "updated_at": time.Now()})
		if res.Error != nil {
			return res.Error
		}
		affected = res.RowsAffected

		return tx.Delete(&room).Error
	})
	if err != nil {
		return 0, internalError("delete room", err)
	}
	return affected, nil
}

// decodePayload берет данные из типизированного поля или из doc
func decodePayload[T any](typed *T, doc json.RawMessage) (*T, error) {
	if typed != nil {
		return typed, nil
	}
	var payload T
	if len(bytes.TrimSpace(doc)) == 0 {
		return &payload, nil
	}
	if err := json.Unmarshal(doc, &payload); err != nil {
		return nil, NewValidationError("некорректные данные события: %v", err)
	}
	return &payload, nil
}

func (r *RelayService) logf(format string, args ...interface{}) {
	if r.logger != nil {
		r.logger.Printf(format, args...)
	}
}
