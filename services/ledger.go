package services

import (
	"fmt"
	"time"

	"backend_inventory/models"
)

// ReconcileActor отметка системного ремонта в полях assignedBy/revokedBy
const ReconcileActor = "system:reconcile"

// Коды нарушений инвариантов журнала
const (
	ViolationMultipleOpen   = "multiple_open"
	ViolationHolderMismatch = "holder_mismatch"
	ViolationDateOrder      = "date_order"
	ViolationNullUser       = "null_user"
	ViolationStatusMismatch = "status_mismatch"
	ViolationBrokenFields   = "broken_fields"
)

// Violation нарушение инварианта журнала назначений
type Violation struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	RecordID uint   `json:"record_id,omitempty"`
}

// CheckInvariants проверяет инварианты устройства и его журнала.
// Пустой результат означает согласованное состояние.
func CheckInvariants(device *models.Device, records []models.AssignmentRecord) []Violation {
	sorted := make([]models.AssignmentRecord, len(records))
	copy(sorted, records)
	models.SortRecords(sorted)

	var violations []Violation

	openCount := 0
	for i := range sorted {
		rec := &sorted[i]
		if rec.IsOpen() {
			openCount++
		}
		if rec.UserID == nil && !rec.IsRevocationMarker() {
			violations = append(violations, Violation{
				Code:     ViolationNullUser,
				Message:  "запись без пользователя",
				RecordID: rec.ID,
			})
		}
		if rec.EndDate != nil && rec.EndDate.Before(rec.StartDate) {
			violations = append(violations, Violation{
				Code:     ViolationDateOrder,
				Message:  "дата окончания раньше даты начала",
				RecordID: rec.ID,
			})
		}
		if i+1 < len(sorted) {
			next := &sorted[i+1]
			if rec.EndDate == nil {
				violations = append(violations, Violation{
					Code:     ViolationDateOrder,
					Message:  "открытая запись не является последней",
					RecordID: rec.ID,
				})
			} else if rec.EndDate.After(next.StartDate) {
				violations = append(violations, Violation{
					Code:     ViolationDateOrder,
					Message:  "дата окончания позже начала следующей записи",
					RecordID: rec.ID,
				})
			}
		}
	}

	if openCount > 1 {
		violations = append(violations, Violation{
			Code:    ViolationMultipleOpen,
			Message: fmt.Sprintf("открытых записей: %d", openCount),
		})
	}

	open := models.OpenRecord(sorted)
	switch {
	case open == nil && device.Holder.IsSet():
		violations = append(violations, Violation{
			Code:    ViolationHolderMismatch,
			Message: "держатель указан, но открытой записи нет",
		})
	case open != nil && !device.Holder.IsSet():
		violations = append(violations, Violation{
			Code:     ViolationHolderMismatch,
			Message:  "открытая запись есть, но держатель не указан",
			RecordID: open.ID,
		})
	case open != nil && (open.UserID == nil || *open.UserID != *device.Holder.UserID):
		violations = append(violations, Violation{
			Code:     ViolationHolderMismatch,
			Message:  "пользователь открытой записи не совпадает с держателем",
			RecordID: open.ID,
		})
	}

	if device.BrokenReason == nil && device.BrokenDescription != nil {
		violations = append(violations, Violation{
			Code:    ViolationBrokenFields,
			Message: "описание поломки без причины",
		})
	}

	if expected := models.DeriveStatus(open, device.IsBroken()); device.Status != expected {
		violations = append(violations, Violation{
			Code:    ViolationStatusMismatch,
			Message: fmt.Sprintf("статус %s, ожидается %s", device.Status, expected),
		})
	}

	return violations
}

// ReconcileResult результат ремонта журнала одного устройства
type ReconcileResult struct {
	// Records итоговый журнал в порядке дат
	Records []models.AssignmentRecord
	// Dropped удаленные записи без пользователя
	Dropped []models.AssignmentRecord
	// Dirty индексы измененных или новых записей в Records
	Dirty []int
	// Status пересчитанный статус
	Status  models.DeviceStatus
	Changed bool
}

// ReconcileLedger восстанавливает инварианты журнала устройства. Чистая функция:
// устройство и переданные записи не изменяются, итог применяет вызывающий.
// Повторный вызов на результате ничего не меняет.
func ReconcileLedger(device *models.Device, records []models.AssignmentRecord, now time.Time) ReconcileResult {
	result := ReconcileResult{}
	dirty := make(map[int]bool)

	sorted := make([]models.AssignmentRecord, len(records))
	copy(sorted, records)
	models.SortRecords(sorted)

	// 1. Записи без пользователя не описывают держателя. Отметки об отзыве сохраняются.
	kept := make([]models.AssignmentRecord, 0, len(sorted))
	for _, rec := range sorted {
		if rec.UserID == nil && !rec.IsRevocationMarker() {
			result.Dropped = append(result.Dropped, rec)
			continue
		}
		kept = append(kept, rec)
	}

	// 2. Окончание не раньше начала для всех записей, включая последнюю
	for i := range kept {
		rec := &kept[i]
		if rec.EndDate != nil && rec.EndDate.Before(rec.StartDate) {
			end := rec.StartDate
			rec.EndDate = &end
			dirty[i] = true
		}
	}

	// Непоследние записи закрываются началом следующей
	for i := 0; i+1 < len(kept); i++ {
		rec := &kept[i]
		nextStart := kept[i+1].StartDate
		switch {
		case rec.EndDate == nil:
			rec.Close(nextStart, ReconcileActor, nil)
			dirty[i] = true
		case rec.EndDate.After(nextStart):
			end := nextStart
			if end.Before(rec.StartDate) {
				end = rec.StartDate
			}
			rec.EndDate = &end
			dirty[i] = true
		}
	}

	// 3. Последняя запись согласуется с держателем
	holder := device.Holder
	var last *models.AssignmentRecord
	if len(kept) > 0 {
		last = &kept[len(kept)-1]
	}

	if holder.IsSet() {
		switch {
		case last == nil || last.IsRevocationMarker():
			start := now
			if last != nil && last.EndDate != nil && last.EndDate.After(start) {
				start = *last.EndDate
			}
			userID := *holder.UserID
			kept = append(kept, models.AssignmentRecord{
				DeviceID:         device.ID,
				Sequence:         models.NextSequence(records),
				UserID:           &userID,
				FullnameSnapshot: holder.Name,
				StartDate:        start,
				AssignedBy:       ReconcileActor,
			})
			dirty[len(kept)-1] = true
		case !last.BelongsTo(*holder.UserID):
			userID := *holder.UserID
			last.UserID = &userID
			last.FullnameSnapshot = holder.Name
			last.DocumentRef = nil
			last.Reopen()
			dirty[len(kept)-1] = true
		case !last.IsOpen():
			last.Reopen()
			dirty[len(kept)-1] = true
		}
	} else if last != nil && last.IsOpen() {
		last.Close(now, ReconcileActor, nil)
		dirty[len(kept)-1] = true
	}

	// 4. Статус пересчитывается из фактов
	result.Records = kept
	result.Status = models.DeriveStatus(models.OpenRecord(kept), device.IsBroken())

	for i := range kept {
		if dirty[i] {
			result.Dirty = append(result.Dirty, i)
		}
	}

	result.Changed = len(result.Dropped) > 0 || len(result.Dirty) > 0 ||
		result.Status != device.Status ||
		(device.BrokenReason == nil && device.BrokenDescription != nil)

	return result
}
