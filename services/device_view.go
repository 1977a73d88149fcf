package services

import (
	"context"

	"backend_inventory/models"
)

// UserRef данные пользователя для отображения в истории
type UserRef struct {
	ID          uint   `json:"id"`
	ExternalID  string `json:"external_id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	Title       string `json:"title"`
	Department  string `json:"department"`
	Avatar      string `json:"avatar"`
	Deleted     bool   `json:"deleted"`
}

// HistoryEntry запись истории с разрешенным пользователем
type HistoryEntry struct {
	models.AssignmentRecord
	User *UserRef `json:"user"`
}

// DeviceView устройство с разрешенной историей назначений
type DeviceView struct {
	models.Device
	History []HistoryEntry `json:"history"`
}

// BuildHistory разрешает пользователей записей через справочник.
// Ошибка справочника не скрывает историю: записи возвращаются без данных пользователя.
func BuildHistory(ctx context.Context, directory UserDirectory, records []models.AssignmentRecord) ([]HistoryEntry, error) {
	sorted := make([]models.AssignmentRecord, len(records))
	copy(sorted, records)
	models.SortRecords(sorted)

	ids := make([]uint, 0, len(sorted))
	seen := make(map[uint]bool)
	for _, rec := range sorted {
		if rec.UserID != nil && !seen[*rec.UserID] {
			seen[*rec.UserID] = true
			ids = append(ids, *rec.UserID)
		}
	}

	var users map[uint]models.DirectoryUser
	var resolveErr error
	if directory != nil && len(ids) > 0 {
		users, resolveErr = directory.GetByIDs(ctx, ids)
	}

	entries := make([]HistoryEntry, 0, len(sorted))
	for _, rec := range sorted {
		entry := HistoryEntry{AssignmentRecord: rec}
		if rec.UserID != nil {
			if u, ok := users[*rec.UserID]; ok {
				entry.User = &UserRef{
					ID:          u.ID,
					ExternalID:  u.ExternalID,
					Email:       u.Email,
					DisplayName: u.GetDisplayName(),
					Title:       u.Title,
					Department:  u.Department,
					Avatar:      u.Avatar,
					Deleted:     u.DeletedAt.Valid,
				}
			}
		}
		entries = append(entries, entry)
	}

	return entries, resolveErr
}
