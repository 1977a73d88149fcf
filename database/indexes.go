package database

import (
	"fmt"
	"log"
	"strings"

	"gorm.io/gorm"
)

// DatabaseIndex представляет индекс базы данных
type DatabaseIndex struct {
	Name    string
	Table   string
	Columns []string
	Unique  bool
	Where   string // Условие частичного индекса
}

// LedgerIndexes индексы журнала назначений и списков устройств
var LedgerIndexes = []DatabaseIndex{
	// Не более одной открытой записи на устройство
	{
		Name:    "idx_assignment_records_one_open",
		Table:   "assignment_records",
		Columns: []string{"device_id"},
		Unique:  true,
		Where:   "end_date IS NULL",
	},
	{
		Name:    "idx_assignment_records_device_start",
		Table:   "assignment_records",
		Columns: []string{"device_id", "start_date"},
	},
	// Списки устройств: тип + сортировка по дате создания
	{
		Name:    "idx_devices_kind_created",
		Table:   "devices",
		Columns: []string{"kind", "created_at"},
	},
	{
		Name:    "idx_devices_kind_status",
		Table:   "devices",
		Columns: []string{"kind", "status"},
	},
}

// CreateLedgerIndexes создает индексы, которые не выражаются тегами gorm
func CreateLedgerIndexes(db *gorm.DB) error {
	for _, index := range LedgerIndexes {
		if err := CreateIndex(db, index); err != nil {
			return fmt.Errorf("не удалось создать индекс %s: %w", index.Name, err)
		}
	}

	log.Printf("✅ Индексы журнала назначений созданы (%d)", len(LedgerIndexes))
	return nil
}

// CreateIndex создает отдельный индекс
func CreateIndex(db *gorm.DB, index DatabaseIndex) error {
	uniqueStr := ""
	if index.Unique {
		uniqueStr = "UNIQUE "
	}

	sql := fmt.Sprintf(
		"CREATE %sINDEX IF NOT EXISTS %s ON %s (%s)",
		uniqueStr, index.Name, index.Table, strings.Join(index.Columns, ", "),
	)
	if index.Where != "" {
		sql += " WHERE " + index.Where
	}

	return db.Exec(sql).Error
}

// DropIndex удаляет индекс
func DropIndex(db *gorm.DB, indexName string) error {
	sql := fmt.Sprintf("DROP INDEX IF EXISTS %s", indexName)
	return db.Exec(sql).Error
}
