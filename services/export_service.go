package services

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	"backend_inventory/models"
)

// ExportService выгрузка списков в Excel и актов передачи в PDF
type ExportService struct {
	listing *ListingService
	devices *DeviceService
	logger  *log.Logger
}

// NewExportService создает сервис выгрузки
func NewExportService(listing *ListingService, devices *DeviceService, logger *log.Logger) *ExportService {
	return &ExportService{
		listing: listing,
		devices: devices,
		logger:  logger,
	}
}

var listingHeaders = []string{
	"ID", "Серийный номер", "Название", "Производитель", "Модель", "Тип",
	"Год выпуска", "Статус", "Держатель", "Отдел", "Причина поломки", "Стоимость",
}

// ExportListing выгружает отфильтрованный список устройств в xlsx
func (es *ExportService) ExportListing(ctx context.Context, kind models.DeviceKind, q ListQuery) ([]byte, error) {
	devices, err := es.listing.ListAll(ctx, kind, q)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil && es.logger != nil {
			es.logger.Printf("Failed to close Excel file: %v", err)
		}
	}()

	sheetName := kind.Plural()
	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return nil, internalError("export listing", err)
	}

	// Записываем заголовки
	for i, header := range listingHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheetName, cell, header)
	}

	// Записываем данные
	for rowIdx, d := range devices {
		releaseYear := ""
		if d.ReleaseYear != nil {
			releaseYear = fmt.Sprint(*d.ReleaseYear)
		}
		brokenReason := ""
		if d.BrokenReason != nil {
			brokenReason = *d.BrokenReason
		}
		row := []interface{}{
			d.ID, d.Serial, d.Name, d.Manufacturer, d.Model, d.Type,
			releaseYear, string(d.Status), d.Holder.Name, d.Holder.Department, brokenReason,
			d.PurchasePrice.InexactFloat64(),
		}
		for colIdx, value := range row {
			cell, _ := excelize.CoordinatesToCellName(colIdx+1, rowIdx+2)
			f.SetCellValue(sheetName, cell, value)
		}
	}

	// Добавляем автофильтр
	endCell, _ := excelize.CoordinatesToCellName(len(listingHeaders), len(devices)+1)
	if err := f.AutoFilter(sheetName, "A1:"+endCell, []excelize.AutoFilterOptions{}); err != nil {
		return nil, internalError("export listing", err)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, internalError("export listing", err)
	}
	return buf.Bytes(), nil
}

// HandoverAct формирует PDF акта передачи для открытой записи устройства
func (es *ExportService) HandoverAct(ctx context.Context, kind models.DeviceKind, id uint) ([]byte, error) {
	view, err := es.devices.Get(ctx, kind, id)
	if err != nil {
		return nil, err
	}

	var open *HistoryEntry
	for i := len(view.History) - 1; i >= 0; i-- {
		if view.History[i].IsOpen() && view.History[i].UserID != nil {
			open = &view.History[i]
			break
		}
	}
	if open == nil {
		return nil, NewValidationError("устройство %d не назначено, акт передачи не формируется", id)
	}

	holderName := open.FullnameSnapshot
	department := ""
	if open.User != nil {
		department = open.User.Department
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()
	pdf.SetFont("Arial", "B", 16)

	// Заголовок акта
	pdf.Cell(0, 10, tr("Equipment handover act"))
	pdf.Ln(14)

	pdf.SetFont("Arial", "", 11)
	lines := [][2]string{
		{"Act date", open.StartDate.Format("2006-01-02")},
		{"Device", fmt.Sprintf("%s (%s)", view.Name, kind)},
		{"Serial number", view.Serial},
		{"Manufacturer / model", fmt.Sprintf("%s %s", view.Manufacturer, view.Model)},
		{"Recipient", holderName},
		{"Department", department},
		{"Issued by", open.AssignedBy},
		{"Record", fmt.Sprintf("#%d", open.Sequence)},
	}
	for _, line := range lines {
		pdf.SetFont("Arial", "B", 11)
		pdf.Cell(60, 8, tr(line[0]))
		pdf.SetFont("Arial", "", 11)
		pdf.Cell(0, 8, tr(line[1]))
		pdf.Ln(8)
	}

	if open.Notes != "" {
		pdf.Ln(4)
		pdf.MultiCell(0, 6, tr("Notes: "+open.Notes), "", "L", false)
	}

	pdf.Ln(20)
	pdf.Cell(90, 8, tr("Issued: ____________________"))
	pdf.Cell(0, 8, tr("Received: ____________________"))
	pdf.Ln(12)
	pdf.SetFont("Arial", "I", 8)
	pdf.Cell(0, 6, tr("Generated "+time.Now().Format(time.RFC3339)))

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, internalError("handover act", err)
	}
	return buf.Bytes(), nil
}
