// Пакет export — выгрузка оглавления бандла доказательств (exhibit index) в XLSX.
// Формирование самого PDF-бандла выполняется внешним сервисом.
package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/iamtinman67/claim-manager/evidence-module/internal/domain/model"
)

// SheetName — имя листа оглавления.
const SheetName = "Exhibits"

// ContentType — MIME-тип XLSX.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

var header = []any{"Exhibit", "Title", "Date submitted", "Pages", "Bundle page"}

// WriteExhibitIndex записывает оглавление бандла в w: одна строка на запись
// в порядке представления.
func WriteExhibitIndex(w io.Writer, entries []model.BundleEntry) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return fmt.Errorf("ошибка создания листа: %w", err)
	}

	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return fmt.Errorf("ошибка записи заголовка: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("ошибка создания стиля: %w", err)
	}
	if err := f.SetCellStyle(SheetName, "A1", "E1", bold); err != nil {
		return fmt.Errorf("ошибка применения стиля: %w", err)
	}
	if err := f.SetColWidth(SheetName, "B", "B", 48); err != nil {
		return fmt.Errorf("ошибка ширины колонки: %w", err)
	}
	if err := f.SetColWidth(SheetName, "C", "C", 16); err != nil {
		return fmt.Errorf("ошибка ширины колонки: %w", err)
	}

	for i, e := range entries {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []any{
			exhibitCell(e.Record),
			e.Record.Name,
			dateCell(e.Record),
			e.Pages,
			e.BundlePageNumber,
		}
		if err := f.SetSheetRow(SheetName, cell, &row); err != nil {
			return fmt.Errorf("ошибка записи строки %d: %w", i+2, err)
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("ошибка записи XLSX: %w", err)
	}
	return nil
}

// exhibitCell — номер экспоната; нераспознанный номер выводится как есть.
func exhibitCell(r *model.EvidenceRecord) any {
	switch {
	case r.ExhibitNumber != nil:
		return *r.ExhibitNumber
	case r.ExhibitLabel != nil:
		return *r.ExhibitLabel
	default:
		return ""
	}
}

func dateCell(r *model.EvidenceRecord) string {
	if r.DateSubmitted == nil {
		return ""
	}
	return r.DateSubmitted.Format("2006-01-02")
}
