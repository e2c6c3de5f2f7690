// projector.go — номера страниц записей в бандле.
package service

import "github.com/iamtinman67/claim-manager/evidence-module/internal/domain/model"

// Project вычисляет для упорядоченных записей 1-based страницу начала в бандле.
// Количество страниц <= 0 считается за 1. Чистая функция, без состояния.
func Project(records []*model.EvidenceRecord) []model.BundleEntry {
	entries := make([]model.BundleEntry, 0, len(records))
	offset := 1
	for _, rec := range records {
		pages := max(rec.NumberOfPages, 1)
		entries = append(entries, model.BundleEntry{
			Record:           rec,
			BundlePageNumber: offset,
			Pages:            pages,
		})
		offset += pages
	}
	return entries
}

// TotalPages возвращает общее количество страниц бандла.
func TotalPages(entries []model.BundleEntry) int {
	if len(entries) == 0 {
		return 0
	}
	last := entries[len(entries)-1]
	return last.BundlePageNumber + last.Pages - 1
}
