package service

import (
	"slices"
	"testing"

	"github.com/iamtinman67/claim-manager/evidence-module/internal/domain/model"
)

func recordsWithPages(pages ...int) []*model.EvidenceRecord {
	out := make([]*model.EvidenceRecord, len(pages))
	for i, p := range pages {
		out[i] = &model.EvidenceRecord{ID: string(rune('a' + i)), NumberOfPages: p}
	}
	return out
}

func bundlePages(entries []model.BundleEntry) []int {
	out := make([]int, len(entries))
	for i, e := range entries {
		out[i] = e.BundlePageNumber
	}
	return out
}

func TestProject(t *testing.T) {
	tests := []struct {
		name  string
		pages []int
		want  []int
		total int
	}{
		{"пусто", nil, []int{}, 0},
		{"3, 1, 2", []int{3, 1, 2}, []int{1, 4, 5}, 6},
		{"ноль и отрицательные → 1", []int{0, 2}, []int{1, 2}, 3},
		{"отрицательное", []int{-4, -1, 5}, []int{1, 2, 3}, 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries := Project(recordsWithPages(tt.pages...))
			if got := bundlePages(entries); !slices.Equal(got, tt.want) {
				t.Errorf("bundle pages = %v, ожидается %v", got, tt.want)
			}
			if got := TotalPages(entries); got != tt.total {
				t.Errorf("TotalPages = %d, ожидается %d", got, tt.total)
			}
		})
	}
}

func TestProject_Deterministic(t *testing.T) {
	records := recordsWithPages(4, 0, 7, 1)

	first := bundlePages(Project(records))
	second := bundlePages(Project(records))
	if !slices.Equal(first, second) {
		t.Errorf("повторный Project дал %v, первый — %v", second, first)
	}
	// Исходные записи не изменяются
	if records[1].NumberOfPages != 0 {
		t.Errorf("NumberOfPages изменён: %d", records[1].NumberOfPages)
	}
}
