// Пакет model — доменные модели Evidence Module.
// EvidenceRecord — строго типизированная запись доказательства,
// получаемая из RawRecord хранилища после приведения типов на границе реестра.
package model

import "time"

// EvidenceRecord — одно доказательство, опционально привязанное к делу (scope).
type EvidenceRecord struct {
	// ID — непрозрачный идентификатор, назначается хранилищем; неизменяем
	ID string
	// ScopeID — дело (claim), которому принадлежит запись; nil — не привязана
	ScopeID *string
	// Name — название доказательства
	Name string
	// Description — описание (опционально)
	Description *string
	// ExhibitNumber — номер экспоната; nil — не назначен или не распознан
	ExhibitNumber *int
	// ExhibitLabel — исходное значение номера экспоната из хранилища ("7", "Exhibit 7")
	ExhibitLabel *string
	// DisplayOrder — ручная позиция внутри дела, больше = выше; nil — без позиции
	DisplayOrder *int
	// NumberOfPages — количество страниц, по умолчанию 1
	NumberOfPages int
	// DateSubmitted — дата подачи (опционально)
	DateSubmitted *time.Time
	// File — ссылка на загруженный файл (опционально)
	File *FileReference
	// CreatedAt — время создания; неизменяемо, tiebreak для записей без DisplayOrder
	CreatedAt time.Time
	// UpdatedAt — время последнего изменения
	UpdatedAt time.Time
}

// FileReference — непрозрачная ссылка на артефакт в файловом хранилище.
type FileReference struct {
	Name string
	URL  string
}

// InScope сообщает, принадлежит ли запись указанному делу.
// scope == nil — глобальный режим, подходит любая запись.
func (r *EvidenceRecord) InScope(scope *string) bool {
	if scope == nil {
		return true
	}
	return r.ScopeID != nil && *r.ScopeID == *scope
}

// Clone возвращает глубокую копию записи.
func (r *EvidenceRecord) Clone() *EvidenceRecord {
	c := *r
	c.ScopeID = clonePtr(r.ScopeID)
	c.Description = clonePtr(r.Description)
	c.ExhibitNumber = clonePtr(r.ExhibitNumber)
	c.ExhibitLabel = clonePtr(r.ExhibitLabel)
	c.DisplayOrder = clonePtr(r.DisplayOrder)
	c.DateSubmitted = clonePtr(r.DateSubmitted)
	if r.File != nil {
		f := *r.File
		c.File = &f
	}
	return &c
}

// BundleEntry — запись в порядке представления с номером страницы в бандле.
type BundleEntry struct {
	// Record — доказательство
	Record *EvidenceRecord
	// BundlePageNumber — 1-based страница, с которой запись начинается в бандле
	BundlePageNumber int
	// Pages — учтённое количество страниц (после приведения <= 0 к 1)
	Pages int
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
