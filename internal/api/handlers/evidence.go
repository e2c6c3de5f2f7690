// evidence.go — обработчики /api/v1/evidence endpoints:
// список в порядке представления, создание, получение, частичное изменение, удаление.
package handlers

import (
	"log/slog"
	"net/http"
	"time"

	openapi_types "github.com/oapi-codegen/runtime/types"

	apierrors "github.com/iamtinman67/claim-manager/evidence-module/internal/api/errors"
	"github.com/iamtinman67/claim-manager/evidence-module/internal/api/middleware"
	"github.com/iamtinman67/claim-manager/evidence-module/internal/domain/model"
	"github.com/iamtinman67/claim-manager/evidence-module/internal/service"
)

// evidenceResponse — JSON-представление записи доказательства.
type evidenceResponse struct {
	ID            string        `json:"id"`
	ScopeID       *string       `json:"scope_id"`
	Name          string        `json:"name"`
	Description   *string       `json:"description"`
	ExhibitNumber *int          `json:"exhibit_number"`
	ExhibitLabel  *string       `json:"exhibit_label,omitempty"`
	DisplayOrder  *int          `json:"display_order"`
	NumberOfPages int           `json:"number_of_pages"`
	DateSubmitted *string       `json:"date_submitted"`
	File          *fileResponse `json:"file"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

type fileResponse struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

type evidenceListResponse struct {
	Items []evidenceResponse `json:"items"`
	Total int                `json:"total"`
}

// mapEvidence конвертирует доменную модель в JSON-ответ.
// exhibit_label выводится, только если номер не распознан.
func mapEvidence(rec *model.EvidenceRecord) evidenceResponse {
	resp := evidenceResponse{
		ID:            rec.ID,
		ScopeID:       rec.ScopeID,
		Name:          rec.Name,
		Description:   rec.Description,
		ExhibitNumber: rec.ExhibitNumber,
		DisplayOrder:  rec.DisplayOrder,
		NumberOfPages: rec.NumberOfPages,
		CreatedAt:     rec.CreatedAt,
		UpdatedAt:     rec.UpdatedAt,
	}
	if rec.ExhibitNumber == nil {
		resp.ExhibitLabel = rec.ExhibitLabel
	}
	if rec.DateSubmitted != nil {
		d := rec.DateSubmitted.Format(time.DateOnly)
		resp.DateSubmitted = &d
	}
	if rec.File != nil {
		resp.File = &fileResponse{Name: rec.File.Name, URL: rec.File.URL}
	}
	return resp
}

// ListEvidence — GET /api/v1/evidence?scope_id=.
// Без scope_id возвращает все записи.
func (h *APIHandler) ListEvidence(w http.ResponseWriter, r *http.Request) {
	var scope *string
	if err := queryParam(r, "scope_id", &scope); err != nil {
		apierrors.ValidationError(w, "Некорректный параметр scope_id: "+err.Error())
		return
	}

	list, err := h.registry.List(r.Context(), scope)
	if err != nil {
		h.writeServiceError(w, r, "Ошибка получения списка доказательств", err)
		return
	}

	items := make([]evidenceResponse, len(list))
	for i, rec := range list {
		items[i] = mapEvidence(rec)
	}
	writeJSON(w, http.StatusOK, evidenceListResponse{Items: items, Total: len(items)})
}

// CreateEvidence — POST /api/v1/evidence?scope_id=.
// Новая запись без display_order встаёт первой в деле.
func (h *APIHandler) CreateEvidence(w http.ResponseWriter, r *http.Request) {
	var scope *string
	if err := queryParam(r, "scope_id", &scope); err != nil {
		apierrors.ValidationError(w, "Некорректный параметр scope_id: "+err.Error())
		return
	}

	var fields service.Fields
	if err := decodeJSON(r, &fields); err != nil {
		apierrors.ValidationError(w, "Некорректный JSON: "+err.Error())
		return
	}

	rec, err := h.registry.Add(r.Context(), scope, fields)
	if err != nil {
		h.writeServiceError(w, r, "Ошибка создания доказательства", err)
		return
	}

	h.logger.Debug("Создание доказательства",
		slog.String("evidence_id", rec.ID),
		slog.String("subject", middleware.SubjectFromContext(r.Context())),
	)
	writeJSON(w, http.StatusCreated, mapEvidence(rec))
}

// GetEvidence — GET /api/v1/evidence/{evidence_id}.
func (h *APIHandler) GetEvidence(w http.ResponseWriter, r *http.Request) {
	id, ok := evidenceID(w, r)
	if !ok {
		return
	}

	rec, err := h.registry.Get(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, "Ошибка получения доказательства", err)
		return
	}
	writeJSON(w, http.StatusOK, mapEvidence(rec))
}

// UpdateEvidence — PATCH /api/v1/evidence/{evidence_id}.
// Ключ со значением null очищает поле; отсутствующий ключ не изменяет его.
func (h *APIHandler) UpdateEvidence(w http.ResponseWriter, r *http.Request) {
	id, ok := evidenceID(w, r)
	if !ok {
		return
	}

	var fields service.Fields
	if err := decodeJSON(r, &fields); err != nil {
		apierrors.ValidationError(w, "Некорректный JSON: "+err.Error())
		return
	}

	rec, err := h.registry.Update(r.Context(), id, fields)
	if err != nil {
		h.writeServiceError(w, r, "Ошибка обновления доказательства", err)
		return
	}

	h.logger.Debug("Изменение доказательства",
		slog.String("evidence_id", id),
		slog.String("subject", middleware.SubjectFromContext(r.Context())),
	)
	writeJSON(w, http.StatusOK, mapEvidence(rec))
}

// DeleteEvidence — DELETE /api/v1/evidence/{evidence_id}.
func (h *APIHandler) DeleteEvidence(w http.ResponseWriter, r *http.Request) {
	id, ok := evidenceID(w, r)
	if !ok {
		return
	}

	if err := h.registry.Remove(r.Context(), id); err != nil {
		h.writeServiceError(w, r, "Ошибка удаления доказательства", err)
		return
	}

	h.logger.Debug("Удаление доказательства",
		slog.String("evidence_id", id),
		slog.String("subject", middleware.SubjectFromContext(r.Context())),
	)
	w.WriteHeader(http.StatusNoContent)
}

// evidenceID извлекает {evidence_id} как UUID; при ошибке пишет 400.
func evidenceID(w http.ResponseWriter, r *http.Request) (string, bool) {
	var id openapi_types.UUID
	if err := pathParam(r, "evidence_id", &id); err != nil {
		apierrors.ValidationError(w, "Некорректный evidence_id: "+err.Error())
		return "", false
	}
	return id.String(), true
}
