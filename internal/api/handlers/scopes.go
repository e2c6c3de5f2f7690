// scopes.go — обработчики /api/v1/scopes/{scope_id}: ручной порядок,
// проекция бандла и выгрузка оглавления в XLSX.
package handlers

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	apierrors "github.com/iamtinman67/claim-manager/evidence-module/internal/api/errors"
	"github.com/iamtinman67/claim-manager/evidence-module/internal/api/middleware"
	"github.com/iamtinman67/claim-manager/evidence-module/internal/export"
	"github.com/iamtinman67/claim-manager/evidence-module/internal/service"
)

type reorderRequest struct {
	OrderedIDs []string `json:"ordered_ids"`
}

type moveRequest struct {
	EvidenceID string `json:"evidence_id"`
	Position   *int   `json:"position"`
}

type bundleEntryResponse struct {
	Evidence         evidenceResponse `json:"evidence"`
	BundlePageNumber int              `json:"bundle_page_number"`
	Pages            int              `json:"pages"`
}

type bundleResponse struct {
	ScopeID    string                `json:"scope_id"`
	TotalPages int                   `json:"total_pages"`
	Entries    []bundleEntryResponse `json:"entries"`
}

// ReorderScope — PUT /api/v1/scopes/{scope_id}/order.
// Первый ID списка получает наибольший display_order.
func (h *APIHandler) ReorderScope(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeID(w, r)
	if !ok {
		return
	}

	var req reorderRequest
	if err := decodeJSON(r, &req); err != nil {
		apierrors.ValidationError(w, "Некорректный JSON: "+err.Error())
		return
	}

	if err := h.registry.Reorder(r.Context(), scope, req.OrderedIDs); err != nil {
		h.writeServiceError(w, r, "Ошибка изменения порядка", err)
		return
	}

	h.logger.Debug("Изменение порядка",
		slog.String("scope_id", scope),
		slog.String("subject", middleware.SubjectFromContext(r.Context())),
	)
	w.WriteHeader(http.StatusNoContent)
}

// MoveEvidence — POST /api/v1/scopes/{scope_id}/order/move.
// Переносит одну запись на позицию position текущего порядка.
func (h *APIHandler) MoveEvidence(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeID(w, r)
	if !ok {
		return
	}

	var req moveRequest
	if err := decodeJSON(r, &req); err != nil {
		apierrors.ValidationError(w, "Некорректный JSON: "+err.Error())
		return
	}
	if req.EvidenceID == "" || req.Position == nil {
		apierrors.ValidationError(w, "Поля evidence_id и position обязательны")
		return
	}

	if err := h.registry.Move(r.Context(), scope, req.EvidenceID, *req.Position); err != nil {
		h.writeServiceError(w, r, "Ошибка переноса доказательства", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetBundle — GET /api/v1/scopes/{scope_id}/bundle.
func (h *APIHandler) GetBundle(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeID(w, r)
	if !ok {
		return
	}

	entries, err := h.registry.Bundle(r.Context(), &scope)
	if err != nil {
		h.writeServiceError(w, r, "Ошибка построения бандла", err)
		return
	}

	resp := bundleResponse{
		ScopeID:    scope,
		TotalPages: service.TotalPages(entries),
		Entries:    make([]bundleEntryResponse, len(entries)),
	}
	for i, e := range entries {
		resp.Entries[i] = bundleEntryResponse{
			Evidence:         mapEvidence(e.Record),
			BundlePageNumber: e.BundlePageNumber,
			Pages:            e.Pages,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetBundleIndex — GET /api/v1/scopes/{scope_id}/bundle/index.xlsx.
// Файл собирается в памяти целиком, чтобы ошибка отдавалась JSON-ответом.
func (h *APIHandler) GetBundleIndex(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeID(w, r)
	if !ok {
		return
	}

	entries, err := h.registry.Bundle(r.Context(), &scope)
	if err != nil {
		h.writeServiceError(w, r, "Ошибка построения бандла", err)
		return
	}

	var buf bytes.Buffer
	if err := export.WriteExhibitIndex(&buf, entries); err != nil {
		h.writeServiceError(w, r, "Ошибка формирования оглавления", err)
		return
	}

	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%s", strconv.Quote(scope+"-exhibits.xlsx")))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

// scopeID извлекает {scope_id}; при ошибке пишет 400.
func scopeID(w http.ResponseWriter, r *http.Request) (string, bool) {
	var scope string
	if err := pathParam(r, "scope_id", &scope); err != nil {
		apierrors.ValidationError(w, "Некорректный scope_id: "+err.Error())
		return "", false
	}
	if scope == "" {
		apierrors.ValidationError(w, "scope_id не может быть пустым")
		return "", false
	}
	return scope, true
}
