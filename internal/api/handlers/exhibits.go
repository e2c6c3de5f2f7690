// exhibits.go — подсказка следующего номера экспоната.
package handlers

import (
	"net/http"

	apierrors "github.com/iamtinman67/claim-manager/evidence-module/internal/api/errors"
	"github.com/iamtinman67/claim-manager/evidence-module/internal/service"
)

type exhibitSuggestionResponse struct {
	Number   int  `json:"number"`
	Fallback bool `json:"fallback"`
}

// SuggestExhibitNumber — GET /api/v1/exhibits/next?scope_id=&current=.
// current — номер, который клиент только что использовал; ответ всегда 200,
// при недоступном хранилище fallback = true.
func (h *APIHandler) SuggestExhibitNumber(w http.ResponseWriter, r *http.Request) {
	var scope, current *string
	if err := queryParam(r, "scope_id", &scope); err != nil {
		apierrors.ValidationError(w, "Некорректный параметр scope_id: "+err.Error())
		return
	}
	if err := queryParam(r, "current", &current); err != nil {
		apierrors.ValidationError(w, "Некорректный параметр current: "+err.Error())
		return
	}

	var s service.Suggestion
	if current != nil {
		s = h.registry.SuggestExhibitNumberAfter(r.Context(), scope, *current)
	} else {
		s = h.registry.SuggestExhibitNumber(r.Context(), scope)
	}
	writeJSON(w, http.StatusOK, exhibitSuggestionResponse{Number: s.Number, Fallback: s.Fallback})
}
