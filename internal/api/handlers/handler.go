// handler.go — основной обработчик API Evidence Module.
// Объединяет health и обработчики реестра доказательств,
// маппит ошибки сервисного слоя в стандартный формат ответа.
package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"

	apierrors "github.com/iamtinman67/claim-manager/evidence-module/internal/api/errors"
	"github.com/iamtinman67/claim-manager/evidence-module/internal/service"
)

// APIHandler — основной обработчик API Evidence Module.
type APIHandler struct {
	health   *HealthHandler
	registry *service.EvidenceRegistry
	logger   *slog.Logger
}

// NewAPIHandler создаёт основной обработчик API.
func NewAPIHandler(
	health *HealthHandler,
	registry *service.EvidenceRegistry,
	logger *slog.Logger,
) *APIHandler {
	return &APIHandler{
		health:   health,
		registry: registry,
		logger:   logger.With(slog.String("component", "api_handler")),
	}
}

// --- Health endpoints (делегируются в HealthHandler) ---

// HealthLive — проверка живости.
func (h *APIHandler) HealthLive(w http.ResponseWriter, r *http.Request) {
	h.health.HealthLive(w, r)
}

// HealthReady — проверка готовности.
func (h *APIHandler) HealthReady(w http.ResponseWriter, r *http.Request) {
	h.health.HealthReady(w, r)
}

// GetMetrics — Prometheus метрики.
func (h *APIHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.health.GetMetrics(w, r)
}

// --- Вспомогательные функции ---

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// decodeJSON разбирает тело запроса; числа сохраняются как json.Number.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	return dec.Decode(dst)
}

// pathParam связывает параметр пути со значением dst (стиль simple).
func pathParam(r *http.Request, name string, dst any) error {
	return runtime.BindStyledParameterWithOptions("simple", name, chi.URLParam(r, name), dst,
		runtime.BindStyledParameterOptions{
			ParamLocation: runtime.ParamLocationPath,
			Explode:       false,
			Required:      true,
		})
}

// queryParam связывает необязательный параметр запроса (стиль form).
func queryParam(r *http.Request, name string, dst any) error {
	return runtime.BindQueryParameter("form", true, false, name, r.URL.Query(), dst)
}

// writeServiceError маппит ошибку сервисного слоя в HTTP-ответ.
// op — описание операции для логов и сообщения 500.
func (h *APIHandler) writeServiceError(w http.ResponseWriter, r *http.Request, op string, err error) {
	var (
		validationErr *service.ValidationError
		partialErr    *service.PartialReorderError
	)
	switch {
	case errors.As(err, &validationErr):
		if validationErr.Field != "" {
			apierrors.WriteErrorDetails(w, http.StatusBadRequest, apierrors.CodeValidationError,
				validationErr.Error(), map[string]string{"field": validationErr.Field})
			return
		}
		apierrors.ValidationError(w, validationErr.Error())
	case errors.Is(err, service.ErrNotFound):
		apierrors.NotFound(w, err.Error())
	case errors.As(err, &partialErr):
		h.logger.Error(op+": порядок применён частично",
			slog.String("scope_id", partialErr.Scope),
			slog.Int("updated", len(partialErr.Updated)),
			slog.Int("failed", len(partialErr.Failed)),
			slog.String("error", partialErr.Err.Error()),
		)
		apierrors.WriteErrorDetails(w, http.StatusInternalServerError, apierrors.CodePartialReorder,
			partialErr.Error(), map[string][]string{
				"updated": nonNil(partialErr.Updated),
				"failed":  nonNil(partialErr.Failed),
			})
	case service.IsRetryable(err):
		h.logger.Warn(op+": хранилище недоступно",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		apierrors.StoreUnavailable(w, "Хранилище недоступно, повторите запрос")
	default:
		h.logger.Error(op,
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		apierrors.InternalError(w, op)
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
