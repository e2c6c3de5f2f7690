// sequencer.go — подсказка следующего номера экспоната.
package service

import (
	"context"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/iamtinman67/claim-manager/evidence-module/internal/domain/model"
	"github.com/iamtinman67/claim-manager/evidence-module/internal/repository"
)

var sequencerFallbacksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "em_exhibit_suggestion_fallbacks_total",
	Help: "Количество подсказок номера экспоната, выданных без чтения хранилища.",
}, []string{"mode"})

// Suggestion — подсказка номера экспоната. Номер не резервируется:
// два параллельных вызова для одного дела могут получить одинаковый номер.
type Suggestion struct {
	Number int
	// Fallback — хранилище недоступно, номер вычислен без него
	Fallback bool
}

// ExhibitSequencer вычисляет следующий номер экспоната дела:
// max(номера текущих записей, наибольший когда-либо сохранённый номер)+1.
// Удаление записи не возвращает её номер в оборот.
type ExhibitSequencer struct {
	gw       repository.EvidenceGateway
	fetchCap int
	logger   *slog.Logger
}

// NewExhibitSequencer создаёт Sequencer.
// fetchCap — лимит глобальной выборки (без дела).
func NewExhibitSequencer(gw repository.EvidenceGateway, fetchCap int, logger *slog.Logger) *ExhibitSequencer {
	return &ExhibitSequencer{
		gw:       gw,
		fetchCap: fetchCap,
		logger:   logger.With(slog.String("component", "exhibit_sequencer")),
	}
}

// Suggest возвращает следующий номер экспоната для дела (scope == nil — глобально).
// При ошибке чтения возвращает 1 с Fallback = true.
func (s *ExhibitSequencer) Suggest(ctx context.Context, scope *string) Suggestion {
	n, err := s.next(ctx, scope)
	if err != nil {
		s.fallback(scope, "initial", err)
		return Suggestion{Number: 1, Fallback: true}
	}
	return Suggestion{Number: n}
}

// SuggestAfter — повторная подсказка после использования номера displayed.
// При ошибке чтения возвращает displayed+1 с Fallback = true.
func (s *ExhibitSequencer) SuggestAfter(ctx context.Context, scope *string, displayed string) Suggestion {
	n, err := s.next(ctx, scope)
	if err != nil {
		s.fallback(scope, "after_use", err)
		return Suggestion{Number: ParseExhibitNumber(displayed) + 1, Fallback: true}
	}
	return Suggestion{Number: n}
}

func (s *ExhibitSequencer) next(ctx context.Context, scope *string) (int, error) {
	filter := repository.Filter{ScopeID: scope}
	if scope == nil {
		filter.Limit = s.fetchCap
	}

	records, err := s.gw.Fetch(ctx, filter)
	if err != nil {
		return 0, &FetchError{Scope: scopeKey(scope), Err: err}
	}

	highest := 0
	for _, rec := range records {
		if rec.ExhibitNumber == nil {
			continue
		}
		highest = max(highest, ParseExhibitNumber(*rec.ExhibitNumber))
	}

	mark, err := s.gw.ExhibitHighWater(ctx, scope)
	if err != nil {
		return 0, &FetchError{Scope: scopeKey(scope), Err: err}
	}
	return max(highest, mark) + 1, nil
}

func (s *ExhibitSequencer) fallback(scope *string, mode string, err error) {
	sequencerFallbacksTotal.WithLabelValues(mode).Inc()
	s.logger.Warn("Хранилище недоступно, номер экспоната подсказан по умолчанию",
		slog.String("scope_id", scopeKey(scope)),
		slog.String("mode", mode),
		slog.String("error", err.Error()),
	)
}

// ParseExhibitNumber извлекает номер экспоната из "7", "Exhibit 7", " exhibit  7 ".
// Значение без цифр даёт 0 (см. model.ParseExhibitNumber).
func ParseExhibitNumber(raw string) int {
	return model.ParseExhibitNumber(raw)
}

// scopeKey — строковое представление дела ("" — глобально).
func scopeKey(scope *string) string {
	if scope == nil {
		return ""
	}
	return *scope
}
