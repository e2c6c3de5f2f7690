// ordering.go — ручной порядок доказательств внутри дела.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/iamtinman67/claim-manager/evidence-module/internal/repository"
)

var reorderTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "em_reorder_total",
	Help: "Количество операций изменения порядка по результату (ok, partial, failed).",
}, []string{"result"})

// DisplayOrderManager записывает позиции displayOrder по списку ID.
type DisplayOrderManager struct {
	gw      repository.EvidenceGateway
	retries int
	// newBackOff — пауза между повторами одной записи
	newBackOff func() backoff.BackOff
	logger     *slog.Logger
}

// NewDisplayOrderManager создаёт Order Manager.
// retries — количество повторов каждой записи позиции при последовательной записи.
func NewDisplayOrderManager(gw repository.EvidenceGateway, retries int, logger *slog.Logger) *DisplayOrderManager {
	return &DisplayOrderManager{
		gw:      gw,
		retries: retries,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 50 * time.Millisecond
			b.MaxInterval = time.Second
			return b
		},
		logger: logger.With(slog.String("component", "display_order")),
	}
}

// Reorder назначает записям дела позиции в порядке orderedIDs: первая запись
// получает наибольший displayOrder. Записи дела, не вошедшие в список, не меняются;
// переданные записи встают перед ними.
//
// Если хранилище поддерживает DisplayOrderWriter, позиции пишутся атомарно.
// Иначе каждая запись пишется отдельно с повторами; при оставшихся ошибках
// возвращается *PartialReorderError.
func (m *DisplayOrderManager) Reorder(ctx context.Context, scope string, orderedIDs []string) error {
	if scope == "" {
		return validationErrorf(FieldScopeID, "дело не указано")
	}
	if len(orderedIDs) == 0 {
		return validationErrorf("ordered_ids", "список пуст")
	}
	seen := make(map[string]struct{}, len(orderedIDs))
	for _, id := range orderedIDs {
		if _, dup := seen[id]; dup {
			return validationErrorf("ordered_ids", "запись %s указана повторно", id)
		}
		seen[id] = struct{}{}
	}

	records, err := m.gw.Fetch(ctx, repository.Filter{ScopeID: &scope})
	if err != nil {
		reorderTotal.WithLabelValues("failed").Inc()
		return &FetchError{Scope: scope, Err: err}
	}

	current := make(map[string]*int, len(records))
	base := 0
	for _, rec := range records {
		current[rec.ID] = rec.DisplayOrder
		if _, supplied := seen[rec.ID]; !supplied && rec.DisplayOrder != nil {
			base = max(base, *rec.DisplayOrder)
		}
	}
	for _, id := range orderedIDs {
		if _, ok := current[id]; !ok {
			return validationErrorf("ordered_ids", "запись %s не принадлежит делу %s", id, scope)
		}
	}

	orders := assignDisplayOrders(orderedIDs, base)

	if writer, ok := m.gw.(repository.DisplayOrderWriter); ok {
		if err := writer.SetDisplayOrders(ctx, scope, orders); err != nil {
			reorderTotal.WithLabelValues("failed").Inc()
			return &WriteError{Op: "reorder", Field: FieldDisplayOrder, Err: err}
		}
		reorderTotal.WithLabelValues("ok").Inc()
		m.logger.Debug("Порядок записан атомарно",
			slog.String("scope_id", scope),
			slog.Int("count", len(orders)),
		)
		return nil
	}

	return m.writeSequential(ctx, scope, orderedIDs, orders, current)
}

// writeSequential пишет позиции по одной. Запись, уже имеющая целевую позицию,
// считается обновлённой без обращения к хранилищу.
func (m *DisplayOrderManager) writeSequential(
	ctx context.Context,
	scope string,
	orderedIDs []string,
	orders map[string]int,
	current map[string]*int,
) error {
	var updated, failed []string
	var lastErr error

	for _, id := range orderedIDs {
		target := orders[id]
		if cur := current[id]; cur != nil && *cur == target {
			updated = append(updated, id)
			continue
		}
		if ctx.Err() != nil {
			failed = append(failed, id)
			lastErr = ctx.Err()
			continue
		}

		err := m.writeOne(ctx, id, target)
		if err != nil {
			failed = append(failed, id)
			lastErr = err
			m.logger.Warn("Не удалось записать позицию",
				slog.String("scope_id", scope),
				slog.String("evidence_id", id),
				slog.Int("display_order", target),
				slog.String("error", err.Error()),
			)
			continue
		}
		updated = append(updated, id)
	}

	if len(failed) == 0 {
		reorderTotal.WithLabelValues("ok").Inc()
		return nil
	}
	if len(updated) == 0 {
		reorderTotal.WithLabelValues("failed").Inc()
	} else {
		reorderTotal.WithLabelValues("partial").Inc()
	}
	return &PartialReorderError{Scope: scope, Updated: updated, Failed: failed, Err: lastErr}
}

// writeOne записывает позицию одной записи с повторами.
// Отсутствующая запись не повторяется.
func (m *DisplayOrderManager) writeOne(ctx context.Context, id string, order int) error {
	op := func() error {
		_, err := m.gw.Patch(ctx, id, repository.Patch{DisplayOrder: repository.Set(order)})
		if errors.Is(err, repository.ErrNotFound) {
			return backoff.Permanent(err)
		}
		return err
	}

	b := backoff.WithContext(backoff.WithMaxRetries(m.newBackOff(), uint64(m.retries)), ctx)
	return backoff.Retry(op, b)
}

// assignDisplayOrders вычисляет позиции: displayOrder = base + len - index.
func assignDisplayOrders(orderedIDs []string, base int) map[string]int {
	orders := make(map[string]int, len(orderedIDs))
	for i, id := range orderedIDs {
		orders[id] = base + len(orderedIDs) - i
	}
	return orders
}

// MoveID переносит элемент с индекса from на индекс to (семантика splice):
// результат drag-and-drop для передачи в Reorder. Индексы вне диапазона
// возвращают копию без изменений.
func MoveID(ids []string, from, to int) []string {
	out := make([]string, len(ids))
	copy(out, ids)
	if from < 0 || from >= len(out) || to < 0 || to >= len(out) || from == to {
		return out
	}

	moved := out[from]
	out = append(out[:from], out[from+1:]...)
	out = append(out[:to], append([]string{moved}, out[to:]...)...)
	return out
}
