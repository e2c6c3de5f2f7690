// timeout.go — ограничение времени каждого обращения к хранилищу.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/iamtinman67/claim-manager/evidence-module/internal/repository"
)

// WithStoreTimeout оборачивает gateway: каждый вызов выполняется с таймаутом d.
// Превышение таймаута возвращается как ErrStoreTimeout (retryable).
// Если gateway поддерживает атомарную запись позиций, обёртка её сохраняет.
func WithStoreTimeout(gw repository.EvidenceGateway, d time.Duration) repository.EvidenceGateway {
	if d <= 0 {
		return gw
	}
	base := timeoutGateway{gw: gw, timeout: d}
	if w, ok := gw.(repository.DisplayOrderWriter); ok {
		return &timeoutOrderGateway{timeoutGateway: base, writer: w}
	}
	return &base
}

type timeoutGateway struct {
	gw      repository.EvidenceGateway
	timeout time.Duration
}

func (g *timeoutGateway) Fetch(ctx context.Context, filter repository.Filter) ([]*repository.RawRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	recs, err := g.gw.Fetch(ctx, filter)
	return recs, g.wrap(ctx, "fetch", err)
}

func (g *timeoutGateway) Get(ctx context.Context, id string) (*repository.RawRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	rec, err := g.gw.Get(ctx, id)
	return rec, g.wrap(ctx, "get", err)
}

func (g *timeoutGateway) Insert(ctx context.Context, rec *repository.RawRecord) (*repository.RawRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	created, err := g.gw.Insert(ctx, rec)
	return created, g.wrap(ctx, "insert", err)
}

func (g *timeoutGateway) Patch(ctx context.Context, id string, p repository.Patch) (*repository.RawRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	rec, err := g.gw.Patch(ctx, id, p)
	return rec, g.wrap(ctx, "patch", err)
}

func (g *timeoutGateway) Delete(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	return g.wrap(ctx, "delete", g.gw.Delete(ctx, id))
}

func (g *timeoutGateway) ExhibitHighWater(ctx context.Context, scope *string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	mark, err := g.gw.ExhibitHighWater(ctx, scope)
	return mark, g.wrap(ctx, "exhibit_high_water", err)
}

// wrap заменяет ошибку истёкшего дедлайна на ErrStoreTimeout.
func (g *timeoutGateway) wrap(ctx context.Context, op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s (%s): %w", ErrStoreTimeout, op, g.timeout, err)
	}
	return err
}

type timeoutOrderGateway struct {
	timeoutGateway
	writer repository.DisplayOrderWriter
}

func (g *timeoutOrderGateway) SetDisplayOrders(ctx context.Context, scopeID string, orders map[string]int) error {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	return g.wrap(ctx, "set_display_orders", g.writer.SetDisplayOrders(ctx, scopeID, orders))
}
