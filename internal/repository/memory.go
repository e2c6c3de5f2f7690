package repository

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/iamtinman67/claim-manager/evidence-module/internal/domain/model"
)

// MemoryGateway — in-memory реализация EvidenceGateway.
// Используется при EM_STORAGE_BACKEND=memory и в unit-тестах сервисов.
// Атомарной записи позиций не поддерживает: DisplayOrderWriter не реализован.
type MemoryGateway struct {
	mu      sync.RWMutex
	records map[string]*RawRecord
	// order — ID в порядке создания
	order []string
	// highWater — наибольший сохранённый номер экспоната по делу;
	// globalHighWater — по всем записям
	highWater       map[string]int
	globalHighWater int
	now             func() time.Time
}

// NewMemoryGateway создаёт пустое in-memory хранилище.
func NewMemoryGateway() *MemoryGateway {
	return &MemoryGateway{
		records:   make(map[string]*RawRecord),
		highWater: make(map[string]int),
		now:       time.Now,
	}
}

// Fetch возвращает копии записей в порядке создания.
func (g *MemoryGateway) Fetch(ctx context.Context, filter Filter) ([]*RawRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	var result []*RawRecord
	for _, id := range g.order {
		rec := g.records[id]
		if filter.ScopeID != nil && (rec.ScopeID == nil || *rec.ScopeID != *filter.ScopeID) {
			continue
		}
		result = append(result, rec.clone())
	}
	// С лимитом — самые новые записи, по-прежнему в порядке создания
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[len(result)-filter.Limit:]
	}
	return result, nil
}

// Get возвращает копию записи или ErrNotFound.
func (g *MemoryGateway) Get(ctx context.Context, id string) (*RawRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	rec, ok := g.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	return rec.clone(), nil
}

// Insert сохраняет копию записи с новым UUID и временем создания.
func (g *MemoryGateway) Insert(ctx context.Context, rec *RawRecord) (*RawRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	stored := rec.clone()
	stored.ID = uuid.New().String()
	stored.CreatedAt = g.now().UTC()
	stored.UpdatedAt = stored.CreatedAt

	g.records[stored.ID] = stored
	g.order = append(g.order, stored.ID)
	g.raiseHighWater(stored)
	return stored.clone(), nil
}

// Patch применяет патч к записи.
func (g *MemoryGateway) Patch(ctx context.Context, id string, p Patch) (*RawRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	rec, ok := g.records[id]
	if !ok {
		return nil, ErrNotFound
	}

	if p.ScopeID != nil {
		p.ScopeID.apply(&rec.ScopeID)
	}
	if p.Name != nil {
		rec.Name = *p.Name
	}
	if p.Description != nil {
		p.Description.apply(&rec.Description)
	}
	if p.ExhibitNumber != nil {
		p.ExhibitNumber.apply(&rec.ExhibitNumber)
	}
	if p.DisplayOrder != nil {
		p.DisplayOrder.apply(&rec.DisplayOrder)
	}
	if p.NumberOfPages != nil {
		p.NumberOfPages.apply(&rec.NumberOfPages)
	}
	if p.DateSubmitted != nil {
		p.DateSubmitted.apply(&rec.DateSubmitted)
	}
	if p.FileName != nil {
		p.FileName.apply(&rec.FileName)
	}
	if p.FileURL != nil {
		p.FileURL.apply(&rec.FileURL)
	}
	rec.UpdatedAt = g.now().UTC()
	if p.ExhibitNumber != nil || p.ScopeID != nil {
		g.raiseHighWater(rec)
	}

	return rec.clone(), nil
}

// Delete удаляет запись.
func (g *MemoryGateway) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.records[id]; !ok {
		return ErrNotFound
	}
	delete(g.records, id)
	for i, oid := range g.order {
		if oid == id {
			g.order = append(g.order[:i], g.order[i+1:]...)
			break
		}
	}
	return nil
}

// ExhibitHighWater возвращает наибольший сохранённый номер экспоната дела.
func (g *MemoryGateway) ExhibitHighWater(ctx context.Context, scope *string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	if scope == nil {
		return g.globalHighWater, nil
	}
	return g.highWater[*scope], nil
}

// raiseHighWater поднимает отметки дела записи и глобальную. Вызывается под g.mu.
func (g *MemoryGateway) raiseHighWater(rec *RawRecord) {
	if rec.ExhibitNumber == nil {
		return
	}
	n := model.ParseExhibitNumber(*rec.ExhibitNumber)
	if n <= 0 {
		return
	}
	g.globalHighWater = max(g.globalHighWater, n)
	if rec.ScopeID != nil {
		g.highWater[*rec.ScopeID] = max(g.highWater[*rec.ScopeID], n)
	}
}

// Len возвращает количество записей.
func (g *MemoryGateway) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.records)
}

// clone возвращает глубокую копию записи.
func (r *RawRecord) clone() *RawRecord {
	c := *r
	c.ScopeID = clonePtr(r.ScopeID)
	c.Description = clonePtr(r.Description)
	c.ExhibitNumber = clonePtr(r.ExhibitNumber)
	c.DisplayOrder = clonePtr(r.DisplayOrder)
	c.NumberOfPages = clonePtr(r.NumberOfPages)
	c.DateSubmitted = clonePtr(r.DateSubmitted)
	c.FileName = clonePtr(r.FileName)
	c.FileURL = clonePtr(r.FileURL)
	return &c
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
