package service

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/cenkalti/backoff/v4"

	"github.com/iamtinman67/claim-manager/evidence-module/internal/repository"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }

// mockGateway — gateway поверх MemoryGateway с подменяемыми методами.
type mockGateway struct {
	*repository.MemoryGateway

	fetchFn  func(ctx context.Context, filter repository.Filter) ([]*repository.RawRecord, error)
	insertFn func(ctx context.Context, rec *repository.RawRecord) (*repository.RawRecord, error)
	patchFn  func(ctx context.Context, id string, p repository.Patch) (*repository.RawRecord, error)

	mu          sync.Mutex
	fetchCalls  []repository.Filter
	patchCalls  []string
	insertCalls int
}

func newMockGateway() *mockGateway {
	return &mockGateway{MemoryGateway: repository.NewMemoryGateway()}
}

func (m *mockGateway) Fetch(ctx context.Context, filter repository.Filter) ([]*repository.RawRecord, error) {
	m.mu.Lock()
	m.fetchCalls = append(m.fetchCalls, filter)
	m.mu.Unlock()
	if m.fetchFn != nil {
		return m.fetchFn(ctx, filter)
	}
	return m.MemoryGateway.Fetch(ctx, filter)
}

func (m *mockGateway) Insert(ctx context.Context, rec *repository.RawRecord) (*repository.RawRecord, error) {
	m.mu.Lock()
	m.insertCalls++
	m.mu.Unlock()
	if m.insertFn != nil {
		return m.insertFn(ctx, rec)
	}
	return m.MemoryGateway.Insert(ctx, rec)
}

func (m *mockGateway) Patch(ctx context.Context, id string, p repository.Patch) (*repository.RawRecord, error) {
	m.mu.Lock()
	m.patchCalls = append(m.patchCalls, id)
	m.mu.Unlock()
	if m.patchFn != nil {
		return m.patchFn(ctx, id, p)
	}
	return m.MemoryGateway.Patch(ctx, id, p)
}

func (m *mockGateway) fetchCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.fetchCalls)
}

// seed создаёт запись напрямую в хранилище.
func (m *mockGateway) seed(rec *repository.RawRecord) *repository.RawRecord {
	created, err := m.MemoryGateway.Insert(context.Background(), rec)
	if err != nil {
		panic(err)
	}
	return created
}

// atomicGateway — mockGateway с поддержкой DisplayOrderWriter.
type atomicGateway struct {
	*mockGateway
	setFn func(ctx context.Context, scopeID string, orders map[string]int) error
	calls int
}

func (a *atomicGateway) SetDisplayOrders(ctx context.Context, scopeID string, orders map[string]int) error {
	a.calls++
	if a.setFn != nil {
		return a.setFn(ctx, scopeID, orders)
	}
	for id, order := range orders {
		if _, err := a.MemoryGateway.Patch(ctx, id, repository.Patch{DisplayOrder: repository.Set(order)}); err != nil {
			return err
		}
	}
	return nil
}

// newTestManager создаёт Order Manager без пауз между повторами.
func newTestManager(gw repository.EvidenceGateway, retries int) *DisplayOrderManager {
	m := NewDisplayOrderManager(gw, retries, testLogger())
	m.newBackOff = func() backoff.BackOff { return &backoff.ZeroBackOff{} }
	return m
}

// newTestRegistry создаёт реестр с кэшем поверх gw.
func newTestRegistry(gw repository.EvidenceGateway) *EvidenceRegistry {
	logger := testLogger()
	return NewEvidenceRegistry(
		gw,
		NewExhibitSequencer(gw, 2000, logger),
		newTestManager(gw, 2),
		NewListCache(16, 0),
		logger,
	)
}
