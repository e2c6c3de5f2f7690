package service

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/iamtinman67/claim-manager/evidence-module/internal/repository"
)

// seedScope создаёт n записей дела без позиций и возвращает их ID.
func seedScope(gw *mockGateway, scope string, n int) []string {
	out := make([]string, n)
	for i := range n {
		out[i] = gw.seed(&repository.RawRecord{ScopeID: strPtr(scope), Name: "doc"}).ID
	}
	return out
}

func listIDs(t *testing.T, reg *EvidenceRegistry, scope string) []string {
	t.Helper()
	list, err := reg.List(context.Background(), &scope)
	if err != nil {
		t.Fatalf("List() ошибка: %v", err)
	}
	out := make([]string, len(list))
	for i, r := range list {
		out[i] = r.ID
	}
	return out
}

// TestReorder_PreservesSuppliedOrder — reorder([id3, id1, id2]) → list [id3, id1, id2].
func TestReorder_PreservesSuppliedOrder(t *testing.T) {
	ctx := context.Background()
	gw := newMockGateway()
	reg := newTestRegistry(gw)
	id := seedScope(gw, "claim-1", 3)

	want := []string{id[2], id[0], id[1]}
	if err := reg.Reorder(ctx, "claim-1", want); err != nil {
		t.Fatalf("Reorder() ошибка: %v", err)
	}
	if got := listIDs(t, reg, "claim-1"); !slices.Equal(got, want) {
		t.Errorf("List() = %v, ожидается %v", got, want)
	}

	// display_order = length - index
	for i, rid := range want {
		rec, _ := gw.Get(ctx, rid)
		if rec.DisplayOrder == nil || *rec.DisplayOrder != len(want)-i {
			t.Errorf("%s: displayOrder = %v, ожидается %d", rid, rec.DisplayOrder, len(want)-i)
		}
	}
}

// TestReorder_PartialList — переданные записи встают перед остальными,
// остальные не изменяются.
func TestReorder_PartialList(t *testing.T) {
	ctx := context.Background()
	gw := newMockGateway()
	reg := newTestRegistry(gw)

	a := gw.seed(&repository.RawRecord{ScopeID: strPtr("claim-1"), Name: "a", DisplayOrder: intPtr(5)}).ID
	b := gw.seed(&repository.RawRecord{ScopeID: strPtr("claim-1"), Name: "b", DisplayOrder: intPtr(4)}).ID
	c := gw.seed(&repository.RawRecord{ScopeID: strPtr("claim-1"), Name: "c"}).ID
	d := gw.seed(&repository.RawRecord{ScopeID: strPtr("claim-1"), Name: "d", DisplayOrder: intPtr(1)}).ID

	if err := reg.Reorder(ctx, "claim-1", []string{d, c}); err != nil {
		t.Fatalf("Reorder() ошибка: %v", err)
	}

	want := []string{d, c, a, b}
	if got := listIDs(t, reg, "claim-1"); !slices.Equal(got, want) {
		t.Errorf("List() = %v, ожидается %v", got, want)
	}
	recA, _ := gw.Get(ctx, a)
	if *recA.DisplayOrder != 5 {
		t.Errorf("непереданная запись изменена: displayOrder = %d", *recA.DisplayOrder)
	}
}

func TestReorder_Validation(t *testing.T) {
	gw := newMockGateway()
	id := seedScope(gw, "claim-1", 2)
	other := seedScope(gw, "claim-2", 1)
	m := newTestManager(gw, 0)

	tests := []struct {
		name  string
		scope string
		ids   []string
	}{
		{"пустое дело", "", id},
		{"пустой список", "claim-1", nil},
		{"повтор ID", "claim-1", []string{id[0], id[0]}},
		{"запись другого дела", "claim-1", []string{id[0], other[0]}},
		{"неизвестная запись", "claim-1", []string{"missing"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw.patchCalls = nil
			err := m.Reorder(context.Background(), tt.scope, tt.ids)
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("ожидалась ErrValidation, получено: %v", err)
			}
			if len(gw.patchCalls) != 0 {
				t.Errorf("запись выполнена до валидации: %v", gw.patchCalls)
			}
		})
	}
}

func TestReorder_UsesAtomicWriter(t *testing.T) {
	gw := &atomicGateway{mockGateway: newMockGateway()}
	id := seedScope(gw.mockGateway, "claim-1", 3)
	m := newTestManager(gw, 2)

	if err := m.Reorder(context.Background(), "claim-1", []string{id[1], id[2], id[0]}); err != nil {
		t.Fatalf("Reorder() ошибка: %v", err)
	}
	if gw.calls != 1 {
		t.Errorf("SetDisplayOrders вызван %d раз, ожидается 1", gw.calls)
	}
	if len(gw.patchCalls) != 0 {
		t.Errorf("последовательная запись при атомарном хранилище: %v", gw.patchCalls)
	}
}

func TestReorder_AtomicWriterFailure(t *testing.T) {
	gw := &atomicGateway{mockGateway: newMockGateway()}
	id := seedScope(gw.mockGateway, "claim-1", 2)
	gw.setFn = func(context.Context, string, map[string]int) error {
		return errors.New("serialization failure")
	}
	m := newTestManager(gw, 2)

	err := m.Reorder(context.Background(), "claim-1", id)
	var werr *WriteError
	if !errors.As(err, &werr) {
		t.Fatalf("ожидалась *WriteError, получено: %v", err)
	}
	if werr.Op != "reorder" || werr.Field != FieldDisplayOrder {
		t.Errorf("WriteError = %+v", werr)
	}
	if errors.Is(err, ErrPartialReorder) {
		t.Error("атомарная ошибка не должна быть частичной")
	}
}

func TestReorder_RetriesTransientFailure(t *testing.T) {
	gw := newMockGateway()
	id := seedScope(gw, "claim-1", 2)

	failures := map[string]int{id[0]: 2}
	gw.patchFn = func(ctx context.Context, rid string, p repository.Patch) (*repository.RawRecord, error) {
		if failures[rid] > 0 {
			failures[rid]--
			return nil, errors.New("timeout")
		}
		return gw.MemoryGateway.Patch(ctx, rid, p)
	}
	m := newTestManager(gw, 2)

	if err := m.Reorder(context.Background(), "claim-1", id); err != nil {
		t.Fatalf("Reorder() ошибка после повторов: %v", err)
	}
	// 3 попытки для id[0] + 1 для id[1]
	if len(gw.patchCalls) != 4 {
		t.Errorf("вызовов Patch = %d, ожидается 4", len(gw.patchCalls))
	}
}

func TestReorder_PartialFailure(t *testing.T) {
	ctx := context.Background()
	gw := newMockGateway()
	id := seedScope(gw, "claim-1", 3)

	gw.patchFn = func(ctx context.Context, rid string, p repository.Patch) (*repository.RawRecord, error) {
		if rid == id[1] {
			return nil, errors.New("connection reset")
		}
		return gw.MemoryGateway.Patch(ctx, rid, p)
	}
	m := newTestManager(gw, 1)

	err := m.Reorder(ctx, "claim-1", []string{id[2], id[1], id[0]})

	var perr *PartialReorderError
	if !errors.As(err, &perr) {
		t.Fatalf("ожидалась *PartialReorderError, получено: %v", err)
	}
	if !errors.Is(err, ErrPartialReorder) {
		t.Error("errors.Is(err, ErrPartialReorder) = false")
	}
	if !slices.Equal(perr.Updated, []string{id[2], id[0]}) {
		t.Errorf("Updated = %v, ожидается [%s %s]", perr.Updated, id[2], id[0])
	}
	if !slices.Equal(perr.Failed, []string{id[1]}) {
		t.Errorf("Failed = %v, ожидается [%s]", perr.Failed, id[1])
	}
	if !IsRetryable(err) {
		t.Error("частичная ошибка должна быть retryable")
	}

	// Повтор с тем же списком после восстановления доводит порядок до целевого
	gw.patchFn = nil
	reg := newTestRegistry(gw)
	if err := reg.Reorder(ctx, "claim-1", []string{id[2], id[1], id[0]}); err != nil {
		t.Fatalf("повторный Reorder() ошибка: %v", err)
	}
	if got := listIDs(t, reg, "claim-1"); !slices.Equal(got, []string{id[2], id[1], id[0]}) {
		t.Errorf("List() после повтора = %v", got)
	}
}

func TestReorder_NotFoundIsNotRetried(t *testing.T) {
	gw := newMockGateway()
	id := seedScope(gw, "claim-1", 1)
	gw.patchFn = func(context.Context, string, repository.Patch) (*repository.RawRecord, error) {
		return nil, repository.ErrNotFound
	}
	m := newTestManager(gw, 3)

	err := m.Reorder(context.Background(), "claim-1", id)
	if !errors.Is(err, ErrPartialReorder) {
		t.Fatalf("ожидалась ErrPartialReorder, получено: %v", err)
	}
	if len(gw.patchCalls) != 1 {
		t.Errorf("вызовов Patch = %d, ожидается 1 (без повторов)", len(gw.patchCalls))
	}
}

func TestReorder_FetchError(t *testing.T) {
	gw := newMockGateway()
	gw.fetchFn = func(context.Context, repository.Filter) ([]*repository.RawRecord, error) {
		return nil, errors.New("down")
	}
	m := newTestManager(gw, 0)

	err := m.Reorder(context.Background(), "claim-1", []string{"x"})
	if !errors.Is(err, ErrFetchFailed) {
		t.Errorf("ожидалась ErrFetchFailed, получено: %v", err)
	}
}

func TestMoveID(t *testing.T) {
	base := []string{"a", "b", "c", "d"}

	tests := []struct {
		name     string
		from, to int
		want     []string
	}{
		{"вниз", 0, 2, []string{"b", "c", "a", "d"}},
		{"вверх", 3, 1, []string{"a", "d", "b", "c"}},
		{"в конец", 1, 3, []string{"a", "c", "d", "b"}},
		{"на место", 2, 2, []string{"a", "b", "c", "d"}},
		{"вне диапазона", 5, 0, []string{"a", "b", "c", "d"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MoveID(base, tt.from, tt.to)
			if !slices.Equal(got, tt.want) {
				t.Errorf("MoveID(%d, %d) = %v, ожидается %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
	if !slices.Equal(base, []string{"a", "b", "c", "d"}) {
		t.Errorf("исходный список изменён: %v", base)
	}
}

func TestMove(t *testing.T) {
	ctx := context.Background()
	gw := newMockGateway()
	reg := newTestRegistry(gw)
	seedScope(gw, "claim-1", 3)
	other := seedScope(gw, "claim-2", 1)

	before := listIDs(t, reg, "claim-1")
	if err := reg.Move(ctx, "claim-1", before[2], 0); err != nil {
		t.Fatalf("Move() ошибка: %v", err)
	}
	want := []string{before[2], before[0], before[1]}
	if got := listIDs(t, reg, "claim-1"); !slices.Equal(got, want) {
		t.Errorf("List() = %v, ожидается %v", got, want)
	}

	tests := []struct {
		name     string
		scope    string
		id       string
		position int
	}{
		{"пустое дело", "", want[0], 0},
		{"чужая запись", "claim-1", other[0], 0},
		{"позиция за концом", "claim-1", want[0], 3},
		{"отрицательная позиция", "claim-1", want[0], -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := reg.Move(ctx, tt.scope, tt.id, tt.position); !errors.Is(err, ErrValidation) {
				t.Errorf("ожидалась ErrValidation, получено %v", err)
			}
		})
	}
}
