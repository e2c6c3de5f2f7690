// registry.go — EvidenceRegistry: создание, изменение, удаление и упорядоченное
// чтение записей доказательств. Координирует Sequencer и Order Manager,
// инвалидирует ListCache после каждой мутации.
package service

import (
	"cmp"
	"context"
	"errors"
	"log/slog"
	"slices"

	"github.com/go-playground/validator/v10"

	"github.com/iamtinman67/claim-manager/evidence-module/internal/domain/model"
	"github.com/iamtinman67/claim-manager/evidence-module/internal/repository"
)

// EvidenceRegistry — агрегат реестра доказательств.
type EvidenceRegistry struct {
	gw        repository.EvidenceGateway
	sequencer *ExhibitSequencer
	orders    *DisplayOrderManager
	cache     *ListCache
	validate  *validator.Validate
	logger    *slog.Logger
}

// NewEvidenceRegistry создаёт реестр. cache может быть nil (без кэширования).
func NewEvidenceRegistry(
	gw repository.EvidenceGateway,
	sequencer *ExhibitSequencer,
	orders *DisplayOrderManager,
	cache *ListCache,
	logger *slog.Logger,
) *EvidenceRegistry {
	return &EvidenceRegistry{
		gw:        gw,
		sequencer: sequencer,
		orders:    orders,
		cache:     cache,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		logger:    logger.With(slog.String("component", "evidence_registry")),
	}
}

// Add создаёт запись в деле scope (nil — без дела).
// Без явного display_order запись встаёт первой: max(displayOrder в деле)+1.
// Номер экспоната сохраняется как передан, без проверки уникальности.
func (r *EvidenceRegistry) Add(ctx context.Context, scope *string, fields Fields) (*model.EvidenceRecord, error) {
	if _, ok := fields[FieldScopeID]; ok {
		return nil, validationErrorf(FieldScopeID, "дело задаётся параметром scope")
	}
	scope = emptyToNil(scope)

	in, err := coerceFields(fields)
	if err != nil {
		return nil, err
	}
	name := ""
	if in.patch.Name != nil {
		name = *in.patch.Name
	}
	if err := validateStruct(r.validate, &createRules{Name: name, Common: in.rules()}); err != nil {
		return nil, err
	}

	rec := &repository.RawRecord{
		ScopeID:       scope,
		Name:          name,
		Description:   valuePtr(in.patch.Description),
		ExhibitNumber: valuePtr(in.patch.ExhibitNumber),
		DisplayOrder:  valuePtr(in.patch.DisplayOrder),
		NumberOfPages: valuePtr(in.patch.NumberOfPages),
		DateSubmitted: valuePtr(in.patch.DateSubmitted),
		FileName:      valuePtr(in.patch.FileName),
		FileURL:       valuePtr(in.patch.FileURL),
	}
	if rec.NumberOfPages == nil {
		pages := 1
		rec.NumberOfPages = &pages
	}
	// Ключ display_order без значения (null) — запись без позиции
	if in.patch.DisplayOrder == nil {
		next, err := r.nextDisplayOrder(ctx, scope)
		if err != nil {
			return nil, err
		}
		rec.DisplayOrder = &next
	}

	created, err := r.gw.Insert(ctx, rec)
	r.invalidate(scope)
	if err != nil {
		return nil, &WriteError{Op: "add", Err: err}
	}

	r.logger.Info("Доказательство добавлено",
		slog.String("evidence_id", created.ID),
		slog.String("scope_id", scopeKey(scope)),
	)
	return toModel(created), nil
}

// Update применяет частичное изменение полей.
// Смена дела переносит запись в начало нового дела (max+1 там),
// номер экспоната сохраняется.
func (r *EvidenceRegistry) Update(ctx context.Context, id string, fields Fields) (*model.EvidenceRecord, error) {
	in, err := coerceFields(fields)
	if err != nil {
		return nil, err
	}
	if err := validateStruct(r.validate, &patchRules{Name: in.patch.Name, Common: in.rules()}); err != nil {
		return nil, err
	}

	existing, err := r.gw.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, &FetchError{Err: err}
	}

	patch := in.patch
	newScope := existing.ScopeID
	if patch.ScopeID != nil {
		newScope = valuePtr(patch.ScopeID)
		if !sameScope(existing.ScopeID, newScope) && patch.DisplayOrder == nil {
			next, err := r.nextDisplayOrder(ctx, newScope)
			if err != nil {
				return nil, err
			}
			patch.DisplayOrder = repository.Set(next)
		}
	}

	updated, err := r.gw.Patch(ctx, id, patch)
	r.invalidate(existing.ScopeID, newScope)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, &WriteError{Op: "update", RecordID: id, Field: changedFields(patch), Err: err}
	}

	r.logger.Info("Доказательство обновлено",
		slog.String("evidence_id", id),
		slog.String("fields", changedFields(patch)),
	)
	return toModel(updated), nil
}

// Remove физически удаляет запись. Номера экспонатов не перенумеровываются.
func (r *EvidenceRegistry) Remove(ctx context.Context, id string) error {
	existing, err := r.gw.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotFound
		}
		return &FetchError{Err: err}
	}

	err = r.gw.Delete(ctx, id)
	r.invalidate(existing.ScopeID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotFound
		}
		return &WriteError{Op: "remove", RecordID: id, Err: err}
	}

	r.logger.Info("Доказательство удалено",
		slog.String("evidence_id", id),
		slog.String("scope_id", scopeKey(existing.ScopeID)),
	)
	return nil
}

// Get возвращает запись по ID.
func (r *EvidenceRegistry) Get(ctx context.Context, id string) (*model.EvidenceRecord, error) {
	rec, err := r.gw.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, &FetchError{Err: err}
	}
	return toModel(rec), nil
}

// List возвращает записи дела (scope == nil — все записи) в порядке представления.
// Ошибка чтения возвращается как *FetchError, пустой список при ошибке не возвращается.
func (r *EvidenceRegistry) List(ctx context.Context, scope *string) ([]*model.EvidenceRecord, error) {
	scope = emptyToNil(scope)
	var gen uint64
	if r.cache != nil {
		if list, ok := r.cache.Get(scope); ok {
			return list, nil
		}
		gen = r.cache.Generation(scope)
	}

	raw, err := r.gw.Fetch(ctx, repository.Filter{ScopeID: scope})
	if err != nil {
		return nil, &FetchError{Scope: scopeKey(scope), Err: err}
	}

	list := make([]*model.EvidenceRecord, 0, len(raw))
	for _, rec := range raw {
		list = append(list, toModel(rec))
	}
	SortRecords(list)

	// Мутация во время чтения: список не кэшируется, следующий List перечитает хранилище
	if r.cache != nil {
		r.cache.SetIfGeneration(scope, gen, list)
	}
	return list, nil
}

// Bundle возвращает упорядоченные записи дела с номерами страниц в бандле.
func (r *EvidenceRegistry) Bundle(ctx context.Context, scope *string) ([]model.BundleEntry, error) {
	list, err := r.List(ctx, scope)
	if err != nil {
		return nil, err
	}
	return Project(list), nil
}

// Reorder задаёт ручной порядок записей дела (см. DisplayOrderManager.Reorder).
// Кэш дела инвалидируется и при ошибке: часть позиций могла быть записана.
func (r *EvidenceRegistry) Reorder(ctx context.Context, scope string, orderedIDs []string) error {
	err := r.orders.Reorder(ctx, scope, orderedIDs)
	if !errors.Is(err, ErrValidation) {
		r.invalidate(&scope)
	}
	if err != nil {
		return err
	}

	r.logger.Info("Порядок доказательств изменён",
		slog.String("scope_id", scope),
		slog.Int("count", len(orderedIDs)),
	)
	return nil
}

// Move переносит запись дела на позицию position (0 — первая) в текущем
// порядке представления и сохраняет полученный порядок через Reorder.
func (r *EvidenceRegistry) Move(ctx context.Context, scope, id string, position int) error {
	if scope == "" {
		return validationErrorf(FieldScopeID, "дело не задано")
	}
	list, err := r.List(ctx, &scope)
	if err != nil {
		return err
	}

	ids := make([]string, len(list))
	from := -1
	for i, rec := range list {
		ids[i] = rec.ID
		if rec.ID == id {
			from = i
		}
	}
	if from < 0 {
		return validationErrorf("evidence_id", "запись %s не принадлежит делу %s", id, scope)
	}
	if position < 0 || position >= len(ids) {
		return validationErrorf("position", "позиция %d вне диапазона [0, %d]", position, len(ids)-1)
	}

	return r.Reorder(ctx, scope, MoveID(ids, from, position))
}

// SuggestExhibitNumber — подсказка номера экспоната (см. ExhibitSequencer.Suggest).
func (r *EvidenceRegistry) SuggestExhibitNumber(ctx context.Context, scope *string) Suggestion {
	return r.sequencer.Suggest(ctx, emptyToNil(scope))
}

// SuggestExhibitNumberAfter — подсказка после использования номера displayed.
func (r *EvidenceRegistry) SuggestExhibitNumberAfter(ctx context.Context, scope *string, displayed string) Suggestion {
	return r.sequencer.SuggestAfter(ctx, emptyToNil(scope), displayed)
}

// nextDisplayOrder возвращает max(displayOrder в деле, 0)+1.
func (r *EvidenceRegistry) nextDisplayOrder(ctx context.Context, scope *string) (int, error) {
	records, err := r.gw.Fetch(ctx, repository.Filter{ScopeID: scope})
	if err != nil {
		return 0, &FetchError{Scope: scopeKey(scope), Err: err}
	}
	highest := 0
	for _, rec := range records {
		if rec.DisplayOrder != nil {
			highest = max(highest, *rec.DisplayOrder)
		}
	}
	return highest + 1, nil
}

func (r *EvidenceRegistry) invalidate(scopes ...*string) {
	if r.cache != nil {
		r.cache.Invalidate(scopes...)
	}
}

// SortRecords сортирует записи в порядке представления одним компаратором:
// displayOrder по убыванию; записи с позицией раньше записей без неё;
// среди записей без позиции — по createdAt; последний tiebreak — ID.
func SortRecords(records []*model.EvidenceRecord) {
	slices.SortStableFunc(records, compareRecords)
}

func compareRecords(a, b *model.EvidenceRecord) int {
	switch {
	case a.DisplayOrder != nil && b.DisplayOrder != nil:
		if c := cmp.Compare(*b.DisplayOrder, *a.DisplayOrder); c != 0 {
			return c
		}
	case a.DisplayOrder != nil:
		return -1
	case b.DisplayOrder != nil:
		return 1
	default:
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
	}
	return cmp.Compare(a.ID, b.ID)
}

// toModel приводит запись хранилища к строгому типу.
func toModel(raw *repository.RawRecord) *model.EvidenceRecord {
	rec := &model.EvidenceRecord{
		ID:            raw.ID,
		ScopeID:       raw.ScopeID,
		Name:          raw.Name,
		Description:   raw.Description,
		ExhibitLabel:  raw.ExhibitNumber,
		DisplayOrder:  raw.DisplayOrder,
		NumberOfPages: 1,
		DateSubmitted: raw.DateSubmitted,
		CreatedAt:     raw.CreatedAt,
		UpdatedAt:     raw.UpdatedAt,
	}
	if raw.ExhibitNumber != nil {
		if n := ParseExhibitNumber(*raw.ExhibitNumber); n > 0 {
			rec.ExhibitNumber = &n
		}
	}
	if raw.NumberOfPages != nil {
		rec.NumberOfPages = *raw.NumberOfPages
	}
	if raw.FileName != nil || raw.FileURL != nil {
		rec.File = &model.FileReference{}
		if raw.FileName != nil {
			rec.File.Name = *raw.FileName
		}
		if raw.FileURL != nil {
			rec.File.URL = *raw.FileURL
		}
	}
	return rec
}

func sameScope(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func emptyToNil(scope *string) *string {
	if scope != nil && *scope == "" {
		return nil
	}
	return scope
}
