package repository

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/iamtinman67/claim-manager/evidence-module/internal/domain/model"
)

// RawRecord — запись доказательства в том виде, в каком она лежит в хранилище.
// Номер экспоната хранится как текст: исторические записи содержат "Exhibit 4".
// Приведение к строгим типам выполняет сервисный слой.
type RawRecord struct {
	ID            string
	ScopeID       *string
	Name          string
	Description   *string
	ExhibitNumber *string
	DisplayOrder  *int
	NumberOfPages *int
	DateSubmitted *time.Time
	FileName      *string
	FileURL       *string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Filter — параметры выборки.
type Filter struct {
	// ScopeID — дело; nil — все записи
	ScopeID *string
	// Limit — максимум записей, берутся самые новые; <= 0 — без ограничения
	Limit int
}

// Value — новое значение nullable-поля в патче.
// Null = true означает запись NULL, V при этом игнорируется.
type Value[T any] struct {
	V    T
	Null bool
}

// Set возвращает патч-значение v.
func Set[T any](v T) *Value[T] {
	return &Value[T]{V: v}
}

// Null возвращает патч-значение NULL.
func Null[T any]() *Value[T] {
	return &Value[T]{Null: true}
}

// arg возвращает аргумент SQL-запроса (nil для NULL).
func (v *Value[T]) arg() any {
	if v.Null {
		return nil
	}
	return v.V
}

// apply записывает значение в nullable-поле записи.
func (v *Value[T]) apply(dst **T) {
	if v.Null {
		*dst = nil
		return
	}
	val := v.V
	*dst = &val
}

// Patch — изменение отдельных полей записи.
// nil-поле — не изменяется.
type Patch struct {
	ScopeID       *Value[string]
	Name          *string
	Description   *Value[string]
	ExhibitNumber *Value[string]
	DisplayOrder  *Value[int]
	NumberOfPages *Value[int]
	DateSubmitted *Value[time.Time]
	FileName      *Value[string]
	FileURL       *Value[string]
}

// IsEmpty сообщает, что патч не меняет ни одного поля.
func (p Patch) IsEmpty() bool {
	return p.ScopeID == nil && p.Name == nil && p.Description == nil &&
		p.ExhibitNumber == nil && p.DisplayOrder == nil && p.NumberOfPages == nil &&
		p.DateSubmitted == nil && p.FileName == nil && p.FileURL == nil
}

// EvidenceGateway — интерфейс Persistence Gateway для записей доказательств.
type EvidenceGateway interface {
	// Fetch возвращает записи по фильтру в порядке создания.
	Fetch(ctx context.Context, filter Filter) ([]*RawRecord, error)
	// Get возвращает запись по ID или ErrNotFound.
	Get(ctx context.Context, id string) (*RawRecord, error)
	// Insert создаёт запись; ID и CreatedAt назначает хранилище.
	Insert(ctx context.Context, rec *RawRecord) (*RawRecord, error)
	// Patch применяет патч и возвращает обновлённую запись или ErrNotFound.
	Patch(ctx context.Context, id string, p Patch) (*RawRecord, error)
	// Delete физически удаляет запись или возвращает ErrNotFound.
	Delete(ctx context.Context, id string) error
	// ExhibitHighWater возвращает наибольший номер экспоната, когда-либо
	// сохранённый в деле (scope == nil — по всем записям). Insert и Patch
	// поднимают значение; Delete его не уменьшает.
	ExhibitHighWater(ctx context.Context, scope *string) (int, error)
}

// DisplayOrderWriter — необязательная возможность хранилища:
// атомарная запись позиций нескольких записей одного дела.
// Либо применяются все позиции, либо ни одна.
type DisplayOrderWriter interface {
	SetDisplayOrders(ctx context.Context, scopeID string, orders map[string]int) error
}

// evidenceColumns — список столбцов таблицы evidence для SELECT/RETURNING.
const evidenceColumns = `id, scope_id, name, description, exhibit_number, display_order,
	number_of_pages, date_submitted, file_name, file_url, created_at, updated_at`

// EvidenceRepository — реализация EvidenceGateway и DisplayOrderWriter через pgx.
type EvidenceRepository struct {
	db DBTX
	tx *TxRunner
}

// NewEvidenceRepository создаёт PostgreSQL-репозиторий доказательств.
// tx — транзакции SetDisplayOrders и записи с отметкой номера; nil — запросы выполняются прямо в db
// (например, когда db уже является pgx.Tx).
func NewEvidenceRepository(db DBTX, tx *TxRunner) *EvidenceRepository {
	return &EvidenceRepository{db: db, tx: tx}
}

// rowScanner — общий интерфейс pgx.Row и pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*RawRecord, error) {
	rec := &RawRecord{}
	err := row.Scan(
		&rec.ID, &rec.ScopeID, &rec.Name, &rec.Description, &rec.ExhibitNumber, &rec.DisplayOrder,
		&rec.NumberOfPages, &rec.DateSubmitted, &rec.FileName, &rec.FileURL, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Fetch возвращает записи дела (или все записи) в порядке создания.
func (r *EvidenceRepository) Fetch(ctx context.Context, filter Filter) ([]*RawRecord, error) {
	query, args := buildFetchQuery(filter)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка выборки доказательств: %w", err)
	}
	defer rows.Close()

	var result []*RawRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования доказательства: %w", err)
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка итерации результатов: %w", err)
	}
	return result, nil
}

// Get возвращает запись по ID или ErrNotFound.
func (r *EvidenceRepository) Get(ctx context.Context, id string) (*RawRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM evidence WHERE id = $1`, evidenceColumns)

	rec, err := scanRecord(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isInvalidText(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения доказательства: %w", err)
	}
	return rec, nil
}

// Insert создаёт запись. id, created_at и updated_at заполняет PostgreSQL.
// Отметка номера экспоната поднимается в той же транзакции.
func (r *EvidenceRepository) Insert(ctx context.Context, rec *RawRecord) (*RawRecord, error) {
	query := fmt.Sprintf(`
		INSERT INTO evidence (scope_id, name, description, exhibit_number, display_order,
			number_of_pages, date_submitted, file_name, file_url)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING %s`, evidenceColumns)

	var created *RawRecord
	err := r.inTx(ctx, func(db DBTX) error {
		var err error
		created, err = scanRecord(db.QueryRow(ctx, query,
			rec.ScopeID, rec.Name, rec.Description, rec.ExhibitNumber, rec.DisplayOrder,
			rec.NumberOfPages, rec.DateSubmitted, rec.FileName, rec.FileURL,
		))
		if err != nil {
			return fmt.Errorf("ошибка создания доказательства: %w", err)
		}
		return raiseHighWater(ctx, db, created)
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// Patch обновляет только переданные поля; updated_at обновляется всегда.
// Изменение номера экспоната или дела поднимает отметку в той же транзакции.
func (r *EvidenceRepository) Patch(ctx context.Context, id string, p Patch) (*RawRecord, error) {
	set, args := buildPatchSet(p, 1)
	if set == "" {
		set = "updated_at = now()"
	} else {
		set += ", updated_at = now()"
	}

	query := fmt.Sprintf(`UPDATE evidence SET %s WHERE id = $%d RETURNING %s`,
		set, len(args)+1, evidenceColumns)
	args = append(args, id)

	update := func(db DBTX) (*RawRecord, error) {
		rec, err := scanRecord(db.QueryRow(ctx, query, args...))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) || isInvalidText(err) {
				return nil, ErrNotFound
			}
			return nil, fmt.Errorf("ошибка обновления доказательства %s: %w", id, err)
		}
		return rec, nil
	}

	if p.ExhibitNumber == nil && p.ScopeID == nil {
		return update(r.db)
	}

	var rec *RawRecord
	err := r.inTx(ctx, func(db DBTX) error {
		var err error
		if rec, err = update(db); err != nil {
			return err
		}
		return raiseHighWater(ctx, db, rec)
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Delete физически удаляет запись.
func (r *EvidenceRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM evidence WHERE id = $1`, id)
	if err != nil {
		if isInvalidText(err) {
			return ErrNotFound
		}
		return fmt.Errorf("ошибка удаления доказательства %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetDisplayOrders записывает позиции всех переданных записей в одной транзакции.
// Запись другого дела или отсутствующая запись откатывает всю операцию.
func (r *EvidenceRepository) SetDisplayOrders(ctx context.Context, scopeID string, orders map[string]int) error {
	if len(orders) == 0 {
		return nil
	}

	write := func(db DBTX) error {
		// Фиксированный порядок обновлений — одинаковый порядок блокировок строк
		ids := make([]string, 0, len(orders))
		for id := range orders {
			ids = append(ids, id)
		}
		slices.Sort(ids)

		for _, id := range ids {
			tag, err := db.Exec(ctx, `
				UPDATE evidence
				SET display_order = $1, updated_at = now()
				WHERE id = $2 AND scope_id = $3`,
				orders[id], id, scopeID)
			if err != nil {
				if isInvalidText(err) {
					return fmt.Errorf("%w: доказательство %s", ErrNotFound, id)
				}
				return fmt.Errorf("ошибка записи позиции %s: %w", id, err)
			}
			if tag.RowsAffected() == 0 {
				return fmt.Errorf("%w: доказательство %s в деле %s", ErrNotFound, id, scopeID)
			}
		}
		return nil
	}

	return r.inTx(ctx, write)
}

// ExhibitHighWater возвращает отметку дела из exhibit_sequences (0 — нет отметки).
func (r *EvidenceRepository) ExhibitHighWater(ctx context.Context, scope *string) (int, error) {
	var mark int
	err := r.db.QueryRow(ctx,
		`SELECT high_water FROM exhibit_sequences WHERE scope_id = $1`, highWaterKey(scope),
	).Scan(&mark)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("ошибка чтения отметки номера экспоната: %w", err)
	}
	return mark, nil
}

// inTx выполняет fn в транзакции TxRunner; без TxRunner — прямо в r.db.
func (r *EvidenceRepository) inTx(ctx context.Context, fn func(db DBTX) error) error {
	if r.tx == nil {
		return fn(r.db)
	}
	return r.tx.RunInTx(ctx, func(tx pgx.Tx) error {
		return fn(tx)
	})
}

// globalHighWaterKey — строка exhibit_sequences для всех записей.
const globalHighWaterKey = ""

func highWaterKey(scope *string) string {
	if scope == nil {
		return globalHighWaterKey
	}
	return *scope
}

// raiseHighWater поднимает отметки дела записи и глобальную до её номера экспоната.
func raiseHighWater(ctx context.Context, db DBTX, rec *RawRecord) error {
	if rec.ExhibitNumber == nil {
		return nil
	}
	n := model.ParseExhibitNumber(*rec.ExhibitNumber)
	if n <= 0 {
		return nil
	}
	query, args := buildHighWaterUpsert(rec.ScopeID, n)
	if _, err := db.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("ошибка обновления отметки номера экспоната: %w", err)
	}
	return nil
}

// buildHighWaterUpsert строит upsert отметок: глобальной и, если задано, дела.
// Отметка только растёт (GREATEST).
func buildHighWaterUpsert(scope *string, n int) (query string, args []any) {
	values := `($1, $2)`
	args = []any{globalHighWaterKey, n}
	if scope != nil && *scope != globalHighWaterKey {
		values += `, ($3, $2)`
		args = append(args, *scope)
	}
	query = `INSERT INTO exhibit_sequences (scope_id, high_water) VALUES ` + values + `
		ON CONFLICT (scope_id) DO UPDATE
		SET high_water = GREATEST(exhibit_sequences.high_water, EXCLUDED.high_water)`
	return query, args
}

// buildFetchQuery строит SELECT для Fetch.
// С лимитом выбираются самые новые записи, результат — в порядке создания.
func buildFetchQuery(filter Filter) (query string, args []any) {
	var b strings.Builder
	fmt.Fprintf(&b, `SELECT %s FROM evidence`, evidenceColumns)

	if filter.ScopeID != nil {
		args = append(args, *filter.ScopeID)
		fmt.Fprintf(&b, ` WHERE scope_id = $%d`, len(args))
	}

	if filter.Limit <= 0 {
		b.WriteString(` ORDER BY created_at, id`)
		return b.String(), args
	}

	args = append(args, filter.Limit)
	fmt.Fprintf(&b, ` ORDER BY created_at DESC, id DESC LIMIT $%d`, len(args))
	return fmt.Sprintf(`SELECT %s FROM (%s) recent ORDER BY created_at, id`,
		evidenceColumns, b.String()), args
}

// buildPatchSet строит SET-часть UPDATE и аргументы для патча.
// startArg — номер первого $-параметра.
// Столбцы фиксированы — имена полей не приходят от клиента.
func buildPatchSet(p Patch, startArg int) (setClause string, args []any) {
	var sets []string
	argNum := startArg

	add := func(column string, arg any) {
		sets = append(sets, fmt.Sprintf("%s = $%d", column, argNum))
		args = append(args, arg)
		argNum++
	}

	if p.ScopeID != nil {
		add("scope_id", p.ScopeID.arg())
	}
	if p.Name != nil {
		add("name", *p.Name)
	}
	if p.Description != nil {
		add("description", p.Description.arg())
	}
	if p.ExhibitNumber != nil {
		add("exhibit_number", p.ExhibitNumber.arg())
	}
	if p.DisplayOrder != nil {
		add("display_order", p.DisplayOrder.arg())
	}
	if p.NumberOfPages != nil {
		add("number_of_pages", p.NumberOfPages.arg())
	}
	if p.DateSubmitted != nil {
		add("date_submitted", p.DateSubmitted.arg())
	}
	if p.FileName != nil {
		add("file_name", p.FileName.arg())
	}
	if p.FileURL != nil {
		add("file_url", p.FileURL.arg())
	}

	return strings.Join(sets, ", "), args
}

// isInvalidText проверяет ошибку PostgreSQL invalid_text_representation
// (например, ID не является UUID).
func isInvalidText(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "22P02" // invalid_text_representation
	}
	return false
}
