// errors.go — ошибки сервисного слоя реестра доказательств.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNotFound — запись не найдена.
	ErrNotFound = errors.New("доказательство не найдено")
	// ErrValidation — ошибка валидации входных данных.
	ErrValidation = errors.New("ошибка валидации")
	// ErrFetchFailed — чтение из хранилища не удалось.
	ErrFetchFailed = errors.New("ошибка чтения из хранилища")
	// ErrWriteFailed — запись в хранилище не удалась.
	ErrWriteFailed = errors.New("ошибка записи в хранилище")
	// ErrPartialReorder — изменение порядка применено частично.
	ErrPartialReorder = errors.New("порядок применён частично")
	// ErrStoreTimeout — обращение к хранилищу превысило EM_STORE_TIMEOUT.
	ErrStoreTimeout = errors.New("таймаут обращения к хранилищу")
)

// ValidationError — некорректные входные данные; возвращается до любого
// обращения к хранилищу.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", ErrValidation, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", ErrValidation, e.Field, e.Message)
}

// Is — errors.Is(err, ErrValidation).
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func validationErrorf(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// FetchError — ошибка чтения записей дела (scope == "" — глобальная выборка).
type FetchError struct {
	Scope string
	Err   error
}

func (e *FetchError) Error() string {
	if e.Scope == "" {
		return fmt.Sprintf("%s: %v", ErrFetchFailed, e.Err)
	}
	return fmt.Sprintf("%s (дело %s): %v", ErrFetchFailed, e.Scope, e.Err)
}

// Is — errors.Is(err, ErrFetchFailed).
func (e *FetchError) Is(target error) bool { return target == ErrFetchFailed }

func (e *FetchError) Unwrap() error { return e.Err }

// Retryable сообщает, имеет ли смысл повторить запрос.
func (e *FetchError) Retryable() bool { return isRetryable(e.Err) }

// WriteError — ошибка записи: операция, запись и поле(я), которые не удалось сохранить.
type WriteError struct {
	// Op — add, update, remove, reorder
	Op       string
	RecordID string
	// Field — изменяемые поля через запятую; пусто — вся запись
	Field string
	Err   error
}

func (e *WriteError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s", ErrWriteFailed, e.Op)
	if e.RecordID != "" {
		fmt.Fprintf(&b, " %s", e.RecordID)
	}
	if e.Field != "" {
		fmt.Fprintf(&b, " [%s]", e.Field)
	}
	fmt.Fprintf(&b, ": %v", e.Err)
	return b.String()
}

// Is — errors.Is(err, ErrWriteFailed).
func (e *WriteError) Is(target error) bool { return target == ErrWriteFailed }

func (e *WriteError) Unwrap() error { return e.Err }

// Retryable сообщает, имеет ли смысл повторить запись.
func (e *WriteError) Retryable() bool { return isRetryable(e.Err) }

// PartialReorderError — последовательная запись позиций прервалась:
// Updated содержат новые позиции, Failed — старые.
type PartialReorderError struct {
	Scope   string
	Updated []string
	Failed  []string
	Err     error
}

func (e *PartialReorderError) Error() string {
	return fmt.Sprintf("%s (дело %s): обновлено %d, не обновлено %d: %v",
		ErrPartialReorder, e.Scope, len(e.Updated), len(e.Failed), e.Err)
}

// Is — errors.Is(err, ErrPartialReorder).
func (e *PartialReorderError) Is(target error) bool { return target == ErrPartialReorder }

func (e *PartialReorderError) Unwrap() error { return e.Err }

// Retryable — повтор Reorder с тем же списком доводит порядок до целевого.
func (e *PartialReorderError) Retryable() bool { return true }

// IsRetryable сообщает, является ли ошибка временной (таймаут, обрыв соединения).
func IsRetryable(err error) bool {
	var r interface{ Retryable() bool }
	if errors.As(err, &r) {
		return r.Retryable()
	}
	return isRetryable(err)
}

func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrStoreTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return pgconn.SafeToRetry(err) || pgconn.Timeout(err)
}
