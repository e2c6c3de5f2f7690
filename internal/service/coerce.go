// coerce.go — приведение слабо типизированных полей к строгим типам.
// Выполняется один раз, на границе реестра; дальше работают только типизированные значения.
package service

import (
	"encoding/json"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/iamtinman67/claim-manager/evidence-module/internal/repository"
)

// Fields — поля записи в виде, пришедшем от клиента (JSON-объект).
// Ключи — snake_case имена полей.
type Fields map[string]any

// Имена полей записи.
const (
	FieldScopeID       = "scope_id"
	FieldName          = "name"
	FieldDescription   = "description"
	FieldExhibitNumber = "exhibit_number"
	FieldDisplayOrder  = "display_order"
	FieldNumberOfPages = "number_of_pages"
	FieldDateSubmitted = "date_submitted"
	FieldFileName      = "file_name"
	FieldFileURL       = "file_url"
)

var knownFields = []string{
	FieldScopeID, FieldName, FieldDescription, FieldExhibitNumber, FieldDisplayOrder,
	FieldNumberOfPages, FieldDateSubmitted, FieldFileName, FieldFileURL,
}

// recordRules — ограничения на значения полей после приведения.
type recordRules struct {
	ScopeID       *string `validate:"omitempty,max=255"`
	Description   *string `validate:"omitempty,max=10000"`
	ExhibitNumber *int    `validate:"omitempty,min=1"`
	NumberOfPages *int    `validate:"omitempty,min=1"`
	FileName      *string `validate:"omitempty,max=500"`
	FileURL       *string `validate:"omitempty,url"`
}

// createRules — ограничения при создании: name обязателен.
type createRules struct {
	Name   string `validate:"required,max=500"`
	Common recordRules
}

// patchRules — ограничения при обновлении: name не может стать пустым.
type patchRules struct {
	Name   *string `validate:"omitempty,min=1,max=500"`
	Common recordRules
}

// fieldNames — имена полей структуры правил в сообщениях валидатора.
var fieldNames = map[string]string{
	"ScopeID":       FieldScopeID,
	"Name":          FieldName,
	"Description":   FieldDescription,
	"ExhibitNumber": FieldExhibitNumber,
	"NumberOfPages": FieldNumberOfPages,
	"FileName":      FieldFileName,
	"FileURL":       FieldFileURL,
}

// coercedFields — результат приведения: патч для хранилища и типизированные
// значения для проверки правил.
type coercedFields struct {
	patch         repository.Patch
	exhibitNumber *int
	numberOfPages *int
}

// coerceFields приводит поля к типам хранилища.
// Числа принимаются как числа JSON или строки ("5" → 5, "" → null),
// пустая строка даты → null, пустые необязательные строки → null.
func coerceFields(fields Fields) (*coercedFields, error) {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	out := &coercedFields{}
	p := &out.patch

	for _, key := range keys {
		raw := fields[key]
		switch key {
		case FieldScopeID:
			v, err := coerceString(key, raw)
			if err != nil {
				return nil, err
			}
			p.ScopeID = nullable(v)
		case FieldName:
			v, err := coerceString(key, raw)
			if err != nil {
				return nil, err
			}
			if v == nil {
				return nil, validationErrorf(key, "поле не может быть null")
			}
			p.Name = v
		case FieldDescription:
			v, err := coerceString(key, raw)
			if err != nil {
				return nil, err
			}
			p.Description = nullable(v)
		case FieldExhibitNumber:
			n, err := coerceInt(key, raw)
			if err != nil {
				return nil, err
			}
			out.exhibitNumber = n
			if n == nil {
				p.ExhibitNumber = repository.Null[string]()
			} else {
				p.ExhibitNumber = repository.Set(strconv.Itoa(*n))
			}
		case FieldDisplayOrder:
			n, err := coerceInt(key, raw)
			if err != nil {
				return nil, err
			}
			p.DisplayOrder = nullable(n)
		case FieldNumberOfPages:
			n, err := coerceInt(key, raw)
			if err != nil {
				return nil, err
			}
			out.numberOfPages = n
			p.NumberOfPages = nullable(n)
		case FieldDateSubmitted:
			d, err := coerceDate(key, raw)
			if err != nil {
				return nil, err
			}
			p.DateSubmitted = nullable(d)
		case FieldFileName:
			v, err := coerceString(key, raw)
			if err != nil {
				return nil, err
			}
			p.FileName = nullable(v)
		case FieldFileURL:
			v, err := coerceString(key, raw)
			if err != nil {
				return nil, err
			}
			p.FileURL = nullable(v)
		default:
			return nil, validationErrorf(key, "неизвестное поле, допустимые: %s", strings.Join(knownFields, ", "))
		}
	}
	return out, nil
}

// rules возвращает значения для проверки validator'ом.
func (c *coercedFields) rules() recordRules {
	return recordRules{
		ScopeID:       valuePtr(c.patch.ScopeID),
		Description:   valuePtr(c.patch.Description),
		ExhibitNumber: c.exhibitNumber,
		NumberOfPages: c.numberOfPages,
		FileName:      valuePtr(c.patch.FileName),
		FileURL:       valuePtr(c.patch.FileURL),
	}
}

// validateStruct проверяет правила и переводит ошибку validator в ValidationError.
func validateStruct(v *validator.Validate, s any) error {
	err := v.Struct(s)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok || len(verrs) == 0 {
		return &ValidationError{Message: err.Error()}
	}
	fe := verrs[0]
	field := fieldNames[fe.StructField()]
	if field == "" {
		field = fe.Field()
	}
	switch fe.Tag() {
	case "required":
		return validationErrorf(field, "обязательное поле")
	case "min":
		return validationErrorf(field, "значение должно быть не меньше %s", fe.Param())
	case "max":
		return validationErrorf(field, "длина не должна превышать %s", fe.Param())
	case "url":
		return validationErrorf(field, "некорректный URL")
	default:
		return validationErrorf(field, "не прошло проверку %q", fe.Tag())
	}
}

// coerceString: nil → nil, строка → строка ("" → nil), остальное — ошибка.
func coerceString(field string, raw any) (*string, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case string:
		v = strings.TrimSpace(v)
		if v == "" {
			return nil, nil
		}
		return &v, nil
	default:
		return nil, validationErrorf(field, "ожидается строка, получено %T", raw)
	}
}

// coerceInt приводит число JSON или числовую строку к int; "" и null → nil.
func coerceInt(field string, raw any) (*int, error) {
	var n int
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case int:
		n = v
	case int64:
		if v > math.MaxInt32 || v < math.MinInt32 {
			return nil, validationErrorf(field, "значение вне диапазона")
		}
		n = int(v)
	case float64:
		if v != math.Trunc(v) {
			return nil, validationErrorf(field, "ожидается целое число, получено %v", v)
		}
		if v > math.MaxInt32 || v < math.MinInt32 {
			return nil, validationErrorf(field, "значение вне диапазона")
		}
		n = int(v)
	case json.Number:
		return coerceInt(field, v.String())
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return nil, nil
		}
		parsed, err := strconv.ParseInt(s, 10, 32)
		if err != nil {
			return nil, validationErrorf(field, "ожидается целое число, получено %q", v)
		}
		n = int(parsed)
	default:
		return nil, validationErrorf(field, "ожидается число, получено %T", raw)
	}
	return &n, nil
}

// dateLayouts — допустимые форматы даты подачи.
var dateLayouts = []string{time.DateOnly, time.RFC3339, time.RFC3339Nano}

// coerceDate приводит строку к дате (UTC, без времени); "" и null → nil.
func coerceDate(field string, raw any) (*time.Time, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case time.Time:
		d := truncateDate(v)
		return &d, nil
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return nil, nil
		}
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				d := truncateDate(t)
				return &d, nil
			}
		}
		return nil, validationErrorf(field, "ожидается дата YYYY-MM-DD, получено %q", v)
	default:
		return nil, validationErrorf(field, "ожидается дата, получено %T", raw)
	}
}

func truncateDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// nullable переводит nil-указатель в патч-значение NULL.
func nullable[T any](v *T) *repository.Value[T] {
	if v == nil {
		return repository.Null[T]()
	}
	return repository.Set(*v)
}

// valuePtr возвращает значение патча как указатель (nil для NULL и отсутствующего поля).
func valuePtr[T any](v *repository.Value[T]) *T {
	if v == nil || v.Null {
		return nil
	}
	val := v.V
	return &val
}

// changedFields возвращает имена полей, которые меняет патч.
func changedFields(p repository.Patch) string {
	var names []string
	add := func(set bool, name string) {
		if set {
			names = append(names, name)
		}
	}
	add(p.ScopeID != nil, FieldScopeID)
	add(p.Name != nil, FieldName)
	add(p.Description != nil, FieldDescription)
	add(p.ExhibitNumber != nil, FieldExhibitNumber)
	add(p.DisplayOrder != nil, FieldDisplayOrder)
	add(p.NumberOfPages != nil, FieldNumberOfPages)
	add(p.DateSubmitted != nil, FieldDateSubmitted)
	add(p.FileName != nil, FieldFileName)
	add(p.FileURL != nil, FieldFileURL)
	return strings.Join(names, ",")
}
