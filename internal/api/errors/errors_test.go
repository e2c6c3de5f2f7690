package errors

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWriteError(t *testing.T) {
	tests := []struct {
		name       string
		fn         func(http.ResponseWriter, string)
		wantStatus int
		wantCode   string
	}{
		{"ValidationError", ValidationError, http.StatusBadRequest, CodeValidationError},
		{"NotFound", NotFound, http.StatusNotFound, CodeNotFound},
		{"Unauthorized", Unauthorized, http.StatusUnauthorized, CodeUnauthorized},
		{"Forbidden", Forbidden, http.StatusForbidden, CodeForbidden},
		{"StoreUnavailable", StoreUnavailable, http.StatusServiceUnavailable, CodeStoreUnavailable},
		{"InternalError", InternalError, http.StatusInternalServerError, CodeInternalError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			tt.fn(rec, "сообщение")

			if rec.Code != tt.wantStatus {
				t.Errorf("статус = %d, ожидается %d", rec.Code, tt.wantStatus)
			}
			if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q, ожидается application/json", ct)
			}

			var body struct {
				Error struct {
					Code    string         `json:"code"`
					Message string         `json:"message"`
					Details map[string]any `json:"details"`
				} `json:"error"`
			}
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("ошибка декодирования: %v", err)
			}
			if body.Error.Code != tt.wantCode {
				t.Errorf("code = %q, ожидается %q", body.Error.Code, tt.wantCode)
			}
			if body.Error.Message != "сообщение" {
				t.Errorf("message = %q", body.Error.Message)
			}
			if body.Error.Details != nil {
				t.Errorf("details = %v, ожидается отсутствие", body.Error.Details)
			}
		})
	}
}

func TestStoreUnavailable_RetryAfter(t *testing.T) {
	rec := httptest.NewRecorder()
	StoreUnavailable(rec, "таймаут")
	if got := rec.Header().Get("Retry-After"); got != "1" {
		t.Errorf("Retry-After = %q, ожидается 1", got)
	}
}

func TestWriteErrorDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteErrorDetails(rec, http.StatusInternalServerError, CodePartialReorder, "частично",
		map[string][]string{"updated": {"a"}, "failed": {"b", "c"}})

	var body struct {
		Error struct {
			Code    string `json:"code"`
			Details struct {
				Updated []string `json:"updated"`
				Failed  []string `json:"failed"`
			} `json:"details"`
		} `json:"error"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("ошибка декодирования: %v", err)
	}
	if body.Error.Code != CodePartialReorder {
		t.Errorf("code = %q", body.Error.Code)
	}
	if len(body.Error.Details.Updated) != 1 || len(body.Error.Details.Failed) != 2 {
		t.Errorf("details = %+v", body.Error.Details)
	}
}
