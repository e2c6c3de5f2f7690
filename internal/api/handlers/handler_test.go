package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/iamtinman67/claim-manager/evidence-module/internal/domain/model"
	"github.com/iamtinman67/claim-manager/evidence-module/internal/service"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type errorEnvelope struct {
	Error struct {
		Code    string          `json:"code"`
		Message string          `json:"message"`
		Details json.RawMessage `json:"details"`
	} `json:"error"`
}

func TestWriteServiceError(t *testing.T) {
	h := NewAPIHandler(NewHealthHandler(MemoryStoreChecker{}, nil), nil, testLogger())

	tests := []struct {
		name        string
		err         error
		wantStatus  int
		wantCode    string
		wantDetails string
	}{
		{"валидация с полем", &service.ValidationError{Field: "name", Message: "обязательно"},
			http.StatusBadRequest, "VALIDATION_ERROR", `{"field":"name"}`},
		{"валидация без поля", &service.ValidationError{Message: "пустой список"},
			http.StatusBadRequest, "VALIDATION_ERROR", ``},
		{"не найдено", service.ErrNotFound, http.StatusNotFound, "NOT_FOUND", ``},
		{"частичный reorder", &service.PartialReorderError{
			Scope: "c1", Updated: []string{"a"}, Failed: []string{"b"}, Err: errors.New("conn reset"),
		}, http.StatusInternalServerError, "PARTIAL_REORDER", `{"failed":["b"],"updated":["a"]}`},
		{"таймаут чтения", &service.FetchError{Err: fmt.Errorf("%w: fetch", service.ErrStoreTimeout)},
			http.StatusServiceUnavailable, "STORE_UNAVAILABLE", ``},
		{"ошибка записи", &service.WriteError{Op: "add", Err: errors.New("constraint")},
			http.StatusInternalServerError, "INTERNAL_ERROR", ``},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/api/v1/evidence", nil)
			h.writeServiceError(rec, req, "операция", tt.err)

			if rec.Code != tt.wantStatus {
				t.Errorf("статус = %d, ожидается %d", rec.Code, tt.wantStatus)
			}
			var body errorEnvelope
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("ошибка декодирования: %v", err)
			}
			if body.Error.Code != tt.wantCode {
				t.Errorf("code = %q, ожидается %q", body.Error.Code, tt.wantCode)
			}
			if string(body.Error.Details) != tt.wantDetails {
				t.Errorf("details = %s, ожидается %s", body.Error.Details, tt.wantDetails)
			}
		})
	}
}

type stubChecker struct{ status string }

func (s stubChecker) CheckReady() (string, string) { return s.status, "stub" }

func TestHealthReady(t *testing.T) {
	tests := []struct {
		name       string
		store      ReadinessChecker
		jwks       ReadinessChecker
		wantStatus int
		wantBody   string
	}{
		{"memory", MemoryStoreChecker{}, nil, http.StatusOK, "ok"},
		{"jwks degraded", stubChecker{"ok"}, stubChecker{"degraded"}, http.StatusOK, "degraded"},
		{"storage fail", stubChecker{"fail"}, stubChecker{"ok"}, http.StatusServiceUnavailable, "fail"},
		{"нет хранилища", nil, nil, http.StatusServiceUnavailable, "fail"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandler(tt.store, tt.jwks)
			rec := httptest.NewRecorder()
			h.HealthReady(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

			if rec.Code != tt.wantStatus {
				t.Errorf("статус = %d, ожидается %d", rec.Code, tt.wantStatus)
			}
			var resp healthReadyResponse
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatalf("ошибка декодирования: %v", err)
			}
			if resp.Status != tt.wantBody {
				t.Errorf("status = %q, ожидается %q", resp.Status, tt.wantBody)
			}
			if _, ok := resp.Checks["storage"]; !ok {
				t.Error("нет проверки storage")
			}
			_, hasJWKS := resp.Checks["keycloak"]
			if hasJWKS != (tt.jwks != nil) {
				t.Errorf("проверка keycloak присутствует = %v", hasJWKS)
			}
		})
	}
}

func TestHealthLive(t *testing.T) {
	h := NewHealthHandler(nil, nil)
	rec := httptest.NewRecorder()
	h.HealthLive(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))

	var resp healthLiveResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("ошибка декодирования: %v", err)
	}
	if resp.Status != "ok" || resp.Service != "evidence-module" {
		t.Errorf("ответ = %+v", resp)
	}
}

func TestMapEvidence(t *testing.T) {
	date := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	n := 4
	label := "Exhibit 4"
	raw := "A-bis"

	withNumber := mapEvidence(&model.EvidenceRecord{
		ID: "1", Name: "Contract", ExhibitNumber: &n, ExhibitLabel: &label,
		DateSubmitted: &date, File: &model.FileReference{Name: "c.pdf", URL: "https://files/c.pdf"},
	})
	if withNumber.ExhibitLabel != nil {
		t.Errorf("exhibit_label = %v, ожидается отсутствие при распознанном номере", *withNumber.ExhibitLabel)
	}
	if withNumber.DateSubmitted == nil || *withNumber.DateSubmitted != "2024-03-01" {
		t.Errorf("date_submitted = %v", withNumber.DateSubmitted)
	}
	if withNumber.File == nil || withNumber.File.URL != "https://files/c.pdf" {
		t.Errorf("file = %+v", withNumber.File)
	}

	unparsed := mapEvidence(&model.EvidenceRecord{ID: "2", Name: "Photo", ExhibitLabel: &raw})
	if unparsed.ExhibitNumber != nil || unparsed.ExhibitLabel == nil || *unparsed.ExhibitLabel != raw {
		t.Errorf("нераспознанный номер: number=%v label=%v", unparsed.ExhibitNumber, unparsed.ExhibitLabel)
	}
	if unparsed.File != nil || unparsed.DateSubmitted != nil {
		t.Errorf("пустые поля должны быть null: %+v", unparsed)
	}
}
