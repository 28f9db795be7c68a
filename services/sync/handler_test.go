package sync

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"clinicsync-backend/lib/browser"

	"github.com/stretchr/testify/require"
)

type stubSyncer struct {
	stock       StockSyncResult
	stockErr    error
	calendar    CalendarSyncResult
	calendarErr error
	users       UsersSyncResult
	usersErr    error
	patient     PatientRecord
	found       bool
	searchErr   error
}

func (s *stubSyncer) SyncStock(ctx context.Context) (StockSyncResult, error) {
	return s.stock, s.stockErr
}

func (s *stubSyncer) SyncCalendar(ctx context.Context) (CalendarSyncResult, error) {
	return s.calendar, s.calendarErr
}

func (s *stubSyncer) SyncUsers(ctx context.Context) (UsersSyncResult, error) {
	return s.users, s.usersErr
}

func (s *stubSyncer) SearchPatient(ctx context.Context, cpf, name string) (PatientRecord, bool, error) {
	return s.patient, s.found, s.searchErr
}

func doPost(t *testing.T, h *Handler, path, body string) (int, syncResponse) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)

	var resp syncResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return rec.Code, resp
}

func TestSyncStockSuccess(t *testing.T) {
	h := NewHandler(&stubSyncer{stock: StockSyncResult{
		Pages: 2,
		ReconciliationResult: ReconciliationResult{
			TotalScraped: 30, Created: 5, Updated: 25,
		},
	}})

	code, resp := doPost(t, h, "/stock", "")
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "success", resp.Status)
	require.Equal(t, 30, resp.StockCount)
	require.Contains(t, resp.Message, "5 created")
}

func TestSyncStockWarnsOnRejectedRecords(t *testing.T) {
	h := NewHandler(&stubSyncer{stock: StockSyncResult{
		ReconciliationResult: ReconciliationResult{
			TotalScraped: 5, Created: 4,
			Errors: []string{`"C": available stock 9 exceeds current stock 2`},
		},
	}})

	code, resp := doPost(t, h, "/stock", "")
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "warning", resp.Status)
	require.Len(t, resp.Errors, 1)
}

func TestSyncStockNormalizesStartupFailure(t *testing.T) {
	h := NewHandler(&stubSyncer{stockErr: browser.ErrStartupFailed})

	code, resp := doPost(t, h, "/stock", "")
	require.Equal(t, http.StatusInternalServerError, code)
	require.Equal(t, "error", resp.Status)
	require.Contains(t, resp.Message, "3 attempts")
}

func TestSyncCalendarWarnsWhenEmpty(t *testing.T) {
	h := NewHandler(&stubSyncer{})

	code, resp := doPost(t, h, "/calendar", "")
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "warning", resp.Status)
	require.Equal(t, 0, resp.AppointmentCount)
}

func TestSyncCalendarReportsScrapeState(t *testing.T) {
	h := NewHandler(&stubSyncer{calendarErr: &ScrapeError{
		State: StateNavigated,
		Err:   browser.ErrNavTimeout,
	}})

	code, resp := doPost(t, h, "/calendar", "")
	require.Equal(t, http.StatusInternalServerError, code)
	require.Equal(t, "error", resp.Status)
	require.Contains(t, resp.Message, "navigated")
}

func TestSyncUsersSuccess(t *testing.T) {
	h := NewHandler(&stubSyncer{users: UsersSyncResult{
		Users:   []UserRecord{{Username: "ana"}, {Username: "bia"}},
		Created: 1,
	}})

	code, resp := doPost(t, h, "/users", "")
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "success", resp.Status)
	require.Equal(t, 2, resp.UserCount)
}

func TestPatientSearchRequiresCPF(t *testing.T) {
	h := NewHandler(&stubSyncer{})

	code, resp := doPost(t, h, "/patient-search", `{}`)
	require.Equal(t, http.StatusBadRequest, code)
	require.Equal(t, "error", resp.Status)
}

func TestPatientSearchNotFound(t *testing.T) {
	h := NewHandler(&stubSyncer{found: false})

	code, resp := doPost(t, h, "/patient-search", `{"cpf":"123.456.789-01"}`)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "warning", resp.Status)
}

func TestPatientSearchFlagsUnverifiedMatch(t *testing.T) {
	h := NewHandler(&stubSyncer{
		found:   true,
		patient: PatientRecord{Name: "Maria", CPF: "123.456.789-01", Verified: false},
	})

	code, resp := doPost(t, h, "/patient-search", `{"cpf":"123.456.789-01"}`)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "success", resp.Status)
	require.Contains(t, resp.Message, "could not be verified")
	require.NotNil(t, resp.Patient)
}
