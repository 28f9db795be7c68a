package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"clinicsync-backend/lib/browser"

	"github.com/go-chi/chi/v5"
)

// Handler exposes the sync triggers over HTTP. Every endpoint
// normalizes automation failures into a structured response; no
// scraping error ever escapes as an unhandled fault.
type Handler struct {
	syncer Syncer
}

func NewHandler(syncer Syncer) *Handler {
	return &Handler{syncer: syncer}
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/stock", h.syncStock)
	r.Post("/calendar", h.syncCalendar)
	r.Post("/users", h.syncUsers)
	r.Post("/patient-search", h.patientSearch)
	return r
}

type syncResponse struct {
	Status  string   `json:"status"`
	Message string   `json:"message"`
	Errors  []string `json:"errors,omitempty"`

	StockCount       int `json:"stock_count,omitempty"`
	AppointmentCount int `json:"appointment_count,omitempty"`
	UserCount        int `json:"user_count,omitempty"`

	Stock        *StockSyncResult    `json:"stock,omitempty"`
	Calendar     *CalendarSyncResult `json:"calendar,omitempty"`
	Users        *UsersSyncResult    `json:"users,omitempty"`
	Patient      *PatientRecord      `json:"patient,omitempty"`
	FallbackRows int                 `json:"fallback_rows,omitempty"`
}

func (h *Handler) syncStock(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	result, err := h.syncer.SyncStock(ctx)

	resp := syncResponse{
		Stock:        &result,
		StockCount:   result.TotalScraped,
		Errors:       result.Errors,
		FallbackRows: result.Fallbacks,
	}
	switch {
	case err != nil:
		writeJSON(w, http.StatusInternalServerError, failedResponse(ctx, "stock", err, resp))
		return
	case result.TotalScraped == 0:
		resp.Status = "warning"
		resp.Message = "no stock rows found to synchronize"
	case len(result.Errors) > 0:
		resp.Status = "warning"
		resp.Message = fmt.Sprintf("synchronized with %d rejected records: %d created, %d updated",
			len(result.Errors), result.Created, result.Updated)
	default:
		resp.Status = "success"
		resp.Message = fmt.Sprintf("stock synchronized: %d created, %d updated",
			result.Created, result.Updated)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) syncCalendar(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	result, err := h.syncer.SyncCalendar(ctx)

	resp := syncResponse{
		Calendar:         &result,
		AppointmentCount: len(result.Appointments),
		Errors:           result.Errors,
	}
	switch {
	case err != nil:
		writeJSON(w, http.StatusInternalServerError, failedResponse(ctx, "calendar", err, resp))
		return
	case len(result.Appointments) == 0:
		resp.Status = "warning"
		resp.Message = "no appointments found to synchronize"
	default:
		resp.Status = "success"
		resp.Message = fmt.Sprintf("synchronized %d appointments, %d new",
			len(result.Appointments), result.NewAppointments)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) syncUsers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	result, err := h.syncer.SyncUsers(ctx)

	resp := syncResponse{
		Users:     &result,
		UserCount: len(result.Users),
		Errors:    result.Errors,
	}
	switch {
	case err != nil:
		writeJSON(w, http.StatusInternalServerError, failedResponse(ctx, "users", err, resp))
		return
	case len(result.Users) == 0:
		resp.Status = "warning"
		resp.Message = "no recent user registrations found"
	default:
		resp.Status = "success"
		resp.Message = fmt.Sprintf("synchronized %d users, %d new accounts",
			len(result.Users), result.Created)
	}
	writeJSON(w, http.StatusOK, resp)
}

type patientSearchRequest struct {
	CPF  string `json:"cpf"`
	Name string `json:"name"`
}

func (h *Handler) patientSearch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req patientSearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.CPF == "" {
		writeJSON(w, http.StatusBadRequest, syncResponse{
			Status:  "error",
			Message: "a cpf is required",
		})
		return
	}

	rec, found, err := h.syncer.SearchPatient(ctx, req.CPF, req.Name)
	switch {
	case err != nil:
		writeJSON(w, http.StatusInternalServerError,
			failedResponse(ctx, "patient search", err, syncResponse{}))
		return
	case !found:
		writeJSON(w, http.StatusOK, syncResponse{
			Status:  "warning",
			Message: "no patient found for this cpf",
		})
		return
	}

	msg := "patient found"
	if !rec.Verified {
		msg = "patient found, but the row could not be verified against the cpf"
	}
	writeJSON(w, http.StatusOK, syncResponse{
		Status:  "success",
		Message: msg,
		Patient: &rec,
	})
}

// failedResponse turns an automation error into the structured shape
// the dashboard expects. Session failures get a generic message so
// credentials and selectors never leak into the UI.
func failedResponse(ctx context.Context, domain string, err error, resp syncResponse) syncResponse {
	slog.WarnContext(ctx, "sync failed", "domain", domain, "err", err)

	resp.Status = "error"
	var scrapeErr *ScrapeError
	switch {
	case errors.Is(err, browser.ErrStartupFailed):
		resp.Message = "could not start the browser after 3 attempts"
	case errors.Is(err, browser.ErrLoginFailed):
		resp.Message = "could not log into the external system"
	case errors.As(err, &scrapeErr):
		resp.Message = fmt.Sprintf("%s sync aborted at step %s", domain, scrapeErr.State)
	default:
		resp.Message = fmt.Sprintf("%s sync failed", domain)
	}
	return resp
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Warn("failed to encode response", "err", err)
	}
}
