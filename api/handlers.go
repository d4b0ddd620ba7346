/*
handlers.go - HTTP API handlers for the loyalty accrual service

PURPOSE:
  Exposes the recomputation engine and its collaborators via REST API.
  Handles HTTP request/response, JSON serialization, and delegates to
  domain logic.

ENDPOINTS:
  Reports (recomputed on every call):
    GET    /api/reports/offices        Office ranking (?start&end&actor&detail)
    GET    /api/reports/professionals  Professional ranking (same parameters)
    GET    /api/reports/partners       Totals and fees per partner company
    GET    /api/reports/runs           Scheduled monthly runs

  Tiers:
    GET    /api/tiers                  Current table, version and issues
    PUT    /api/tiers                  Replace the whole table
    POST   /api/tiers                  Add one tier
    DELETE /api/tiers/{id}             Remove one tier

  Submissions:
    POST   /api/companies/{companyID}/points       Register a purchase
    PUT    /api/companies/{companyID}/points/{id}  Edit (same day, owner only)
    DELETE /api/companies/{companyID}/points/{id}  Delete (same day, owner only)
    GET    /api/points/preview                     Points one purchase earns

  Settings:
    GET    /api/settings/cutoff-day
    PUT    /api/settings/cutoff-day

PERIODS:
  start and end are YYYY-MM-DD in the configured location. Both default to
  the current month up to today. end includes its whole day.

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, closed submission window, invalid period
  - 403: Company changing another company's transaction
  - 404: Resource not found
  - 500: Internal errors, including engine precondition failures

SECURITY NOTE:
  Currently NO authentication. The company id in the path is trusted.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/warp/loyalty-engine/factory"
	"github.com/warp/loyalty-engine/generic"
	"github.com/warp/loyalty-engine/logger"
	"github.com/warp/loyalty-engine/metrics"
	"github.com/warp/loyalty-engine/office"
	"github.com/warp/loyalty-engine/professional"
	"github.com/warp/loyalty-engine/store/sqlite"
)

const (
	dateLayout   = "2006-01-02"
	maxBodyBytes = 1 << 20
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store         *sqlite.Store
	Recomputer    *generic.Recomputer
	Offices       *office.Reports
	Professionals *professional.Reports
	Logger        *logger.Logger
	Metrics       *metrics.ReportMetrics
	Location      *time.Location

	// Now is the clock used for admission and default periods.
	Now func() time.Time

	mu              sync.RWMutex
	currentScenario string
}

type HandlerOptions struct {
	Logger   *logger.Logger
	Metrics  *metrics.ReportMetrics
	Location *time.Location
}

// NewHandler creates a new handler with the given store and recomputer.
func NewHandler(store *sqlite.Store, rec *generic.Recomputer, opts HandlerOptions) *Handler {
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	return &Handler{
		Store:         store,
		Recomputer:    rec,
		Offices:       office.NewReports(rec),
		Professionals: professional.NewReports(rec),
		Logger:        log,
		Metrics:       opts.Metrics,
		Location:      loc,
		Now:           time.Now,
	}
}

func (h *Handler) now() time.Time {
	return h.Now().In(h.Location)
}

// =============================================================================
// REPORT ENDPOINTS
// =============================================================================

type actorReports interface {
	Ranking(ctx context.Context, period generic.Period, detailed bool) (generic.RankedReport, error)
	Statement(ctx context.Context, id generic.ActorID, period generic.Period) (generic.RankedReport, error)
}

// OfficeReport recomputes the office ranking.
func (h *Handler) OfficeReport(w http.ResponseWriter, r *http.Request) {
	h.actorReport(w, r, h.Offices)
}

// ProfessionalReport recomputes the professional ranking.
func (h *Handler) ProfessionalReport(w http.ResponseWriter, r *http.Request) {
	h.actorReport(w, r, h.Professionals)
}

func (h *Handler) actorReport(w http.ResponseWriter, r *http.Request, reports actorReports) {
	ctx := r.Context()

	period, err := h.parsePeriod(r)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	detailed, err := parseQueryBool(r, "detail")
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	var report generic.RankedReport
	if actor := strings.TrimSpace(r.URL.Query().Get("actor")); actor != "" {
		report, err = reports.Statement(ctx, generic.ActorID(actor), period)
	} else {
		report, err = reports.Ranking(ctx, period, detailed)
	}
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toRankedReportDTO(report))
}

// PartnerReport sums stored values, points and fees per partner company.
func (h *Handler) PartnerReport(w http.ResponseWriter, r *http.Request) {
	period, err := h.parsePeriod(r)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	detailed, err := parseQueryBool(r, "detail")
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	partnerID, err := parseQueryInt64(r, "partner")
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	var partner *generic.PartnerID
	if partnerID != nil {
		p := generic.PartnerID(*partnerID)
		partner = &p
	}

	report, err := h.Recomputer.PartnerReport(r.Context(), period, partner, detailed)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPartnerReportDTO(report))
}

// ListReportRuns returns scheduled report runs, optionally filtered by status.
func (h *Handler) ListReportRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := h.Store.ReportRuns(r.Context(), r.URL.Query().Get("status"))
	if err != nil {
		h.writeDomainError(w, r, fmt.Errorf("list report runs: %w", err))
		return
	}

	dtos := make([]ReportRunDTO, 0, len(runs))
	for _, run := range runs {
		dtos = append(dtos, toReportRunDTO(run))
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": dtos})
}

// parsePeriod reads start/end, defaulting to the current month to date.
func (h *Handler) parsePeriod(r *http.Request) (generic.Period, error) {
	now := h.now()
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, h.Location)
	end := now

	q := r.URL.Query()
	if raw := strings.TrimSpace(q.Get("start")); raw != "" {
		t, err := time.ParseInLocation(dateLayout, raw, h.Location)
		if err != nil {
			return generic.Period{}, &requestError{Message: "start must be YYYY-MM-DD", Err: err}
		}
		start = t
	}
	if raw := strings.TrimSpace(q.Get("end")); raw != "" {
		t, err := time.ParseInLocation(dateLayout, raw, h.Location)
		if err != nil {
			return generic.Period{}, &requestError{Message: "end must be YYYY-MM-DD", Err: err}
		}
		end = t
	}
	return generic.NewPeriod(start, end)
}

// =============================================================================
// TIER ENDPOINTS
// =============================================================================

func (h *Handler) ListTiers(w http.ResponseWriter, r *http.Request) {
	table, err := h.Store.LoadTiers(r.Context())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTierTableDTO(table))
}

// ReplaceTiers swaps the whole table. Row rule violations are rejected;
// coverage problems are accepted and returned as issues.
func (h *Handler) ReplaceTiers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		h.writeDomainError(w, r, &requestError{Message: "invalid request body", Err: err})
		return
	}
	table, err := factory.ParseTierTable(body)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	if _, err := h.Store.ReplaceTiers(ctx, table.Tiers); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	saved, err := h.Store.LoadTiers(ctx)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	dto := toTierTableDTO(saved)
	if len(dto.Issues) > 0 {
		h.Logger.Warn(h.Logger.WithField(ctx, "issues", dto.Issues), "tier table saved with coverage problems")
	}
	writeJSON(w, http.StatusOK, dto)
}

func (h *Handler) CreateTier(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		h.writeDomainError(w, r, &requestError{Message: "invalid request body", Err: err})
		return
	}
	tier, err := factory.ParseTier(body)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	saved, err := h.Store.CreateTier(r.Context(), tier)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, factory.TierToJSON(saved))
}

func (h *Handler) DeleteTier(w http.ResponseWriter, r *http.Request) {
	id, err := parsePathInt64(chi.URLParam(r, "id"), "id")
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if err := h.Store.DeleteTier(r.Context(), id); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// =============================================================================
// SETTINGS ENDPOINTS
// =============================================================================

func (h *Handler) GetCutoffDay(w http.ResponseWriter, r *http.Request) {
	day, err := h.Store.CutoffDay(r.Context())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, CutoffDayDTO{CutoffDay: day})
}

func (h *Handler) UpdateCutoffDay(w http.ResponseWriter, r *http.Request) {
	var req UpdateCutoffDayRequest
	if err := decodeJSONBody(r, &req); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if err := h.Store.SetCutoffDay(r.Context(), req.CutoffDay, req.UserName); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, CutoffDayDTO{CutoffDay: req.CutoffDay})
}

// =============================================================================
// SUBMISSION ENDPOINTS
// =============================================================================

// SubmitPoints registers a purchase made at the company in the path.
func (h *Handler) SubmitPoints(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	sub, err := h.readSubmission(r)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	cutoff, err := h.Store.CutoffDay(ctx)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	tx, err := generic.NewAdmissionWindow(cutoff).AdmitSubmission(sub, h.now())
	if err != nil {
		h.Metrics.IncSubmission("rejected")
		h.writeDomainError(w, r, err)
		return
	}
	tx.ID = generic.TransactionID(uuid.NewString())

	if err := h.Store.CreateTransaction(ctx, tx); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.Metrics.IncSubmission("admitted")

	h.Logger.Info(h.Logger.WithFields(ctx, map[string]any{
		"transaction_id": tx.ID,
		"company_id":     tx.PartnerID,
		"actor_id":       tx.ActorID,
	}), "points registered")
	writeJSON(w, http.StatusCreated, toTransactionDTO(tx))
}

// UpdatePoints edits a transaction registered today by the same company.
func (h *Handler) UpdatePoints(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	existing, err := h.Store.GetTransaction(ctx, generic.TransactionID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	sub, err := h.readSubmission(r)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	now := h.now()
	updated, err := generic.ApplyEdit(*existing, sub, now)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	entry := generic.NewChangeLogEntry(*existing, &updated, sub.CompanyID, sub.CompanyName, now)
	if err := h.Store.UpdateTransaction(ctx, updated, entry); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionDTO(updated))
}

// DeletePoints soft-deletes a transaction registered today by the same company.
func (h *Handler) DeletePoints(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	company, err := h.companyFromPath(r)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	existing, err := h.Store.GetTransaction(ctx, generic.TransactionID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	now := h.now()
	if err := generic.CheckEditable(*existing, company.ID, now); err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	entry := generic.NewChangeLogEntry(*existing, nil, company.ID, company.Name, now)
	if err := h.Store.DeleteTransaction(ctx, existing.ID, entry); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// PreviewPoints runs the point credit calculator without storing anything.
func (h *Handler) PreviewPoints(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimSpace(r.URL.Query().Get("value"))
	if raw == "" {
		h.writeDomainError(w, r, &requestError{Message: "value is required"})
		return
	}
	value, err := decimal.NewFromString(raw)
	if err != nil {
		h.writeDomainError(w, r, &requestError{Message: "value must be a decimal number", Err: err})
		return
	}
	builder, err := parseQueryBool(r, "builder")
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, PointsPreviewDTO{
		Value:   value,
		Builder: builder,
		Points:  generic.ComputePoints(value, builder),
	})
}

// readSubmission resolves the company, actor kind and actor of a body.
func (h *Handler) readSubmission(r *http.Request) (generic.Submission, error) {
	ctx := r.Context()

	company, err := h.companyFromPath(r)
	if err != nil {
		return generic.Submission{}, err
	}

	var req SubmitPointsRequest
	if err := decodeJSONBody(r, &req); err != nil {
		return generic.Submission{}, err
	}
	kind := generic.LookupActorKind(req.ActorKind)
	if kind == nil {
		return generic.Submission{}, &requestError{
			Message: "validation failed",
			Fields:  map[string]string{"actor_kind": "is not a registered kind"},
		}
	}
	actor, err := h.Store.GetActor(ctx, kind, generic.ActorID(req.ActorID))
	if err != nil {
		return generic.Submission{}, err
	}

	return generic.Submission{
		CompanyID:        company.ID,
		CompanyName:      company.Name,
		CompanyIsBuilder: company.Builder,
		ActorID:          actor.ID,
		ActorKind:        kind,
		GrossValue:       req.Value,
		Note:             strings.TrimSpace(req.Note),
	}, nil
}

func (h *Handler) companyFromPath(r *http.Request) (*sqlite.Company, error) {
	id, err := parsePathInt64(chi.URLParam(r, "companyID"), "companyID")
	if err != nil {
		return nil, err
	}
	return h.Store.GetCompany(r.Context(), generic.PartnerID(id))
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	h.setCurrentScenario("")
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps domain and request errors onto HTTP statuses.
func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		reqErr  *requestError
		tierErr *factory.ValidationError
	)
	switch {
	case errors.As(err, &reqErr):
		resp := ErrorResponse{Error: reqErr.Message, Fields: reqErr.Fields}
		if reqErr.Err != nil {
			resp.Details = reqErr.Err.Error()
		}
		writeJSON(w, http.StatusBadRequest, resp)
	case errors.As(err, &tierErr):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "validation failed", Fields: tierErr.Fields})
	case generic.IsNotFound(err):
		writeError(w, http.StatusNotFound, "Not found", err)
	case generic.IsForbidden(err):
		writeError(w, http.StatusForbidden, "Forbidden", err)
	case generic.IsClientError(err):
		writeError(w, http.StatusBadRequest, "Invalid request", err)
	default:
		h.Logger.Error(r.Context(), "request failed", err)
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}
