package audithttp

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/noven-pro/receiving/internal/audit"
	"github.com/noven-pro/receiving/internal/platform/httpx"
)

const (
	maxRange  = 90 * 24 * time.Hour
	dayLayout = "2006-01-02"
)

// TimelineService defines the business contract for timeline data.
type TimelineService interface {
	Timeline(ctx context.Context, filters audit.TimelineFilters) (audit.Result, error)
	Export(ctx context.Context, filters audit.TimelineFilters) ([]audit.TimelineRow, error)
}

// Handler serves the audit timeline as JSON and CSV.
type Handler struct {
	logger  *slog.Logger
	service TimelineService
	now     func() time.Time
}

// NewHandler creates the audit handler.
func NewHandler(logger *slog.Logger, service TimelineService) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, now: time.Now}
}

func (h *Handler) handleTimeline(w http.ResponseWriter, r *http.Request) {
	filters, err := h.parseFilters(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	result, err := h.service.Timeline(r.Context(), filters)
	if err != nil {
		h.handleServerError(w, "load audit timeline", err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	filters, err := h.parseFilters(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	rows, err := h.service.Export(r.Context(), filters)
	if err != nil {
		h.handleServerError(w, "export audit timeline", err)
		return
	}
	csvBytes, err := audit.WriteCSV(rows)
	if err != nil {
		h.handleServerError(w, "encode csv", err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", "attachment; filename=\"audit-timeline.csv\"")
	if _, err := w.Write(csvBytes); err != nil {
		h.logger.Warn("write csv", slog.Any("error", err))
	}
}

// parseFilters reads the query. Dates are inclusive days in UTC. Without an
// entity id the window defaults to the last seven days.
func (h *Handler) parseFilters(r *http.Request) (audit.TimelineFilters, error) {
	q := r.URL.Query()
	filters := audit.TimelineFilters{
		Entity:   strings.TrimSpace(q.Get("entity")),
		EntityID: strings.TrimSpace(q.Get("entityId")),
		Action:   strings.ToUpper(strings.TrimSpace(q.Get("action"))),
	}

	from, err := parseDay(q.Get("from"), "from")
	if err != nil {
		return audit.TimelineFilters{}, err
	}
	to, err := parseDay(q.Get("to"), "to")
	if err != nil {
		return audit.TimelineFilters{}, err
	}
	if from.IsZero() && to.IsZero() && filters.EntityID == "" {
		today := h.now().UTC().Truncate(24 * time.Hour)
		from, to = today.AddDate(0, 0, -7), today
	}
	if !to.IsZero() {
		to = to.AddDate(0, 0, 1)
	}
	if !from.IsZero() && !to.IsZero() {
		if !from.Before(to) {
			return audit.TimelineFilters{}, fmt.Errorf("%w: from must not be after to", httpx.ErrValidation)
		}
		if to.Sub(from) > maxRange+24*time.Hour {
			return audit.TimelineFilters{}, fmt.Errorf("%w: range longer than 90 days", httpx.ErrValidation)
		}
	}
	filters.From, filters.To = from, to

	if filters.Page, err = parsePositive(q.Get("page"), "page"); err != nil {
		return audit.TimelineFilters{}, err
	}
	if filters.PageSize, err = parsePositive(q.Get("pageSize"), "pageSize"); err != nil {
		return audit.TimelineFilters{}, err
	}
	return filters, nil
}

func parseDay(raw, field string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(dayLayout, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s must be YYYY-MM-DD", httpx.ErrValidation, field)
	}
	return t, nil
}

func parsePositive(raw, field string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: %s must be a positive integer", httpx.ErrValidation, field)
	}
	return n, nil
}

func (h *Handler) handleServerError(w http.ResponseWriter, message string, err error) {
	h.logger.Error(message, slog.Any("error", err))
	httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
}
