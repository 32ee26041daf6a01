package httptransport

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"scanhub/internal/pairing"
)

const (
	defaultPageSize = 100
	maxPageSize     = 500
)

type HistoryHandler struct {
	store  pairing.Store
	logger *slog.Logger
}

func NewHistoryHandler(store pairing.Store, logger *slog.Logger) *HistoryHandler {
	return &HistoryHandler{store: store, logger: logger}
}

func (h *HistoryHandler) Register(r chi.Router) {
	r.Get("/api/history", h.HandleHistory)
	r.Get("/api/charts", h.HandleCharts)
}

type historyResponse struct {
	Items []*pairing.Record `json:"items"`
	Total int               `json:"total"`
	Page  int               `json:"page"`
	Size  int               `json:"size"`
	Pages int               `json:"pages"`
}

// HandleHistory handles GET /api/history requests with filtering, sorting and
// page-based pagination.
func (h *HistoryHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	f, err := filterFromQuery(r)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	page := intQuery(r, "page", 1)
	if page < 1 {
		page = 1
	}
	size := intQuery(r, "size", defaultPageSize)
	if size < 1 {
		size = defaultPageSize
	}
	if size > maxPageSize {
		size = maxPageSize
	}
	f.Limit = size
	f.Offset = (page - 1) * size

	items, err := h.store.List(ctx, f)
	if err != nil {
		h.logger.ErrorContext(ctx, "history listing failed", "error", err)
		writeError(w, err)
		return
	}
	total, err := h.store.Count(ctx, f)
	if err != nil {
		h.logger.ErrorContext(ctx, "history count failed", "error", err)
		writeError(w, err)
		return
	}

	if items == nil {
		items = []*pairing.Record{}
	}
	writeJSON(w, http.StatusOK, historyResponse{
		Items: items,
		Total: total,
		Page:  page,
		Size:  size,
		Pages: (total + size - 1) / size,
	})
}

// HandleCharts handles GET /api/charts requests. It honors the same date and
// platform filters as the history listing so the charts line up with the
// table the dashboard shows next to them.
func (h *HistoryHandler) HandleCharts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	f, err := filterFromQuery(r)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	data, err := h.store.Charts(ctx, f)
	if err != nil {
		h.logger.ErrorContext(ctx, "chart aggregation failed", "error", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, data)
}

func filterFromQuery(r *http.Request) (pairing.Filter, error) {
	var f pairing.Filter
	q := r.URL.Query()

	var err error
	if f.ID, err = int64Query(q.Get("id"), "id"); err != nil {
		return f, err
	}
	if f.Platform, err = int64Query(q.Get("platform"), "platform"); err != nil {
		return f, err
	}
	if f.Product, err = int64Query(q.Get("product"), "product"); err != nil {
		return f, err
	}
	f.IdentityKey = q.Get("identity")

	if v := q.Get("syncStatus"); v != "" {
		status := pairing.SyncStatus(v)
		if !status.Valid() {
			return f, errInvalidParam("syncStatus", v)
		}
		f.SyncStatus = &status
	}
	if v := q.Get("overwrite"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return f, errInvalidParam("overwrite", v)
		}
		f.Overwrite = &b
	}
	if f.From, err = timeQuery(q.Get("from"), "from"); err != nil {
		return f, err
	}
	if f.To, err = timeQuery(q.Get("to"), "to"); err != nil {
		return f, err
	}

	// sort is "field" or "field:dir", e.g. "scannedAt:asc".
	if v := q.Get("sort"); v != "" {
		field, dir, _ := strings.Cut(v, ":")
		f.SortField = field
		f.SortAsc = strings.EqualFold(dir, "asc")
	}
	return f, nil
}

func int64Query(raw, name string) (*int64, error) {
	if raw == "" {
		return nil, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, errInvalidParam(name, raw)
	}
	return &n, nil
}

// timeQuery accepts RFC 3339 timestamps and bare dates.
func timeQuery(raw, name string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, errInvalidParam(name, raw)
	}
	return &t, nil
}

func intQuery(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

type paramError struct {
	name, value string
}

func errInvalidParam(name, value string) error {
	return paramError{name: name, value: value}
}

func (e paramError) Error() string {
	return "invalid " + e.name + " parameter: " + e.value
}
