package handlers

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/hr-intake-bot/internal/domain"
	"github.com/tbourn/hr-intake-bot/internal/repo"
	"github.com/tbourn/hr-intake-bot/internal/services"
	"github.com/tbourn/hr-intake-bot/internal/utils"
)

// Reports is the read side of the submission store.
type Reports interface {
	Stats(ctx context.Context) services.Stats
	History(ctx context.Context) []domain.HistoryRecord
	Card(ctx context.Context, id domain.ExternalID) (domain.CardIndexEntry, error)
	ExportCSV(ctx context.Context, w io.Writer) (int, error)
}

// UpdateLog reports live processed-update records by kind.
type UpdateLog interface {
	Counts(ctx context.Context) ([]repo.KindCount, error)
}

// Handlers groups the webhook and ops endpoints.
type Handlers struct {
	dispatcher UpdateDispatcher
	reports    Reports
	updates    UpdateLog
	now        func() time.Time
}

// New binds handlers to their collaborators. updates may be nil when the
// update log is disabled.
func New(d UpdateDispatcher, r Reports, u UpdateLog) *Handlers {
	return &Handlers{dispatcher: d, reports: r, updates: u, now: time.Now}
}

// StatsResponse is the body of GET /stats.
type StatsResponse struct {
	Submissions services.Stats   `json:"submissions"`
	Updates     []repo.KindCount `json:"updates"`
}

// Pagination describes one page of a list response.
type Pagination struct {
	utils.Page
	TotalPages int  `json:"total_pages"`
	HasNext    bool `json:"has_next"`
}

// HistoryResponse is the body of GET /history.
type HistoryResponse struct {
	Items      []domain.HistoryRecord `json:"items"`
	Pagination Pagination             `json:"pagination"`
}

// Stats returns the submission counters of the history window together with
// the live update-log counts.
func (h *Handlers) Stats(c *gin.Context) {
	ctx := c.Request.Context()
	resp := StatsResponse{Submissions: h.reports.Stats(ctx), Updates: []repo.KindCount{}}
	if h.updates != nil {
		counts, err := h.updates.Counts(ctx)
		if err != nil {
			fail(c, http.StatusInternalServerError, ErrCodeStatsFailed, err.Error())
			return
		}
		resp.Updates = counts
	}
	ok(c, resp)
}

// Card returns the index entry of one external id.
func (h *Handlers) Card(c *gin.Context) {
	id := domain.ExternalID(strings.TrimSpace(c.Param("id")))
	e, err := h.reports.Card(c.Request.Context(), id)
	switch {
	case errors.Is(err, services.ErrNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "card not found")
		return
	case err != nil:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, e)
}

// History pages through the history window, newest first.
func (h *Handlers) History(c *gin.Context) {
	const (
		defaultPageSize = 20
		maxPageSize     = 100
	)
	all := h.reports.History(c.Request.Context())
	page, start, end := utils.Paginate(
		len(all),
		utils.AtoiDefault(c.Query("page"), 1),
		utils.AtoiDefault(c.Query("page_size"), defaultPageSize),
		maxPageSize,
	)
	totalPages := (page.Total + page.PageSize - 1) / page.PageSize
	ok(c, HistoryResponse{
		Items: all[start:end],
		Pagination: Pagination{
			Page:       page,
			TotalPages: totalPages,
			HasNext:    page.Page < totalPages,
		},
	})
}

// Export streams the history window as the `;`-separated CSV file that the
// /export command sends to the staff chat.
func (h *Handlers) Export(c *gin.Context) {
	var buf bytes.Buffer
	n, err := h.reports.ExportCSV(c.Request.Context(), &buf)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeExportFailed, err.Error())
		return
	}
	name := services.ExportFilename(h.now())
	c.Header("Content-Disposition", `attachment; filename="`+name+`"`)
	c.Header("X-Export-Rows", strconv.Itoa(n))
	c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}
