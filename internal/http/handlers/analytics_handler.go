// Analytics HTTP handlers.
//
// This file exposes read-only reporting endpoints over the interaction
// ledger:
//   - GET /analytics/creators   (per-creator aggregates)
//   - GET /interactions         (raw ledger rows, paginated)
//
// Aggregates are computed on demand from the full ledger; nothing here
// mutates state.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-discount-agent/internal/domain"
	"github.com/tbourn/go-discount-agent/internal/repo"
	"github.com/tbourn/go-discount-agent/internal/utils"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// clampPagination reads ?page and ?page_size with defaults and bounds.
func clampPagination(c *gin.Context) (page, pageSize int) {
	page = utils.AtoiDefault(c.Query("page"), 1)
	pageSize = utils.AtoiDefault(c.Query("page_size"), defaultPageSize)
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return page, pageSize
}

// ListInteractionsResponse is the paginated envelope for ledger rows.
type ListInteractionsResponse struct {
	Items    []domain.InteractionRecord `json:"items"`
	Total    int64                      `json:"total"`
	Page     int                        `json:"page"`
	PageSize int                        `json:"page_size"`
}

// CreatorAnalytics godoc
// @ID          creatorAnalytics
// @Summary     Per-creator analytics
// @Description Returns request and code-issuance counts per creator, with a per-platform breakdown. Computed on demand from the ledger.
// @Tags        Analytics
// @Produce     json
//
// @Success     200  {object}  domain.AnalyticsSummary
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /analytics/creators [get]
func (h *Handlers) CreatorAnalytics(c *gin.Context) {
	summary, err := repo.CreatorAnalytics(c.Request.Context(), h.db)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, summary)
}

// ListInteractions godoc
// @ID          listInteractions
// @Summary     List ledger interactions (paginated)
// @Description Returns a page of interaction records, newest first.
// @Tags        Analytics
// @Produce     json
//
// @Param       page       query  int  false  "Page number (1-based)"      default(1)
// @Param       page_size  query  int  false  "Page size (max 100)"        default(20)
//
// @Success     200  {object}  handlers.ListInteractionsResponse
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /interactions [get]
func (h *Handlers) ListInteractions(c *gin.Context) {
	page, pageSize := clampPagination(c)

	total, err := repo.CountInteractions(c.Request.Context(), h.db)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}

	items := []domain.InteractionRecord{}
	if total > 0 {
		offset := (page - 1) * pageSize
		items, err = repo.ListInteractionsPage(c.Request.Context(), h.db, offset, pageSize)
		if err != nil {
			fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
			return
		}
	}

	ok(c, http.StatusOK, ListInteractionsResponse{
		Items:    items,
		Total:    total,
		Page:     page,
		PageSize: pageSize,
	})
}
