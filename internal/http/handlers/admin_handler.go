// Administrative HTTP handlers.
//
// This file exposes operator endpoints:
//   - POST /admin/reload   (hot-reload campaign and template files)
//   - POST /admin/reset    (wipe the interaction ledger)
//
// Reload keeps serving the previous registry snapshot when the new files are
// invalid, so a bad edit cannot take the agent down.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-discount-agent/internal/http/middleware"
	"github.com/tbourn/go-discount-agent/internal/repo"
)

// ReloadResponse reports the outcome of a campaign reload.
type ReloadResponse struct {
	Status   string `json:"status" example:"reloaded"`
	Creators int    `json:"creators" example:"4"`
}

// ReloadCampaign godoc
// @ID          reloadCampaign
// @Summary     Reload campaign configuration
// @Description Re-reads the campaign and template files and atomically swaps in the new registry. On failure the previous registry stays active.
// @Tags        Admin
// @Produce     json
//
// @Success     200  {object}  handlers.ReloadResponse
// @Failure     500  {object}  handlers.ErrorResponse  "Reload failed"
// @Router      /admin/reload [post]
func (h *Handlers) ReloadCampaign(c *gin.Context) {
	if err := h.campaigns.Reload(); err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeReloadFailed, err.Error())
		return
	}
	reg := h.campaigns.Current()
	middleware.LoggerFrom(c).Info().
		Int("creators", len(reg.Handles())).
		Msg("campaign reloaded")
	ok(c, http.StatusOK, ReloadResponse{Status: "reloaded", Creators: len(reg.Handles())})
}

// ResetLedger godoc
// @ID          resetLedger
// @Summary     Wipe the interaction ledger
// @Description Deletes every interaction record. Intended for demos and test environments.
// @Tags        Admin
//
// @Success     204  {string}  string  "No Content"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /admin/reset [post]
func (h *Handlers) ResetLedger(c *gin.Context) {
	if err := repo.ResetInteractions(c.Request.Context(), h.db); err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	noContent(c)
}
