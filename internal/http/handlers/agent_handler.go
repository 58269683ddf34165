// Agent HTTP handlers.
//
// This file exposes the two message-ingestion endpoints:
//   - POST /simulate             (flat payload, for demos and tests)
//   - POST /webhook/{platform}   (provider payloads, signature-verified)
//
// Handlers are transport-thin: they validate input, call the agent service,
// and translate results into HTTP responses. Both endpoints return the same
// decision body so a simulated message and a real webhook are interchangeable
// from the client's point of view.
package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/tbourn/go-discount-agent/internal/campaign"
	"github.com/tbourn/go-discount-agent/internal/domain"
	"github.com/tbourn/go-discount-agent/internal/http/middleware"
	"github.com/tbourn/go-discount-agent/internal/platform"
	"github.com/tbourn/go-discount-agent/internal/services"
)

// AgentProcessor defines the pipeline operation consumed by HTTP handlers.
//
// Implementations must be safe for concurrent use and honor the provided
// context for cancellation and timeouts.
type AgentProcessor interface {
	// Process runs one message through the agent and appends a ledger row.
	Process(ctx context.Context, msg domain.IncomingMessage) (*domain.Decision, *domain.InteractionRecord, error)
}

// Handlers bundles the dependencies shared by all endpoint implementations.
type Handlers struct {
	agent     AgentProcessor
	db        *gorm.DB
	campaigns *campaign.Store
	secrets   platform.Secrets
}

// New constructs the handler set used by the router.
func New(agent AgentProcessor, db *gorm.DB, campaigns *campaign.Store, secrets platform.Secrets) *Handlers {
	return &Handlers{agent: agent, db: db, campaigns: campaigns, secrets: secrets}
}

// SimulateRequest is the flat message payload accepted by POST /simulate.
type SimulateRequest struct {
	// Platform the message pretends to arrive from.
	Platform string `json:"platform" binding:"required" example:"instagram"`
	// UserID is the platform-scoped sender identifier.
	UserID string `json:"user_id" binding:"required" example:"insta_user_9"`
	// Text is the raw message text.
	Text string `json:"text" binding:"required" example:"hi, I want my discount from @mkbhd"`
}

// Simulate godoc
// @ID          simulateMessage
// @Summary     Process a simulated message
// @Description Runs a flat message payload through the full agent pipeline and returns the decision.
// @Tags        Agent
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.SimulateRequest  true  "Message payload"
//
// @Success     200  {object}  domain.Decision
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /simulate [post]
func (h *Handlers) Simulate(c *gin.Context) {
	var req SimulateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	p, okp := domain.ParsePlatform(req.Platform)
	if !okp {
		fail(c, http.StatusBadRequest, ErrCodeUnknownPlatform, "platform must be one of: instagram, tiktok, whatsapp")
		return
	}

	msg := domain.NewIncomingMessage(p, req.UserID, req.Text)
	h.process(c, msg)
}

// Webhook godoc
// @ID          platformWebhook
// @Summary     Receive a platform webhook
// @Description Verifies the platform signature, normalizes the provider payload, and runs it through the agent pipeline.
// @Tags        Agent
// @Accept      json
// @Produce     json
//
// @Param       platform  path  string  true  "Platform name"  Enums(instagram, tiktok, whatsapp)
//
// @Success     200  {object}  domain.Decision
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     401  {object}  handlers.ErrorResponse  "Invalid signature"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /webhook/{platform} [post]
func (h *Handlers) Webhook(c *gin.Context) {
	p, okp := domain.ParsePlatform(c.Param("platform"))
	if !okp {
		fail(c, http.StatusBadRequest, ErrCodeUnknownPlatform, "platform must be one of: instagram, tiktok, whatsapp")
		return
	}

	body, err := c.GetRawData()
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "unreadable request body")
		return
	}
	if !platform.VerifySignature(p, h.secrets, c.Request.Header, body) {
		middleware.LoggerFrom(c).Warn().
			Str("platform", string(p)).
			Msg("webhook signature rejected")
		fail(c, http.StatusUnauthorized, ErrCodeInvalidSignature, "signature verification failed")
		return
	}

	msg, err := platform.Normalize(p, body)
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "unrecognized webhook payload")
		return
	}
	h.process(c, msg)
}

// process runs the pipeline and maps service errors onto the HTTP taxonomy.
func (h *Handlers) process(c *gin.Context, msg domain.IncomingMessage) {
	decision, _, err := h.agent.Process(c.Request.Context(), msg)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrEmptyMessage),
			errors.Is(err, services.ErrEmptyUserID),
			errors.Is(err, services.ErrUnknownPlatform):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		default:
			fail(c, http.StatusInternalServerError, ErrCodeProcessFailed, err.Error())
		}
		return
	}
	ok(c, http.StatusOK, decision)
}
