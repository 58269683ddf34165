// Package services – AgentService
//
// This file implements the AgentService, the single entry point for turning an
// incoming platform message into a terminal Decision and an appended ledger
// row. It runs the full pipeline: intent gating, the three-tier creator
// matcher cascade (exact, fuzzy, remote classifier), deterministic profile
// enrichment, the decision table, and the idempotent code-issuance check
// against the interaction ledger.
//
// Observability: Process is OpenTelemetry-instrumented and increments a
// Prometheus counter per terminal decision. Classifier failures are logged and
// degrade gracefully to a "pending creator info" decision; they never fail the
// request.
package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-discount-agent/internal/campaign"
	"github.com/tbourn/go-discount-agent/internal/classifier"
	"github.com/tbourn/go-discount-agent/internal/domain"
	"github.com/tbourn/go-discount-agent/internal/enrich"
	"github.com/tbourn/go-discount-agent/internal/match"
	"github.com/tbourn/go-discount-agent/internal/repo"
)

// CreatorClassifier is the remote-classifier contract required by
// AgentService. The production implementation is classifier.Client; tests
// substitute fakes. Implementations must not return errors: failures are
// reported inside the Result.
type CreatorClassifier interface {
	DetectCreator(ctx context.Context, text string, allowed []string) classifier.Result
}

var decisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "agent_decisions_total",
	Help: "Terminal agent decisions by conversation status and detection method.",
}, []string{"status", "method"})

// AgentService coordinates the message pipeline. It is safe for concurrent
// use: the campaign.Store hands out immutable registry snapshots, and ledger
// reads-then-writes for the same (platform, user) pair are serialized through
// a keyed mutex so concurrent requests cannot both issue a code.
type AgentService struct {
	// DB is the GORM handle used for ledger persistence.
	DB *gorm.DB
	// Campaigns provides the current campaign registry snapshot.
	Campaigns *campaign.Store
	// Classifier is the optional third matcher tier. Nil disables it even
	// when the campaign flags enable the fallback.
	Classifier CreatorClassifier

	mu    sync.Mutex
	locks map[string]*userLock
}

type userLock struct {
	mu   sync.Mutex
	refs int
}

// NewAgentService constructs an AgentService over the given dependencies.
func NewAgentService(db *gorm.DB, campaigns *campaign.Store, cls CreatorClassifier) *AgentService {
	return &AgentService{
		DB:         db,
		Campaigns:  campaigns,
		Classifier: cls,
		locks:      make(map[string]*userLock),
	}
}

// Process runs the full pipeline for one message and returns the terminal
// decision together with the ledger row it appended. The returned error is
// non-nil only for invalid input or a storage failure; classifier problems
// degrade to a pending decision instead of erroring.
func (s *AgentService) Process(ctx context.Context, msg domain.IncomingMessage) (*domain.Decision, *domain.InteractionRecord, error) {
	tr := otel.Tracer("services/AgentService")
	ctx, span := tr.Start(ctx, "Process",
		trace.WithAttributes(
			attribute.String("platform", string(msg.Platform)),
			attribute.String("user.id", msg.UserID),
		),
	)
	defer span.End()

	if msg.Text == "" {
		return nil, nil, ErrEmptyMessage
	}
	if msg.UserID == "" {
		return nil, nil, ErrEmptyUserID
	}
	if _, ok := domain.ParsePlatform(string(msg.Platform)); !ok {
		return nil, nil, ErrUnknownPlatform
	}

	reg := s.Campaigns.Current()
	norm := match.Normalize(msg.Text)
	matcher := match.New(reg)

	var (
		decision *domain.Decision
		unlock   func()
	)
	if !matcher.InScope(norm) {
		decision = &domain.Decision{
			Reply:       reg.Template(campaign.TemplateOutOfScope),
			TemplateKey: campaign.TemplateOutOfScope,
			Status:      domain.StatusOutOfScope,
			Trace:       []string{"intent: out_of_scope"},
		}
	} else {
		det := s.detect(ctx, reg, matcher, norm)
		if !det.Found() {
			decision = &domain.Decision{
				Reply:       reg.Template(campaign.TemplateAskCreator),
				TemplateKey: campaign.TemplateAskCreator,
				Status:      domain.StatusPendingInfo,
				Confidence:  det.Confidence,
				Trace:       det.Trace,
			}
		} else {
			// The lock is held from the ledger check through the row
			// append below so a concurrent request for the same pair
			// cannot also pass the check and issue a second code.
			unlock = s.lockUser(string(msg.Platform), msg.UserID)
			d, err := s.decideForCreator(ctx, reg, msg, det)
			if err != nil {
				unlock()
				return nil, nil, err
			}
			decision = d
		}
	}
	span.SetAttributes(attribute.String("decision.status", string(decision.Status)))

	rec := buildRecord(msg, decision)
	err := repo.AppendInteraction(ctx, s.DB, rec)
	if unlock != nil {
		unlock()
	}
	if err != nil {
		log.Error().Err(err).
			Str("platform", string(msg.Platform)).
			Str("user_id", msg.UserID).
			Msg("ledger append failed")
		return nil, nil, err
	}

	decisionsTotal.WithLabelValues(string(decision.Status), string(decision.Method)).Inc()
	return decision, rec, nil
}

// detect runs the matcher cascade against normalized text. The first tier to
// resolve a creator wins; each tier contributes a trace note whether or not it
// matched. A classifier failure is recorded in the trace and leaves the
// result empty so the caller falls through to a pending decision.
func (s *AgentService) detect(ctx context.Context, reg *campaign.Registry, m *match.Matcher, norm string) domain.DetectionResult {
	tr := otel.Tracer("services/AgentService")
	ctx, span := tr.Start(ctx, "detect")
	defer span.End()

	var det domain.DetectionResult

	if handle, ok := m.Exact(norm); ok {
		det.Creator = handle
		det.Method = domain.MethodExact
		det.Confidence = 1.0
		det.Trace = append(det.Trace, "exact: matched "+handle)
		return det
	}
	det.Trace = append(det.Trace, "exact: no match")

	if handle, score, runnerUp, ok := m.Fuzzy(norm); ok {
		det.Creator = handle
		det.Method = domain.MethodFuzzy
		det.Confidence = score
		det.Trace = append(det.Trace,
			fmt.Sprintf("fuzzy: matched %s score=%.3f runner_up=%.3f", handle, score, runnerUp))
		return det
	}
	det.Trace = append(det.Trace, "fuzzy: no match")

	if !reg.LLMEnabled() || s.Classifier == nil {
		det.Trace = append(det.Trace, "llm: disabled")
		return det
	}
	res := s.Classifier.DetectCreator(ctx, norm, reg.Handles())
	if res.Creator != "" {
		det.Creator = res.Creator
		det.Method = domain.MethodLLM
		det.Confidence = res.Confidence
		det.Trace = append(det.Trace,
			fmt.Sprintf("llm: matched %s attempts=%d latency=%s", res.Creator, res.Attempts, res.TotalLatency))
		return det
	}
	log.Warn().
		Str("reason", res.ErrorReason).
		Int("attempts", res.Attempts).
		Dur("latency", res.TotalLatency).
		Msg("classifier fallback unresolved")
	det.Trace = append(det.Trace,
		fmt.Sprintf("llm: unresolved after %d attempts: %s", res.Attempts, res.ErrorReason))
	return det
}

// decideForCreator resolves the identified creator to either a fresh code
// issuance or the no-resend branch. The caller holds the per-(platform, user)
// lock for the duration of this call and the subsequent ledger append. The
// code lookup failing means the registry and the matcher disagree, which is
// an internal inconsistency.
func (s *AgentService) decideForCreator(ctx context.Context, reg *campaign.Registry, msg domain.IncomingMessage, det domain.DetectionResult) (*domain.Decision, error) {
	code, ok := reg.Code(det.Creator)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCreator, det.Creator)
	}
	profile := enrich.Profile(msg.UserID)

	canIssue, err := repo.CanIssueCode(ctx, s.DB, string(msg.Platform), msg.UserID)
	if err != nil {
		return nil, err
	}

	d := &domain.Decision{
		Creator:    det.Creator,
		Method:     det.Method,
		Confidence: det.Confidence,
		Enrichment: &profile,
		Trace:      det.Trace,
	}
	if !canIssue {
		// A completed record already exists for this pair; no second code.
		d.Reply = reg.Template(campaign.TemplateAlreadySent)
		d.TemplateKey = campaign.TemplateAlreadySent
		d.Status = domain.StatusPendingInfo
		d.Trace = append(d.Trace, "ledger: code already sent, not resending")
		return d, nil
	}
	d.Reply = reg.RenderIssueCode(det.Creator, code)
	d.TemplateKey = campaign.TemplateIssueCode
	d.Status = domain.StatusCompleted
	d.Code = &code
	d.Trace = append(d.Trace, "ledger: issuing code")
	return d, nil
}

// lockUser serializes ledger access per (platform, user) pair. Lock entries
// are reference counted and removed once the last holder releases, so the map
// does not grow with the user population.
func (s *AgentService) lockUser(platform, userID string) (unlock func()) {
	key := platform + "\x00" + userID

	s.mu.Lock()
	l, ok := s.locks[key]
	if !ok {
		l = &userLock{}
		s.locks[key] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, key)
		}
		s.mu.Unlock()
	}
}

// buildRecord maps a terminal decision onto an immutable ledger row. The row
// ID is assigned at insert time by the repository.
func buildRecord(msg domain.IncomingMessage, d *domain.Decision) *domain.InteractionRecord {
	rec := &domain.InteractionRecord{
		UserID:     msg.UserID,
		Platform:   string(msg.Platform),
		Timestamp:  domain.UTCTimestamp(time.Now()),
		RawMessage: msg.Text,
		Status:     string(d.Status),
	}
	if d.Creator != "" {
		creator := d.Creator
		rec.Creator = &creator
	}
	if d.Code != nil {
		code := *d.Code
		rec.CodeSent = &code
	}
	if d.Enrichment != nil {
		followers := d.Enrichment.FollowerCount
		influencer := d.Enrichment.Influencer
		rec.FollowerCount = &followers
		rec.Influencer = &influencer
	}
	return rec
}
