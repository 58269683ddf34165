// Package classifier wraps the remote creator-classification service in a
// bounded client: limited attempts, a total wall-clock budget, per-attempt
// timeouts, and strict response validation against an allow-list of creator
// handles. The client never returns an error past its boundary; every failure
// mode resolves to a structured Result so the caller can degrade gracefully.
package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-discount-agent/internal/domain"
)

// NoneSentinel is the literal value the service returns when it concludes no
// creator applies. A parsed sentinel is terminal: retrying cannot help.
const NoneSentinel = "none"

// Config holds the classifier client settings.
type Config struct {
	APIKey            string
	BaseURL           string
	Model             string
	MaxAttempts       int
	TotalBudget       time.Duration
	PerAttemptTimeout time.Duration
}

// Result is the structured outcome of a detection call.
//
// Creator is empty when no allow-listed handle was returned. Attempts counts
// requests actually issued (budget pre-checks that stop the loop do not
// consume an attempt). ErrorReason is empty only on success.
type Result struct {
	Creator      string
	Method       domain.DetectionMethod
	Confidence   float64
	Attempts     int
	TotalLatency time.Duration
	ErrorReason  string
}

// Client is the bounded HTTP client. Safe for concurrent use. The creator
// allow-list is supplied per call so a campaign hot-reload is picked up
// immediately.
type Client struct {
	cfg  Config
	http *http.Client
}

// successConfidence is attached to every allow-listed detection; the remote
// service reports no calibrated score of its own.
const successConfidence = 0.8

// New constructs a Client with defaults applied to zero-valued settings.
func New(cfg Config) *Client {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 2
	}
	if cfg.TotalBudget <= 0 {
		cfg.TotalBudget = 8 * time.Second
	}
	if cfg.PerAttemptTimeout <= 0 {
		cfg.PerAttemptTimeout = 4 * time.Second
	}
	return &Client{
		cfg: cfg,
		// Per-attempt deadlines come from contexts; no client-level timeout.
		http: &http.Client{},
	}
}

// request is the wire request: the normalized text plus the allow-list.
type request struct {
	Model   string   `json:"model,omitempty"`
	Message string   `json:"message"`
	Allowed []string `json:"allowed_creators"`
}

// response is the strict wire response: exactly one field, "creator", whose
// value is an allow-listed handle or the "none" sentinel. Anything else is a
// parse failure.
type response struct {
	Creator string `json:"creator"`
}

// attemptOutcome classifies a single attempt.
type attemptOutcome int

const (
	outcomeRetryable attemptOutcome = iota // malformed, disallowed, timeout, transport error
	outcomeTerminal                        // parsed "none": the service concluded no creator applies
	outcomeSuccess                         // allow-listed handle returned
)

// DetectCreator runs the bounded attempt loop for text against the given
// allow-list of creator handles and returns a structured Result. It never
// panics or returns an error; context cancellation from the caller stops the
// loop early with a canceled reason.
func (c *Client) DetectCreator(ctx context.Context, text string, allowed []string) Result {
	start := time.Now()
	attempts := 0
	lastReason := ""

	log.Debug().
		Int("max_attempts", c.cfg.MaxAttempts).
		Dur("total_budget", c.cfg.TotalBudget).
		Dur("per_attempt_timeout", c.cfg.PerAttemptTimeout).
		Msg("classifier detection started")

	for attempts < c.cfg.MaxAttempts {
		if err := ctx.Err(); err != nil {
			lastReason = "canceled: " + err.Error()
			break
		}
		elapsed := time.Since(start)
		if elapsed > c.cfg.TotalBudget {
			lastReason = "total budget exceeded"
			break
		}
		attempts++

		remaining := c.cfg.TotalBudget - elapsed
		timeout := c.cfg.PerAttemptTimeout
		if remaining < timeout {
			timeout = remaining
		}

		creator, outcome, reason := c.attempt(ctx, text, allowed, timeout)
		switch outcome {
		case outcomeSuccess:
			total := time.Since(start)
			log.Info().
				Str("creator", creator).
				Int("attempts", attempts).
				Dur("latency", total).
				Msg("classifier detection succeeded")
			return Result{
				Creator:      creator,
				Method:       domain.MethodLLM,
				Confidence:   successConfidence,
				Attempts:     attempts,
				TotalLatency: total,
			}
		case outcomeTerminal:
			total := time.Since(start)
			log.Info().
				Int("attempts", attempts).
				Dur("latency", total).
				Msg("classifier returned terminal none")
			return Result{
				Method:       domain.MethodLLM,
				Attempts:     attempts,
				TotalLatency: total,
				ErrorReason:  "classifier returned \"none\" (terminal)",
			}
		default:
			lastReason = reason
			log.Warn().
				Int("attempt", attempts).
				Str("reason", reason).
				Msg("classifier attempt failed, retryable")
		}

		// Progressive backoff between retryable attempts, skipped after the
		// last allowed attempt.
		if attempts < c.cfg.MaxAttempts {
			backoff := time.Duration(10+attempts*5) * time.Millisecond
			select {
			case <-ctx.Done():
			case <-time.After(backoff):
			}
		}
	}

	if lastReason == "" {
		lastReason = "retry limit exceeded"
	}
	return Result{
		Method:       domain.MethodLLM,
		Attempts:     attempts,
		TotalLatency: time.Since(start),
		ErrorReason:  lastReason,
	}
}

// attempt issues one classification request with the given timeout and
// classifies the outcome. All transport and parse problems are retryable.
func (c *Client) attempt(ctx context.Context, text string, allowed []string, timeout time.Duration) (creator string, outcome attemptOutcome, reason string) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	body, err := json.Marshal(request{Model: c.cfg.Model, Message: text, Allowed: allowed})
	if err != nil {
		return "", outcomeRetryable, fmt.Sprintf("marshal request: %v", err)
	}

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, c.cfg.BaseURL, bytes.NewReader(body))
	if err != nil {
		return "", outcomeRetryable, fmt.Sprintf("create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", outcomeRetryable, fmt.Sprintf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", outcomeRetryable, fmt.Sprintf("unexpected status %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return "", outcomeRetryable, fmt.Sprintf("read response: %v", err)
	}
	return c.validate(raw, allowed)
}

// validate enforces the strict output schema: a JSON object with exactly one
// known field, "creator", holding an allow-listed handle or the sentinel.
func (c *Client) validate(raw []byte, allowed []string) (creator string, outcome attemptOutcome, reason string) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()

	var r response
	if err := dec.Decode(&r); err != nil {
		return "", outcomeRetryable, fmt.Sprintf("malformed response: %v", err)
	}
	if r.Creator == NoneSentinel {
		return "", outcomeTerminal, ""
	}
	for _, h := range allowed {
		if r.Creator == h {
			return r.Creator, outcomeSuccess, ""
		}
	}
	return "", outcomeRetryable, fmt.Sprintf("handle %q not in allow-list", r.Creator)
}
