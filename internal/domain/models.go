// Package domain defines the core data model of the discount agent: the
// supported platforms, conversation statuses, detection methods, the incoming
// message shape, the agent decision, and the persisted interaction record.
// These types are shared across the matcher, services, repository, and HTTP
// layers.
package domain

import (
	"strings"
	"time"
)

// Platform identifies the social platform a message arrived from.
type Platform string

// Supported platforms.
const (
	PlatformInstagram Platform = "instagram"
	PlatformTikTok    Platform = "tiktok"
	PlatformWhatsApp  Platform = "whatsapp"
)

// ParsePlatform normalizes and validates a platform string.
func ParsePlatform(s string) (Platform, bool) {
	switch Platform(strings.ToLower(strings.TrimSpace(s))) {
	case PlatformInstagram:
		return PlatformInstagram, true
	case PlatformTikTok:
		return PlatformTikTok, true
	case PlatformWhatsApp:
		return PlatformWhatsApp, true
	default:
		return "", false
	}
}

// ConversationStatus is the terminal state of one processed message.
type ConversationStatus string

// Conversation statuses.
const (
	StatusOutOfScope  ConversationStatus = "out_of_scope"
	StatusPendingInfo ConversationStatus = "pending_creator_info"
	StatusCompleted   ConversationStatus = "completed"
	StatusError       ConversationStatus = "error"
)

// DetectionMethod records which matcher tier resolved a creator.
type DetectionMethod string

// Detection methods, in cascade order.
const (
	MethodExact DetectionMethod = "exact"
	MethodFuzzy DetectionMethod = "fuzzy"
	MethodLLM   DetectionMethod = "llm"
)

// IncomingMessage is one inbound DM, normalized to the internal shape by the
// platform adapters. Text is lower-cased and trimmed at construction; the
// struct is treated as immutable afterward.
//
// Fields:
//   - Platform: one of the Platform constants.
//   - UserID: platform-scoped user identifier (never empty).
//   - Text: raw message text (never empty; lower-cased/trimmed).
//   - ThreadID / MessageID: optional platform-specific identifiers.
type IncomingMessage struct {
	Platform  Platform
	UserID    string
	Text      string
	ThreadID  string
	MessageID string
}

// NewIncomingMessage constructs an IncomingMessage with the text lower-cased
// and trimmed, matching the construction-time normalization contract.
func NewIncomingMessage(platform Platform, userID, text string) IncomingMessage {
	return IncomingMessage{
		Platform: platform,
		UserID:   userID,
		Text:     strings.ToLower(strings.TrimSpace(text)),
	}
}

// DetectionResult is the outcome of the creator matcher cascade.
//
// Confidence is always clamped to [0,1]. Trace holds human-readable notes for
// each cascade step taken; it is diagnostic only and never drives control flow.
type DetectionResult struct {
	Creator    string          `json:"creator,omitempty"`
	Method     DetectionMethod `json:"method,omitempty"`
	Confidence float64         `json:"confidence"`
	Trace      []string        `json:"trace,omitempty"`
}

// Found reports whether the cascade resolved a creator.
func (r DetectionResult) Found() bool { return r.Creator != "" }

// Enrichment is the synthetic CRM snapshot attached to decisions once a
// creator has been identified. Values are a deterministic function of the
// user identifier; see the enrich package.
type Enrichment struct {
	FollowerCount int  `json:"follower_count"`
	Influencer    bool `json:"is_potential_influencer"`
}

// Decision is the agent's terminal verdict for one message.
//
// Invariant: Status == StatusCompleted implies Code != nil and Creator != "".
type Decision struct {
	Reply       string             `json:"reply"`
	TemplateKey string             `json:"template_key"`
	Status      ConversationStatus `json:"conversation_status"`
	Creator     string             `json:"identified_creator,omitempty"`
	Method      DetectionMethod    `json:"detection_method,omitempty"`
	Confidence  float64            `json:"detection_confidence"`
	Code        *string            `json:"discount_code_sent,omitempty"`
	Enrichment  *Enrichment        `json:"enrichment,omitempty"`
	Trace       []string           `json:"trace,omitempty"`
}

// InteractionRecord is the immutable ledger row written once per processed
// message. Rows are never updated or deleted individually; the ledger may be
// wiped wholesale via an administrative reset.
//
// Timestamp is UTC ISO-8601 with millisecond precision and a trailing "Z",
// stored as text so the wire format and the stored format are identical.
type InteractionRecord struct {
	ID            string  `json:"-"                                 gorm:"type:char(36);primaryKey"`
	UserID        string  `json:"user_id"                           gorm:"type:varchar(64);not null;index:idx_platform_user,priority:2"`
	Platform      string  `json:"platform"                          gorm:"type:varchar(16);not null;index:idx_platform_user,priority:1;check:platform IN ('instagram','tiktok','whatsapp')"`
	Timestamp     string  `json:"timestamp"                         gorm:"type:varchar(32);not null"`
	RawMessage    string  `json:"raw_incoming_message"              gorm:"type:text;not null"`
	Creator       *string `json:"identified_creator"                gorm:"type:varchar(64);index"`
	CodeSent      *string `json:"discount_code_sent"                gorm:"column:discount_code_sent;type:varchar(64)"`
	Status        string  `json:"conversation_status"               gorm:"column:conversation_status;type:varchar(32);not null;check:conversation_status IN ('pending_creator_info','completed','error','out_of_scope')"`
	FollowerCount *int    `json:"follower_count,omitempty"          gorm:"column:follower_count"`
	Influencer    *bool   `json:"is_potential_influencer,omitempty" gorm:"column:is_potential_influencer"`
}

// TableName returns the database table name for InteractionRecord.
func (InteractionRecord) TableName() string { return "interactions" }

// UTCTimestamp formats t as the ledger timestamp: UTC, millisecond precision,
// ISO-8601 with a trailing "Z".
func UTCTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}

// CreatorStats is the per-creator slice of an AnalyticsSummary.
type CreatorStats struct {
	CreatorHandle  string                   `json:"creator_handle"`
	TotalRequests  int                      `json:"requests"`
	TotalCompleted int                      `json:"codes_sent"`
	Platforms      map[string]PlatformStats `json:"platform_breakdown"`
}

// PlatformStats counts requests and completed issuances on one platform.
type PlatformStats struct {
	Requests  int `json:"requests"`
	CodesSent int `json:"codes_sent"`
}

// AnalyticsSummary is derived on demand from the full interaction set; it is
// never stored. Interactions without an identified creator are grouped under
// the "unknown" bucket.
type AnalyticsSummary struct {
	TotalCreators  int                     `json:"total_creators"`
	TotalRequests  int                     `json:"total_requests"`
	TotalCompleted int                     `json:"total_completed"`
	Creators       map[string]CreatorStats `json:"creators"`
}

// UnknownCreator is the analytics bucket for interactions where no creator
// was identified.
const UnknownCreator = "unknown"
