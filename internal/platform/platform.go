// Package platform adapts provider-specific webhook payloads to the internal
// IncomingMessage shape and verifies webhook signatures.
//
// Each adapter first tries the provider's documented payload shape and falls
// back to a minimal flat extraction, so hand-crafted simulator payloads keep
// working. Signature verification is HMAC-SHA256 over the raw request body;
// an empty configured secret disables verification for that platform.
package platform

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/tbourn/go-discount-agent/internal/domain"
	"github.com/tbourn/go-discount-agent/internal/sysutil"
)

// ErrBadPayload is returned when a webhook body is not valid JSON or carries
// no recognizable sender.
var ErrBadPayload = errors.New("unrecognized webhook payload")

// Secrets holds the per-platform webhook secrets. Empty values disable
// signature verification for that platform.
type Secrets struct {
	Instagram string
	TikTok    string
	WhatsApp  string
}

func (s Secrets) forPlatform(p domain.Platform) string {
	switch p {
	case domain.PlatformInstagram:
		return s.Instagram
	case domain.PlatformTikTok:
		return s.TikTok
	case domain.PlatformWhatsApp:
		return s.WhatsApp
	}
	return ""
}

// VerifySignature checks the platform's signature header against an
// HMAC-SHA256 of body. Meta platforms (Instagram, WhatsApp) send
// "X-Hub-Signature-256: sha256=<hex>"; TikTok sends a bare hex digest in
// "X-Tiktok-Signature". Returns true when no secret is configured.
func VerifySignature(p domain.Platform, secrets Secrets, header http.Header, body []byte) bool {
	secret := secrets.forPlatform(p)
	if secret == "" {
		return true
	}

	var sig string
	switch p {
	case domain.PlatformTikTok:
		sig = header.Get("X-Tiktok-Signature")
	default:
		sig = header.Get("X-Hub-Signature-256")
		if !strings.HasPrefix(sig, "sha256=") {
			return false
		}
		sig = strings.TrimPrefix(sig, "sha256=")
	}
	if sig == "" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(sig), []byte(expected))
}

// Normalize parses a raw webhook body for platform p into an IncomingMessage.
func Normalize(p domain.Platform, body []byte) (domain.IncomingMessage, error) {
	switch p {
	case domain.PlatformInstagram:
		return normalizeInstagram(body)
	case domain.PlatformTikTok:
		return normalizeTikTok(body)
	case domain.PlatformWhatsApp:
		return normalizeWhatsApp(body)
	}
	return domain.IncomingMessage{}, ErrBadPayload
}

// flatPayload is the minimal fallback shape shared by all adapters.
type flatPayload struct {
	UserID    string `json:"user_id"`
	Text      string `json:"text"`
	MessageID string `json:"message_id"`
	From      struct {
		ID string `json:"id"`
	} `json:"from"`
	Sender struct {
		ID string `json:"id"`
	} `json:"sender"`
	Message struct {
		Text string `json:"text"`
		MID  string `json:"mid"`
	} `json:"message"`
}

func fallback(p domain.Platform, body []byte) (domain.IncomingMessage, error) {
	var flat flatPayload
	if err := json.Unmarshal(body, &flat); err != nil {
		return domain.IncomingMessage{}, ErrBadPayload
	}
	userID := sysutil.FirstNonEmpty(flat.UserID, flat.From.ID, flat.Sender.ID)
	if userID == "" {
		return domain.IncomingMessage{}, ErrBadPayload
	}
	msg := domain.NewIncomingMessage(p, userID, sysutil.FirstNonEmpty(flat.Text, flat.Message.Text))
	msg.MessageID = sysutil.FirstNonEmpty(flat.MessageID, flat.Message.MID)
	return msg, nil
}

// normalizeInstagram handles the Meta messaging webhook shape:
//
//	{"entry": [{"messaging": [{"sender": {"id": ...},
//	  "message": {"mid": ..., "text": ...}, "timestamp": ...}]}]}
func normalizeInstagram(body []byte) (domain.IncomingMessage, error) {
	var payload struct {
		Entry []struct {
			Messaging []struct {
				Sender struct {
					ID string `json:"id"`
				} `json:"sender"`
				Message struct {
					MID  string `json:"mid"`
					Text string `json:"text"`
				} `json:"message"`
			} `json:"messaging"`
		} `json:"entry"`
	}
	if err := json.Unmarshal(body, &payload); err == nil &&
		len(payload.Entry) > 0 && len(payload.Entry[0].Messaging) > 0 {
		m := payload.Entry[0].Messaging[0]
		if m.Sender.ID != "" {
			msg := domain.NewIncomingMessage(domain.PlatformInstagram, m.Sender.ID, m.Message.Text)
			msg.MessageID = m.Message.MID
			return msg, nil
		}
	}
	return fallback(domain.PlatformInstagram, body)
}

// normalizeTikTok handles:
//
//	{"messages": [{"sender": {"id": ...}, "id": ..., "text": ...}]}
func normalizeTikTok(body []byte) (domain.IncomingMessage, error) {
	var payload struct {
		Messages []struct {
			Sender struct {
				ID string `json:"id"`
			} `json:"sender"`
			ID   string `json:"id"`
			Text string `json:"text"`
		} `json:"messages"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && len(payload.Messages) > 0 {
		m := payload.Messages[0]
		if m.Sender.ID != "" {
			msg := domain.NewIncomingMessage(domain.PlatformTikTok, m.Sender.ID, m.Text)
			msg.MessageID = m.ID
			return msg, nil
		}
	}
	return fallback(domain.PlatformTikTok, body)
}

// normalizeWhatsApp handles the WhatsApp Business shape:
//
//	{"contacts": [{"wa_id": ...}],
//	 "messages": [{"id": ..., "text": {"body": ...}}]}
func normalizeWhatsApp(body []byte) (domain.IncomingMessage, error) {
	var payload struct {
		Contacts []struct {
			WAID string `json:"wa_id"`
		} `json:"contacts"`
		Messages []struct {
			ID   string `json:"id"`
			Text struct {
				Body string `json:"body"`
			} `json:"text"`
		} `json:"messages"`
	}
	if err := json.Unmarshal(body, &payload); err == nil &&
		len(payload.Contacts) > 0 && payload.Contacts[0].WAID != "" {
		var text, id string
		if len(payload.Messages) > 0 {
			text = payload.Messages[0].Text.Body
			id = payload.Messages[0].ID
		}
		msg := domain.NewIncomingMessage(domain.PlatformWhatsApp, payload.Contacts[0].WAID, text)
		msg.MessageID = id
		return msg, nil
	}
	return fallback(domain.PlatformWhatsApp, body)
}
