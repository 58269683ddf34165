package match

import (
	"regexp"
	"strings"

	"github.com/tbourn/go-discount-agent/internal/campaign"
)

// discountKeywords signal discount-request intent when present literally.
var discountKeywords = []string{
	"discount", "code", "coupon", "promo", "creator", "sent me",
	"story", "from @",
}

// outOfScopeKeywords signal small talk (greetings, thanks, farewells).
var outOfScopeKeywords = []string{
	"hello", "hi", "how are you", "what's up", "whats up", "good morning",
	"good evening", "thank you", "thanks", "bye", "goodbye",
	"how's it going", "sup", "yo", "hey", "greetings",
}

// fromMentionRE matches "from <token>" where the token is handle-shaped:
// letters/digits/underscore/dot, length >= 3, optionally prefixed with '@'.
var fromMentionRE = regexp.MustCompile(`\bfrom\s+(@?[a-z0-9_.]{3,})\b`)

// Matcher resolves normalized message text to a creator handle using the
// exact and fuzzy tiers, and gates messages for discount intent. It reads
// only from an immutable campaign.Registry snapshot and is safe for
// concurrent use.
type Matcher struct {
	reg *campaign.Registry
}

// New builds a Matcher over the given registry snapshot.
func New(reg *campaign.Registry) *Matcher {
	return &Matcher{reg: reg}
}

// hasFromMention reports whether text contains a handle-shaped "from" mention.
func hasFromMention(text string) bool {
	return fromMentionRE.MatchString(text)
}

// hasDiscountKeyword reports whether any discount-intent keyword appears.
func (m *Matcher) hasDiscountKeyword(text string) bool {
	for _, kw := range discountKeywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

// hasCreatorToken reports whether any known creator token appears as a word.
func (m *Matcher) hasCreatorToken(text string) bool {
	for _, tok := range strings.Fields(text) {
		tok = strings.TrimPrefix(tok, "@")
		if m.reg.HasToken(tok) {
			return true
		}
	}
	return false
}

// bestAliasScore returns the highest PartialRatio between text and any alias,
// stopping early once the acceptance threshold is reached.
func (m *Matcher) bestAliasScore(text string) float64 {
	threshold := m.reg.FuzzyAccept()
	best := 0.0
	for _, alias := range m.reg.Aliases() {
		if s := PartialRatio(text, alias); s > best {
			best = s
			if best >= threshold {
				break
			}
		}
	}
	return best
}

// InScope decides whether a normalized message plausibly asks for a discount
// code. The ordering is deliberate: a greeting combined with a strong creator
// signal (from-mention or strong fuzzy alias score) is rescued into scope; a
// bare greeting is not; unrecognized text defaults to out-of-scope.
func (m *Matcher) InScope(text string) bool {
	outCount := 0
	for _, kw := range outOfScopeKeywords {
		if strings.Contains(text, kw) {
			outCount++
		}
	}
	discount := m.hasDiscountKeyword(text)
	fromMention := hasFromMention(text)
	bestScore := m.bestAliasScore(text)
	threshold := m.reg.FuzzyAccept()

	if outCount >= 1 && !discount {
		if !fromMention && bestScore < threshold {
			return false
		}
	}
	if discount || m.hasCreatorToken(text) {
		return true
	}
	if fromMention {
		return true
	}
	if bestScore >= threshold {
		return true
	}
	return false
}

// Exact attempts a literal case-insensitive substring match of a creator
// handle or registered alias against text. Handles are checked before
// aliases; the first match wins.
func (m *Matcher) Exact(text string) (handle string, ok bool) {
	for _, h := range m.reg.Handles() {
		if strings.Contains(text, strings.ToLower(h)) {
			return h, true
		}
	}
	for _, alias := range m.reg.Aliases() {
		if strings.Contains(text, alias) {
			if h, found := m.reg.CreatorOfAlias(alias); found {
				return h, true
			}
		}
	}
	return "", false
}

// Fuzzy scores text against every alias of every creator and returns the
// single best-scoring creator when the score meets the acceptance threshold.
// The runner-up score is reported so near-ties are observable in traces; no
// margin-over-second-best check is applied.
//
// Pre-gates: fuzzy matching must be enabled, and the text must contain a
// known creator token or a discount keyword, which avoids scoring clearly
// unrelated text.
func (m *Matcher) Fuzzy(text string) (handle string, score, runnerUp float64, ok bool) {
	if !m.reg.FuzzyEnabled() {
		return "", 0, 0, false
	}
	if !m.hasCreatorToken(text) && !m.hasDiscountKeyword(text) {
		return "", 0, 0, false
	}

	best, second := 0.0, 0.0
	bestCreator := ""
	for _, alias := range m.reg.Aliases() {
		s := PartialRatio(text, alias)
		if s > best {
			second = best
			best = s
			bestCreator, _ = m.reg.CreatorOfAlias(alias)
		} else if s > second {
			second = s
		}
	}

	if bestCreator == "" || best < m.reg.FuzzyAccept() {
		return "", Clamp(best), Clamp(second), false
	}
	return bestCreator, Clamp(best), Clamp(second), true
}
