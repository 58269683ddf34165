// Package enrich produces the synthetic CRM snapshot attached to decisions.
// Values are a pure function of the user identifier, derived from an FNV-1a
// hash so the same user always enriches to the same profile, across runs and
// processes. The numbers are placeholders for a real CRM integration and are
// used only for observability and analytics.
package enrich

import (
	"hash/fnv"

	"github.com/tbourn/go-discount-agent/internal/domain"
)

const (
	baseFollowers  = 10_000
	followerSpread = 900_000
	influencerBar  = 50_000
)

// Profile returns the deterministic enrichment snapshot for userID.
// Follower counts land in [10k, 110k); the influencer flag trips on a high
// follower count or on the hash's low decimal digit.
func Profile(userID string) domain.Enrichment {
	h := fnv.New32a()
	h.Write([]byte(userID)) // never errors
	uid := h.Sum32() % 100_000

	followers := baseFollowers + int(uid)%followerSpread
	return domain.Enrichment{
		FollowerCount: followers,
		Influencer:    followers > influencerBar || uid%10 > 7,
	}
}
