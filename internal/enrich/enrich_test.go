package enrich

import "testing"

func TestProfile_Deterministic(t *testing.T) {
	a := Profile("user-42")
	for i := 0; i < 5; i++ {
		b := Profile("user-42")
		if a != b {
			t.Fatalf("Profile not deterministic: %+v vs %+v", a, b)
		}
	}
}

func TestProfile_FollowerRange(t *testing.T) {
	ids := []string{"", "alice", "bob", "u1", "u2", "a-very-long-user-identifier-000"}
	for _, id := range ids {
		p := Profile(id)
		if p.FollowerCount < 10_000 || p.FollowerCount >= 110_000 {
			t.Errorf("Profile(%q).FollowerCount = %d; want [10000, 110000)", id, p.FollowerCount)
		}
	}
}

func TestProfile_InfluencerFollowsFollowerCount(t *testing.T) {
	// Above the bar the flag must be set regardless of the digit rule.
	for _, id := range []string{"x", "y", "z", "carol", "dave", "erin", "frank"} {
		p := Profile(id)
		if p.FollowerCount > 50_000 && !p.Influencer {
			t.Errorf("Profile(%q): %d followers but not flagged influencer", id, p.FollowerCount)
		}
	}
}

func TestProfile_DistinctUsersDiffer(t *testing.T) {
	// Not guaranteed for arbitrary pairs, but these known inputs hash apart.
	if Profile("alice") == Profile("bob") {
		t.Fatalf("expected distinct profiles for distinct users")
	}
}
