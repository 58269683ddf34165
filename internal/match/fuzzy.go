package match

// Fuzzy similarity scoring.
//
// Ratio is the normalized indel similarity of two strings:
// 2*LCS(a,b) / (len(a)+len(b)), in [0,1]. PartialRatio slides the shorter
// string over the longer one and keeps the best window Ratio, so a short
// alias embedded in a longer message still scores high. Scores are
// deterministic and symmetric in the pair of inputs.

// Ratio returns the normalized indel similarity of a and b in [0,1].
// Identical strings score 1.0; strings with no common subsequence score 0.
func Ratio(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 && len(rb) == 0 {
		return 1.0
	}
	if len(ra) == 0 || len(rb) == 0 {
		return 0
	}
	lcs := lcsLength(ra, rb)
	return 2 * float64(lcs) / float64(len(ra)+len(rb))
}

// PartialRatio returns the best Ratio between the shorter of a/b and any
// same-length window of the longer one. Equal-length inputs reduce to Ratio.
func PartialRatio(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	if len(ra) > len(rb) {
		ra, rb = rb, ra
	}
	if len(ra) == 0 {
		if len(rb) == 0 {
			return 1.0
		}
		return 0
	}
	if len(ra) == len(rb) {
		return Ratio(string(ra), string(rb))
	}

	best := 0.0
	short := string(ra)
	for i := 0; i+len(ra) <= len(rb); i++ {
		if s := Ratio(short, string(rb[i:i+len(ra)])); s > best {
			best = s
			if best == 1.0 {
				break
			}
		}
	}
	return best
}

// lcsLength computes the longest-common-subsequence length with a rolling
// single-row table; O(len(a)*len(b)) time, O(min) space.
func lcsLength(a, b []rune) int {
	if len(a) > len(b) {
		a, b = b, a
	}
	prev := make([]int, len(a)+1)
	curr := make([]int, len(a)+1)
	for i := 1; i <= len(b); i++ {
		for j := 1; j <= len(a); j++ {
			if b[i-1] == a[j-1] {
				curr[j] = prev[j-1] + 1
			} else if prev[j] >= curr[j-1] {
				curr[j] = prev[j]
			} else {
				curr[j] = curr[j-1]
			}
		}
		prev, curr = curr, prev
	}
	return prev[len(a)]
}

// Clamp bounds v to [0,1]. Upstream tiers should already produce in-range
// confidences; this is the last line of validation before results leave the
// matcher.
func Clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
