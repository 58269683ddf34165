package match

import "testing"

func TestRatio_Bounds(t *testing.T) {
	if got := Ratio("", ""); got != 1.0 {
		t.Fatalf("Ratio empty/empty = %v; want 1.0", got)
	}
	if got := Ratio("abc", ""); got != 0 {
		t.Fatalf("Ratio vs empty = %v; want 0", got)
	}
	if got := Ratio("casey", "casey"); got != 1.0 {
		t.Fatalf("Ratio identical = %v; want 1.0", got)
	}
	if got := Ratio("abc", "xyz"); got != 0 {
		t.Fatalf("Ratio disjoint = %v; want 0", got)
	}
}

func TestRatio_Symmetric(t *testing.T) {
	a, b := "marques brownlee", "marques bronlee"
	if Ratio(a, b) != Ratio(b, a) {
		t.Fatalf("Ratio not symmetric for %q/%q", a, b)
	}
}

func TestPartialRatio_SubstringScoresFull(t *testing.T) {
	if got := PartialRatio("casey", "i got a code from casey yesterday"); got != 1.0 {
		t.Fatalf("PartialRatio embedded exact = %v; want 1.0", got)
	}
}

func TestPartialRatio_TypoScoresAboveThreshold(t *testing.T) {
	// A one-letter typo against a full alias must clear the default 0.8
	// acceptance threshold.
	got := PartialRatio("marques bronlee", "marques brownlee")
	if got < 0.8 {
		t.Fatalf("PartialRatio typo = %v; want >= 0.8", got)
	}
	if got > 1.0 {
		t.Fatalf("PartialRatio typo = %v; want <= 1.0", got)
	}
}

func TestPartialRatio_EqualLengthReducesToRatio(t *testing.T) {
	a, b := "neistat", "neistât"
	if PartialRatio(a, b) != Ratio(a, b) {
		t.Fatalf("PartialRatio equal-length should equal Ratio")
	}
}

func TestClamp(t *testing.T) {
	cases := []struct{ in, want float64 }{
		{-0.5, 0}, {0, 0}, {0.42, 0.42}, {1, 1}, {1.7, 1},
	}
	for _, c := range cases {
		if got := Clamp(c.in); got != c.want {
			t.Fatalf("Clamp(%v) = %v; want %v", c.in, got, c.want)
		}
	}
}
