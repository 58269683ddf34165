package match

import "testing"

func TestNormalize_LowercaseTrimCollapse(t *testing.T) {
	got := Normalize("  HEY   there,   I want   a CODE!  ")
	want := "hey there i want a code"
	if got != want {
		t.Fatalf("Normalize mismatch: got %q want %q", got, want)
	}
}

func TestNormalize_StripsPunctuationKeepsMentions(t *testing.T) {
	got := Normalize("discount from @mkbhd, please!!!")
	want := "discount from @mkbhd please"
	if got != want {
		t.Fatalf("Normalize mismatch: got %q want %q", got, want)
	}
}

func TestNormalize_UnicodePunctuation(t *testing.T) {
	// Typographic quotes and the em-dash become spaces, which then collapse;
	// the apostrophe in "it’s" splits the word.
	got := Normalize("“it’s from casey — honest”")
	want := "it s from casey honest"
	if got != want {
		t.Fatalf("Normalize mismatch: got %q want %q", got, want)
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	inputs := []string{
		"  Hello!  ",
		"code from @casey_neistat ...",
		"“smart quotes” and (parens)",
		"",
	}
	for _, in := range inputs {
		once := Normalize(in)
		twice := Normalize(once)
		if once != twice {
			t.Fatalf("Normalize not idempotent for %q: %q != %q", in, once, twice)
		}
	}
}
