package campaign

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const validCampaignYAML = `
creators:
  mkbhd:
    aliases: [mkbhd, marques, marques brownlee]
    code: MARQUES20
  casey_neistat:
    aliases: [casey, casey neistat]
    code: CASEY15OFF
thresholds:
  fuzzy_accept: 0.8
flags:
  enable_fuzzy_matching: true
  enable_llm_fallback: false
`

const validTemplatesYAML = `
replies:
  out_of_scope: "campaign help only"
  ask_creator: "which creator sent you?"
  issue_code: "code for {creator_handle}: {discount_code}"
  already_sent_no_resend: "already sent"
`

func writeConfigs(t *testing.T, campaignYAML, templatesYAML string) (string, string) {
	t.Helper()
	dir := t.TempDir()
	camp := filepath.Join(dir, "campaign.yaml")
	tmpl := filepath.Join(dir, "templates.yaml")
	if err := os.WriteFile(camp, []byte(campaignYAML), 0o600); err != nil {
		t.Fatalf("write campaign: %v", err)
	}
	if err := os.WriteFile(tmpl, []byte(templatesYAML), 0o600); err != nil {
		t.Fatalf("write templates: %v", err)
	}
	return camp, tmpl
}

func TestLoad_Success_IndexesRegistry(t *testing.T) {
	camp, tmpl := writeConfigs(t, validCampaignYAML, validTemplatesYAML)
	reg, err := Load(camp, tmpl)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	wantHandles := []string{"casey_neistat", "mkbhd"}
	got := reg.Handles()
	if len(got) != len(wantHandles) || got[0] != wantHandles[0] || got[1] != wantHandles[1] {
		t.Fatalf("Handles() = %v; want %v", got, wantHandles)
	}

	if h, ok := reg.CreatorOfAlias("marques brownlee"); !ok || h != "mkbhd" {
		t.Fatalf("CreatorOfAlias: got %q/%v", h, ok)
	}
	if code, ok := reg.Code("casey_neistat"); !ok || code != "CASEY15OFF" {
		t.Fatalf("Code: got %q/%v", code, ok)
	}
	if _, ok := reg.Code("nobody"); ok {
		t.Fatalf("Code for unknown handle should miss")
	}
	if reg.FuzzyAccept() != 0.8 || !reg.FuzzyEnabled() || reg.LLMEnabled() {
		t.Fatalf("thresholds/flags unexpected")
	}
}

func TestLoad_Tokens_IncludeUnderscoreParts(t *testing.T) {
	camp, tmpl := writeConfigs(t, validCampaignYAML, validTemplatesYAML)
	reg, err := Load(camp, tmpl)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	for _, tok := range []string{"mkbhd", "marques", "brownlee", "casey", "neistat", "casey_neistat"} {
		if !reg.HasToken(tok) {
			t.Fatalf("expected token %q", tok)
		}
	}
	// Short fragments never become tokens.
	if reg.HasToken("mk") {
		t.Fatalf("short token should not be registered")
	}
}

func TestLoad_Errors(t *testing.T) {
	t.Run("missing campaign file", func(t *testing.T) {
		_, tmpl := writeConfigs(t, validCampaignYAML, validTemplatesYAML)
		if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), tmpl); err == nil {
			t.Fatalf("expected error for missing campaign file")
		}
	})
	t.Run("creator without code", func(t *testing.T) {
		bad := `
creators:
  mkbhd:
    aliases: [mkbhd]
thresholds:
  fuzzy_accept: 0.8
`
		camp, tmpl := writeConfigs(t, bad, validTemplatesYAML)
		if _, err := Load(camp, tmpl); err == nil {
			t.Fatalf("expected validation error for missing code")
		}
	})
	t.Run("missing reply template", func(t *testing.T) {
		bad := `
replies:
  out_of_scope: "x"
  ask_creator: "y"
  issue_code: "z"
`
		camp, tmpl := writeConfigs(t, validCampaignYAML, bad)
		_, err := Load(camp, tmpl)
		if err == nil || !strings.Contains(err.Error(), "already_sent_no_resend") {
			t.Fatalf("expected missing template error, got: %v", err)
		}
	})
	t.Run("threshold out of range", func(t *testing.T) {
		bad := strings.Replace(validCampaignYAML, "fuzzy_accept: 0.8", "fuzzy_accept: 1.5", 1)
		camp, tmpl := writeConfigs(t, bad, validTemplatesYAML)
		if _, err := Load(camp, tmpl); err == nil {
			t.Fatalf("expected threshold validation error")
		}
	})
}

func TestRenderIssueCode(t *testing.T) {
	camp, tmpl := writeConfigs(t, validCampaignYAML, validTemplatesYAML)
	reg, err := Load(camp, tmpl)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	got := reg.RenderIssueCode("mkbhd", "MARQUES20")
	want := "code for mkbhd: MARQUES20"
	if got != want {
		t.Fatalf("RenderIssueCode = %q; want %q", got, want)
	}
}

func TestStore_Reload_KeepsPreviousOnError(t *testing.T) {
	camp, tmpl := writeConfigs(t, validCampaignYAML, validTemplatesYAML)
	store, err := NewStore(camp, tmpl)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	before := store.Current()

	// Corrupt the campaign file; reload must fail and keep the old snapshot.
	if err := os.WriteFile(camp, []byte("creators: []"), 0o600); err != nil {
		t.Fatalf("corrupt campaign: %v", err)
	}
	if err := store.Reload(); err == nil {
		t.Fatalf("Reload should fail on corrupt campaign")
	}
	if store.Current() != before {
		t.Fatalf("Reload failure must keep previous registry")
	}

	// Repair with a different creator set; reload must swap.
	repaired := strings.Replace(validCampaignYAML, "MARQUES20", "MARQUES25", 1)
	if err := os.WriteFile(camp, []byte(repaired), 0o600); err != nil {
		t.Fatalf("repair campaign: %v", err)
	}
	if err := store.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if code, _ := store.Current().Code("mkbhd"); code != "MARQUES25" {
		t.Fatalf("Reload did not swap registry: code=%q", code)
	}
}
