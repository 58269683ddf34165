package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"gorm.io/gorm"

	"github.com/tbourn/go-discount-agent/internal/campaign"
	"github.com/tbourn/go-discount-agent/internal/classifier"
	"github.com/tbourn/go-discount-agent/internal/domain"
	"github.com/tbourn/go-discount-agent/internal/repo"
)

const svcTemplatesYAML = `
replies:
  out_of_scope: "I can only help with creator discount codes."
  ask_creator: "Which creator sent you?"
  issue_code: "Here is your code from {creator_handle}: {discount_code}"
  already_sent_no_resend: "We already sent you a discount code."
`

func svcCampaignYAML(llm bool) string {
	flag := "false"
	if llm {
		flag = "true"
	}
	return `
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
  enable_llm_fallback: ` + flag + `
`
}

// fakeClassifier returns a canned result and records what it was asked.
type fakeClassifier struct {
	res     classifier.Result
	calls   int32
	allowed []string
}

func (f *fakeClassifier) DetectCreator(ctx context.Context, text string, allowed []string) classifier.Result {
	atomic.AddInt32(&f.calls, 1)
	f.allowed = allowed
	return f.res
}

func newTestService(t *testing.T, llm bool, cls CreatorClassifier) (*AgentService, *gorm.DB) {
	t.Helper()
	dir := t.TempDir()
	camp := filepath.Join(dir, "campaign.yaml")
	tmpl := filepath.Join(dir, "templates.yaml")
	if err := os.WriteFile(camp, []byte(svcCampaignYAML(llm)), 0o600); err != nil {
		t.Fatalf("write campaign: %v", err)
	}
	if err := os.WriteFile(tmpl, []byte(svcTemplatesYAML), 0o600); err != nil {
		t.Fatalf("write templates: %v", err)
	}
	store, err := campaign.NewStore(camp, tmpl)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	db, err := repo.Open(repo.MemoryDSN)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	return NewAgentService(db, store, cls), db
}

func msgOn(platform domain.Platform, userID, text string) domain.IncomingMessage {
	return domain.NewIncomingMessage(platform, userID, text)
}

func TestProcess_ExactMatch_IssuesCode(t *testing.T) {
	svc, _ := newTestService(t, false, nil)

	d, rec, err := svc.Process(context.Background(), msgOn(domain.PlatformInstagram, "u1", "my friend mkbhd sent me"))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if d.Status != domain.StatusCompleted {
		t.Fatalf("Status = %s; want completed", d.Status)
	}
	if d.Creator != "mkbhd" || d.Method != domain.MethodExact || d.Confidence != 1.0 {
		t.Fatalf("detection = %s/%s/%v", d.Creator, d.Method, d.Confidence)
	}
	if d.Code == nil || *d.Code != "MARQUES20" {
		t.Fatalf("Code = %v; want MARQUES20", d.Code)
	}
	if d.TemplateKey != campaign.TemplateIssueCode {
		t.Fatalf("TemplateKey = %s", d.TemplateKey)
	}
	if d.Reply != "Here is your code from mkbhd: MARQUES20" {
		t.Fatalf("Reply = %q", d.Reply)
	}
	if d.Enrichment == nil {
		t.Fatalf("Enrichment missing on completed decision")
	}

	if rec.Status != string(domain.StatusCompleted) || rec.CodeSent == nil || *rec.CodeSent != "MARQUES20" {
		t.Fatalf("ledger row = %+v", rec)
	}
	if rec.Creator == nil || *rec.Creator != "mkbhd" {
		t.Fatalf("ledger creator = %v", rec.Creator)
	}
}

func TestProcess_Greeting_OutOfScope(t *testing.T) {
	svc, _ := newTestService(t, false, nil)

	d, rec, err := svc.Process(context.Background(), msgOn(domain.PlatformTikTok, "u1", "Hey, what's up?"))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if d.Status != domain.StatusOutOfScope || d.TemplateKey != campaign.TemplateOutOfScope {
		t.Fatalf("decision = %s/%s", d.Status, d.TemplateKey)
	}
	if d.Code != nil || d.Creator != "" {
		t.Fatalf("out-of-scope decision must carry no creator or code")
	}
	if rec.Status != string(domain.StatusOutOfScope) || rec.Creator != nil {
		t.Fatalf("ledger row = %+v", rec)
	}
}

func TestProcess_DiscountIntentWithoutCreator_Pending(t *testing.T) {
	svc, _ := newTestService(t, false, nil)

	d, rec, err := svc.Process(context.Background(), msgOn(domain.PlatformWhatsApp, "u1", "i want my discount code"))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if d.Status != domain.StatusPendingInfo || d.TemplateKey != campaign.TemplateAskCreator {
		t.Fatalf("decision = %s/%s", d.Status, d.TemplateKey)
	}
	if d.Code != nil {
		t.Fatalf("pending decision must not carry a code")
	}
	if rec.Status != string(domain.StatusPendingInfo) {
		t.Fatalf("ledger status = %s", rec.Status)
	}
}

func TestProcess_SecondRequest_DoesNotResend(t *testing.T) {
	svc, db := newTestService(t, false, nil)
	ctx := context.Background()
	msg := msgOn(domain.PlatformInstagram, "u1", "my friend mkbhd sent me")

	first, _, err := svc.Process(ctx, msg)
	if err != nil || first.Status != domain.StatusCompleted {
		t.Fatalf("first Process = %v, %v", first, err)
	}

	second, rec, err := svc.Process(ctx, msg)
	if err != nil {
		t.Fatalf("second Process: %v", err)
	}
	if second.Status != domain.StatusPendingInfo || second.TemplateKey != campaign.TemplateAlreadySent {
		t.Fatalf("second decision = %s/%s", second.Status, second.TemplateKey)
	}
	if second.Code != nil {
		t.Fatalf("no-resend decision must not carry a code")
	}
	if second.Creator != "mkbhd" {
		t.Fatalf("creator identity still expected; got %q", second.Creator)
	}
	if rec.Status != string(domain.StatusPendingInfo) || rec.CodeSent != nil {
		t.Fatalf("ledger row = %+v", rec)
	}

	// Only the first interaction consumed eligibility.
	can, err := repo.CanIssueCode(ctx, db, "instagram", "u1")
	if err != nil || can {
		t.Fatalf("CanIssueCode = %v, %v; want false", can, err)
	}
}

func TestProcess_FuzzyTypo_IssuesCode(t *testing.T) {
	svc, _ := newTestService(t, false, nil)

	d, _, err := svc.Process(context.Background(), msgOn(domain.PlatformInstagram, "u9", "discount from marqes bronlee"))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if d.Status != domain.StatusCompleted || d.Creator != "mkbhd" || d.Method != domain.MethodFuzzy {
		t.Fatalf("decision = %s/%s/%s", d.Status, d.Creator, d.Method)
	}
	if d.Confidence < 0.8 || d.Confidence > 1.0 {
		t.Fatalf("Confidence = %v; want within [0.8, 1.0]", d.Confidence)
	}
}

func TestProcess_ExactMatch_SkipsLaterTiers(t *testing.T) {
	// Even with the fallback flag on, an exact hit must resolve the message
	// without consulting the fuzzy scorer or the classifier.
	fake := &fakeClassifier{res: classifier.Result{Creator: "casey_neistat", Confidence: 0.8}}
	svc, _ := newTestService(t, true, fake)

	d, _, err := svc.Process(context.Background(), msgOn(domain.PlatformInstagram, "u1", "my friend mkbhd sent me"))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if d.Creator != "mkbhd" || d.Method != domain.MethodExact || d.Confidence != 1.0 {
		t.Fatalf("detection = %s/%s/%v; want exact mkbhd at 1.0", d.Creator, d.Method, d.Confidence)
	}
	if n := atomic.LoadInt32(&fake.calls); n != 0 {
		t.Fatalf("classifier consulted %d times on an exact match; want 0", n)
	}
}

func TestProcess_ClassifierResolvesCreator(t *testing.T) {
	fake := &fakeClassifier{res: classifier.Result{
		Creator:    "casey_neistat",
		Method:     domain.MethodLLM,
		Confidence: 0.8,
		Attempts:   1,
	}}
	svc, _ := newTestService(t, true, fake)

	d, _, err := svc.Process(context.Background(), msgOn(domain.PlatformTikTok, "u2", "a creator told me to ask for a promo code"))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if d.Status != domain.StatusCompleted || d.Creator != "casey_neistat" || d.Method != domain.MethodLLM {
		t.Fatalf("decision = %s/%s/%s", d.Status, d.Creator, d.Method)
	}
	if d.Code == nil || *d.Code != "CASEY15OFF" {
		t.Fatalf("Code = %v; want CASEY15OFF", d.Code)
	}
	if atomic.LoadInt32(&fake.calls) != 1 {
		t.Fatalf("classifier calls = %d; want 1", fake.calls)
	}
	if len(fake.allowed) != 2 {
		t.Fatalf("classifier allow-list = %v; want both handles", fake.allowed)
	}
}

func TestProcess_ClassifierUnresolved_DegradesToPending(t *testing.T) {
	fake := &fakeClassifier{res: classifier.Result{
		Method:      domain.MethodLLM,
		Attempts:    2,
		ErrorReason: "retry limit exceeded",
	}}
	svc, _ := newTestService(t, true, fake)

	d, _, err := svc.Process(context.Background(), msgOn(domain.PlatformTikTok, "u2", "a creator told me to ask for a promo code"))
	if err != nil {
		t.Fatalf("classifier failure must not fail the request: %v", err)
	}
	if d.Status != domain.StatusPendingInfo || d.TemplateKey != campaign.TemplateAskCreator {
		t.Fatalf("decision = %s/%s", d.Status, d.TemplateKey)
	}
}

func TestProcess_NilClassifier_SkipsFallbackTier(t *testing.T) {
	// LLM flag on, but no classifier wired: tier is skipped, not an error.
	svc, _ := newTestService(t, true, nil)

	d, _, err := svc.Process(context.Background(), msgOn(domain.PlatformTikTok, "u2", "a creator told me to ask for a promo code"))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if d.Status != domain.StatusPendingInfo {
		t.Fatalf("Status = %s; want pending_creator_info", d.Status)
	}
}

func TestProcess_InputValidation(t *testing.T) {
	svc, _ := newTestService(t, false, nil)
	ctx := context.Background()

	_, _, err := svc.Process(ctx, domain.IncomingMessage{Platform: domain.PlatformInstagram, UserID: "u1"})
	if !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("empty text: err = %v", err)
	}

	_, _, err = svc.Process(ctx, domain.IncomingMessage{Platform: domain.PlatformInstagram, Text: "hi"})
	if !errors.Is(err, ErrEmptyUserID) {
		t.Fatalf("empty user: err = %v", err)
	}

	_, _, err = svc.Process(ctx, domain.IncomingMessage{Platform: "smoke", UserID: "u1", Text: "hi"})
	if !errors.Is(err, ErrUnknownPlatform) {
		t.Fatalf("bad platform: err = %v", err)
	}
}

func TestProcess_ConcurrentSameUser_SingleCode(t *testing.T) {
	svc, db := newTestService(t, false, nil)
	ctx := context.Background()
	msg := msgOn(domain.PlatformInstagram, "racer", "my friend mkbhd sent me")

	const n = 8
	var wg sync.WaitGroup
	var completed int32
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, _, err := svc.Process(ctx, msg)
			if err != nil {
				t.Errorf("Process: %v", err)
				return
			}
			if d.Status == domain.StatusCompleted {
				atomic.AddInt32(&completed, 1)
			}
		}()
	}
	wg.Wait()

	if completed != 1 {
		t.Fatalf("%d concurrent requests completed; want exactly 1", completed)
	}
	var rows int64
	err := db.WithContext(ctx).
		Model(&domain.InteractionRecord{}).
		Where("conversation_status = ? AND discount_code_sent IS NOT NULL", string(domain.StatusCompleted)).
		Count(&rows).Error
	if err != nil || rows != 1 {
		t.Fatalf("completed ledger rows = %d, %v; want 1", rows, err)
	}
}
