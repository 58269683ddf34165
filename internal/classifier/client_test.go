package classifier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tbourn/go-discount-agent/internal/domain"
)

var testAllowed = []string{"mkbhd", "casey_neistat"}

func testClient(baseURL string) *Client {
	return New(Config{
		BaseURL:           baseURL,
		Model:             "creator-intent-v1",
		MaxAttempts:       3,
		TotalBudget:       2 * time.Second,
		PerAttemptTimeout: time.Second,
	})
}

func TestDetectCreator_Success(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		var req struct {
			Message string   `json:"message"`
			Allowed []string `json:"allowed_creators"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Message != "my friend told me about mkbhd" {
			t.Errorf("unexpected message %q", req.Message)
		}
		if len(req.Allowed) != 2 {
			t.Errorf("allow-list not forwarded: %v", req.Allowed)
		}
		json.NewEncoder(w).Encode(map[string]string{"creator": "mkbhd"})
	}))
	defer srv.Close()

	res := testClient(srv.URL).DetectCreator(context.Background(), "my friend told me about mkbhd", testAllowed)
	if res.Creator != "mkbhd" {
		t.Fatalf("Creator = %q; want mkbhd", res.Creator)
	}
	if res.Method != domain.MethodLLM || res.Confidence != 0.8 {
		t.Fatalf("Method/Confidence = %v/%v", res.Method, res.Confidence)
	}
	if res.Attempts != 1 || res.ErrorReason != "" {
		t.Fatalf("Attempts=%d ErrorReason=%q; want 1 attempt, no error", res.Attempts, res.ErrorReason)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("server saw %d calls; want 1", calls)
	}
}

func TestDetectCreator_TerminalNone_NoRetry(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		json.NewEncoder(w).Encode(map[string]string{"creator": "none"})
	}))
	defer srv.Close()

	res := testClient(srv.URL).DetectCreator(context.Background(), "hello", testAllowed)
	if res.Creator != "" {
		t.Fatalf("Creator = %q; want empty", res.Creator)
	}
	if res.Attempts != 1 {
		t.Fatalf("terminal none must not retry; attempts=%d", res.Attempts)
	}
	if !strings.Contains(res.ErrorReason, "none") {
		t.Fatalf("ErrorReason = %q", res.ErrorReason)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("server saw %d calls; want 1", calls)
	}
}

func TestDetectCreator_MalformedRetriesToLimit(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Write([]byte(`{"creator": "mkbhd", "extra": true}`))
	}))
	defer srv.Close()

	res := testClient(srv.URL).DetectCreator(context.Background(), "code please", testAllowed)
	if res.Creator != "" {
		t.Fatalf("Creator = %q; want empty", res.Creator)
	}
	if res.Attempts != 3 {
		t.Fatalf("attempts = %d; want 3", res.Attempts)
	}
	if !strings.Contains(res.ErrorReason, "malformed") {
		t.Fatalf("ErrorReason = %q", res.ErrorReason)
	}
}

func TestDetectCreator_DisallowedHandleIsRetryable(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// First answer drifts off the allow-list; second one lands.
		if atomic.AddInt32(&calls, 1) == 1 {
			json.NewEncoder(w).Encode(map[string]string{"creator": "pewdiepie"})
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"creator": "casey_neistat"})
	}))
	defer srv.Close()

	res := testClient(srv.URL).DetectCreator(context.Background(), "casey sent me", testAllowed)
	if res.Creator != "casey_neistat" {
		t.Fatalf("Creator = %q; want casey_neistat", res.Creator)
	}
	if res.Attempts != 2 {
		t.Fatalf("attempts = %d; want 2", res.Attempts)
	}
}

func TestDetectCreator_ServerErrorRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	res := testClient(srv.URL).DetectCreator(context.Background(), "discount", testAllowed)
	if res.Creator != "" || res.Attempts != 3 {
		t.Fatalf("Creator=%q Attempts=%d; want empty/3", res.Creator, res.Attempts)
	}
	if !strings.Contains(res.ErrorReason, "unexpected status 500") {
		t.Fatalf("ErrorReason = %q", res.ErrorReason)
	}
}

func TestDetectCreator_BudgetExceeded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(Config{
		BaseURL:           srv.URL,
		MaxAttempts:       10,
		TotalBudget:       50 * time.Millisecond,
		PerAttemptTimeout: time.Second,
	})
	res := c.DetectCreator(context.Background(), "discount", testAllowed)
	if res.Creator != "" {
		t.Fatalf("Creator = %q; want empty", res.Creator)
	}
	if res.Attempts >= 10 {
		t.Fatalf("budget should stop the loop well before the attempt cap; attempts=%d", res.Attempts)
	}
}

func TestDetectCreator_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := testClient("http://127.0.0.1:0").DetectCreator(ctx, "discount", testAllowed)
	if res.Creator != "" || res.Attempts != 0 {
		t.Fatalf("Creator=%q Attempts=%d; want empty/0", res.Creator, res.Attempts)
	}
	if !strings.Contains(res.ErrorReason, "canceled") {
		t.Fatalf("ErrorReason = %q", res.ErrorReason)
	}
}

func TestNew_AppliesDefaults(t *testing.T) {
	c := New(Config{})
	if c.cfg.MaxAttempts != 2 {
		t.Errorf("MaxAttempts = %d; want 2", c.cfg.MaxAttempts)
	}
	if c.cfg.TotalBudget != 8*time.Second {
		t.Errorf("TotalBudget = %v; want 8s", c.cfg.TotalBudget)
	}
	if c.cfg.PerAttemptTimeout != 4*time.Second {
		t.Errorf("PerAttemptTimeout = %v; want 4s", c.cfg.PerAttemptTimeout)
	}
}
