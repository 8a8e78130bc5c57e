package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"voiceledger/internal/core"
)

func testRegion() core.RegionProfile {
	r, _ := core.RegionByID("PK")
	return r
}

func clip() Media {
	return Media{MIMEType: "audio/mp4", Data: "c29tZSBhdWRpbw=="}
}

// modelReply wraps an extraction payload in the endpoint's candidate shape.
func modelReply(t *testing.T, w http.ResponseWriter, extraction string) {
	t.Helper()
	resp := map[string]any{
		"candidates": []map[string]any{
			{"content": map[string]any{"parts": []map[string]any{{"text": extraction}}}},
		},
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		t.Fatalf("encode reply: %v", err)
	}
}

func newTestClient(t *testing.T, url string, keys ...string) *Client {
	t.Helper()
	c, err := NewClient(Config{
		BaseURL: url,
		APIKeys: keys,
		Backoff: time.Millisecond,
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c
}

func TestNewClientRequiresKeys(t *testing.T) {
	if _, err := NewClient(Config{}); err == nil {
		t.Fatalf("expected error with empty pool")
	}
}

func TestVoiceRequestShape(t *testing.T) {
	var gotKey string
	var gotBody generateRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.URL.Query().Get("key")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode body: %v", err)
		}
		modelReply(t, w, `{"item":"chaye","amount":100,"type":"sale"}`)
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, "key-a")
	cand, err := c.FromVoice(context.Background(), clip(), testRegion())
	if err != nil {
		t.Fatalf("FromVoice: %v", err)
	}

	if gotKey != "key-a" {
		t.Fatalf("credential sent as %q", gotKey)
	}
	if gotBody.GenerationConfig.ResponseMIMEType != "application/json" {
		t.Fatalf("response_mime_type = %q", gotBody.GenerationConfig.ResponseMIMEType)
	}
	if gotBody.GenerationConfig.Temperature != 0.1 {
		t.Fatalf("temperature = %v", gotBody.GenerationConfig.Temperature)
	}
	if len(gotBody.Contents) != 1 || len(gotBody.Contents[0].Parts) != 2 {
		t.Fatalf("expected one instruction part plus one media part: %+v", gotBody.Contents)
	}
	if !strings.Contains(gotBody.Contents[0].Parts[0].Text, testRegion().Lang) {
		t.Fatalf("instruction lacks language hint: %q", gotBody.Contents[0].Parts[0].Text)
	}
	if gotBody.Contents[0].Parts[1].InlineData.MIMEType != "audio/mp4" {
		t.Fatalf("media part: %+v", gotBody.Contents[0].Parts[1])
	}

	want := core.Candidate{Item: "chaye", Amount: core.Money{Cents: 10000}, Type: core.Sale}
	if cand != want {
		t.Fatalf("candidate = %+v, want %+v", cand, want)
	}
}

func TestKeyRotationThirdKeySucceeds(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&attempts, 1)
		switch key := r.URL.Query().Get("key"); key {
		case "A", "B":
			w.WriteHeader(http.StatusTooManyRequests)
		case "C":
			modelReply(t, w, `{"item":"tea","amount":100,"type":"sale"}`)
		default:
			t.Errorf("attempt %d used unexpected key %q", n, key)
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, "A", "B", "C")
	cand, err := c.FromVoice(context.Background(), clip(), testRegion())
	if err != nil {
		t.Fatalf("FromVoice: %v", err)
	}

	if got := atomic.LoadInt32(&attempts); got != 3 {
		t.Fatalf("attempts = %d, want 3", got)
	}
	if c.KeyIndex() != 2 {
		t.Fatalf("pointer = %d, want 2 (credential C)", c.KeyIndex())
	}
	if cand.Item != "tea" || cand.Amount.Cents != 10000 || cand.Type != core.Sale {
		t.Fatalf("candidate = %+v", cand)
	}
}

func TestKeyRotationExhaustion(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		// Logical rate limit in the body, HTTP 200.
		fmt.Fprint(w, `{"error":{"code":429,"message":"quota exceeded","status":"RESOURCE_EXHAUSTED"}}`)
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, "A", "B", "C")
	_, err := c.FromVoice(context.Background(), clip(), testRegion())
	if !errors.Is(err, ErrLimitReached) {
		t.Fatalf("err = %v, want ErrLimitReached", err)
	}
	if got := atomic.LoadInt32(&attempts); got != 3 {
		t.Fatalf("attempts = %d, want at most one per credential", got)
	}
}

func TestValidationFailures(t *testing.T) {
	cases := []struct {
		name       string
		extraction string
		want       error
	}{
		{"non-numeric amount", `{"amount":"abc"}`, ErrNothingCaught},
		{"missing amount", `{"item":"tea","type":"sale"}`, ErrNothingCaught},
		{"zero amount", `{"amount":0}`, ErrNothingCaught},
		{"negative amount", `{"amount":-5}`, ErrNothingCaught},
		{"not json", `sorry, I could not parse that`, ErrModelConfused},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				modelReply(t, w, tc.extraction)
			}))
			defer server.Close()

			c := newTestClient(t, server.URL, "A")
			_, err := c.FromVoice(context.Background(), clip(), testRegion())
			if !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestValidationDefaults(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// No item, unknown type: placeholder label, coerced to sale.
		modelReply(t, w, `{"amount":12.34,"type":"income"}`)
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, "A")
	cand, err := c.FromVoice(context.Background(), clip(), testRegion())
	if err != nil {
		t.Fatalf("FromVoice: %v", err)
	}
	if cand.Item != core.DefaultItem {
		t.Fatalf("item = %q", cand.Item)
	}
	if cand.Type != core.Sale {
		t.Fatalf("type = %q, want coerced sale", cand.Type)
	}
	if cand.Amount.Cents != 1234 {
		t.Fatalf("cents = %d", cand.Amount.Cents)
	}
}

func TestStringAmountsParseAsDecimals(t *testing.T) {
	cases := []struct {
		name       string
		extraction string
		cents      int64
	}{
		{"plain string number", `{"item":"tea","amount":"100","type":"sale"}`, 10000},
		{"dot decimal", `{"item":"tea","amount":"12.34","type":"sale"}`, 1234},
		{"comma decimal", `{"item":"chaye","amount":"12,34","type":"sale"}`, 1234},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				modelReply(t, w, tc.extraction)
			}))
			defer server.Close()

			c := newTestClient(t, server.URL, "A")
			cand, err := c.FromVoice(context.Background(), clip(), testRegion())
			if err != nil {
				t.Fatalf("FromVoice: %v", err)
			}
			if cand.Amount.Cents != tc.cents {
				t.Fatalf("cents = %d, want %d", cand.Amount.Cents, tc.cents)
			}
		})
	}
}

func TestReceiptForcesDebt(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body generateRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode: %v", err)
		}
		if !strings.Contains(body.Contents[0].Parts[0].Text, "receipt") {
			t.Errorf("receipt instruction missing: %q", body.Contents[0].Parts[0].Text)
		}
		// Model misbehaves and claims a sale; the client overrides.
		modelReply(t, w, `{"amount":450,"type":"sale"}`)
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, "A")
	cand, err := c.FromReceipt(context.Background(), Media{MIMEType: "image/jpeg", Data: "aW1n"})
	if err != nil {
		t.Fatalf("FromReceipt: %v", err)
	}
	if cand.Type != core.Debt {
		t.Fatalf("type = %q, want debt", cand.Type)
	}
	if cand.Item != "receipt" {
		t.Fatalf("item = %q", cand.Item)
	}
}

func TestTransportFailureIsClassified(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // refuse connections

	c := newTestClient(t, server.URL, "A", "B")
	_, err := c.FromVoice(context.Background(), clip(), testRegion())
	if !errors.Is(err, ErrModelConfused) {
		t.Fatalf("err = %v, want ErrModelConfused", err)
	}
	// No retry on transport failure.
	if c.KeyIndex() != 0 {
		t.Fatalf("pointer rotated on transport failure")
	}
}

func TestBackoffHonorsCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	c, err := NewClient(Config{BaseURL: server.URL, APIKeys: []string{"A", "B"}, Backoff: time.Minute})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err = c.FromVoice(ctx, clip(), testRegion())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Fatalf("backoff ignored cancellation")
	}
}
