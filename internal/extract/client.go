// Package extract turns captured media into a candidate transaction by
// calling a hosted multimodal generation endpoint. The client never touches
// the ledger; it returns exactly one validated candidate or a classified
// error.
package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"voiceledger/internal/core"
)

const (
	// DefaultBaseURL is the hosted generation endpoint.
	DefaultBaseURL = "https://generativelanguage.googleapis.com"
	// DefaultModel is the model used for extraction.
	DefaultModel = "gemini-2.5-flash"
	// DefaultBackoff is the fixed delay between rotation retries.
	DefaultBackoff = 1500 * time.Millisecond

	extractionTemperature = 0.1
)

// Classified failure modes. Callers surface these as transient notices and
// must not mutate the ledger on any of them.
var (
	// ErrLimitReached means every pooled credential was rate-limited.
	ErrLimitReached = errors.New("extraction limit reached")
	// ErrNothingCaught means the response parsed but carried no usable amount.
	ErrNothingCaught = errors.New("extraction caught nothing usable")
	// ErrModelConfused covers transport and parse failures unrelated to
	// rate limiting.
	ErrModelConfused = errors.New("extraction response unusable")
)

// Media is an inline payload handed to the endpoint.
type Media struct {
	MIMEType string
	Data     string // base64-encoded bytes
}

// Config configures a Client. Zero fields fall back to defaults.
type Config struct {
	BaseURL    string
	Model      string
	APIKeys    []string
	Backoff    time.Duration
	HTTPClient *http.Client
}

// Client calls the generation endpoint with a pool of interchangeable
// credentials and a round-robin failover on rate limit. Rotation state is
// explicit and owned by the client; there are no ambient globals.
type Client struct {
	baseURL    string
	model      string
	backoff    time.Duration
	httpClient *http.Client

	mu     sync.Mutex
	keys   []string
	keyIdx int
}

func NewClient(cfg Config) (*Client, error) {
	if len(cfg.APIKeys) == 0 {
		return nil, errors.New("at least one API key is required")
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	backoff := cfg.Backoff
	if backoff <= 0 {
		backoff = DefaultBackoff
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		backoff:    backoff,
		httpClient: httpClient,
		keys:       append([]string(nil), cfg.APIKeys...),
	}, nil
}

// FromVoice extracts a transaction from a dictated audio clip. The type is
// inferred from utterance semantics; the region's language hint steers the
// prompt.
func (c *Client) FromVoice(ctx context.Context, clip Media, region core.RegionProfile) (core.Candidate, error) {
	return c.generate(ctx, voicePrompt(region), clip)
}

// FromReceipt extracts the total from a receipt photo. Only the amount is
// taken from the model; the type is always debt and the item a generic
// label.
func (c *Client) FromReceipt(ctx context.Context, image Media) (core.Candidate, error) {
	cand, err := c.generate(ctx, receiptPrompt(), image)
	if err != nil {
		return core.Candidate{}, err
	}
	cand.Type = core.Debt
	if strings.TrimSpace(cand.Item) == "" || cand.Item == core.DefaultItem {
		cand.Item = "receipt"
	}
	return cand, nil
}

// KeyIndex reports which pooled credential is current.
func (c *Client) KeyIndex() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.keyIdx
}

func (c *Client) currentKey() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.keys[c.keyIdx]
}

func (c *Client) rotateKey() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.keyIdx = (c.keyIdx + 1) % len(c.keys)
}

// generate performs the bounded rotation-retry loop: at most one attempt
// per pooled credential, fixed backoff between attempts. Round-robin
// failover, not exponential backoff - a deliberate simplification matching
// the per-key daily quotas of the endpoint.
func (c *Client) generate(ctx context.Context, instruction string, media Media) (core.Candidate, error) {
	body, err := json.Marshal(generateRequest{
		Contents: []content{{Parts: []part{
			{Text: instruction},
			{InlineData: &inlineData{MIMEType: media.MIMEType, Data: media.Data}},
		}}},
		GenerationConfig: generationConfig{
			ResponseMIMEType: "application/json",
			Temperature:      extractionTemperature,
		},
	})
	if err != nil {
		return core.Candidate{}, fmt.Errorf("encode request: %w", err)
	}

	attempts := len(c.keys)
	for attempt := 0; attempt < attempts; attempt++ {
		raw, rateLimited, err := c.doRequest(ctx, c.currentKey(), body)
		if err != nil {
			return core.Candidate{}, err
		}
		if rateLimited {
			slog.WarnContext(ctx, "Credential rate-limited, rotating",
				"attempt", attempt+1, "pool_size", attempts)
			c.rotateKey()
			if attempt == attempts-1 {
				break
			}
			if err := c.wait(ctx); err != nil {
				return core.Candidate{}, err
			}
			continue
		}
		return parseExtraction(raw)
	}

	return core.Candidate{}, fmt.Errorf("%w: all %d credentials exhausted", ErrLimitReached, attempts)
}

// doRequest performs one POST. rateLimited covers both an HTTP 429 and the
// endpoint's logical error code 429.
func (c *Client) doRequest(ctx context.Context, key string, body []byte) (string, bool, error) {
	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s", c.baseURL, c.model, key)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", false, fmt.Errorf("%w: build request: %v", ErrModelConfused, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", false, fmt.Errorf("%w: %v", ErrModelConfused, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		io.Copy(io.Discard, resp.Body)
		return "", true, nil
	}

	var decoded generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", false, fmt.Errorf("%w: decode response: %v", ErrModelConfused, err)
	}
	if decoded.Error != nil {
		if decoded.Error.Code == http.StatusTooManyRequests {
			return "", true, nil
		}
		return "", false, fmt.Errorf("%w: endpoint error %d: %s", ErrModelConfused, decoded.Error.Code, decoded.Error.Message)
	}
	if len(decoded.Candidates) == 0 || len(decoded.Candidates[0].Content.Parts) == 0 {
		return "", false, fmt.Errorf("%w: empty candidate list", ErrModelConfused)
	}

	return decoded.Candidates[0].Content.Parts[0].Text, false, nil
}

// wait sleeps the fixed backoff, honoring cancellation.
func (c *Client) wait(ctx context.Context) error {
	timer := time.NewTimer(c.backoff)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// parseExtraction validates the model's JSON string against the expected
// shape and builds a candidate. Amount must be present, numeric and
// positive; type coerces fail-open to sale; item defaults to a placeholder.
func parseExtraction(raw string) (core.Candidate, error) {
	var payload struct {
		Item   string `json:"item"`
		Amount any    `json:"amount"`
		Type   string `json:"type"`
	}
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return core.Candidate{}, fmt.Errorf("%w: parse extraction: %v", ErrModelConfused, err)
	}

	cents, err := amountCents(payload.Amount)
	if err != nil {
		return core.Candidate{}, fmt.Errorf("%w: %v", ErrNothingCaught, err)
	}

	item := strings.TrimSpace(payload.Item)
	if item == "" {
		item = core.DefaultItem
	}

	return core.Candidate{
		Item:   item,
		Amount: core.Money{Cents: cents},
		Type:   core.TxType(payload.Type).Coerce(),
	}, nil
}

func amountCents(v any) (int64, error) {
	switch a := v.(type) {
	case nil:
		return 0, errors.New("amount missing")
	case float64:
		return core.CentsFromNumber(a)
	case string:
		// Lenient: numeric strings count, including comma decimals the
		// model may emit for non-English locales.
		cents, err := core.ParseDecimalToCents(a)
		if err != nil {
			return 0, fmt.Errorf("amount %q not numeric", a)
		}
		return cents, nil
	default:
		return 0, fmt.Errorf("amount has unexpected type %T", v)
	}
}

// Wire shapes for the generation endpoint.
type (
	generateRequest struct {
		Contents         []content        `json:"contents"`
		GenerationConfig generationConfig `json:"generationConfig"`
	}

	content struct {
		Parts []part `json:"parts"`
	}

	part struct {
		Text       string      `json:"text,omitempty"`
		InlineData *inlineData `json:"inline_data,omitempty"`
	}

	inlineData struct {
		MIMEType string `json:"mime_type"`
		Data     string `json:"data"`
	}

	generationConfig struct {
		ResponseMIMEType string  `json:"response_mime_type"`
		Temperature      float64 `json:"temperature"`
	}

	generateResponse struct {
		Error      *apiError      `json:"error,omitempty"`
		Candidates []apiCandidate `json:"candidates"`
	}

	apiError struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	}

	apiCandidate struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	}
)
