package lusha

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/makkenzo/prospect-enrichment-api/internal/domain/apikey"
	"github.com/makkenzo/prospect-enrichment-api/internal/domain/enrichment"
	"github.com/rotisserie/eris"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL = "https://api.lusha.com"

	personPath   = "/v2/person"
	maxBodyBytes = 2 << 20
)

// Credit balances are reported in a header by newer API versions and in the
// body by older ones. Headers are checked first.
var (
	creditHeaders = []string{
		"X-Credits-Remaining",
		"X-Lusha-Credits-Remaining",
		"X-Remaining-Credits",
	}
	creditPaths = []string{
		"creditsRemaining",
		"credits_remaining",
		"credits.remaining",
		"meta.creditsRemaining",
		"meta.credits_remaining",
		"usage.creditsRemaining",
		"usage.credits_remaining",
		"data.creditsRemaining",
		"data.credits_remaining",
	}
)

// Response is the raw outcome of one provider call. Every HTTP status is a
// valid Response; only transport failures are returned as errors.
type Response struct {
	StatusCode int
	Body       []byte
	// CreditsRemaining is nil when the provider did not report a balance.
	CreditsRemaining *int
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithRateLimit paces outbound calls with a token bucket. rps <= 0 disables pacing.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// Client calls the Lusha person lookup endpoint with one key per call.
type Client struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		logger: logger.Named("LushaClient"),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Call performs exactly one lookup attempt with key. It has no side effects
// besides the request itself.
func (c *Client) Call(ctx context.Context, key *apikey.APIKey, query enrichment.Query) (*Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "lusha: rate limit wait")
		}
	}

	req, err := c.newRequest(ctx, key, query)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "lusha: send request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, eris.Wrap(err, "lusha: read response")
	}

	out := &Response{
		StatusCode:       resp.StatusCode,
		Body:             body,
		CreditsRemaining: creditsHint(resp.Header, body),
	}

	c.logger.Debug("Provider call finished",
		zap.String("key_suffix", key.Suffix()),
		zap.Int("status", resp.StatusCode),
		zap.Bool("credits_reported", out.CreditsRemaining != nil),
	)
	return out, nil
}

func (c *Client) newRequest(ctx context.Context, key *apikey.APIKey, query enrichment.Query) (*http.Request, error) {
	params := url.Values{}
	switch q := query.(type) {
	case enrichment.LinkedInQuery:
		params.Set("linkedinUrl", strings.TrimSpace(q.URL))
	case enrichment.NameQuery:
		params.Set("firstName", strings.TrimSpace(q.FirstName))
		params.Set("lastName", strings.TrimSpace(q.LastName))
		params.Set("companyName", strings.TrimSpace(q.CompanyName))
	default:
		return nil, eris.Errorf("lusha: unsupported query type %T", query)
	}

	switch key.Category {
	case apikey.CategoryPhoneOnly:
		params.Set("revealPhones", "true")
		params.Set("revealEmails", "false")
	case apikey.CategoryEmailOnly:
		params.Set("revealPhones", "false")
		params.Set("revealEmails", "true")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+personPath+"?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "lusha: create request")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("api_key", key.Value)
	return req, nil
}

func creditsHint(h http.Header, body []byte) *int {
	for _, name := range creditHeaders {
		v := strings.TrimSpace(h.Get(name))
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			continue
		}
		return clampCredits(n)
	}

	if !gjson.ValidBytes(body) {
		return nil
	}
	for _, path := range creditPaths {
		r := gjson.GetBytes(body, path)
		switch r.Type {
		case gjson.Number:
			return clampCredits(int(r.Int()))
		case gjson.String:
			if n, err := strconv.Atoi(strings.TrimSpace(r.Str)); err == nil {
				return clampCredits(n)
			}
		}
	}
	return nil
}

func clampCredits(n int) *int {
	if n < 0 {
		n = 0
	}
	return &n
}
