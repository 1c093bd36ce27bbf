package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/makkenzo/prospect-enrichment-api/internal/contact"
	"github.com/makkenzo/prospect-enrichment-api/internal/domain/apikey"
	"github.com/makkenzo/prospect-enrichment-api/internal/domain/enrichment"
	"github.com/makkenzo/prospect-enrichment-api/internal/ierr"
	"github.com/makkenzo/prospect-enrichment-api/internal/metrics"
	"github.com/makkenzo/prospect-enrichment-api/internal/provider/lusha"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

const (
	DefaultMaxAttempts    = 3
	DefaultAttemptTimeout = 20 * time.Second

	maxProviderMessage = 200
)

// ProviderGateway performs one lookup with one key. Provider statuses come
// back as responses; only transport failures are errors.
type ProviderGateway interface {
	Call(ctx context.Context, key *apikey.APIKey, query enrichment.Query) (*lusha.Response, error)
}

// Enricher resolves a lookup into a structured result. Provider and store
// failures are reported through Result.ErrorKind, not as errors.
type Enricher interface {
	Enrich(ctx context.Context, req enrichment.Request) (*enrichment.Result, error)
}

// KeySelector hands out candidate keys. The list is re-read from the store on
// every call so keys retired by concurrent lookups are never reused.
type KeySelector struct {
	repo apikey.Repository
}

func NewKeySelector(repo apikey.Repository) *KeySelector {
	return &KeySelector{repo: repo}
}

// Candidates returns eligible keys, most recently used first.
func (s *KeySelector) Candidates(ctx context.Context, category apikey.Category) ([]*apikey.APIKey, error) {
	return s.repo.ListEligible(ctx, category)
}

// Next returns the head of the candidate list, or nil when the pool is empty.
func (s *KeySelector) Next(ctx context.Context, category apikey.Category) (*apikey.APIKey, error) {
	keys, err := s.Candidates(ctx, category)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, nil
	}
	return keys[0], nil
}

type EnrichmentOptions struct {
	MaxAttempts    int
	AttemptTimeout time.Duration
}

type EnrichmentService struct {
	keys           apikey.Repository
	selector       *KeySelector
	gateway        ProviderGateway
	metrics        *metrics.Metrics
	maxAttempts    int
	attemptTimeout time.Duration
	now            func() time.Time
	logger         *zap.Logger
}

var _ Enricher = (*EnrichmentService)(nil)

func NewEnrichmentService(keys apikey.Repository, gateway ProviderGateway, m *metrics.Metrics, opts EnrichmentOptions, logger *zap.Logger) *EnrichmentService {
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.AttemptTimeout <= 0 {
		opts.AttemptTimeout = DefaultAttemptTimeout
	}
	return &EnrichmentService{
		keys:           keys,
		selector:       NewKeySelector(keys),
		gateway:        gateway,
		metrics:        m,
		maxAttempts:    opts.MaxAttempts,
		attemptTimeout: opts.AttemptTimeout,
		now:            time.Now,
		logger:         logger.Named("EnrichmentService"),
	}
}

// attemptOutcome is what one attempt decided. A nil result means retry with the next key.
type attemptOutcome struct {
	result *enrichment.Result
}

// Enrich runs the rotation loop. At most maxAttempts keys are tried, one at a
// time, and every key mutation is committed before the next key is selected.
func (s *EnrichmentService) Enrich(ctx context.Context, req enrichment.Request) (*enrichment.Result, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ierr.ErrValidation, err)
	}

	category := req.Category
	log := s.logger.With(zap.String("category", string(category)))

	var last *apikey.APIKey
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		key, err := s.selector.Next(ctx, category)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			log.Error("Failed to list eligible keys", zap.Int("attempt", attempt), zap.Error(err))
			return s.finish(category, storeUnavailable(attempt-1, last, err)), nil
		}
		if key == nil {
			log.Warn("No eligible keys left", zap.Int("attempt", attempt))
			return s.finish(category, &enrichment.Result{
				Attempts:  attempt - 1,
				ErrorKind: enrichment.KindNoKeysAvailable,
				Message:   fmt.Sprintf("All %s API keys are exhausted or inactive. Contact an administrator.", category),
			}), nil
		}
		last = key

		out, err := s.attempt(ctx, attempt, key, req.Query)
		if err != nil {
			return nil, err
		}
		if out.result != nil {
			return s.finish(category, out.result), nil
		}
	}

	log.Warn("Attempt bound reached without a definitive answer", zap.Int("max_attempts", s.maxAttempts))
	res := &enrichment.Result{
		Attempts:  s.maxAttempts,
		ErrorKind: enrichment.KindMaxAttemptsExceeded,
		Message:   fmt.Sprintf("No definitive answer after %d attempts.", s.maxAttempts),
	}
	withKey(res, last)
	return s.finish(category, res), nil
}

func (s *EnrichmentService) attempt(ctx context.Context, n int, key *apikey.APIKey, query enrichment.Query) (attemptOutcome, error) {
	category := string(key.Category)
	log := s.logger.With(
		zap.Int("attempt", n),
		zap.String("key_id", key.ID.String()),
		zap.String("key_suffix", key.Suffix()),
	)

	callCtx, cancel := context.WithTimeout(ctx, s.attemptTimeout)
	started := time.Now()
	resp, err := s.gateway.Call(callCtx, key, query)
	elapsed := time.Since(started)
	cancel()

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return attemptOutcome{}, ctxErr
		}
		s.metrics.ProviderCall("transport_error", elapsed)
		s.metrics.Attempt(category, "transport_error")
		log.Warn("Provider call failed", zap.Duration("elapsed", elapsed), zap.Error(err))

		res := &enrichment.Result{
			Attempts:  n,
			ErrorKind: enrichment.KindTransportError,
			Message:   fmt.Sprintf("Provider request failed: %v", err),
		}
		withKey(res, key)
		return attemptOutcome{result: res}, nil
	}

	status := strconv.Itoa(resp.StatusCode)
	s.metrics.ProviderCall(status, elapsed)
	s.metrics.Attempt(category, status)
	log = log.With(zap.Int("status", resp.StatusCode))

	switch resp.StatusCode {
	case http.StatusOK:
		kept, err := s.recordUsage(ctx, key, resp.CreditsRemaining)
		if err != nil {
			log.Error("Failed to record key usage", zap.Error(err))
			return attemptOutcome{result: storeUnavailable(n, key, err)}, nil
		}

		c := contact.Normalize(resp.Body)
		res := &enrichment.Result{
			Attempts:         n,
			CreditsRemaining: resp.CreditsRemaining,
			ProviderStatus:   resp.StatusCode,
		}
		if kept {
			withKey(res, key)
		}
		if !c.HasReachability() {
			log.Info("Provider matched but returned no phone or email")
			res.ErrorKind = enrichment.KindNoData
			res.Message = "Contact found but the provider returned no phone or email."
			return attemptOutcome{result: res}, nil
		}
		res.Success = true
		res.Contact = c
		res.Message = "Contact enriched."
		log.Info("Enrichment succeeded", zap.Int("phones", len(c.Phones)), zap.Bool("email", c.Email != ""))
		return attemptOutcome{result: res}, nil

	case http.StatusUnauthorized:
		if err := s.markDead(ctx, key, apikey.StatusInvalid); err != nil {
			log.Error("Failed to invalidate key", zap.Error(err))
			return attemptOutcome{result: storeUnavailable(n, key, err)}, nil
		}
		log.Warn("Key rejected by provider, marked invalid")
		return attemptOutcome{}, nil

	case http.StatusPaymentRequired, http.StatusTooManyRequests:
		if err := s.markDead(ctx, key, apikey.StatusExhausted); err != nil {
			log.Error("Failed to exhaust key", zap.Error(err))
			return attemptOutcome{result: storeUnavailable(n, key, err)}, nil
		}
		log.Warn("Key out of quota, marked exhausted")
		return attemptOutcome{}, nil

	case http.StatusNotFound:
		kept, err := s.recordUsage(ctx, key, resp.CreditsRemaining)
		if err != nil {
			log.Error("Failed to record key usage", zap.Error(err))
			return attemptOutcome{result: storeUnavailable(n, key, err)}, nil
		}
		log.Info("Provider found no match")
		res := &enrichment.Result{
			Attempts:         n,
			CreditsRemaining: resp.CreditsRemaining,
			ErrorKind:        enrichment.KindNotFound,
			Message:          "No match found for this lookup.",
			ProviderStatus:   resp.StatusCode,
		}
		if kept {
			withKey(res, key)
		}
		return attemptOutcome{result: res}, nil

	default:
		msg := providerMessage(resp.Body)
		log.Warn("Provider returned an unexpected status", zap.String("provider_message", msg))
		res := &enrichment.Result{
			Attempts:       n,
			ErrorKind:      enrichment.KindProviderError,
			Message:        fmt.Sprintf("Provider returned status %d: %s", resp.StatusCode, msg),
			ProviderStatus: resp.StatusCode,
		}
		withKey(res, key)
		return attemptOutcome{result: res}, nil
	}
}

// recordUsage reports false when the key was deleted while the call was in
// flight. The provider answer still stands but must not point at the key.
func (s *EnrichmentService) recordUsage(ctx context.Context, key *apikey.APIKey, credits *int) (bool, error) {
	err := s.keys.RecordUsage(ctx, key.ID, s.now().UTC(), credits)
	if errors.Is(err, apikey.ErrKeyNotFound) {
		s.logger.Info("Key deleted during provider call, usage not recorded",
			zap.String("key_id", key.ID.String()),
			zap.String("key_suffix", key.Suffix()),
		)
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if credits != nil && *credits <= 0 {
		s.metrics.KeyTransition(string(key.Category), string(apikey.StatusExhausted))
		s.logger.Info("Key credits depleted, marked exhausted",
			zap.String("key_id", key.ID.String()),
			zap.String("key_suffix", key.Suffix()),
		)
	}
	return true, nil
}

func (s *EnrichmentService) markDead(ctx context.Context, key *apikey.APIKey, status apikey.Status) error {
	err := s.keys.MarkDead(ctx, key.ID, status)
	if errors.Is(err, apikey.ErrKeyNotFound) {
		// Deleted by an admin between selection and now; nothing left to retire.
		return nil
	}
	if err != nil {
		return err
	}
	s.metrics.KeyTransition(string(key.Category), string(status))
	return nil
}

func (s *EnrichmentService) finish(category apikey.Category, res *enrichment.Result) *enrichment.Result {
	s.metrics.Result(string(category), string(res.ErrorKind))
	return res
}

func storeUnavailable(attempts int, key *apikey.APIKey, err error) *enrichment.Result {
	res := &enrichment.Result{
		Attempts:  attempts,
		ErrorKind: enrichment.KindStoreUnavailable,
		Message:   fmt.Sprintf("Key pool store unavailable: %v", err),
	}
	withKey(res, key)
	return res
}

func withKey(res *enrichment.Result, key *apikey.APIKey) {
	if key == nil {
		return
	}
	id := key.ID
	res.KeyID = &id
	res.KeySuffix = key.Suffix()
}

func providerMessage(body []byte) string {
	msg := ""
	if gjson.ValidBytes(body) {
		for _, path := range []string{"message", "error.message", "error", "detail"} {
			if r := gjson.GetBytes(body, path); r.Type == gjson.String && r.Str != "" {
				msg = r.Str
				break
			}
		}
	} else {
		msg = string(body)
	}
	if msg == "" {
		msg = "no message"
	}
	if len(msg) > maxProviderMessage {
		msg = msg[:maxProviderMessage]
	}
	return msg
}
