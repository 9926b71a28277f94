// Package search composes the word-lookup pipelines: normalization, cache,
// rate limiting, retried upstream fetches, parsing and response assembly.
package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/at-ishikawa/naverdict/internal/cache"
	"github.com/at-ishikawa/naverdict/internal/dictionary"
	"github.com/at-ishikawa/naverdict/internal/ratelimit"
	"github.com/at-ishikawa/naverdict/internal/upstream"
)

// Config holds pipeline tuning knobs.
type Config struct {
	// NegativeTTL is the shortened cache TTL for zero-result responses, which
	// are more likely to reflect a transient upstream issue and should be
	// revalidated sooner.
	NegativeTTL time.Duration
	// BatchMaxWords bounds a batch request's word count.
	BatchMaxWords int
	// BatchConcurrency bounds the batch fan-out independently of the rate
	// limiter, to protect the upstream from bursty parallelism even when
	// quota remains.
	BatchConcurrency int
	// UpstreamTimeout is only reported in timeout error details.
	UpstreamTimeout time.Duration
	// UpstreamBaseURL is recorded as the source URL of persisted entries.
	UpstreamBaseURL string
}

// Service runs the single-word and batch lookup pipelines. The cache, the
// rate limiter and the metrics collector are process-wide singletons owned by
// the composition root and shared across concurrent calls.
type Service struct {
	upstream   *upstream.Orchestrator
	cache      *cache.Cache
	limiter    *ratelimit.Bucket
	metrics    *Metrics
	repository dictionary.Repository
	config     Config
}

// NewService creates a Service. repository may be nil when persistence is not
// configured.
func NewService(
	orchestrator *upstream.Orchestrator,
	responseCache *cache.Cache,
	limiter *ratelimit.Bucket,
	metrics *Metrics,
	repository dictionary.Repository,
	config Config,
) *Service {
	if config.BatchMaxWords <= 0 {
		config.BatchMaxWords = 10
	}
	if config.BatchConcurrency <= 0 {
		config.BatchConcurrency = 3
	}
	if config.NegativeTTL <= 0 {
		config.NegativeTTL = 5 * time.Minute
	}
	return &Service{
		upstream:   orchestrator,
		cache:      responseCache,
		limiter:    limiter,
		metrics:    metrics,
		repository: repository,
		config:     config,
	}
}

// SearchWord runs the single-word pipeline and always returns a serialized
// response; failures become structured error payloads, never panics or bare
// errors across the boundary.
func (s *Service) SearchWord(ctx context.Context, word string, dictType string) string {
	start := time.Now()

	variant, err := dictionary.ParseVariant(dictType)
	if err != nil {
		return s.failSearch(start, word, dictType, word,
			"Invalid dictionary type", ErrorTypeValidation, err.Error())
	}

	normalized, err := dictionary.Normalize(word)
	if err != nil {
		return s.failSearch(start, word, dictType, word,
			"Invalid word", ErrorTypeValidation, err.Error())
	}

	if cached, ok := s.cache.Get(normalized, variant.String()); ok {
		s.metrics.RecordCacheHit()
		s.metrics.RecordRequest("search", true, time.Since(start))
		return PatchFromCache(cached, true)
	}
	s.metrics.RecordCacheMiss()

	if !s.limiter.Consume(1) {
		return s.failSearch(start, normalized, dictType, normalized,
			"Rate limit exceeded", ErrorTypeRateLimit,
			fmt.Sprintf("remaining quota: %d, retry later", s.limiter.Remaining()))
	}

	payload, body, errItem := s.fetchAndBuild(ctx, normalized, variant, dictType)
	if errItem != nil {
		return s.failSearch(start, normalized, dictType, normalized,
			errItem.Error, errItem.ErrorType, errItem.Details)
	}

	s.persist(ctx, normalized, variant, body)
	s.metrics.RecordRequest("search", true, time.Since(start))
	return payload
}

// fetchAndBuild performs the shared miss path: retried fetch, parse, response
// assembly and cache write. It returns either the serialized canonical
// payload plus the raw upstream body, or a classified error item.
func (s *Service) fetchAndBuild(ctx context.Context, word string, variant dictionary.Variant, dictType string) (string, []byte, *ErrorItem) {
	body, err := s.upstream.Fetch(ctx, word, variant)
	if err != nil {
		item := s.classify(word, err)
		return "", nil, &item
	}

	results, err := dictionary.ParseSearchResults(body)
	if err != nil {
		item := s.classify(word, err)
		return "", nil, &item
	}

	payload, err := MarshalPayload(NewSuccessItem(word, dictType, results, false, false, word))
	if err != nil {
		item := NewErrorItem(word, dictType, "Failed to serialize response", ErrorTypeUnknown, err.Error(), false, word)
		return "", nil, &item
	}

	ttl := time.Duration(0)
	if len(results) == 0 {
		ttl = s.config.NegativeTTL
	}
	s.cache.Set(word, variant.String(), payload, ttl)
	return payload, body, nil
}

// classify maps the upstream error taxonomy onto response error types. The
// dict_type of the returned item is left empty; callers fill it when needed.
func (s *Service) classify(word string, err error) ErrorItem {
	var statusErr *dictionary.StatusError
	if errors.As(err, &statusErr) {
		details := fmt.Sprintf("upstream status code: %d", statusErr.StatusCode)
		switch {
		case statusErr.StatusCode == http.StatusTooManyRequests:
			return NewErrorItem(word, "", "Upstream rate limit reached", ErrorTypeUpstreamRateLimit, details, false, word)
		case statusErr.StatusCode >= 500:
			return NewErrorItem(word, "", "Upstream server error", ErrorTypeUpstreamServer, details, false, word)
		default:
			return NewErrorItem(word, "", "Upstream request failed", ErrorTypeHTTP, details, false, word)
		}
	}

	var timeoutErr *dictionary.TimeoutError
	if errors.As(err, &timeoutErr) {
		return NewErrorItem(word, "", "Upstream request timed out", ErrorTypeTimeout,
			fmt.Sprintf("configured timeout: %s", s.config.UpstreamTimeout), false, word)
	}

	var connErr *dictionary.ConnectionError
	if errors.As(err, &connErr) {
		return NewErrorItem(word, "", "Failed to reach upstream", ErrorTypeNetwork, err.Error(), false, word)
	}

	var parseErr *dictionary.ParseError
	if errors.As(err, &parseErr) {
		return NewErrorItem(word, "", "Failed to parse upstream response", ErrorTypeParse, err.Error(), false, word)
	}

	return NewErrorItem(word, "", "Unexpected error", ErrorTypeUnknown, err.Error(), false, word)
}

// BatchSearchWords runs the batch pipeline. Output positions always match
// input positions regardless of fetch completion order.
func (s *Service) BatchSearchWords(ctx context.Context, words []string, dictType string, returnCachedJSON bool) string {
	start := time.Now()

	variant, err := dictionary.ParseVariant(dictType)
	if err != nil {
		return s.failBatch(start, dictType, "Invalid dictionary type", err.Error())
	}
	if len(words) == 0 {
		return s.failBatch(start, dictType, "No words provided", "words must contain between 1 and "+fmt.Sprint(s.config.BatchMaxWords)+" items")
	}
	if len(words) > s.config.BatchMaxWords {
		return s.failBatch(start, dictType, "Too many words",
			fmt.Sprintf("words must contain at most %d items: got %d", s.config.BatchMaxWords, len(words)))
	}

	items := make([]any, len(words))

	// Dedup key is the normalized word; positions listed in input order.
	missPositions := make(map[string][]int)
	missOrder := make([]string, 0, len(words))

	for i, raw := range words {
		normalized, err := dictionary.Normalize(raw)
		if err != nil {
			items[i] = NewErrorItem(raw, "", "Invalid word", ErrorTypeValidation, err.Error(), false, raw)
			continue
		}

		if cached, ok := s.cache.Get(normalized, variant.String()); ok {
			s.metrics.RecordCacheHit()
			items[i] = s.cachedItem(normalized, cached, returnCachedJSON)
			continue
		}
		s.metrics.RecordCacheMiss()

		if _, seen := missPositions[normalized]; !seen {
			missOrder = append(missOrder, normalized)
		}
		missPositions[normalized] = append(missPositions[normalized], i)
	}

	// One token per unique miss word, charged as a single aggregate so a
	// partially admitted batch never happens.
	if len(missOrder) > 0 && !s.limiter.Consume(len(missOrder)) {
		details := fmt.Sprintf("remaining quota: %d, retry later", s.limiter.Remaining())
		for _, word := range missOrder {
			for _, position := range missPositions[word] {
				items[position] = NewErrorItem(word, "", "Rate limit exceeded", ErrorTypeRateLimit, details, false, word)
			}
		}
	} else if len(missOrder) > 0 {
		group, groupCtx := errgroup.WithContext(ctx)
		group.SetLimit(s.config.BatchConcurrency)
		for _, word := range missOrder {
			positions := missPositions[word]
			group.Go(func() error {
				s.resolveBatchWord(groupCtx, word, variant, dictType, positions, items)
				return nil
			})
		}
		// Goroutines write disjoint item positions and never return errors;
		// failures are carried inside the items themselves.
		_ = group.Wait()
	}

	response := NewBatchResponse(dictType, items, time.Since(start).Seconds())
	payload, err := MarshalPayload(response)
	if err != nil {
		return s.failBatch(start, dictType, "Failed to serialize response", err.Error())
	}
	s.metrics.RecordRequest("batch_search", response.Success, time.Since(start))
	if !response.Success {
		s.recordItemErrors(items)
	}
	return payload
}

// resolveBatchWord fetches one unique miss word and scatters the result to
// every input position sharing it. Only the first position keeps
// deduped=false; repeats reused this fetch.
func (s *Service) resolveBatchWord(ctx context.Context, word string, variant dictionary.Variant, dictType string, positions []int, items []any) {
	payload, body, errItem := s.fetchAndBuild(ctx, word, variant, dictType)
	if errItem != nil {
		for i, position := range positions {
			item := *errItem
			item.DictType = ""
			item.Deduped = i > 0
			items[position] = item
		}
		return
	}

	s.persist(ctx, word, variant, body)

	var item SuccessItem
	if err := json.Unmarshal([]byte(payload), &item); err != nil {
		// The payload was produced by MarshalPayload just above, so this is
		// effectively unreachable; fail the positions rather than panic.
		for i, position := range positions {
			errorItem := NewErrorItem(word, "", "Failed to assemble response", ErrorTypeUnknown, err.Error(), i > 0, word)
			items[position] = errorItem
		}
		return
	}
	item.DictType = ""
	item.SourceWord = word
	for i, position := range positions {
		positionItem := item
		positionItem.Deduped = i > 0
		items[position] = positionItem
	}
}

// cachedItem builds a batch cache-hit item. With returnCachedJSON the raw
// canonical payload is passed through untouched; otherwise it is decoded and
// re-tagged as a cache hit.
func (s *Service) cachedItem(word, cached string, returnCachedJSON bool) any {
	if returnCachedJSON {
		return CachedItem{
			Success:    true,
			Word:       word,
			FromCache:  true,
			CachedJSON: json.RawMessage(cached),
			Deduped:    false,
			SourceWord: word,
		}
	}

	var item SuccessItem
	if err := json.Unmarshal([]byte(cached), &item); err != nil {
		slog.Default().Warn("discarding malformed cached payload", "word", word, "error", err)
		return NewErrorItem(word, "", "Corrupted cache entry", ErrorTypeUnknown, err.Error(), false, word)
	}
	item.DictType = ""
	item.FromCache = true
	item.Deduped = false
	item.SourceWord = word
	return item
}

// persist stores the canonical upstream payload when a repository is
// configured. Persistence failures are logged, never surfaced: the lookup
// result is already complete.
func (s *Service) persist(ctx context.Context, word string, variant dictionary.Variant, body []byte) {
	if s.repository == nil || len(body) == 0 {
		return
	}
	dictCode, _ := variant.UpstreamCodes()
	entry := &dictionary.Entry{
		Word:      word,
		Variant:   variant.String(),
		SourceURL: fmt.Sprintf("%s/%s/search", s.config.UpstreamBaseURL, dictCode),
		Response:  json.RawMessage(body),
	}
	if err := s.repository.Upsert(ctx, entry); err != nil {
		slog.Default().Warn("failed to persist dictionary entry", "word", word, "error", err)
	}
}

// StatsJSON reports cache, rate-limit and request metrics as one payload.
func (s *Service) StatsJSON() string {
	stats := struct {
		Cache     cache.Stats `json:"cache"`
		RateLimit struct {
			Remaining int `json:"remaining"`
		} `json:"rate_limit"`
		Requests Snapshot `json:"requests"`
	}{
		Cache:    s.cache.Stats(),
		Requests: s.metrics.Snapshot(),
	}
	stats.RateLimit.Remaining = s.limiter.Remaining()

	payload, err := MarshalPayload(stats)
	if err != nil {
		return fmt.Sprintf(`{"error": %q}`, err.Error())
	}
	return payload
}

// ClearCache drops every cached response.
func (s *Service) ClearCache() {
	s.cache.Clear()
}

func (s *Service) failSearch(start time.Time, word, dictType, sourceWord, message, errorType, details string) string {
	s.metrics.RecordError(errorType)
	s.metrics.RecordRequest("search", false, time.Since(start))

	item := NewErrorItem(word, dictType, message, errorType, details, false, sourceWord)
	payload, err := MarshalPayload(item)
	if err != nil {
		slog.Default().Error("failed to serialize error response", "error", err)
		return fmt.Sprintf(`{"success": false, "error": %q, "error_type": %q}`, message, errorType)
	}
	return payload
}

func (s *Service) failBatch(start time.Time, dictType, message, details string) string {
	s.metrics.RecordError(ErrorTypeValidation)
	s.metrics.RecordRequest("batch_search", false, time.Since(start))

	response := BatchErrorResponse{
		Success:   false,
		DictType:  dictType,
		Error:     message,
		ErrorType: ErrorTypeValidation,
		Details:   details,
	}
	payload, err := MarshalPayload(response)
	if err != nil {
		slog.Default().Error("failed to serialize batch error response", "error", err)
		return fmt.Sprintf(`{"success": false, "error": %q, "error_type": %q}`, message, ErrorTypeValidation)
	}
	return payload
}

func (s *Service) recordItemErrors(items []any) {
	for _, item := range items {
		if errorItem, ok := item.(ErrorItem); ok {
			s.metrics.RecordError(errorItem.ErrorType)
		}
	}
}
