package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/at-ishikawa/naverdict/internal/cache"
	"github.com/at-ishikawa/naverdict/internal/dictionary"
	mock_dictionary "github.com/at-ishikawa/naverdict/internal/mocks/dictionary"
	"github.com/at-ishikawa/naverdict/internal/ratelimit"
	"github.com/at-ishikawa/naverdict/internal/upstream"
)

func upstreamPayload(word, meaning string) []byte {
	return fmt.Appendf(nil, `{
		"searchResultMap": {
			"searchResultListMap": {
				"WORD": {
					"items": [
						{
							"expEntry": "%s",
							"meansCollector": [
								{"means": [{"value": "%s"}]}
							]
						}
					]
				}
			}
		}
	}`, word, meaning)
}

type serviceFixture struct {
	service *Service
	fetcher *mock_dictionary.MockFetcher
	limiter *ratelimit.Bucket
	cache   *cache.Cache
	metrics *Metrics
}

func newServiceFixture(t *testing.T, requestsPerMinute int) *serviceFixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	fetcher := mock_dictionary.NewMockFetcher(ctrl)
	limiter := ratelimit.New(requestsPerMinute)
	responseCache := cache.New(100, time.Hour, cache.KeyModeHash)
	metrics := NewMetrics()
	orchestrator := upstream.New(fetcher, limiter, upstream.Config{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		MaxDelay:    5 * time.Millisecond,
	})
	service := NewService(orchestrator, responseCache, limiter, metrics, nil, Config{
		UpstreamTimeout: 30 * time.Second,
	})
	return &serviceFixture{
		service: service,
		fetcher: fetcher,
		limiter: limiter,
		cache:   responseCache,
		metrics: metrics,
	}
}

func TestService_SearchWord(t *testing.T) {
	fixture := newServiceFixture(t, 60)
	fixture.fetcher.EXPECT().
		Search(gomock.Any(), "사과", dictionary.VariantKoreanChinese).
		Return(upstreamPayload("사과", "苹果"), nil)

	payload := fixture.service.SearchWord(context.Background(), " 사과 ", "ko-zh")

	var item SuccessItem
	require.NoError(t, json.Unmarshal([]byte(payload), &item))
	assert.True(t, item.Success)
	assert.Equal(t, "사과", item.Word)
	assert.Equal(t, "ko-zh", item.DictType)
	assert.Equal(t, 1, item.Count)
	require.Len(t, item.Results, 1)
	assert.Equal(t, "苹果", item.Results[0].Meanings[0].Text)
	assert.False(t, item.FromCache)
	assert.Equal(t, "사과", item.SourceWord)

	assert.Equal(t, 59, fixture.limiter.Remaining())
}

func TestService_SearchWord_CacheHit(t *testing.T) {
	fixture := newServiceFixture(t, 60)
	// exactly one upstream call for the two lookups
	fixture.fetcher.EXPECT().
		Search(gomock.Any(), "사과", dictionary.VariantKoreanChinese).
		Return(upstreamPayload("사과", "苹果"), nil)

	first := fixture.service.SearchWord(context.Background(), "사과", "ko-zh")
	second := fixture.service.SearchWord(context.Background(), "사과", "ko-zh")

	var firstItem, secondItem SuccessItem
	require.NoError(t, json.Unmarshal([]byte(first), &firstItem))
	require.NoError(t, json.Unmarshal([]byte(second), &secondItem))
	assert.False(t, firstItem.FromCache)
	assert.True(t, secondItem.FromCache)
	assert.Equal(t, firstItem.Results, secondItem.Results)

	snapshot := fixture.metrics.Snapshot()
	assert.Equal(t, uint64(1), snapshot.CacheHits)
	assert.Equal(t, uint64(1), snapshot.CacheMisses)
}

func TestService_SearchWord_Validation(t *testing.T) {
	tests := []struct {
		name     string
		word     string
		dictType string
	}{
		{name: "unknown dictionary type", word: "사과", dictType: "ko-ja"},
		{name: "empty word", word: "", dictType: "ko-zh"},
		{name: "blank word", word: "   ", dictType: "ko-zh"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fixture := newServiceFixture(t, 60)

			payload := fixture.service.SearchWord(context.Background(), tt.word, tt.dictType)

			var item ErrorItem
			require.NoError(t, json.Unmarshal([]byte(payload), &item))
			assert.False(t, item.Success)
			assert.Equal(t, ErrorTypeValidation, item.ErrorType)
			// validation rejects before any quota is spent
			assert.Equal(t, 60, fixture.limiter.Remaining())
		})
	}
}

func TestService_SearchWord_RateLimited(t *testing.T) {
	fixture := newServiceFixture(t, 1)
	fixture.fetcher.EXPECT().
		Search(gomock.Any(), "사과", dictionary.VariantKoreanChinese).
		Return(upstreamPayload("사과", "苹果"), nil)

	first := fixture.service.SearchWord(context.Background(), "사과", "ko-zh")
	var firstItem SuccessItem
	require.NoError(t, json.Unmarshal([]byte(first), &firstItem))
	require.True(t, firstItem.Success)

	second := fixture.service.SearchWord(context.Background(), "단어", "ko-zh")
	var secondItem ErrorItem
	require.NoError(t, json.Unmarshal([]byte(second), &secondItem))
	assert.False(t, secondItem.Success)
	assert.Equal(t, ErrorTypeRateLimit, secondItem.ErrorType)
	assert.Contains(t, secondItem.Details, "remaining quota")
}

func TestService_SearchWord_UpstreamErrors(t *testing.T) {
	tests := []struct {
		name          string
		err           error
		wantErrorType string
		wantDetails   string
	}{
		{
			name:          "upstream throttling",
			err:           &dictionary.StatusError{StatusCode: http.StatusTooManyRequests},
			wantErrorType: ErrorTypeUpstreamRateLimit,
			wantDetails:   "upstream status code: 429",
		},
		{
			name:          "upstream server error",
			err:           &dictionary.StatusError{StatusCode: http.StatusInternalServerError},
			wantErrorType: ErrorTypeUpstreamServer,
			wantDetails:   "upstream status code: 500",
		},
		{
			name:          "client error status",
			err:           &dictionary.StatusError{StatusCode: http.StatusNotFound},
			wantErrorType: ErrorTypeHTTP,
			wantDetails:   "upstream status code: 404",
		},
		{
			name:          "timeout",
			err:           &dictionary.TimeoutError{Timeout: time.Second},
			wantErrorType: ErrorTypeTimeout,
			wantDetails:   "configured timeout: 30s",
		},
		{
			name:          "connection failure",
			err:           &dictionary.ConnectionError{Err: assert.AnError},
			wantErrorType: ErrorTypeNetwork,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fixture := newServiceFixture(t, 60)
			fixture.fetcher.EXPECT().
				Search(gomock.Any(), "사과", dictionary.VariantKoreanChinese).
				Return(nil, tt.err).
				AnyTimes()

			payload := fixture.service.SearchWord(context.Background(), "사과", "ko-zh")

			var item ErrorItem
			require.NoError(t, json.Unmarshal([]byte(payload), &item))
			assert.False(t, item.Success)
			assert.Equal(t, tt.wantErrorType, item.ErrorType)
			if tt.wantDetails != "" {
				assert.Contains(t, item.Details, tt.wantDetails)
			}

			snapshot := fixture.metrics.Snapshot()
			assert.Equal(t, uint64(1), snapshot.ErrorCounts[tt.wantErrorType])
		})
	}
}

func TestService_SearchWord_ParseFailure(t *testing.T) {
	fixture := newServiceFixture(t, 60)
	fixture.fetcher.EXPECT().
		Search(gomock.Any(), "사과", dictionary.VariantKoreanChinese).
		Return([]byte("not json"), nil)

	payload := fixture.service.SearchWord(context.Background(), "사과", "ko-zh")

	var item ErrorItem
	require.NoError(t, json.Unmarshal([]byte(payload), &item))
	assert.Equal(t, ErrorTypeParse, item.ErrorType)
}

func TestService_SearchWord_EmptyResultIsCached(t *testing.T) {
	fixture := newServiceFixture(t, 60)
	fixture.fetcher.EXPECT().
		Search(gomock.Any(), "없는말", dictionary.VariantKoreanChinese).
		Return([]byte(`{}`), nil)

	first := fixture.service.SearchWord(context.Background(), "없는말", "ko-zh")
	var firstItem SuccessItem
	require.NoError(t, json.Unmarshal([]byte(first), &firstItem))
	assert.True(t, firstItem.Success)
	assert.Equal(t, 0, firstItem.Count)
	assert.NotNil(t, firstItem.Results)

	second := fixture.service.SearchWord(context.Background(), "없는말", "ko-zh")
	var secondItem SuccessItem
	require.NoError(t, json.Unmarshal([]byte(second), &secondItem))
	assert.True(t, secondItem.FromCache)
}

func TestService_SearchWord_Persists(t *testing.T) {
	ctrl := gomock.NewController(t)
	fetcher := mock_dictionary.NewMockFetcher(ctrl)
	repository := mock_dictionary.NewMockRepository(ctrl)
	limiter := ratelimit.New(60)
	orchestrator := upstream.New(fetcher, limiter, upstream.Config{
		MaxAttempts: 1,
		BaseDelay:   time.Millisecond,
		MaxDelay:    time.Millisecond,
	})
	service := NewService(orchestrator, cache.New(100, time.Hour, cache.KeyModeHash), limiter, NewMetrics(), repository, Config{
		UpstreamBaseURL: "https://korean.dict.naver.com/api3",
	})

	body := upstreamPayload("사과", "苹果")
	fetcher.EXPECT().
		Search(gomock.Any(), "사과", dictionary.VariantKoreanChinese).
		Return(body, nil)
	repository.EXPECT().
		Upsert(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, entry *dictionary.Entry) error {
			assert.Equal(t, "사과", entry.Word)
			assert.Equal(t, "ko-zh", entry.Variant)
			assert.Equal(t, "https://korean.dict.naver.com/api3/kozh/search", entry.SourceURL)
			assert.Equal(t, json.RawMessage(body), entry.Response)
			return nil
		})

	payload := service.SearchWord(context.Background(), "사과", "ko-zh")

	var item SuccessItem
	require.NoError(t, json.Unmarshal([]byte(payload), &item))
	assert.True(t, item.Success)
}

func TestService_BatchSearchWords(t *testing.T) {
	fixture := newServiceFixture(t, 60)
	// duplicates collapse into one upstream call per unique word
	fixture.fetcher.EXPECT().
		Search(gomock.Any(), "사과", dictionary.VariantKoreanChinese).
		Return(upstreamPayload("사과", "苹果"), nil)
	fixture.fetcher.EXPECT().
		Search(gomock.Any(), "단어", dictionary.VariantKoreanChinese).
		Return(upstreamPayload("단어", "单词"), nil)

	payload := fixture.service.BatchSearchWords(context.Background(), []string{"사과", "사과", "단어"}, "ko-zh", false)

	var response struct {
		Success        bool          `json:"success"`
		PartialSuccess bool          `json:"partial_success"`
		Count          int           `json:"count"`
		SuccessCount   int           `json:"success_count"`
		FailCount      int           `json:"fail_count"`
		DictType       string        `json:"dict_type"`
		Results        []SuccessItem `json:"results"`
		Latency        float64       `json:"latency"`
	}
	require.NoError(t, json.Unmarshal([]byte(payload), &response))
	assert.True(t, response.Success)
	assert.False(t, response.PartialSuccess)
	assert.Equal(t, 3, response.Count)
	assert.Equal(t, 3, response.SuccessCount)
	assert.Equal(t, 0, response.FailCount)
	assert.Equal(t, "ko-zh", response.DictType)
	require.Len(t, response.Results, 3)

	// output order matches input order
	assert.Equal(t, "사과", response.Results[0].Word)
	assert.Equal(t, "사과", response.Results[1].Word)
	assert.Equal(t, "단어", response.Results[2].Word)

	// only the repeated position is marked deduped
	assert.False(t, response.Results[0].Deduped)
	assert.True(t, response.Results[1].Deduped)
	assert.False(t, response.Results[2].Deduped)
	assert.Equal(t, "사과", response.Results[1].SourceWord)

	// two unique misses cost two tokens
	assert.Equal(t, 58, fixture.limiter.Remaining())
}

func TestService_BatchSearchWords_Validation(t *testing.T) {
	tests := []struct {
		name     string
		words    []string
		dictType string
		wantErr  string
	}{
		{
			name:     "unknown dictionary type",
			words:    []string{"사과"},
			dictType: "ko-ja",
			wantErr:  "Invalid dictionary type",
		},
		{
			name:     "no words",
			words:    []string{},
			dictType: "ko-zh",
			wantErr:  "No words provided",
		},
		{
			name:     "too many words",
			words:    []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j", "k"},
			dictType: "ko-zh",
			wantErr:  "Too many words",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fixture := newServiceFixture(t, 60)

			payload := fixture.service.BatchSearchWords(context.Background(), tt.words, tt.dictType, false)

			var response BatchErrorResponse
			require.NoError(t, json.Unmarshal([]byte(payload), &response))
			assert.False(t, response.Success)
			assert.Equal(t, tt.wantErr, response.Error)
			assert.Equal(t, ErrorTypeValidation, response.ErrorType)
		})
	}
}

func TestService_BatchSearchWords_MixedOutcomes(t *testing.T) {
	fixture := newServiceFixture(t, 60)
	fixture.fetcher.EXPECT().
		Search(gomock.Any(), "사과", dictionary.VariantKoreanChinese).
		Return(upstreamPayload("사과", "苹果"), nil)
	fixture.fetcher.EXPECT().
		Search(gomock.Any(), "단어", dictionary.VariantKoreanChinese).
		Return(nil, &dictionary.StatusError{StatusCode: http.StatusNotFound})

	payload := fixture.service.BatchSearchWords(context.Background(), []string{"사과", "", "단어"}, "ko-zh", false)

	var response struct {
		Success        bool              `json:"success"`
		PartialSuccess bool              `json:"partial_success"`
		SuccessCount   int               `json:"success_count"`
		FailCount      int               `json:"fail_count"`
		Results        []json.RawMessage `json:"results"`
	}
	require.NoError(t, json.Unmarshal([]byte(payload), &response))
	assert.False(t, response.Success)
	assert.True(t, response.PartialSuccess)
	assert.Equal(t, 1, response.SuccessCount)
	assert.Equal(t, 2, response.FailCount)
	require.Len(t, response.Results, 3)

	var blank ErrorItem
	require.NoError(t, json.Unmarshal(response.Results[1], &blank))
	assert.Equal(t, ErrorTypeValidation, blank.ErrorType)

	var missing ErrorItem
	require.NoError(t, json.Unmarshal(response.Results[2], &missing))
	assert.Equal(t, ErrorTypeHTTP, missing.ErrorType)
	assert.Equal(t, "단어", missing.Word)
}

func TestService_BatchSearchWords_CacheHits(t *testing.T) {
	fixture := newServiceFixture(t, 60)
	fixture.fetcher.EXPECT().
		Search(gomock.Any(), "사과", dictionary.VariantKoreanChinese).
		Return(upstreamPayload("사과", "苹果"), nil)

	// warm the cache through the single-word pipeline
	fixture.service.SearchWord(context.Background(), "사과", "ko-zh")

	payload := fixture.service.BatchSearchWords(context.Background(), []string{"사과"}, "ko-zh", false)

	var response struct {
		Success bool          `json:"success"`
		Results []SuccessItem `json:"results"`
	}
	require.NoError(t, json.Unmarshal([]byte(payload), &response))
	assert.True(t, response.Success)
	require.Len(t, response.Results, 1)
	assert.True(t, response.Results[0].FromCache)
	assert.Equal(t, "사과", response.Results[0].Word)
}

func TestService_BatchSearchWords_ReturnCachedJSON(t *testing.T) {
	fixture := newServiceFixture(t, 60)
	fixture.fetcher.EXPECT().
		Search(gomock.Any(), "사과", dictionary.VariantKoreanChinese).
		Return(upstreamPayload("사과", "苹果"), nil)

	fixture.service.SearchWord(context.Background(), "사과", "ko-zh")

	payload := fixture.service.BatchSearchWords(context.Background(), []string{"사과"}, "ko-zh", true)

	var response struct {
		Success bool         `json:"success"`
		Results []CachedItem `json:"results"`
	}
	require.NoError(t, json.Unmarshal([]byte(payload), &response))
	assert.True(t, response.Success)
	require.Len(t, response.Results, 1)
	assert.True(t, response.Results[0].FromCache)
	require.NotEmpty(t, response.Results[0].CachedJSON)

	var cached SuccessItem
	require.NoError(t, json.Unmarshal(response.Results[0].CachedJSON, &cached))
	assert.Equal(t, "사과", cached.Word)
}

func TestService_BatchSearchWords_RateLimited(t *testing.T) {
	fixture := newServiceFixture(t, 1)

	payload := fixture.service.BatchSearchWords(context.Background(), []string{"사과", "단어"}, "ko-zh", false)

	var response struct {
		Success bool        `json:"success"`
		Results []ErrorItem `json:"results"`
	}
	require.NoError(t, json.Unmarshal([]byte(payload), &response))
	assert.False(t, response.Success)
	require.Len(t, response.Results, 2)
	for _, item := range response.Results {
		assert.Equal(t, ErrorTypeRateLimit, item.ErrorType)
	}

	// the denied aggregate leaves the quota untouched
	assert.Equal(t, 1, fixture.limiter.Remaining())
}

func TestService_StatsJSON(t *testing.T) {
	fixture := newServiceFixture(t, 60)
	fixture.fetcher.EXPECT().
		Search(gomock.Any(), "사과", dictionary.VariantKoreanChinese).
		Return(upstreamPayload("사과", "苹果"), nil)

	fixture.service.SearchWord(context.Background(), "사과", "ko-zh")
	fixture.service.SearchWord(context.Background(), "사과", "ko-zh")

	payload := fixture.service.StatsJSON()

	var stats struct {
		Cache struct {
			Size int `json:"size"`
		} `json:"cache"`
		RateLimit struct {
			Remaining int `json:"remaining"`
		} `json:"rate_limit"`
		Requests struct {
			TotalRequests uint64 `json:"total_requests"`
			CacheHits     uint64 `json:"cache_hits"`
		} `json:"requests"`
	}
	require.NoError(t, json.Unmarshal([]byte(payload), &stats))
	assert.Equal(t, 1, stats.Cache.Size)
	assert.Equal(t, 59, stats.RateLimit.Remaining)
	assert.Equal(t, uint64(2), stats.Requests.TotalRequests)
	assert.Equal(t, uint64(1), stats.Requests.CacheHits)
}

func TestService_ClearCache(t *testing.T) {
	fixture := newServiceFixture(t, 60)
	fixture.fetcher.EXPECT().
		Search(gomock.Any(), "사과", dictionary.VariantKoreanChinese).
		Return(upstreamPayload("사과", "苹果"), nil).
		Times(2)

	fixture.service.SearchWord(context.Background(), "사과", "ko-zh")
	require.Equal(t, 1, fixture.cache.Size())

	fixture.service.ClearCache()
	assert.Equal(t, 0, fixture.cache.Size())

	// the next lookup misses and hits upstream again
	payload := fixture.service.SearchWord(context.Background(), "사과", "ko-zh")
	var item SuccessItem
	require.NoError(t, json.Unmarshal([]byte(payload), &item))
	assert.False(t, item.FromCache)
}
