package search

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/at-ishikawa/naverdict/internal/dictionary"
)

// Machine-readable error categories carried in every error payload.
const (
	ErrorTypeValidation        = "validation"
	ErrorTypeTimeout           = "timeout"
	ErrorTypeHTTP              = "http_error"
	ErrorTypeUpstreamRateLimit = "upstream_rate_limit"
	ErrorTypeUpstreamServer    = "upstream_server_error"
	ErrorTypeNetwork           = "network_error"
	ErrorTypeParse             = "parse_error"
	ErrorTypeRateLimit         = "rate_limit"
	ErrorTypeUnknown           = "unknown"
)

// SuccessItem is the canonical success payload, used both as the single-word
// response and as a batch sub-item (batch sub-items omit dict_type since the
// batch envelope carries it).
type SuccessItem struct {
	Success    bool                      `json:"success"`
	Word       string                    `json:"word"`
	DictType   string                    `json:"dict_type,omitempty"`
	Count      int                       `json:"count"`
	Results    []dictionary.SearchResult `json:"results"`
	FromCache  bool                      `json:"from_cache"`
	Deduped    bool                      `json:"deduped"`
	SourceWord string                    `json:"source_word"`
}

// ErrorItem is the canonical error payload.
type ErrorItem struct {
	Success    bool   `json:"success"`
	Word       string `json:"word"`
	DictType   string `json:"dict_type,omitempty"`
	Error      string `json:"error"`
	ErrorType  string `json:"error_type"`
	Details    string `json:"details"`
	FromCache  bool   `json:"from_cache"`
	Deduped    bool   `json:"deduped"`
	SourceWord string `json:"source_word"`
}

// CachedItem is the batch fast path for cache hits: the raw cached payload is
// passed through so the caller can parse it once, and count/results are
// deliberately absent.
type CachedItem struct {
	Success    bool            `json:"success"`
	Word       string          `json:"word"`
	DictType   string          `json:"dict_type,omitempty"`
	FromCache  bool            `json:"from_cache"`
	CachedJSON json.RawMessage `json:"cached_json"`
	Deduped    bool            `json:"deduped"`
	SourceWord string          `json:"source_word"`
}

// BatchResponse is the aggregate envelope for batch lookups.
type BatchResponse struct {
	Success        bool    `json:"success"`
	PartialSuccess bool    `json:"partial_success"`
	Count          int     `json:"count"`
	SuccessCount   int     `json:"success_count"`
	FailCount      int     `json:"fail_count"`
	DictType       string  `json:"dict_type"`
	Results        []any   `json:"results"`
	Latency        float64 `json:"latency"`
}

// BatchErrorResponse is returned when the batch request itself is invalid, in
// place of per-item results.
type BatchErrorResponse struct {
	Success   bool   `json:"success"`
	DictType  string `json:"dict_type,omitempty"`
	Error     string `json:"error"`
	ErrorType string `json:"error_type"`
	Details   string `json:"details"`
}

// NewSuccessItem builds a success payload. Results are normalized to an empty
// slice so the JSON always carries an array.
func NewSuccessItem(word, dictType string, results []dictionary.SearchResult, fromCache, deduped bool, sourceWord string) SuccessItem {
	if results == nil {
		results = []dictionary.SearchResult{}
	}
	return SuccessItem{
		Success:    true,
		Word:       word,
		DictType:   dictType,
		Count:      len(results),
		Results:    results,
		FromCache:  fromCache,
		Deduped:    deduped,
		SourceWord: sourceWord,
	}
}

// NewErrorItem builds an error payload.
func NewErrorItem(word, dictType, message, errorType, details string, deduped bool, sourceWord string) ErrorItem {
	return ErrorItem{
		Success:    false,
		Word:       word,
		DictType:   dictType,
		Error:      message,
		ErrorType:  errorType,
		Details:    details,
		FromCache:  false,
		Deduped:    deduped,
		SourceWord: sourceWord,
	}
}

// NewBatchResponse aggregates per-item results. success is true only when
// every item succeeded; partial_success marks the some-but-not-all case.
func NewBatchResponse(dictType string, items []any, latency float64) BatchResponse {
	successCount := 0
	for _, item := range items {
		switch v := item.(type) {
		case SuccessItem:
			if v.Success {
				successCount++
			}
		case CachedItem:
			if v.Success {
				successCount++
			}
		}
	}
	return BatchResponse{
		Success:        successCount == len(items),
		PartialSuccess: successCount > 0 && successCount < len(items),
		Count:          len(items),
		SuccessCount:   successCount,
		FailCount:      len(items) - successCount,
		DictType:       dictType,
		Results:        items,
		Latency:        latency,
	}
}

// MarshalPayload serializes a response payload with stable formatting:
// two-space indentation and no HTML escaping, so that Korean and Chinese text
// stays readable.
func MarshalPayload(payload any) (string, error) {
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(payload); err != nil {
		return "", fmt.Errorf("json.Encode > %w", err)
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}

// PatchFromCache rewrites the from_cache flag of a serialized canonical
// payload without a full decode/encode round trip. Cached payloads store
// from_cache=false since they are the reusable canonical form; hits patch it
// to true on the way out.
func PatchFromCache(payload string, fromCache bool) string {
	if strings.Contains(payload, `"from_cache":`) {
		if fromCache {
			if strings.Contains(payload, `"from_cache": true`) {
				return payload
			}
			return strings.Replace(payload, `"from_cache": false`, `"from_cache": true`, 1)
		}
		if strings.Contains(payload, `"from_cache": false`) {
			return payload
		}
		return strings.Replace(payload, `"from_cache": true`, `"from_cache": false`, 1)
	}

	desired := "false"
	if fromCache {
		desired = "true"
	}
	marker := `"success": true,`
	if strings.Contains(payload, marker) {
		return strings.Replace(payload, marker, fmt.Sprintf(`%s "from_cache": %s,`, marker, desired), 1)
	}
	return payload
}
