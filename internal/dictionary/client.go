package dictionary

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"resty.dev/v3"
)

//go:generate mockgen -source=client.go -destination=../mocks/dictionary/mock_fetcher.go -package=mock_dictionary

// Fetcher performs a single upstream dictionary lookup. The word must already
// be normalized.
type Fetcher interface {
	Search(ctx context.Context, word string, variant Variant) ([]byte, error)
}

// Client is the HTTP client for the upstream dictionary API.
type Client struct {
	httpClient *resty.Client
	timeout    time.Duration
}

// NewClient creates a Client against the given API base URL, for example
// https://korean.dict.naver.com/api3.
func NewClient(baseURL string, timeout time.Duration) *Client {
	client := resty.New()
	client.SetBaseURL(baseURL)
	client.SetTimeout(timeout)
	client.SetHeader("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")
	client.SetHeader("Accept", "application/json,*/*")
	client.SetHeader("Referer", "https://korean.dict.naver.com/")

	return &Client{
		httpClient: client,
		timeout:    timeout,
	}
}

func (c *Client) Close() error {
	return c.httpClient.Close()
}

// Search fetches the raw JSON payload for a word. Failures are classified as
// StatusError, TimeoutError or ConnectionError so that callers can decide
// which ones are worth retrying.
func (c *Client) Search(ctx context.Context, word string, variant Variant) ([]byte, error) {
	dictCode, lang := variant.UpstreamCodes()

	response, err := c.httpClient.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"query":             word,
			"m":                 "mobile",
			"lang":              lang,
			"shouldSearchVlive": "true",
		}).
		Get(fmt.Sprintf("/%s/search", dictCode))
	if err != nil {
		return nil, classifyTransportError(err, c.timeout)
	}
	if response.StatusCode() != http.StatusOK {
		return nil, &StatusError{
			StatusCode: response.StatusCode(),
			Body:       response.String(),
			RetryAfter: response.Header().Get("Retry-After"),
		}
	}
	return response.Bytes(), nil
}

func classifyTransportError(err error, timeout time.Duration) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &TimeoutError{Timeout: timeout, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &TimeoutError{Timeout: timeout, Err: err}
	}
	return &ConnectionError{Err: err}
}
