package httpclient

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-resty/resty/v2"
)

const defaultUserAgent = "khobor-desk/1.0 (+https://github.com/Adda-Baaj/khobor-desk)"

// Response is the subset of an HTTP response the callers rely on.
type Response interface {
	StatusCode() int
	Body() []byte
}

// Client abstracts outbound HTTP so fetchers and publishers can be tested.
type Client interface {
	Get(ctx context.Context, url string, headers map[string]string) (Response, error)
	Do(ctx context.Context, method, url string, headers map[string]string, body any) (Response, error)
}

type restyClient struct {
	r *resty.Client
}

// NewRestyClient returns a Client backed by resty with the given timeout.
func NewRestyClient(timeout time.Duration) Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	r := resty.New().
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		SetHeader("User-Agent", defaultUserAgent).
		AddRetryCondition(func(resp *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return resp.StatusCode() == http.StatusTooManyRequests || resp.StatusCode() >= http.StatusInternalServerError
		})
	return &restyClient{r: r}
}

// Get issues a GET request with the provided headers.
func (c *restyClient) Get(ctx context.Context, url string, headers map[string]string) (Response, error) {
	return c.Do(ctx, http.MethodGet, url, headers, nil)
}

// Do issues a request with an optional body. Non-nil bodies that are not
// strings or byte slices are encoded as JSON by resty.
func (c *restyClient) Do(ctx context.Context, method, url string, headers map[string]string, body any) (Response, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	req := c.r.R().SetContext(ctx)
	for k, v := range headers {
		if strings.TrimSpace(k) == "" {
			continue
		}
		req.SetHeader(k, v)
	}
	if body != nil {
		req.SetBody(body)
	}

	resp, err := req.Execute(strings.ToUpper(method), url)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", strings.ToUpper(method), url, err)
	}
	return resp, nil
}

// Snippet trims and truncates a response body for error messages and logs.
func Snippet(body []byte, maxLen int) string {
	s := strings.TrimSpace(string(body))
	if s == "" {
		return "<empty>"
	}
	if maxLen > 0 && len(s) > maxLen {
		// Cut on a rune boundary so multi-byte text stays valid UTF-8.
		cut := maxLen
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		if cut == 0 {
			cut = maxLen
		}
		return s[:cut] + "..."
	}
	return s
}
