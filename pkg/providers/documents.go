package providers

import (
	"context"
	"crypto/sha1" //nolint:gosec // ids only, not security
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Adda-Baaj/khobor-desk/internal/domain"
	"github.com/Adda-Baaj/khobor-desk/pkg/httpclient"
)

// articleID derives a stable article id from its URL.
func articleID(link string) string {
	sum := sha1.Sum([]byte(link))
	return hex.EncodeToString(sum[:])
}

// fetchDocument GETs a sitemap or feed and insists on a 200.
func fetchDocument(ctx context.Context, client httpclient.Client, url string, cfg Provider) ([]byte, error) {
	resp, err := client.Get(ctx, url, Headers(cfg))
	if err != nil {
		return nil, fmt.Errorf("fetch %s document: %w", cfg.ID, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("%s document returned status %d body: %s", cfg.ID, resp.StatusCode(), httpclient.Snippet(resp.Body(), 512))
	}
	return resp.Body(), nil
}

var publicationLayouts = []string{
	time.RFC3339,
	time.RFC1123Z,
	time.RFC1123,
	"2006-01-02T15:04:05",
	domain.DateLayout,
}

// parsePublicationDate tries the layouts sitemaps and feeds use in the wild.
// Unknown formats yield the zero time.
func parsePublicationDate(raw string) time.Time {
	if raw = strings.TrimSpace(raw); raw == "" {
		return time.Time{}
	}
	for _, layout := range publicationLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t
		}
	}
	return time.Time{}
}

// splitKeywords splits a comma separated keyword list, dropping blanks.
func splitKeywords(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if kw := strings.TrimSpace(part); kw != "" {
			out = append(out, kw)
		}
	}
	return out
}
