package crawler

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/Adda-Baaj/khobor-desk/internal/domain"
	"github.com/Adda-Baaj/khobor-desk/internal/logger"
	"github.com/Adda-Baaj/khobor-desk/pkg/httpclient"
	"github.com/Adda-Baaj/khobor-desk/pkg/providers"
)

const (
	maxHTMLBodyBytes  = 1 << 20 // 1 MiB
	maxArticleWorkers = 10
	maxBodyRunes      = 8000
)

// bodySelectors are tried in order to find the article paragraphs.
var bodySelectors = []string{
	"article p",
	`[itemprop="articleBody"] p`,
	".story-body p",
	"main p",
}

// Scraper fetches article pages and fills in title, description, image and
// body text.
type Scraper struct {
	client httpclient.Client
	log    logger.Logger
}

// NewScraper creates a new Scraper with the given HTTP client and logger.
func NewScraper(client httpclient.Client, log logger.Logger) *Scraper {
	if client == nil {
		client = providers.DefaultHTTPClient()
	}
	return &Scraper{client: client, log: logger.Ensure(log)}
}

// Enrich scrapes every article page with a bounded worker pool, honouring
// the provider's request delay. Articles that fail to scrape are returned
// unchanged, as are all remaining ones when ctx is cancelled.
func (s *Scraper) Enrich(ctx context.Context, cfg providers.Provider, articles []domain.Article) []domain.Article {
	delay := cfg.RequestDelay()
	out := make([]domain.Article, len(articles))
	copy(out, articles)

	if len(articles) == 0 {
		return out
	}

	workerCount := min(len(articles), maxArticleWorkers)

	var limiter <-chan time.Time
	if delay > 0 {
		ticker := time.NewTicker(delay)
		limiter = ticker.C
		defer ticker.Stop()
	}

	jobCh := make(chan int)
	var wg sync.WaitGroup

	for workerID := range workerCount {
		wg.Add(1)
		go s.articleWorker(ctx, cfg, articles, limiter, jobCh, out, &wg, workerID)
	}

feed:
	for idx := range articles {
		select {
		case <-ctx.Done():
			break feed
		case jobCh <- idx:
		}
	}
	close(jobCh)

	wg.Wait()

	return out
}

// articleWorker drains jobCh, waiting on the limiter before each request.
func (s *Scraper) articleWorker(
	ctx context.Context,
	cfg providers.Provider,
	articles []domain.Article,
	limiter <-chan time.Time,
	jobCh <-chan int,
	out []domain.Article,
	wg *sync.WaitGroup,
	workerID int,
) {
	defer wg.Done()

	for idx := range jobCh {
		if ctx.Err() != nil {
			continue
		}

		if limiter != nil {
			select {
			case <-ctx.Done():
				continue
			case <-limiter:
			}
		}

		art := articles[idx]
		enriched, err := s.fetchAndParse(ctx, cfg, art, workerID)
		if err != nil {
			s.log.WarnObj("article scrape failed", "scrape_error", map[string]any{
				"worker_id":   workerID,
				"provider_id": cfg.ID,
				"url":         art.URL,
				"error":       err.Error(),
			})
			continue
		}
		out[idx] = enriched
	}
}

// fetchAndParse fetches the article HTML and merges the parsed page data
// into art. Values already present on art win over page metadata, except
// for the body which only the page provides.
func (s *Scraper) fetchAndParse(ctx context.Context, cfg providers.Provider, art domain.Article, workerID int) (domain.Article, error) {
	s.log.DebugObj("scraping article", "scrape_start", map[string]any{
		"worker_id":   workerID,
		"provider_id": cfg.ID,
		"url":         art.URL,
	})

	resp, err := s.client.Get(ctx, art.URL, providers.Headers(cfg))
	if err != nil {
		return art, fmt.Errorf("http fetch: %w", err)
	}

	if resp.StatusCode() != http.StatusOK {
		return art, fmt.Errorf("status %d body: %s", resp.StatusCode(), httpclient.Snippet(resp.Body(), 1024))
	}

	body := resp.Body()
	if len(body) > maxHTMLBodyBytes {
		s.log.InfoObj("html body truncated", "truncation", map[string]any{
			"worker_id":   workerID,
			"provider_id": cfg.ID,
			"url":         art.URL,
			"original":    len(body),
			"kept":        maxHTMLBodyBytes,
		})
		body = body[:maxHTMLBodyBytes]
	}

	page, err := parsePage(body)
	if err != nil {
		return art, err
	}

	updated := art
	updated.Title = firstNonEmpty(art.Title, page.Title)
	updated.Description = firstNonEmpty(art.Description, page.Description)
	if updated.ImageURL == "" && page.ImageURL != "" {
		updated.ImageURL = resolveURL(page.ImageURL, art.URL)
	}
	updated.Body = page.Body
	if updated.PublishedAt.IsZero() && !page.PublishedAt.IsZero() {
		updated.PublishedAt = page.PublishedAt
	}

	return updated, nil
}

// pageData holds what could be extracted from an article page.
type pageData struct {
	Title       string
	Description string
	ImageURL    string
	Body        string
	PublishedAt time.Time
}

// parsePage extracts page metadata and body text from the HTML.
func parsePage(body []byte) (pageData, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return pageData{}, fmt.Errorf("parse html: %w", err)
	}

	meta := func(sel string) string {
		if node := doc.Find(sel).First(); node.Length() > 0 {
			if val, ok := node.Attr("content"); ok {
				return strings.TrimSpace(val)
			}
		}
		return ""
	}

	pd := pageData{
		Title: firstNonEmpty(
			meta(`meta[property="og:title"]`),
			doc.Find("title").First().Text(),
		),
		Description: firstNonEmpty(
			meta(`meta[property="og:description"]`),
			meta(`meta[name="description"]`),
		),
		ImageURL: meta(`meta[property="og:image"]`),
		Body:     extractBody(doc),
	}
	if raw := meta(`meta[property="article:published_time"]`); raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			pd.PublishedAt = t
		}
	}
	return pd, nil
}

// extractBody joins the paragraphs of the first selector that yields text.
func extractBody(doc *goquery.Document) string {
	for _, sel := range bodySelectors {
		var paras []string
		doc.Find(sel).Each(func(_ int, p *goquery.Selection) {
			if txt := strings.Join(strings.Fields(p.Text()), " "); txt != "" {
				paras = append(paras, txt)
			}
		})
		if len(paras) > 0 {
			return truncateRunes(strings.Join(paras, "\n\n"), maxBodyRunes)
		}
	}
	return ""
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// firstNonEmpty returns the first non-empty string from the given values.
func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// resolveURL resolves a possibly relative URL against a base URL.
func resolveURL(raw, base string) string {
	if raw == "" {
		return ""
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	if parsed.IsAbs() {
		return parsed.String()
	}

	baseURL, err := url.Parse(base)
	if err != nil {
		return raw
	}

	return baseURL.ResolveReference(parsed).String()
}
