package providers

import (
	"context"
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/Adda-Baaj/khobor-desk/internal/domain"
)

type rssDocument struct {
	Channel struct {
		Items []rssItem `xml:"item"`
	} `xml:"channel"`
}

type rssItem struct {
	Title       string   `xml:"title"`
	Link        string   `xml:"link"`
	Description string   `xml:"description"`
	PubDate     string   `xml:"pubDate"`
	Categories  []string `xml:"category"`
	Enclosure   struct {
		URL  string `xml:"url,attr"`
		Type string `xml:"type,attr"`
	} `xml:"enclosure"`
}

// rssFetcher implements Fetcher for RSS 2.0 feeds.
type rssFetcher struct {
	client HTTPClient
}

// NewRSSFetcher builds a Fetcher for RSS feed providers.
func NewRSSFetcher(client HTTPClient) Fetcher {
	if client == nil {
		client = DefaultHTTPClient()
	}
	return &rssFetcher{client: client}
}

func (f *rssFetcher) ID() string { return ProviderTypeRSS }

func (f *rssFetcher) Fetch(ctx context.Context, cfg Provider) ([]domain.Article, error) {
	if !strings.EqualFold(cfg.Type, ProviderTypeRSS) {
		return nil, fmt.Errorf("rss fetcher received incompatible provider type %q", cfg.Type)
	}
	if strings.TrimSpace(cfg.SourceURL) == "" {
		return nil, fmt.Errorf("provider %q source_url is empty", cfg.ID)
	}

	raw, err := fetchDocument(ctx, f.client, cfg.SourceURL, cfg)
	if err != nil {
		return nil, err
	}

	var doc rssDocument
	if err := xml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode rss feed: %w", err)
	}

	articles := make([]domain.Article, 0, len(doc.Channel.Items))
	for _, item := range doc.Channel.Items {
		link := strings.TrimSpace(item.Link)
		if link == "" {
			continue
		}
		var image string
		if strings.HasPrefix(item.Enclosure.Type, "image/") {
			image = strings.TrimSpace(item.Enclosure.URL)
		}
		articles = append(articles, domain.Article{
			ProviderID:  cfg.ID,
			ID:          articleID(link),
			Title:       strings.TrimSpace(item.Title),
			URL:         link,
			Description: plainText(item.Description),
			ImageURL:    image,
			Keywords:    trimAll(item.Categories),
			PublishedAt: parsePublicationDate(item.PubDate),
		})
	}
	if len(articles) == 0 {
		return nil, fmt.Errorf("%s feed returned no records", cfg.ID)
	}
	return articles, nil
}

// plainText strips markup that feeds commonly embed in descriptions.
func plainText(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || !strings.Contains(raw, "<") {
		return raw
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return raw
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}

func trimAll(vals []string) []string {
	var out []string
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
