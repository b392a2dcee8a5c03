package providers

import (
	"context"
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/Adda-Baaj/khobor-desk/internal/domain"
)

// maxSitemapDocuments bounds how many documents one provider fetch may walk.
const maxSitemapDocuments = 50

// sitemapDocument decodes both a news urlset and a sitemap index; the root
// element decides which list is filled.
type sitemapDocument struct {
	URLs []struct {
		Loc  string `xml:"loc"`
		News struct {
			PublicationDate string `xml:"publication_date"`
			Keywords        string `xml:"keywords"`
			Title           string `xml:"title"`
		} `xml:"news"`
		Images []struct {
			Loc string `xml:"loc"`
		} `xml:"image"`
	} `xml:"url"`
	Sitemaps []struct {
		Loc string `xml:"loc"`
	} `xml:"sitemap"`
}

// articles maps the urlset entries of doc to article candidates.
func (doc sitemapDocument) articles(providerID string) []domain.Article {
	out := make([]domain.Article, 0, len(doc.URLs))
	for _, u := range doc.URLs {
		loc := strings.TrimSpace(u.Loc)
		if loc == "" {
			continue
		}
		art := domain.Article{
			ProviderID:  providerID,
			ID:          articleID(loc),
			Title:       strings.TrimSpace(u.News.Title),
			URL:         loc,
			Keywords:    splitKeywords(u.News.Keywords),
			PublishedAt: parsePublicationDate(u.News.PublicationDate),
		}
		for _, img := range u.Images {
			if art.ImageURL = strings.TrimSpace(img.Loc); art.ImageURL != "" {
				break
			}
		}
		out = append(out, art)
	}
	return out
}

type googleNewsFetcher struct {
	client HTTPClient
}

// NewGoogleNewsFetcher builds a Fetcher for Google News sitemaps. Sitemap
// indexes are followed breadth first and each document is fetched once.
func NewGoogleNewsFetcher(client HTTPClient) Fetcher {
	if client == nil {
		client = DefaultHTTPClient()
	}
	return &googleNewsFetcher{client: client}
}

func (f *googleNewsFetcher) ID() string { return ProviderTypeGoogleNews }

func (f *googleNewsFetcher) Fetch(ctx context.Context, cfg Provider) ([]domain.Article, error) {
	if !strings.EqualFold(cfg.Type, ProviderTypeGoogleNews) {
		return nil, fmt.Errorf("google news fetcher received incompatible provider type %q", cfg.Type)
	}

	var articles []domain.Article
	queue := []string{strings.TrimSpace(cfg.SourceURL)}
	visited := make(map[string]bool)

	for len(queue) > 0 && len(visited) < maxSitemapDocuments {
		next := queue[0]
		queue = queue[1:]
		if next == "" || visited[next] {
			continue
		}
		visited[next] = true

		if err := ctx.Err(); err != nil {
			return nil, err
		}
		raw, err := fetchDocument(ctx, f.client, next, cfg)
		if err != nil {
			return nil, err
		}
		var doc sitemapDocument
		if err := xml.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("decode %s sitemap: %w", cfg.ID, err)
		}

		articles = append(articles, doc.articles(cfg.ID)...)
		for _, s := range doc.Sitemaps {
			queue = append(queue, strings.TrimSpace(s.Loc))
		}
	}

	if len(articles) == 0 {
		return nil, fmt.Errorf("%s sitemap returned no records", cfg.ID)
	}
	return articles, nil
}
