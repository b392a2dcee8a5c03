package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Adda-Baaj/khobor-desk/internal/domain"
	"github.com/Adda-Baaj/khobor-desk/internal/logger"
	"github.com/Adda-Baaj/khobor-desk/internal/storage"
	"github.com/Adda-Baaj/khobor-desk/pkg/providers"
)

// Store is the persistence the pipeline writes to.
type Store interface {
	CreateStory(st domain.Story) (domain.Story, error)
	PutCompany(c domain.Company) error
}

// Enricher fills in article details from the article pages.
type Enricher interface {
	Enrich(ctx context.Context, cfg providers.Provider, articles []domain.Article) []domain.Article
}

// Result summarises one ingest run.
type Result struct {
	Providers  int
	Fetched    int
	Matched    int
	Created    int
	Duplicates int
	Failed     []string
}

// Pipeline turns provider feeds into stories filed under monitored
// companies.
type Pipeline struct {
	store    Store
	fetchers providers.FetcherRegistry
	enricher Enricher
	events   domain.EventPublisher
	addedBy  string
	log      logger.Logger
}

// NewPipeline wires a pipeline. enricher and events may be nil.
func NewPipeline(store Store, fetchers providers.FetcherRegistry, enricher Enricher, events domain.EventPublisher, addedBy string, log logger.Logger) *Pipeline {
	if strings.TrimSpace(addedBy) == "" {
		addedBy = "harvester"
	}
	return &Pipeline{
		store:    store,
		fetchers: fetchers,
		enricher: enricher,
		events:   events,
		addedBy:  addedBy,
		log:      logger.Ensure(log),
	}
}

// SyncCompanies upserts the companies into the store.
func (p *Pipeline) SyncCompanies(companies []domain.Company) error {
	for _, c := range companies {
		if err := p.store.PutCompany(c); err != nil {
			return fmt.Errorf("save company %s: %w", c.ID, err)
		}
	}
	return nil
}

// Run harvests every enabled provider. A failing provider is logged and
// recorded in the result; the run continues with the next one.
func (p *Pipeline) Run(ctx context.Context, provs []providers.Provider, companies []domain.Company) (Result, error) {
	var res Result
	if len(companies) == 0 {
		return res, errors.New("no companies to match against")
	}
	m := newMatcher(companies)

	for _, prov := range provs {
		if !prov.EnabledValue() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Providers++

		if err := p.runProvider(ctx, prov, m, &res); err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			res.Failed = append(res.Failed, prov.ID)
			p.log.ErrorObj("provider ingest failed", "ingest_provider_error", map[string]any{
				"provider_id": prov.ID,
				"error":       err.Error(),
			})
		}
	}

	p.log.InfoObj("ingest finished", "ingest_done", map[string]any{
		"providers":  res.Providers,
		"fetched":    res.Fetched,
		"matched":    res.Matched,
		"created":    res.Created,
		"duplicates": res.Duplicates,
		"failed":     len(res.Failed),
	})
	return res, nil
}

func (p *Pipeline) runProvider(ctx context.Context, prov providers.Provider, m *matcher, res *Result) error {
	fetcher, err := p.fetchers.FetcherFor(prov)
	if err != nil {
		return err
	}
	articles, err := fetcher.Fetch(ctx, prov)
	if err != nil {
		return fmt.Errorf("fetch: %w", err)
	}
	res.Fetched += len(articles)

	// Sitemap titles can be thin, so matching waits for the page data.
	if p.enricher != nil {
		articles = p.enricher.Enrich(ctx, prov, articles)
	}

	for _, art := range articles {
		ids := m.Match(art)
		if len(ids) == 0 {
			continue
		}
		res.Matched++
		for _, companyID := range ids {
			if err := p.save(ctx, art, companyID, ids, res); err != nil {
				return err
			}
		}
	}
	return nil
}

func (p *Pipeline) save(ctx context.Context, art domain.Article, companyID string, tagged []string, res *Result) error {
	st, ok := storyFromArticle(art, companyID, tagged, p.addedBy)
	if !ok {
		p.log.DebugObj("article skipped", "ingest_article_skipped", map[string]any{
			"provider_id": art.ProviderID,
			"url":         art.URL,
		})
		return nil
	}

	created, err := p.store.CreateStory(st)
	switch {
	case errors.Is(err, storage.ErrDuplicateStory):
		res.Duplicates++
		return nil
	case err != nil:
		return fmt.Errorf("save story %s: %w", art.URL, err)
	}
	res.Created++

	if p.events != nil {
		if err := p.events.PublishEvent(ctx, domain.NewStoryEvent(domain.EventStoryCreated, created)); err != nil {
			p.log.WarnObj("story created event not delivered", "ingest_publish_error", map[string]any{
				"story_id": created.ID,
				"error":    err.Error(),
			})
		}
	}
	return nil
}

// storyFromArticle maps a harvested article onto a story. Articles without
// a title or with an oversized URL are rejected.
func storyFromArticle(art domain.Article, companyID string, tagged []string, addedBy string) (domain.Story, bool) {
	url := strings.TrimSpace(art.URL)
	title := strings.TrimSpace(art.Title)
	if url == "" || title == "" || len(url) > domain.MaxURLLen {
		return domain.Story{}, false
	}
	if r := []rune(title); len(r) > domain.MaxTitleLen {
		title = string(r[:domain.MaxTitleLen])
	}

	body := strings.TrimSpace(art.Body)
	if body == "" {
		body = strings.TrimSpace(art.Description)
	}

	return domain.Story{
		CompanyID:       companyID,
		TaggedCompanies: append([]string(nil), tagged...),
		SourceID:        art.ProviderID,
		AddedBy:         addedBy,
		PublishedDate:   domain.NewDate(art.PublishedAt),
		Title:           title,
		BodyText:        body,
		ArticleURL:      url,
	}, true
}
