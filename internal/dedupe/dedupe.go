package dedupe

import (
	"context"
	"fmt"

	"github.com/Adda-Baaj/khobor-desk/internal/domain"
	"github.com/Adda-Baaj/khobor-desk/internal/logger"
)

// Store is the persistence used by the deduplicator.
type Store interface {
	RootStories() ([]domain.Story, error)
	SetRoots(links map[int64]int64) error
}

// Link greedily groups similar vectors. Walking in order, each vector not
// yet linked claims every later unlinked vector whose similarity reaches
// threshold. The result maps a linked index to its root index.
func Link(vecs []Vector, threshold float64) map[int]int {
	links := make(map[int]int)
	for i := range vecs {
		if _, linked := links[i]; linked {
			continue
		}
		for j := i + 1; j < len(vecs); j++ {
			if _, linked := links[j]; linked {
				continue
			}
			if Cosine(vecs[i], vecs[j]) >= threshold {
				links[j] = i
			}
		}
	}
	return links
}

// Deduplicator links near identical root stories to the earliest one.
type Deduplicator struct {
	store      Store
	vectorizer Vectorizer
	threshold  float64
	events     domain.EventPublisher
	log        logger.Logger
}

// New returns a Deduplicator. A threshold outside (0, 1] falls back to
// DefaultThreshold.
func New(store Store, vectorizer Vectorizer, threshold float64, events domain.EventPublisher, log logger.Logger) *Deduplicator {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultThreshold
	}
	if vectorizer == nil {
		vectorizer = NewHashingVectorizer(DefaultFeatures)
	}
	return &Deduplicator{
		store:      store,
		vectorizer: vectorizer,
		threshold:  threshold,
		events:     events,
		log:        logger.Ensure(log),
	}
}

// Run compares every root story with the later ones and stores the links
// in a single transaction. It returns the number of stories linked.
func (d *Deduplicator) Run(ctx context.Context) (int, error) {
	stories, err := d.store.RootStories()
	if err != nil {
		return 0, fmt.Errorf("load stories: %w", err)
	}
	if len(stories) == 0 {
		d.log.InfoObj("nothing to deduplicate", "dedupe_empty", nil)
		return 0, nil
	}

	texts := make([]string, len(stories))
	for i, st := range stories {
		texts[i] = st.Text()
	}
	vecs, err := d.vectorizer.Vectorize(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("vectorize stories: %w", err)
	}
	if len(vecs) != len(stories) {
		return 0, fmt.Errorf("vectorizer returned %d vectors for %d stories", len(vecs), len(stories))
	}

	pairs := Link(vecs, d.threshold)
	links := make(map[int64]int64, len(pairs))
	for j, i := range pairs {
		links[stories[j].ID] = stories[i].ID
	}
	if err := d.store.SetRoots(links); err != nil {
		return 0, fmt.Errorf("save duplicate links: %w", err)
	}

	for j, i := range pairs {
		st := stories[j]
		st.RootID = stories[i].ID
		d.log.DebugObj("story linked as duplicate", "dedupe_linked", map[string]any{
			"story_id": st.ID,
			"root_id":  st.RootID,
		})
		if d.events == nil {
			continue
		}
		if err := d.events.PublishEvent(ctx, domain.NewStoryEvent(domain.EventStoryDuplicateLinked, st)); err != nil {
			d.log.WarnObj("duplicate event not delivered", "dedupe_publish_error", map[string]any{
				"story_id": st.ID,
				"error":    err.Error(),
			})
		}
	}

	d.log.InfoObj("deduplication finished", "dedupe_done", map[string]any{
		"stories":   len(stories),
		"linked":    len(links),
		"threshold": d.threshold,
	})
	return len(links), nil
}
