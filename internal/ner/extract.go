package ner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/Adda-Baaj/khobor-desk/internal/domain"
	"github.com/Adda-Baaj/khobor-desk/internal/logger"
)

const DefaultLimit = 10

const promptTemplate = `Extract all persons, organizations, and locations mentioned in the following text.
Return the output in the following JSON format and don't write anything else:
{
  "persons": [...],
  "organizations": [...],
  "locations": [...]
}
Text:
"""%s"""`

var jsonBlock = regexp.MustCompile(`(?s)\{.*?\}`)

var ErrNoEntities = errors.New("no valid entities in reply")

// Store is the persistence used by the extractor.
type Store interface {
	ListStories() ([]domain.Story, error)
	SetEntities(id int64, ents domain.Entities) (domain.Story, error)
}

// Options selects how many stories to process and whether to persist.
type Options struct {
	Limit int
	Save  bool
}

// Outcome reports what happened to one story.
type Outcome struct {
	StoryID  int64
	Title    string
	Entities domain.Entities
	Saved    bool
	// Skipped holds the reason the story produced no entities.
	Skipped string
}

// Extractor runs LLM based named entity recognition over stored stories.
type Extractor struct {
	store  Store
	llm    Completer
	events domain.EventPublisher
	log    logger.Logger
}

func NewExtractor(store Store, llm Completer, events domain.EventPublisher, log logger.Logger) *Extractor {
	return &Extractor{store: store, llm: llm, events: events, log: logger.Ensure(log)}
}

// Prompt renders the extraction prompt for text.
func Prompt(text string) string {
	return fmt.Sprintf(promptTemplate, text)
}

// Parse extracts entities from the first JSON object in a model reply.
// An object with none of the entity keys counts as no entities. Entries are
// trimmed; blanks and repeats are dropped, first seen wins.
func Parse(reply string) (domain.Entities, error) {
	block := jsonBlock.FindString(reply)
	if block == "" {
		return domain.Entities{}, ErrNoEntities
	}
	var raw struct {
		Persons       *[]string `json:"persons"`
		Organizations *[]string `json:"organizations"`
		Locations     *[]string `json:"locations"`
	}
	if err := json.Unmarshal([]byte(block), &raw); err != nil {
		return domain.Entities{}, fmt.Errorf("%w: %v", ErrNoEntities, err)
	}
	if raw.Persons == nil && raw.Organizations == nil && raw.Locations == nil {
		return domain.Entities{}, ErrNoEntities
	}
	return domain.Entities{
		Persons:       unique(raw.Persons),
		Organizations: unique(raw.Organizations),
		Locations:     unique(raw.Locations),
	}, nil
}

func unique(list *[]string) []string {
	var in []string
	if list != nil {
		in = *list
	}
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// Run processes stories in id order up to opts.Limit. Per story failures
// are logged and reported in the outcomes; only store errors abort.
func (e *Extractor) Run(ctx context.Context, opts Options) ([]Outcome, error) {
	if opts.Limit <= 0 {
		opts.Limit = DefaultLimit
	}
	stories, err := e.store.ListStories()
	if err != nil {
		return nil, fmt.Errorf("load stories: %w", err)
	}
	if len(stories) == 0 {
		e.log.WarnObj("no stories found", "ner_empty", nil)
		return nil, nil
	}
	if len(stories) > opts.Limit {
		stories = stories[:opts.Limit]
	}

	out := make([]Outcome, 0, len(stories))
	for _, st := range stories {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		oc, err := e.process(ctx, st, opts.Save)
		if err != nil {
			return out, err
		}
		out = append(out, oc)
	}

	e.log.InfoObj("entity extraction finished", "ner_done", map[string]any{
		"stories": len(out),
		"save":    opts.Save,
	})
	return out, nil
}

func (e *Extractor) process(ctx context.Context, st domain.Story, save bool) (Outcome, error) {
	oc := Outcome{StoryID: st.ID, Title: st.Title}

	text := st.Text()
	if text == "" {
		oc.Skipped = "story has no text"
		e.log.WarnObj("story has no text, skipping", "ner_skip", map[string]any{"story_id": st.ID})
		return oc, nil
	}

	reply, err := e.llm.Complete(ctx, Prompt(text))
	if err != nil {
		if ctx.Err() != nil {
			return oc, ctx.Err()
		}
		oc.Skipped = err.Error()
		e.log.ErrorObj("llm request failed", "ner_llm_error", map[string]any{
			"story_id": st.ID,
			"error":    err.Error(),
		})
		return oc, nil
	}

	ents, err := Parse(reply)
	if err != nil {
		oc.Skipped = err.Error()
		e.log.WarnObj("no valid entities extracted", "ner_parse_error", map[string]any{
			"story_id": st.ID,
			"error":    err.Error(),
		})
		return oc, nil
	}
	oc.Entities = ents

	e.log.InfoObj("entities extracted", "ner_story", map[string]any{
		"story_id":      st.ID,
		"title":         st.Title,
		"persons":       ents.Persons,
		"organizations": ents.Organizations,
		"locations":     ents.Locations,
	})

	if !save {
		return oc, nil
	}
	saved, err := e.store.SetEntities(st.ID, ents)
	if err != nil {
		return oc, fmt.Errorf("save entities for story %d: %w", st.ID, err)
	}
	oc.Saved = true

	if e.events != nil {
		if err := e.events.PublishEvent(ctx, domain.NewStoryEvent(domain.EventStoryEntitiesExtracted, saved)); err != nil {
			e.log.WarnObj("entities event not delivered", "ner_publish_error", map[string]any{
				"story_id": st.ID,
				"error":    err.Error(),
			})
		}
	}
	return oc, nil
}
