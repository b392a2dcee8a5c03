package domain

import (
	"context"
	"strings"
	"time"
)

// Domain contains core models shared by the store, the listing service and
// the batch jobs.

// DateLayout is the wire and storage format of a story published date.
const DateLayout = "2006-01-02"

const (
	MaxTitleLen = 255
	MaxURLLen   = 500
)

// Article is a harvested candidate produced by a provider fetcher.
type Article struct {
	ProviderID  string
	ID          string
	Title       string
	URL         string
	Description string
	Body        string
	ImageURL    string
	Keywords    []string
	PublishedAt time.Time
}

// Company is a monitored organisation. Stories are filed under a company
// and may tag several.
type Company struct {
	ID       string   `json:"id" yaml:"id"`
	Name     string   `json:"name" yaml:"name"`
	Keywords []string `json:"keywords,omitempty" yaml:"keywords"`
}

// Entities holds named entities recognised in a story. A nil slice means the
// story was never processed.
type Entities struct {
	Persons       []string `json:"persons,omitempty"`
	Organizations []string `json:"organizations,omitempty"`
	Locations     []string `json:"locations,omitempty"`
}

// Story is a monitored news article.
type Story struct {
	ID              int64     `json:"id"`
	CompanyID       string    `json:"company_id"`
	TaggedCompanies []string  `json:"tagged_companies,omitempty"`
	SourceID        string    `json:"source_id,omitempty"`
	RootID          int64     `json:"root_id,omitempty"`
	AddedBy         string    `json:"added_by"`
	UpdatedBy       string    `json:"updated_by,omitempty"`
	PublishedDate   Date      `json:"published_date"`
	AddedOn         time.Time `json:"added_on"`
	UpdatedOn       time.Time `json:"updated_on"`
	Title           string    `json:"title"`
	BodyText        string    `json:"body_text"`
	ArticleURL      string    `json:"article_url"`
	Entities
}

// IsRoot reports whether the story is not linked to another as a duplicate.
func (s Story) IsRoot() bool { return s.RootID == 0 }

// Text returns the title and body joined for text analysis.
func (s Story) Text() string {
	return strings.TrimSpace(s.Title + " " + s.BodyText)
}

// Date is a calendar day without time of day, encoded as YYYY-MM-DD.
type Date struct {
	time.Time
}

// NewDate truncates t to its calendar day in UTC.
func NewDate(t time.Time) Date {
	if t.IsZero() {
		return Date{}
	}
	y, m, d := t.Date()
	return Date{time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a YYYY-MM-DD string. An empty string yields the zero Date.
func ParseDate(raw string) (Date, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Date{}, nil
	}
	t, err := time.Parse(DateLayout, raw)
	if err != nil {
		return Date{}, err
	}
	return Date{t}, nil
}

// String returns the YYYY-MM-DD form, or "" for the zero Date.
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

// Equal reports whether both dates fall on the same day.
func (d Date) Equal(o Date) bool {
	return d.String() == o.String()
}

func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Date) UnmarshalText(b []byte) error {
	parsed, err := ParseDate(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// MarshalJSON encodes the zero Date as null.
func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Date) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" || s == `""` {
		*d = Date{}
		return nil
	}
	return d.UnmarshalText([]byte(strings.Trim(s, `"`)))
}

// Story lifecycle event types.
const (
	EventStoryCreated           = "story.created"
	EventStoryDuplicateLinked   = "story.duplicate_linked"
	EventStoryEntitiesExtracted = "story.entities_extracted"
	EventStoryDeleted           = "story.deleted"
)

// StoryEvent describes a change to a story for downstream consumers.
type StoryEvent struct {
	Type       string    `json:"type"`
	StoryID    int64     `json:"story_id"`
	CompanyID  string    `json:"company_id,omitempty"`
	RootID     int64     `json:"root_id,omitempty"`
	Title      string    `json:"title,omitempty"`
	URL        string    `json:"url,omitempty"`
	SourceID   string    `json:"source_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// NewStoryEvent builds an event of the given type for s.
func NewStoryEvent(typ string, s Story) StoryEvent {
	return StoryEvent{
		Type:       typ,
		StoryID:    s.ID,
		CompanyID:  s.CompanyID,
		RootID:     s.RootID,
		Title:      s.Title,
		URL:        s.ArticleURL,
		SourceID:   s.SourceID,
		OccurredAt: time.Now().UTC(),
	}
}

// EventPublisher delivers story events to downstream consumers.
type EventPublisher interface {
	PublishEvent(ctx context.Context, evt StoryEvent) error
}
