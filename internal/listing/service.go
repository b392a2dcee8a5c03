package listing

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/Adda-Baaj/khobor-desk/internal/domain"
	"github.com/Adda-Baaj/khobor-desk/internal/logger"
)

const DefaultPageSize = 10

// Store is the persistence the listing service reads and edits.
type Store interface {
	ForEachStory(fn func(domain.Story) error) error
	ChildCounts() (map[int64]int, error)
	GetStory(id int64) (domain.Story, error)
	Children(rootID int64) ([]domain.Story, error)
	UpdateStory(st domain.Story) (domain.Story, error)
	DeleteStory(id int64) ([]domain.Story, error)
	ListCompanies() ([]domain.Company, error)
}

// StoryItem is a story as presented in a list: company ids resolved to
// names and duplicate presence flagged.
type StoryItem struct {
	domain.Story
	CompanyName     string   `json:"company"`
	TaggedCompanies []string `json:"tagged_companies"`
	HasDuplicates   bool     `json:"has_duplicates"`
}

// Page is one page of search results.
type Page struct {
	Query      Query       `json:"-"`
	Stories    []StoryItem `json:"stories"`
	Pagination Pagination  `json:"pagination"`
}

// Detail is a story together with the duplicates linked to it.
type Detail struct {
	Story      StoryItem
	Root       *domain.Story
	Duplicates []StoryItem
}

// Service serves the search, filter and pagination of stories.
type Service struct {
	store    Store
	pageSize int
	events   domain.EventPublisher
	log      logger.Logger
}

// NewService builds a listing service. events may be nil.
func NewService(store Store, pageSize int, events domain.EventPublisher, log logger.Logger) *Service {
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	return &Service{store: store, pageSize: pageSize, events: events, log: logger.Ensure(log)}
}

// Search returns the requested page of root stories matching q.
func (s *Service) Search(ctx context.Context, q Query) (Page, error) {
	q = q.Normalize()
	if err := q.Validate(); err != nil {
		return Page{}, err
	}
	date, err := domain.ParseDate(q.Date)
	if err != nil {
		return Page{}, fmt.Errorf("%w: %v", ErrInvalidQuery, err)
	}
	needle := strings.ToLower(q.Q)

	var matched []domain.Story
	err = s.store.ForEachStory(func(st domain.Story) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !st.IsRoot() {
			return nil
		}
		if needle != "" && !strings.Contains(strings.ToLower(st.Title), needle) {
			return nil
		}
		if !date.IsZero() && !st.PublishedDate.Equal(date) {
			return nil
		}
		matched = append(matched, st)
		return nil
	})
	if err != nil {
		return Page{}, fmt.Errorf("scan stories: %w", err)
	}

	slices.SortFunc(matched, func(a, b domain.Story) int {
		if c := b.PublishedDate.Compare(a.PublishedDate.Time); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})

	pg, start, end := Paginate(len(matched), q.Page, s.pageSize)
	q.Page = pg.Page

	items, err := s.present(matched[start:end])
	if err != nil {
		return Page{}, err
	}

	s.log.DebugObj("stories searched", "story_search", map[string]any{
		"q":       q.Q,
		"date":    q.Date,
		"page":    pg.Page,
		"matched": len(matched),
	})

	return Page{Query: q, Stories: items, Pagination: pg}, nil
}

// Get returns a story, its root when it is a duplicate, and its duplicates.
func (s *Service) Get(ctx context.Context, id int64) (Detail, error) {
	st, err := s.store.GetStory(id)
	if err != nil {
		return Detail{}, err
	}
	if err := ctx.Err(); err != nil {
		return Detail{}, err
	}
	children, err := s.store.Children(id)
	if err != nil {
		return Detail{}, fmt.Errorf("load duplicates of %d: %w", id, err)
	}

	items, err := s.present(append([]domain.Story{st}, children...))
	if err != nil {
		return Detail{}, err
	}

	d := Detail{Story: items[0], Duplicates: items[1:]}
	if !st.IsRoot() {
		root, err := s.store.GetStory(st.RootID)
		if err == nil {
			d.Root = &root
		}
	}
	return d, nil
}

// Delete removes a story with its duplicates.
func (s *Service) Delete(ctx context.Context, id int64) error {
	removed, err := s.store.DeleteStory(id)
	if err != nil {
		return err
	}
	s.log.InfoObj("story deleted", "story_deleted", map[string]any{
		"story_id":   id,
		"duplicates": len(removed) - 1,
	})
	for _, st := range removed {
		s.publish(ctx, domain.NewStoryEvent(domain.EventStoryDeleted, st))
	}
	return nil
}

// EditForm carries the editable fields of a story.
type EditForm struct {
	Title         string `form:"title" validate:"required,max=255"`
	ArticleURL    string `form:"article_url" validate:"required,url,max=500"`
	PublishedDate string `form:"published_date" validate:"required,datetime=2006-01-02"`
	BodyText      string `form:"body_text"`
}

// FormFromStory prefills an edit form.
func FormFromStory(st domain.Story) EditForm {
	return EditForm{
		Title:         st.Title,
		ArticleURL:    st.ArticleURL,
		PublishedDate: st.PublishedDate.String(),
		BodyText:      st.BodyText,
	}
}

// FieldErrors maps form field names to a human readable problem.
type FieldErrors map[string]string

func (e FieldErrors) Error() string {
	keys := make([]string, 0, len(e))
	for k := range e {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e[k])
	}
	return "invalid story: " + strings.Join(parts, "; ")
}

// Validate trims the form and checks it.
func (f *EditForm) Validate() error {
	f.Title = strings.TrimSpace(f.Title)
	f.ArticleURL = strings.TrimSpace(f.ArticleURL)
	f.PublishedDate = strings.TrimSpace(f.PublishedDate)
	f.BodyText = strings.TrimSpace(f.BodyText)

	err := validate.Struct(f)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	out := make(FieldErrors, len(verrs))
	for _, fe := range verrs {
		out[formFieldName(fe.Field())] = fieldMessage(fe)
	}
	return out
}

func formFieldName(field string) string {
	switch field {
	case "ArticleURL":
		return "article_url"
	case "PublishedDate":
		return "published_date"
	case "BodyText":
		return "body_text"
	default:
		return strings.ToLower(field)
	}
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "url":
		return "must be a valid URL"
	case "datetime":
		return "must be a date formatted YYYY-MM-DD"
	default:
		return "is invalid"
	}
}

// Update applies an edit form to a story.
func (s *Service) Update(ctx context.Context, id int64, form EditForm, editor string) (domain.Story, error) {
	if err := form.Validate(); err != nil {
		return domain.Story{}, err
	}
	st, err := s.store.GetStory(id)
	if err != nil {
		return domain.Story{}, err
	}
	if err := ctx.Err(); err != nil {
		return domain.Story{}, err
	}
	date, err := domain.ParseDate(form.PublishedDate)
	if err != nil {
		return domain.Story{}, FieldErrors{"published_date": "must be a date formatted YYYY-MM-DD"}
	}

	st.Title = form.Title
	st.ArticleURL = form.ArticleURL
	st.PublishedDate = date
	st.BodyText = form.BodyText
	st.UpdatedBy = editor

	updated, err := s.store.UpdateStory(st)
	if err != nil {
		return domain.Story{}, err
	}
	s.log.InfoObj("story updated", "story_updated", map[string]any{
		"story_id": id,
		"editor":   editor,
	})
	return updated, nil
}

// present resolves company names and duplicate flags for stories.
func (s *Service) present(stories []domain.Story) ([]StoryItem, error) {
	counts, err := s.store.ChildCounts()
	if err != nil {
		return nil, fmt.Errorf("count duplicates: %w", err)
	}
	companies, err := s.store.ListCompanies()
	if err != nil {
		return nil, fmt.Errorf("list companies: %w", err)
	}
	names := make(map[string]string, len(companies))
	for _, c := range companies {
		names[c.ID] = c.Name
	}
	nameOf := func(id string) string {
		if n := strings.TrimSpace(names[id]); n != "" {
			return n
		}
		return id
	}

	items := make([]StoryItem, 0, len(stories))
	for _, st := range stories {
		tagged := make([]string, 0, len(st.TaggedCompanies))
		for _, id := range st.TaggedCompanies {
			tagged = append(tagged, nameOf(id))
		}
		items = append(items, StoryItem{
			Story:           st,
			CompanyName:     nameOf(st.CompanyID),
			TaggedCompanies: tagged,
			HasDuplicates:   counts[st.ID] > 0,
		})
	}
	return items, nil
}

func (s *Service) publish(ctx context.Context, evt domain.StoryEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishEvent(ctx, evt); err != nil {
		s.log.WarnObj("story event publish failed", "story_event_error", map[string]any{
			"type":     evt.Type,
			"story_id": evt.StoryID,
			"error":    err.Error(),
		})
	}
}
