package render

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/Adda-Baaj/khobor-desk/internal/listing"
)

// Fallback texts shown when a card field has no value.
const (
	NoDate      = "N/A"
	NoCompanies = "No companies tagged"
	NoEntities  = "None"
	NoResults   = "No results found."
	LoadFailed  = "Failed to load stories. Please try again."
)

// Paths used when building links.
const (
	ListPath  = "/stories/"
	CardsPath = "/stories/cards"
	JSONPath  = "/stories/list"
)

const pageWindow = 2

// Card is the display form of one story. Every field is final text; the
// templates do no formatting of their own.
type Card struct {
	ID            int64
	Title         string
	ArticleURL    string
	PublishedDate string
	Body          string
	Company       string
	Companies     string
	Persons       string
	Organizations string
	Locations     string
	EditURL       string
	DeleteURL     string
	DuplicatesURL string
}

// HasDuplicates reports whether the "View Duplicates" action applies.
func (c Card) HasDuplicates() bool { return c.DuplicatesURL != "" }

// NewCard maps a listed story onto its card.
func NewCard(item listing.StoryItem) Card {
	c := Card{
		ID:            item.ID,
		Title:         item.Title,
		ArticleURL:    item.ArticleURL,
		PublishedDate: orDefault(item.PublishedDate.String(), NoDate),
		Body:          item.BodyText,
		Company:       item.CompanyName,
		Companies:     joinOr(item.TaggedCompanies, NoCompanies),
		Persons:       joinOr(item.Persons, NoEntities),
		Organizations: joinOr(item.Organizations, NoEntities),
		Locations:     joinOr(item.Locations, NoEntities),
		EditURL:       fmt.Sprintf("/story/edit/%d/", item.ID),
		DeleteURL:     fmt.Sprintf("/story/delete/%d/", item.ID),
	}
	if item.HasDuplicates {
		c.DuplicatesURL = fmt.Sprintf("/story/%d/", item.ID)
	}
	return c
}

// NewCards maps a slice of listed stories.
func NewCards(items []listing.StoryItem) []Card {
	cards := make([]Card, 0, len(items))
	for _, it := range items {
		cards = append(cards, NewCard(it))
	}
	return cards
}

// PageLink is one pagination control. Page is the page it requests.
type PageLink struct {
	Page    int
	Label   string
	URL     string
	Current bool
}

// PaginationView holds the pagination controls for a result page.
type PaginationView struct {
	Previous *PageLink
	Next     *PageLink
	Pages    []PageLink
	Summary  string
}

// Visible reports whether there is more than one page to move between.
func (p PaginationView) Visible() bool { return len(p.Pages) > 1 }

// NewPagination builds controls whose links keep the current search and
// date filter and request their own page.
func NewPagination(basePath string, q listing.Query, p listing.Pagination) PaginationView {
	link := func(page int, label string) PageLink {
		return PageLink{Page: page, Label: label, URL: PageURL(basePath, q, page), Current: page == p.Page}
	}

	v := PaginationView{
		Summary: fmt.Sprintf("Page %d of %d", p.Page, p.NumPages),
	}
	if p.HasPrevious {
		l := link(p.PreviousPage, "Previous")
		l.Current = false
		v.Previous = &l
	}
	if p.HasNext {
		l := link(p.NextPage, "Next")
		l.Current = false
		v.Next = &l
	}

	first := max(1, p.Page-pageWindow)
	last := min(p.NumPages, p.Page+pageWindow)
	for n := first; n <= last; n++ {
		v.Pages = append(v.Pages, link(n, strconv.Itoa(n)))
	}
	return v
}

// PageURL encodes q with the given page onto basePath. Empty filters are
// left out.
func PageURL(basePath string, q listing.Query, page int) string {
	vals := url.Values{}
	if s := strings.TrimSpace(q.Q); s != "" {
		vals.Set("q", s)
	}
	if s := strings.TrimSpace(q.Date); s != "" {
		vals.Set("date", s)
	}
	if page > 1 {
		vals.Set("page", strconv.Itoa(page))
	}
	if len(vals) == 0 {
		return basePath
	}
	return basePath + "?" + vals.Encode()
}

// ListView is everything needed to draw a result page.
type ListView struct {
	Query      listing.Query
	Cards      []Card
	Pagination PaginationView
	Message    string
}

// Empty reports whether the page has no stories to show.
func (v ListView) Empty() bool { return len(v.Cards) == 0 }

// NewListView binds a result page to its view. basePath is where
// pagination links point.
func NewListView(basePath string, page listing.Page) ListView {
	v := ListView{
		Query:      page.Query,
		Cards:      NewCards(page.Stories),
		Pagination: NewPagination(basePath, page.Query, page.Pagination),
	}
	if v.Empty() {
		v.Message = NoResults
	}
	return v
}

// DetailView shows a story with its duplicates.
type DetailView struct {
	Story      Card
	RootURL    string
	RootTitle  string
	Duplicates []Card
}

// NewDetailView binds a story detail.
func NewDetailView(d listing.Detail) DetailView {
	v := DetailView{
		Story:      NewCard(d.Story),
		Duplicates: NewCards(d.Duplicates),
	}
	if d.Root != nil {
		v.RootURL = fmt.Sprintf("/story/%d/", d.Root.ID)
		v.RootTitle = d.Root.Title
	}
	return v
}

// EditView is the story edit form with any validation errors.
type EditView struct {
	ID     int64
	Form   listing.EditForm
	Errors listing.FieldErrors
}

func joinOr(vals []string, fallback string) string {
	kept := make([]string, 0, len(vals))
	for _, v := range vals {
		if s := strings.TrimSpace(v); s != "" {
			kept = append(kept, s)
		}
	}
	if len(kept) == 0 {
		return fallback
	}
	return strings.Join(kept, ", ")
}

func orDefault(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}
