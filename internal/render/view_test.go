package render

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adda-Baaj/khobor-desk/internal/domain"
	"github.com/Adda-Baaj/khobor-desk/internal/listing"
)

func sampleItem() listing.StoryItem {
	return listing.StoryItem{
		Story: domain.Story{
			ID:            7,
			Title:         "Acme buys Globex",
			ArticleURL:    "https://news.example/acme",
			BodyText:      "Acme announced the deal.",
			PublishedDate: domain.NewDate(time.Date(2025, 2, 3, 0, 0, 0, 0, time.UTC)),
			Entities: domain.Entities{
				Persons:       []string{"Jane Roe", " "},
				Organizations: []string{"Acme", "Globex"},
			},
		},
		CompanyName:     "Acme",
		TaggedCompanies: []string{"Acme", "Globex"},
		HasDuplicates:   true,
	}
}

func TestNewCardFormatsFields(t *testing.T) {
	c := NewCard(sampleItem())

	assert.Equal(t, "2025-02-03", c.PublishedDate)
	assert.Equal(t, "Acme, Globex", c.Companies)
	assert.Equal(t, "Jane Roe", c.Persons)
	assert.Equal(t, "Acme, Globex", c.Organizations)
	assert.Equal(t, NoEntities, c.Locations)
	assert.Equal(t, "/story/edit/7/", c.EditURL)
	assert.Equal(t, "/story/delete/7/", c.DeleteURL)
	assert.Equal(t, "/story/7/", c.DuplicatesURL)
	assert.True(t, c.HasDuplicates())
}

func TestNewCardFallbacks(t *testing.T) {
	c := NewCard(listing.StoryItem{Story: domain.Story{ID: 1, Title: "t"}})

	assert.Equal(t, NoDate, c.PublishedDate)
	assert.Equal(t, NoCompanies, c.Companies)
	assert.Equal(t, NoEntities, c.Persons)
	assert.Equal(t, NoEntities, c.Organizations)
	assert.Equal(t, NoEntities, c.Locations)
	assert.False(t, c.HasDuplicates())
}

func TestNewPaginationKeepsFilters(t *testing.T) {
	q := listing.Query{Q: "acme deal", Date: "2025-02-03", Page: 3}
	p, _, _ := listing.Paginate(100, 3, 10)

	v := NewPagination(ListPath, q, p)

	require.NotNil(t, v.Previous)
	require.NotNil(t, v.Next)
	assert.Equal(t, 2, v.Previous.Page)
	assert.Equal(t, "/stories/?date=2025-02-03&page=2&q=acme+deal", v.Previous.URL)
	assert.Equal(t, 4, v.Next.Page)
	require.Len(t, v.Pages, 5)
	assert.Equal(t, 1, v.Pages[0].Page)
	assert.Equal(t, "/stories/?date=2025-02-03&q=acme+deal", v.Pages[0].URL)
	assert.True(t, v.Pages[2].Current)
	assert.Equal(t, "Page 3 of 10", v.Summary)
	assert.True(t, v.Visible())
}

func TestNewPaginationSinglePage(t *testing.T) {
	p, _, _ := listing.Paginate(3, 1, 10)
	v := NewPagination(CardsPath, listing.Query{}, p)
	assert.Nil(t, v.Previous)
	assert.Nil(t, v.Next)
	assert.False(t, v.Visible())
	assert.Equal(t, CardsPath, PageURL(CardsPath, listing.Query{}, 1))
}

func TestNewListViewEmpty(t *testing.T) {
	p, _, _ := listing.Paginate(0, 1, 10)
	v := NewListView(ListPath, listing.Page{Pagination: p})
	assert.True(t, v.Empty())
	assert.Equal(t, NoResults, v.Message)
}

func TestNewDetailView(t *testing.T) {
	root := domain.Story{ID: 2, Title: "Root story"}
	v := NewDetailView(listing.Detail{
		Story:      sampleItem(),
		Root:       &root,
		Duplicates: []listing.StoryItem{{Story: domain.Story{ID: 9, Title: "dup"}}},
	})
	assert.Equal(t, "/story/2/", v.RootURL)
	assert.Equal(t, "Root story", v.RootTitle)
	require.Len(t, v.Duplicates, 1)
	assert.Equal(t, int64(9), v.Duplicates[0].ID)
}
