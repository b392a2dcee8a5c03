package storyclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adda-Baaj/khobor-desk/internal/listing"
)

const samplePayload = `{
  "stories": [
    {"id": 3, "title": "Acme deal", "article_url": "https://n.example/3", "published_date": "2025-04-01",
     "body_text": "b", "company": "Acme", "tagged_companies": ["Acme"], "persons": null, "has_duplicates": true},
    {"id": 2, "title": "Older", "article_url": "https://n.example/2", "published_date": null,
     "body_text": "", "tagged_companies": [], "locations": ["Pune"]}
  ],
  "pagination": {"page": 2, "num_pages": 4, "page_size": 2, "total_count": 8,
                 "has_previous": true, "has_next": true, "previous_page_number": 1, "next_page_number": 3}
}`

func TestClientListEncodesQueryAndDecodes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/stories/list", r.URL.Path)
		assert.Equal(t, "acme", r.URL.Query().Get("q"))
		assert.Equal(t, "2025-04-01", r.URL.Query().Get("date"))
		assert.Equal(t, "2", r.URL.Query().Get("page"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(samplePayload))
	}))
	defer srv.Close()

	c, err := New(srv.URL+"/", nil)
	require.NoError(t, err)

	resp, err := c.List(context.Background(), listing.Query{Q: " acme ", Date: "2025-04-01", Page: 2})
	require.NoError(t, err)
	require.Len(t, resp.Stories, 2)
	assert.Nil(t, resp.Stories[0].Persons)
	assert.Equal(t, []string{"Pune"}, resp.Stories[1].Locations)
	assert.True(t, resp.Stories[1].PublishedDate.IsZero())
	assert.Equal(t, 4, resp.Pagination.NumPages)

	page := resp.Page(listing.Query{Q: "acme"})
	assert.Equal(t, 2, page.Query.Page)
	assert.Equal(t, "Acme", page.Stories[0].CompanyName)
	assert.True(t, page.Stories[0].HasDuplicates)
}

func TestClientListStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "bad date", http.StatusBadRequest)
	}))
	defer srv.Close()

	c, err := New(srv.URL, nil)
	require.NoError(t, err)

	_, err = c.List(context.Background(), listing.Query{Date: "nope"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 400")
	assert.Contains(t, err.Error(), "bad date")
}

func TestNewRejectsEmptyURL(t *testing.T) {
	_, err := New("  ", nil)
	require.Error(t, err)
}
