package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adda-Baaj/khobor-desk/internal/domain"
	"github.com/Adda-Baaj/khobor-desk/internal/listing"
	"github.com/Adda-Baaj/khobor-desk/internal/render"
	"github.com/Adda-Baaj/khobor-desk/internal/storage"
)

type fixture struct {
	store  *storage.Store
	server *Server
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	store, err := storage.Open(filepath.Join(t.TempDir(), "server.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.PutCompany(domain.Company{ID: "acme", Name: "Acme"}))

	html, err := render.NewHTMLRenderer()
	require.NoError(t, err)

	svc := listing.NewService(store, 2, nil, nil)
	return fixture{store: store, server: New(svc, html, nil, Options{Editor: "tester"})}
}

func (f fixture) add(t *testing.T, title string, d int) domain.Story {
	t.Helper()
	st, err := f.store.CreateStory(domain.Story{
		CompanyID:       "acme",
		TaggedCompanies: []string{"acme"},
		Title:           title,
		ArticleURL:      "https://news.example/" + strings.ReplaceAll(title, " ", "-"),
		PublishedDate:   domain.NewDate(time.Date(2025, 7, d, 0, 0, 0, 0, time.UTC)),
		BodyText:        "body of " + title,
	})
	require.NoError(t, err)
	return st
}

func (f fixture) do(method, target string, body url.Values) *httptest.ResponseRecorder {
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, target, strings.NewReader(body.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rr := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rr, req)
	return rr
}

func TestListJSON(t *testing.T) {
	f := newFixture(t)
	f.add(t, "Acme wins contract", 1)
	f.add(t, "Acme loses appeal", 2)
	f.add(t, "Unrelated", 3)

	rr := f.do(http.MethodGet, "/stories/list?q=acme&page=1", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

	var body struct {
		Stories []struct {
			ID              int64    `json:"id"`
			Title           string   `json:"title"`
			PublishedDate   string   `json:"published_date"`
			TaggedCompanies []string `json:"tagged_companies"`
			HasDuplicates   bool     `json:"has_duplicates"`
		} `json:"stories"`
		Pagination listing.Pagination `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Len(t, body.Stories, 2)
	assert.Equal(t, "Acme loses appeal", body.Stories[0].Title)
	assert.Equal(t, "2025-07-02", body.Stories[0].PublishedDate)
	assert.Equal(t, []string{"Acme"}, body.Stories[0].TaggedCompanies)
	assert.Equal(t, 1, body.Pagination.NumPages)
	assert.NotContains(t, rr.Body.String(), `"persons"`)
}

func TestListJSONBadDate(t *testing.T) {
	f := newFixture(t)
	rr := f.do(http.MethodGet, "/stories/list?date=tomorrow", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "error")
}

func TestListJSONMalformedPageFallsBackToFirst(t *testing.T) {
	f := newFixture(t)
	f.add(t, "one", 1)
	rr := f.do(http.MethodGet, "/stories/list?page=abc", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"page":1`)
}

func TestCardsFragmentPaginates(t *testing.T) {
	f := newFixture(t)
	for i := 1; i <= 3; i++ {
		f.add(t, "story "+string(rune('a'+i)), i)
	}
	rr := f.do(http.MethodGet, "/stories/cards?page=1", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	out := rr.Body.String()
	assert.Contains(t, out, `class="story-card"`)
	assert.Contains(t, out, `data-page="2"`)
	assert.Contains(t, out, `href="/stories/cards?page=2"`)
	assert.NotContains(t, out, "<html")
}

func TestListPageAndRedirect(t *testing.T) {
	f := newFixture(t)
	rr := f.do(http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusFound, rr.Code)
	assert.Equal(t, "/stories/", rr.Header().Get("Location"))

	rr = f.do(http.MethodGet, "/stories/", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "No results found.")
	assert.Contains(t, rr.Body.String(), `id="search-title"`)
}

func TestDetailAndDelete(t *testing.T) {
	f := newFixture(t)
	root := f.add(t, "root", 1)
	dup := f.add(t, "dup", 1)
	require.NoError(t, f.store.SetRoots(map[int64]int64{dup.ID: root.ID}))

	rr := f.do(http.MethodGet, "/story/1/", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "body of dup")

	rr = f.do(http.MethodGet, "/story/99/", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = f.do(http.MethodGet, "/story/delete/1/", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)

	rr = f.do(http.MethodPost, "/story/delete/1/", nil)
	assert.Equal(t, http.StatusSeeOther, rr.Code)

	all, err := f.store.ListStories()
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestEditFlow(t *testing.T) {
	f := newFixture(t)
	st := f.add(t, "draft", 1)

	rr := f.do(http.MethodGet, "/story/edit/1/", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `value="draft"`)

	rr = f.do(http.MethodPost, "/story/edit/1/", url.Values{
		"title":          {""},
		"article_url":    {st.ArticleURL},
		"published_date": {"2025-07-01"},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	assert.Contains(t, rr.Body.String(), "is required")

	rr = f.do(http.MethodPost, "/story/edit/1/", url.Values{
		"title":          {"final"},
		"article_url":    {"https://news.example/final"},
		"published_date": {"2025-07-09"},
		"body_text":      {"new body"},
	})
	assert.Equal(t, http.StatusSeeOther, rr.Code)

	got, err := f.store.GetStory(st.ID)
	require.NoError(t, err)
	assert.Equal(t, "final", got.Title)
	assert.Equal(t, "tester", got.UpdatedBy)
	assert.Equal(t, "2025-07-09", got.PublishedDate.String())
}

func TestHealthAndMetrics(t *testing.T) {
	f := newFixture(t)
	rr := f.do(http.MethodGet, "/healthz", nil)
	assert.Equal(t, "ok", rr.Body.String())

	f.do(http.MethodGet, "/stories/list", nil)
	rr = f.do(http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `khobor_http_requests_total{endpoint="list_json",result="2xx"}`)
}

func TestRunStopsOnCancel(t *testing.T) {
	f := newFixture(t)
	f.server.opts.Addr = "127.0.0.1:0"
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.server.Run(ctx) }()
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
