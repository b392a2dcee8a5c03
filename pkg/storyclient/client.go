package storyclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Adda-Baaj/khobor-desk/internal/domain"
	"github.com/Adda-Baaj/khobor-desk/internal/listing"
	"github.com/Adda-Baaj/khobor-desk/pkg/httpclient"
)

const listPath = "/stories/list"

// StoryPayload is one story as served by the list endpoint. Entity fields
// may be absent or null.
type StoryPayload struct {
	ID              int64       `json:"id"`
	Title           string      `json:"title"`
	ArticleURL      string      `json:"article_url"`
	PublishedDate   domain.Date `json:"published_date"`
	BodyText        string      `json:"body_text"`
	Company         string      `json:"company"`
	TaggedCompanies []string    `json:"tagged_companies"`
	Persons         []string    `json:"persons,omitempty"`
	Organizations   []string    `json:"organizations,omitempty"`
	Locations       []string    `json:"locations,omitempty"`
	HasDuplicates   bool        `json:"has_duplicates"`
}

// Item converts the payload into the listing representation.
func (p StoryPayload) Item() listing.StoryItem {
	return listing.StoryItem{
		Story: domain.Story{
			ID:            p.ID,
			Title:         p.Title,
			ArticleURL:    p.ArticleURL,
			PublishedDate: p.PublishedDate,
			BodyText:      p.BodyText,
			Entities: domain.Entities{
				Persons:       p.Persons,
				Organizations: p.Organizations,
				Locations:     p.Locations,
			},
		},
		CompanyName:     p.Company,
		TaggedCompanies: p.TaggedCompanies,
		HasDuplicates:   p.HasDuplicates,
	}
}

// ListResponse is the list endpoint payload.
type ListResponse struct {
	Stories    []StoryPayload     `json:"stories"`
	Pagination listing.Pagination `json:"pagination"`
}

// Page converts the response into a listing page for rendering.
func (r *ListResponse) Page(q listing.Query) listing.Page {
	items := make([]listing.StoryItem, 0, len(r.Stories))
	for _, s := range r.Stories {
		items = append(items, s.Item())
	}
	q.Page = r.Pagination.Page
	return listing.Page{Query: q, Stories: items, Pagination: r.Pagination}
}

// Client talks to a running story server.
type Client struct {
	baseURL string
	http    httpclient.Client
}

// New builds a client for the server at baseURL. A nil http client uses a
// resty client with a 10s timeout.
func New(baseURL string, client httpclient.Client) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("story server url is empty")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("parse story server url: %w", err)
	}
	if client == nil {
		client = httpclient.NewRestyClient(10 * time.Second)
	}
	return &Client{baseURL: baseURL, http: client}, nil
}

// List fetches one page of stories.
func (c *Client) List(ctx context.Context, q listing.Query) (*ListResponse, error) {
	q = q.Normalize()

	vals := url.Values{}
	vals.Set("q", q.Q)
	vals.Set("date", q.Date)
	vals.Set("page", strconv.Itoa(q.Page))

	resp, err := c.http.Get(ctx, c.baseURL+listPath+"?"+vals.Encode(), map[string]string{"Accept": "application/json"})
	if err != nil {
		return nil, fmt.Errorf("fetch stories: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("story list returned status %d body: %s", resp.StatusCode(), httpclient.Snippet(resp.Body(), 512))
	}

	var out ListResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return nil, fmt.Errorf("decode story list: %w", err)
	}
	return &out, nil
}
