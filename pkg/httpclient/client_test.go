package httpclient

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRestyClientGetSendsHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "yes", r.Header.Get("X-Test"))
		assert.Contains(t, r.Header.Get("User-Agent"), "khobor-desk")
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	c := NewRestyClient(time.Second)
	resp, err := c.Get(context.Background(), srv.URL, map[string]string{"X-Test": "yes", " ": "skip"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode())
	assert.Equal(t, "ok", string(resp.Body()))
}

func TestRestyClientDoEncodesJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		raw, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"a":1}`, string(raw))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	c := NewRestyClient(time.Second)
	resp, err := c.Do(context.Background(), "put", srv.URL, nil, map[string]int{"a": 1})
	require.NoError(t, err)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode())
}

func TestSnippet(t *testing.T) {
	assert.Equal(t, "<empty>", Snippet([]byte("   "), 10))
	assert.Equal(t, "abc", Snippet([]byte(" abc "), 10))
	assert.Equal(t, "abcde...", Snippet([]byte(strings.Repeat("abcdef", 2)), 5))

	bangla := "খবর খবর"
	got := Snippet([]byte(bangla), 4)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, "খ...", got)
	assert.Equal(t, "খব...", Snippet([]byte(bangla), 6))
}
