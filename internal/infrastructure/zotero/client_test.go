package zotero

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PaperWatcher/internal/ports"
)

const pageOne = `[
  {"key":"AAA","version":10,"data":{"itemType":"journalArticle","title":" Graph Networks ","abstractNote":"GNNs.",
   "creators":[{"creatorType":"author","firstName":"Ada","lastName":"Lovelace"},{"creatorType":"author","name":"DeepMind Team"}],
   "tags":[{"tag":"graphs"},{"tag":" "}],"publicationTitle":"Nature","date":"March 2021","DOI":"10.1038/x","url":"https://example.org/a"}},
  {"key":"NOTE","version":11,"data":{"itemType":"note"}}
]`

const pageTwo = `[
  {"key":"BBB","version":12,"data":{"itemType":"conferencePaper","title":"Transformers","proceedingsTitle":"NeurIPS","date":"2017-12-04"}}
]`

func newTestClient(t *testing.T, server *httptest.Server) *Client {
	t.Helper()
	client, err := NewClient(Config{BaseURL: server.URL, UserID: "42", APIKey: "secret", PageSize: 1}, server.Client(), nil)
	require.NoError(t, err)
	return client
}

func TestFetchItemsFollowsNextLinks(t *testing.T) {
	t.Parallel()

	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "3", r.Header.Get("Zotero-API-Version"))
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "/users/42/items/top", r.URL.Path)

		if r.URL.Query().Get("start") == "1" {
			w.Header().Set("Last-Modified-Version", "12")
			_, _ = w.Write([]byte(pageTwo))
			return
		}
		w.Header().Set("Last-Modified-Version", "12")
		w.Header().Set("Link", fmt.Sprintf(`<%s/users/42/items/top?format=json&limit=1&start=1>; rel="next", <%s/users/42/items/top?start=1>; rel="last"`, server.URL, server.URL))
		_, _ = w.Write([]byte(pageOne))
	}))
	defer server.Close()

	var pages []ports.LibraryPage
	err := newTestClient(t, server).FetchItems(context.Background(), 0, func(p ports.LibraryPage) error {
		pages = append(pages, p)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, pages, 2)

	first := pages[0]
	assert.Equal(t, 12, first.Version)
	require.Len(t, first.Items, 1)
	item := first.Items[0]
	assert.Equal(t, "AAA", item.Key)
	assert.Equal(t, 10, item.Version)
	assert.Equal(t, "Graph Networks", item.Title)
	assert.Equal(t, []string{"Ada Lovelace", "DeepMind Team"}, item.Creators)
	assert.Equal(t, []string{"graphs"}, item.Tags)
	assert.Equal(t, "Nature", item.Venue)
	assert.Equal(t, 2021, item.Year)
	assert.Equal(t, "10.1038/x", item.DOI)

	second := pages[1].Items[0]
	assert.Equal(t, "NeurIPS", second.Venue)
	assert.Equal(t, 2017, second.Year)
}

func TestFetchItemsNotModified(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "12", r.Header.Get("If-Modified-Since-Version"))
		assert.Equal(t, "12", r.URL.Query().Get("since"))
		w.WriteHeader(http.StatusNotModified)
	}))
	defer server.Close()

	called := false
	err := newTestClient(t, server).FetchItems(context.Background(), 12, func(ports.LibraryPage) error {
		called = true
		return nil
	})
	require.NoError(t, err)
	assert.False(t, called)
}

func TestFetchItemsErrorStatus(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	err := newTestClient(t, server).FetchItems(context.Background(), 0, func(ports.LibraryPage) error { return nil })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}

func TestFetchDeleted(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/users/42/deleted", r.URL.Path)
		assert.Equal(t, "7", r.URL.Query().Get("since"))
		_, _ = w.Write([]byte(`{"collections":[],"items":["AAA","CCC"],"searches":[],"tags":[]}`))
	}))
	defer server.Close()

	keys, err := newTestClient(t, server).FetchDeleted(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, []string{"AAA", "CCC"}, keys)
}

func TestNewClientRequiresCredentials(t *testing.T) {
	t.Parallel()

	_, err := NewClient(Config{UserID: "42"}, nil, nil)
	require.Error(t, err)
}
