package parser

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PaperWatcher/internal/scanner"
)

var testSince = time.Date(2025, time.May, 1, 0, 0, 0, 0, time.UTC)

func TestOpenAlexScanner(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/works", r.URL.Path)
		assert.Equal(t, "from_publication_date:2025-05-01", r.URL.Query().Get("filter"))
		assert.Equal(t, "me@example.org", r.URL.Query().Get("mailto"))
		assert.Contains(t, r.Header.Get("User-Agent"), "PaperWatcher")
		_, _ = w.Write([]byte(`{"results":[
		  {"id":"https://openalex.org/W1","doi":"https://doi.org/10.1/abc","display_name":"Sparse Attention",
		   "publication_date":"2025-05-20","cited_by_count":12,
		   "abstract_inverted_index":{"attention":[1],"Sparse":[0],"wins":[2]},
		   "authorships":[{"author":{"display_name":"Ada Lovelace"}}],
		   "primary_location":{"landing_page_url":"https://example.org/w1","source":{"display_name":"Nature"}},
		   "concepts":[{"display_name":"Machine learning"}]},
		  {"id":"https://openalex.org/W2","display_name":"  "}
		]}`))
	}))
	defer server.Close()

	sc := NewOpenAlexScanner(server.Client(), nil, "me@example.org", nil)
	sc.baseURL = server.URL

	works, err := sc.Scan(context.Background(), scanner.Request{Since: testSince})
	require.NoError(t, err)
	require.Len(t, works, 1)

	w := works[0]
	assert.Equal(t, "openalex", w.Source)
	assert.Equal(t, "https://openalex.org/W1", w.Identifier)
	assert.Equal(t, "Sparse attention wins", w.Abstract)
	assert.Equal(t, []string{"Ada Lovelace"}, w.Authors)
	assert.Equal(t, "Nature", w.Venue)
	assert.Equal(t, "https://example.org/w1", w.URL)
	assert.InDelta(t, 12, w.Metrics["cited_by"], 1e-9)
	require.NotNil(t, w.Published)
	assert.Equal(t, 20, w.Published.Day())
	assert.Equal(t, []string{"Machine learning"}, w.Extra["concepts"])
}

func TestOpenAlexScannerErrorStatus(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	sc := NewOpenAlexScanner(server.Client(), nil, "", nil)
	sc.baseURL = server.URL

	_, err := sc.Scan(context.Background(), scanner.Request{Since: testSince})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestCrossrefScannerWithTopVenues(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		filter := r.URL.Query().Get("filter")
		switch {
		case filter == "from-pub-date:2025-05-01":
			_, _ = w.Write([]byte(`{"message":{"items":[
			  {"DOI":"10.2/general","URL":"https://doi.org/10.2/general","type":"journal-article",
			   "title":["General Result"],"container-title":["Science"],
			   "abstract":"<jats:title>Abstract</jats:title><jats:p>Plain &amp; simple.</jats:p>",
			   "is-referenced-by-count":3,
			   "author":[{"given":"Grace","family":"Hopper"},{"name":"ACME Consortium"}],
			   "created":{"date-time":"2025-05-10T08:00:00Z"}},
			  {"DOI":"10.2/untitled","title":[]}
			]}}`))
		case strings.HasSuffix(filter, "container-title:Nature"):
			_, _ = w.Write([]byte(`{"message":{"items":[{"DOI":"10.3/venue","title":["Venue Result"],"container-title":["Nature (London)"]}]}}`))
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer server.Close()

	sc := NewCrossrefScanner(server.Client(), nil, "", nil)
	sc.baseURL = server.URL

	works, err := sc.Scan(context.Background(), scanner.Request{
		Since:  testSince,
		Venues: []string{"Nature", "Broken Venue"},
	})
	require.NoError(t, err)
	require.Len(t, works, 2)

	general := works[0]
	assert.Equal(t, "10.2/general", general.Identifier)
	assert.Equal(t, "Abstract Plain & simple.", general.Abstract)
	assert.Equal(t, []string{"Grace Hopper", "ACME Consortium"}, general.Authors)
	assert.Equal(t, "Science", general.Venue)
	assert.InDelta(t, 3, general.Metrics["is-referenced-by"], 1e-9)

	venue := works[1]
	assert.Equal(t, "Nature", venue.Venue)
	assert.Equal(t, "top_venue", venue.Extra["source"])
}

func TestCrossrefScannerTopVenueLimit(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"message":{"items":[]}}`))
	}))
	defer server.Close()

	sc := NewCrossrefScanner(server.Client(), nil, "", nil)
	sc.baseURL = server.URL

	_, err := sc.Scan(context.Background(), scanner.Request{
		Since:   testSince,
		Venues:  []string{"A", "B", "C"},
		Options: map[string]string{"topVenues": "1"},
	})
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestStripMarkup(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "", stripMarkup("  "))
	assert.Equal(t, "One two", stripMarkup("<p>One</p>\n<p>two</p>"))
	assert.Equal(t, "plain text", stripMarkup("plain   text"))
}

func TestBiorxivScannerPagesAndServers(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/details/medrxiv/2025-05-01/2025-06-01/0":
			_, _ = w.Write([]byte(`{"messages":[{"status":"ok","total":"2"}],"collection":[
			  {"doi":"10.1101/2025.05.01.1","title":"Vaccine Trial","authors":"Doe, J.; Roe, R.;","date":"2025-05-02","category":"infectious diseases","abstract":" Results. ","version":"2"}
			]}`))
		case "/details/medrxiv/2025-05-01/2025-06-01/1":
			_, _ = w.Write([]byte(`{"messages":[{"status":"ok","total":2}],"collection":[
			  {"doi":"10.1101/2025.05.03.2","title":"Cohort Study","authors":"Poe, E.","date":"2025-05-03"}
			]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	sc := NewBiorxivScanner(server.Client(), nil, nil)
	sc.baseURL = server.URL
	sc.now = func() time.Time { return time.Date(2025, time.June, 1, 9, 0, 0, 0, time.UTC) }

	works, err := sc.Scan(context.Background(), scanner.Request{
		Since:   testSince,
		Options: map[string]string{"server": "medRxiv"},
	})
	require.NoError(t, err)
	require.Len(t, works, 2)

	first := works[0]
	assert.Equal(t, "medrxiv", first.Source)
	assert.Equal(t, "medrxiv", first.Venue)
	assert.Equal(t, "10.1101/2025.05.01.1", first.Identifier)
	assert.Equal(t, []string{"Doe, J.", "Roe, R."}, first.Authors)
	assert.Equal(t, "Results.", first.Abstract)
	assert.Equal(t, "https://www.medrxiv.org/content/10.1101/2025.05.01.1v2", first.URL)
	assert.Equal(t, "infectious diseases", first.Extra["category"])
	assert.Equal(t, "Cohort Study", works[1].Title)
}

func TestBiorxivScannerRejectsUnknownServer(t *testing.T) {
	t.Parallel()

	sc := NewBiorxivScanner(nil, nil, nil)
	_, err := sc.Scan(context.Background(), scanner.Request{Options: map[string]string{"server": "chemrxiv"}})
	require.Error(t, err)
}

func TestInvertedAbstract(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "", invertedAbstract(nil))
	assert.Equal(t, "a b a", invertedAbstract(map[string][]int{"a": {0, 2}, "b": {1}}))
	assert.Equal(t, "x y", invertedAbstract(map[string][]int{"x": {0}, "y": {3}}))
}
