package parser

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"

	"PaperWatcher/internal/scanner"
)

func TestBuildPageURL(t *testing.T) {
	t.Parallel()

	base := "https://export.arxiv.org/list/cs.AI/pastweek"
	u, err := buildPageURL(base, 200, 100)
	if err != nil {
		t.Fatalf("buildPageURL returned error: %v", err)
	}

	parsed, err := url.Parse(u)
	if err != nil {
		t.Fatalf("parse result: %v", err)
	}

	if parsed.Scheme != "https" || parsed.Host != "export.arxiv.org" {
		t.Fatalf("unexpected host: %s", parsed.Host)
	}

	q := parsed.Query()
	if q.Get("skip") != "200" {
		t.Fatalf("expected skip=200, got %s", q.Get("skip"))
	}
	if q.Get("show") != "100" {
		t.Fatalf("expected show=100, got %s", q.Get("show"))
	}
}

func TestParseEntry(t *testing.T) {
	t.Parallel()

	html := `
	<dl>
	  <dt>
	    <span class="list-identifier"><a href="/abs/1234.56789">arXiv:1234.56789</a></span>
	  </dt>
	  <dd>
	    <div class="list-date">Date: 8 Nov 2025</div>
	    <div class="list-title mathjax">Title: Sample Title</div>
	    <div class="list-authors"><a href="/a/doe_j">Jane Doe</a>, <a href="/a/roe_r">Richard Roe</a></div>
	    <p class="mathjax">Abstract: Sample abstract text.</p>
	  </dd>
	</dl>`

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		t.Fatalf("new document: %v", err)
	}

	dt := doc.Find("dt").First()
	dd := doc.Find("dd").First()

	work, err := parseEntry(dt, dd, "cs.AI", nil)
	if err != nil {
		t.Fatalf("parseEntry error: %v", err)
	}

	if work.Identifier != "1234.56789" {
		t.Fatalf("unexpected id: %s", work.Identifier)
	}
	if work.Title != "Sample Title" {
		t.Fatalf("unexpected title: %s", work.Title)
	}
	if work.Abstract != "Sample abstract text." {
		t.Fatalf("unexpected abstract: %s", work.Abstract)
	}
	if work.Source != "arxiv" || work.Venue != "arXiv" {
		t.Fatalf("unexpected source/venue: %s/%s", work.Source, work.Venue)
	}
	if work.URL != "https://arxiv.org/abs/1234.56789" {
		t.Fatalf("unexpected url: %s", work.URL)
	}
	if len(work.Authors) != 2 || work.Authors[1] != "Richard Roe" {
		t.Fatalf("unexpected authors: %v", work.Authors)
	}
	if work.Extra["category"] != "cs.AI" {
		t.Fatalf("unexpected category: %v", work.Extra["category"])
	}

	wantDate := time.Date(2025, time.November, 8, 0, 0, 0, 0, time.UTC)
	if work.Published == nil || !work.Published.Equal(wantDate) {
		t.Fatalf("unexpected published date: %v", work.Published)
	}
}

func TestParseEntryFallsBackToHeadingDate(t *testing.T) {
	t.Parallel()

	html := `<dl><dt><a href="/abs/2501.1">arXiv:2501.1</a></dt>
	<dd><div class="list-title mathjax">Title: Undated</div></dd></dl>`

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		t.Fatalf("new document: %v", err)
	}

	fallback := listingDate("Fri, 7 Nov 2025 (showing 2 of 2 entries)")
	work, err := parseEntry(doc.Find("dt").First(), doc.Find("dd").First(), "", fallback)
	if err != nil {
		t.Fatalf("parseEntry error: %v", err)
	}
	if work.Published == nil || work.Published.Day() != 7 {
		t.Fatalf("expected heading date, got %v", work.Published)
	}
}

func TestParseEntryRejectsMissingTitle(t *testing.T) {
	t.Parallel()

	html := `<dl><dt><a href="/abs/2501.1">arXiv:2501.1</a></dt><dd></dd></dl>`
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		t.Fatalf("new document: %v", err)
	}
	if _, err := parseEntry(doc.Find("dt").First(), doc.Find("dd").First(), "", nil); err == nil {
		t.Fatal("expected error for entry without title")
	}
}

func TestArxivScannerScan(t *testing.T) {
	t.Parallel()

	since := time.Date(2025, time.November, 8, 0, 0, 0, 0, time.UTC)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`
		<h3>Sat, 8 Nov 2025 (showing 1 of 1 entries)</h3>
		<dl>
		  <dt>
		    <span class="list-identifier"><a href="/abs/2501.00001">arXiv:2501.00001</a></span>
		  </dt>
		  <dd>
		    <div class="list-title mathjax">Title: Fresh Article</div>
		    <p class="mathjax">Abstract: brand new.</p>
		  </dd>
		</dl>
		<h3>Fri, 7 Nov 2025 (showing 1 of 1 entries)</h3>
		<dl>
		  <dt>
		    <span class="list-identifier"><a href="/abs/2501.00002">arXiv:2501.00002</a></span>
		  </dt>
		  <dd>
		    <div class="list-title mathjax">Title: Old Article</div>
		    <p class="mathjax">Abstract: older.</p>
		  </dd>
		</dl>`))
	}))
	defer server.Close()

	client := server.Client()
	sc := NewArxivScanner(client, nil)
	sc.pageSize = 10

	req := scanner.Request{
		Since:    since,
		SiteName: "arxiv",
		Categories: []scanner.Category{
			{Name: "cs.AI", URL: server.URL + "/list/cs.AI"},
		},
	}

	ctx := context.Background()
	works, err := sc.Scan(ctx, req)
	if err != nil {
		t.Fatalf("Scan error: %v", err)
	}

	if len(works) != 1 {
		t.Fatalf("expected 1 work, got %d", len(works))
	}

	if works[0].Identifier != "2501.00001" {
		t.Fatalf("unexpected work id: %s", works[0].Identifier)
	}
	if works[0].Abstract != "brand new." {
		t.Fatalf("unexpected abstract: %s", works[0].Abstract)
	}
}

func TestArxivScannerRequiresCategories(t *testing.T) {
	t.Parallel()

	sc := NewArxivScanner(nil, nil)
	if _, err := sc.Scan(context.Background(), scanner.Request{SiteName: "arxiv"}); err == nil {
		t.Fatal("expected error without categories")
	}
}
