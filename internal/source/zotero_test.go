package source

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/ppiankov/feedherald/internal/fetch"
	"github.com/ppiankov/feedherald/internal/watermark"
)

const zoteroBase = "https://api.zotero.org/groups/2533"

func zoteroRecord(key, itemType, title, added string) string {
	return fmt.Sprintf(`{
  "key": %q,
  "links": {"alternate": {"href": "https://www.zotero.org/groups/2533/items/%s"}},
  "meta": {"creatorSummary": "Elliott and Pleiades Project"},
  "data": {
    "itemType": %q,
    "title": %q,
    "creators": [
      {"creatorType": "author", "firstName": "Tom", "lastName": "Elliott"},
      {"creatorType": "author", "name": "Pleiades Project"}
    ],
    "date": "2024",
    "dateAdded": %q,
    "abstractNote": "A gazetteer of ancient places. It grows daily.",
    "publicationTitle": "Journal of Maps"
  }
}`, key, key, itemType, title, added)
}

func page(records ...string) string {
	return "[" + strings.Join(records, ",") + "]"
}

type zoteroServer struct {
	probe *fetch.Response
	pages map[string]*fetch.Response // by start offset
}

func (s *zoteroServer) fetcher(t *testing.T) *fakeFetcher {
	t.Helper()
	return &fakeFetcher{handle: func(req fetch.Request) (*fetch.Response, error) {
		u, err := url.Parse(req.URI)
		if err != nil {
			t.Fatalf("bad request uri %q: %v", req.URI, err)
		}
		if !strings.HasPrefix(req.URI, zoteroBase+"/items/top") {
			return status(http.StatusNotFound), nil
		}
		q := u.Query()
		if q.Get("format") == "keys" {
			return s.probe, nil
		}
		if resp, ok := s.pages[q.Get("start")]; ok {
			return resp, nil
		}
		return ok("[]"), nil
	}}
}

func versionResp(version string) *fetch.Response {
	r := ok("ABCD1234")
	r.Header.Set("Last-Modified-Version", version)
	return r
}

func zoteroMark(version string, t time.Time) watermark.Watermark {
	wm := watermark.New("zotero", watermark.KindVersion).Advance(t)
	wm.LastVersion = version
	return wm
}

func newTestZotero(t *testing.T, f fetch.Fetcher, key string) *Zotero {
	t.Helper()
	opts := testOptions("zotero", zoteroBase)
	opts.APIKey = key
	z, err := NewZotero(opts, f)
	if err != nil {
		t.Fatalf("NewZotero: %v", err)
	}
	return z
}

var zoteroCutoff = time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC)

func TestZoteroReportsNewRecords(t *testing.T) {
	fixClock(t, testNow)
	srv := &zoteroServer{
		probe: versionResp("105"),
		pages: map[string]*fetch.Response{
			"0": ok(page(
				zoteroRecord("BOOK1", "journalArticle", "Ancient Places", "2024-12-16T10:00:00Z"),
				zoteroRecord("NOTE1", "note", "", "2024-12-18T10:00:00Z"),
				zoteroRecord("OLD1", "book", "Earlier Work", "2024-11-01T10:00:00Z"),
			)),
		},
	}
	f := srv.fetcher(t)
	z := newTestZotero(t, f, "")

	res, err := z.Check(context.Background(), zoteroMark("100", zoteroCutoff))
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if res.Status != Completed {
		t.Fatalf("status = %v, want completed", res.Status)
	}
	if len(res.Reports) != 1 {
		t.Fatalf("reports = %d, want 1", len(res.Reports))
	}

	r := res.Reports[0]
	if r.Title() != "New bibliography: Ancient Places" {
		t.Errorf("title = %q", r.Title())
	}
	if r.Key() != "BOOK1" {
		t.Errorf("key = %q", r.Key())
	}
	if r.Summary() != "A gazetteer of ancient places." {
		t.Errorf("summary = %q", r.Summary())
	}
	wantCite := "Elliott and Pleiades Project (2024). *Ancient Places*. Journal of Maps."
	if !strings.HasPrefix(r.Markdown(), wantCite) {
		t.Errorf("markdown = %q, want prefix %q", r.Markdown(), wantCite)
	}
	if !strings.Contains(r.Markdown(), "<https://www.zotero.org/groups/2533/items/BOOK1>") {
		t.Errorf("markdown missing link: %q", r.Markdown())
	}

	if res.Next.LastVersion != "105" {
		t.Errorf("version = %q, want 105", res.Next.LastVersion)
	}
	// The note is not reported but still moves the mark.
	if want := time.Date(2024, 12, 18, 10, 0, 0, 0, time.UTC); !res.Next.LastChecked.Equal(want) {
		t.Errorf("next checked = %v, want %v", res.Next.LastChecked, want)
	}
}

func TestZoteroUnchangedLibrary(t *testing.T) {
	fixClock(t, testNow)
	srv := &zoteroServer{probe: status(http.StatusNotModified)}
	f := srv.fetcher(t)
	z := newTestZotero(t, f, "")

	wm := zoteroMark("100", zoteroCutoff)
	res, err := z.Check(context.Background(), wm)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if res.Status != Completed || len(res.Reports) != 0 {
		t.Errorf("status = %v reports = %d, want completed and none", res.Status, len(res.Reports))
	}
	if !res.Next.Equal(wm) {
		t.Errorf("next = %+v, want unchanged %+v", res.Next, wm)
	}
	if len(f.requests) != 1 {
		t.Errorf("requests = %d, want only the probe", len(f.requests))
	}
	if got := f.requests[0].Header.Get("If-Modified-Since-Version"); got != "100" {
		t.Errorf("If-Modified-Since-Version = %q, want 100", got)
	}
}

func TestZoteroSkipHoldsVersion(t *testing.T) {
	fixClock(t, testNow)
	srv := &zoteroServer{
		probe: versionResp("105"),
		pages: map[string]*fetch.Response{
			"0": ok(page(
				zoteroRecord("BOOK1", "book", "Ancient Places", "2024-12-16T10:00:00Z"),
				zoteroRecord("BAD1", "book", "", "2024-12-10T10:00:00Z"),
			)),
		},
	}
	z := newTestZotero(t, srv.fetcher(t), "")

	res, err := z.Check(context.Background(), zoteroMark("100", zoteroCutoff))
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if res.Skipped != 1 || len(res.Reports) != 1 {
		t.Errorf("skipped = %d reports = %d, want 1 and 1", res.Skipped, len(res.Reports))
	}
	if res.Next.LastVersion != "100" {
		t.Errorf("version = %q, want held at 100", res.Next.LastVersion)
	}
	want := time.Date(2024, 12, 10, 10, 0, 0, 0, time.UTC).Add(-time.Nanosecond)
	if !res.Next.LastChecked.Equal(want) {
		t.Errorf("next checked = %v, want just before the skipped record %v", res.Next.LastChecked, want)
	}
}

func TestZoteroPaginates(t *testing.T) {
	fixClock(t, testNow)
	base := time.Date(2024, 12, 18, 0, 0, 0, 0, time.UTC)
	var first []string
	for i := 0; i < zoteroPageSize; i++ {
		added := base.Add(-time.Duration(i) * time.Minute).Format(time.RFC3339)
		first = append(first, zoteroRecord(fmt.Sprintf("K%03d", i), "book", fmt.Sprintf("Work %d", i), added))
	}
	srv := &zoteroServer{
		probe: versionResp("200"),
		pages: map[string]*fetch.Response{
			"0":   ok(page(first...)),
			"100": ok(page(zoteroRecord("LAST", "book", "Last Work", "2024-12-02T00:00:00Z"))),
		},
	}
	f := srv.fetcher(t)
	z := newTestZotero(t, f, "")

	res, err := z.Check(context.Background(), zoteroMark("150", zoteroCutoff))
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if len(res.Reports) != zoteroPageSize+1 {
		t.Errorf("reports = %d, want %d", len(res.Reports), zoteroPageSize+1)
	}
	if len(f.requests) != 3 {
		t.Errorf("requests = %d, want probe and two pages", len(f.requests))
	}
	u, _ := url.Parse(f.requests[1].URI)
	q := u.Query()
	if q.Get("since") != "150" || q.Get("sort") != "dateAdded" || q.Get("direction") != "desc" {
		t.Errorf("delta query = %v", q)
	}
}

func TestZoteroThrottle(t *testing.T) {
	fixClock(t, testNow)
	tests := []struct {
		name string
		srv  *zoteroServer
	}{
		{"probe", &zoteroServer{probe: status(http.StatusTooManyRequests, "Retry-After", "60")}},
		{"delta", &zoteroServer{
			probe: versionResp("105"),
			pages: map[string]*fetch.Response{"0": status(http.StatusTooManyRequests, "Retry-After", "60")},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			z := newTestZotero(t, tt.srv.fetcher(t), "")
			res, err := z.Check(context.Background(), zoteroMark("100", zoteroCutoff))
			if err != nil {
				t.Fatalf("Check: %v", err)
			}
			if res.Status != Deferred {
				t.Errorf("status = %v, want deferred", res.Status)
			}
			if want := testNow.Add(time.Minute); !res.Throttle.Until().Equal(want) {
				t.Errorf("until = %v, want %v", res.Throttle.Until(), want)
			}
		})
	}
}

func TestZoteroBackoffOnEmptyDelta(t *testing.T) {
	fixClock(t, testNow)
	empty := ok("[]")
	empty.Header.Set("Backoff", "30")
	srv := &zoteroServer{probe: versionResp("105"), pages: map[string]*fetch.Response{"0": empty}}
	z := newTestZotero(t, srv.fetcher(t), "")

	res, err := z.Check(context.Background(), zoteroMark("100", zoteroCutoff))
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if res.Status != Completed {
		t.Errorf("status = %v, want completed", res.Status)
	}
	if res.Next.LastVersion != "105" {
		t.Errorf("version = %q, want 105", res.Next.LastVersion)
	}
	if !res.Throttle.Waiting() {
		t.Error("expected backoff to be carried")
	}
}

func TestZoteroProbeWithoutVersionHeader(t *testing.T) {
	fixClock(t, testNow)
	srv := &zoteroServer{probe: ok("ABCD1234")}
	z := newTestZotero(t, srv.fetcher(t), "")
	if _, err := z.Check(context.Background(), zoteroMark("100", zoteroCutoff)); err == nil {
		t.Fatal("expected error for missing Last-Modified-Version")
	}
}

func TestZoteroHeaders(t *testing.T) {
	fixClock(t, testNow)
	srv := &zoteroServer{probe: status(http.StatusNotModified)}
	f := srv.fetcher(t)
	z := newTestZotero(t, f, "sekret")

	if _, err := z.Check(context.Background(), zoteroMark("100", zoteroCutoff)); err != nil {
		t.Fatalf("Check: %v", err)
	}
	h := f.requests[0].Header
	if h.Get("Zotero-API-Version") != "3" {
		t.Errorf("Zotero-API-Version = %q", h.Get("Zotero-API-Version"))
	}
	if h.Get("Zotero-API-Key") != "sekret" {
		t.Errorf("Zotero-API-Key = %q", h.Get("Zotero-API-Key"))
	}
	if !f.requests[0].BypassCache {
		t.Error("probe should bypass the cache")
	}
}
