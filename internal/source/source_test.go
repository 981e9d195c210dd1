package source

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"

	"github.com/ppiankov/feedherald/internal/fetch"
)

var testNow = time.Date(2024, 12, 19, 12, 0, 0, 0, time.UTC)

func fixClock(t *testing.T, now time.Time) {
	t.Helper()
	orig := nowFunc
	nowFunc = func() time.Time { return now }
	t.Cleanup(func() { nowFunc = orig })
}

// fakeFetcher answers requests from a handler and records them.
type fakeFetcher struct {
	mu       sync.Mutex
	handle   func(req fetch.Request) (*fetch.Response, error)
	requests []fetch.Request
}

func (f *fakeFetcher) Fetch(_ context.Context, req fetch.Request) (*fetch.Response, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	return f.handle(req)
}

func (f *fakeFetcher) count(prefix string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.requests {
		if strings.HasPrefix(r.URI, prefix) {
			n++
		}
	}
	return n
}

func ok(body string) *fetch.Response {
	return &fetch.Response{StatusCode: http.StatusOK, Body: []byte(body), Header: http.Header{}}
}

func status(code int, hdr ...string) *fetch.Response {
	h := http.Header{}
	for i := 0; i+1 < len(hdr); i += 2 {
		h.Set(hdr[i], hdr[i+1])
	}
	return &fetch.Response{StatusCode: code, Header: h}
}

func testOptions(name, uri string) Options {
	log, _ := test.NewNullLogger()
	return Options{Name: name, URI: uri, Tags: []string{"test"}, Log: log}
}

func TestNewFactory(t *testing.T) {
	f := &fakeFetcher{handle: func(fetch.Request) (*fetch.Response, error) { return ok(""), nil }}
	tests := []struct {
		kind    string
		uri     string
		wantErr bool
	}{
		{KindAtom, "https://example.org/feed.atom", false},
		{KindPleiades, "https://pleiades.stoa.org/indexes/published/RSS", false},
		{KindZotero, "https://api.zotero.org/groups/2533", false},
		{"gopher", "https://example.org", true},
		{KindAtom, "ftp://example.org/feed", true},
		{KindAtom, "not a uri", true},
	}
	for _, tt := range tests {
		t.Run(tt.kind+" "+tt.uri, func(t *testing.T) {
			a, err := New(tt.kind, testOptions("src", tt.uri), f)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if a.Name() != "src" {
				t.Errorf("name = %q, want src", a.Name())
			}
		})
	}

	if _, err := New(KindAtom, testOptions("", "https://example.org/feed"), f); err == nil {
		t.Error("expected error for blank name")
	}
	if _, err := New(KindAtom, testOptions("src", "https://example.org/feed"), nil); err == nil {
		t.Error("expected error for nil fetcher")
	}
}

func TestRequestClassification(t *testing.T) {
	fixClock(t, testNow)
	tests := []struct {
		name        string
		resp        *fetch.Response
		fetchErr    error
		wantResp    bool
		wantWaiting bool
		wantErr     bool
	}{
		{"ok", ok("x"), nil, true, false, false},
		{"not modified", status(http.StatusNotModified), nil, true, false, false},
		{"ok with backoff", status(http.StatusOK, "Backoff", "30"), nil, true, true, false},
		{"too many requests", status(http.StatusTooManyRequests), nil, false, true, false},
		{"unavailable with retry-after", status(http.StatusServiceUnavailable, "Retry-After", "60"), nil, false, true, false},
		{"unavailable bare", status(http.StatusServiceUnavailable), nil, false, false, true},
		{"not found", status(http.StatusNotFound), nil, false, false, true},
		{"transport error", nil, errors.New("dial"), false, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeFetcher{handle: func(fetch.Request) (*fetch.Response, error) { return tt.resp, tt.fetchErr }}
			resp, o, err := request(context.Background(), f, fetch.Request{URI: "https://example.org"})
			if (resp != nil) != tt.wantResp {
				t.Errorf("response = %v, want present=%v", resp, tt.wantResp)
			}
			if o.Waiting() != tt.wantWaiting {
				t.Errorf("waiting = %v, want %v", o.Waiting(), tt.wantWaiting)
			}
			if (err != nil) != tt.wantErr {
				t.Errorf("err = %v, want error=%v", err, tt.wantErr)
			}
		})
	}
}

func TestParagraphs(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"empty", "  ", nil},
		{"plain", "just text", []string{"just text"}},
		{"paragraphs", "<p>One  two.</p><p>Three.</p>", []string{"One two.", "Three."}},
		{"script dropped", "<script>x()</script><p>Kept.</p>", []string{"Kept."}},
		{"nested list", "<ul><li>a</li><li>b</li></ul>", []string{"a", "b"}},
		{"blockquote wrapping p", "<blockquote><p>Quoted.</p></blockquote>", []string{"Quoted."}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := paragraphs(tt.in)
			if len(got) != len(tt.want) {
				t.Fatalf("paragraphs = %q, want %q", got, tt.want)
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Errorf("paragraphs[%d] = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}
