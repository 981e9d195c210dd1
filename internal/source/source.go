// Package source checks upstream feeds and APIs against a persisted
// watermark and turns new or changed items into reports.
package source

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ppiankov/feedherald/internal/fetch"
	"github.com/ppiankov/feedherald/internal/report"
	"github.com/ppiankov/feedherald/internal/watermark"
)

// Source kinds accepted in configuration.
const (
	KindAtom     = "atom"
	KindPleiades = "pleiades"
	KindZotero   = "zotero"
)

// Status says whether a check ran to completion.
type Status int

const (
	// Completed checks carry a watermark to persist.
	Completed Status = iota
	// Deferred checks were told to wait; the watermark must not change.
	Deferred
)

func (s Status) String() string {
	if s == Deferred {
		return "deferred"
	}
	return "completed"
}

// Item is one upstream entry or record, reduced to what classification
// needs.
type Item struct {
	ID        string
	Title     string
	Link      string
	Published time.Time
	Modified  time.Time
	Content   string // HTML or plain text
	Authors   []string
}

// Key is the comparison instant: the later of Published and Modified.
func (i Item) Key() time.Time {
	return watermark.Latest(i.Published, i.Modified)
}

// Result is the outcome of one check.
type Result struct {
	Status   Status
	New      []Item
	Updated  []Item
	Reports  []*report.Report
	Next     watermark.Watermark
	Throttle fetch.Outcome
	Skipped  int
}

func deferred(o fetch.Outcome) Result {
	return Result{Status: Deferred, Throttle: o}
}

// Adapter checks one upstream source. Check must not mutate wm; the next
// watermark is returned in the result.
type Adapter interface {
	Name() string
	Kind() watermark.Kind
	Check(ctx context.Context, wm watermark.Watermark) (Result, error)
}

// Options configures any adapter. Fields a kind does not use are ignored.
type Options struct {
	Name           string
	URI            string
	Tags           []string
	MaxSeen        int               // pleiades
	DayGranularity bool              // pleiades
	People         map[string]string // pleiades
	APIKey         string            // zotero
	Log            logrus.FieldLogger
}

func (o Options) validate(kind string) error {
	if strings.TrimSpace(o.Name) == "" {
		return fmt.Errorf("%s source: name is required", kind)
	}
	u, err := url.Parse(o.URI)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%s source %s: invalid uri %q", kind, o.Name, o.URI)
	}
	return nil
}

func (o Options) logger() logrus.FieldLogger {
	log := o.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	return log.WithField("source", o.Name)
}

// New builds the adapter for kind.
func New(kind string, opts Options, f fetch.Fetcher) (Adapter, error) {
	if f == nil {
		return nil, errors.New("source: fetcher is required")
	}
	switch kind {
	case KindAtom:
		return NewAtom(opts, f)
	case KindPleiades:
		return NewPleiades(opts, f)
	case KindZotero:
		return NewZotero(opts, f)
	}
	return nil, fmt.Errorf("source %s: unknown kind %q", opts.Name, kind)
}

// nowFunc is overridable in tests.
var nowFunc = func() time.Time { return time.Now().UTC() }

// request fetches req and sorts the response into three cases: a usable
// response, a deferral (nil response, waiting outcome), or an error. The
// returned outcome also carries wait hints sent alongside a usable response.
func request(ctx context.Context, f fetch.Fetcher, req fetch.Request) (*fetch.Response, fetch.Outcome, error) {
	resp, err := f.Fetch(ctx, req)
	if err != nil {
		return nil, fetch.Ready, err
	}
	o := resp.Throttle(nowFunc())
	if resp.StatusCode == 429 || (resp.StatusCode >= 500 && o.Waiting()) {
		return nil, o, nil
	}
	if err := resp.Err(); err != nil {
		return nil, o, fmt.Errorf("%s: %w", req.URI, err)
	}
	return resp, o, nil
}

func later(a, b fetch.Outcome) fetch.Outcome {
	if b.Until().After(a.Until()) {
		return b
	}
	return a
}

// skipLog tracks malformed items and the earliest key among them.
type skipLog struct {
	log      logrus.FieldLogger
	count    int
	earliest time.Time
}

func (s *skipLog) skip(id string, key time.Time, reason error) {
	s.count++
	s.hold(key)
	s.log.WithFields(logrus.Fields{"guid": id, "reason": reason}).Warn("skipping malformed item")
}

// hold records key as left for a later check without counting a skip.
func (s *skipLog) hold(key time.Time) {
	if !key.IsZero() && (s.earliest.IsZero() || key.Before(s.earliest)) {
		s.earliest = key
	}
}
