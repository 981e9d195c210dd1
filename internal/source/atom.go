package source

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/sirupsen/logrus"

	"github.com/ppiankov/feedherald/internal/fetch"
	"github.com/ppiankov/feedherald/internal/history"
	"github.com/ppiankov/feedherald/internal/report"
	"github.com/ppiankov/feedherald/internal/watermark"
)

var (
	errNoID   = errors.New("entry has no id or link")
	errNoDate = errors.New("entry has no published or updated date")
)

// Atom checks a blog feed by timestamp: an entry qualifies when its later
// of published/updated is at or after the watermark.
type Atom struct {
	opts    Options
	fetcher fetch.Fetcher
	log     logrus.FieldLogger
}

func NewAtom(opts Options, f fetch.Fetcher) (*Atom, error) {
	if err := opts.validate(KindAtom); err != nil {
		return nil, err
	}
	return &Atom{opts: opts, fetcher: f, log: opts.logger()}, nil
}

func (a *Atom) Name() string         { return a.opts.Name }
func (a *Atom) Kind() watermark.Kind { return watermark.KindTimestamp }

func (a *Atom) Check(ctx context.Context, wm watermark.Watermark) (Result, error) {
	resp, throttle, err := request(ctx, a.fetcher, fetch.Request{URI: a.opts.URI, BypassCache: true})
	if err != nil {
		return Result{}, err
	}
	if resp == nil {
		return deferred(throttle), nil
	}
	// The fetch-completion instant, taken once before classification.
	now := nowFunc()

	feed, err := gofeed.NewParser().ParseString(string(resp.Body))
	if err != nil {
		return Result{Throttle: throttle}, fmt.Errorf("parse feed %s: %w", a.opts.URI, err)
	}

	res := Result{Status: Completed, Throttle: throttle}
	skips := skipLog{log: a.log}
	maxSeen := time.Time{}
	for _, entry := range feed.Items {
		item, err := entryItem(entry)
		key := item.Key()
		if !key.IsZero() && key.Before(wm.LastChecked) {
			continue
		}
		if err != nil {
			skips.skip(item.ID, key, err)
			continue
		}

		r, err := a.buildReport(item, wm.LastChecked)
		if err != nil {
			skips.skip(item.ID, key, err)
			continue
		}
		if item.Published.IsZero() || !item.Published.Before(wm.LastChecked) {
			res.New = append(res.New, item)
		} else {
			res.Updated = append(res.Updated, item)
		}
		res.Reports = append(res.Reports, r)
		maxSeen = watermark.Latest(maxSeen, key)
	}

	next := watermark.Latest(now, maxSeen)
	if !skips.earliest.IsZero() && skips.earliest.Before(next) {
		next = skips.earliest
	}
	res.Next = wm.Clone().Advance(next)
	res.Skipped = skips.count
	return res, nil
}

func (a *Atom) buildReport(item Item, mark time.Time) (*report.Report, error) {
	verb := "New post"
	if !item.Published.IsZero() && item.Published.Before(mark) {
		verb = "Updated post"
	}
	if strings.TrimSpace(item.Title) == "" {
		return nil, errors.New("entry has no title")
	}
	r, err := report.New(a.opts.Name, item.ID, verb+": "+item.Title)
	if err != nil {
		return nil, err
	}

	paras := paragraphs(item.Content)
	lead := ""
	if len(paras) > 0 {
		lead = report.Lead(paras[0], report.MaxSummary)
	}
	r.SetSummary(lead)

	var body []string
	if lead != "" {
		body = append(body, lead)
	}
	if len(item.Authors) > 0 {
		body = append(body, "By "+history.CommaList(item.Authors)+".")
	}
	if item.Link != "" {
		body = append(body, "<"+item.Link+">")
	}
	if len(body) == 0 {
		body = append(body, item.Title)
	}
	if err := r.SetMarkdown(strings.Join(body, "\n\n")); err != nil {
		return nil, err
	}
	if err := r.SetWhen(item.Key()); err != nil {
		return nil, err
	}
	r.AddTags(a.opts.Tags...)
	return r, nil
}

// entryItem reduces a feed entry. The returned item carries whatever dates
// were found even when it is rejected, so skips can be ordered.
func entryItem(e *gofeed.Item) (Item, error) {
	item := Item{
		ID:    e.GUID,
		Title: report.Norm(e.Title),
		Link:  strings.TrimSpace(e.Link),
	}
	if item.ID == "" {
		item.ID = item.Link
	}
	if e.PublishedParsed != nil {
		item.Published = e.PublishedParsed.UTC()
	}
	if e.UpdatedParsed != nil {
		item.Modified = e.UpdatedParsed.UTC()
	}
	item.Content = e.Content
	if item.Content == "" {
		item.Content = e.Description
	}
	for _, p := range e.Authors {
		if p != nil && strings.TrimSpace(p.Name) != "" {
			item.Authors = append(item.Authors, report.Norm(p.Name))
		}
	}

	if item.ID == "" {
		return item, errNoID
	}
	if item.Key().IsZero() {
		return item, errNoDate
	}
	return item, nil
}
