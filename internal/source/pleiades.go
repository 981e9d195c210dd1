package source

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/sirupsen/logrus"

	"github.com/ppiankov/feedherald/internal/fetch"
	"github.com/ppiankov/feedherald/internal/history"
	"github.com/ppiankov/feedherald/internal/report"
	"github.com/ppiankov/feedherald/internal/watermark"
)

// Feed entries for names, locations and connections link below their place.
var placeURIRe = regexp.MustCompile(`^(https?://[^/]+/places/\d+)`)

// Pleiades checks the gazetteer's published-content RSS feed with a
// seen-set watermark, then reads each changed place's record to tell new
// places from updated ones and to summarize recent modifications.
type Pleiades struct {
	opts    Options
	fetcher fetch.Fetcher
	log     logrus.FieldLogger
}

func NewPleiades(opts Options, f fetch.Fetcher) (*Pleiades, error) {
	if err := opts.validate(KindPleiades); err != nil {
		return nil, err
	}
	if opts.MaxSeen < watermark.MinSeen {
		opts.MaxSeen = watermark.MinSeen
	}
	return &Pleiades{opts: opts, fetcher: f, log: opts.logger()}, nil
}

func (p *Pleiades) Name() string         { return p.opts.Name }
func (p *Pleiades) Kind() watermark.Kind { return watermark.KindSeenSet }

// placeGroup is the set of changed feed entries that belong to one place.
type placeGroup struct {
	uri     string
	entries []Item
}

func (p *Pleiades) Check(ctx context.Context, wm watermark.Watermark) (Result, error) {
	resp, throttle, err := request(ctx, p.fetcher, fetch.Request{URI: p.opts.URI, BypassCache: true})
	if err != nil {
		return Result{}, err
	}
	if resp == nil {
		return deferred(throttle), nil
	}
	now := nowFunc()

	feed, err := gofeed.NewParser().ParseString(string(resp.Body))
	if err != nil {
		return Result{Throttle: throttle}, fmt.Errorf("parse feed %s: %w", p.opts.URI, err)
	}

	skips := skipLog{log: p.log}
	groups, order := p.changedPlaces(feed, wm.Seen, &skips)

	res := Result{Status: Completed, Throttle: throttle}
	seen := wm.Seen.Clone()
	cutoff := wm.LastChecked
	if p.opts.DayGranularity {
		cutoff = wm.Day()
	}

	for i, uri := range order {
		g := groups[uri]
		place, o, err := p.fetchPlace(ctx, uri)
		res.Throttle = later(res.Throttle, o)
		if err != nil {
			for _, e := range g.entries {
				skips.skip(e.ID, e.Key(), err)
			}
			continue
		}
		if place == nil {
			// Told to wait: leave this and the remaining places unrecorded.
			p.log.WithField("until", o.Until()).Info("place lookups deferred")
			for _, rest := range order[i:] {
				for _, e := range groups[rest].entries {
					skips.hold(e.Key())
				}
			}
			break
		}

		item, r, isNew, err := p.classify(place, uri, cutoff)
		if err != nil {
			for _, e := range g.entries {
				skips.skip(e.ID, e.Key(), err)
			}
			continue
		}
		for _, e := range g.entries {
			seen[e.ID] = e.Key()
		}
		if r == nil {
			continue
		}
		if isNew {
			res.New = append(res.New, item)
		} else {
			res.Updated = append(res.Updated, item)
		}
		res.Reports = append(res.Reports, r)
	}

	// Places left unrecorded are compared against the next cutoff when they
	// are retried, so it must not pass the day of their feed entries.
	mark := now
	if !skips.earliest.IsZero() && skips.earliest.Before(mark) {
		mark = watermark.TruncateDay(skips.earliest)
	}
	next := wm.Clone()
	next.Seen = seen.Prune(p.opts.MaxSeen)
	res.Next = next.Advance(mark)
	res.Skipped = skips.count
	return res, nil
}

// changedPlaces selects entries the seen-set has not recorded at their
// current modification time and groups them by place, in feed order.
func (p *Pleiades) changedPlaces(feed *gofeed.Feed, seen watermark.SeenSet, skips *skipLog) (map[string]*placeGroup, []string) {
	groups := make(map[string]*placeGroup)
	var order []string
	for _, entry := range feed.Items {
		item, err := entryItem(entry)
		if err != nil {
			skips.skip(item.ID, time.Time{}, err)
			continue
		}
		if !seen.Changed(item.ID, item.Key()) {
			continue
		}
		m := placeURIRe.FindStringSubmatch(item.Link)
		if m == nil {
			m = placeURIRe.FindStringSubmatch(item.ID)
		}
		if m == nil {
			skips.skip(item.ID, time.Time{}, fmt.Errorf("no place uri in %q", item.Link))
			continue
		}
		uri := m[1]
		g, ok := groups[uri]
		if !ok {
			g = &placeGroup{uri: uri}
			groups[uri] = g
			order = append(order, uri)
		}
		g.entries = append(g.entries, item)
	}
	return groups, order
}

// fetchPlace reads a place's JSON record. A nil place with a nil error means
// the source asked us to wait.
func (p *Pleiades) fetchPlace(ctx context.Context, uri string) (*history.Place, fetch.Outcome, error) {
	resp, o, err := request(ctx, p.fetcher, fetch.Request{URI: uri + "/json"})
	if err != nil || resp == nil {
		return nil, o, err
	}
	place, err := history.DecodePlace(resp.Body)
	if err != nil {
		return nil, o, err
	}
	return place, o, nil
}

// classify decides whether a place is new or updated since cutoff and
// builds its report. A nil report means neither applies.
func (p *Pleiades) classify(place *history.Place, uri string, cutoff time.Time) (Item, *report.Report, bool, error) {
	published, hasFirst := place.FirstPublished()
	modified, hasLast := place.LastModified()
	first, last := published, modified
	if p.opts.DayGranularity {
		first = watermark.TruncateDay(first)
		last = watermark.TruncateDay(last)
	}
	item := Item{ID: uri, Title: place.Title, Link: uri, Published: published, Modified: modified}

	var isNew bool
	switch {
	case hasFirst && !first.Before(cutoff):
		isNew = true
	case hasLast && !last.Before(cutoff):
		isNew = false
	default:
		return item, nil, false, nil
	}

	people := place.People()
	for id, name := range p.opts.People {
		people[id] = name
	}

	verb, when := "Updated place", item.Modified
	if isNew {
		verb, when = "New place", item.Published
	}
	if when.IsZero() {
		when = item.Key()
	}

	r, err := report.New(p.opts.Name, uri, verb+": "+place.Title)
	if err != nil {
		return item, nil, false, err
	}
	desc := report.Norm(place.Description)
	r.SetSummary(report.Lead(desc, report.MaxSummary))

	var body []string
	if desc != "" {
		body = append(body, desc)
	}
	if types := placeTypes(place); types != "" {
		body = append(body, "Place type: "+types+".")
	}
	if !isNew {
		if s := history.Summarize(place, cutoff, people); s != "" {
			body = append(body, s+".")
		}
	} else if len(place.Creators) > 0 {
		var names []string
		for _, c := range place.Creators {
			if c.Name != "" {
				names = append(names, c.Name)
			}
		}
		if len(names) > 0 {
			body = append(body, "Created by "+history.CommaList(names)+".")
		}
	}
	body = append(body, "<"+uri+">")

	if err := r.SetMarkdown(strings.Join(body, "\n\n")); err != nil {
		return item, nil, false, err
	}
	if err := r.SetWhen(when); err != nil {
		return item, nil, false, err
	}
	r.AddTags(p.opts.Tags...)
	return item, r, isNew, nil
}

func placeTypes(p *history.Place) string {
	types := make([]string, 0, len(p.PlaceTypes))
	for _, t := range p.PlaceTypes {
		if t = strings.TrimSpace(t); t != "" {
			types = append(types, t)
		}
	}
	sort.Strings(types)
	return history.CommaList(types)
}
