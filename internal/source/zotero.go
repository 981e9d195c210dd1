package source

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

	"github.com/sirupsen/logrus"

	"github.com/ppiankov/feedherald/internal/fetch"
	"github.com/ppiankov/feedherald/internal/history"
	"github.com/ppiankov/feedherald/internal/report"
	"github.com/ppiankov/feedherald/internal/watermark"
)

const (
	zoteroAPIVersion = "3"
	zoteroPageSize   = 100
	zoteroMaxPages   = 50
)

// Zotero checks a group or user library through the Zotero web API. The
// library version is the watermark token; a conditional probe costs one
// tiny request when nothing changed.
type Zotero struct {
	opts    Options
	base    string
	header  http.Header
	fetcher fetch.Fetcher
	log     logrus.FieldLogger
}

// NewZotero expects opts.URI to be a library root such as
// https://api.zotero.org/groups/2533.
func NewZotero(opts Options, f fetch.Fetcher) (*Zotero, error) {
	if err := opts.validate(KindZotero); err != nil {
		return nil, err
	}
	header := http.Header{}
	header.Set("Zotero-API-Version", zoteroAPIVersion)
	if opts.APIKey != "" {
		header.Set("Zotero-API-Key", opts.APIKey)
	}
	return &Zotero{
		opts:    opts,
		base:    strings.TrimRight(opts.URI, "/"),
		header:  header,
		fetcher: f,
		log:     opts.logger(),
	}, nil
}

func (z *Zotero) Name() string         { return z.opts.Name }
func (z *Zotero) Kind() watermark.Kind { return watermark.KindVersion }

// zoteroItem is the part of an API item record used for reports.
type zoteroItem struct {
	Key   string `json:"key"`
	Links struct {
		Alternate struct {
			Href string `json:"href"`
		} `json:"alternate"`
	} `json:"links"`
	Meta struct {
		CreatorSummary string `json:"creatorSummary"`
		ParsedDate     string `json:"parsedDate"`
	} `json:"meta"`
	Data struct {
		ItemType         string          `json:"itemType"`
		Title            string          `json:"title"`
		Creators         []zoteroCreator `json:"creators"`
		Date             string          `json:"date"`
		DateAdded        string          `json:"dateAdded"`
		AbstractNote     string          `json:"abstractNote"`
		PublicationTitle string          `json:"publicationTitle"`
		URL              string          `json:"url"`
	} `json:"data"`
}

type zoteroCreator struct {
	CreatorType string `json:"creatorType"`
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	Name        string `json:"name"`
}

func (z *Zotero) Check(ctx context.Context, wm watermark.Watermark) (Result, error) {
	version, changed, throttle, err := z.probe(ctx, wm.LastVersion)
	if err != nil {
		return Result{}, err
	}
	if version == "" && throttle.Waiting() && !changed {
		return deferred(throttle), nil
	}
	if !changed {
		return Result{Status: Completed, Next: wm.Clone(), Throttle: throttle}, nil
	}

	records, wait, o, err := z.delta(ctx, wm)
	throttle = later(throttle, o)
	if err != nil {
		return Result{Throttle: throttle}, err
	}
	if wait {
		return deferred(throttle), nil
	}

	res := Result{Status: Completed, Throttle: throttle}
	skips := skipLog{log: z.log}
	maxAdded := wm.LastChecked
	for _, rec := range records {
		item, added, err := z.recordItem(rec)
		if !added.IsZero() && !added.After(wm.LastChecked) {
			continue
		}
		if err != nil {
			skips.skip(rec.Key, added, err)
			continue
		}
		if rec.Data.ItemType == "note" || rec.Data.ItemType == "attachment" {
			maxAdded = watermark.Latest(maxAdded, added)
			continue
		}
		r, err := z.buildReport(rec, item)
		if err != nil {
			skips.skip(rec.Key, added, err)
			continue
		}
		res.New = append(res.New, item)
		res.Reports = append(res.Reports, r)
		maxAdded = watermark.Latest(maxAdded, added)
	}

	next := wm.Clone()
	if skips.count == 0 {
		next.LastVersion = version
		next = next.Advance(maxAdded)
	} else if !skips.earliest.IsZero() {
		next = next.Advance(watermark.Latest(wm.LastChecked, minTime(maxAdded, skips.earliest.Add(-time.Nanosecond))))
	}
	res.Next = next
	res.Skipped = skips.count
	return res, nil
}

// probe asks whether the library changed since version. It returns the
// current library version when it did.
func (z *Zotero) probe(ctx context.Context, version string) (string, bool, fetch.Outcome, error) {
	h := z.header.Clone()
	if version != "" {
		h.Set("If-Modified-Since-Version", version)
	}
	resp, o, err := request(ctx, z.fetcher, fetch.Request{
		URI:         z.base + "/items/top?limit=1&format=keys",
		Header:      h,
		BypassCache: true,
	})
	if err != nil || resp == nil {
		return "", false, o, err
	}
	if resp.StatusCode == http.StatusNotModified {
		return version, false, o, nil
	}
	latest := strings.TrimSpace(resp.Header.Get("Last-Modified-Version"))
	if latest == "" {
		return "", false, o, errors.New("zotero: response has no Last-Modified-Version")
	}
	if latest == version {
		return latest, false, o, nil
	}
	return latest, true, o, nil
}

// delta pages through top-level items changed since the watermark version,
// newest additions first, stopping once a page reaches items added before
// the watermark timestamp. wait is set when the source asked us to back off
// part way; a partial delta cannot advance the version.
func (z *Zotero) delta(ctx context.Context, wm watermark.Watermark) (items []zoteroItem, wait bool, throttle fetch.Outcome, err error) {
	for page := 0; page < zoteroMaxPages; page++ {
		q := url.Values{}
		q.Set("since", wm.LastVersion)
		q.Set("format", "json")
		q.Set("sort", "dateAdded")
		q.Set("direction", "desc")
		q.Set("limit", strconv.Itoa(zoteroPageSize))
		q.Set("start", strconv.Itoa(page*zoteroPageSize))

		resp, o, err := request(ctx, z.fetcher, fetch.Request{
			URI:         z.base + "/items/top?" + q.Encode(),
			Header:      z.header.Clone(),
			BypassCache: true,
		})
		throttle = later(throttle, o)
		if err != nil {
			return nil, false, throttle, err
		}
		if resp == nil {
			return nil, true, throttle, nil
		}

		var batch []zoteroItem
		if err := json.Unmarshal(resp.Body, &batch); err != nil {
			return nil, false, throttle, fmt.Errorf("zotero: decode items: %w", err)
		}
		items = append(items, batch...)
		if len(batch) < zoteroPageSize || reachedMark(batch, wm.LastChecked) {
			break
		}
	}
	return items, false, throttle, nil
}

func reachedMark(batch []zoteroItem, mark time.Time) bool {
	last := batch[len(batch)-1]
	added, err := report.ParseISO(last.Data.DateAdded)
	return err == nil && !added.After(mark)
}

func (z *Zotero) recordItem(rec zoteroItem) (Item, time.Time, error) {
	added, dateErr := report.ParseISO(rec.Data.DateAdded)
	if dateErr != nil {
		added = time.Time{}
	}
	item := Item{
		ID:        rec.Key,
		Title:     report.Norm(rec.Data.Title),
		Link:      rec.Links.Alternate.Href,
		Published: added,
		Content:   rec.Data.AbstractNote,
		Authors:   creatorNames(rec),
	}
	switch {
	case rec.Key == "":
		return item, added, errors.New("record has no key")
	case dateErr != nil:
		return item, added, fmt.Errorf("dateAdded: %w", dateErr)
	}
	return item, added, nil
}

func (z *Zotero) buildReport(rec zoteroItem, item Item) (*report.Report, error) {
	if item.Title == "" {
		return nil, errors.New("record has no title")
	}
	r, err := report.New(z.opts.Name, item.ID, "New bibliography: "+item.Title)
	if err != nil {
		return nil, err
	}

	var cite []string
	if names := history.CommaList(item.Authors); names != "" {
		cite = append(cite, names)
	} else if s := report.Norm(rec.Meta.CreatorSummary); s != "" {
		cite = append(cite, s)
	}
	if d := report.Norm(rec.Data.Date); d != "" {
		cite = append(cite, "("+d+")")
	}
	citation := strings.Join(cite, " ")
	if citation != "" {
		citation += ". "
	}
	citation += "*" + item.Title + "*."
	if pub := report.Norm(rec.Data.PublicationTitle); pub != "" {
		citation += " " + pub + "."
	}

	body := []string{citation}
	abstract := report.Norm(item.Content)
	if abstract != "" {
		lead := report.Lead(abstract, report.MaxSummary)
		r.SetSummary(lead)
		body = append(body, lead)
	}
	if item.Link != "" {
		body = append(body, "<"+item.Link+">")
	}
	if err := r.SetMarkdown(strings.Join(body, "\n\n")); err != nil {
		return nil, err
	}
	if err := r.SetWhen(item.Published); err != nil {
		return nil, err
	}
	r.AddTags(z.opts.Tags...)
	return r, nil
}

func creatorNames(rec zoteroItem) []string {
	var names []string
	for _, c := range rec.Data.Creators {
		name := strings.TrimSpace(c.LastName)
		if name == "" {
			name = strings.TrimSpace(c.Name)
		}
		if name != "" {
			names = append(names, report.Norm(name))
		}
	}
	return names
}

func minTime(a, b time.Time) time.Time {
	if b.Before(a) {
		return b
	}
	return a
}
