// Package watermark models the per-source cursor that marks everything
// already reported.
package watermark

import (
	"sort"
	"time"
)

// Kind selects which fields of a Watermark a source uses.
type Kind string

const (
	KindTimestamp Kind = "timestamp"
	KindVersion   Kind = "version"
	KindSeenSet   Kind = "seen_set"
)

// MinSeen is the smallest seen-set capacity a source may be configured with.
const MinSeen = 500

// Epoch is older than any content a source can return. Sources that have
// never been checked start here.
var Epoch = time.Date(1900, time.January, 1, 0, 0, 0, 0, time.UTC)

// Watermark is the persisted cursor for one source.
type Watermark struct {
	Source      string
	Kind        Kind
	LastChecked time.Time
	LastVersion string  // KindVersion only
	Seen        SeenSet // KindSeenSet only
}

// New returns the never-checked watermark for a source.
func New(source string, kind Kind) Watermark {
	wm := Watermark{
		Source:      source,
		Kind:        kind,
		LastChecked: Epoch,
	}
	if kind == KindVersion {
		wm.LastVersion = "0"
	}
	if kind == KindSeenSet {
		wm.Seen = SeenSet{}
	}
	return wm
}

// Advance returns a copy with LastChecked moved to t, unless that would move
// it backward.
func (w Watermark) Advance(t time.Time) Watermark {
	if t.After(w.LastChecked) {
		w.LastChecked = t.UTC()
	}
	return w
}

// Day returns LastChecked truncated to its UTC calendar day.
func (w Watermark) Day() time.Time {
	return TruncateDay(w.LastChecked)
}

// Clone returns a deep copy so callers can mutate the seen-set freely.
func (w Watermark) Clone() Watermark {
	if w.Seen != nil {
		w.Seen = w.Seen.Clone()
	}
	return w
}

// Equal reports whether two watermarks carry the same cursor.
func (w Watermark) Equal(o Watermark) bool {
	if w.Source != o.Source || w.Kind != o.Kind || w.LastVersion != o.LastVersion {
		return false
	}
	if !w.LastChecked.Equal(o.LastChecked) {
		return false
	}
	if len(w.Seen) != len(o.Seen) {
		return false
	}
	for id, t := range w.Seen {
		if ot, ok := o.Seen[id]; !ok || !ot.Equal(t) {
			return false
		}
	}
	return true
}

// TruncateDay drops the time-of-day in UTC.
func TruncateDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// Latest returns the later of a and b. Zero values lose.
func Latest(a, b time.Time) time.Time {
	if b.After(a) {
		return b
	}
	return a
}

// SeenSet maps item identifiers to the last modification time observed.
type SeenSet map[string]time.Time

// Changed reports whether id is unseen or was modified after the recorded time.
func (s SeenSet) Changed(id string, modified time.Time) bool {
	prev, ok := s[id]
	if !ok {
		return true
	}
	return modified.After(prev)
}

// Clone returns a copy of the set.
func (s SeenSet) Clone() SeenSet {
	out := make(SeenSet, len(s))
	for id, t := range s {
		out[id] = t
	}
	return out
}

// Prune keeps the limit most recently modified entries. Ties on time are
// broken by identifier so pruning is deterministic.
func (s SeenSet) Prune(limit int) SeenSet {
	if limit < MinSeen {
		limit = MinSeen
	}
	if len(s) <= limit {
		return s
	}

	ids := make([]string, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		ti, tj := s[ids[i]], s[ids[j]]
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return ids[i] < ids[j]
	})

	out := make(SeenSet, limit)
	for _, id := range ids[:limit] {
		out[id] = s[id]
	}
	return out
}
