package watermark

import (
	"encoding/json"
	"fmt"
	"time"
)

// record is the persisted shape: last_checked always, last_version for
// versioned sources, seen for seen-set sources.
type record struct {
	LastChecked string            `json:"last_checked"`
	LastVersion string            `json:"last_version,omitempty"`
	Seen        map[string]string `json:"seen,omitempty"`
}

// MarshalRecord encodes the watermark's cursor fields as JSON.
func MarshalRecord(w Watermark) ([]byte, error) {
	rec := record{
		LastChecked: formatTime(w.LastChecked),
		LastVersion: w.LastVersion,
	}
	if len(w.Seen) > 0 {
		rec.Seen = make(map[string]string, len(w.Seen))
		for id, t := range w.Seen {
			rec.Seen[id] = formatTime(t)
		}
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encode watermark: %w", err)
	}
	return data, nil
}

// UnmarshalRecord decodes a record written by MarshalRecord.
func UnmarshalRecord(source string, kind Kind, data []byte) (Watermark, error) {
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Watermark{}, fmt.Errorf("decode watermark %s: %w", source, err)
	}

	last, err := parseTime(rec.LastChecked)
	if err != nil {
		return Watermark{}, fmt.Errorf("watermark %s: last_checked: %w", source, err)
	}

	wm := New(source, kind)
	wm.LastChecked = last
	if rec.LastVersion != "" {
		wm.LastVersion = rec.LastVersion
	}
	for id, v := range rec.Seen {
		t, err := parseTime(v)
		if err != nil {
			return Watermark{}, fmt.Errorf("watermark %s: seen %q: %w", source, id, err)
		}
		if wm.Seen == nil {
			wm.Seen = SeenSet{}
		}
		wm.Seen[id] = t
	}
	return wm, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(value string) (time.Time, error) {
	if value == "" {
		return Epoch, nil
	}
	if ts, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return ts.UTC(), nil
	}
	ts, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, err
	}
	return ts.UTC(), nil
}
