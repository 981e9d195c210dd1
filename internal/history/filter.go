package history

import (
	"sort"
	"time"
)

// Filter returns the recent events of one history, newest first.
//
// Events are collected from the newest back to, but not including, the first
// publish or baseline event. Unless the walk stopped at a baseline, the
// collected events are further cut at the first one older than cutoff. The
// result is nil when no collected event falls on or after cutoff.
func Filter(events []Event, cutoff time.Time) []Event {
	if len(events) == 0 {
		return nil
	}

	sorted := make([]Event, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Modified.After(sorted[j].Modified)
	})

	var (
		collected []Event
		boundary  string
	)
	for _, e := range sorted {
		if e.Action == ActionPublish || e.Action == ActionBaseline {
			boundary = e.Action
			break
		}
		collected = append(collected, e)
	}

	if boundary != ActionBaseline {
		kept := collected[:0]
		for _, e := range collected {
			if e.Modified.Before(cutoff) {
				break
			}
			kept = append(kept, e)
		}
		collected = kept
	}

	for _, e := range collected {
		if !e.Modified.Before(cutoff) {
			return collected
		}
	}
	return nil
}
