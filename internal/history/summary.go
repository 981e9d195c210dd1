package history

import (
	"regexp"
	"sort"
	"strings"
	"time"
)

var (
	byHandleRe   = regexp.MustCompile(`\s+by\s+@([\w.\-]+)`)
	bareHandleRe = regexp.MustCompile(`@([\w.\-]+)`)
)

// Single-word comments that only name the field that changed.
var fieldWords = map[string]bool{
	"description": true,
	"details":     true,
	"placetype":   true,
	"references":  true,
	"summary":     true,
	"title":       true,
}

const editedPlaceholder = "edited"

// Summarize describes who changed what in a place since cutoff, e.g.
// "Modifications by Jeffrey Becker and Tom Elliott: modified title; names: added Roma".
// people maps actor identifiers to display names; identifiers it cannot
// resolve are dropped. The result is empty when nothing changed since cutoff
// or when no actor resolves to a name.
func Summarize(p *Place, cutoff time.Time, people map[string]string) string {
	if p == nil {
		return ""
	}

	actors := make(map[string]bool)
	touched := false

	placeEvents := Filter(p.History, cutoff)
	placeMods := describe(placeEvents, actors)
	if len(placeEvents) > 0 {
		touched = true
	}

	var clauses []string
	for _, c := range Categories {
		var events []Event
		for _, child := range p.Children(c) {
			events = append(events, Filter(child.History, cutoff)...)
		}
		if len(events) == 0 {
			continue
		}
		touched = true

		var mods []string
		for _, m := range describe(events, actors) {
			if !contains(placeMods, m) {
				mods = append(mods, m)
			}
		}
		if len(mods) > 0 {
			clauses = append(clauses, string(c)+"s: "+strings.Join(mods, ", "))
		}
	}
	if !touched {
		return ""
	}

	var names []string
	seen := make(map[string]bool)
	for id := range actors {
		name, ok := people[id]
		if !ok || seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	sort.Strings(names)

	if len(names) == 0 {
		return ""
	}
	body := strings.Join(append(placeMods, clauses...), "; ")
	if body == "" {
		return "Modifications by " + CommaList(names)
	}
	return "Modifications by " + CommaList(names) + ": " + body
}

// describe collects the actors of events into actors and returns the sorted,
// deduplicated change descriptions found in their comments.
func describe(events []Event, actors map[string]bool) []string {
	set := make(map[string]bool)
	for _, e := range events {
		for _, a := range e.Actors() {
			actors[a] = true
		}
		if e.Comment == "" {
			continue
		}
		for _, part := range strings.Split(e.Comment, ";") {
			desc, handles := extractHandles(normSpace(part))
			for _, h := range handles {
				actors[h] = true
			}
			desc = expandFieldWord(desc)
			if desc != "" {
				set[desc] = true
			}
		}
	}

	if len(set) > 1 {
		for d := range set {
			if strings.EqualFold(d, editedPlaceholder) {
				delete(set, d)
			}
		}
	}

	out := make([]string, 0, len(set))
	for d := range set {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// extractHandles pulls "@handle" mentions out of a description. The
// " by @handle" form is tried first; bare mentions only when it finds none.
func extractHandles(s string) (string, []string) {
	re := byHandleRe
	if !re.MatchString(s) {
		re = bareHandleRe
	}
	var handles []string
	for _, m := range re.FindAllStringSubmatch(s, -1) {
		handles = append(handles, m[1])
	}
	if len(handles) == 0 {
		return s, nil
	}
	return normSpace(re.ReplaceAllString(s, "")), handles
}

func expandFieldWord(s string) string {
	if strings.ContainsAny(s, " \t") {
		return s
	}
	lower := strings.ToLower(strings.TrimRight(s, ".:"))
	if fieldWords[lower] {
		return "modified " + lower
	}
	return s
}

// CommaList joins items as "A", "A and B", or "A, B and C".
func CommaList(items []string) string {
	switch len(items) {
	case 0:
		return ""
	case 1:
		return items[0]
	}
	return strings.Join(items[:len(items)-1], ", ") + " and " + items[len(items)-1]
}

func normSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
