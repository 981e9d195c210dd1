package fetch

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// DefaultThrottle is used when a 429 arrives without a usable wait hint.
const DefaultThrottle = time.Minute

// Outcome says whether a source may issue requests now or must wait. It is
// a value, not an error: being asked to wait is an ordinary branch.
type Outcome struct {
	until time.Time
}

// Ready is the outcome that allows requests immediately.
var Ready = Outcome{}

// WaitUntil returns an outcome that defers requests until t.
func WaitUntil(t time.Time) Outcome {
	return Outcome{until: t.UTC()}
}

// Waiting reports whether the outcome defers requests.
func (o Outcome) Waiting() bool { return !o.until.IsZero() }

// Until returns the instant before which no request may be made. It is zero
// for Ready.
func (o Outcome) Until() time.Time { return o.until }

// Throttle reads the wait hints of a response. Retry-After may be seconds or
// an HTTP date; Backoff is seconds. The later hint wins. A 429 without hints
// waits DefaultThrottle.
func (r *Response) Throttle(now time.Time) Outcome {
	if r == nil || r.FromCache {
		return Ready
	}

	var until time.Time
	if v := strings.TrimSpace(r.Header.Get("Retry-After")); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			until = now.Add(time.Duration(secs) * time.Second)
		} else if t, err := http.ParseTime(v); err == nil {
			until = t
		}
	}
	if v := strings.TrimSpace(r.Header.Get("Backoff")); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			if t := now.Add(time.Duration(secs) * time.Second); t.After(until) {
				until = t
			}
		}
	}
	if until.IsZero() && r.StatusCode == http.StatusTooManyRequests {
		until = now.Add(DefaultThrottle)
	}
	if !until.After(now) {
		return Ready
	}
	return WaitUntil(until)
}

// Gate holds a source's "do not request before" marker.
type Gate struct {
	mu        sync.Mutex
	notBefore time.Time
}

// Check returns Ready once now has reached the marker.
func (g *Gate) Check(now time.Time) Outcome {
	g.mu.Lock()
	defer g.mu.Unlock()
	if now.Before(g.notBefore) {
		return WaitUntil(g.notBefore)
	}
	return Ready
}

// Apply moves the marker forward to a waiting outcome's instant. The marker
// never moves backward.
func (g *Gate) Apply(o Outcome) {
	if !o.Waiting() {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if o.until.After(g.notBefore) {
		g.notBefore = o.until
	}
}

// NotBefore returns the current marker.
func (g *Gate) NotBefore() time.Time {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.notBefore
}
