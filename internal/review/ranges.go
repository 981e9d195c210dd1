package review

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrBadRange is returned for malformed range expressions.
var ErrBadRange = errors.New("bad range")

const maxSpan = 10000

// ParseRange expands expressions like "1,3-5" into positions, in the order
// given and without repeats.
func ParseRange(s string) ([]int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("%w: empty", ErrBadRange)
	}

	var out []int
	seen := make(map[int]bool)
	add := func(n int) {
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		lo, hi, isSpan := strings.Cut(part, "-")
		first, err := strconv.Atoi(strings.TrimSpace(lo))
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrBadRange, part)
		}
		last := first
		if isSpan {
			last, err = strconv.Atoi(strings.TrimSpace(hi))
			if err != nil {
				return nil, fmt.Errorf("%w: %q", ErrBadRange, part)
			}
		}
		if first < 1 || last < first || last-first >= maxSpan {
			return nil, fmt.Errorf("%w: %q", ErrBadRange, part)
		}
		for n := first; n <= last; n++ {
			add(n)
		}
	}
	return out, nil
}
