package rangeref

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Kind tells a marker selector from a named one.
type Kind int

const (
	Named Kind = iota
	Start
	End
)

// Selector picks one node of a sequence.
type Selector struct {
	Kind Kind
	Name string
	// Occurrence is 1-based; 0 means the first occurrence.
	Occurrence int
}

// Range is an inclusive span between two selectors.
type Range struct {
	First Selector
	Last  Selector
}

// Full is the range covering a whole sequence.
var Full = Range{First: Selector{Kind: Start}, Last: Selector{Kind: End}}

// selectorRegex matches `name` or `name[n]`.
var selectorRegex = regexp.MustCompile(`^([a-z0-9_.$:+-]+)(?:\[(\d+)\])?$`)

// ParseSelector parses a single selector.
func ParseSelector(raw string) (Selector, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	switch s {
	case "":
		return Selector{}, fmt.Errorf("range selector cannot be empty")
	case "#s":
		return Selector{Kind: Start}, nil
	case "#e":
		return Selector{Kind: End}, nil
	}

	matches := selectorRegex.FindStringSubmatch(s)
	if matches == nil {
		return Selector{}, fmt.Errorf("invalid range selector: %q", raw)
	}

	sel := Selector{Kind: Named, Name: matches[1]}
	if matches[2] != "" {
		n, err := strconv.Atoi(matches[2])
		if err != nil {
			return Selector{}, fmt.Errorf("invalid occurrence in %q: %w", raw, err)
		}
		if n < 1 {
			return Selector{}, fmt.Errorf("occurrence in %q must be at least 1", raw)
		}
		sel.Occurrence = n
	}
	return sel, nil
}

// Parse parses `selector` or `first/last`. A single selector yields a range
// that starts and ends on it.
func Parse(raw string) (Range, error) {
	first, last, found := strings.Cut(raw, "/")
	a, err := ParseSelector(first)
	if err != nil {
		return Range{}, err
	}
	if !found {
		return Range{First: a, Last: a}, nil
	}
	b, err := ParseSelector(last)
	if err != nil {
		return Range{}, err
	}
	return Range{First: a, Last: b}, nil
}

// String serializes the selector into its canonical form.
func (s Selector) String() string {
	switch s.Kind {
	case Start:
		return "#s"
	case End:
		return "#e"
	}
	if s.Occurrence > 0 {
		return fmt.Sprintf("%s[%d]", s.Name, s.Occurrence)
	}
	return s.Name
}

// String serializes the range; a one-node range prints as one selector.
func (r Range) String() string {
	if r.First == r.Last {
		return r.First.String()
	}
	return r.First.String() + "/" + r.Last.String()
}

// Match reports whether a node called name, being its occurrence-th
// appearance in the sequence (1-based), is the node s selects.
func (s Selector) Match(name string, occurrence int) bool {
	if s.Kind != Named || !strings.EqualFold(s.Name, stripOccurrence(name)) {
		return false
	}
	want := s.Occurrence
	if want == 0 {
		want = 1
	}
	return occurrence == want
}

// stripOccurrence drops the `:n` suffix the engine appends to node names.
func stripOccurrence(name string) string {
	if i := strings.LastIndexByte(name, ':'); i > 0 {
		if _, err := strconv.Atoi(name[i+1:]); err == nil {
			return name[:i]
		}
	}
	return name
}

// Indices resolves r against the ordered node names of a sequence and
// returns the inclusive index bounds. ok is false when a selector matches
// nothing or the range runs backwards.
func (r Range) Indices(names []string) (first, last int, ok bool) {
	first, ok = r.First.index(names, true)
	if !ok {
		return 0, 0, false
	}
	last, ok = r.Last.index(names, false)
	if !ok || last < first {
		return 0, 0, false
	}
	return first, last, true
}

func (s Selector) index(names []string, isFirst bool) (int, bool) {
	switch s.Kind {
	case Start:
		if len(names) == 0 {
			return 0, false
		}
		return 0, true
	case End:
		if len(names) == 0 {
			return 0, false
		}
		return len(names) - 1, true
	}
	seen := make(map[string]int)
	for i, n := range names {
		key := strings.ToLower(stripOccurrence(n))
		seen[key]++
		if s.Match(n, seen[key]) {
			return i, true
		}
	}
	return 0, false
}
