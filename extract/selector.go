package extract

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidSelector is returned for selector strings outside the supported
// grammar. Extraction skips such selectors instead of failing.
var ErrInvalidSelector = errors.New("extract: invalid selector")

// Kind is the match kind of a Selector.
type Kind int

const (
	KindClass    Kind = iota + 1 // .name       class attribute contains name
	KindAttr                     // [key=value] attribute equals value
	KindTag                      // tag         element name
	KindItemprop                 // [itemprop=value]
)

func (k Kind) String() string {
	switch k {
	case KindClass:
		return "class"
	case KindAttr:
		return "attr"
	case KindTag:
		return "tag"
	case KindItemprop:
		return "itemprop"
	default:
		return "unknown"
	}
}

// Selector is one parsed alternative of the restricted grammar:
//   - ".price"                class-containment
//   - "[data-test=price]"     attribute equality (value may be quoted)
//   - "span"                  bare tag
//   - "[itemprop=price]"      item property
type Selector struct {
	Kind  Kind
	Key   string // attribute key for KindAttr, "itemprop" for KindItemprop
	Value string // class fragment, attribute value or tag name
	Raw   string
}

// ParseSelector parses a single selector alternative.
func ParseSelector(s string) (Selector, error) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return Selector{}, fmt.Errorf("%w: empty", ErrInvalidSelector)
	}

	switch {
	case raw[0] == '.':
		name := raw[1:]
		if !isIdent(name) {
			return Selector{}, fmt.Errorf("%w: %q", ErrInvalidSelector, raw)
		}
		return Selector{Kind: KindClass, Value: name, Raw: raw}, nil

	case raw[0] == '[':
		if !strings.HasSuffix(raw, "]") {
			return Selector{}, fmt.Errorf("%w: %q", ErrInvalidSelector, raw)
		}
		inner := raw[1 : len(raw)-1]
		eq := strings.IndexByte(inner, '=')
		if eq <= 0 {
			return Selector{}, fmt.Errorf("%w: %q", ErrInvalidSelector, raw)
		}
		key := strings.ToLower(strings.TrimSpace(inner[:eq]))
		val := strings.TrimSpace(inner[eq+1:])
		val = strings.Trim(val, `"'`)
		if !isIdent(key) || val == "" || strings.ContainsAny(val, `"'[]\`) {
			return Selector{}, fmt.Errorf("%w: %q", ErrInvalidSelector, raw)
		}
		if key == "itemprop" {
			return Selector{Kind: KindItemprop, Key: key, Value: val, Raw: raw}, nil
		}
		return Selector{Kind: KindAttr, Key: key, Value: val, Raw: raw}, nil

	default:
		if !isTagName(raw) {
			return Selector{}, fmt.Errorf("%w: %q", ErrInvalidSelector, raw)
		}
		return Selector{Kind: KindTag, Value: strings.ToLower(raw), Raw: raw}, nil
	}
}

// SplitAlternatives splits a comma-separated selector list, keeping order
// and dropping empty entries.
func SplitAlternatives(list string) []string {
	var out []string
	for _, p := range strings.Split(list, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// css renders the selector for the goquery/cascadia engine.
func (s Selector) css() string {
	switch s.Kind {
	case KindClass:
		return `[class*="` + s.Value + `"]`
	case KindAttr, KindItemprop:
		return `[` + s.Key + `="` + s.Value + `"]`
	default:
		return s.Value
	}
}

func (s Selector) String() string { return s.Raw }

func isIdent(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return false
		}
	}
	return true
}

func isTagName(s string) bool {
	if s == "" {
		return false
	}
	c := s[0]
	if !((c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')) {
		return false
	}
	for i := 1; i < len(s); i++ {
		c := s[i]
		if !((c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '-') {
			return false
		}
	}
	return true
}
