package screenshot

import (
	"context"
	"fmt"
	"strings"
)

// Selector matches DOM elements by CSS query, optionally narrowed to elements
// whose text contains Text (case-insensitive) and to descendants of Within.
// An empty CSS with a Text matches the innermost elements carrying the text.
type Selector struct {
	CSS    string
	Text   string
	Within string
}

// CSS returns a plain CSS selector
func CSS(css string) Selector { return Selector{CSS: css} }

// HasText returns a CSS selector restricted to elements containing text
func HasText(css, text string) Selector { return Selector{CSS: css, Text: text} }

// Text returns a selector for the innermost element containing text
func Text(text string) Selector { return Selector{Text: text} }

// In scopes the selector to descendants of the element matched by within
func (s Selector) In(within string) Selector {
	s.Within = within
	return s
}

func (s Selector) String() string {
	var b strings.Builder
	if s.Within != "" {
		b.WriteString(s.Within)
		b.WriteString(" >> ")
	}
	switch {
	case s.CSS == "" && s.Text != "":
		fmt.Fprintf(&b, "text=%s", s.Text)
	case s.Text != "":
		fmt.Fprintf(&b, "%s:has-text(%q)", s.CSS, s.Text)
	default:
		b.WriteString(s.CSS)
	}
	return b.String()
}

// Pick chooses which of several matches of the winning selector is used
type Pick int

const (
	PickFirst Pick = iota
	PickLast
)

// Resolve walks candidates in priority order and returns the first visible
// match of the first candidate that matches anything. ok is false only when
// no candidate matches.
func Resolve(ctx context.Context, s Surface, candidates []Selector, pick Pick) (el Element, ok bool, err error) {
	for _, sel := range candidates {
		found, err := s.Find(ctx, sel)
		if err != nil {
			return Element{}, false, fmt.Errorf("find %s: %w", sel, err)
		}
		if len(found) == 0 {
			continue
		}
		if pick == PickLast {
			return found[len(found)-1], true, nil
		}
		return found[0], true, nil
	}
	return Element{}, false, nil
}

// Anchor is a named geometric reference point: an ordered candidate list plus
// which match to take
type Anchor struct {
	Name       string
	Candidates []Selector
	Pick       Pick
}

func (a Anchor) resolve(ctx context.Context, s Surface) (Element, bool, error) {
	return Resolve(ctx, s, a.Candidates, a.Pick)
}
