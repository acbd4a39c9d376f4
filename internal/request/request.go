// Package request parses the pasted input block a user submits: a source
// URL followed by "MM:SS - description" lines, or a URL plus a free-form
// question for analysis mode.
package request

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/snarg/pullquote/internal/stamp"
)

// Moment is one requested quote anchor.
type Moment struct {
	Seconds     int    `json:"seconds"`
	Clock       string `json:"clock"` // original MM:SS or HH:MM:SS form
	Description string `json:"description,omitempty"`
}

// Request is a parsed quote-extraction request.
type Request struct {
	URL     string   `json:"url"`
	Moments []Moment `json:"moments"`
}

// Error is invalid user input, caught before any external call is made.
type Error struct {
	Field  string
	Value  string
	Reason string
}

func (e *Error) Error() string {
	if e.Value != "" {
		return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

var (
	urlPattern    = regexp.MustCompile(`https?://\S+`)
	momentPattern = regexp.MustCompile(`^(\d{1,2}:\d{2}(?::\d{2})?)(?:\s*-\s*(.*))?$`)
)

// Parse extracts the URL and timestamp lines from a pasted block. The first
// URL found wins; every remaining line starting with a clock stamp becomes a
// Moment. Lines that are neither are ignored.
func Parse(block string) (*Request, error) {
	req := &Request{}

	for _, line := range strings.Split(strings.TrimSpace(block), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if req.URL == "" {
			if m := urlPattern.FindString(line); m != "" {
				req.URL = m
				continue
			}
		}
		m := momentPattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		sec, err := stamp.Parse(m[1])
		if err != nil {
			return nil, &Error{Field: "timestamp", Value: m[1], Reason: "want MM:SS or HH:MM:SS"}
		}
		req.Moments = append(req.Moments, Moment{
			Seconds:     sec,
			Clock:       m[1],
			Description: strings.TrimSpace(m[2]),
		})
	}

	if req.URL == "" {
		return nil, &Error{Field: "input", Reason: "no URL found"}
	}
	if len(req.Moments) == 0 {
		return nil, &Error{Field: "input", Reason: "no timestamps found, want at least one MM:SS line"}
	}
	return req, nil
}

// ValidateMoments checks every moment against the source duration. Called
// after fetch, before any model call.
func ValidateMoments(moments []Moment, duration float64) error {
	for _, m := range moments {
		if m.Seconds < 0 {
			return &Error{Field: "timestamp", Value: m.Clock, Reason: "negative"}
		}
		if float64(m.Seconds) > duration {
			return &Error{
				Field:  "timestamp",
				Value:  m.Clock,
				Reason: fmt.Sprintf("beyond end of source (%s)", stamp.Format(int(duration))),
			}
		}
	}
	return nil
}
