// Package stamp handles the bracketed clock timestamps that anchor every
// transcript line, e.g. "[04:32] Speaker 1: ...". Both [MM:SS] and
// [HH:MM:SS] forms are accepted; output uses the shortest form that fits.
package stamp

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// linePattern matches a bracketed clock stamp at the start of a transcript line.
var linePattern = regexp.MustCompile(`^\[(\d{1,2}:\d{2}(?::\d{2})?)\]`)

// anyPattern matches a bracketed clock stamp anywhere in a line.
var anyPattern = regexp.MustCompile(`\[(\d{1,2}:\d{2}(?::\d{2})?)\]`)

// clockPattern validates a bare MM:SS or HH:MM:SS clock string.
var clockPattern = regexp.MustCompile(`^\d{1,2}:\d{2}(?::\d{2})?$`)

// Parse converts a bare clock string ("MM:SS" or "HH:MM:SS") to seconds.
func Parse(clock string) (int, error) {
	if !clockPattern.MatchString(clock) {
		return 0, fmt.Errorf("invalid clock format %q: want MM:SS or HH:MM:SS", clock)
	}
	parts := strings.Split(clock, ":")
	total := 0
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return 0, fmt.Errorf("invalid clock %q: %w", clock, err)
		}
		total = total*60 + n
	}
	return total, nil
}

// Format renders seconds as "MM:SS", or "HH:MM:SS" once the hour mark is passed.
func Format(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	h := seconds / 3600
	m := (seconds % 3600) / 60
	s := seconds % 60
	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}

// LineSeconds extracts the leading stamp of a transcript line.
// Returns (seconds, true) when the line starts with a bracketed stamp.
func LineSeconds(line string) (int, bool) {
	m := linePattern.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}
	sec, err := Parse(m[1])
	if err != nil {
		return 0, false
	}
	return sec, true
}

// Shift rewrites every bracketed stamp in text, adding offset seconds.
// Chunk transcripts carry chunk-relative stamps; shifting by the chunk's
// absolute start offset makes them source-relative.
func Shift(text string, offset int) string {
	if offset == 0 {
		return text
	}
	return anyPattern.ReplaceAllStringFunc(text, func(match string) string {
		sec, err := Parse(match[1 : len(match)-1])
		if err != nil {
			return match
		}
		return "[" + Format(sec+offset) + "]"
	})
}
