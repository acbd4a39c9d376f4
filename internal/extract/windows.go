package extract

import (
	"strings"

	"github.com/snarg/pullquote/internal/request"
	"github.com/snarg/pullquote/internal/stamp"
)

// Window is the time range around a moment that scopes quote extraction,
// in seconds, clipped to [0, duration].
type Window struct {
	Start int
	End   int
}

// Windows computes one context window per moment. The trailing context is
// capped at the distance to the next moment so neighboring windows do not
// swallow each other's material; the last moment keeps the full after span.
// Moments out of range fail validation before any window is built.
func Windows(moments []request.Moment, before, after int, duration float64) ([]Window, error) {
	if err := request.ValidateMoments(moments, duration); err != nil {
		return nil, err
	}

	wins := make([]Window, len(moments))
	for i, m := range moments {
		trailing := after
		if i < len(moments)-1 {
			if gap := moments[i+1].Seconds - m.Seconds; gap < trailing {
				trailing = gap
			}
		}
		start := m.Seconds - before
		if start < 0 {
			start = 0
		}
		end := m.Seconds + trailing
		if float64(end) > duration {
			end = int(duration)
		}
		wins[i] = Window{Start: start, End: end}
	}
	return wins, nil
}

// Segment returns the transcript lines whose leading stamp falls inside w.
func Segment(transcript string, w Window) string {
	var lines []string
	for _, line := range strings.Split(strings.TrimSpace(transcript), "\n") {
		sec, ok := stamp.LineSeconds(strings.TrimSpace(line))
		if !ok {
			continue
		}
		if sec >= w.Start && sec <= w.End {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}
