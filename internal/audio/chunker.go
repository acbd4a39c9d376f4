// Package audio plans and cuts chunk boundaries for long recordings.
package audio

import (
	"math"

	"github.com/snarg/pullquote/internal/config"
)

// Span is a planned chunk boundary in seconds within the source file.
type Span struct {
	Index int
	Start float64
	End   float64
}

// Length returns the span duration in seconds.
func (s Span) Length() float64 { return s.End - s.Start }

// NeedsSplit reports whether a file exceeds the single-call limits and must
// be chunked before transcription.
func NeedsSplit(durationMinutes, sizeMB, maxDurationMinutes, maxSizeMB float64) bool {
	return durationMinutes > maxDurationMinutes || sizeMB > maxSizeMB
}

// OverlapPlan splits duration into chunks whose ends fall on the chunkLength
// grid. Each chunk after the first starts overlap seconds before the previous
// grid boundary, so neighbors share exactly overlap seconds. The final chunk
// ends at duration and may be shorter than chunkLength.
func OverlapPlan(duration, chunkLength, overlap float64) ([]Span, error) {
	if chunkLength <= 0 {
		return nil, &config.Error{Field: "chunk_length", Reason: "must be positive"}
	}
	if overlap < 0 {
		return nil, &config.Error{Field: "overlap", Reason: "must not be negative"}
	}
	if overlap >= chunkLength {
		return nil, &config.Error{Field: "overlap", Reason: "must be smaller than chunk_length"}
	}

	if duration <= chunkLength {
		return []Span{{Index: 0, Start: 0, End: duration}}, nil
	}

	n := int(math.Ceil(duration / chunkLength))
	spans := make([]Span, 0, n)
	for i := 0; i < n; i++ {
		start := math.Max(0, float64(i)*chunkLength-overlap)
		end := math.Min(float64(i+1)*chunkLength, duration)
		spans = append(spans, Span{Index: i, Start: start, End: end})
	}
	return spans, nil
}

// FixedCountPlan divides duration into the minimum number of chunks whose
// nominal length does not exceed target seconds, then widens each interior
// boundary by nudge seconds on both sides so speech straddling a cut appears
// in both neighbors. Boundaries are clipped to [0, duration].
func FixedCountPlan(duration, target, nudge float64) ([]Span, error) {
	if target <= 0 {
		return nil, &config.Error{Field: "chunk_length", Reason: "must be positive"}
	}
	if nudge < 0 {
		return nil, &config.Error{Field: "boundary_nudge", Reason: "must not be negative"}
	}

	n := int(math.Ceil(duration / target))
	if n <= 1 {
		return []Span{{Index: 0, Start: 0, End: duration}}, nil
	}
	length := duration / float64(n)

	spans := make([]Span, 0, n)
	for i := 0; i < n; i++ {
		start := math.Max(0, float64(i)*length-nudge)
		end := math.Min(duration, float64(i+1)*length+nudge)
		spans = append(spans, Span{Index: i, Start: start, End: end})
	}
	return spans, nil
}
