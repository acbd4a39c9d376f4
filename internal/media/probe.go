package media

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
)

// FileInfo describes a local audio file as reported by ffprobe.
type FileInfo struct {
	Duration  float64 // seconds
	SizeBytes int64
}

// SizeMB returns the file size in megabytes.
func (fi FileInfo) SizeMB() float64 { return float64(fi.SizeBytes) / (1024 * 1024) }

// DurationMinutes returns the duration in minutes.
func (fi FileInfo) DurationMinutes() float64 { return fi.Duration / 60 }

// Probe reads duration and size from an audio file via ffprobe.
func Probe(ctx context.Context, r Runner, path string) (FileInfo, error) {
	out, err := r.Output(ctx, "ffprobe",
		"-v", "error",
		"-show_entries", "format=duration,size",
		"-of", "json",
		path,
	)
	if err != nil {
		return FileInfo{}, fmt.Errorf("probe %s: %w", path, err)
	}

	var parsed struct {
		Format struct {
			Duration string `json:"duration"`
			Size     string `json:"size"`
		} `json:"format"`
	}
	if err := json.Unmarshal(out, &parsed); err != nil {
		return FileInfo{}, fmt.Errorf("probe %s: decode ffprobe output: %w", path, err)
	}

	dur, err := strconv.ParseFloat(parsed.Format.Duration, 64)
	if err != nil {
		return FileInfo{}, fmt.Errorf("probe %s: bad duration %q: %w", path, parsed.Format.Duration, err)
	}
	size, err := strconv.ParseInt(parsed.Format.Size, 10, 64)
	if err != nil {
		return FileInfo{}, fmt.Errorf("probe %s: bad size %q: %w", path, parsed.Format.Size, err)
	}

	return FileInfo{Duration: dur, SizeBytes: size}, nil
}
