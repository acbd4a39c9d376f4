package media

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
)

// VideoInfo is the metadata yt-dlp reports for a source URL.
type VideoInfo struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Duration    float64 `json:"duration"`
}

// FetchInfo queries video metadata without downloading.
func FetchInfo(ctx context.Context, r Runner, url string) (*VideoInfo, error) {
	out, err := r.Output(ctx, "yt-dlp",
		"--dump-single-json",
		"--no-download",
		"--quiet",
		url,
	)
	if err != nil {
		return nil, fmt.Errorf("fetch info %s: %w", url, err)
	}

	info := &VideoInfo{}
	if err := json.Unmarshal(out, info); err != nil {
		return nil, fmt.Errorf("fetch info %s: decode metadata: %w", url, err)
	}
	if info.Title == "" {
		info.Title = "video"
	}
	return info, nil
}

// DownloadAudio downloads the best available audio for url and extracts it
// to an mp3 at outPath (quality in kbps, e.g. "192"). yt-dlp invokes ffmpeg
// itself for the extraction step.
func DownloadAudio(ctx context.Context, r Runner, url, outPath, quality string) error {
	// yt-dlp substitutes the real extension pre-extraction; the final file
	// lands at outPath because of --audio-format mp3.
	template := outPath[:len(outPath)-len(filepath.Ext(outPath))] + ".%(ext)s"

	err := r.Run(ctx, "yt-dlp",
		"--format", "bestaudio/best",
		"--extract-audio",
		"--audio-format", "mp3",
		"--audio-quality", quality+"K",
		"--output", template,
		"--quiet",
		url,
	)
	if err != nil {
		return fmt.Errorf("download %s: %w", url, err)
	}
	return nil
}

// CutChunk writes the [start, end) slice of src to dst, re-encoding to keep
// chunk boundaries sample-accurate (stream copy would snap to keyframes).
func CutChunk(ctx context.Context, r Runner, src, dst string, start, end float64) error {
	err := r.Run(ctx, "ffmpeg",
		"-y",
		"-i", src,
		"-ss", fmt.Sprintf("%.3f", start),
		"-to", fmt.Sprintf("%.3f", end),
		"-acodec", "libmp3lame",
		dst,
	)
	if err != nil {
		return fmt.Errorf("cut chunk %s [%.1f-%.1f]: %w", filepath.Base(dst), start, end, err)
	}
	return nil
}
