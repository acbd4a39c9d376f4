package fetch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

// fakeRunner scripts yt-dlp/ffprobe invocations and counts downloads.
type fakeRunner struct {
	infoJSON  string
	downloads int
	writePath string // file the fake "download" creates
	failRun   error
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) error {
	if name == "yt-dlp" {
		if f.failRun != nil {
			return f.failRun
		}
		f.downloads++
		return os.WriteFile(f.writePath, []byte("mp3data"), 0o644)
	}
	return nil
}

func (f *fakeRunner) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	switch name {
	case "yt-dlp":
		return []byte(f.infoJSON), nil
	case "ffprobe":
		return []byte(`{"format":{"duration":"3000.0","size":"1048576"}}`), nil
	}
	return nil, errors.New("unexpected command " + name)
}

func TestSanitize(t *testing.T) {
	cases := []struct{ in, want string }{
		{"Hello World!", "Hello_World_"},
		{"a/b\\c:d", "a_b_c_d"},
		{"already_safe-123", "already_safe-123"},
		{"émoji 🎙 title", "_moji___title"},
	}
	for _, c := range cases {
		if got := Sanitize(c.in); got != c.want {
			t.Errorf("Sanitize(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestFetchDownloadsOnMiss(t *testing.T) {
	dir := t.TempDir()
	fr := &fakeRunner{
		infoJSON:  `{"id":"abc123","title":"Test Video","description":"desc","duration":3000}`,
		writePath: filepath.Join(dir, "Test_Video.mp3"),
	}
	f := New(fr, dir, "192", zerolog.Nop())

	src, err := f.Fetch(context.Background(), "https://youtu.be/abc123")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if fr.downloads != 1 {
		t.Errorf("downloads = %d, want 1", fr.downloads)
	}
	if src.Cached {
		t.Error("Cached = true on first fetch")
	}
	if src.Title != "Test Video" || src.Description != "desc" {
		t.Errorf("metadata = %q/%q", src.Title, src.Description)
	}
	if src.Duration != 3000 {
		t.Errorf("Duration = %f, want 3000", src.Duration)
	}
	if !strings.HasSuffix(src.LocalPath, "Test_Video.mp3") {
		t.Errorf("LocalPath = %q, want sanitized title path", src.LocalPath)
	}
}

func TestFetchIdempotent(t *testing.T) {
	dir := t.TempDir()
	fr := &fakeRunner{
		infoJSON:  `{"id":"abc123","title":"Test Video","description":"","duration":3000}`,
		writePath: filepath.Join(dir, "Test_Video.mp3"),
	}
	f := New(fr, dir, "192", zerolog.Nop())

	first, err := f.Fetch(context.Background(), "https://youtu.be/abc123")
	if err != nil {
		t.Fatalf("first Fetch: %v", err)
	}
	second, err := f.Fetch(context.Background(), "https://youtu.be/abc123")
	if err != nil {
		t.Fatalf("second Fetch: %v", err)
	}

	if fr.downloads != 1 {
		t.Errorf("downloads = %d, want 1 (second fetch must hit cache)", fr.downloads)
	}
	if !second.Cached {
		t.Error("second fetch: Cached = false, want true")
	}
	if first.LocalPath != second.LocalPath {
		t.Errorf("paths differ: %q vs %q", first.LocalPath, second.LocalPath)
	}
}

func TestFetchDownloadFailure(t *testing.T) {
	dir := t.TempDir()
	fr := &fakeRunner{
		infoJSON:  `{"id":"x","title":"Broken","description":"","duration":10}`,
		writePath: filepath.Join(dir, "Broken.mp3"),
		failRun:   errors.New("network unreachable"),
	}
	f := New(fr, dir, "192", zerolog.Nop())

	_, err := f.Fetch(context.Background(), "https://youtu.be/x")
	var fe *Error
	if !errors.As(err, &fe) {
		t.Fatalf("want *fetch.Error, got %v", err)
	}
	if fe.URL != "https://youtu.be/x" {
		t.Errorf("Error.URL = %q", fe.URL)
	}
	if fr.downloads != 0 {
		t.Errorf("downloads = %d, want 0", fr.downloads)
	}
}
