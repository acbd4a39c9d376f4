package storage

import (
	"context"
	"io"
	"testing"
)

func TestLocalStoreRoundTrip(t *testing.T) {
	s := NewLocalStore(t.TempDir())
	ctx := context.Background()

	if s.Exists(ctx, "a_transcript.txt") {
		t.Fatal("exists before save")
	}
	if err := s.Save(ctx, "a_transcript.txt", []byte("[00:00] A: hi"), "text/plain"); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !s.Exists(ctx, "a_transcript.txt") {
		t.Fatal("missing after save")
	}
	if s.LocalPath("a_transcript.txt") == "" {
		t.Error("LocalPath empty for saved artifact")
	}

	r, err := s.Open(ctx, "a_transcript.txt")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()
	data, _ := io.ReadAll(r)
	if string(data) != "[00:00] A: hi" {
		t.Errorf("read back %q", data)
	}
}

func TestLocalStoreNestedKeys(t *testing.T) {
	s := NewLocalStore(t.TempDir())
	ctx := context.Background()

	if err := s.Save(ctx, "chunks/a_chunk_1.mp3", []byte("mp3"), "audio/mpeg"); err != nil {
		t.Fatalf("Save nested: %v", err)
	}
	if !s.Exists(ctx, "chunks/a_chunk_1.mp3") {
		t.Error("nested artifact missing")
	}
}
