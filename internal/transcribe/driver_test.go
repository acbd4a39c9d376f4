package transcribe

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/snarg/pullquote/internal/audio"
	"github.com/snarg/pullquote/internal/gemini"
)

// fakeClient scripts model replies per audio path and counts calls.
type fakeClient struct {
	replies  map[string]string
	failPath string
	failWith error
	failN    int32 // fail the first N calls to failPath, then succeed
	calls    atomic.Int32
	perPath  func(path string) // hook invoked on each call
}

func (f *fakeClient) Model() string { return "fake-model" }

func (f *fakeClient) GenerateFromAudio(ctx context.Context, prompt, path string) (string, error) {
	f.calls.Add(1)
	if f.perPath != nil {
		f.perPath(path)
	}
	if path == f.failPath {
		if atomic.AddInt32(&f.failN, -1) >= 0 {
			return "", f.failWith
		}
	}
	return f.replies[path], nil
}

func testPolicy(attempts int) *CallPolicy {
	return NewCallPolicy(10000, 100, attempts, time.Millisecond, 4*time.Millisecond, time.Second, zerolog.Nop())
}

func TestTranscribeChunksMergesInIndexOrder(t *testing.T) {
	chunks := []audio.Chunk{
		{Index: 0, Path: "c0.mp3", Start: 0, End: 600},
		{Index: 1, Path: "c1.mp3", Start: 570, End: 1200},
		{Index: 2, Path: "c2.mp3", Start: 1170, End: 1500},
	}
	fc := &fakeClient{
		replies: map[string]string{
			"c0.mp3": "[00:00] A: first",
			"c1.mp3": "[01:00] A: second",
			"c2.mp3": "[01:00] A: third",
		},
		// Stagger completion so later chunks tend to finish first.
		perPath: func(path string) {
			if path == "c0.mp3" {
				time.Sleep(20 * time.Millisecond)
			}
		},
	}
	d := NewDriver(Options{Client: fc, Policy: testPolicy(3), Workers: 3, Log: zerolog.Nop()})

	got, err := d.TranscribeChunks(context.Background(), chunks, nil)
	if err != nil {
		t.Fatalf("TranscribeChunks: %v", err)
	}
	want := strings.Join([]string{
		"[00:00] A: first",
		"[10:30] A: second",
		"[20:30] A: third",
	}, "\n")
	if got != want {
		t.Errorf("transcript =\n%s\nwant\n%s", got, want)
	}
}

func TestTranscribeChunksRetriesTransient(t *testing.T) {
	chunks := []audio.Chunk{{Index: 0, Path: "c0.mp3", Start: 0, End: 60}}
	fc := &fakeClient{
		replies:  map[string]string{"c0.mp3": "[00:00] A: ok"},
		failPath: "c0.mp3",
		failWith: &gemini.APIError{Status: 503, Message: "overloaded"},
		failN:    2,
	}
	var retries int
	policy := testPolicy(3)
	policy.OnRetry = func() { retries++ }
	d := NewDriver(Options{Client: fc, Policy: policy, Workers: 1, Log: zerolog.Nop()})

	got, err := d.TranscribeChunks(context.Background(), chunks, nil)
	if err != nil {
		t.Fatalf("TranscribeChunks: %v", err)
	}
	if got != "[00:00] A: ok" {
		t.Errorf("transcript = %q", got)
	}
	if fc.calls.Load() != 3 {
		t.Errorf("calls = %d, want 3 (two transient failures, one success)", fc.calls.Load())
	}
	if retries != 2 {
		t.Errorf("retries = %d, want 2", retries)
	}
}

func TestTranscribeChunksPermanentFailureFailsFast(t *testing.T) {
	chunks := []audio.Chunk{{Index: 0, Path: "c0.mp3", Start: 0, End: 60}}
	fc := &fakeClient{
		failPath: "c0.mp3",
		failWith: &gemini.APIError{Status: 400, Message: "bad audio"},
		failN:    100,
	}
	d := NewDriver(Options{Client: fc, Policy: testPolicy(3), Workers: 1, Log: zerolog.Nop()})

	_, err := d.TranscribeChunks(context.Background(), chunks, nil)
	var ce *ChunkError
	if !errors.As(err, &ce) {
		t.Fatalf("want *ChunkError, got %v", err)
	}
	if ce.Chunk != 0 {
		t.Errorf("ChunkError.Chunk = %d, want 0", ce.Chunk)
	}
	if fc.calls.Load() != 1 {
		t.Errorf("calls = %d, want 1 (no retry on permanent failure)", fc.calls.Load())
	}
}

func TestTranscribeChunksExhaustsAttempts(t *testing.T) {
	chunks := []audio.Chunk{{Index: 1, Path: "c1.mp3", Start: 570, End: 1200}}
	fc := &fakeClient{
		failPath: "c1.mp3",
		failWith: &gemini.APIError{Status: 429, Message: "quota"},
		failN:    100,
	}
	d := NewDriver(Options{Client: fc, Policy: testPolicy(3), Workers: 1, Log: zerolog.Nop()})

	_, err := d.TranscribeChunks(context.Background(), chunks, nil)
	if err == nil {
		t.Fatal("want error after exhausting attempts")
	}
	if fc.calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", fc.calls.Load())
	}
	var ae *gemini.APIError
	if !errors.As(err, &ae) || ae.Status != 429 {
		t.Errorf("cause not preserved: %v", err)
	}
}

func TestTranscribeChunksCancellation(t *testing.T) {
	chunks := []audio.Chunk{
		{Index: 0, Path: "c0.mp3", Start: 0, End: 600},
		{Index: 1, Path: "c1.mp3", Start: 570, End: 1200},
	}
	ctx, cancel := context.WithCancel(context.Background())
	fc := &fakeClient{
		replies: map[string]string{"c0.mp3": "x", "c1.mp3": "y"},
		perPath: func(path string) { cancel() },
	}
	d := NewDriver(Options{Client: fc, Policy: testPolicy(3), Workers: 1, Log: zerolog.Nop()})

	_, err := d.TranscribeChunks(ctx, chunks, nil)
	if err == nil {
		t.Fatal("want error after cancellation")
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled in chain", err)
	}
}

func TestTranscribeChunksProgressCallback(t *testing.T) {
	chunks := []audio.Chunk{
		{Index: 0, Path: "c0.mp3", Start: 0, End: 600},
		{Index: 1, Path: "c1.mp3", Start: 570, End: 1200},
	}
	fc := &fakeClient{replies: map[string]string{"c0.mp3": "a", "c1.mp3": "b"}}
	var seen atomic.Int32
	d := NewDriver(Options{Client: fc, Policy: testPolicy(3), Workers: 2, Log: zerolog.Nop()})
	onDone := func(done, total int) {
		seen.Add(1)
		if total != 2 {
			t.Errorf("total = %d, want 2", total)
		}
	}
	if _, err := d.TranscribeChunks(context.Background(), chunks, onDone); err != nil {
		t.Fatalf("TranscribeChunks: %v", err)
	}
	if seen.Load() != 2 {
		t.Errorf("callback fired %d times, want 2", seen.Load())
	}
}
