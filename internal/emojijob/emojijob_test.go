package emojijob

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/necrasov-ilya/gpt-artifact-scrub/internal/stickerclient"
	"github.com/necrasov-ilya/gpt-artifact-scrub/internal/store"
)

func solidRedPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{255, 0, 0, 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode test png: %v", err)
	}
	return buf.Bytes()
}

type fakeStickerClient struct {
	result stickerclient.Result
	err    error
	called bool
}

func (f *fakeStickerClient) CreateOrExtend(_ context.Context, _ stickerclient.Request) (stickerclient.Result, error) {
	f.called = true
	return f.result, f.err
}

type fakeStore struct {
	saved []store.JobOutcome
}

func (f *fakeStore) SaveJobOutcome(_ context.Context, outcome store.JobOutcome) error {
	f.saved = append(f.saved, outcome)
	return nil
}

func writeSourceFile(t *testing.T, jobDir, stem string, png []byte) string {
	t.Helper()
	if err := os.MkdirAll(jobDir, 0o755); err != nil {
		t.Fatalf("mkdir job dir: %v", err)
	}
	path := filepath.Join(jobDir, stem+".png")
	if err := os.WriteFile(path, png, 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}
	return path
}

func TestProcessSuccessCleansUpAndPersists(t *testing.T) {
	scratchRoot := t.TempDir()
	jobDir := filepath.Join(scratchRoot, "job-1")
	sourcePath := writeSourceFile(t, jobDir, "src", solidRedPNG(t, 200, 100))

	stickers := &fakeStickerClient{result: stickerclient.Result{
		ShortName:      "pack_by_bot",
		Link:           "https://t.me/addemoji/pack_by_bot",
		CustomEmojiIDs: []string{"a", "b"},
	}}
	st := &fakeStore{}
	svc := New(stickers, st, scratchRoot, 100, nil)

	req := PackRequest{
		UserID:      1,
		ChatID:      1,
		FilePath:    sourcePath,
		ImageHash:   "deadbeef",
		Grid:        store.GridOption{Rows: 1, Cols: 2},
		Padding:     2,
		RequestedAt: time.Now(),
	}

	result, err := svc.Process(context.Background(), req)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if result.ShortName != "pack_by_bot" || len(result.CustomEmojiIDs) != 2 {
		t.Fatalf("got %+v", result)
	}
	if !stickers.called {
		t.Fatal("expected sticker client to be invoked")
	}
	if len(st.saved) != 1 {
		t.Fatalf("expected one persisted outcome, got %d", len(st.saved))
	}

	if _, err := os.Stat(sourcePath); !os.IsNotExist(err) {
		t.Fatal("expected source file to be removed")
	}
	if _, err := os.Stat(jobDir); !os.IsNotExist(err) {
		t.Fatal("expected job directory to be removed")
	}
	if _, err := os.Stat(scratchRoot); err != nil {
		t.Fatal("expected scratch root to survive cleanup")
	}
}

// orderCheckingStore snapshots the job's on-disk state at the moment
// SaveJobOutcome is invoked, so the test can prove cleanup ran first.
type orderCheckingStore struct {
	sourcePath   string
	jobDir       string
	called       bool
	filesPresent bool
}

func (f *orderCheckingStore) SaveJobOutcome(_ context.Context, _ store.JobOutcome) error {
	f.called = true
	if _, err := os.Stat(f.sourcePath); err == nil {
		f.filesPresent = true
	}
	if _, err := os.Stat(f.jobDir); err == nil {
		f.filesPresent = true
	}
	return nil
}

func TestProcessCleansUpBeforePersisting(t *testing.T) {
	scratchRoot := t.TempDir()
	jobDir := filepath.Join(scratchRoot, "job-3")
	sourcePath := writeSourceFile(t, jobDir, "src", solidRedPNG(t, 200, 100))

	stickers := &fakeStickerClient{result: stickerclient.Result{
		ShortName:      "pack_by_bot",
		Link:           "https://t.me/addemoji/pack_by_bot",
		CustomEmojiIDs: []string{"a", "b"},
	}}
	st := &orderCheckingStore{sourcePath: sourcePath, jobDir: jobDir}
	svc := New(stickers, st, scratchRoot, 100, nil)

	req := PackRequest{
		UserID:      1,
		FilePath:    sourcePath,
		Grid:        store.GridOption{Rows: 1, Cols: 2},
		Padding:     1,
		RequestedAt: time.Now(),
	}
	if _, err := svc.Process(context.Background(), req); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if !st.called {
		t.Fatal("expected SaveJobOutcome to be called")
	}
	if st.filesPresent {
		t.Fatal("source file and job directory must be gone before SaveJobOutcome runs")
	}
}

func TestProcessFailurePropagatesAfterCleanup(t *testing.T) {
	scratchRoot := t.TempDir()
	jobDir := filepath.Join(scratchRoot, "job-2")
	sourcePath := writeSourceFile(t, jobDir, "src", solidRedPNG(t, 200, 100))

	wantErr := errors.New("upload failed")
	stickers := &fakeStickerClient{err: wantErr}
	st := &fakeStore{}
	svc := New(stickers, st, scratchRoot, 100, nil)

	req := PackRequest{
		UserID:      1,
		FilePath:    sourcePath,
		Grid:        store.GridOption{Rows: 1, Cols: 1},
		RequestedAt: time.Now(),
	}

	_, err := svc.Process(context.Background(), req)
	if !errors.Is(err, wantErr) {
		t.Fatalf("got %v, want wrapping of %v", err, wantErr)
	}
	if len(st.saved) != 0 {
		t.Fatal("must not persist an outcome on failure")
	}
	if _, statErr := os.Stat(jobDir); !os.IsNotExist(statErr) {
		t.Fatal("expected job directory to be removed even on failure")
	}
}

func TestProcessNeverRemovesScratchRootItself(t *testing.T) {
	scratchRoot := t.TempDir()
	sourcePath := writeSourceFile(t, scratchRoot, "src", solidRedPNG(t, 100, 100))

	stickers := &fakeStickerClient{result: stickerclient.Result{ShortName: "p_by_bot", Link: "https://t.me/addemoji/p_by_bot", CustomEmojiIDs: []string{"1"}}}
	st := &fakeStore{}
	svc := New(stickers, st, scratchRoot, 100, nil)

	req := PackRequest{UserID: 1, FilePath: sourcePath, Grid: store.GridOption{Rows: 1, Cols: 1}, RequestedAt: time.Now()}
	if _, err := svc.Process(context.Background(), req); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if _, err := os.Stat(scratchRoot); err != nil {
		t.Fatal("scratch root (== job dir here) must survive cleanup")
	}
}
