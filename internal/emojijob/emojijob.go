// Package emojijob is the per-submission job service: the one-shot
// orchestration a Job Queue worker runs for a single submission — slice,
// upload-and-assemble, guaranteed cleanup, persist.
package emojijob

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/necrasov-ilya/gpt-artifact-scrub/internal/domainerr"
	"github.com/necrasov-ilya/gpt-artifact-scrub/internal/imagekernel"
	"github.com/necrasov-ilya/gpt-artifact-scrub/internal/stickerclient"
	"github.com/necrasov-ilya/gpt-artifact-scrub/internal/store"
)

// PackRequest is the immutable-once-submitted unit a Job Queue worker
// receives.
type PackRequest struct {
	UserID       int64
	ChatID       int64
	FilePath     string
	ImageHash    string
	Grid         store.GridOption
	Padding      int
	FileUniqueID string
	RequestedAt  time.Time
}

// PackResult is what a successful submission produces.
type PackResult struct {
	ShortName         string
	Link              string
	CustomEmojiIDs    []string
	FragmentPreviewID string
}

// StickerClient is the subset of *stickerclient.Client this service
// depends on.
type StickerClient interface {
	CreateOrExtend(ctx context.Context, req stickerclient.Request) (stickerclient.Result, error)
}

// Store is the subset of *store.Store this service depends on.
type Store interface {
	SaveJobOutcome(ctx context.Context, outcome store.JobOutcome) error
}

// Service orchestrates one PackRequest end to end.
type Service struct {
	stickers    StickerClient
	store       Store
	scratchRoot string
	tileSize    int
	logger      *log.Logger
}

// New constructs a Service. scratchRoot is the scratch manager's base
// directory — a job's directory is only removed when it differs from this
// root (see the guaranteed-cleanup contract).
func New(stickers StickerClient, st Store, scratchRoot string, tileSize int, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.New(os.Stdout, "emojijob ", log.LstdFlags|log.LUTC)
	}
	return &Service{stickers: stickers, store: st, scratchRoot: scratchRoot, tileSize: tileSize, logger: logger}
}

// Process runs the full per-request pipeline: read source bytes, slice
// tiles into the job directory, upload-and-assemble via the sticker
// client, then persist the outcome. Cleanup (tile files, source file, job
// directory) runs on every exit path and always precedes the persist
// step; it never swallows the original failure.
func (s *Service) Process(ctx context.Context, req PackRequest) (result PackResult, err error) {
	jobDir := filepath.Dir(req.FilePath)
	stem := strings.TrimSuffix(filepath.Base(req.FilePath), filepath.Ext(req.FilePath))

	var tileFiles []string
	cleaned := false
	cleanup := func() {
		if cleaned {
			return
		}
		cleaned = true
		s.cleanup(req.FilePath, jobDir, tileFiles)
	}
	defer cleanup()

	data, readErr := os.ReadFile(req.FilePath)
	if readErr != nil {
		return PackResult{}, domainerr.New(domainerr.IO, "emojijob.Process", readErr)
	}

	kernelGrid := imagekernel.GridOption{Rows: req.Grid.Rows, Cols: req.Grid.Cols}
	tiles, sliceErr := imagekernel.Slice(data, kernelGrid, req.Padding, s.tileSize)
	if sliceErr != nil {
		return PackResult{}, domainerr.New(domainerr.IO, "emojijob.Process", sliceErr)
	}

	stickerTiles := make([]stickerclient.Tile, 0, len(tiles))
	for _, tile := range tiles {
		tilePath := filepath.Join(jobDir, fmt.Sprintf("%s_%d_%d.png", stem, tile.Row, tile.Col))
		if writeErr := os.WriteFile(tilePath, tile.PNG, 0o644); writeErr != nil {
			return PackResult{}, domainerr.New(domainerr.IO, "emojijob.Process", writeErr)
		}
		tileFiles = append(tileFiles, tilePath)
		stickerTiles = append(stickerTiles, stickerclient.Tile{PNG: tile.PNG})
	}

	entropySource := req.FileUniqueID
	if entropySource == "" {
		entropySource = stem
	}

	uploadResult, uploadErr := s.stickers.CreateOrExtend(ctx, stickerclient.Request{
		UserID:        req.UserID,
		RequestedAt:   req.RequestedAt,
		Grid:          req.Grid,
		Padding:       req.Padding,
		EntropySource: entropySource,
		Tiles:         stickerTiles,
	})
	cleanup()
	if uploadErr != nil {
		return PackResult{}, uploadErr
	}

	outcome := store.JobOutcome{
		UserID:            req.UserID,
		ImageHash:         req.ImageHash,
		Grid:              req.Grid,
		Padding:           req.Padding,
		ShortName:         uploadResult.ShortName,
		Link:              uploadResult.Link,
		CustomEmojiIDs:    uploadResult.CustomEmojiIDs,
		FragmentPreviewID: uploadResult.FragmentPreviewID,
	}
	if saveErr := s.store.SaveJobOutcome(ctx, outcome); saveErr != nil {
		return PackResult{}, domainerr.New(domainerr.IO, "emojijob.Process", saveErr)
	}

	return PackResult{
		ShortName:         uploadResult.ShortName,
		Link:              uploadResult.Link,
		CustomEmojiIDs:    uploadResult.CustomEmojiIDs,
		FragmentPreviewID: uploadResult.FragmentPreviewID,
	}, nil
}

// cleanup unlinks every tile file and the source file, then removes the
// job directory when it differs from the scratch root. It only logs
// failures; it must never mask the original outcome of Process.
func (s *Service) cleanup(sourcePath, jobDir string, tileFiles []string) {
	for _, f := range tileFiles {
		if err := os.Remove(f); err != nil && !os.IsNotExist(err) {
			s.logger.Printf("cleanup: remove tile %s: %v", f, err)
		}
	}
	if err := os.Remove(sourcePath); err != nil && !os.IsNotExist(err) {
		s.logger.Printf("cleanup: remove source %s: %v", sourcePath, err)
	}
	if jobDir != "" && jobDir != s.scratchRoot && jobDir != "." {
		if err := os.RemoveAll(jobDir); err != nil {
			s.logger.Printf("cleanup: remove job dir %s: %v", jobDir, err)
		}
	}
}
