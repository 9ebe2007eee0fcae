// Package container wires every other component together into one running
// service, and owns their ordered start/stop.
package container

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/necrasov-ilya/gpt-artifact-scrub/internal/admission"
	"github.com/necrasov-ilya/gpt-artifact-scrub/internal/config"
	"github.com/necrasov-ilya/gpt-artifact-scrub/internal/domainerr"
	"github.com/necrasov-ilya/gpt-artifact-scrub/internal/emojijob"
	"github.com/necrasov-ilya/gpt-artifact-scrub/internal/httpapi"
	"github.com/necrasov-ilya/gpt-artifact-scrub/internal/imagekernel"
	"github.com/necrasov-ilya/gpt-artifact-scrub/internal/jobqueue"
	"github.com/necrasov-ilya/gpt-artifact-scrub/internal/scratch"
	"github.com/necrasov-ilya/gpt-artifact-scrub/internal/stickerclient"
	"github.com/necrasov-ilya/gpt-artifact-scrub/internal/store"
	"github.com/necrasov-ilya/gpt-artifact-scrub/internal/textpipeline"
	"github.com/necrasov-ilya/gpt-artifact-scrub/internal/textpipeline/stages"
	"github.com/necrasov-ilya/gpt-artifact-scrub/internal/tracking"
	"github.com/necrasov-ilya/gpt-artifact-scrub/internal/usersettings"
)

// Queue is the subset of *jobqueue.Queue[emojijob.PackRequest, emojijob.PackResult] the container needs.
type Queue interface {
	Start()
	Stop()
	Submit(req emojijob.PackRequest) *jobqueue.Future[jobqueue.Outcome[emojijob.PackResult]]
}

// UsageRecorder is the subset of *store.Store used for usage bookkeeping.
type UsageRecorder interface {
	RecordUsage(ctx context.Context, userID int64, username, displayName string, countDelta, messageDelta int64) error
}

// Container owns every component and their ordered lifecycle.
type Container struct {
	cfg config.Config
	log *log.Logger

	bot   *tgbotapi.BotAPI
	store *store.Store

	scratch      *scratch.Manager
	admission    *admission.Gate
	userSettings *usersettings.Service
	tracking     *tracking.Tracker
	stickers     *stickerclient.Client
	jobs         *emojijob.Service
	queue        Queue
	textBuilder  *textpipeline.Builder
	usage        UsageRecorder

	http *httpapi.Server
}

// New constructs every component from cfg but does not start any
// background goroutines yet; call Start for that.
func New(cfg config.Config, logger *log.Logger) (*Container, error) {
	if logger == nil {
		logger = log.New(os.Stdout, "container ", log.LstdFlags|log.LUTC)
	}

	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, domainerr.New(domainerr.Fatal, "container.New", fmt.Errorf("bot init: %w", err))
	}

	st, err := store.Open(cfg.StoragePath)
	if err != nil {
		return nil, domainerr.New(domainerr.Fatal, "container.New", fmt.Errorf("store open: %w", err))
	}

	retention := time.Duration(cfg.TempRetentionMinutes) * time.Minute
	scratchMgr := scratch.New(cfg.TempDir, retention, log.New(os.Stdout, "scratch ", log.LstdFlags|log.LUTC))

	defaultGrid, err := store.DecodeGrid(cfg.EmojiGridDefault)
	if err != nil {
		_ = st.Close()
		return nil, domainerr.New(domainerr.Fatal, "container.New", fmt.Errorf("emoji_grid_default: %w", err))
	}

	gate := admission.New(2 * time.Second)
	settings := usersettings.New(st, cfg.EmojiMaxTiles, defaultGrid, cfg.EmojiPaddingDefault)
	tracker := tracking.New(st, cfg.TrackingHost, cfg.BotName)
	stickers := stickerclient.New(bot, cfg.BotName, cfg.EmojiCreationLimit, cfg.EmojiMaxTiles, cfg.FragmentPreviewHost,
		log.New(os.Stdout, "stickerclient ", log.LstdFlags|log.LUTC))
	jobs := emojijob.New(stickers, st, scratchMgr.BaseDir(), cfg.EmojiTileSize,
		log.New(os.Stdout, "emojijob ", log.LstdFlags|log.LUTC))

	queue := jobqueue.New(cfg.EmojiQueueWorkers, jobs.Process, log.New(os.Stdout, "jobqueue ", log.LstdFlags|log.LUTC))

	registry := textpipeline.NewRegistry()
	if err := stages.RegisterBuiltins(registry); err != nil {
		_ = st.Close()
		return nil, domainerr.New(domainerr.Fatal, "container.New", fmt.Errorf("register text stages: %w", err))
	}
	textBuilder := textpipeline.NewBuilder(registry)

	httpSrv := httpapi.New(tracker, log.New(os.Stdout, "httpapi ", log.LstdFlags|log.LUTC))

	return &Container{
		cfg:          cfg,
		log:          logger,
		bot:          bot,
		store:        st,
		scratch:      scratchMgr,
		admission:    gate,
		userSettings: settings,
		tracking:     tracker,
		stickers:     stickers,
		jobs:         jobs,
		queue:        queue,
		textBuilder:  textBuilder,
		usage:        st,
		http:         httpSrv,
	}, nil
}

// Start launches the scratch sweeper and the job queue workers. Idempotent
// with respect to each owned component's own idempotency.
func (c *Container) Start() {
	c.scratch.Start()
	c.queue.Start()
}

// Stop tears down in dependency order: drain the job queue, then stop the
// scratch sweeper, then close the store. A second call is a no-op because
// every step it delegates to is itself idempotent.
func (c *Container) Stop() {
	c.queue.Stop()
	c.scratch.Stop()
	if err := c.store.Close(); err != nil {
		c.log.Printf("store close: %v", err)
	}
}

// HTTPHandler returns the admin/health HTTP surface's router.
func (c *Container) HTTPHandler() http.Handler { return c.http.Router() }

// Ack is the acceptance decision returned to the chat transport for an
// inbound image submission or selection.
type Ack struct {
	Accepted bool
	Reason   string
}

// ImageSubmission is the entry point a chat-transport adapter calls with
// an inbound image: admit, fingerprint, persist to scratch, enqueue. The
// returned future resolves once a worker has produced a PackResult or
// failed; the admission gate is released automatically, in a background
// goroutine, once that future resolves, regardless of outcome.
func (c *Container) ImageSubmission(ctx context.Context, userID, chatID int64, rawBytes []byte, platformFileID, mimeHint string) (Ack, *jobqueue.Future[jobqueue.Outcome[emojijob.PackResult]], error) {
	if !c.admission.TryAcquire(userID) {
		return Ack{Accepted: false, Reason: "busy_or_cooldown"}, nil, nil
	}

	settings, err := c.userSettings.Get(ctx, userID)
	if err != nil {
		c.admission.Release(userID)
		return Ack{}, nil, err
	}

	if _, _, err := imagekernel.Probe(rawBytes); err != nil {
		c.admission.Release(userID)
		return Ack{}, nil, domainerr.New(domainerr.InputInvalid, "container.ImageSubmission", err)
	}
	imageHash := imagekernel.Hash(rawBytes)

	subdir := fmt.Sprintf("job_%d_%d", userID, time.Now().UnixNano())
	path, err := c.scratch.WriteBytes(rawBytes, ".png", subdir)
	if err != nil {
		c.admission.Release(userID)
		return Ack{}, nil, domainerr.New(domainerr.IO, "container.ImageSubmission", err)
	}

	req := emojijob.PackRequest{
		UserID:       userID,
		ChatID:       chatID,
		FilePath:     path,
		ImageHash:    imageHash,
		Grid:         settings.DefaultGrid,
		Padding:      settings.Padding,
		FileUniqueID: platformFileID,
		RequestedAt:  time.Now(),
	}

	future := c.queue.Submit(req)
	go func() {
		future.Wait(context.Background())
		c.admission.Release(userID)
	}()

	if c.usage != nil {
		if err := c.usage.RecordUsage(ctx, userID, "", "", 1, 1); err != nil {
			c.log.Printf("record usage for %d: %v", userID, err)
		}
	}

	return Ack{Accepted: true}, future, nil
}

// SuggestGrids probes rawBytes and proposes grid options for the transport
// to render as a keyboard. Suggestions are bounded by the configured
// suggestion cap when one is set, the overall max-tiles limit otherwise.
func (c *Container) SuggestGrids(rawBytes []byte) (imagekernel.GridPlan, error) {
	width, height, err := imagekernel.Probe(rawBytes)
	if err != nil {
		return imagekernel.GridPlan{}, domainerr.New(domainerr.InputInvalid, "container.SuggestGrids", err)
	}
	maxTiles := c.cfg.EmojiMaxTiles
	if c.cfg.EmojiGridTileCap > 0 && c.cfg.EmojiGridTileCap < maxTiles {
		maxTiles = c.cfg.EmojiGridTileCap
	}
	return imagekernel.SuggestGrids(width, height, maxTiles, 5), nil
}

// Selection records a user's grid/padding choice by persisting it via the
// user-settings service.
func (c *Container) Selection(ctx context.Context, userID int64, gridEncoded string, paddingLevel int) (Ack, error) {
	grid, err := store.DecodeGrid(gridEncoded)
	if err != nil {
		return Ack{Accepted: false, Reason: "invalid_grid"}, domainerr.New(domainerr.InputInvalid, "container.Selection", err)
	}
	if err := c.userSettings.Update(ctx, userID, grid, paddingLevel); err != nil {
		if domainerr.Is(err, domainerr.InputInvalid) {
			return Ack{Accepted: false, Reason: "limit_exceeded"}, nil
		}
		return Ack{}, err
	}
	return Ack{Accepted: true}, nil
}

// NormalizeText runs the default text-normalization pipeline over
// text, used by commands/replies that echo back user-authored content.
func (c *Container) NormalizeText(text string) textpipeline.Result {
	return c.textBuilder.Default().Run(text)
}
