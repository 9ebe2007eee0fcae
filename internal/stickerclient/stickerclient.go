// Package stickerclient adapts the remote sticker service (Telegram's
// custom-emoji sticker set surface): naming, upload, create/extend, and
// quota enforcement.
package stickerclient

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/necrasov-ilya/gpt-artifact-scrub/internal/domainerr"
	"github.com/necrasov-ilya/gpt-artifact-scrub/internal/retry"
	"github.com/necrasov-ilya/gpt-artifact-scrub/internal/store"
)

const maxShortNameLen = 64

// Tile is one tile to upload, mirroring imagekernel.Tile without the
// dependency.
type Tile struct {
	PNG []byte
}

// Request is everything the client needs to name, upload, and assemble a
// pack for one submission.
type Request struct {
	UserID        int64
	RequestedAt   time.Time
	Grid          store.GridOption
	Padding       int
	EntropySource string // source file stem, or the platform's opaque file identifier
	Tiles         []Tile
}

// Result is the pack produced by CreateOrExtend.
type Result struct {
	ShortName         string
	Link              string
	CustomEmojiIDs    []string
	FragmentPreviewID string
}

// Client adapts the remote sticker service. It is stateless after
// construction and safe for concurrent use.
type Client struct {
	bot                 *tgbotapi.BotAPI
	botName             string
	creationLimit       int
	totalLimit          int
	fragmentPreviewHost string
	logger              *log.Logger
}

// New constructs a Client. creationLimit bounds tiles accepted per
// submission; totalLimit bounds the sticker set's total size.
func New(bot *tgbotapi.BotAPI, botName string, creationLimit, totalLimit int, fragmentPreviewHost string, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.New(os.Stdout, "stickerclient ", log.LstdFlags|log.LUTC)
	}
	return &Client{
		bot:                 bot,
		botName:             botName,
		creationLimit:       creationLimit,
		totalLimit:          totalLimit,
		fragmentPreviewHost: fragmentPreviewHost,
		logger:              logger,
	}
}

// BuildShortName derives the pack identifier: a sanitized base (user id,
// microsecond timestamp, grid, padding, and a 6-char entropy token)
// suffixed with "_by_" and the lowercased bot name. Two submissions with the same
// (user_id, image_hash, grid, padding) issued at different requested_at
// always differ, because the timestamp is microsecond precision.
func BuildShortName(userID int64, requestedAt time.Time, grid store.GridOption, padding int, entropySource, botName string) string {
	suffix := "_by_" + strings.ToLower(botName)
	token := entropyToken(entropySource)
	base := fmt.Sprintf("%d_%d_%s_%d_%s", userID, requestedAt.UnixMicro(), grid.Encode(), padding, token)
	sanitizedBase := sanitize(base)

	maxBaseLen := maxShortNameLen - len(suffix)
	if maxBaseLen < 0 {
		maxBaseLen = 0
	}
	if len(sanitizedBase) > maxBaseLen {
		sanitizedBase = sanitizedBase[:maxBaseLen]
	}
	sanitizedBase = strings.TrimRight(sanitizedBase, "_")
	return sanitizedBase + suffix
}

func entropyToken(seed string) string {
	if seed == "" {
		seed = fmt.Sprintf("%d", time.Now().UnixNano())
	}
	sum := sha256.Sum256([]byte(seed))
	return hex.EncodeToString(sum[:])[:6]
}

func sanitize(s string) string {
	s = strings.ToLower(s)
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

type stickerSetResult struct {
	Name     string `json:"name"`
	Title    string `json:"title"`
	Stickers []struct {
		FileID string `json:"file_id"`
	} `json:"stickers"`
}

func (c *Client) retryPolicy() retry.Policy {
	return retry.Policy{
		Attempts:     5,
		InitialDelay: time.Second,
		MaxDelay:     10 * time.Second,
		Factor:       2,
		Retryable:    isTransientFailure,
	}
}

func isTransientFailure(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToUpper(err.Error())
	if strings.Contains(msg, "STICKER_SET_INVALID") || strings.Contains(msg, "STICKERSET_INVALID") {
		return false
	}
	return true
}

func isSetNotFound(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToUpper(err.Error())
	return strings.Contains(msg, "STICKER_SET_INVALID") || strings.Contains(msg, "STICKERSET_INVALID")
}

// CreateOrExtend uploads req's tiles and assembles them into a new or
// existing sticker set named via BuildShortName, enforcing the creation
// and total quotas.
func (c *Client) CreateOrExtend(ctx context.Context, req Request) (Result, error) {
	if len(req.Tiles) > c.creationLimit {
		return Result{}, domainerr.New(domainerr.InputInvalid, "stickerclient.CreateOrExtend",
			fmt.Errorf("submission has %d tiles, exceeds creation_limit %d", len(req.Tiles), c.creationLimit))
	}

	shortName := BuildShortName(req.UserID, req.RequestedAt, req.Grid, req.Padding, req.EntropySource, c.botName)

	fileIDs := make([]string, 0, len(req.Tiles))
	for i, tile := range req.Tiles {
		fileID, err := retry.Do(ctx, c.retryPolicy(), func(ctx context.Context, attempt int) (string, error) {
			return c.uploadStickerFile(req.UserID, tile.PNG)
		})
		if err != nil {
			return Result{}, domainerr.New(domainerr.TransportTransient, "stickerclient.uploadStickerFile", fmt.Errorf("tile %d: %w", i, err))
		}
		fileIDs = append(fileIDs, fileID)
	}

	set, err := retry.Do(ctx, c.retryPolicy(), func(ctx context.Context, attempt int) (stickerSetResult, error) {
		return c.getStickerSet(shortName)
	})
	if err != nil {
		if !isSetNotFound(err) {
			return Result{}, domainerr.New(domainerr.TransportTransient, "stickerclient.getStickerSet", err)
		}
		set, err = c.createSet(ctx, req.UserID, shortName, fileIDs)
		if err != nil {
			return Result{}, err
		}
	} else {
		if len(set.Stickers)+len(fileIDs) > c.totalLimit {
			return Result{}, domainerr.New(domainerr.RemoteContract, "stickerclient.CreateOrExtend",
				fmt.Errorf("set %s would exceed total_limit %d", shortName, c.totalLimit))
		}
		for _, fileID := range fileIDs {
			if _, err := retry.Do(ctx, c.retryPolicy(), func(ctx context.Context, attempt int) (struct{}, error) {
				return struct{}{}, c.addStickerToSet(req.UserID, shortName, fileID)
			}); err != nil {
				return Result{}, domainerr.New(domainerr.TransportTransient, "stickerclient.addStickerToSet", err)
			}
		}
		set, err = retry.Do(ctx, c.retryPolicy(), func(ctx context.Context, attempt int) (stickerSetResult, error) {
			return c.getStickerSet(shortName)
		})
		if err != nil {
			return Result{}, domainerr.New(domainerr.TransportTransient, "stickerclient.getStickerSet", err)
		}
	}

	n := len(fileIDs)
	if n > len(set.Stickers) {
		n = len(set.Stickers)
	}
	newIDs := make([]string, n)
	for i := 0; i < n; i++ {
		newIDs[i] = set.Stickers[len(set.Stickers)-n+i].FileID
	}

	result := Result{
		ShortName:      shortName,
		Link:           "https://t.me/addemoji/" + shortName,
		CustomEmojiIDs: newIDs,
	}
	if c.fragmentPreviewHost != "" && len(newIDs) > 0 {
		result.FragmentPreviewID = newIDs[0]
	}
	return result, nil
}

func (c *Client) createSet(ctx context.Context, userID int64, shortName string, fileIDs []string) (stickerSetResult, error) {
	if len(fileIDs) == 0 {
		return stickerSetResult{}, domainerr.New(domainerr.InputInvalid, "stickerclient.createSet", fmt.Errorf("no tiles to create a set from"))
	}
	if err := retryVoid(ctx, c.retryPolicy(), func() error {
		return c.createNewStickerSet(userID, shortName, fileIDs[0])
	}); err != nil {
		return stickerSetResult{}, domainerr.New(domainerr.TransportTransient, "stickerclient.createNewStickerSet", err)
	}
	for _, fileID := range fileIDs[1:] {
		if err := retryVoid(ctx, c.retryPolicy(), func() error {
			return c.addStickerToSet(userID, shortName, fileID)
		}); err != nil {
			return stickerSetResult{}, domainerr.New(domainerr.TransportTransient, "stickerclient.addStickerToSet", err)
		}
	}
	set, err := retry.Do(ctx, c.retryPolicy(), func(ctx context.Context, attempt int) (stickerSetResult, error) {
		return c.getStickerSet(shortName)
	})
	if err != nil {
		return stickerSetResult{}, domainerr.New(domainerr.TransportTransient, "stickerclient.getStickerSet", err)
	}
	return set, nil
}

func retryVoid(ctx context.Context, policy retry.Policy, fn func() error) error {
	_, err := retry.Do(ctx, policy, func(ctx context.Context, attempt int) (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

func (c *Client) uploadStickerFile(userID int64, png []byte) (string, error) {
	params := tgbotapi.Params{}
	params.AddNonEmpty("user_id", fmt.Sprintf("%d", userID))
	params.AddNonEmpty("sticker_format", "static")

	files := []tgbotapi.RequestFile{{
		Name: "sticker",
		Data: tgbotapi.FileBytes{Name: "tile.png", Bytes: png},
	}}

	resp, err := c.bot.UploadFiles("uploadStickerFile", params, files)
	if err != nil {
		return "", err
	}
	if !resp.Ok {
		return "", fmt.Errorf("uploadStickerFile: %s", resp.Description)
	}
	var file struct {
		FileID string `json:"file_id"`
	}
	if err := json.Unmarshal(resp.Result, &file); err != nil {
		return "", fmt.Errorf("uploadStickerFile: decode result: %w", err)
	}
	return file.FileID, nil
}

func (c *Client) getStickerSet(shortName string) (stickerSetResult, error) {
	params := tgbotapi.Params{}
	params.AddNonEmpty("name", shortName)

	resp, err := c.bot.MakeRequest("getStickerSet", params)
	if err != nil {
		return stickerSetResult{}, err
	}
	if !resp.Ok {
		return stickerSetResult{}, fmt.Errorf("getStickerSet: %s", resp.Description)
	}
	var set stickerSetResult
	if err := json.Unmarshal(resp.Result, &set); err != nil {
		return stickerSetResult{}, fmt.Errorf("getStickerSet: decode result: %w", err)
	}
	return set, nil
}

func (c *Client) createNewStickerSet(userID int64, shortName, firstFileID string) error {
	params := tgbotapi.Params{}
	params.AddNonEmpty("user_id", fmt.Sprintf("%d", userID))
	params.AddNonEmpty("name", shortName)
	params.AddNonEmpty("title", "Created by @"+c.botName)
	params.AddNonEmpty("sticker_type", "custom_emoji")

	stickerJSON, err := json.Marshal([]map[string]string{
		{"sticker": firstFileID, "format": "static", "emoji_list": "😀"},
	})
	if err != nil {
		return err
	}
	params.AddNonEmpty("stickers", string(stickerJSON))

	resp, err := c.bot.MakeRequest("createNewStickerSet", params)
	if err != nil {
		return err
	}
	if !resp.Ok {
		return fmt.Errorf("createNewStickerSet: %s", resp.Description)
	}
	return nil
}

func (c *Client) addStickerToSet(userID int64, shortName, fileID string) error {
	params := tgbotapi.Params{}
	params.AddNonEmpty("user_id", fmt.Sprintf("%d", userID))
	params.AddNonEmpty("name", shortName)

	stickerJSON, err := json.Marshal(map[string]string{
		"sticker": fileID, "format": "static", "emoji_list": "😀",
	})
	if err != nil {
		return err
	}
	params.AddNonEmpty("sticker", string(stickerJSON))

	resp, err := c.bot.MakeRequest("addStickerToSet", params)
	if err != nil {
		return err
	}
	if !resp.Ok {
		return fmt.Errorf("addStickerToSet: %s", resp.Description)
	}
	return nil
}
