package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// GridOption is the (rows, cols) pair chosen to partition a source image.
type GridOption struct {
	Rows int
	Cols int
}

// Tiles is the derived rows*cols tile count.
func (g GridOption) Tiles() int { return g.Rows * g.Cols }

// Encode returns the canonical "RxC" string form.
func (g GridOption) Encode() string {
	return fmt.Sprintf("%dx%d", g.Rows, g.Cols)
}

// DecodeGrid parses a grid string, accepting "×" on input and normalizing
// case.
func DecodeGrid(value string) (GridOption, error) {
	sanitized := strings.ToLower(strings.ReplaceAll(value, "×", "x"))
	parts := strings.SplitN(sanitized, "x", 2)
	if len(parts) != 2 {
		return GridOption{}, fmt.Errorf("invalid grid %q", value)
	}
	rows, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return GridOption{}, fmt.Errorf("invalid grid %q: %w", value, err)
	}
	cols, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return GridOption{}, fmt.Errorf("invalid grid %q: %w", value, err)
	}
	if rows < 1 || cols < 1 {
		return GridOption{}, fmt.Errorf("invalid grid %q: rows/cols must be >= 1", value)
	}
	return GridOption{Rows: rows, Cols: cols}, nil
}

// UserSettings is the persisted user_settings row.
type UserSettings struct {
	UserID      int64
	DefaultGrid GridOption
	Padding     int
	UpdatedAt   string
}

// GetUserSettings fetches the persisted settings for userID, or
// (UserSettings{}, false, nil) if none exist.
func (s *Store) GetUserSettings(ctx context.Context, userID int64) (UserSettings, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT grid, padding, updated_at FROM user_settings WHERE user_id = ?`, userID)
	var gridStr string
	var padding int
	var updatedAt string
	if err := row.Scan(&gridStr, &padding, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return UserSettings{}, false, nil
		}
		return UserSettings{}, false, err
	}
	grid, err := DecodeGrid(gridStr)
	if err != nil {
		return UserSettings{}, false, err
	}
	return UserSettings{UserID: userID, DefaultGrid: grid, Padding: padding, UpdatedAt: updatedAt}, true, nil
}

// UpsertUserSettings writes settings for its UserID, overwriting any prior
// row.
func (s *Store) UpsertUserSettings(ctx context.Context, settings UserSettings) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_settings (user_id, grid, padding, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			grid = excluded.grid,
			padding = excluded.padding,
			updated_at = excluded.updated_at
	`, settings.UserID, settings.DefaultGrid.Encode(), settings.Padding, NowUTC())
	return err
}

// JobOutcome is the persisted emoji_jobs row, keyed by the fingerprint
// (user_id, image_hash, grid, padding).
type JobOutcome struct {
	UserID            int64
	ImageHash         string
	Grid              GridOption
	Padding           int
	ShortName         string
	Link              string
	CustomEmojiIDs    []string
	FragmentPreviewID string
	CreatedAt         string
}

// SaveJobOutcome persists outcome, overwriting any prior row sharing the
// same fingerprint. The emoji_jobs table is write-only bookkeeping: the job service
// never reads it back before processing (see the caching-policy decision
// recorded for this component).
func (s *Store) SaveJobOutcome(ctx context.Context, outcome JobOutcome) error {
	idsJSON, err := json.Marshal(outcome.CustomEmojiIDs)
	if err != nil {
		return err
	}
	var fragmentPreview sql.NullString
	if outcome.FragmentPreviewID != "" {
		fragmentPreview = sql.NullString{String: outcome.FragmentPreviewID, Valid: true}
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO emoji_jobs (user_id, image_hash, grid, padding, short_name, link, custom_emoji_ids, fragment_preview_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, image_hash, grid, padding) DO UPDATE SET
			short_name = excluded.short_name,
			link = excluded.link,
			custom_emoji_ids = excluded.custom_emoji_ids,
			fragment_preview_id = excluded.fragment_preview_id,
			created_at = excluded.created_at
	`, outcome.UserID, outcome.ImageHash, outcome.Grid.Encode(), outcome.Padding,
		outcome.ShortName, outcome.Link, string(idsJSON), fragmentPreview, NowUTC())
	return err
}

// GetCachedJob fetches a previously saved job outcome by fingerprint. It
// exists for callers (tests, a future reporting surface) that want to
// inspect what the last submission for a fingerprint produced; the
// processing path itself intentionally never calls this (see the
// caching-policy decision for the Durable Store / Emoji Job Service).
func (s *Store) GetCachedJob(ctx context.Context, userID int64, imageHash string, grid GridOption, padding int) (JobOutcome, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT short_name, link, custom_emoji_ids, fragment_preview_id, created_at
		FROM emoji_jobs WHERE user_id = ? AND image_hash = ? AND grid = ? AND padding = ?
	`, userID, imageHash, grid.Encode(), padding)

	var shortName, link, idsJSON, createdAt string
	var fragmentPreview sql.NullString
	if err := row.Scan(&shortName, &link, &idsJSON, &fragmentPreview, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return JobOutcome{}, false, nil
		}
		return JobOutcome{}, false, err
	}
	var ids []string
	if err := json.Unmarshal([]byte(idsJSON), &ids); err != nil {
		return JobOutcome{}, false, err
	}
	return JobOutcome{
		UserID:            userID,
		ImageHash:         imageHash,
		Grid:              grid,
		Padding:           padding,
		ShortName:         shortName,
		Link:              link,
		CustomEmojiIDs:    ids,
		FragmentPreviewID: fragmentPreview.String,
		CreatedAt:         createdAt,
	}, true, nil
}

// UsageStat is the persisted usage_stats row.
type UsageStat struct {
	UserID       int64
	Username     string
	DisplayName  string
	TotalCount   int64
	MessageCount int64
	FirstSeen    string
	LastSeen     string
}

// RecordUsage upserts the usage_stats row for userID, incrementing counters
// and refreshing identity fields and last_seen.
func (s *Store) RecordUsage(ctx context.Context, userID int64, username, displayName string, countDelta, messageDelta int64) error {
	now := NowUTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO usage_stats (user_id, username, display_name, total_count, message_count, first_seen, last_seen)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			username = excluded.username,
			display_name = excluded.display_name,
			total_count = usage_stats.total_count + excluded.total_count,
			message_count = usage_stats.message_count + excluded.message_count,
			last_seen = excluded.last_seen
	`, userID, username, displayName, countDelta, messageDelta, now, now)
	return err
}

// TrackingLink is a persisted tracking_links row.
type TrackingLink struct {
	LinkID    int64
	Tag       string
	Slug      string
	CreatedAt string
	DeletedAt sql.NullString
}

// CreateTrackingLink inserts a new active link and returns its assigned ID.
func (s *Store) CreateTrackingLink(ctx context.Context, tag, slug string) (TrackingLink, error) {
	now := NowUTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO tracking_links (tag, slug, created_at, deleted_at) VALUES (?, ?, ?, NULL)
	`, tag, slug, now)
	if err != nil {
		return TrackingLink{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return TrackingLink{}, err
	}
	return TrackingLink{LinkID: id, Tag: tag, Slug: slug, CreatedAt: now}, nil
}

// SoftDeleteTrackingLink stamps deleted_at on an active link, freeing its
// slug for reuse. It reports whether a row was actually deleted.
func (s *Store) SoftDeleteTrackingLink(ctx context.Context, linkID int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE tracking_links SET deleted_at = ? WHERE link_id = ? AND deleted_at IS NULL
	`, NowUTC(), linkID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ActiveSlugExists reports whether slug is in use by a non-deleted link.
func (s *Store) ActiveSlugExists(ctx context.Context, slug string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM tracking_links WHERE slug = ? AND deleted_at IS NULL`, slug).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// GetActiveTrackingLink fetches a non-deleted link by ID.
func (s *Store) GetActiveTrackingLink(ctx context.Context, linkID int64) (TrackingLink, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT link_id, tag, slug, created_at, deleted_at
		FROM tracking_links WHERE link_id = ? AND deleted_at IS NULL
	`, linkID)
	var l TrackingLink
	if err := row.Scan(&l.LinkID, &l.Tag, &l.Slug, &l.CreatedAt, &l.DeletedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return TrackingLink{}, false, nil
		}
		return TrackingLink{}, false, err
	}
	return l, true, nil
}

// ListActiveTrackingLinks returns active links, newest first.
func (s *Store) ListActiveTrackingLinks(ctx context.Context) ([]TrackingLink, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT link_id, tag, slug, created_at, deleted_at
		FROM tracking_links WHERE deleted_at IS NULL
		ORDER BY link_id DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []TrackingLink
	for rows.Next() {
		var l TrackingLink
		if err := rows.Scan(&l.LinkID, &l.Tag, &l.Slug, &l.CreatedAt, &l.DeletedAt); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// TrackingEvent is a persisted tracking_events row.
type TrackingEvent struct {
	EventID    int64
	LinkID     int64
	UserID     int64
	Kind       string
	FirstStart bool
	CreatedAt  string
}

// EventExists reports whether any event already exists for (linkID, userID).
func (s *Store) EventExists(ctx context.Context, linkID, userID int64) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM tracking_events WHERE link_id = ? AND user_id = ?`, linkID, userID).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// AppendTrackingEvent inserts a new event row.
func (s *Store) AppendTrackingEvent(ctx context.Context, linkID, userID int64, kind string, firstStart bool) (TrackingEvent, error) {
	now := NowUTC()
	firstStartInt := 0
	if firstStart {
		firstStartInt = 1
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO tracking_events (link_id, user_id, kind, first_start, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, linkID, userID, kind, firstStartInt, now)
	if err != nil {
		return TrackingEvent{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return TrackingEvent{}, err
	}
	return TrackingEvent{EventID: id, LinkID: linkID, UserID: userID, Kind: kind, FirstStart: firstStart, CreatedAt: now}, nil
}

// TrackingAggregate is the per-link rollup returned by
// AggregateTrackingEvents.
type TrackingAggregate struct {
	LinkID      int64
	TotalEvents int64
	UniqueUsers int64
	FirstStarts int64
}

// AggregateTrackingEvents computes (total_events, unique_users, first_starts)
// for linkID, optionally restricted to [since, until) when those are
// non-empty ISO-8601 strings.
func (s *Store) AggregateTrackingEvents(ctx context.Context, linkID int64, since, until string) (TrackingAggregate, error) {
	query := `
		SELECT COUNT(1), COUNT(DISTINCT user_id), COALESCE(SUM(first_start), 0)
		FROM tracking_events WHERE link_id = ?`
	args := []any{linkID}
	if since != "" {
		query += " AND created_at >= ?"
		args = append(args, since)
	}
	if until != "" {
		query += " AND created_at < ?"
		args = append(args, until)
	}
	agg := TrackingAggregate{LinkID: linkID}
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&agg.TotalEvents, &agg.UniqueUsers, &agg.FirstStarts)
	return agg, err
}

// ListTrackingEvents returns events for linkID within an optional
// [since, until) window, oldest first.
func (s *Store) ListTrackingEvents(ctx context.Context, linkID int64, since, until string) ([]TrackingEvent, error) {
	query := `SELECT event_id, link_id, user_id, kind, first_start, created_at FROM tracking_events WHERE link_id = ?`
	args := []any{linkID}
	if since != "" {
		query += " AND created_at >= ?"
		args = append(args, since)
	}
	if until != "" {
		query += " AND created_at < ?"
		args = append(args, until)
	}
	query += " ORDER BY event_id ASC"
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []TrackingEvent
	for rows.Next() {
		var e TrackingEvent
		var firstStartInt int
		if err := rows.Scan(&e.EventID, &e.LinkID, &e.UserID, &e.Kind, &firstStartInt, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.FirstStart = firstStartInt != 0
		out = append(out, e)
	}
	return out, rows.Err()
}
