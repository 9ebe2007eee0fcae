package store

import (
	"context"
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.sqlite")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestUserSettingsUpsertIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	settings := UserSettings{UserID: 1, DefaultGrid: GridOption{Rows: 2, Cols: 3}, Padding: 1}
	if err := s.UpsertUserSettings(ctx, settings); err != nil {
		t.Fatalf("UpsertUserSettings: %v", err)
	}
	if err := s.UpsertUserSettings(ctx, settings); err != nil {
		t.Fatalf("UpsertUserSettings (second): %v", err)
	}

	got, ok, err := s.GetUserSettings(ctx, 1)
	if err != nil {
		t.Fatalf("GetUserSettings: %v", err)
	}
	if !ok {
		t.Fatal("expected settings to exist")
	}
	if got.DefaultGrid != settings.DefaultGrid || got.Padding != settings.Padding {
		t.Fatalf("got %+v, want grid/padding %+v/%d", got, settings.DefaultGrid, settings.Padding)
	}
}

func TestSaveJobOutcomeOverwritesSameFingerprint(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	grid := GridOption{Rows: 1, Cols: 2}
	first := JobOutcome{
		UserID: 7, ImageHash: "abc", Grid: grid, Padding: 1,
		ShortName: "first_by_bot", Link: "https://t.me/addemoji/first_by_bot",
		CustomEmojiIDs: []string{"1", "2"},
	}
	if err := s.SaveJobOutcome(ctx, first); err != nil {
		t.Fatalf("SaveJobOutcome: %v", err)
	}
	second := first
	second.ShortName = "second_by_bot"
	second.CustomEmojiIDs = []string{"3", "4"}
	if err := s.SaveJobOutcome(ctx, second); err != nil {
		t.Fatalf("SaveJobOutcome (overwrite): %v", err)
	}

	got, ok, err := s.GetCachedJob(ctx, 7, "abc", grid, 1)
	if err != nil {
		t.Fatalf("GetCachedJob: %v", err)
	}
	if !ok {
		t.Fatal("expected cached job to exist")
	}
	if got.ShortName != "second_by_bot" {
		t.Fatalf("ShortName = %s, want overwritten value", got.ShortName)
	}
}

func TestRecordUsageIncrementsCounters(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.RecordUsage(ctx, 5, "alice", "Alice", 1, 1); err != nil {
		t.Fatalf("RecordUsage: %v", err)
	}
	if err := s.RecordUsage(ctx, 5, "alice", "Alice A.", 2, 1); err != nil {
		t.Fatalf("RecordUsage (2nd): %v", err)
	}

	var total, messages int64
	var displayName, firstSeen, lastSeen string
	err := s.DB().QueryRowContext(ctx, `
		SELECT total_count, message_count, display_name, first_seen, last_seen
		FROM usage_stats WHERE user_id = 5
	`).Scan(&total, &messages, &displayName, &firstSeen, &lastSeen)
	if err != nil {
		t.Fatalf("query usage_stats: %v", err)
	}
	if total != 3 || messages != 2 {
		t.Fatalf("counters = (%d,%d), want (3,2)", total, messages)
	}
	if displayName != "Alice A." {
		t.Fatalf("display_name = %q, want refreshed value", displayName)
	}
	if firstSeen == "" || lastSeen == "" {
		t.Fatal("expected first_seen/last_seen to be stamped")
	}
}

func TestTrackingFirstStartAndAggregate(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	link, err := s.CreateTrackingLink(ctx, "Ad Campaign", "ad-campaign")
	if err != nil {
		t.Fatalf("CreateTrackingLink: %v", err)
	}

	exists, err := s.EventExists(ctx, link.LinkID, 7)
	if err != nil {
		t.Fatalf("EventExists: %v", err)
	}
	if exists {
		t.Fatal("expected no prior event")
	}
	if _, err := s.AppendTrackingEvent(ctx, link.LinkID, 7, "start", true); err != nil {
		t.Fatalf("AppendTrackingEvent: %v", err)
	}

	exists, err = s.EventExists(ctx, link.LinkID, 7)
	if err != nil {
		t.Fatalf("EventExists (2nd): %v", err)
	}
	if !exists {
		t.Fatal("expected prior event to exist now")
	}
	if _, err := s.AppendTrackingEvent(ctx, link.LinkID, 7, "start", false); err != nil {
		t.Fatalf("AppendTrackingEvent (2nd): %v", err)
	}

	agg, err := s.AggregateTrackingEvents(ctx, link.LinkID, "", "")
	if err != nil {
		t.Fatalf("AggregateTrackingEvents: %v", err)
	}
	if agg.TotalEvents != 2 || agg.UniqueUsers != 1 || agg.FirstStarts != 1 {
		t.Fatalf("agg = %+v, want total=2 unique=1 first=1", agg)
	}
}

func TestActiveSlugUniquenessFreedBySoftDelete(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	link, err := s.CreateTrackingLink(ctx, "tag", "my-slug")
	if err != nil {
		t.Fatalf("CreateTrackingLink: %v", err)
	}
	exists, err := s.ActiveSlugExists(ctx, "my-slug")
	if err != nil {
		t.Fatalf("ActiveSlugExists: %v", err)
	}
	if !exists {
		t.Fatal("expected slug to be active")
	}

	deleted, err := s.SoftDeleteTrackingLink(ctx, link.LinkID)
	if err != nil {
		t.Fatalf("SoftDeleteTrackingLink: %v", err)
	}
	if !deleted {
		t.Fatal("expected soft delete to affect the active row")
	}

	exists, err = s.ActiveSlugExists(ctx, "my-slug")
	if err != nil {
		t.Fatalf("ActiveSlugExists (after delete): %v", err)
	}
	if exists {
		t.Fatal("expected soft delete to free the slug")
	}

	if _, ok, err := s.GetActiveTrackingLink(ctx, link.LinkID); err != nil || ok {
		t.Fatalf("expected deleted link to be invisible to active lookup, ok=%v err=%v", ok, err)
	}

	if _, err := s.CreateTrackingLink(ctx, "tag", "my-slug"); err != nil {
		t.Fatalf("CreateTrackingLink (reuse): %v", err)
	}
}
