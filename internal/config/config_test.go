package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("BOT_TOKEN", "123:abc")
	t.Setenv("BOT_NAME", "EmojiPackBot")
}

func TestLoadDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.EmojiQueueWorkers != 2 {
		t.Fatalf("EmojiQueueWorkers = %d, want 2", cfg.EmojiQueueWorkers)
	}
	if cfg.EmojiGridDefault != "1x1" {
		t.Fatalf("EmojiGridDefault = %q, want 1x1", cfg.EmojiGridDefault)
	}
	if cfg.LogLevel != LogInfo {
		t.Fatalf("LogLevel = %q, want INFO", cfg.LogLevel)
	}
}

func TestLoadRejectsMissingBotToken(t *testing.T) {
	t.Setenv("BOT_TOKEN", "")
	t.Setenv("BOT_NAME", "EmojiPackBot")

	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "bot_token") {
		t.Fatalf("expected bot_token error, got %v", err)
	}
}

func TestLoadValidatesRanges(t *testing.T) {
	cases := []struct {
		key, value, wantSubstr string
	}{
		{"TEMP_RETENTION_MINUTES", "0", "temp_retention_minutes"},
		{"TEMP_RETENTION_MINUTES", "200", "temp_retention_minutes"},
		{"EMOJI_PADDING_DEFAULT", "9", "emoji_padding_default"},
		{"EMOJI_QUEUE_WORKERS", "12", "emoji_queue_workers"},
		{"EMOJI_TILE_SIZE", "16", "emoji_tile_size"},
		{"LOG_LEVEL", "TRACE", "log_level"},
	}
	for _, tc := range cases {
		t.Run(tc.key+"="+tc.value, func(t *testing.T) {
			setRequiredEnv(t)
			t.Setenv(tc.key, tc.value)
			if _, err := Load(); err == nil || !strings.Contains(err.Error(), tc.wantSubstr) {
				t.Fatalf("expected %q error, got %v", tc.wantSubstr, err)
			}
		})
	}
}

func TestParseAdminUserIDsMixedSeparators(t *testing.T) {
	ids, err := parseAdminUserIDs("1, 2;3 4")
	if err != nil {
		t.Fatalf("parseAdminUserIDs: %v", err)
	}
	want := []int64{1, 2, 3, 4}
	if len(ids) != len(want) {
		t.Fatalf("got %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("got %v, want %v", ids, want)
		}
	}
}

func TestParseAdminUserIDsRejectsGarbage(t *testing.T) {
	if _, err := parseAdminUserIDs("1,notanumber"); err == nil {
		t.Fatal("expected error for non-integer entry")
	}
}

func TestYAMLOverlayThenEnvWins(t *testing.T) {
	setRequiredEnv(t)

	dir := t.TempDir()
	settings := filepath.Join(dir, "settings.yaml")
	body := "emoji_queue_workers: 4\nemoji_tile_size: 128\n"
	if err := os.WriteFile(settings, []byte(body), 0o644); err != nil {
		t.Fatalf("write settings: %v", err)
	}
	t.Setenv("SETTINGS_FILE", settings)
	t.Setenv("EMOJI_TILE_SIZE", "256")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.EmojiQueueWorkers != 4 {
		t.Fatalf("EmojiQueueWorkers = %d, want YAML value 4", cfg.EmojiQueueWorkers)
	}
	if cfg.EmojiTileSize != 256 {
		t.Fatalf("EmojiTileSize = %d, want env override 256", cfg.EmojiTileSize)
	}
}

func TestBotTokenFileFallback(t *testing.T) {
	dir := t.TempDir()
	tokenFile := filepath.Join(dir, "token")
	if err := os.WriteFile(tokenFile, []byte("987:xyz\n"), 0o600); err != nil {
		t.Fatalf("write token: %v", err)
	}
	t.Setenv("BOT_TOKEN", "")
	t.Setenv("BOT_TOKEN_FILE", tokenFile)
	t.Setenv("BOT_NAME", "EmojiPackBot")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.BotToken != "987:xyz" {
		t.Fatalf("BotToken = %q, want trimmed file contents", cfg.BotToken)
	}
}
