// Package config loads the service's environment-derived configuration
// surface, optionally overlaid by a YAML settings file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// LogLevel is a closed enumeration of the accepted log_level values.
type LogLevel string

const (
	LogDebug   LogLevel = "DEBUG"
	LogInfo    LogLevel = "INFO"
	LogWarning LogLevel = "WARNING"
	LogError   LogLevel = "ERROR"
)

// Config is the fully resolved runtime configuration surface.
type Config struct {
	StoragePath          string `yaml:"storage_path"`
	TempDir              string `yaml:"temp_dir"`
	TempRetentionMinutes int    `yaml:"temp_retention_minutes"`

	EmojiPaddingDefault int    `yaml:"emoji_padding_default"`
	EmojiGridDefault    string `yaml:"emoji_grid_default"`
	EmojiQueueWorkers   int    `yaml:"emoji_queue_workers"`
	EmojiMaxTiles       int    `yaml:"emoji_max_tiles"`
	EmojiCreationLimit  int    `yaml:"emoji_creation_limit"`
	EmojiTileSize       int    `yaml:"emoji_tile_size"`
	EmojiGridTileCap    int    `yaml:"emoji_grid_tile_cap"`

	AdminUserIDs []int64  `yaml:"-"`
	LogLevel     LogLevel `yaml:"log_level"`

	BotToken            string `yaml:"bot_token"`
	BotTokenFile        string `yaml:"bot_token_file"`
	BotName             string `yaml:"bot_name"`
	FragmentPreviewHost string `yaml:"fragment_preview_host"`
	TrackingHost        string `yaml:"tracking_host"`

	HTTPAddr string `yaml:"http_addr"`

	adminUserIDsRaw string
}

// overlay mirrors the on-disk YAML shape; only fields present there are applied.
type overlay struct {
	StoragePath          *string `yaml:"storage_path"`
	TempDir              *string `yaml:"temp_dir"`
	TempRetentionMinutes *int    `yaml:"temp_retention_minutes"`
	EmojiPaddingDefault  *int    `yaml:"emoji_padding_default"`
	EmojiGridDefault     *string `yaml:"emoji_grid_default"`
	EmojiQueueWorkers    *int    `yaml:"emoji_queue_workers"`
	EmojiMaxTiles        *int    `yaml:"emoji_max_tiles"`
	EmojiCreationLimit   *int    `yaml:"emoji_creation_limit"`
	EmojiTileSize        *int    `yaml:"emoji_tile_size"`
	EmojiGridTileCap     *int    `yaml:"emoji_grid_tile_cap"`
	AdminUserIDs         *string `yaml:"admin_user_ids"`
	LogLevel             *string `yaml:"log_level"`
	BotToken             *string `yaml:"bot_token"`
	BotTokenFile         *string `yaml:"bot_token_file"`
	BotName              *string `yaml:"bot_name"`
	FragmentPreviewHost  *string `yaml:"fragment_preview_host"`
	TrackingHost         *string `yaml:"tracking_host"`
	HTTPAddr             *string `yaml:"http_addr"`
}

// Load resolves configuration from a YAML overlay (if settings_file / SETTINGS_FILE
// points at one) and then the environment, with environment values taking
// precedence.
func Load() (Config, error) {
	cfg := Config{
		StoragePath:          "data/emojibot.sqlite",
		TempDir:              "data/tmp",
		TempRetentionMinutes: 30,
		EmojiPaddingDefault:  1,
		EmojiGridDefault:     "1x1",
		EmojiQueueWorkers:    2,
		EmojiMaxTiles:        25,
		EmojiCreationLimit:   25,
		EmojiTileSize:        100,
		EmojiGridTileCap:     0,
		LogLevel:             LogInfo,
		HTTPAddr:             ":8080",
	}

	if path := strings.TrimSpace(env("SETTINGS_FILE", "")); path != "" {
		if err := applyYAMLOverlay(&cfg, path); err != nil {
			return Config{}, fmt.Errorf("settings_file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := validate(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyYAMLOverlay(cfg *Config, path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var ov overlay
	if err := yaml.Unmarshal(b, &ov); err != nil {
		return err
	}
	if ov.StoragePath != nil {
		cfg.StoragePath = *ov.StoragePath
	}
	if ov.TempDir != nil {
		cfg.TempDir = *ov.TempDir
	}
	if ov.TempRetentionMinutes != nil {
		cfg.TempRetentionMinutes = *ov.TempRetentionMinutes
	}
	if ov.EmojiPaddingDefault != nil {
		cfg.EmojiPaddingDefault = *ov.EmojiPaddingDefault
	}
	if ov.EmojiGridDefault != nil {
		cfg.EmojiGridDefault = *ov.EmojiGridDefault
	}
	if ov.EmojiQueueWorkers != nil {
		cfg.EmojiQueueWorkers = *ov.EmojiQueueWorkers
	}
	if ov.EmojiMaxTiles != nil {
		cfg.EmojiMaxTiles = *ov.EmojiMaxTiles
	}
	if ov.EmojiCreationLimit != nil {
		cfg.EmojiCreationLimit = *ov.EmojiCreationLimit
	}
	if ov.EmojiTileSize != nil {
		cfg.EmojiTileSize = *ov.EmojiTileSize
	}
	if ov.EmojiGridTileCap != nil {
		cfg.EmojiGridTileCap = *ov.EmojiGridTileCap
	}
	if ov.AdminUserIDs != nil {
		cfg.adminUserIDsRaw = *ov.AdminUserIDs
	}
	if ov.LogLevel != nil {
		cfg.LogLevel = LogLevel(strings.ToUpper(*ov.LogLevel))
	}
	if ov.BotToken != nil {
		cfg.BotToken = *ov.BotToken
	}
	if ov.BotTokenFile != nil {
		cfg.BotTokenFile = *ov.BotTokenFile
	}
	if ov.BotName != nil {
		cfg.BotName = *ov.BotName
	}
	if ov.FragmentPreviewHost != nil {
		cfg.FragmentPreviewHost = *ov.FragmentPreviewHost
	}
	if ov.TrackingHost != nil {
		cfg.TrackingHost = *ov.TrackingHost
	}
	if ov.HTTPAddr != nil {
		cfg.HTTPAddr = *ov.HTTPAddr
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	cfg.StoragePath = env("STORAGE_PATH", cfg.StoragePath)
	cfg.TempDir = env("TEMP_DIR", cfg.TempDir)
	cfg.TempRetentionMinutes = envInt("TEMP_RETENTION_MINUTES", cfg.TempRetentionMinutes)
	cfg.EmojiPaddingDefault = envInt("EMOJI_PADDING_DEFAULT", cfg.EmojiPaddingDefault)
	cfg.EmojiGridDefault = env("EMOJI_GRID_DEFAULT", cfg.EmojiGridDefault)
	cfg.EmojiQueueWorkers = envInt("EMOJI_QUEUE_WORKERS", cfg.EmojiQueueWorkers)
	cfg.EmojiMaxTiles = envInt("EMOJI_MAX_TILES", cfg.EmojiMaxTiles)
	cfg.EmojiCreationLimit = envInt("EMOJI_CREATION_LIMIT", cfg.EmojiCreationLimit)
	cfg.EmojiTileSize = envInt("EMOJI_TILE_SIZE", cfg.EmojiTileSize)
	cfg.EmojiGridTileCap = envInt("EMOJI_GRID_TILE_CAP", cfg.EmojiGridTileCap)
	cfg.adminUserIDsRaw = env("ADMIN_USER_IDS", cfg.adminUserIDsRaw)
	cfg.LogLevel = LogLevel(strings.ToUpper(env("LOG_LEVEL", string(cfg.LogLevel))))
	cfg.BotToken = env("BOT_TOKEN", cfg.BotToken)
	cfg.BotTokenFile = env("BOT_TOKEN_FILE", cfg.BotTokenFile)
	cfg.BotName = env("BOT_NAME", cfg.BotName)
	cfg.FragmentPreviewHost = env("FRAGMENT_PREVIEW_HOST", cfg.FragmentPreviewHost)
	cfg.TrackingHost = env("TRACKING_HOST", cfg.TrackingHost)
	cfg.HTTPAddr = env("HTTP_ADDR", cfg.HTTPAddr)

	ids, err := parseAdminUserIDs(cfg.adminUserIDsRaw)
	if err == nil {
		cfg.AdminUserIDs = ids
	}

	if cfg.BotToken == "" && cfg.BotTokenFile != "" {
		if b, err := os.ReadFile(cfg.BotTokenFile); err == nil {
			cfg.BotToken = strings.TrimSpace(string(b))
		}
	}
}

func parseAdminUserIDs(raw string) ([]int64, error) {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ';' || r == ' ' || r == '\t'
	})
	ids := make([]int64, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		n, err := strconv.ParseInt(f, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("admin_user_ids: invalid entry %q: %w", f, err)
		}
		ids = append(ids, n)
	}
	return ids, nil
}

func validate(cfg *Config) error {
	if strings.TrimSpace(cfg.StoragePath) == "" {
		return errors.New("missing storage_path")
	}
	if strings.TrimSpace(cfg.TempDir) == "" {
		return errors.New("missing temp_dir")
	}
	if cfg.TempRetentionMinutes < 1 || cfg.TempRetentionMinutes > 120 {
		return errors.New("temp_retention_minutes must be in 1..120")
	}
	if cfg.EmojiPaddingDefault < 0 || cfg.EmojiPaddingDefault > 5 {
		return errors.New("emoji_padding_default must be in 0..5")
	}
	if cfg.EmojiQueueWorkers < 1 || cfg.EmojiQueueWorkers > 8 {
		return errors.New("emoji_queue_workers must be in 1..8")
	}
	if cfg.EmojiTileSize < 64 || cfg.EmojiTileSize > 512 {
		return errors.New("emoji_tile_size must be in 64..512")
	}
	if cfg.EmojiMaxTiles < 1 {
		return errors.New("emoji_max_tiles must be positive")
	}
	if cfg.EmojiCreationLimit < 1 {
		return errors.New("emoji_creation_limit must be positive")
	}
	switch cfg.LogLevel {
	case LogDebug, LogInfo, LogWarning, LogError:
	default:
		return fmt.Errorf("invalid log_level %q", cfg.LogLevel)
	}
	if strings.TrimSpace(cfg.BotToken) == "" {
		return errors.New("missing bot_token or bot_token_file")
	}
	if strings.TrimSpace(cfg.BotName) == "" {
		return errors.New("missing bot_name")
	}
	return nil
}

func env(key, def string) string {
	if v := os.Getenv(key); strings.TrimSpace(v) != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
