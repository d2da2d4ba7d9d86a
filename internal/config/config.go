package config

import (
	"os"
	"path/filepath"
	"strconv"
)

// Config holds the base server configuration.
type Config struct {
	Host        string
	AppHTTPPort string
	MSHTTPPort  string

	DataDir    string
	PublicDir  string
	LogDir     string
	ConfigFile string

	SQLiteDBPath string

	MediaProvider string

	// Music Assistant provider settings.
	MAHost                   string
	MAPort                   string
	MAIconHost               string
	MAIconPort               string
	MARadioTTLSeconds        int
	MARadioDetailCount       int
	MAPageSize               int
	MAPlaylistRefreshSeconds int
	MAFavoritesName          string

	// URL base handed to the miniserver for alert/TTS media.
	AlertsHost string
	AlertsPort string

	LogLevel   string
	LogService string
}

// Load reads configuration from environment variables with defaults.
func Load() (Config, error) {
	dataDir := envString("DATA_DIR", "./data")

	configFile := envString("CONFIG_FILE", "")
	if configFile == "" {
		configDir := envString("CONFIG_DIR", dataDir)
		configFile = filepath.Join(configDir, "config.json")
	}

	maHost := envString("MA_HOST", "")

	cfg := Config{
		Host:        envString("HOST", "0.0.0.0"),
		AppHTTPPort: envString("APP_HTTP_PORT", "7091"),
		MSHTTPPort:  envString("MS_HTTP_PORT", "7095"),

		DataDir:    dataDir,
		PublicDir:  envString("PUBLIC_DIR", "./public"),
		LogDir:     envString("LOG_DIR", "./log"),
		ConfigFile: configFile,

		SQLiteDBPath: envString("SQLITE_DB_PATH", filepath.Join(dataDir, "audioserver.db")),

		MediaProvider: envString("MEDIA_PROVIDER", "musicassistant"),

		MAHost:                   maHost,
		MAPort:                   envString("MA_PORT", "8095"),
		MAIconHost:               envString("MA_ICON_HOST", maHost),
		MAIconPort:               envString("MA_ICON_PORT", "8095"),
		MARadioTTLSeconds:        envInt("MA_RADIO_TTL_SECONDS", 30),
		MARadioDetailCount:       envInt("MA_RADIO_DETAIL_COUNT", 10),
		MAPageSize:               envInt("MA_PAGE_SIZE", 50),
		MAPlaylistRefreshSeconds: envInt("MA_PLAYLIST_REFRESH_SECONDS", 300),
		MAFavoritesName:          envString("MA_FAVORITES_NAME", "Favorites"),

		AlertsHost: envString("ALERTS_HOST", ""),
		AlertsPort: envString("ALERTS_PORT", "7091"),

		LogLevel:   envString("LOG_LEVEL", "info"),
		LogService: envString("LOG_SERVICE", "audioserver"),
	}

	return cfg, nil
}

// FavoritesDir is where per-zone favorites files live.
func (c Config) FavoritesDir() string {
	return filepath.Join(c.DataDir, "favorites")
}

// AlertsDir is the public root for alert media.
func (c Config) AlertsDir() string {
	return filepath.Join(c.PublicDir, "alerts")
}

func envString(key, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

func envInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

