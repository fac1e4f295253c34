package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"trainfinder/internal/domain"
	"trainfinder/internal/repository"
	"trainfinder/internal/tracking"
)

// defaultStationFilterBBox covers the Netherlands
var defaultStationFilterBBox = domain.BoundingBox{
	MinLat: 50.649176, MinLon: 4.58460,
	MaxLat: 51.777160, MaxLon: 6.4139832,
}

type Config struct {
	LogLevel        slog.Level
	HTTPAddr        string        `validate:"required"`
	ReadTimeout     time.Duration `validate:"gt=0"`
	WriteTimeout    time.Duration `validate:"gt=0"`
	ShutdownTimeout time.Duration `validate:"gt=0"`

	NSUsername          string `validate:"required"`
	NSPassword          string `validate:"required"`
	NSStationsURL       string `validate:"omitempty,url"`
	NSDeparturesURL     string `validate:"omitempty,url"`
	NSAdviceURL         string `validate:"omitempty,url"`
	NSTimeout           time.Duration
	NSRequestsPerSecond float64 `validate:"gte=0"`
	NSRequestBurst      int     `validate:"gte=0"`

	MapSource   string `validate:"required"`
	MapCacheDir string

	RefreshInterval        time.Duration `validate:"gt=0"`
	PositionInterval       time.Duration `validate:"gt=0"`
	MaxRideDuration        time.Duration `validate:"gt=0"`
	RideCleanupInterval    time.Duration `validate:"gt=0"`
	StationSkipDuration    time.Duration `validate:"gt=0"`
	StationMaxStaleness    time.Duration `validate:"gt=0"`
	StationLookAhead       time.Duration `validate:"gt=0"`
	FinalDestinationWindow time.Duration `validate:"gt=0"`
	ProjectionRadius       float64       `validate:"gt=0"`
	FetchConcurrency       int           `validate:"gte=1"`
	TileZoomLevel          int           `validate:"gte=1,lte=22"`

	StationFilter repository.StationFilter
	Nearest       tracking.NearestConfig

	RedisEnabled  bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int `validate:"gte=0"`
	CacheTTL      time.Duration

	RateLimitPerWindow int           `validate:"gte=1"`
	RateLimitWindow    time.Duration `validate:"gt=0"`
	RateLimitWhitelist []string
}

// tuning is the optional YAML file named by CONFIG_FILE
type tuning struct {
	Nearest       *tracking.NearestConfig   `yaml:"nearest"`
	StationFilter *repository.StationFilter `yaml:"stationFilter"`
}

// Load reads the configuration from the environment. Variables from the
// ENV_FILE (default .env) fill in what the environment leaves unset, and
// CONFIG_FILE overlays the tuning parameters.
func Load() (*Config, error) {
	envFile := getEnv("ENV_FILE", ".env")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading %s: %w", envFile, err)
	}

	username := os.Getenv("NS_API_USERNAME")
	password := os.Getenv("NS_API_PASSWORD")
	if username == "" || password == "" {
		return nil, fmt.Errorf("NS_API_USERNAME and NS_API_PASSWORD environment variables are required")
	}

	bbox := getBBoxEnv("STATION_FILTER_BBOX", defaultStationFilterBBox)

	cfg := &Config{
		LogLevel:        getLogLevelEnv("LOG_LEVEL", slog.LevelInfo),
		HTTPAddr:        getEnv("HTTP_ADDR", ":8080"),
		ReadTimeout:     getDurationEnv("READ_TIMEOUT", 10*time.Second),
		WriteTimeout:    getDurationEnv("WRITE_TIMEOUT", 10*time.Second),
		ShutdownTimeout: getDurationEnv("SHUTDOWN_TIMEOUT", 30*time.Second),

		NSUsername:          username,
		NSPassword:          password,
		NSStationsURL:       getEnv("NS_STATIONS_URL", ""),
		NSDeparturesURL:     getEnv("NS_DEPARTURES_URL", ""),
		NSAdviceURL:         getEnv("NS_ADVICE_URL", ""),
		NSTimeout:           getDurationEnv("NS_TIMEOUT", 30*time.Second),
		NSRequestsPerSecond: getFloatEnv("NS_REQUESTS_PER_SECOND", 5),
		NSRequestBurst:      getIntEnv("NS_REQUEST_BURST", 5),

		MapSource:   getEnv("MAP_SOURCE", "netherlands-rail.osm.pbf"),
		MapCacheDir: getEnv("MAP_CACHE_DIR", ""),

		RefreshInterval:        getDurationEnv("REFRESH_INTERVAL", 5*time.Minute),
		PositionInterval:       getDurationEnv("POSITION_INTERVAL", 15*time.Second),
		MaxRideDuration:        getDurationEnv("MAX_RIDE_DURATION", 8*time.Hour),
		RideCleanupInterval:    getDurationEnv("RIDE_CLEANUP_INTERVAL", 10*time.Minute),
		StationSkipDuration:    getDurationEnv("STATION_SKIP_DURATION", 60*time.Minute),
		StationMaxStaleness:    getDurationEnv("STATION_MAX_STALENESS", 60*time.Minute),
		StationLookAhead:       getDurationEnv("STATION_LOOK_AHEAD", 5*time.Minute),
		FinalDestinationWindow: getDurationEnv("FINAL_DESTINATION_WINDOW", 10*time.Minute),
		ProjectionRadius:       getFloatEnv("PROJECTION_RADIUS", 250),
		FetchConcurrency:       getIntEnv("FETCH_CONCURRENCY", 4),
		TileZoomLevel:          getIntEnv("TILE_ZOOM_LEVEL", 10),

		StationFilter: repository.StationFilter{
			BBox:    &bbox,
			Country: getEnv("STATION_FILTER_COUNTRY", "NL"),
		},
		Nearest: tracking.DefaultNearestConfig(),

		RedisEnabled:  getBoolEnv("REDIS_ENABLED", false),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getIntEnv("REDIS_DB", 0),
		CacheTTL:      getDurationEnv("CACHE_TTL", 24*time.Hour),

		RateLimitPerWindow: getIntEnv("RATE_LIMIT_PER_WINDOW", 120),
		RateLimitWindow:    getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),
		RateLimitWhitelist: getCSVEnv("RATE_LIMIT_WHITELIST"),
	}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.applyTuningFile(path); err != nil {
			return nil, err
		}
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyTuningFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}

	var t tuning
	if err := yaml.Unmarshal(data, &t); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if t.Nearest != nil {
		c.Nearest = *t.Nearest
	}
	if t.StationFilter != nil {
		c.StationFilter = *t.StationFilter
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getDurationEnv(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}

func getIntEnv(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func getFloatEnv(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getBoolEnv(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}

// getBBoxEnv reads "minLat,minLon,maxLat,maxLon"
func getBBoxEnv(key string, defaultVal domain.BoundingBox) domain.BoundingBox {
	parts := getCSVEnv(key)
	if len(parts) != 4 {
		return defaultVal
	}
	var values [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return defaultVal
		}
		values[i] = f
	}
	return domain.BoundingBox{
		MinLat: values[0], MinLon: values[1],
		MaxLat: values[2], MaxLon: values[3],
	}
}

func getLogLevelEnv(key string, defaultVal slog.Level) slog.Level {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}

	switch strings.ToLower(v) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return defaultVal
	}
}

func getCSVEnv(key string) []string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}

	parts := strings.Split(v, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			result = append(result, t)
		}
	}
	return result
}
