package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trainfinder/internal/domain"
	"trainfinder/internal/tracking"
)

func setCredentials(t *testing.T) {
	t.Helper()
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
	t.Setenv("NS_API_USERNAME", "user")
	t.Setenv("NS_API_PASSWORD", "secret")
}

func unsetenv(t *testing.T, key string) {
	t.Helper()
	t.Setenv(key, "")
	require.NoError(t, os.Unsetenv(key))
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	setCredentials(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, 5*time.Minute, cfg.RefreshInterval)
	assert.Equal(t, 15*time.Second, cfg.PositionInterval)
	assert.Equal(t, 8*time.Hour, cfg.MaxRideDuration)
	assert.Equal(t, 10*time.Minute, cfg.RideCleanupInterval)
	assert.Equal(t, 60*time.Minute, cfg.StationSkipDuration)
	assert.Equal(t, 60*time.Minute, cfg.StationMaxStaleness)
	assert.Equal(t, 5*time.Minute, cfg.StationLookAhead)
	assert.Equal(t, 10*time.Minute, cfg.FinalDestinationWindow)
	assert.Equal(t, 250.0, cfg.ProjectionRadius)
	assert.Equal(t, 4, cfg.FetchConcurrency)
	assert.Equal(t, 10, cfg.TileZoomLevel)
	assert.Equal(t, 5.0, cfg.NSRequestsPerSecond)
	assert.Equal(t, 5, cfg.NSRequestBurst)
	assert.Equal(t, "NL", cfg.StationFilter.Country)
	require.NotNil(t, cfg.StationFilter.BBox)
	assert.Equal(t, defaultStationFilterBBox, *cfg.StationFilter.BBox)
	assert.Equal(t, tracking.DefaultNearestConfig(), cfg.Nearest)
	assert.False(t, cfg.RedisEnabled)
	assert.Nil(t, cfg.RateLimitWhitelist)
}

func TestLoad_Environment(t *testing.T) {
	setCredentials(t)
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("REFRESH_INTERVAL", "2m")
	t.Setenv("FETCH_CONCURRENCY", "8")
	t.Setenv("PROJECTION_RADIUS", "400.5")
	t.Setenv("REDIS_ENABLED", "true")
	t.Setenv("STATION_FILTER_BBOX", "52.0, 4.5, 52.5, 5.5")
	t.Setenv("STATION_FILTER_COUNTRY", "D")
	t.Setenv("RATE_LIMIT_WHITELIST", "10.0.0.1, ,10.0.0.2")
	t.Setenv("POSITION_INTERVAL", "soon")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.Equal(t, 2*time.Minute, cfg.RefreshInterval)
	assert.Equal(t, 8, cfg.FetchConcurrency)
	assert.Equal(t, 400.5, cfg.ProjectionRadius)
	assert.True(t, cfg.RedisEnabled)
	assert.Equal(t, domain.BoundingBox{MinLat: 52.0, MinLon: 4.5, MaxLat: 52.5, MaxLon: 5.5}, *cfg.StationFilter.BBox)
	assert.Equal(t, "D", cfg.StationFilter.Country)
	assert.Equal(t, []string{"10.0.0.1", "10.0.0.2"}, cfg.RateLimitWhitelist)
	assert.Equal(t, 15*time.Second, cfg.PositionInterval, "unparsable values fall back to the default")
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "missing password", env: map[string]string{"NS_API_PASSWORD": ""}},
		{name: "zero fetch concurrency", env: map[string]string{"FETCH_CONCURRENCY": "0"}},
		{name: "zoom out of range", env: map[string]string{"TILE_ZOOM_LEVEL": "30"}},
		{name: "malformed station url", env: map[string]string{"NS_STATIONS_URL": "not a url"}},
		{name: "inverted station filter", env: map[string]string{"STATION_FILTER_BBOX": "53,6,52,5"}},
		{name: "missing tuning file", env: map[string]string{"CONFIG_FILE": "/nonexistent/tuning.yaml"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setCredentials(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestLoad_TuningFile(t *testing.T) {
	setCredentials(t)
	t.Setenv("CONFIG_FILE", writeFile(t, "tuning.yaml", `
nearest:
  distanceSigma: 1500
  bearingSigma: 30
  positionWeight: 0.5
  bearingWeight: 0.5
stationFilter:
  country: NL
  bbox:
    minLat: 51.9
    minLon: 4.9
    maxLat: 52.2
    maxLon: 5.4
`))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, tracking.NearestConfig{DistanceSigma: 1500, BearingSigma: 30, PositionWeight: 0.5, BearingWeight: 0.5}, cfg.Nearest)
	assert.Equal(t, domain.BoundingBox{MinLat: 51.9, MinLon: 4.9, MaxLat: 52.2, MaxLon: 5.4}, *cfg.StationFilter.BBox)

	t.Run("invalid values are rejected", func(t *testing.T) {
		t.Setenv("CONFIG_FILE", writeFile(t, "tuning.yaml", "nearest:\n  distanceSigma: 0\n  bearingSigma: 30\n"))
		_, err := Load()
		assert.ErrorContains(t, err, "DistanceSigma")
	})

	t.Run("malformed yaml", func(t *testing.T) {
		t.Setenv("CONFIG_FILE", writeFile(t, "tuning.yaml", "nearest: [1, 2"))
		_, err := Load()
		assert.ErrorContains(t, err, "parsing config file")
	})
}

func TestLoad_EnvFile(t *testing.T) {
	setCredentials(t)
	unsetenv(t, "NS_API_USERNAME")
	unsetenv(t, "NS_API_PASSWORD")
	t.Setenv("HTTP_ADDR", ":9000")
	t.Setenv("ENV_FILE", writeFile(t, ".env", "NS_API_USERNAME=fromfile\nNS_API_PASSWORD=filesecret\nHTTP_ADDR=:7000\n"))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "fromfile", cfg.NSUsername)
	assert.Equal(t, "filesecret", cfg.NSPassword)
	assert.Equal(t, ":9000", cfg.HTTPAddr, "the environment wins over the file")
}

func TestGetLogLevelEnv(t *testing.T) {
	tests := []struct {
		value string
		want  slog.Level
	}{
		{value: "", want: slog.LevelWarn},
		{value: "DEBUG", want: slog.LevelDebug},
		{value: "info", want: slog.LevelInfo},
		{value: "warning", want: slog.LevelWarn},
		{value: "error", want: slog.LevelError},
		{value: "loud", want: slog.LevelWarn},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Setenv("TEST_LOG_LEVEL", tt.value)
			assert.Equal(t, tt.want, getLogLevelEnv("TEST_LOG_LEVEL", slog.LevelWarn))
		})
	}
}
