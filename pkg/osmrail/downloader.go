package osmrail

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// IsRemote reports whether a map source has to be downloaded first
func IsRemote(source string) bool {
	return strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://")
}

type Downloader struct {
	url    string
	client *http.Client
	logger *slog.Logger
}

func NewDownloader(url string, logger *slog.Logger) *Downloader {
	return &Downloader{
		url: url,
		client: &http.Client{
			Timeout: 30 * time.Minute,
		},
		logger: logger.With("component", "map_downloader"),
	}
}

// Download streams the map into dir and returns the file path. The file keeps
// the extension of the URL so the format can be detected. A copy already in
// dir is reused when the server reports it unchanged.
func (d *Downloader) Download(ctx context.Context, dir string) (string, error) {
	start := time.Now()
	d.logger.Info("starting map download", "url", d.url)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.url, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "trainfinder/1.0")

	name := "map.osm"
	if FormatFromPath(req.URL.Path) == FormatPBF {
		name = "map.osm.pbf"
	}
	path := filepath.Join(dir, name)
	if info, err := os.Stat(path); err == nil {
		req.Header.Set("If-Modified-Since", info.ModTime().UTC().Format(http.TimeFormat))
	}

	resp, err := d.client.Do(req)
	if err != nil {
		d.logger.Error("failed to download map",
			"error", err,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return "", fmt.Errorf("download map: %w", err)
	}
	defer resp.Body.Close()

	d.logger.Debug("received HTTP response",
		"status_code", resp.StatusCode,
		"content_length", resp.ContentLength,
		"content_type", resp.Header.Get("Content-Type"),
	)

	if resp.StatusCode == http.StatusNotModified {
		d.logger.Info("map unchanged since last download", "path", path)
		return path, nil
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	tmpPath := path + ".tmp"

	f, err := os.Create(tmpPath)
	if err != nil {
		return "", err
	}
	size, copyErr := io.Copy(f, resp.Body)
	closeErr := f.Close()
	if copyErr != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("read body: %w", copyErr)
	}
	if closeErr != nil {
		_ = os.Remove(tmpPath)
		return "", closeErr
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return "", err
	}

	d.logger.Info("map download completed",
		"path", path,
		"size_mb", fmt.Sprintf("%.2f", float64(size)/(1024*1024)),
		"total_duration_ms", time.Since(start).Milliseconds(),
	)
	return path, nil
}
