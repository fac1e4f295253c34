package osmrail

import (
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"
)

// cacheVersion is bumped whenever ParseResult changes shape
const cacheVersion = 1

var ErrCacheMiss = errors.New("parsed map not cached")

// ParseCache keeps parsed extracts on disk as gzip-compressed gob files,
// one per extract fingerprint.
type ParseCache struct {
	dir string
}

// NewParseCache uses dir, or a directory under os.TempDir when dir is empty
func NewParseCache(dir string) *ParseCache {
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "trainfinder-map-cache")
	}
	return &ParseCache{dir: dir}
}

func (c *ParseCache) Dir() string { return c.dir }

func (c *ParseCache) path(fingerprint string) string {
	return filepath.Join(c.dir, fmt.Sprintf("rail_v%d_%s.gob.gz", cacheVersion, fingerprint))
}

// Fingerprint returns the hex SHA-256 of a file's contents
func Fingerprint(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hashing %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Load returns the cached result for fingerprint, or ErrCacheMiss
func (c *ParseCache) Load(fingerprint string) (*ParseResult, error) {
	f, err := os.Open(c.path(fingerprint))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	zr, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("opening cached map: %w", err)
	}
	defer zr.Close()

	var result ParseResult
	if err := gob.NewDecoder(zr).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding cached map: %w", err)
	}
	if len(result.Nodes) == 0 || len(result.Ways) == 0 {
		return nil, fmt.Errorf("cached map %s has no tracks", fingerprint)
	}
	return &result, nil
}

// Save writes result through a temporary file so a crash never leaves a
// truncated cache entry behind. It returns the final path.
func (c *ParseCache) Save(fingerprint string, result *ParseResult) (string, error) {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return "", err
	}

	final := c.path(fingerprint)
	tmp, err := os.CreateTemp(c.dir, filepath.Base(final)+".*.tmp")
	if err != nil {
		return "", err
	}
	if err := writeGob(tmp, result); err != nil {
		_ = os.Remove(tmp.Name())
		return "", err
	}
	if err := os.Rename(tmp.Name(), final); err != nil {
		_ = os.Remove(tmp.Name())
		return "", err
	}
	return final, nil
}

func writeGob(f *os.File, result *ParseResult) error {
	zw, err := gzip.NewWriterLevel(f, gzip.BestSpeed)
	if err != nil {
		f.Close()
		return err
	}
	return errors.Join(
		gob.NewEncoder(zw).Encode(result),
		zw.Close(),
		f.Close(),
	)
}
