package nav

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultHeadingCachePath is the default path for the heading offset cache
const DefaultHeadingCachePath = ".heading-cache.json"

// HeadingCache persists the last committed heading offset between runs so
// guidance is corrected before the user has walked a straight line.
type HeadingCache struct {
	Offset      float64 `json:"offset"` // radians
	LastUpdated int64   `json:"lastUpdated"`
}

// LoadHeadingCache loads the heading offset cache. A missing file is not an
// error and returns nil.
func LoadHeadingCache(path string) (*HeadingCache, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil // No cache yet
		}
		return nil, fmt.Errorf("reading heading cache: %w", err)
	}

	var hc HeadingCache
	if err := json.Unmarshal(data, &hc); err != nil {
		return nil, fmt.Errorf("parsing heading cache: %w", err)
	}

	return &hc, nil
}

// SaveHeadingCache writes the heading offset cache, creating the directory
// if needed.
func SaveHeadingCache(path string, hc *HeadingCache) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating heading cache directory: %w", err)
	}

	hc.LastUpdated = time.Now().Unix()

	data, err := json.MarshalIndent(hc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling heading cache: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing heading cache: %w", err)
	}

	return nil
}

// Age returns how long ago the cache was written.
func (hc *HeadingCache) Age() time.Duration {
	if hc == nil || hc.LastUpdated == 0 {
		return time.Duration(1<<63 - 1)
	}
	return time.Since(time.Unix(hc.LastUpdated, 0))
}

// RestoreHeadingOffset seeds the core from the cache at path, ignoring
// entries older than maxAge. It reports whether an offset was applied.
func RestoreHeadingOffset(core *Core, path string, maxAge time.Duration) (bool, error) {
	hc, err := LoadHeadingCache(path)
	if err != nil || hc == nil {
		return false, err
	}
	if maxAge > 0 && hc.Age() > maxAge {
		Logf("[HEADING] Ignoring heading cache from %v ago", hc.Age().Round(time.Second))
		return false, nil
	}
	core.SetHeadingOffset(hc.Offset)
	return true, nil
}

// PersistHeadingOffset writes the core's current offset to path.
func PersistHeadingOffset(core *Core, path string) error {
	return SaveHeadingCache(path, &HeadingCache{Offset: core.HeadingOffset()})
}
