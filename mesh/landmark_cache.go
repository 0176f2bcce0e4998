package mesh

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultLandmarkCachePath is the default path for the final landmark cache
const DefaultLandmarkCachePath = ".landmark-cache.json"

// LandmarkCache is the on-disk form of a landmark run.
type LandmarkCache struct {
	Landmarks   []*FinalLandmark `json:"landmarks"`
	Frames      int              `json:"frames"`
	LastUpdated int64            `json:"lastUpdated"`
}

// LoadLandmarks loads final landmarks from a JSON cache file.
// Returns nil, nil when the cache does not exist yet.
func LoadLandmarks(path string) (*LandmarkCache, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil // No cache yet
		}
		return nil, fmt.Errorf("reading landmark cache: %w", err)
	}

	var cache LandmarkCache
	if err := json.Unmarshal(data, &cache); err != nil {
		return nil, fmt.Errorf("parsing landmark cache: %w", err)
	}

	for i, l := range cache.Landmarks {
		if l == nil {
			return nil, fmt.Errorf("landmark cache entry %d is null", i)
		}
		l.ID = i
	}

	return &cache, nil
}

// SaveLandmarks saves final landmarks to a JSON cache file
func SaveLandmarks(path string, cache *LandmarkCache) error {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating landmark cache directory: %w", err)
	}

	cache.LastUpdated = time.Now().Unix()

	data, err := json.MarshalIndent(cache, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling landmark cache: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing landmark cache: %w", err)
	}

	return nil
}
