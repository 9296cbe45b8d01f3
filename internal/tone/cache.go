package tone

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
)

// ComputeFunc runs the expensive tone analysis for a reference text.
type ComputeFunc func(ctx context.Context, referenceText string) (Profile, error)

// diskRecord is the persisted cache entry, one file per content hash.
type diskRecord struct {
	FileHash string  `json:"file_hash"`
	Profile  Profile `json:"profile"`
}

// Cache is a two-tier profile cache: an in-process map in front of one JSON
// file per content hash under the cache directory.
type Cache struct {
	dir    string
	logger *log.Logger

	mu     sync.RWMutex
	byHash map[string]Profile
}

// NewCache creates the cache directory if needed.
func NewCache(dir string, logger *log.Logger) (*Cache, error) {
	if dir == "" {
		dir = filepath.Join(".cache", "tone_profiles")
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[TONE] ", log.LstdFlags)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create tone cache dir: %w", err)
	}
	return &Cache{dir: dir, logger: logger, byHash: make(map[string]Profile)}, nil
}

// GetOrCompute returns the profile for the reference text, computing and
// caching it on first sight of this exact content. A failed or invalid
// computation is returned as an error and never cached.
func (c *Cache) GetOrCompute(ctx context.Context, referenceText string, compute ComputeFunc) (Profile, error) {
	hash := Hash(referenceText)

	c.mu.RLock()
	profile, ok := c.byHash[hash]
	c.mu.RUnlock()
	if ok {
		return profile, nil
	}

	if profile, ok := c.loadDisk(hash); ok {
		c.mu.Lock()
		c.byHash[hash] = profile
		c.mu.Unlock()
		return profile, nil
	}

	profile, err := compute(ctx, referenceText)
	if err != nil {
		return Profile{}, fmt.Errorf("tone analysis: %w", err)
	}
	if err := profile.Validate(); err != nil {
		return Profile{}, err
	}

	if err := c.storeDisk(hash, profile); err != nil {
		// A write failure degrades the cache but the profile is still good.
		c.logger.Printf("WARN: persist tone profile %s: %v", hash[:12], err)
	}
	c.mu.Lock()
	c.byHash[hash] = profile
	c.mu.Unlock()
	return profile, nil
}

// loadDisk reads one persisted record. The stored hash must match the file's
// key hash and the profile must validate, otherwise the record is ignored.
func (c *Cache) loadDisk(hash string) (Profile, bool) {
	data, err := os.ReadFile(c.path(hash))
	if err != nil {
		return Profile{}, false
	}
	var rec diskRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		c.logger.Printf("WARN: corrupt tone cache record %s: %v", hash[:12], err)
		return Profile{}, false
	}
	if rec.FileHash != hash {
		c.logger.Printf("WARN: tone cache record %s has mismatched hash, ignoring", hash[:12])
		return Profile{}, false
	}
	if err := rec.Profile.Validate(); err != nil {
		c.logger.Printf("WARN: tone cache record %s failed validation: %v", hash[:12], err)
		return Profile{}, false
	}
	return rec.Profile, true
}

func (c *Cache) storeDisk(hash string, profile Profile) error {
	data, err := json.MarshalIndent(diskRecord{FileHash: hash, Profile: profile}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(c.path(hash), data, 0o644)
}

func (c *Cache) path(hash string) string {
	return filepath.Join(c.dir, hash+".json")
}

// Clear drops all in-memory profiles and, when dropDisk is set, deletes every
// persisted record as well.
func (c *Cache) Clear(dropDisk bool) error {
	c.mu.Lock()
	c.byHash = make(map[string]Profile)
	c.mu.Unlock()

	if !dropDisk {
		return nil
	}
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read tone cache dir: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		if err := os.Remove(filepath.Join(c.dir, e.Name())); err != nil {
			return fmt.Errorf("remove tone cache record: %w", err)
		}
	}
	return nil
}
