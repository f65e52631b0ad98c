package cache

import (
	"crypto/sha256"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru"
)

// CachedAudio represents a synthesized clip kept for reuse
type CachedAudio struct {
	Audio     []byte
	Timestamp time.Time
}

// Key generates a cache key from its parts
func Key(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}

// AudioCache is a bounded LRU of synthesized audio keyed by Key
type AudioCache struct {
	entries *lru.Cache
}

// NewAudioCache creates a cache holding at most size clips
func NewAudioCache(size int) (*AudioCache, error) {
	entries, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("failed to create audio cache: %w", err)
	}
	return &AudioCache{entries: entries}, nil
}

// Get returns a cached clip
func (c *AudioCache) Get(key string) ([]byte, bool) {
	val, ok := c.entries.Get(key)
	if !ok {
		return nil, false
	}
	return val.(CachedAudio).Audio, true
}

// Put stores a clip
func (c *AudioCache) Put(key string, audio []byte) {
	c.entries.Add(key, CachedAudio{
		Audio:     audio,
		Timestamp: time.Now(),
	})
}

// Len returns the number of cached clips
func (c *AudioCache) Len() int {
	return c.entries.Len()
}
