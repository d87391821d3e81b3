package speech

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"sync"

	"github.com/hammamikhairi/omnis/internal/logger"
)

// AudioCache keeps synthesized clips in memory and optionally on disk.
// Keys are sha256(voice + ":" + text), so switching voices misses until
// the voice is switched back.
//
// The kiosk runs for days and greets by name, so the memory tier is
// bounded: once maxEntries is reached the oldest entry is evicted. The
// disk tier is unbounded and is always read, even with writes disabled.
type AudioCache struct {
	log        *logger.Logger
	voice      string
	dir        string
	diskWrite  bool
	maxEntries int

	mu      sync.Mutex
	entries map[string][]byte
	order   []string // insertion order, oldest first
	hits    int64
	misses  int64
}

// CacheOption configures the audio cache.
type CacheOption func(*AudioCache)

// WithCacheDisk enables the disk tier under dir. write controls whether
// new clips are persisted; existing files are read either way.
func WithCacheDisk(dir string, write bool) CacheOption {
	return func(c *AudioCache) {
		c.dir = dir
		c.diskWrite = write
	}
}

// WithCacheEntries bounds the memory tier.
func WithCacheEntries(n int) CacheOption {
	return func(c *AudioCache) {
		c.maxEntries = n
	}
}

// NewAudioCache creates a cache for clips spoken in voice.
func NewAudioCache(voice string, log *logger.Logger, opts ...CacheOption) *AudioCache {
	c := &AudioCache{
		log:        log,
		voice:      voice,
		maxEntries: 256,
		entries:    make(map[string][]byte),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.dir != "" && c.diskWrite {
		if err := os.MkdirAll(c.dir, 0o755); err != nil {
			log.Error("cache: creating %s: %v", c.dir, err)
		}
	}
	return c
}

// Get returns the clip for text, checking memory then disk.
func (c *AudioCache) Get(text string) ([]byte, bool) {
	key := c.key(text)

	c.mu.Lock()
	data, ok := c.entries[key]
	if ok {
		c.hits++
	}
	c.mu.Unlock()
	if ok {
		c.log.Debug("cache hit (mem): %s", truncate(text, 40))
		return data, true
	}

	if c.dir != "" {
		if data, err := os.ReadFile(c.path(key)); err == nil {
			c.mu.Lock()
			c.hits++
			c.storeLocked(key, data)
			c.mu.Unlock()
			c.log.Debug("cache hit (disk): %s", truncate(text, 40))
			return data, true
		}
	}

	c.mu.Lock()
	c.misses++
	c.mu.Unlock()
	return nil, false
}

// Put stores a clip in memory and, when enabled, on disk.
func (c *AudioCache) Put(text string, audio []byte) {
	key := c.key(text)

	c.mu.Lock()
	c.storeLocked(key, audio)
	c.mu.Unlock()

	if c.dir != "" && c.diskWrite {
		if err := os.WriteFile(c.path(key), audio, 0o644); err != nil {
			c.log.Error("cache: disk write %s: %v", key[:12], err)
		}
	}
}

// Has reports whether text is cached in either tier.
func (c *AudioCache) Has(text string) bool {
	key := c.key(text)
	c.mu.Lock()
	_, ok := c.entries[key]
	c.mu.Unlock()
	if ok {
		return true
	}
	if c.dir == "" {
		return false
	}
	_, err := os.Stat(c.path(key))
	return err == nil
}

// Len returns the number of clips held in memory.
func (c *AudioCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns hit and miss counts.
func (c *AudioCache) Stats() (hits, misses int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

func (c *AudioCache) storeLocked(key string, audio []byte) {
	if _, exists := c.entries[key]; !exists {
		c.order = append(c.order, key)
	}
	c.entries[key] = audio
	for c.maxEntries > 0 && len(c.order) > c.maxEntries {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
}

func (c *AudioCache) key(text string) string {
	h := sha256.Sum256([]byte(c.voice + ":" + text))
	return hex.EncodeToString(h[:])
}

func (c *AudioCache) path(key string) string {
	return filepath.Join(c.dir, key+".wav")
}
