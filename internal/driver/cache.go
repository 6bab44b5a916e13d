package driver

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/tliron/commonlog"
	"github.com/vmihailenco/msgpack/v5"

	"decant/internal/diag"
	"decant/internal/report"
	"decant/internal/version"
)

// Current schema version - increment when Payload format changes
const cacheSchemaVersion uint16 = 2

// Key addresses one cached translation.
type Key [32]byte

// CacheKey hashes everything a translation depends on: the source, the
// config fingerprint and the tool version.
func CacheKey(src []byte, fingerprint string) Key {
	h := sha256.New()
	h.Write([]byte(version.Version))
	h.Write([]byte{0})
	h.Write([]byte(fingerprint))
	h.Write([]byte{0})
	h.Write(src)
	var k Key
	copy(k[:], h.Sum(nil))
	return k
}

func (k Key) String() string { return hex.EncodeToString(k[:]) }

// Cache stores translations on disk, keyed by content hash.
// Thread-safe for concurrent access.
type Cache struct {
	mu  sync.RWMutex
	dir string
	log commonlog.Logger
}

// Payload is one cached translation.
type Payload struct {
	// Schema version for safe invalidation when format changes
	Schema uint16

	Path        string
	Rust        string
	Report      *report.AnalysisReport
	Diagnostics []diag.Diagnostic
}

// OpenCache initializes and returns a cache at the standard location.
func OpenCache(app string) (*Cache, error) {
	base := os.Getenv("XDG_CACHE_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		base = filepath.Join(home, ".cache")
	}
	return OpenCacheAt(filepath.Join(base, app))
}

// OpenCacheAt opens a cache rooted at dir.
func OpenCacheAt(dir string) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Cache{dir: dir, log: commonlog.GetLogger("decant.cache")}, nil
}

func (c *Cache) Dir() string { return c.dir }

func (c *Cache) pathFor(key Key) string {
	return filepath.Join(c.dir, "units", key.String()+".mp")
}

func encoder(f *os.File) *msgpack.Encoder {
	enc := msgpack.NewEncoder(f)
	enc.SetCustomStructTag("json")
	return enc
}

func decoder(f *os.File) *msgpack.Decoder {
	dec := msgpack.NewDecoder(f)
	dec.SetCustomStructTag("json")
	return dec
}

// Put serializes and writes a payload to the cache.
func (c *Cache) Put(key Key, payload *Payload) error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	payload.Schema = cacheSchemaVersion
	p := c.pathFor(key)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(filepath.Dir(p), "tmp-*")
	if err != nil {
		return err
	}
	defer func() {
		if rmErr := os.Remove(f.Name()); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			c.log.Warningf("failed to remove temp file: %v", rmErr)
		}
	}()

	if err := encoder(f).Encode(payload); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	// Atomic replace
	if err := os.Rename(f.Name(), p); err != nil {
		return err
	}
	c.log.Debugf("stored %s for %s", key, payload.Path)
	return nil
}

// Get reads and deserializes a payload. A payload of another schema is a
// miss.
func (c *Cache) Get(key Key) (*Payload, bool, error) {
	if c == nil {
		return nil, false, nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	f, err := os.Open(c.pathFor(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer f.Close()
	var out Payload
	if err := decoder(f).Decode(&out); err != nil {
		return nil, false, err
	}
	if out.Schema != cacheSchemaVersion {
		c.log.Infof("schema %d of %s is stale", out.Schema, key)
		return nil, false, nil
	}
	return &out, true, nil
}

// DropAll invalidates the cache, useful after format changes.
func (c *Cache) DropAll() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	old := c.dir + ".old-" + time.Now().Format("20060102150405")
	if err := os.Rename(c.dir, old); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if err := os.RemoveAll(old); err != nil {
		return err
	}
	return os.MkdirAll(c.dir, 0o755)
}
