// Package modelcache keeps trained forests as gzip-compressed files on disk
// with an in-memory read cache in front.
package modelcache

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/peterbourgon/diskv"

	"github.com/ayusman/mudra/internal/forest"
)

// ErrMiss is returned when no model is cached for a kind.
var ErrMiss = errors.New("model cache miss")

// DefaultCacheBytes bounds the in-memory copy of recently read files.
const DefaultCacheBytes = 16 << 20

const metaSuffix = ".meta"

// Entry describes a cached model.
type Entry struct {
	Kind     string    `json:"kind"`
	Schema   string    `json:"schema"`
	Accuracy float64   `json:"accuracy"`
	Samples  int       `json:"samples"`
	SavedAt  time.Time `json:"saved_at"`
}

// Cache stores one serialized forest per kind under a directory.
type Cache struct {
	d *diskv.Diskv
}

// New opens a cache rooted at dir. cacheBytes of zero selects DefaultCacheBytes.
func New(dir string, cacheBytes uint64) *Cache {
	if cacheBytes == 0 {
		cacheBytes = DefaultCacheBytes
	}
	return &Cache{
		d: diskv.New(diskv.Options{
			BasePath:     dir,
			Transform:    func(string) []string { return []string{} },
			CacheSizeMax: cacheBytes,
			Compression:  diskv.NewGzipCompression(),
		}),
	}
}

func validKey(kind string) error {
	if kind == "" || strings.ContainsAny(kind, `/\.`) {
		return fmt.Errorf("invalid model key %q", kind)
	}
	return nil
}

// Put serializes f under kind, replacing any previous model.
func (c *Cache) Put(kind string, f *forest.Forest) error {
	return c.SaveModel(kind, f, 0, f.Samples)
}

// Get decodes the model cached for kind.
func (c *Cache) Get(kind string) (*forest.Forest, error) {
	if err := validKey(kind); err != nil {
		return nil, err
	}
	if !c.d.Has(kind) {
		return nil, ErrMiss
	}

	data, err := c.d.Read(kind)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", kind, err)
	}
	return forest.Unmarshal(data)
}

// Meta returns the metadata recorded with kind's model.
func (c *Cache) Meta(kind string) (Entry, error) {
	if err := validKey(kind); err != nil {
		return Entry{}, err
	}
	if !c.d.Has(kind + metaSuffix) {
		return Entry{}, ErrMiss
	}

	data, err := c.d.Read(kind + metaSuffix)
	if err != nil {
		return Entry{}, fmt.Errorf("read %s metadata: %w", kind, err)
	}

	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return Entry{}, fmt.Errorf("decode %s metadata: %w", kind, err)
	}
	return e, nil
}

// Erase removes kind's model. It returns ErrMiss if nothing was cached.
func (c *Cache) Erase(kind string) error {
	if err := validKey(kind); err != nil {
		return err
	}
	if !c.d.Has(kind) {
		return ErrMiss
	}
	if err := c.d.Erase(kind); err != nil {
		return err
	}
	if c.d.Has(kind + metaSuffix) {
		return c.d.Erase(kind + metaSuffix)
	}
	return nil
}

// Kinds lists the cached kinds in sorted order.
func (c *Cache) Kinds() []string {
	var kinds []string
	for key := range c.d.Keys(nil) {
		if !strings.HasSuffix(key, metaSuffix) {
			kinds = append(kinds, key)
		}
	}
	sort.Strings(kinds)
	return kinds
}

// SaveModel stores f with its training metadata.
func (c *Cache) SaveModel(kind string, f *forest.Forest, accuracy float64, samples int) error {
	if err := validKey(kind); err != nil {
		return err
	}

	data, err := forest.Marshal(f)
	if err != nil {
		return fmt.Errorf("encode %s: %w", kind, err)
	}
	meta, err := json.Marshal(Entry{
		Kind:     kind,
		Schema:   f.Schema,
		Accuracy: accuracy,
		Samples:  samples,
		SavedAt:  time.Now(),
	})
	if err != nil {
		return err
	}

	if err := c.d.Write(kind, data); err != nil {
		return fmt.Errorf("write %s: %w", kind, err)
	}
	return c.d.Write(kind+metaSuffix, meta)
}

// LoadModel is Get under the name the trainer expects.
func (c *Cache) LoadModel(kind string) (*forest.Forest, error) {
	return c.Get(kind)
}
