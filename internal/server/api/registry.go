package api

import (
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/ayusman/mudra/internal/forest"
	"github.com/ayusman/mudra/internal/gesture"
	"github.com/ayusman/mudra/internal/modelcache"
	"github.com/ayusman/mudra/internal/store"
)

// ErrModelNotFound is returned when no source holds a model for a kind.
var ErrModelNotFound = errors.New("model not found")

// DefaultRegistrySize is the number of decoded forests kept in memory.
const DefaultRegistrySize = 8

// Registry keeps recently used forests decoded in memory, in front of one
// or more persistent model stores. Sources are consulted in order on a
// miss; saves go to every source.
type Registry struct {
	cache   *lru.Cache[string, *forest.Forest]
	sources []gesture.ModelStore
}

// NewRegistry creates a Registry holding up to size forests. A size of zero
// or less selects DefaultRegistrySize.
func NewRegistry(size int, sources ...gesture.ModelStore) (*Registry, error) {
	if size <= 0 {
		size = DefaultRegistrySize
	}
	cache, err := lru.New[string, *forest.Forest](size)
	if err != nil {
		return nil, fmt.Errorf("create model registry: %w", err)
	}
	return &Registry{cache: cache, sources: sources}, nil
}

// LoadModel returns the forest for kind, decoding it from the first source
// that has one.
func (r *Registry) LoadModel(kind string) (*forest.Forest, error) {
	if f, ok := r.cache.Get(kind); ok {
		return f, nil
	}

	for _, src := range r.sources {
		f, err := src.LoadModel(kind)
		switch {
		case err == nil:
			r.cache.Add(kind, f)
			return f, nil
		case errors.Is(err, store.ErrNotFound), errors.Is(err, modelcache.ErrMiss):
			continue
		default:
			return nil, fmt.Errorf("load %s model: %w", kind, err)
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrModelNotFound, kind)
}

// SaveModel writes f to every source and makes it the cached forest for kind.
func (r *Registry) SaveModel(kind string, f *forest.Forest, accuracy float64, samples int) error {
	for _, src := range r.sources {
		if err := src.SaveModel(kind, f, accuracy, samples); err != nil {
			r.cache.Remove(kind)
			return err
		}
	}
	r.cache.Add(kind, f)
	return nil
}

// Invalidate drops kind from memory so the next load reads from the sources.
func (r *Registry) Invalidate(kind string) {
	r.cache.Remove(kind)
}

// Cached lists the kinds currently decoded, oldest first.
func (r *Registry) Cached() []string {
	return r.cache.Keys()
}
