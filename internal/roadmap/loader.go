package roadmap

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/banshee-data/traffic.replay/internal/monitoring"
	"github.com/banshee-data/traffic.replay/internal/trajectory"
)

var logf = monitoring.Prefixed("Map")

// ErrNotFound is returned when the map file does not exist.
var ErrNotFound = errors.New("map file not found")

// Loader parses map files once per path. Concurrent loads of the same path
// share one parse.
type Loader struct {
	scale float64

	mu    sync.RWMutex
	cache map[string]*trajectory.MapData
	group singleflight.Group
	parse func(path string, scale float64) (*trajectory.MapData, error)
}

// NewLoader creates a loader projecting with scale (<= 0 means 1).
func NewLoader(scale float64) *Loader {
	if scale <= 0 {
		scale = 1
	}
	return &Loader{scale: scale, cache: make(map[string]*trajectory.MapData), parse: LoadFile}
}

// Load returns the formatted map at path. The result is shared and must not
// be modified.
func (l *Loader) Load(ctx context.Context, path string) (*trajectory.MapData, error) {
	key, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	l.mu.RLock()
	m, ok := l.cache[key]
	l.mu.RUnlock()
	if ok {
		return m, nil
	}

	ch := l.group.DoChan(key, func() (any, error) {
		l.mu.RLock()
		cached, ok := l.cache[key]
		l.mu.RUnlock()
		if ok {
			return cached, nil
		}
		m, err := l.parse(key, l.scale)
		if err != nil {
			return nil, err
		}
		l.mu.Lock()
		l.cache[key] = m
		l.mu.Unlock()
		return m, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*trajectory.MapData), nil
	}
}

// Len returns the number of cached maps.
func (l *Loader) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.cache)
}

// Forget drops path from the cache.
func (l *Loader) Forget(path string) {
	key, err := filepath.Abs(path)
	if err != nil {
		return
	}
	l.mu.Lock()
	delete(l.cache, key)
	l.mu.Unlock()
}

// LoadFile parses and formats one OSM file.
func LoadFile(path string, scale float64) (*trajectory.MapData, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %w", ErrNotFound, err)
		}
		return nil, err
	}
	defer f.Close()

	net, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	m := Format(net, scale)
	logf("loaded %s: roads=%d lanes=%d boundaries=%d", filepath.Base(path), len(m.Roads), len(m.Lanes), len(m.Boundaries))
	return m, nil
}
