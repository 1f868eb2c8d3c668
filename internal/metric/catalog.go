// Package metric is the catalog of landscape metrics evaluated per window.
//
// Every metric consumes only the patch list of one window placement and the
// number of valid cells under its footprint. New metrics are added by
// registering a Descriptor; the labeler and scheduler never change.
package metric

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/banshee-data/focalmetrics/internal/patch"
)

// ErrUnknownMetric indicates an identifier with no catalog entry.
var ErrUnknownMetric = errors.New("metric: unknown metric")

// ErrDuplicate indicates a second registration under the same identifier.
var ErrDuplicate = errors.New("metric: already registered")

// ID names a catalog entry, e.g. "AreaWeightedPatchSize".
type ID string

// Func evaluates a metric. ok=false marks the value undefined for this
// placement; the caller writes nodata.
type Func func(patches []patch.Patch, validCells int) (value float64, ok bool)

// Descriptor is one catalog entry.
//
// Dimension is the power of length carried by the value when areas and
// perimeters are measured in cells: 2 for areas, -1 for edge per area, 0 for
// counts and indices. Scaling by cellSize^Dimension converts to map units.
type Descriptor struct {
	ID          ID
	Func        Func
	Dimension   int
	Description string
}

// Catalog is a registry of metric descriptors. It is safe for concurrent use.
type Catalog struct {
	mu      sync.RWMutex
	entries map[string]Descriptor
}

// NewCatalog returns an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{entries: make(map[string]Descriptor)}
}

// key folds an identifier so that "EdgeDensity", "edge_density" and
// "edge-density" name the same entry.
func key(id ID) string {
	s := strings.ToLower(strings.TrimSpace(string(id)))
	return strings.NewReplacer("_", "", "-", "", " ", "").Replace(s)
}

// Register adds d to the catalog.
func (c *Catalog) Register(d Descriptor) error {
	if d.Func == nil {
		return fmt.Errorf("metric: %q registered without a function", d.ID)
	}
	k := key(d.ID)
	if k == "" {
		return fmt.Errorf("metric: empty identifier")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[k]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicate, d.ID)
	}
	c.entries[k] = d
	return nil
}

// MustRegister is Register that panics on error, for package init.
func (c *Catalog) MustRegister(d Descriptor) {
	if err := c.Register(d); err != nil {
		panic(err)
	}
}

// Lookup returns the descriptor for id.
func (c *Catalog) Lookup(id ID) (Descriptor, error) {
	c.mu.RLock()
	d, ok := c.entries[key(id)]
	c.mu.RUnlock()
	if !ok {
		return Descriptor{}, fmt.Errorf("%w %q (known: %s)", ErrUnknownMetric, id, strings.Join(c.names(), ", "))
	}
	return d, nil
}

// IDs lists registered identifiers in sorted order.
func (c *Catalog) IDs() []ID {
	names := c.names()
	ids := make([]ID, len(names))
	for i, n := range names {
		ids[i] = ID(n)
	}
	return ids
}

func (c *Catalog) names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.entries))
	for _, d := range c.entries {
		names = append(names, string(d.ID))
	}
	sort.Strings(names)
	return names
}

var (
	defaultOnce    sync.Once
	defaultCatalog *Catalog
)

// Default returns the process-wide catalog preloaded with the built-ins.
func Default() *Catalog {
	defaultOnce.Do(func() {
		defaultCatalog = NewCatalog()
		for _, d := range Builtins() {
			defaultCatalog.MustRegister(d)
		}
	})
	return defaultCatalog
}
