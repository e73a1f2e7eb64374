/*
	Package storage persists octrees in a key-value engine.  Engines register themselves
	by name from their init() and are opened through a StoreConfig, e.g., the [store]
	section of a TOML configuration.

	Stored values are msgpack-encoded octrees wrapped in the ogn compression and
	checksum envelope.
*/
package storage

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/blang/semver"
	"github.com/janelia-flyem/ogn/octree"
	"github.com/janelia-flyem/ogn/ogn"
)

// ErrNotFound is returned when a named octree is not in the store.
var ErrNotFound = errors.New("octree not found")

// Engine opens stores of one kind.
type Engine interface {
	fmt.Stringer

	GetName() string
	GetDescription() string
	GetSemVer() semver.Version

	// NewStore opens the store described by config, creating it if necessary.
	// The returned bool is true if the store was newly created.
	NewStore(config ogn.StoreConfig) (Store, bool, error)

	// Delete removes the store described by config.
	Delete(config ogn.StoreConfig) error
}

// TestableEngine can create throwaway stores for tests.
type TestableEngine interface {
	Engine
	TestConfig() ogn.StoreConfig
}

// Store holds octrees by name.
type Store interface {
	fmt.Stringer

	Put(name string, t *octree.Octree[uint8]) error

	// Get returns ErrNotFound if no octree is stored under the name.
	Get(name string) (*octree.Octree[uint8], error)

	Delete(name string) error

	// Names returns the stored names with the given prefix in sorted order.
	Names(prefix string) ([]string, error)

	Close() error
}

var (
	enginesMu sync.RWMutex
	engines   = make(map[string]Engine)
)

// RegisterEngine makes an engine available by its name.
func RegisterEngine(e Engine) {
	enginesMu.Lock()
	engines[e.GetName()] = e
	enginesMu.Unlock()
}

// GetEngine returns a registered engine.
func GetEngine(name string) (Engine, bool) {
	enginesMu.RLock()
	defer enginesMu.RUnlock()
	e, found := engines[name]
	return e, found
}

// EnginesAvailable returns the names of all registered engines.
func EnginesAvailable() []string {
	enginesMu.RLock()
	defer enginesMu.RUnlock()
	names := make([]string, 0, len(engines))
	for name := range engines {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Open opens the store described by config with the engine it names.
func Open(config ogn.StoreConfig) (Store, error) {
	name := config.Engine
	if name == "" {
		name = ogn.DefaultEngine
	}
	e, found := GetEngine(name)
	if !found {
		return nil, fmt.Errorf("no storage engine %q registered, available: %v", name, EnginesAvailable())
	}
	store, created, err := e.NewStore(config)
	if err != nil {
		return nil, err
	}
	if created {
		ogn.Infof("Created new %s store at %s\n", e, config.Path)
	}
	return store, nil
}

// EncodeOctree serializes an octree for storage.
func EncodeOctree(t *octree.Octree[uint8], compress ogn.Compression) ([]byte, error) {
	b, err := octree.MarshalMsg(nil, t)
	if err != nil {
		return nil, err
	}
	return ogn.SerializeData(b, compress, ogn.CRC32)
}

// DecodeOctree deserializes a stored octree.
func DecodeOctree(data []byte) (*octree.Octree[uint8], error) {
	b, _, err := ogn.DeserializeData(data, true)
	if err != nil {
		return nil, err
	}
	t, rest, err := octree.UnmarshalMsg(b)
	if err != nil {
		return nil, err
	}
	if len(rest) != 0 {
		return nil, fmt.Errorf("%d bytes left over after stored octree", len(rest))
	}
	return t, nil
}
