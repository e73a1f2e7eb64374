package badger

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/janelia-flyem/ogn/octree"
	"github.com/janelia-flyem/ogn/ogn"
	"github.com/janelia-flyem/ogn/storage"

	"github.com/blang/semver"
	"github.com/dgraph-io/badger/v3"
	"github.com/dustin/go-humanize"
	"github.com/twinj/uuid"
)

const (
	// DefaultVersionsToKeep is the number of versions to keep per key.
	DefaultVersionsToKeep = 1

	// SyncInterval is how often buffered writes are synced to disk when writes are
	// not synchronous.
	SyncInterval = 30 * time.Second

	keyPrefix = "octree/"
)

func init() {
	ver, err := semver.Make("0.1.0")
	if err != nil {
		ogn.Errorf("Unable to make semver in badger: %v\n", err)
	}
	e := Engine{"badger", "BadgerDB", ver}
	storage.RegisterEngine(e)
}

// --- Engine Implementation ------

type Engine struct {
	name   string
	desc   string
	semver semver.Version
}

func (e Engine) GetName() string {
	return e.name
}

func (e Engine) GetDescription() string {
	return e.desc
}

func (e Engine) GetSemVer() semver.Version {
	return e.semver
}

func (e Engine) String() string {
	return fmt.Sprintf("%s [%s]", e.name, e.semver)
}

// NewStore returns a badger store.  The passed config must contain a path.
func (e Engine) NewStore(config ogn.StoreConfig) (storage.Store, bool, error) {
	return e.newDB(config)
}

// TestConfig returns the configuration of a fresh store in the temp directory.
func (e Engine) TestConfig() ogn.StoreConfig {
	return ogn.StoreConfig{
		Engine: e.name,
		Path:   filepath.Join(os.TempDir(), fmt.Sprintf("ogn-test-badger-%x", uuid.NewV4().Bytes())),
	}
}

// Delete removes the store directory if it exists.
func (e Engine) Delete(config ogn.StoreConfig) error {
	if config.Path == "" {
		return fmt.Errorf("no path given for badger store")
	}
	if _, err := os.Stat(config.Path); !os.IsNotExist(err) {
		if err := os.RemoveAll(config.Path); err != nil {
			return fmt.Errorf("can't delete badger store %q: %v", config.Path, err)
		}
	}
	return nil
}

// badgerLogger routes badger's own logging through ogn.
type badgerLogger struct{}

func (badgerLogger) Errorf(format string, args ...interface{})   { ogn.Errorf(format, args...) }
func (badgerLogger) Warningf(format string, args ...interface{}) { ogn.Warningf(format, args...) }
func (badgerLogger) Infof(format string, args ...interface{})    { ogn.Debugf(format, args...) }
func (badgerLogger) Debugf(format string, args ...interface{})   { ogn.Debugf(format, args...) }

// newDB returns a Badger backend, creating one at path if it doesn't exist.
func (e Engine) newDB(config ogn.StoreConfig) (*BadgerDB, bool, error) {
	path := config.Path
	if path == "" {
		return nil, false, fmt.Errorf("%q must be specified for BadgerDB configuration", "path")
	}
	compress, err := ogn.ParseCompression(config.Compression)
	if err != nil {
		return nil, false, err
	}

	var created bool
	if _, err := os.Stat(path); os.IsNotExist(err) {
		ogn.Infof("Database not already at path (%s). Creating directory...\n", path)
		created = true
		if err := os.MkdirAll(path, 0744); err != nil {
			return nil, true, fmt.Errorf("can't make directory at %s: %v", path, err)
		}
	}

	opts := badger.DefaultOptions(path).
		WithNumVersionsToKeep(DefaultVersionsToKeep).
		WithSyncWrites(config.SyncWrites).
		WithLogger(badgerLogger{})

	timedLog := ogn.NewTimeLog()
	bdp, err := badger.Open(opts)
	if err != nil {
		return nil, false, err
	}
	timedLog.Debugf("Opened badger @ path %s", path)

	db := &BadgerDB{
		directory: path,
		config:    config,
		compress:  compress,
		bdp:       bdp,
	}
	if !config.SyncWrites {
		db.stopSyncCh = make(chan struct{})
		db.syncDone = make(chan struct{})
		go db.syncPeriodically()
	}
	return db, created, nil
}

// BadgerDB is a store of octrees backed by badger.
type BadgerDB struct {
	directory string
	config    ogn.StoreConfig
	compress  ogn.Compression
	bdp       *badger.DB

	stopSyncCh chan struct{}
	syncDone   chan struct{}
}

func (db *BadgerDB) String() string {
	return fmt.Sprintf("badger @ %s", db.directory)
}

// Periodically sync to prevent too many writes from being buffered
// if the process crashes.
func (db *BadgerDB) syncPeriodically() {
	defer close(db.syncDone)
	ticker := time.NewTicker(SyncInterval)
	defer ticker.Stop()
	for {
		select {
		case <-db.stopSyncCh:
			ogn.Debugf("Stopping sync goroutine for badger @ %s\n", db.directory)
			return
		case <-ticker.C:
			if err := db.bdp.Sync(); err != nil {
				ogn.Errorf("Unable to sync badger @ %s: %v\n", db.directory, err)
			}
		}
	}
}

// Close closes the store.
func (db *BadgerDB) Close() error {
	if db == nil || db.bdp == nil {
		return nil
	}
	if db.stopSyncCh != nil {
		close(db.stopSyncCh)
		<-db.syncDone
	}
	err := db.bdp.Close()
	db.bdp = nil
	ogn.Infof("Closed Badger DB @ %s\n", db.directory)
	return err
}

func storeKey(name string) []byte {
	return []byte(keyPrefix + name)
}

// Put stores an octree under a name, replacing any previous one.
func (db *BadgerDB) Put(name string, t *octree.Octree[uint8]) error {
	if db == nil || db.bdp == nil {
		return fmt.Errorf("can't call Put on closed BadgerDB")
	}
	value, err := storage.EncodeOctree(t, db.compress)
	if err != nil {
		return err
	}
	err = db.bdp.Update(func(txn *badger.Txn) error {
		return txn.Set(storeKey(name), value)
	})
	if err != nil {
		return err
	}
	ogn.Debugf("Stored octree %q with %d cells in %s\n", name, t.Len(), humanize.Bytes(uint64(len(value))))
	return nil
}

// Get returns the octree stored under a name.
func (db *BadgerDB) Get(name string) (*octree.Octree[uint8], error) {
	if db == nil || db.bdp == nil {
		return nil, fmt.Errorf("can't call Get on closed BadgerDB")
	}
	var value []byte
	err := db.bdp.View(func(txn *badger.Txn) error {
		item, err := txn.Get(storeKey(name))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%q in %s: %w", name, db, storage.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	t, err := storage.DecodeOctree(value)
	if err != nil {
		return nil, fmt.Errorf("decoding octree %q: %v", name, err)
	}
	return t, nil
}

// Delete removes the octree stored under a name.  Deleting a missing name is not
// an error.
func (db *BadgerDB) Delete(name string) error {
	if db == nil || db.bdp == nil {
		return fmt.Errorf("can't call Delete on closed BadgerDB")
	}
	return db.bdp.Update(func(txn *badger.Txn) error {
		return txn.Delete(storeKey(name))
	})
}

// Names returns the names of stored octrees with the given prefix.
func (db *BadgerDB) Names(prefix string) ([]string, error) {
	if db == nil || db.bdp == nil {
		return nil, fmt.Errorf("can't call Names on closed BadgerDB")
	}
	var names []string
	err := db.bdp.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false // key only
		it := txn.NewIterator(opts)
		defer it.Close()
		p := storeKey(prefix)
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			names = append(names, strings.TrimPrefix(string(it.Item().Key()), keyPrefix))
		}
		return nil
	})
	return names, err
}
