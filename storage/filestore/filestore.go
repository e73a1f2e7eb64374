/*
	Package filestore implements a simple file-based octree store.  Each octree is
	written as an .ot archive whose location is derived from an FNV hash of its name,
	so stored models can be read directly by the command-line tools.
*/
package filestore

import (
	"encoding/hex"
	"errors"
	"fmt"
	"hash/fnv"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/janelia-flyem/ogn/octree"
	"github.com/janelia-flyem/ogn/ogn"
	"github.com/janelia-flyem/ogn/storage"

	"github.com/blang/semver"
	"github.com/twinj/uuid"
)

const fileExt = ".ot"

func init() {
	ver, err := semver.Make("0.1.0")
	if err != nil {
		ogn.Errorf("Unable to make semver in filestore: %v\n", err)
	}
	e := Engine{"filestore", "File-based octree archive store", ver}
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

// NewStore returns a file-based store.  The passed config must contain a path.
func (e Engine) NewStore(config ogn.StoreConfig) (storage.Store, bool, error) {
	return e.newStore(config)
}

// TestConfig returns the configuration of a fresh store in the temp directory.
func (e Engine) TestConfig() ogn.StoreConfig {
	return ogn.StoreConfig{
		Engine: e.name,
		Path:   filepath.Join(os.TempDir(), fmt.Sprintf("ogn-test-filestore-%x", uuid.NewV4().Bytes())),
	}
}

// Delete removes the store directory if it exists.
func (e Engine) Delete(config ogn.StoreConfig) error {
	if config.Path == "" {
		return fmt.Errorf("no path given for filestore")
	}
	return os.RemoveAll(config.Path)
}

type fileStore struct {
	path string
}

// newStore returns a file-based store, insuring a directory at the path.
func (e Engine) newStore(config ogn.StoreConfig) (*fileStore, bool, error) {
	if config.Path == "" {
		return nil, false, fmt.Errorf("path must be specified for filestore configuration")
	}
	if config.Compression != "" && config.Compression != "none" {
		ogn.Warningf("filestore writes plain .ot archives, ignoring compression %q\n", config.Compression)
	}

	var created bool
	if _, err := os.Stat(config.Path); os.IsNotExist(err) {
		ogn.Infof("File store not already at path (%s). Creating ...\n", config.Path)
		if err := os.MkdirAll(config.Path, 0755); err != nil {
			return nil, false, err
		}
		created = true
	} else {
		ogn.Infof("Found file store at %s (err = %v)\n", config.Path, err)
	}
	return &fileStore{path: config.Path}, created, nil
}

func (s *fileStore) String() string {
	return fmt.Sprintf("file store @ %s", s.path)
}

func (s *fileStore) Close() error {
	return nil
}

// filepathFromName spreads archives over two directory levels using the name's hash.
// The file name is the hex-encoded octree name so Names can recover it.
func (s *fileStore) filepathFromName(name string) (dirpath, filename string) {
	h := fnv.New32()
	h.Write([]byte(name))
	hexHash := hex.EncodeToString(h.Sum(nil))
	dirpath = filepath.Join(s.path, hexHash[0:2], hexHash[2:4])
	filename = hex.EncodeToString([]byte(name)) + fileExt
	return
}

// Get returns the octree stored under a name.
func (s *fileStore) Get(name string) (*octree.Octree[uint8], error) {
	dirpath, filename := s.filepathFromName(name)
	t, err := octree.ReadFile(filepath.Join(dirpath, filename))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%q in %s: %w", name, s, storage.ErrNotFound)
	}
	return t, err
}

// Put writes an octree archive, replacing any previous one.  The archive is written
// to a temporary file first so readers never see a partial archive.
func (s *fileStore) Put(name string, t *octree.Octree[uint8]) error {
	if name == "" {
		return fmt.Errorf("can't store octree with empty name")
	}
	dirpath, filename := s.filepathFromName(name)
	if err := os.MkdirAll(dirpath, 0755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dirpath, "put-*")
	if err != nil {
		return err
	}
	tmpName := f.Name()
	if err := octree.EncodeArchive(f, t, octree.ArchiveFormat{}); err != nil {
		f.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing octree %q: %v", name, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, filepath.Join(dirpath, filename))
}

// Delete removes a stored octree.  Deleting an absent name is not an error.
func (s *fileStore) Delete(name string) error {
	dirpath, filename := s.filepathFromName(name)
	err := os.Remove(filepath.Join(dirpath, filename))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// Names returns the stored names with the given prefix in sorted order.
func (s *fileStore) Names(prefix string) ([]string, error) {
	var names []string
	err := filepath.WalkDir(s.path, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), fileExt) {
			return nil
		}
		b, err := hex.DecodeString(strings.TrimSuffix(d.Name(), fileExt))
		if err != nil {
			ogn.Warningf("Skipping unexpected file in %s: %s\n", s, path)
			return nil
		}
		if name := string(b); strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}
