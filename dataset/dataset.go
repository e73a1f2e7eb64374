/*
	Package dataset supplies batches of octrees for training from a list of model files.

	Models are either preloaded at start or read lazily, in which case decoded octrees
	are kept msgpack-encoded in a fixed-size freecache so that memory use stays bounded
	regardless of the dataset size.
*/
package dataset

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/janelia-flyem/ogn/octree"
	"github.com/janelia-flyem/ogn/ogn"
	"github.com/janelia-flyem/ogn/sparseconv"
	"github.com/janelia-flyem/ogn/voxels"

	"github.com/DmitriyVTitov/size"
	"github.com/coocood/freecache"
	"github.com/dustin/go-humanize"
)

// Source reads the models named in a file list.
type Source struct {
	files    []string
	minLevel int

	// preloaded octrees, nil if models are read on demand
	trees []*octree.Octree[uint8]
	cache *freecache.Cache

	mu      sync.Mutex
	counter int
}

// Batch is one batch of models in the layout consumed by sparseconv.
type Batch struct {
	// Models holds the index of each model in the file list.
	Models []int

	// Values is [batch, 1, cells] with each model's cell values, zero padded to
	// the largest model of the batch.
	Values *sparseconv.Features

	// Keys maps each model's keys, in ascending order, to their pixel index.
	Keys sparseconv.LayerKeys
}

// ReadFileList reads whitespace-separated model file names.  Relative names are
// taken relative to the directory of the list.
func ReadFileList(fname string) ([]string, error) {
	f, err := os.Open(fname)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dir := filepath.Dir(fname)
	var files []string
	sc := bufio.NewScanner(f)
	sc.Split(bufio.ScanWords)
	for sc.Scan() {
		name, err := ogn.ConvertToAbsolute(sc.Text(), dir)
		if err != nil {
			return nil, err
		}
		files = append(files, name)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading file list %q: %v", fname, err)
	}
	return files, nil
}

// NewSource returns a source for the configured file list.  Binvox models are
// compacted with the given minimum level.
func NewSource(config ogn.DatasetConfig, cache ogn.CacheConfig, minLevel int) (*Source, error) {
	if config.Source == "" {
		return nil, fmt.Errorf("no dataset source file configured")
	}
	files, err := ReadFileList(config.Source)
	if err != nil {
		return nil, err
	}
	return NewSourceFromFiles(files, config.Preload, cache.Bytes(), minLevel)
}

// NewSourceFromFiles returns a source over the given model files.  If preload is
// true, every model is read now; otherwise models are read on demand and cached in
// cacheBytes of memory.
func NewSourceFromFiles(files []string, preload bool, cacheBytes, minLevel int) (*Source, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("dataset has no model files")
	}
	s := &Source{files: files, minLevel: minLevel}
	if !preload {
		s.cache = freecache.NewCache(cacheBytes)
		ogn.Infof("Reading %d models on demand with %s cache\n", len(files), humanize.Bytes(uint64(cacheBytes)))
		return s, nil
	}

	timedLog := ogn.NewTimeLog()
	s.trees = make([]*octree.Octree[uint8], len(files))
	var cells int
	for i, fname := range files {
		t, err := voxels.ReadTreeFile(fname, minLevel)
		if err != nil {
			return nil, err
		}
		ogn.Debugf("Loaded %s with %d cells\n", fname, t.Len())
		s.trees[i] = t
		cells += t.Len()
	}
	timedLog.Infof("Preloaded %d models, %d cells, %s", len(files), cells, humanize.Bytes(uint64(size.Of(s.trees))))
	return s, nil
}

// Len returns the number of models.
func (s *Source) Len() int {
	return len(s.files)
}

// Load returns model i.
func (s *Source) Load(i int) (*octree.Octree[uint8], error) {
	if i < 0 || i >= len(s.files) {
		return nil, fmt.Errorf("model %d out of range of %d models", i, len(s.files))
	}
	if s.trees != nil {
		return s.trees[i], nil
	}

	key := []byte(s.files[i])
	if b, err := s.cache.Get(key); err == nil {
		t, _, err := octree.UnmarshalMsg(b)
		if err == nil {
			return t, nil
		}
		ogn.Errorf("Dropping bad cached model %s: %v\n", s.files[i], err)
		s.cache.Del(key)
	} else if err != freecache.ErrNotFound {
		return nil, err
	}

	t, err := voxels.ReadTreeFile(s.files[i], s.minLevel)
	if err != nil {
		return nil, err
	}
	b, err := octree.MarshalMsg(nil, t)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(key, b, 0); err != nil {
		// too large for the cache; serve it uncached
		ogn.Debugf("Not caching %s (%s): %v\n", s.files[i], humanize.Bytes(uint64(len(b))), err)
	}
	return t, nil
}

// NextBatch returns the next batchSize models in file list order, wrapping around
// at the end of the list.
func (s *Source) NextBatch(batchSize int) (*Batch, error) {
	if batchSize <= 0 {
		return nil, fmt.Errorf("bad batch size %d", batchSize)
	}
	models := make([]int, batchSize)
	s.mu.Lock()
	for i := range models {
		models[i] = s.counter
		s.counter = (s.counter + 1) % len(s.files)
	}
	s.mu.Unlock()
	return s.Batch(models)
}

// Batch assembles the given models into a batch.
func (s *Source) Batch(models []int) (*Batch, error) {
	trees := make([]*octree.Octree[uint8], len(models))
	var cells int
	for i, m := range models {
		t, err := s.Load(m)
		if err != nil {
			return nil, err
		}
		trees[i] = t
		if t.Len() > cells {
			cells = t.Len()
		}
	}

	b := &Batch{
		Models: models,
		Values: sparseconv.NewFeatures(len(models), 1, cells),
		Keys:   make(sparseconv.LayerKeys, len(models)),
	}
	for n, t := range trees {
		e := sparseconv.NewElementKeys()
		for i, k := range t.Keys() {
			v, _ := t.Get(k)
			b.Values.Set(n, 0, i, float64(v))
			e.Add(k, i, sparseconv.PropTrue)
		}
		b.Keys[n] = e
	}
	return b, nil
}
