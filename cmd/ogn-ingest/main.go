// Converts voxel models to octrees and stores them in the configured key-value store.

package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/janelia-flyem/ogn/dataset"
	"github.com/janelia-flyem/ogn/ogn"
	"github.com/janelia-flyem/ogn/storage"
	_ "github.com/janelia-flyem/ogn/storage/badger"
	_ "github.com/janelia-flyem/ogn/storage/filestore"
	"github.com/janelia-flyem/ogn/voxels"

	"golang.org/x/sync/errgroup"
)

var (
	// Display usage if true.
	showHelp = flag.Bool("help", false, "")

	// Run in verbose mode if true.
	runVerbose = flag.Bool("verbose", false, "")

	configFile = flag.String("config", "", "")

	// File listing models, in the format used for training datasets.
	listFile = flag.String("list", "", "")

	// Number of models converted concurrently.  0 uses the [convert] setting or
	// the number of CPUs.
	numWorkers = flag.Int("workers", 0, "")
)

const helpMessage = `
ogn-ingest compacts .binvox and .ot models into octrees and stores them, named by
file name without extension, in the store given by the [store] section of the config.
The engine is either "badger" (default) or "filestore", which keeps .ot archives.

Usage: ogn-ingest [options] -config <file> [model files...]

	-config     =string   TOML configuration file.  Required.
	-list       =string   Text file listing model files to ingest in addition to
	                      those given as arguments.
	-workers    =number   Number of models converted concurrently.

	-verbose    (flag)    Run in verbose mode.
	-h, -help   (flag)    Show help message
`

func main() {
	flag.BoolVar(showHelp, "h", false, "Show help message")
	flag.Usage = func() {
		fmt.Printf(helpMessage)
	}
	flag.Parse()

	if *showHelp || *configFile == "" {
		flag.Usage()
		os.Exit(0)
	}
	if *runVerbose {
		ogn.Verbose = true
	}

	config, err := ogn.LoadConfig(*configFile)
	if err != nil {
		fmt.Printf("Bad configuration: %v\n", err)
		os.Exit(1)
	}
	config.Logging.SetLogger()

	files := flag.Args()
	if *listFile != "" {
		listed, err := dataset.ReadFileList(*listFile)
		if err != nil {
			fmt.Printf("Unable to read model list: %v\n", err)
			os.Exit(1)
		}
		files = append(files, listed...)
	}
	if len(files) == 0 {
		fmt.Printf("No model files given to ingest.\n")
		os.Exit(1)
	}

	workers := *numWorkers
	if workers <= 0 {
		workers = config.Convert.Workers
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	if err := ingest(config, files, workers); err != nil {
		ogn.Criticalf("Ingest failed: %v\n", err)
		ogn.Shutdown()
		os.Exit(1)
	}
	ogn.Shutdown()
}

// modelName returns the name a model file is stored under.
func modelName(fname string) string {
	base := filepath.Base(fname)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func ingest(config *ogn.Config, files []string, workers int) error {
	store, err := storage.Open(config.Store)
	if err != nil {
		return err
	}
	defer store.Close()

	timedLog := ogn.NewTimeLog()
	var g errgroup.Group
	g.SetLimit(workers)
	for _, fname := range files {
		fname := fname
		g.Go(func() error {
			t, err := voxels.ReadTreeFile(fname, config.Convert.MinLevel)
			if err != nil {
				return err
			}
			name := modelName(fname)
			if err := store.Put(name, t); err != nil {
				return fmt.Errorf("storing %q as %q: %v", fname, name, err)
			}
			ogn.Debugf("Stored %s as %q with %d cells\n", fname, name, t.Len())
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	names, err := store.Names("")
	if err != nil {
		return err
	}
	timedLog.Infof("Ingested %d models into %s, now holding %d octrees", len(files), store, len(names))
	return nil
}
