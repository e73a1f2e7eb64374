// Converts voxel models between binvox grids and .ot octree archives.

package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/janelia-flyem/ogn/ogn"
	"github.com/janelia-flyem/ogn/voxels"
)

var (
	// Display usage if true.
	showHelp = flag.Bool("help", false, "")

	// Run in verbose mode if true.
	runVerbose = flag.Bool("verbose", false, "")

	input  = flag.String("input", "", "")
	output = flag.String("output", "", "")

	// Negative means use the [convert] setting of the config, if any.
	minLevel = flag.Int("min_level", -1, "")

	configFile = flag.String("config", "", "")
)

const helpMessage = `
ogn-convert converts a voxel model between a dense binvox grid and a sparse octree.
The format of each file is determined by its extension, either .binvox or .ot.

Usage: ogn-convert [options] -input <file> -output <file>

	-input      =string   Model to read.
	-output     =string   File to write.
	-min_level  =number   Coarsest level to which homogeneous cells are merged
	                      when building an octree.  Default 0.
	-config     =string   TOML configuration with [logging] and [convert] sections.

	-verbose    (flag)    Run in verbose mode.
	-h, -help   (flag)    Show help message
`

func main() {
	flag.BoolVar(showHelp, "h", false, "Show help message")
	flag.Usage = func() {
		fmt.Printf(helpMessage)
	}
	flag.Parse()

	if *showHelp || *input == "" || *output == "" {
		flag.Usage()
		os.Exit(0)
	}
	if *runVerbose {
		ogn.Verbose = true
	}

	level := 0
	if *configFile != "" {
		config, err := ogn.LoadConfig(*configFile)
		if err != nil {
			fmt.Printf("Bad configuration: %v\n", err)
			os.Exit(1)
		}
		config.Logging.SetLogger()
		level = config.Convert.MinLevel
	}
	if *minLevel >= 0 {
		level = *minLevel
	}

	err := voxels.Convert(*input, *output, level)
	ogn.Shutdown()
	if err != nil {
		fmt.Printf("Conversion failed: %v\n", err)
		os.Exit(1)
	}
}
