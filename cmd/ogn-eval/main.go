// Scores a predicted voxel model against a reference by intersection over union.

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

	prediction = flag.String("prediction", "", "")
	reference  = flag.String("reference", "", "")
)

const helpMessage = `
ogn-eval prints the intersection over union of the filled voxels of two models.
Models may be .binvox grids or .ot octrees and must have the same dimensions.
An .ot archive does not record its grid size: it expands to the cube of its
finest cell, so an octree whose cells are all coarser than the reference grid
(e.g., an entirely empty model) is reported as a shape mismatch.

Usage: ogn-eval [options] -prediction <file> -reference <file>

	-prediction =string   Predicted model.
	-reference  =string   Ground truth model.

	-verbose    (flag)    Run in verbose mode.
	-h, -help   (flag)    Show help message
`

func main() {
	flag.BoolVar(showHelp, "h", false, "Show help message")
	flag.Usage = func() {
		fmt.Printf(helpMessage)
	}
	flag.Parse()

	if *showHelp || *prediction == "" || *reference == "" {
		flag.Usage()
		os.Exit(0)
	}
	if *runVerbose {
		ogn.Verbose = true
	}

	iou, err := evaluate(*prediction, *reference)
	if err != nil {
		fmt.Printf("Evaluation failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("IoU: %f\n", iou)
}

func evaluate(predFile, refFile string) (float64, error) {
	pred, err := voxels.ReadGridFile(predFile)
	if err != nil {
		return 0, err
	}
	ref, err := voxels.ReadGridFile(refFile)
	if err != nil {
		return 0, err
	}
	ogn.Debugf("prediction %s has %d filled, reference %s has %d filled\n", pred, pred.Occupied(), ref, ref.Occupied())
	return voxels.IoU(pred, ref)
}
