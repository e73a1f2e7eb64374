/*
	Package voxels converts between dense occupancy grids, binvox files and sparse
	octrees of the octree package.

	A Grid is a dense D×H×W byte volume.  Cell (i, j, k) is stored at linear index
	i*W*H + j*H + k, so i runs along the depth, j along the width and k along the
	height.  When a grid is compacted into an octree, i, j and k become the x, y and
	z coordinates of the finest-level keys.
*/
package voxels
