/*
	Package ogn provides types, constants, and functions that have no other dependencies
	and can be used by all packages within this module.  This includes leveled logging,
	configuration loading, the compression/checksum envelope for stored values, and the
	sentinel errors shared by the octree, voxel and convolution packages.
*/
package ogn
