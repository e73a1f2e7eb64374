/*
	Package sparseconv implements convolution and transposed convolution over sparse
	octree key sets, plus the bookkeeping steps around them: key generation, selective
	propagation of mixed cells, loss target preparation and octree extraction.

	Features for a batch are stored densely as [batch][channel][pixel].  Which cell a
	pixel belongs to is given per batch element by an ElementKeys, a map from spatial
	key to pixel index.  A KeySource supplies the ElementKeys of every batch element
	and is handed to each consumer at construction.

	The convolution gathers each active cell's neighborhood into a column buffer
	(sparse im2col) and multiplies it against a dense weight matrix.  The adjoint
	scatter (sparse col2im) accumulates into shared neighbors, since receptive fields
	of nearby cells overlap.
*/
package sparseconv
