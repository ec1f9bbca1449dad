// Package ndimage provides the N-dimensional image data model.
//
// An image is split in two parts: a Descriptor carrying geometry and the
// three nested regions (full extent, resident, requested), and a Buffer
// holding the pixels of the resident region in a contiguous slice. Image[T]
// ties the two together.
//
// # Memory Layout
//
// Pixels are stored with axis 0 varying fastest. The offset of an index is
//
//	(ix[0]-start[0]) + sum_{i>0} (ix[i]-start[i]) * offsetTable[i]
//
// where start is the index of the resident region and offsetTable is
// {1, N0, N0*N1, ...} built from the resident size.
//
// # Sharing
//
// A Buffer is an explicit shared handle. Graft points a second Image at the
// same Buffer while keeping an independent Descriptor, so writes through one
// image are visible through the other. DeepCopy never shares. The buffer lives
// as long as any image holds it.
//
// # Thread Safety
//
// Descriptors and buffers are not synchronised. Concurrent writers must touch
// disjoint offset ranges of a buffer.
package ndimage
