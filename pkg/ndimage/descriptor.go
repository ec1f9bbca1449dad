package ndimage

import (
	"fmt"

	"ndcore/pkg/geometry"
	"ndcore/pkg/region"
)

// Descriptor holds everything about an N-dimensional image except its pixels.
//
// Three regions describe how much of the image exists or is wanted:
//
//   - the full extent is the bounds of the complete dataset
//   - the resident region is the part backed by allocated storage
//   - the requested region is the part a consumer currently needs
//
// The intended nesting is requested ⊆ resident ⊆ full extent after a
// successful update. It is not enforced by the setters; use
// VerifyRequestedRegion and IsRequestedOutsideResident to check it.
type Descriptor struct {
	dim      int
	geometry *geometry.Geometry

	fullExtent   region.Region
	resident     region.Region
	requested    region.Region
	requestedSet bool

	// offsetTable[i] is the linear stride of axis i inside the resident region;
	// offsetTable[dim] is the number of resident pixels
	offsetTable []int64

	components int
}

// NewDescriptor creates a descriptor with default geometry and empty regions
func NewDescriptor(dim int) *Descriptor {
	if dim < 1 {
		panic(fmt.Sprintf("ndimage: invalid dimension %d", dim))
	}
	d := &Descriptor{dim: dim, geometry: geometry.New(dim)}
	d.Initialize()
	return d
}

// Initialize restores the descriptor to its freshly constructed state
func (d *Descriptor) Initialize() {
	d.geometry.Initialize()
	d.fullExtent = region.Empty(d.dim)
	d.requested = region.Empty(d.dim)
	d.requestedSet = false
	d.components = 1
	d.SetResident(region.Empty(d.dim))
}

// Dimension returns the number of axes of the image
func (d *Descriptor) Dimension() int {
	return d.dim
}

// Geometry returns the descriptor's geometry. Changes made through the
// returned pointer are visible to the descriptor.
func (d *Descriptor) Geometry() *geometry.Geometry {
	return d.geometry
}

// FullExtent returns the bounds of the complete dataset
func (d *Descriptor) FullExtent() region.Region {
	return d.fullExtent.Clone()
}

// SetFullExtent sets the bounds of the complete dataset
func (d *Descriptor) SetFullExtent(r region.Region) {
	d.mustMatch(r)
	d.fullExtent = r.Clone()
}

// Resident returns the region currently backed by storage
func (d *Descriptor) Resident() region.Region {
	return d.resident.Clone()
}

// SetResident sets the region backed by storage and rebuilds the offset table
func (d *Descriptor) SetResident(r region.Region) {
	d.mustMatch(r)
	d.resident = r.Clone()
	d.computeOffsetTable()
}

// Requested returns the region a consumer currently needs
func (d *Descriptor) Requested() region.Region {
	return d.requested.Clone()
}

// SetRequested records what a consumer needs. It never reallocates.
func (d *Descriptor) SetRequested(r region.Region) {
	d.mustMatch(r)
	d.requested = r.Clone()
	d.requestedSet = true
}

// RequestedSet reports whether a consumer has narrowed the requested region
// since the last Initialize
func (d *Descriptor) RequestedSet() bool {
	return d.requestedSet
}

// SetRequestedToFullExtent asks for the complete dataset
func (d *Descriptor) SetRequestedToFullExtent() {
	d.SetRequested(d.fullExtent)
}

// SetRegions sets the full extent, resident and requested regions at once
func (d *Descriptor) SetRegions(r region.Region) {
	d.SetFullExtent(r)
	d.SetResident(r)
	d.SetRequested(r)
}

// IsRequestedOutsideResident reports whether at least one requested pixel is
// not resident, meaning the producer has to run again.
func (d *Descriptor) IsRequestedOutsideResident() bool {
	return region.IsOutside(d.requested, d.resident)
}

// VerifyRequestedRegion reports whether the requested region lies within
// the full extent and can therefore be produced at all.
func (d *Descriptor) VerifyRequestedRegion() bool {
	return region.Verify(d.requested, d.fullExtent)
}

// NumberOfComponentsPerPixel is 1 for scalar images
func (d *Descriptor) NumberOfComponentsPerPixel() int {
	return d.components
}

// SetNumberOfComponentsPerPixel sets the number of values stored per pixel
func (d *Descriptor) SetNumberOfComponentsPerPixel(n int) {
	d.components = n
}

// OffsetTable returns a copy of the stride table {1, N0, N0*N1, ...}
func (d *Descriptor) OffsetTable() []int64 {
	out := make([]int64, len(d.offsetTable))
	copy(out, d.offsetTable)
	return out
}

// ComputeOffset returns the linear buffer offset of ix relative to the
// start of the resident region. Bounds are not checked: an index outside
// the resident region yields an offset outside the buffer.
func (d *Descriptor) ComputeOffset(ix region.Index) int64 {
	if len(ix) != d.dim {
		panic(fmt.Sprintf("ndimage: index dimension %d, want %d", len(ix), d.dim))
	}
	start := d.resident.Index
	var offset int64
	for i := d.dim - 1; i > 0; i-- {
		offset += (ix[i] - start[i]) * d.offsetTable[i]
	}
	offset += ix[0] - start[0]
	return offset
}

// ComputeIndex is the inverse of ComputeOffset for offsets within the
// resident region
func (d *Descriptor) ComputeIndex(offset int64) region.Index {
	start := d.resident.Index
	ix := make(region.Index, d.dim)
	for i := d.dim - 1; i > 0; i-- {
		if d.offsetTable[i] == 0 {
			ix[i] = start[i]
			continue
		}
		ix[i] = offset / d.offsetTable[i]
		offset -= ix[i] * d.offsetTable[i]
		ix[i] += start[i]
	}
	ix[0] = start[0] + offset
	return ix
}

// TransformIndexToPhysicalPoint maps a discrete index to physical space
func (d *Descriptor) TransformIndexToPhysicalPoint(ix region.Index) geometry.Point {
	return d.geometry.IndexToPhysicalPoint(ix)
}

// TransformPhysicalPointToIndex maps a physical point to a discrete index and
// reports whether that index lies within the full extent.
func (d *Descriptor) TransformPhysicalPointToIndex(p geometry.Point) (region.Index, bool) {
	ix := d.geometry.PhysicalPointToIndex(p)
	return ix, d.fullExtent.IsInside(ix)
}

// TransformPhysicalPointToContinuousIndex maps a physical point to a
// continuous index and reports whether it lies within the full extent. The
// test is made on the continuous components, independent of rounding.
func (d *Descriptor) TransformPhysicalPointToContinuousIndex(p geometry.Point) (geometry.ContinuousIndex, bool) {
	ci := d.geometry.PhysicalPointToContinuousIndex(p)
	return ci, d.fullExtent.IsInsideContinuous(ci)
}

// TransformContinuousIndexToPhysicalPoint maps a continuous index to physical space
func (d *Descriptor) TransformContinuousIndexToPhysicalPoint(ci geometry.ContinuousIndex) geometry.Point {
	return d.geometry.ContinuousIndexToPhysicalPoint(ci)
}

// TransformLocalVectorToPhysicalVector rotates a grid-aligned vector into physical space
func (d *Descriptor) TransformLocalVectorToPhysicalVector(v geometry.Vector) geometry.Vector {
	return d.geometry.LocalVectorToPhysicalVector(v)
}

// CopyInformation copies the meta-data a producer forwards to its output:
// full extent, geometry and components per pixel. The resident and
// requested regions are left alone.
func (d *Descriptor) CopyInformation(src *Descriptor) {
	if src.dim != d.dim {
		panic(fmt.Sprintf("ndimage: cannot copy information from %d-D into %d-D", src.dim, d.dim))
	}
	d.fullExtent = src.fullExtent.Clone()
	d.geometry.CopyFrom(src.geometry)
	d.components = src.components
}

// graftInformation copies the meta-data and all three regions of src
func (d *Descriptor) graftInformation(src *Descriptor) {
	d.CopyInformation(src)
	d.SetResident(src.resident)
	d.requested = src.requested.Clone()
	d.requestedSet = src.requestedSet
}

func (d *Descriptor) computeOffsetTable() {
	if d.offsetTable == nil {
		d.offsetTable = make([]int64, d.dim+1)
	}
	d.offsetTable[0] = 1
	for i := 0; i < d.dim; i++ {
		d.offsetTable[i+1] = d.offsetTable[i] * d.resident.Size[i]
	}
}

func (d *Descriptor) mustMatch(r region.Region) {
	if r.Dimension() != d.dim {
		panic(fmt.Sprintf("ndimage: region dimension %d, want %d", r.Dimension(), d.dim))
	}
}

// String summarises the descriptor's regions
func (d *Descriptor) String() string {
	return fmt.Sprintf("Descriptor{dim=%d full=%v resident=%v requested=%v}",
		d.dim, d.fullExtent, d.resident, d.requested)
}
