// Package geometry maps discrete image indices to physical coordinates and back.
//
// A Geometry is the triple (spacing, origin, direction). Two matrices are
// derived from it:
//
//	indexToPhysical = direction * diag(spacing)
//	physicalToIndex = inverse(indexToPhysical)
//
// Both are recomputed eagerly by every call that changes spacing or direction,
// so the transforms never observe stale matrices.
//
// Spacing must be strictly positive and the direction matrix is expected to be
// orthonormal. Neither is enforced. When the derived matrix is singular the
// inverse is filled with NaN and Degenerate reports true; transforms through
// it produce meaningless results.
package geometry

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"ndcore/pkg/region"
)

// Point is a location in physical space
type Point []float64

// Vector is a displacement in physical or index space
type Vector []float64

// ContinuousIndex is a non-integral position in index space
type ContinuousIndex []float64

// RoundingPolicy selects how a physical point is snapped to a discrete index
type RoundingPolicy int

const (
	// RoundNearest rounds to the nearest index, half-integer ties away from zero
	RoundNearest RoundingPolicy = iota

	// Truncate drops the fractional part, rounding toward zero
	Truncate
)

// String returns the configuration name of the policy
func (p RoundingPolicy) String() string {
	switch p {
	case RoundNearest:
		return "nearest"
	case Truncate:
		return "truncate"
	default:
		return fmt.Sprintf("RoundingPolicy(%d)", int(p))
	}
}

// ParseRoundingPolicy converts a configuration name into a policy
func ParseRoundingPolicy(name string) (RoundingPolicy, error) {
	switch name {
	case "", "nearest":
		return RoundNearest, nil
	case "truncate":
		return Truncate, nil
	default:
		return RoundNearest, fmt.Errorf("unknown rounding policy: %s (must be nearest or truncate)", name)
	}
}

// Geometry holds the physical placement of an N-dimensional sampling grid
type Geometry struct {
	dim       int
	spacing   []float64
	origin    Point
	direction *mat.Dense

	indexToPhysical *mat.Dense
	physicalToIndex *mat.Dense
	degenerate      bool

	rounding RoundingPolicy
}

// New returns a geometry with unit spacing, zero origin and identity direction
func New(dim int) *Geometry {
	if dim < 1 {
		panic(fmt.Sprintf("geometry: invalid dimension %d", dim))
	}
	g := &Geometry{dim: dim}
	g.Initialize()
	return g
}

// Initialize restores the default geometry
func (g *Geometry) Initialize() {
	g.spacing = make([]float64, g.dim)
	for i := range g.spacing {
		g.spacing[i] = 1
	}
	g.origin = make(Point, g.dim)
	g.direction = identity(g.dim)
	g.rounding = RoundNearest
	g.computeMatrices()
}

// Dimension returns the number of axes
func (g *Geometry) Dimension() int {
	return g.dim
}

// Spacing returns a copy of the per-axis sample distance
func (g *Geometry) Spacing() []float64 {
	out := make([]float64, g.dim)
	copy(out, g.spacing)
	return out
}

// SetSpacing sets the sample distance and recomputes the derived matrices
func (g *Geometry) SetSpacing(spacing ...float64) {
	g.mustMatch(len(spacing))
	copy(g.spacing, spacing)
	g.computeMatrices()
}

// Origin returns a copy of the physical location of index zero
func (g *Geometry) Origin() Point {
	out := make(Point, g.dim)
	copy(out, g.origin)
	return out
}

// SetOrigin sets the physical location of index zero. The derived matrices
// do not depend on the origin and are left untouched.
func (g *Geometry) SetOrigin(origin ...float64) {
	g.mustMatch(len(origin))
	copy(g.origin, origin)
}

// Direction returns a copy of the direction cosine matrix
func (g *Geometry) Direction() *mat.Dense {
	return mat.DenseCopyOf(g.direction)
}

// SetDirection sets the direction cosines and recomputes the derived matrices.
// Row i, column j holds the physical component i of index axis j.
func (g *Geometry) SetDirection(direction mat.Matrix) {
	r, c := direction.Dims()
	g.mustMatch(r)
	g.mustMatch(c)
	g.direction = mat.DenseCopyOf(direction)
	g.computeMatrices()
}

// IndexToPhysical returns a copy of direction * diag(spacing)
func (g *Geometry) IndexToPhysical() *mat.Dense {
	return mat.DenseCopyOf(g.indexToPhysical)
}

// PhysicalToIndex returns a copy of the inverse of IndexToPhysical
func (g *Geometry) PhysicalToIndex() *mat.Dense {
	return mat.DenseCopyOf(g.physicalToIndex)
}

// Degenerate reports whether the index to physical matrix could not be inverted
func (g *Geometry) Degenerate() bool {
	return g.degenerate
}

// Rounding returns the policy used by PhysicalPointToIndex
func (g *Geometry) Rounding() RoundingPolicy {
	return g.rounding
}

// SetRounding selects the policy used by PhysicalPointToIndex
func (g *Geometry) SetRounding(p RoundingPolicy) {
	g.rounding = p
}

// CopyFrom replaces the receiver's geometry with a copy of src
func (g *Geometry) CopyFrom(src *Geometry) {
	g.dim = src.dim
	g.spacing = src.Spacing()
	g.origin = src.Origin()
	g.direction = src.Direction()
	g.rounding = src.rounding
	g.computeMatrices()
}

// Clone returns an independent copy of the geometry
func (g *Geometry) Clone() *Geometry {
	out := &Geometry{}
	out.CopyFrom(g)
	return out
}

// IndexToPhysicalPoint computes indexToPhysical * index + origin
func (g *Geometry) IndexToPhysicalPoint(ix region.Index) Point {
	g.mustMatch(len(ix))
	ci := make(ContinuousIndex, g.dim)
	for i, v := range ix {
		ci[i] = float64(v)
	}
	return g.ContinuousIndexToPhysicalPoint(ci)
}

// ContinuousIndexToPhysicalPoint computes indexToPhysical * index + origin
func (g *Geometry) ContinuousIndexToPhysicalPoint(ci ContinuousIndex) Point {
	g.mustMatch(len(ci))
	var v mat.VecDense
	v.MulVec(g.indexToPhysical, mat.NewVecDense(g.dim, []float64(ci)))
	p := make(Point, g.dim)
	for i := range p {
		p[i] = v.AtVec(i) + g.origin[i]
	}
	return p
}

// PhysicalPointToContinuousIndex computes physicalToIndex * (point - origin)
func (g *Geometry) PhysicalPointToContinuousIndex(p Point) ContinuousIndex {
	g.mustMatch(len(p))
	d := make([]float64, g.dim)
	for i := range d {
		d[i] = p[i] - g.origin[i]
	}
	var v mat.VecDense
	v.MulVec(g.physicalToIndex, mat.NewVecDense(g.dim, d))
	ci := make(ContinuousIndex, g.dim)
	for i := range ci {
		ci[i] = v.AtVec(i)
	}
	return ci
}

// PhysicalPointToIndex maps a physical point to a discrete index using the
// configured rounding policy. No bounds are checked here.
func (g *Geometry) PhysicalPointToIndex(p Point) region.Index {
	ci := g.PhysicalPointToContinuousIndex(p)
	ix := make(region.Index, g.dim)
	for i, v := range ci {
		switch g.rounding {
		case Truncate:
			ix[i] = int64(math.Trunc(v))
		default:
			ix[i] = int64(math.Round(v))
		}
	}
	return ix
}

// LocalVectorToPhysicalVector rotates a vector expressed along the grid axes
// into physical space: direction * v.
func (g *Geometry) LocalVectorToPhysicalVector(v Vector) Vector {
	g.mustMatch(len(v))
	var out mat.VecDense
	out.MulVec(g.direction, mat.NewVecDense(g.dim, []float64(v)))
	res := make(Vector, g.dim)
	for i := range res {
		res[i] = out.AtVec(i)
	}
	return res
}

func (g *Geometry) computeMatrices() {
	scale := mat.NewDiagDense(g.dim, append([]float64(nil), g.spacing...))
	g.indexToPhysical = mat.NewDense(g.dim, g.dim, nil)
	g.indexToPhysical.Mul(g.direction, scale)

	g.physicalToIndex = mat.NewDense(g.dim, g.dim, nil)
	g.degenerate = false
	if err := g.physicalToIndex.Inverse(g.indexToPhysical); err != nil {
		// An ill-conditioned but finite inverse is still usable
		if c, ok := err.(mat.Condition); ok && !math.IsInf(float64(c), 1) {
			return
		}
		g.degenerate = true
		for i := 0; i < g.dim; i++ {
			for j := 0; j < g.dim; j++ {
				g.physicalToIndex.Set(i, j, math.NaN())
			}
		}
	}
}

func (g *Geometry) mustMatch(n int) {
	if n != g.dim {
		panic(fmt.Sprintf("geometry: dimension mismatch (%d vs %d)", n, g.dim))
	}
}

func identity(dim int) *mat.Dense {
	m := mat.NewDense(dim, dim, nil)
	for i := 0; i < dim; i++ {
		m.Set(i, i, 1)
	}
	return m
}
