// Package pipeline implements the requested-region propagation contract
// between image producers and consumers, plus a small depth-first executor
// that drives it.
//
// An update runs three passes, each depth first from the node being updated
// toward its inputs:
//
//  1. UpdateOutputInformation forwards full extents and geometry from inputs
//     to outputs (inputs are processed first).
//  2. PropagateRequestedRegion narrows or enlarges what each node must produce
//     and verifies the request against the full extent.
//  3. UpdateOutputData executes a node only when its output's requested region
//     is not already resident.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"ndcore/pkg/ndimage"
	"ndcore/pkg/region"
)

// ErrInvalidRequestedRegion is returned when a node is asked for data that
// lies outside its output's full extent
var ErrInvalidRequestedRegion = errors.New("requested region is outside the full extent")

// Support declares how much of its inputs a node reads to produce a
// requested output region
type Support int

const (
	// LocalSupport nodes read the same region of their inputs that is
	// requested of their output
	LocalSupport Support = iota

	// WholeExtentSupport nodes read their inputs' full extent and always
	// produce their whole output, whatever was requested downstream
	WholeExtentSupport
)

// String returns a short name for the support kind
func (s Support) String() string {
	switch s {
	case LocalSupport:
		return "local"
	case WholeExtentSupport:
		return "whole-extent"
	default:
		return fmt.Sprintf("Support(%d)", int(s))
	}
}

// Node is one producer in an image pipeline
type Node interface {
	// Name identifies the node in errors and logs
	Name() string

	// Inputs returns the descriptors the node reads
	Inputs() []*ndimage.Descriptor

	// Output returns the descriptor the node produces
	Output() *ndimage.Descriptor

	// Support declares the node's propagation contract
	Support() Support

	// GenerateOutputInformation sets the output's full extent and geometry
	// from the inputs
	GenerateOutputInformation() error

	// GenerateData produces the output's requested region and sets its
	// resident region accordingly
	GenerateData(ctx context.Context) error
}

// RegionMapper is implemented by local-support nodes whose input footprint
// differs from the requested output region, such as neighbourhood filters
// that need a padded input.
type RegionMapper interface {
	InputRequestedRegion(input int, outputRequested region.Region) region.Region
}

// Pipeline links nodes through the descriptors they produce
type Pipeline struct {
	producers map[*ndimage.Descriptor]Node

	// Verbose prints one line per executed node
	Verbose bool
}

// New returns an empty pipeline
func New() *Pipeline {
	return &Pipeline{producers: make(map[*ndimage.Descriptor]Node)}
}

// Add registers nodes as producers of their outputs
func (p *Pipeline) Add(nodes ...Node) {
	for _, n := range nodes {
		p.producers[n.Output()] = n
	}
}

// Producer returns the node registered for a descriptor, or nil for a leaf
func (p *Pipeline) Producer(d *ndimage.Descriptor) Node {
	return p.producers[d]
}

// Update runs the three propagation passes and executes whatever is needed
// to satisfy n's output requested region
func (p *Pipeline) Update(ctx context.Context, n Node) error {
	if err := p.UpdateOutputInformation(n); err != nil {
		return err
	}
	if err := p.PropagateRequestedRegion(n); err != nil {
		return err
	}
	return p.UpdateOutputData(ctx, n)
}

// UpdateOutputInformation forwards meta-data from the leaves toward n
func (p *Pipeline) UpdateOutputInformation(n Node) error {
	for _, in := range n.Inputs() {
		if up := p.producers[in]; up != nil {
			if err := p.UpdateOutputInformation(up); err != nil {
				return err
			}
		}
	}
	if err := n.GenerateOutputInformation(); err != nil {
		return fmt.Errorf("%s: output information: %w", n.Name(), err)
	}
	return nil
}

// PropagateRequestedRegion sets the requested region of every input of n
// (and recursively of their producers) from n's output request.
func (p *Pipeline) PropagateRequestedRegion(n Node) error {
	out := n.Output()
	if !out.RequestedSet() {
		out.SetRequestedToFullExtent()
	}
	if n.Support() == WholeExtentSupport {
		out.SetRequestedToFullExtent()
	}
	if !out.VerifyRequestedRegion() {
		return fmt.Errorf("%s: %w: requested %v, full extent %v",
			n.Name(), ErrInvalidRequestedRegion, out.Requested(), out.FullExtent())
	}

	for i, in := range n.Inputs() {
		in.SetRequested(InputRequestedRegion(n, i, in, out.Requested()))
		if up := p.producers[in]; up != nil {
			if err := p.PropagateRequestedRegion(up); err != nil {
				return err
			}
		} else if !in.VerifyRequestedRegion() {
			return fmt.Errorf("%s input %d: %w: requested %v, full extent %v",
				n.Name(), i, ErrInvalidRequestedRegion, in.Requested(), in.FullExtent())
		}
	}
	return nil
}

// InputRequestedRegion applies n's propagation contract to compute what it
// needs of input i to produce outputRequested
func InputRequestedRegion(n Node, i int, in *ndimage.Descriptor, outputRequested region.Region) region.Region {
	if n.Support() == WholeExtentSupport {
		return in.FullExtent()
	}
	want := outputRequested
	if m, ok := n.(RegionMapper); ok {
		want = m.InputRequestedRegion(i, outputRequested)
	}
	return want.Intersect(in.FullExtent())
}

// UpdateOutputData brings inputs up to date, then executes n if its output's
// requested region is not resident
func (p *Pipeline) UpdateOutputData(ctx context.Context, n Node) error {
	for _, in := range n.Inputs() {
		if up := p.producers[in]; up != nil {
			if err := p.UpdateOutputData(ctx, up); err != nil {
				return err
			}
		}
		if in.IsRequestedOutsideResident() {
			return fmt.Errorf("%s: input requested region %v is not resident (%v)",
				n.Name(), in.Requested(), in.Resident())
		}
	}

	out := n.Output()
	if !out.IsRequestedOutsideResident() {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.Verbose {
		fmt.Printf("Executing %s (%s support) for %v\n", n.Name(), n.Support(), out.Requested())
	}
	if err := n.GenerateData(ctx); err != nil {
		return fmt.Errorf("%s: %w", n.Name(), err)
	}
	return nil
}
