package main

import "errors"

// Region quadtree over a single color plane. A tree is built once from a
// square power-of-two bitmap and never mutated afterwards; all queries are
// pure functions of (tree, point, cutoff), so concurrent readers need no
// locking.

var (
	ErrInvalidDimensions = errors.New("quad: bitmap is not a square power-of-two bitmap")
	ErrOutOfBounds       = errors.New("quad: query point outside the bitmap")
)

// node is a closed two-shape variant: kids == nil marks a 2×2 leaf.
// corners holds the exact samples at the region's bounding-box corners in
// tl, tr, bl, br order; for a leaf those are the region's four pixels.
// low/high bound every sample in the subtree, average is the integer mean
// of the four corners.
type node struct {
	corners [4]uint8
	low     uint8
	high    uint8
	average uint8
	size    int
	kids    *[4]node
}

func (n *node) leaf() bool { return n.kids == nil }

// Tree owns the region quadtree of one channel plane.
type Tree struct {
	root node
	rank int
}

// Rank returns the side length of the square plane the tree was built from.
func (t *Tree) Rank() int { return t.rank }

// BuildTree constructs the quadtree for a square plane with side rank.
// The plane must hold exactly rank*rank row-major samples and rank must be
// a power of two ≥ 2; anything else fails with ErrInvalidDimensions.
func BuildTree(plane []uint8, rank int) (*Tree, error) {
	if rank < 2 || rank&(rank-1) != 0 || len(plane) != rank*rank {
		return nil, ErrInvalidDimensions
	}
	return &Tree{root: buildNode(plane, rank, 0, 0, rank), rank: rank}, nil
}

// buildNode builds the subtree for the size×size region at (x, y). Children
// are built independently and aggregated bottom-up; corners are sampled from
// the plane itself, not derived from the children.
func buildNode(plane []uint8, rank, x, y, size int) node {
	n := node{size: size}
	n.corners = [4]uint8{
		plane[y*rank+x],
		plane[y*rank+x+size-1],
		plane[(y+size-1)*rank+x],
		plane[(y+size-1)*rank+x+size-1],
	}
	n.average = uint8((int(n.corners[0]) + int(n.corners[1]) + int(n.corners[2]) + int(n.corners[3])) / 4)
	if size == 2 {
		n.low, n.high = minMax4(n.corners)
		return n
	}
	s := size / 2
	kids := &[4]node{
		buildNode(plane, rank, x, y, s),
		buildNode(plane, rank, x+s, y, s),
		buildNode(plane, rank, x, y+s, s),
		buildNode(plane, rank, x+s, y+s, s),
	}
	n.kids = kids
	n.low, n.high = kids[0].low, kids[0].high
	for i := 1; i < 4; i++ {
		if kids[i].low < n.low {
			n.low = kids[i].low
		}
		if kids[i].high > n.high {
			n.high = kids[i].high
		}
	}
	return n
}

func minMax4(v [4]uint8) (lo, hi uint8) {
	lo, hi = v[0], v[0]
	for _, s := range v[1:] {
		if s < lo {
			lo = s
		}
		if s > hi {
			hi = s
		}
	}
	return lo, hi
}

// Exact returns the literal sample at (x, y).
func (t *Tree) Exact(x, y int) (uint8, error) {
	return t.Approx(x, y, 0)
}

// Approx reconstructs the sample at (x, y) at the given fidelity cutoff.
// Any region whose contrast (high - low) falls below the cutoff is treated
// as smooth: a leaf answers with the flat average of its four samples, a
// branch answers by bilinear interpolation of its stored corner samples.
func (t *Tree) Approx(x, y int, cutoff uint8) (uint8, error) {
	if x < 0 || y < 0 || x >= t.rank || y >= t.rank {
		return 0, ErrOutOfBounds
	}
	return t.root.approx(x, y, 0, 0, cutoff), nil
}

func (n *node) approx(x, y, xo, yo int, cutoff uint8) uint8 {
	contrast := n.high - n.low
	if n.leaf() {
		if contrast < cutoff {
			return n.average
		}
		return n.corners[2*(y-yo)+(x-xo)]
	}
	if contrast < cutoff {
		fx := float32(x-xo) / float32(n.size)
		fy := float32(y-yo) / float32(n.size)
		top := lerp(n.corners[0], n.corners[1], fx)
		bottom := lerp(n.corners[2], n.corners[3], fx)
		v := lerp(top, bottom, fy)
		// Samples on the region's left or top edge come out halved.
		if x == xo || y == yo {
			v /= 2
		}
		return v
	}
	half := n.size / 2
	q := 0
	if x-xo >= half {
		q++
		xo += half
	}
	if y-yo >= half {
		q += 2
		yo += half
	}
	return n.kids[q].approx(x, y, xo, yo, cutoff)
}

func lerp(a, b uint8, f float32) uint8 {
	return uint8(float32(a)*(1-f) + float32(b)*f)
}
