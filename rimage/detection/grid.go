// Package detection contains the grid geometry shared by the calibration pattern detectors.
package detection

import (
	"image"
	"math"
	"sort"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"

	"go.viam.com/camcalib/rimage/transform"
)

// GridSize is the number of pattern features per row (Cols) and per column (Rows).
type GridSize struct {
	Cols int `json:"cols" yaml:"cols"`
	Rows int `json:"rows" yaml:"rows"`
}

// Count returns the number of features in the grid.
func (g GridSize) Count() int {
	return g.Cols * g.Rows
}

// CheckValid errors unless the grid is at least 2x2.
func (g GridSize) CheckValid() error {
	if g.Cols < 2 || g.Rows < 2 {
		return errors.Errorf("grid must be at least 2x2, got %dx%d", g.Cols, g.Rows)
	}
	return nil
}

// TermCriteria bounds an iterative refinement.
type TermCriteria struct {
	MaxIterations int
	Epsilon       float64
}

// DefaultSubpixCriteria stops corner refinement after 30 iterations or a shift below 0.1 px.
var DefaultSubpixCriteria = TermCriteria{MaxIterations: 30, Epsilon: 0.1}

// Lattice describes the ideal feature layout in integer lattice units, row-major.
type Lattice struct {
	Sites   []image.Point
	Corners [4]image.Point
	index   map[image.Point]int
}

// RectangularLattice is the layout of chessboard corners and symmetric circle grids.
func RectangularLattice(size GridSize) *Lattice {
	l := &Lattice{index: map[image.Point]int{}}
	for i := 0; i < size.Rows; i++ {
		for j := 0; j < size.Cols; j++ {
			l.add(image.Point{j, i})
		}
	}
	c, r := size.Cols-1, size.Rows-1
	l.Corners = [4]image.Point{{0, 0}, {c, 0}, {c, r}, {0, r}}
	return l
}

// AsymmetricLattice is the layout of an asymmetric circle grid, where odd rows are shifted by
// half a column. Lattice x is measured in half columns.
func AsymmetricLattice(size GridSize) *Lattice {
	l := &Lattice{index: map[image.Point]int{}}
	for i := 0; i < size.Rows; i++ {
		for j := 0; j < size.Cols; j++ {
			l.add(image.Point{2*j + i%2, i})
		}
	}
	c, r := 2*(size.Cols-1), size.Rows-1
	o := r % 2
	l.Corners = [4]image.Point{{0, 0}, {c, 0}, {c + o, r}, {o, r}}
	return l
}

func (l *Lattice) add(p image.Point) {
	l.index[p] = len(l.Sites)
	l.Sites = append(l.Sites, p)
}

func toR2(p image.Point) r2.Point {
	return r2.Point{X: float64(p.X), Y: float64(p.Y)}
}

// ConvexHull returns the indices of the hull vertices in counter-clockwise order (for a y-up
// frame), dropping collinear points.
func ConvexHull(pts []r2.Point) []int {
	n := len(pts)
	if n < 3 {
		idx := make([]int, n)
		for i := range idx {
			idx[i] = i
		}
		return idx
	}
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool {
		pa, pb := pts[order[a]], pts[order[b]]
		if pa.X != pb.X {
			return pa.X < pb.X
		}
		return pa.Y < pb.Y
	})
	cross := func(o, a, b r2.Point) float64 {
		return a.Sub(o).Cross(b.Sub(o))
	}
	hull := make([]int, 0, 2*n)
	for _, i := range order {
		for len(hull) >= 2 && cross(pts[hull[len(hull)-2]], pts[hull[len(hull)-1]], pts[i]) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, i)
	}
	lower := len(hull) + 1
	for k := n - 2; k >= 0; k-- {
		i := order[k]
		for len(hull) >= lower && cross(pts[hull[len(hull)-2]], pts[hull[len(hull)-1]], pts[i]) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, i)
	}
	return hull[:len(hull)-1]
}

func quadArea(q [4]r2.Point) float64 {
	a := 0.
	for i := 0; i < 4; i++ {
		a += q[i].Cross(q[(i+1)%4])
	}
	return math.Abs(a) / 2
}

type quadCandidate struct {
	pts  [4]r2.Point
	area float64
}

// largestHullQuads returns up to limit quadrilaterals made of hull vertices, largest first.
func largestHullQuads(pts []r2.Point, hull []int, limit int) []quadCandidate {
	var out []quadCandidate
	h := len(hull)
	for a := 0; a < h; a++ {
		for b := a + 1; b < h; b++ {
			for c := b + 1; c < h; c++ {
				for d := c + 1; d < h; d++ {
					q := [4]r2.Point{pts[hull[a]], pts[hull[b]], pts[hull[c]], pts[hull[d]]}
					out = append(out, quadCandidate{q, quadArea(q)})
				}
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].area > out[j].area })
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

const (
	maxQuadCandidates = 16
	snapTolerance     = 0.35
	refitRounds       = 3
)

type ordering struct {
	points   []r2.Point
	residual float64
	positive bool
}

// OrderGrid assigns every detected point to a lattice site and returns the points in lattice
// order. It fails unless the detections form a one to one match with the lattice.
//
// Corner quadrilaterals of the detections' convex hull are matched to the lattice corners under
// all eight rotations and reflections. Each pairing seeds a homography that is refit on all
// snapped points. Among valid orderings, a right-handed one whose first point lies nearest the
// image origin wins.
func OrderGrid(pts []r2.Point, lattice *Lattice) ([]r2.Point, bool) {
	n := len(lattice.Sites)
	if len(pts) != n || n < 4 {
		return nil, false
	}
	hull := ConvexHull(pts)
	if len(hull) < 4 {
		return nil, false
	}
	var corners [4]r2.Point
	for i, c := range lattice.Corners {
		corners[i] = toR2(c)
	}

	var best *ordering
	for _, quad := range largestHullQuads(pts, hull, maxQuadCandidates) {
		for _, assignment := range cornerAssignments(quad.pts) {
			o, ok := snapToLattice(pts, lattice, corners, assignment)
			if !ok {
				continue
			}
			if best == nil || betterOrdering(o, best) {
				best = o
			}
		}
	}
	if best == nil {
		return nil, false
	}
	return best.points, true
}

func betterOrdering(a, b *ordering) bool {
	if a.positive != b.positive {
		return a.positive
	}
	da := a.points[0].X + a.points[0].Y
	db := b.points[0].X + b.points[0].Y
	if math.Abs(da-db) > 1e-9 {
		return da < db
	}
	return a.residual < b.residual
}

// cornerAssignments returns the quad under its four rotations and their mirror images.
func cornerAssignments(q [4]r2.Point) [][4]r2.Point {
	out := make([][4]r2.Point, 0, 8)
	for s := 0; s < 4; s++ {
		var fwd, rev [4]r2.Point
		for i := 0; i < 4; i++ {
			fwd[i] = q[(s+i)%4]
			rev[i] = q[(s-i+4)%4]
		}
		out = append(out, fwd, rev)
	}
	return out
}

func snapToLattice(pts []r2.Point, lattice *Lattice, corners, image4 [4]r2.Point) (*ordering, bool) {
	h, err := transform.EstimateHomography(image4[:], corners[:])
	if err != nil {
		return nil, false
	}
	n := len(pts)
	assigned := make([]int, n)
	for round := 0; ; round++ {
		for i := range assigned {
			assigned[i] = -1
		}
		worst := 0.
		for i, p := range pts {
			l := h.Apply(p)
			site := image.Point{int(math.Round(l.X)), int(math.Round(l.Y))}
			idx, ok := lattice.index[site]
			if !ok || assigned[idx] >= 0 {
				return nil, false
			}
			assigned[idx] = i
			worst = math.Max(worst, l.Sub(toR2(site)).Norm())
		}
		if worst > snapTolerance && round >= refitRounds {
			return nil, false
		}
		src := make([]r2.Point, n)
		dst := make([]r2.Point, n)
		for idx, i := range assigned {
			src[idx] = pts[i]
			dst[idx] = toR2(lattice.Sites[idx])
		}
		refit, err := transform.EstimateHomography(src, dst)
		if err != nil {
			return nil, false
		}
		h = refit
		if worst <= snapTolerance || round >= refitRounds {
			return &ordering{
				points:   src,
				residual: h.ReprojectionRMS(src, dst),
				positive: orientationPositive(h.Inverse(), lattice),
			}, true
		}
	}
}

// orientationPositive reports whether lattice +x and +y map onto a right-handed frame in
// image coordinates (x right, y down).
func orientationPositive(latticeToImage *transform.Homography, lattice *Lattice) bool {
	o := toR2(lattice.Sites[0])
	p0 := latticeToImage.Apply(o)
	px := latticeToImage.Apply(o.Add(r2.Point{X: 1}))
	py := latticeToImage.Apply(o.Add(r2.Point{Y: 1}))
	return px.Sub(p0).Cross(py.Sub(p0)) > 0
}
