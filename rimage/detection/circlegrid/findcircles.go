package circlegrid

import (
	"image"
	"math"
	"sort"

	"github.com/golang/geo/r2"
	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"

	"go.viam.com/camcalib/rimage/detection"
)

// BlobConfiguration filters dark regions down to circle candidates.
type BlobConfiguration struct {
	MinArea      int     `json:"min-area"`
	MinFill      float64 `json:"min-fill"`
	MaxFill      float64 `json:"max-fill"`
	MaxAspect    float64 `json:"max-aspect"`
	MaxAreaRatio float64 `json:"max-area-ratio"` // allowed spread around the median blob area
}

// DefaultBlobConf is tuned for printed dot targets seen at moderate obliquity.
var DefaultBlobConf = BlobConfiguration{
	MinArea:      9,
	MinFill:      0.55,
	MaxFill:      0.95,
	MaxAspect:    3,
	MaxAreaRatio: 4,
}

// FindGrid locates the centers of a size.Cols x size.Rows circle grid and returns them in
// row-major lattice order. Asymmetric grids shift every odd row by half a column.
func FindGrid(gray *image.Gray, size detection.GridSize, asymmetric bool) ([]r2.Point, bool, error) {
	return FindGridWithConfig(gray, size, asymmetric, &DefaultBlobConf)
}

// FindGridWithConfig is FindGrid with explicit blob filtering.
func FindGridWithConfig(
	gray *image.Gray,
	size detection.GridSize,
	asymmetric bool,
	cfg *BlobConfiguration,
) ([]r2.Point, bool, error) {
	if err := size.CheckValid(); err != nil {
		return nil, false, err
	}
	if gray.Bounds().Empty() {
		return nil, false, errors.New("empty image")
	}
	threshold, ok := BlackPoint(gray)
	if !ok {
		return nil, false, nil
	}
	candidates := filterBlobs(FindDarkBlobs(gray, threshold), cfg)
	n := size.Count()
	if len(candidates) < n {
		return nil, false, nil
	}
	candidates = closestToMedianArea(candidates, n)

	centers := make([]r2.Point, n)
	for i, b := range candidates {
		centers[i] = b.Center
	}
	lattice := detection.RectangularLattice(size)
	if asymmetric {
		lattice = detection.AsymmetricLattice(size)
	}
	ordered, ok := detection.OrderGrid(centers, lattice)
	if !ok {
		return nil, false, nil
	}
	return ordered, true, nil
}

func filterBlobs(blobs []Blob, cfg *BlobConfiguration) []Blob {
	var shaped []Blob
	for _, b := range blobs {
		if b.Area < cfg.MinArea {
			continue
		}
		if fill := b.Fill(); fill < cfg.MinFill || fill > cfg.MaxFill {
			continue
		}
		if b.Aspect() > cfg.MaxAspect {
			continue
		}
		shaped = append(shaped, b)
	}
	if len(shaped) == 0 {
		return nil
	}
	areas := make([]float64, len(shaped))
	for i, b := range shaped {
		areas[i] = float64(b.Area)
	}
	median, err := stats.Median(areas)
	if err != nil || median <= 0 {
		return shaped
	}
	var out []Blob
	for _, b := range shaped {
		ratio := float64(b.Area) / median
		if ratio <= cfg.MaxAreaRatio && ratio >= 1/cfg.MaxAreaRatio {
			out = append(out, b)
		}
	}
	return out
}

// closestToMedianArea keeps the n blobs whose area is closest to the median, preserving the
// input order among the kept ones.
func closestToMedianArea(blobs []Blob, n int) []Blob {
	if len(blobs) <= n {
		return blobs
	}
	areas := make([]float64, len(blobs))
	for i, b := range blobs {
		areas[i] = float64(b.Area)
	}
	median, err := stats.Median(areas)
	if err != nil {
		return blobs[:n]
	}
	idx := make([]int, len(blobs))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return math.Abs(math.Log(areas[idx[a]]/median)) < math.Abs(math.Log(areas[idx[b]]/median))
	})
	keep := idx[:n]
	sort.Ints(keep)
	out := make([]Blob, n)
	for i, k := range keep {
		out[i] = blobs[k]
	}
	return out
}
