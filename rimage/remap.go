package rimage

import (
	"image"

	"github.com/pkg/errors"

	"go.viam.com/camcalib/utils"
)

// RemapTable holds, for every destination pixel, the source coordinates to sample.
type RemapTable struct {
	Width, Height int
	MapX, MapY    []float32
}

// NewRemapTable allocates an empty table of the given size.
func NewRemapTable(width, height int) *RemapTable {
	return &RemapTable{
		Width:  width,
		Height: height,
		MapX:   make([]float32, width*height),
		MapY:   make([]float32, width*height),
	}
}

// At returns the source coordinates for destination pixel (x, y).
func (t *RemapTable) At(x, y int) (float64, float64) {
	i := y*t.Width + x
	return float64(t.MapX[i]), float64(t.MapY[i])
}

// Set stores the source coordinates for destination pixel (x, y).
func (t *RemapTable) Set(x, y int, sx, sy float64) {
	i := y*t.Width + x
	t.MapX[i] = float32(sx)
	t.MapY[i] = float32(sy)
}

// Remap writes dst(x, y) = src(mapX(x, y), mapY(x, y)) for every channel. Coordinates that
// fall outside src produce zero.
func Remap(src Buffer, dst MutableBuffer, table *RemapTable, method Interpolation) error {
	if table == nil {
		return errors.New("remap table is nil")
	}
	if dst.Width() != table.Width || dst.Height() != table.Height {
		return errors.Errorf("destination %dx%d does not match remap table %dx%d",
			dst.Width(), dst.Height(), table.Width, table.Height)
	}
	if src.Channels() != dst.Channels() {
		return errors.Errorf("channel mismatch: %d != %d", src.Channels(), dst.Channels())
	}
	channels := src.Channels()
	max := dst.Depth().MaxValue()
	utils.ParallelForEachPixel(image.Point{table.Width, table.Height}, func(x, y int) {
		sx, sy := table.At(x, y)
		for c := 0; c < channels; c++ {
			dst.SetSample(x, y, c, utils.ClampF64(Interpolate(src, sx, sy, c, method), 0, max))
		}
	})
	return nil
}
