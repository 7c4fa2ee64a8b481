package detection

import (
	"image"
	"image/draw"
	"math"

	"github.com/fogleman/gg"
	"github.com/golang/geo/r2"

	"go.viam.com/camcalib/rimage/transform"
)

// circleSegments is the number of polygon edges used to draw a disc.
const circleSegments = 96

// Target is a planar calibration target described in board units.
type Target interface {
	// Polygons returns the dark regions of the board as closed polygons.
	Polygons() [][]r2.Point
	// Features returns the detectable feature locations in row-major lattice order.
	Features() []r2.Point
	// Extent returns the board size including its quiet zone.
	Extent() r2.Point
}

// ChessboardTarget is a chessboard with Size inner corners surrounded by a one square quiet zone.
type ChessboardTarget struct {
	Size   GridSize
	Square float64
}

// Polygons implements Target. Square (0, 0) in the top left corner is dark.
func (c ChessboardTarget) Polygons() [][]r2.Point {
	var out [][]r2.Point
	for i := 0; i <= c.Size.Rows; i++ {
		for j := 0; j <= c.Size.Cols; j++ {
			if (i+j)%2 != 0 {
				continue
			}
			x0, y0 := float64(j+1)*c.Square, float64(i+1)*c.Square
			x1, y1 := x0+c.Square, y0+c.Square
			out = append(out, []r2.Point{{X: x0, Y: y0}, {X: x1, Y: y0}, {X: x1, Y: y1}, {X: x0, Y: y1}})
		}
	}
	return out
}

// Features implements Target.
func (c ChessboardTarget) Features() []r2.Point {
	out := make([]r2.Point, 0, c.Size.Count())
	for i := 0; i < c.Size.Rows; i++ {
		for j := 0; j < c.Size.Cols; j++ {
			out = append(out, r2.Point{X: float64(j+2) * c.Square, Y: float64(i+2) * c.Square})
		}
	}
	return out
}

// Extent implements Target.
func (c ChessboardTarget) Extent() r2.Point {
	return r2.Point{X: float64(c.Size.Cols+3) * c.Square, Y: float64(c.Size.Rows+3) * c.Square}
}

// CircleGridTarget is a grid of dark discs with a quiet zone of one spacing.
type CircleGridTarget struct {
	Size       GridSize
	Spacing    float64
	Radius     float64
	Asymmetric bool
}

// Features implements Target.
func (c CircleGridTarget) Features() []r2.Point {
	out := make([]r2.Point, 0, c.Size.Count())
	for i := 0; i < c.Size.Rows; i++ {
		for j := 0; j < c.Size.Cols; j++ {
			x := float64(j)
			if c.Asymmetric {
				x = float64(2*j + i%2)
			}
			out = append(out, r2.Point{X: (x + 1) * c.Spacing, Y: float64(i+1) * c.Spacing})
		}
	}
	return out
}

// Polygons implements Target.
func (c CircleGridTarget) Polygons() [][]r2.Point {
	features := c.Features()
	out := make([][]r2.Point, 0, len(features))
	for _, f := range features {
		disc := make([]r2.Point, circleSegments)
		for k := range disc {
			a := 2 * math.Pi * float64(k) / circleSegments
			disc[k] = r2.Point{X: f.X + c.Radius*math.Cos(a), Y: f.Y + c.Radius*math.Sin(a)}
		}
		out = append(out, disc)
	}
	return out
}

// Extent implements Target.
func (c CircleGridTarget) Extent() r2.Point {
	cols := float64(c.Size.Cols - 1)
	if c.Asymmetric {
		cols = float64(2*(c.Size.Cols-1) + 1)
	}
	return r2.Point{X: (cols + 2) * c.Spacing, Y: float64(c.Size.Rows+1) * c.Spacing}
}

// Render draws the target into a white width x height image. boardToImage maps board units to
// pixels, with pixel centers on integer coordinates; nil renders the board at one pixel per
// unit. Polygons are filled through their projected vertices with anti-aliased edges.
func Render(t Target, width, height int, boardToImage *transform.Homography) *image.Gray {
	dc := gg.NewContext(width, height)
	dc.SetRGB(1, 1, 1)
	dc.Clear()
	dc.SetRGB(0, 0, 0)
	for _, poly := range t.Polygons() {
		for i, p := range poly {
			if boardToImage != nil {
				p = boardToImage.Apply(p)
			}
			// gg pixels span [x, x+1)
			if i == 0 {
				dc.MoveTo(p.X+0.5, p.Y+0.5)
			} else {
				dc.LineTo(p.X+0.5, p.Y+0.5)
			}
		}
		dc.ClosePath()
	}
	dc.Fill()

	img := image.NewGray(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), dc.Image(), image.Point{}, draw.Src)
	return img
}
