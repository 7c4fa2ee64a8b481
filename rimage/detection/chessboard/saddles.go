// Package chessboard finds the inner corners of a chessboard calibration target.
package chessboard

import (
	"image"
	"sort"

	"gonum.org/v1/gonum/mat"

	"go.viam.com/camcalib/rimage"
)

// SaddleConfiguration stores the parameters to process the Hessian determinant image into a
// relevant saddle points map.
type SaddleConfiguration struct {
	BlurSize      int     `json:"blur-size"`      // gaussian pre-blur kernel size, 0 disables
	BlurSigma     float64 `json:"blur-sigma"`     // gaussian pre-blur sigma
	MinScoreRatio float64 `json:"min-score"`      // saddles below this fraction of the strongest are dropped
	NMSWindowSize int     `json:"win-size"`       // half window size for non-maximum suppression
	MaxCandidates int     `json:"max-candidates"` // cap on saddles kept after suppression
}

// DefaultSaddleConf stores the default parameters for saddle detection.
var DefaultSaddleConf = SaddleConfiguration{
	BlurSize:      5,
	BlurSigma:     1.2,
	MinScoreRatio: 0.05,
	NMSWindowSize: 4,
	MaxCandidates: 2000,
}

// Saddle is a candidate X-junction and its response.
type Saddle struct {
	Point image.Point
	Score float64
}

// computePixelWiseHessianDeterminant computes hessian components for each pixel and returns a *mat.Dense containing
// the value of the determinant of the Hessian for each pixel.
// The sign and value of the determinant of the Hessian gives location of saddle points.
func computePixelWiseHessianDeterminant(img *mat.Dense) (*mat.Dense, error) {
	nRows, nCols := img.Dims()
	sobelX := rimage.GetSobelX()
	sobelY := rimage.GetSobelY()
	gX, err := rimage.ConvolveGrayFloat64(img, &sobelX)
	if err != nil {
		return nil, err
	}
	gY, err := rimage.ConvolveGrayFloat64(img, &sobelY)
	if err != nil {
		return nil, err
	}
	gXX, err := rimage.ConvolveGrayFloat64(gX, &sobelX)
	if err != nil {
		return nil, err
	}
	gYY, err := rimage.ConvolveGrayFloat64(gY, &sobelY)
	if err != nil {
		return nil, err
	}
	gXY, err := rimage.ConvolveGrayFloat64(gX, &sobelY)
	if err != nil {
		return nil, err
	}
	m1 := mat.NewDense(nRows, nCols, nil)
	m2 := mat.NewDense(nRows, nCols, nil)
	out := mat.NewDense(nRows, nCols, nil)
	m1.MulElem(gXX, gYY)
	m2.MulElem(gXY, gXY)
	out.Sub(m1, m2)
	return out, nil
}

// SaddleMap returns the negated Hessian determinant clamped at zero, so that saddle points are
// positive peaks.
func SaddleMap(img *mat.Dense, conf *SaddleConfiguration) (*mat.Dense, error) {
	src := img
	if conf.BlurSize > 1 {
		kernel, err := rimage.GetGaussian(conf.BlurSize, conf.BlurSigma)
		if err != nil {
			return nil, err
		}
		src, err = rimage.ConvolveGrayFloat64(img, &kernel)
		if err != nil {
			return nil, err
		}
	}
	hessian, err := computePixelWiseHessianDeterminant(src)
	if err != nil {
		return nil, err
	}
	hessian.Apply(func(r, c int, v float64) float64 {
		if v > 0 {
			return 0
		}
		return -v
	}, hessian)
	return hessian, nil
}

// NonMaxSuppression keeps the pixels that are the strict maximum of their (2*winSize+1)² window
// and at least minScore, strongest first.
func NonMaxSuppression(saddle *mat.Dense, winSize int, minScore float64) []Saddle {
	h, w := saddle.Dims()
	raw := saddle.RawMatrix()
	at := func(y, x int) float64 { return raw.Data[y*raw.Stride+x] }

	var out []Saddle
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := at(y, x)
			if v <= 0 || v < minScore {
				continue
			}
			isMax := true
			for dy := -winSize; dy <= winSize && isMax; dy++ {
				yy := y + dy
				if yy < 0 || yy >= h {
					continue
				}
				for dx := -winSize; dx <= winSize; dx++ {
					xx := x + dx
					if xx < 0 || xx >= w || (dx == 0 && dy == 0) {
						continue
					}
					// ties go to the first pixel in raster order
					o := at(yy, xx)
					if o > v || (o == v && (dy < 0 || (dy == 0 && dx < 0))) {
						isMax = false
						break
					}
				}
			}
			if isMax {
				out = append(out, Saddle{image.Point{x, y}, v})
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

// GetSaddlePoints returns the suppressed saddle candidates of a luminance image, strongest first.
func GetSaddlePoints(img *mat.Dense, conf *SaddleConfiguration) ([]Saddle, error) {
	saddle, err := SaddleMap(img, conf)
	if err != nil {
		return nil, err
	}
	max := mat.Max(saddle)
	if max <= 0 {
		return nil, nil
	}
	points := NonMaxSuppression(saddle, conf.NMSWindowSize, max*conf.MinScoreRatio)
	if conf.MaxCandidates > 0 && len(points) > conf.MaxCandidates {
		points = points[:conf.MaxCandidates]
	}
	return points, nil
}
