// Package circlegrid finds the centers of dark circles arranged in a symmetric or asymmetric grid.
package circlegrid

import (
	"image"
	"math"

	"github.com/golang/geo/r2"
)

const (
	luminanceBits    = 5
	luminanceShift   = 8 - luminanceBits
	luminanceBuckets = 1 << luminanceBits
)

// estimateBlackPoint picks the valley between the two dominant histogram peaks. It returns
// false when the histogram is not bimodal enough to separate dots from background.
func estimateBlackPoint(buckets []int) (int, bool) {
	numBuckets := len(buckets)
	maxBucketCount := 0
	firstPeak := 0
	firstPeakSize := 0
	for x := 0; x < numBuckets; x++ {
		if buckets[x] > firstPeakSize {
			firstPeak = x
			firstPeakSize = buckets[x]
		}
		if buckets[x] > maxBucketCount {
			maxBucketCount = buckets[x]
		}
	}

	secondPeak := 0
	secondPeakScore := 0
	for x := 0; x < numBuckets; x++ {
		dist := x - firstPeak
		score := buckets[x] * dist * dist
		if score > secondPeakScore {
			secondPeak = x
			secondPeakScore = score
		}
	}

	if firstPeak > secondPeak {
		firstPeak, secondPeak = secondPeak, firstPeak
	}
	if secondPeak-firstPeak <= numBuckets/16 {
		return 0, false
	}

	bestValley := secondPeak - 1
	bestValleyScore := -1
	for x := secondPeak - 1; x > firstPeak; x-- {
		fromFirst := x - firstPeak
		score := fromFirst * fromFirst * (secondPeak - x) * (maxBucketCount - buckets[x])
		if score > bestValleyScore {
			bestValley = x
			bestValleyScore = score
		}
	}
	return bestValley << luminanceShift, true
}

// BlackPoint returns the luminance below which pixels count as dark.
func BlackPoint(gray *image.Gray) (uint8, bool) {
	buckets := make([]int, luminanceBuckets)
	b := gray.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := gray.Pix[(y-b.Min.Y)*gray.Stride : (y-b.Min.Y)*gray.Stride+b.Dx()]
		for _, v := range row {
			buckets[v>>luminanceShift]++
		}
	}
	bp, ok := estimateBlackPoint(buckets)
	if !ok {
		return 0, false
	}
	return uint8(bp), true
}

// Blob is a 4-connected dark region.
type Blob struct {
	Center r2.Point
	Area   int
	Bounds image.Rectangle
}

// Fill returns the fraction of the bounding box covered by the blob; a disc covers pi/4.
func (b Blob) Fill() float64 {
	box := b.Bounds.Dx() * b.Bounds.Dy()
	if box == 0 {
		return 0
	}
	return float64(b.Area) / float64(box)
}

// Aspect returns the bounding box aspect ratio, >= 1.
func (b Blob) Aspect() float64 {
	w, h := float64(b.Bounds.Dx()), float64(b.Bounds.Dy())
	if w == 0 || h == 0 {
		return math.Inf(1)
	}
	return math.Max(w/h, h/w)
}

// FindDarkBlobs labels the 4-connected regions below threshold and returns their centroids.
// Regions touching the image border are dropped.
func FindDarkBlobs(gray *image.Gray, threshold uint8) []Blob {
	b := gray.Bounds()
	w, h := b.Dx(), b.Dy()
	labels := make([]int32, w*h)
	dark := func(x, y int) bool {
		return gray.Pix[y*gray.Stride+x] < threshold
	}

	var blobs []Blob
	stack := make([]image.Point, 0, 256)
	var next int32
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if labels[y*w+x] != 0 || !dark(x, y) {
				continue
			}
			next++
			labels[y*w+x] = next
			stack = append(stack[:0], image.Point{x, y})
			var sumX, sumY float64
			area := 0
			touches := false
			box := image.Rectangle{Min: image.Point{x, y}, Max: image.Point{x + 1, y + 1}}
			for len(stack) > 0 {
				p := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				area++
				sumX += float64(p.X)
				sumY += float64(p.Y)
				box = box.Union(image.Rectangle{Min: p, Max: p.Add(image.Point{1, 1})})
				if p.X == 0 || p.Y == 0 || p.X == w-1 || p.Y == h-1 {
					touches = true
				}
				for _, d := range [4]image.Point{{1, 0}, {-1, 0}, {0, 1}, {0, -1}} {
					q := p.Add(d)
					if q.X < 0 || q.Y < 0 || q.X >= w || q.Y >= h {
						continue
					}
					if labels[q.Y*w+q.X] == 0 && dark(q.X, q.Y) {
						labels[q.Y*w+q.X] = next
						stack = append(stack, q)
					}
				}
			}
			if touches {
				continue
			}
			blobs = append(blobs, Blob{
				Center: r2.Point{X: sumX / float64(area), Y: sumY / float64(area)},
				Area:   area,
				Bounds: box,
			})
		}
	}
	return blobs
}
