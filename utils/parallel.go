// Package utils contains small helpers shared by the image and calibration packages.
package utils

import (
	"image"
	"runtime"
	"sync"

	"go.viam.com/utils"
)

// ParallelFactor controls the max level of parallelization. This might be useful
// to set in tests where too much parallelism actually slows tests down in
// aggregate.
var ParallelFactor = runtime.GOMAXPROCS(0)

func init() {
	if ParallelFactor <= 0 {
		ParallelFactor = 1
	}
}

// ParallelForEachPixel loops through the image and calls f for each [x, y] position.
// The image is split into horizontal bands, one goroutine per band. f must only write
// to state owned by its own pixel.
func ParallelForEachPixel(size image.Point, f func(x, y int)) {
	ParallelForEachRow(size.Y, func(y int) {
		for x := 0; x < size.X; x++ {
			f(x, y)
		}
	})
}

// ParallelForEachRow calls f once for every row in [0, rows), spread over ParallelFactor goroutines.
func ParallelForEachRow(rows int, f func(y int)) {
	if rows <= 0 {
		return
	}
	procs := ParallelFactor
	if procs > rows {
		procs = rows
	}
	band := (rows + procs - 1) / procs

	var waitGroup sync.WaitGroup
	for start := 0; start < rows; start += band {
		end := start + band
		if end > rows {
			end = rows
		}
		waitGroup.Add(1)
		s, e := start, end
		utils.PanicCapturingGo(func() {
			defer waitGroup.Done()
			for y := s; y < e; y++ {
				f(y)
			}
		})
	}
	waitGroup.Wait()
}
