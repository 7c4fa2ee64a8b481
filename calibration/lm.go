package calibration

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/camcalib/utils"
)

// blockProblem is a least squares problem whose residuals split into views. View v depends
// on the parameters shared by every view and on its own block of parameters, which keeps the
// Jacobian cheap to build numerically.
type blockProblem struct {
	shared     []float64
	sharedFree []bool
	blocks     [][]float64
	blockFree  []bool
	// counts[v] is the number of residuals of view v.
	counts []int
	// residuals writes the residuals of view v into out.
	residuals func(shared, block []float64, v int, out []float64)
}

// SolverOptions bound the Levenberg-Marquardt iterations.
type SolverOptions struct {
	MaxIterations int     `json:"max_iterations" yaml:"max_iterations"`
	Tolerance     float64 `json:"tolerance" yaml:"tolerance"`
}

// DefaultSolverOptions matches the termination of the usual camera calibration solvers.
var DefaultSolverOptions = SolverOptions{MaxIterations: 100, Tolerance: 1e-12}

type lmResult struct {
	cost       float64
	iterations int
}

func freeIndices(free []bool) []int {
	var idx []int
	for i, f := range free {
		if f {
			idx = append(idx, i)
		}
	}
	return idx
}

func (p *blockProblem) cost(shared []float64, blocks [][]float64, scratch [][]float64) float64 {
	total := 0.
	for v := range blocks {
		p.residuals(shared, blocks[v], v, scratch[v])
		for _, r := range scratch[v] {
			total += r * r
		}
	}
	return total
}

func numericStep(x float64) float64 {
	return 1e-6 * math.Max(1, math.Abs(x))
}

// jacobians returns, per view, the derivatives of its residuals with respect to the free
// shared parameters and the free block parameters, both row-major.
func (p *blockProblem) jacobians(freeShared, freeBlock []int) (js, jb [][]float64) {
	nViews := len(p.blocks)
	js = make([][]float64, nViews)
	jb = make([][]float64, nViews)
	plus := make([]float64, 0)
	minus := make([]float64, 0)
	for v := 0; v < nViews; v++ {
		m := p.counts[v]
		if cap(plus) < m {
			plus = make([]float64, m)
			minus = make([]float64, m)
		}
		plus, minus = plus[:m], minus[:m]
		js[v] = make([]float64, m*len(freeShared))
		jb[v] = make([]float64, m*len(freeBlock))

		shared := append([]float64(nil), p.shared...)
		for c, k := range freeShared {
			x := shared[k]
			h := numericStep(x)
			shared[k] = x + h
			p.residuals(shared, p.blocks[v], v, plus)
			shared[k] = x - h
			p.residuals(shared, p.blocks[v], v, minus)
			shared[k] = x
			for r := 0; r < m; r++ {
				js[v][r*len(freeShared)+c] = (plus[r] - minus[r]) / (2 * h)
			}
		}
		block := append([]float64(nil), p.blocks[v]...)
		for c, k := range freeBlock {
			x := block[k]
			h := numericStep(x)
			block[k] = x + h
			p.residuals(p.shared, block, v, plus)
			block[k] = x - h
			p.residuals(p.shared, block, v, minus)
			block[k] = x
			for r := 0; r < m; r++ {
				jb[v][r*len(freeBlock)+c] = (plus[r] - minus[r]) / (2 * h)
			}
		}
	}
	return js, jb
}

// solve runs Levenberg-Marquardt with Marquardt's diagonal scaling and updates the problem's
// parameters in place.
func (p *blockProblem) solve(opts SolverOptions) (lmResult, error) {
	freeShared := freeIndices(p.sharedFree)
	freeBlock := freeIndices(p.blockFree)
	nS, nB, nV := len(freeShared), len(freeBlock), len(p.blocks)
	nP := nS + nV*nB
	nR := 0
	for _, c := range p.counts {
		nR += c
	}
	if nP == 0 {
		return lmResult{}, errors.Wrap(ErrInsufficientData, "no free parameters")
	}
	if nR < nP {
		return lmResult{}, errors.Wrapf(ErrInsufficientData, "%d residuals cannot determine %d parameters", nR, nP)
	}
	if opts.MaxIterations <= 0 {
		opts = DefaultSolverOptions
	}

	scratch := make([][]float64, nV)
	for v := range scratch {
		scratch[v] = make([]float64, p.counts[v])
	}
	cost := p.cost(p.shared, p.blocks, scratch)
	if !utils.IsFinite(cost) {
		return lmResult{}, errors.Wrap(ErrCalibrationDiverged, "initial estimate is not finite")
	}

	lambda := 1e-3
	res := lmResult{cost: cost}
	normal := mat.NewSymDense(nP, nil)
	grad := mat.NewVecDense(nP, nil)
	for res.iterations = 0; res.iterations < opts.MaxIterations; res.iterations++ {
		js, jb := p.jacobians(freeShared, freeBlock)
		// scratch holds the residuals at the current estimate
		p.cost(p.shared, p.blocks, scratch)
		normal.Zero()
		grad.Zero()
		for v := 0; v < nV; v++ {
			off := nS + v*nB
			for r, rv := range scratch[v] {
				rowS := js[v][r*nS : (r+1)*nS]
				rowB := jb[v][r*nB : (r+1)*nB]
				for a := 0; a < nS; a++ {
					grad.SetVec(a, grad.AtVec(a)+rowS[a]*rv)
					for b := a; b < nS; b++ {
						normal.SetSym(a, b, normal.At(a, b)+rowS[a]*rowS[b])
					}
					for b := 0; b < nB; b++ {
						normal.SetSym(a, off+b, normal.At(a, off+b)+rowS[a]*rowB[b])
					}
				}
				for a := 0; a < nB; a++ {
					grad.SetVec(off+a, grad.AtVec(off+a)+rowB[a]*rv)
					for b := a; b < nB; b++ {
						normal.SetSym(off+a, off+b, normal.At(off+a, off+b)+rowB[a]*rowB[b])
					}
				}
			}
		}

		improved := false
		for !improved {
			damped := mat.NewSymDense(nP, nil)
			damped.CopySym(normal)
			for i := 0; i < nP; i++ {
				d := normal.At(i, i)
				damped.SetSym(i, i, d+lambda*math.Max(d, 1e-12))
			}
			var chol mat.Cholesky
			if !chol.Factorize(damped) {
				lambda *= 10
				if lambda > 1e16 {
					return res, errors.Wrap(ErrCalibrationDiverged, "normal equations are singular")
				}
				continue
			}
			var step mat.VecDense
			rhs := mat.VecDenseCopyOf(grad)
			rhs.ScaleVec(-1, rhs)
			if err := chol.SolveVecTo(&step, rhs); err != nil {
				var cond mat.Condition
				if !errors.As(err, &cond) {
					return res, errors.Wrap(ErrCalibrationDiverged, err.Error())
				}
			}

			shared := append([]float64(nil), p.shared...)
			for c, k := range freeShared {
				shared[k] += step.AtVec(c)
			}
			blocks := make([][]float64, nV)
			for v := range blocks {
				blocks[v] = append([]float64(nil), p.blocks[v]...)
				for c, k := range freeBlock {
					blocks[v][k] += step.AtVec(nS + v*nB + c)
				}
			}
			next := p.cost(shared, blocks, scratch)
			if !utils.IsFinite(next) || next >= cost {
				lambda *= 10
				if lambda > 1e16 {
					// no descent direction left; the current estimate is a minimum
					p.cost(p.shared, p.blocks, scratch)
					return res, nil
				}
				continue
			}
			improved = true
			lambda = math.Max(lambda/10, 1e-15)
			p.shared = shared
			p.blocks = blocks

			stepNorm := mat.Norm(&step, 2)
			paramNorm := 0.
			for _, x := range shared {
				paramNorm += x * x
			}
			for _, b := range blocks {
				for _, x := range b {
					paramNorm += x * x
				}
			}
			converged := cost-next <= opts.Tolerance*cost || stepNorm <= opts.Tolerance*(math.Sqrt(paramNorm)+opts.Tolerance)
			cost = next
			res.cost = cost
			if converged {
				res.iterations++
				return res, nil
			}
		}
	}
	return res, nil
}
