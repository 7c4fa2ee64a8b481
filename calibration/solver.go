package calibration

import (
	"image"
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/camcalib/rimage/transform"
)

// SolverFlags select which parts of the camera model are held fixed during calibration.
type SolverFlags uint

// Solver flags. The zero value estimates fx, fy, cx, cy, k1, k2, p1, p2 and k3.
const (
	// FixPrincipalPoint keeps the principal point at the image center.
	FixPrincipalPoint SolverFlags = 1 << iota
	// FixAspectRatio estimates a single focal length, fx == fy.
	FixAspectRatio
	// ZeroTangentDist holds p1 and p2 at zero.
	ZeroTangentDist
	// FixK1 holds k1 at zero.
	FixK1
	// FixK2 holds k2 at zero.
	FixK2
	// FixK3 holds k3 at zero.
	FixK3
	// RationalModel also estimates k4, k5 and k6.
	RationalModel
)

// Has reports whether every flag in f is set.
func (s SolverFlags) Has(f SolverFlags) bool {
	return s&f == f
}

// shared parameter layout of the camera problem
const (
	paramFx = iota
	paramFy
	paramCx
	paramCy
	paramDist
	numCameraParams = paramDist + transform.NumDistortionCoefficients
)

// poseBlockSize is the number of parameters of a pose: a Rodrigues vector and a translation.
const poseBlockSize = 6

func poseToBlock(p transform.Pose) []float64 {
	return []float64{p.Rotation.X, p.Rotation.Y, p.Rotation.Z, p.Translation.X, p.Translation.Y, p.Translation.Z}
}

func blockToPose(b []float64) transform.Pose {
	return transform.Pose{
		Rotation:    r3.Vector{X: b[0], Y: b[1], Z: b[2]},
		Translation: r3.Vector{X: b[3], Y: b[4], Z: b[5]},
	}
}

func cameraFromShared(s []float64, flags SolverFlags) (transform.CameraMatrix, transform.DistortionCoefficients) {
	k := transform.CameraMatrix{Fx: s[paramFx], Fy: s[paramFy], Cx: s[paramCx], Cy: s[paramCy]}
	if flags.Has(FixAspectRatio) {
		k.Fy = k.Fx
	}
	var d transform.DistortionCoefficients
	copy(d[:], s[paramDist:])
	return k, d
}

// projectionResiduals writes observed minus projected coordinates, x then y per point.
func projectionResiduals(
	k transform.CameraMatrix,
	d transform.DistortionCoefficients,
	pose transform.Pose,
	object []r3.Vector,
	observed []r2.Point,
	out []float64,
) {
	projected := transform.ProjectPoints(k, d, pose, object)
	for i, p := range projected {
		out[2*i] = observed[i].X - p.X
		out[2*i+1] = observed[i].Y - p.Y
	}
}

// cameraSolution is the output of a camera calibration.
type cameraSolution struct {
	cameraMatrix transform.CameraMatrix
	distortion   transform.DistortionCoefficients
	poses        []transform.Pose
	rms          float64
	iterations   int
}

func planarHomography(object []r3.Vector, image []r2.Point) (*transform.Homography, error) {
	src := make([]r2.Point, len(object))
	for i, o := range object {
		if o.Z != 0 {
			return nil, newInvalidArgumentError("object points must lie on the z = 0 plane")
		}
		src[i] = r2.Point{X: o.X, Y: o.Y}
	}
	return transform.EstimateHomography(src, image)
}

// initialCameraMatrix estimates focal lengths from the homographies of all views with the
// principal point fixed at the image center, using the orthogonality of the plane's axes and
// their equal length.
func initialCameraMatrix(homographies []*transform.Homography, size image.Point, flags SolverFlags) (transform.CameraMatrix, error) {
	cx, cy := float64(size.X-1)/2, float64(size.Y-1)/2
	a := mat.NewDense(2*len(homographies), 2, nil)
	b := mat.NewVecDense(2*len(homographies), nil)
	for i, h := range homographies {
		m := h.Matrix()
		// move the principal point to the origin
		for j := 0; j < 3; j++ {
			m[0][j] -= m[2][j] * cx
			m[1][j] -= m[2][j] * cy
		}
		c1 := r3.Vector{X: m[0][0], Y: m[1][0], Z: m[2][0]}
		c2 := r3.Vector{X: m[0][1], Y: m[1][1], Z: m[2][1]}
		d1 := c1.Add(c2).Mul(0.5)
		d2 := c1.Sub(c2).Mul(0.5)
		c1, c2 = c1.Normalize(), c2.Normalize()
		d1, d2 = d1.Normalize(), d2.Normalize()
		a.Set(2*i, 0, c1.X*c2.X)
		a.Set(2*i, 1, c1.Y*c2.Y)
		b.SetVec(2*i, -c1.Z*c2.Z)
		a.Set(2*i+1, 0, d1.X*d2.X)
		a.Set(2*i+1, 1, d1.Y*d2.Y)
		b.SetVec(2*i+1, -d1.Z*d2.Z)
	}
	var f mat.VecDense
	if err := f.SolveVec(a, b); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) {
			return transform.CameraMatrix{}, errors.Wrap(ErrCalibrationDiverged, err.Error())
		}
	}
	fx := math.Sqrt(math.Abs(1 / f.AtVec(0)))
	fy := math.Sqrt(math.Abs(1 / f.AtVec(1)))
	if flags.Has(FixAspectRatio) {
		fx = (fx + fy) / 2
		fy = fx
	}
	k := transform.CameraMatrix{Fx: fx, Fy: fy, Cx: cx, Cy: cy}
	if err := k.CheckValid(); err != nil {
		return transform.CameraMatrix{}, errors.Wrap(ErrCalibrationDiverged, err.Error())
	}
	return k, nil
}

// calibrateCamera solves for one camera matrix, one distortion vector and one pose per view
// minimizing the total squared reprojection error.
func calibrateCamera(
	objectPoints [][]r3.Vector,
	imagePoints [][]r2.Point,
	size image.Point,
	flags SolverFlags,
	opts SolverOptions,
) (*cameraSolution, error) {
	nViews := len(imagePoints)
	if nViews == 0 {
		return nil, errors.Wrap(ErrInsufficientData, "no views")
	}
	if size.X <= 0 || size.Y <= 0 {
		return nil, newPreconditionError("image size %v is not known", size)
	}

	homographies := make([]*transform.Homography, nViews)
	for v := range imagePoints {
		h, err := planarHomography(objectPoints[v], imagePoints[v])
		if err != nil {
			return nil, errors.Wrapf(ErrCalibrationDiverged, "view %d: %v", v, err)
		}
		homographies[v] = h
	}
	k0, err := initialCameraMatrix(homographies, size, flags)
	if err != nil {
		return nil, err
	}

	prob := &blockProblem{
		shared:     make([]float64, numCameraParams),
		sharedFree: make([]bool, numCameraParams),
		blocks:     make([][]float64, nViews),
		blockFree:  []bool{true, true, true, true, true, true},
		counts:     make([]int, nViews),
	}
	prob.shared[paramFx], prob.shared[paramFy] = k0.Fx, k0.Fy
	prob.shared[paramCx], prob.shared[paramCy] = k0.Cx, k0.Cy
	for i := range prob.sharedFree {
		prob.sharedFree[i] = true
	}
	if flags.Has(FixAspectRatio) {
		prob.sharedFree[paramFy] = false
	}
	if flags.Has(FixPrincipalPoint) {
		prob.sharedFree[paramCx], prob.sharedFree[paramCy] = false, false
	}
	dist := prob.sharedFree[paramDist:]
	dist[0] = !flags.Has(FixK1)
	dist[1] = !flags.Has(FixK2)
	dist[2] = !flags.Has(ZeroTangentDist)
	dist[3] = !flags.Has(ZeroTangentDist)
	dist[4] = !flags.Has(FixK3)
	for i := 5; i < transform.NumDistortionCoefficients; i++ {
		dist[i] = flags.Has(RationalModel)
	}

	for v := range imagePoints {
		pose, err := transform.PoseFromHomography(k0, homographies[v])
		if err != nil {
			return nil, errors.Wrapf(ErrCalibrationDiverged, "view %d: %v", v, err)
		}
		prob.blocks[v] = poseToBlock(pose)
		prob.counts[v] = 2 * len(imagePoints[v])
	}
	prob.residuals = func(shared, block []float64, v int, out []float64) {
		k, d := cameraFromShared(shared, flags)
		projectionResiduals(k, d, blockToPose(block), objectPoints[v], imagePoints[v], out)
	}

	res, err := prob.solve(opts)
	if err != nil {
		return nil, err
	}
	k, d := cameraFromShared(prob.shared, flags)
	if err := k.CheckValid(); err != nil {
		return nil, errors.Wrap(ErrCalibrationDiverged, err.Error())
	}
	if err := d.CheckValid(); err != nil {
		return nil, errors.Wrap(ErrCalibrationDiverged, err.Error())
	}
	total := 0
	for _, c := range prob.counts {
		total += c / 2
	}
	sol := &cameraSolution{
		cameraMatrix: k,
		distortion:   d,
		poses:        make([]transform.Pose, nViews),
		rms:          math.Sqrt(res.cost / float64(total)),
		iterations:   res.iterations,
	}
	for v, b := range prob.blocks {
		sol.poses[v] = blockToPose(b)
	}
	return sol, nil
}

// EstimatePose finds the pose of a planar object seen by a calibrated camera: an exact
// homography estimate on undistorted coordinates, refined by minimizing the reprojection error.
func EstimatePose(
	k transform.CameraMatrix,
	d transform.DistortionCoefficients,
	object []r3.Vector,
	observed []r2.Point,
) (transform.Pose, error) {
	if len(object) != len(observed) {
		return transform.Pose{}, newInvalidArgumentError("%d object points for %d image points", len(object), len(observed))
	}
	if len(object) < 4 {
		return transform.Pose{}, errors.Wrapf(ErrInsufficientData, "pose needs 4 points, got %d", len(object))
	}
	ideal := make([]r2.Point, len(observed))
	for i, p := range observed {
		ideal[i] = d.Undistort(k.Normalize(p))
	}
	h, err := planarHomography(object, ideal)
	if err != nil {
		return transform.Pose{}, err
	}
	unit := transform.CameraMatrix{Fx: 1, Fy: 1}
	initial, err := transform.PoseFromHomography(unit, h)
	if err != nil {
		return transform.Pose{}, err
	}

	prob := &blockProblem{
		blocks:    [][]float64{poseToBlock(initial)},
		blockFree: []bool{true, true, true, true, true, true},
		counts:    []int{2 * len(object)},
		residuals: func(_, block []float64, _ int, out []float64) {
			projectionResiduals(k, d, blockToPose(block), object, observed, out)
		},
	}
	if _, err := prob.solve(DefaultSolverOptions); err != nil {
		return transform.Pose{}, err
	}
	return blockToPose(prob.blocks[0]), nil
}

// viewErrors returns the per-view RMS reprojection errors and the pooled RMS over all points.
func viewErrors(
	k transform.CameraMatrix,
	d transform.DistortionCoefficients,
	poses []transform.Pose,
	objectPoints [][]r3.Vector,
	imagePoints [][]r2.Point,
) ([]float64, float64) {
	perView := make([]float64, len(imagePoints))
	totalErr := 0.
	totalPoints := 0
	for v := range imagePoints {
		projected := transform.ProjectPoints(k, d, poses[v], objectPoints[v])
		sum := 0.
		for i, p := range projected {
			e := imagePoints[v][i].Sub(p)
			sum += e.Dot(e)
		}
		n := len(projected)
		if n > 0 {
			perView[v] = math.Sqrt(sum / float64(n))
		}
		totalErr += sum
		totalPoints += n
	}
	if totalPoints == 0 {
		return perView, 0
	}
	return perView, math.Sqrt(totalErr / float64(totalPoints))
}
