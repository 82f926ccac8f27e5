package transform

import (
	"context"
	"time"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"

	"go.viam.com/stereodic/utils"
)

// ErrOutOfMap is returned when an undistortion query lies outside the prepared map.
var ErrOutOfMap = errors.New("point is outside the undistortion map")

// undistortionMap stores, for every integer observed pixel (c, r), its ideal position.
type undistortionMap struct {
	height, width int
	mapX, mapY    []float64

	// parameters the map was built with
	intrinsics  CameraIntrinsics
	convergence float64
	iteration   int
}

func (um *undistortionMap) contains(p r2.Point) bool {
	return p.X >= 0 && p.Y >= 0 && p.X <= float64(um.width-1) && p.Y <= float64(um.height-1)
}

// at bilinearly interpolates the map. The caller checks contains first.
func (um *undistortionMap) at(p r2.Point) r2.Point {
	x0, y0 := int(p.X), int(p.Y)
	if x0 >= um.width-1 {
		x0 = um.width - 2
	}
	if y0 >= um.height-1 {
		y0 = um.height - 2
	}
	dx, dy := p.X-float64(x0), p.Y-float64(y0)

	k00 := y0*um.width + x0
	k01 := k00 + 1
	k10 := k00 + um.width
	k11 := k10 + 1
	w00 := (1 - dx) * (1 - dy)
	w01 := dx * (1 - dy)
	w10 := (1 - dx) * dy
	w11 := dx * dy
	return r2.Point{
		X: w00*um.mapX[k00] + w01*um.mapX[k01] + w10*um.mapX[k10] + w11*um.mapX[k11],
		Y: w00*um.mapY[k00] + w01*um.mapY[k01] + w10*um.mapY[k10] + w11*um.mapY[k11],
	}
}

// Prepare builds the undistortion map of an image of the given size: for every integer
// observed pixel it solves for the ideal position with the current intrinsics, bounded by the
// configured convergence and iteration. Rows are split across the configured number of
// workers. Must not run concurrently with queries on this calibration.
func (c *Calibration) Prepare(ctx context.Context, height, width int) error {
	if height < 2 || width < 2 {
		return errors.Errorf("undistortion map needs at least 2x2 pixels, got %dx%d", width, height)
	}
	if err := c.checkFresh(); err != nil {
		return err
	}
	start := time.Now()

	um := c.umap
	if um == nil || um.height != height || um.width != width {
		um = &undistortionMap{
			height: height,
			width:  width,
			mapX:   make([]float64, height*width),
			mapY:   make([]float64, height*width),
		}
	}
	// the map is unusable until fully rebuilt
	c.umap = nil

	convergence, iteration := c.convergence, c.iteration
	err := utils.GroupWorkParallel(ctx, c.threads, height, nil,
		func(groupNum, groupSize, from, to int) (utils.MemberWorkFunc, utils.GroupWorkDoneFunc) {
			return func(memberNum, r int) {
				row := r * width
				for col := 0; col < width; col++ {
					u := c.solveUndistortion(r2.Point{X: float64(col), Y: float64(r)}, convergence, iteration)
					um.mapX[row+col] = u.X
					um.mapY[row+col] = u.Y
				}
			}, nil
		})
	if err != nil {
		return errors.Wrap(err, "building undistortion map")
	}
	um.intrinsics = c.Intrinsics
	um.convergence = convergence
	um.iteration = iteration
	c.umap = um
	c.logger.Debugw("undistortion map prepared",
		"width", width, "height", height, "threads", utils.NumGroups(c.threads, height), "duration", time.Since(start))
	return nil
}

// Prepared reports whether the undistortion map exists and matches the current intrinsics.
func (c *Calibration) Prepared() bool {
	return c.umap != nil && c.umap.intrinsics == c.Intrinsics
}

// MapSize returns the dimensions of the undistortion map, zero if none was built.
func (c *Calibration) MapSize() (int, int) {
	if c.umap == nil {
		return 0, 0
	}
	return c.umap.height, c.umap.width
}

// Undistort maps an observed (distorted) pixel coordinate to its ideal position by bilinear
// interpolation of the map built by Prepare. Safe for concurrent use once Prepare has returned.
func (c *Calibration) Undistort(p r2.Point) (r2.Point, error) {
	if !c.Prepared() {
		return r2.Point{}, errors.Wrap(ErrNotPrepared, "undistortion map missing or built for other intrinsics")
	}
	um := c.umap
	if !um.contains(p) {
		return r2.Point{}, errors.Wrapf(ErrOutOfMap, "query (%.3f, %.3f) in %dx%d map", p.X, p.Y, um.width, um.height)
	}
	return um.at(p), nil
}
