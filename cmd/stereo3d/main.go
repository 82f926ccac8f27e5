// Package main is a command line tool that triangulates matched stereo DIC observations.
package main

import (
	"context"
	"io"
	"log"
	"os"
	"strings"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.viam.com/utils"

	"go.viam.com/stereodic/logging"
	"go.viam.com/stereodic/poi"
	"go.viam.com/stereodic/rimage/transform"
)

const (
	flagView1     = "view1"
	flagView2     = "view2"
	flagCamera    = "camera"
	flagPoints    = "points"
	flagOutput    = "output"
	flagHeight    = "height"
	flagWidth     = "width"
	flagThreads   = "threads"
	flagDelimiter = "delimiter"
	flagDebug     = "debug"
	flagPlot      = "plot"
	flagQuantity  = "quantity"
)

func main() {
	if err := newApp(os.Stdout).Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp(out io.Writer) *cli.App {
	var logger logging.Logger

	sizeFlags := []cli.Flag{
		&cli.IntFlag{Name: flagHeight, Usage: "image height in pixels", Required: true},
		&cli.IntFlag{Name: flagWidth, Usage: "image width in pixels", Required: true},
		&cli.IntFlag{Name: flagThreads, Usage: "worker count, 0 uses all CPUs"},
		&cli.StringFlag{Name: flagDelimiter, Usage: "table column delimiter", Value: ","},
		&cli.StringFlag{Name: flagOutput, Aliases: []string{"o"}, Usage: "write the table to `FILE` instead of stdout"},
	}

	return &cli.App{
		Name:      "stereo3d",
		Usage:     "stereo digital image correlation geometry",
		Writer:    out,
		ErrWriter: out,
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: flagDebug, Aliases: []string{"vvv"}, Usage: "enable debug logging"},
		},
		Before: func(c *cli.Context) error {
			logger = logging.NewBlankLogger("stereo3d")
			logger.AddAppender(logging.NewStderrAppender())
			if !c.Bool(flagDebug) {
				logger.SetLevel(logging.INFO)
			}
			return nil
		},
		After: func(c *cli.Context) error {
			if logger == nil {
				return nil
			}
			return logger.Sync()
		},
		Commands: []*cli.Command{
			{
				Name:      "reconstruct",
				Usage:     "triangulate matched POIs and write their 3D displacement table",
				UsageText: "stereo3d reconstruct --view1 FILE --view2 FILE --points FILE --height H --width W",
				Flags: append([]cli.Flag{
					&cli.StringFlag{Name: flagView1, Usage: "calibration of the principal camera", Required: true},
					&cli.StringFlag{Name: flagView2, Usage: "calibration of the secondary camera", Required: true},
					&cli.StringFlag{
						Name:     flagPoints,
						Usage:    "table of r1_x, r1_y, r2_x, r2_y[, t1_x, t1_y, t2_x, t2_y]",
						Required: true,
					},
					&cli.StringFlag{Name: flagPlot, Usage: "also draw a map of the POIs to `FILE` (png, svg, pdf)"},
					&cli.StringFlag{
						Name:  flagQuantity,
						Usage: "quantity colored in the map, one of " + strings.Join(poi.MapQuantities, ", "),
						Value: "w",
					},
				}, sizeFlags...),
				Action: func(c *cli.Context) error {
					return reconstructAction(c, logger)
				},
			},
			{
				Name:      "undistort",
				Usage:     "map observed pixel coordinates of one camera to ideal coordinates",
				UsageText: "stereo3d undistort --camera FILE --points FILE --height H --width W",
				Flags: append([]cli.Flag{
					&cli.StringFlag{Name: flagCamera, Usage: "camera calibration", Required: true},
					&cli.StringFlag{Name: flagPoints, Usage: "table of x, y", Required: true},
				}, sizeFlags...),
				Action: func(c *cli.Context) error {
					return undistortAction(c, logger)
				},
			},
		},
	}
}

func delimiter(c *cli.Context) (rune, error) {
	d := []rune(c.String(flagDelimiter))
	if len(d) != 1 {
		return 0, errors.Errorf("delimiter must be a single character, got %q", c.String(flagDelimiter))
	}
	return d[0], nil
}

// withOutput runs write against the output file, or the app writer when none is given.
func withOutput(c *cli.Context, write func(io.Writer) error) (err error) {
	path := c.String(flagOutput)
	if path == "" {
		return write(c.App.Writer)
	}
	//nolint:gosec
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := f.Close(); err == nil {
			err = closeErr
		}
	}()
	return write(f)
}

func readTable[T any](path string, delim rune, load func(io.Reader, rune) ([]T, error)) ([]T, error) {
	//nolint:gosec
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer utils.UncheckedErrorFunc(f.Close)
	return load(f, delim)
}

func loadPreparedCamera(ctx context.Context, path string, height, width, threads int, logger logging.Logger) (*transform.Calibration, error) {
	cam, err := transform.ReadCalibrationFile(path, logger)
	if err != nil {
		return nil, err
	}
	cam.SetThreads(threads)
	if err := cam.Prepare(ctx, height, width); err != nil {
		return nil, errors.Wrapf(err, "preparing %q", path)
	}
	return cam, nil
}

func reconstructAction(c *cli.Context, logger logging.Logger) error {
	delim, err := delimiter(c)
	if err != nil {
		return err
	}
	height, width, threads := c.Int(flagHeight), c.Int(flagWidth), c.Int(flagThreads)

	view1, err := loadPreparedCamera(c.Context, c.String(flagView1), height, width, threads, logger.Sublogger("view1"))
	if err != nil {
		return err
	}
	view2, err := loadPreparedCamera(c.Context, c.String(flagView2), height, width, threads, logger.Sublogger("view2"))
	if err != nil {
		return err
	}
	sv := transform.NewStereovision(view1, view2, threads, logger.Sublogger("stereo"))
	if err := sv.Prepare(); err != nil {
		return err
	}

	pois, err := readTable(c.String(flagPoints), delim, poi.LoadStereoMatches)
	if err != nil {
		return err
	}
	logger.Infow("reconstructing", "pois", len(pois), "threads", threads)

	pois, err = poi.Reconstruct(c.Context, sv, pois)
	if err != nil {
		return err
	}
	if len(pois) > 0 {
		summary, err := poi.SummarizeDisplacements(pois)
		if err != nil {
			return err
		}
		logger.Infof("displacement summary\n%s", summary)
	}
	if path := c.String(flagPlot); path != "" {
		if err := poi.SaveMapPlot(pois, c.String(flagQuantity), path); err != nil {
			return errors.Wrap(err, "plotting map")
		}
	}
	return withOutput(c, func(w io.Writer) error {
		return poi.SavePOI2DSTable(w, delim, pois)
	})
}

func undistortAction(c *cli.Context, logger logging.Logger) error {
	delim, err := delimiter(c)
	if err != nil {
		return err
	}
	cam, err := loadPreparedCamera(c.Context, c.String(flagCamera), c.Int(flagHeight), c.Int(flagWidth), c.Int(flagThreads), logger)
	if err != nil {
		return err
	}
	pts, err := readTable(c.String(flagPoints), delim, poi.LoadPoints2D)
	if err != nil {
		return err
	}
	ideal := make([]r2.Point, len(pts))
	for i, p := range pts {
		if ideal[i], err = cam.Undistort(p); err != nil {
			return errors.Wrapf(err, "point %d", i)
		}
	}
	return withOutput(c, func(w io.Writer) error {
		return poi.SavePoints2D(w, delim, ideal)
	})
}
