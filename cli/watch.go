package cli

import (
	"context"
	"io"
	"os"
	"os/signal"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"go.viam.com/camcalib/calibration"
	"go.viam.com/camcalib/logging"
	"go.viam.com/camcalib/rimage"
)

// minWatchViews is the number of views collected before the first solve.
const minWatchViews = 3

// dirCalibrator feeds images appearing in a directory into a session, recalibrating and saving
// after each one that shows the pattern.
type dirCalibrator struct {
	session *calibration.Session
	cfg     *calibration.Config
	output  string
	out     io.Writer
	logger  logging.Logger
	seen    map[string]bool
}

func newDirCalibrator(
	s *calibration.Session,
	cfg *calibration.Config,
	output string,
	out io.Writer,
	logger logging.Logger,
) *dirCalibrator {
	return &dirCalibrator{session: s, cfg: cfg, output: output, out: out, logger: logger, seen: map[string]bool{}}
}

// handle processes one image file. Files that are not images or were seen already are skipped.
func (d *dirCalibrator) handle(path string) error {
	if !rimage.IsImageFile(path) || d.seen[path] {
		return nil
	}
	img, err := rimage.ReadBufferFromFile(path)
	if err != nil {
		// the file may still be being written; a later write event retries it
		d.logger.Debugw("cannot read image yet", "path", path, "error", err)
		return nil
	}
	d.seen[path] = true
	if err := d.session.Add(img); err != nil {
		if errors.Is(err, calibration.ErrPatternNotFound) {
			warningf(d.out, "pattern not found in %s", path)
			return nil
		}
		return err
	}
	if d.session.Size() < minWatchViews {
		printf(d.out, "%s: %d views, need %d to calibrate", path, d.session.Size(), minWatchViews)
		return nil
	}
	if err := d.session.Calibrate(); err != nil {
		warningf(d.out, "calibration failed with %d views: %v", d.session.Size(), err)
		return nil
	}
	if d.cfg.CleanAfter > 0 && d.session.Size() > d.cfg.CleanAfter {
		if err := d.session.Clean(d.cfg.MaxReprojectionError); err != nil {
			warningf(d.out, "clean failed: %v", err)
		}
	}
	if !d.session.Ready() {
		return nil
	}
	if err := d.session.Save(d.output); err != nil {
		return err
	}
	printf(d.out, "%s: %d views, reprojection error %.4f px, saved to %s",
		path, d.session.Size(), d.session.ReprojectionError(), d.output)
	return nil
}

// run watches dir until ctx is done.
func (d *dirCalibrator) run(ctx context.Context, dir string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() {
		if err := watcher.Close(); err != nil {
			d.logger.Debugw("closing watcher", "error", err)
		}
	}()
	if err := watcher.Add(dir); err != nil {
		return errors.Wrapf(err, "cannot watch %q", dir)
	}
	d.logger.Infow("watching for images", "dir", dir)
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if err := d.handle(event.Name); err != nil {
				return err
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			d.logger.Warnw("watcher error", "error", err)
		}
	}
}

// WatchAction calibrates continuously from images written into a directory.
func WatchAction(c *cli.Context) error {
	logger := newLogger(c)
	s, cfg, err := newSession(c, logger)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt)
	defer stop()
	return newDirCalibrator(s, cfg, c.String(outputFlag), c.App.Writer, logger).run(ctx, c.String(dirFlag))
}
