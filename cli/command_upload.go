package cli

import (
	"context"
	"path/filepath"
	"time"

	"github.com/pkg/errors"

	"github.com/imxup/imxup/gallery"
	"github.com/imxup/imxup/internal/units"
)

type commandUpload struct {
	run commandUploadRun
}

func (c *commandUpload) setup(svc appServices, parent commandParent) {
	cmd := parent.Command("upload", "Commands to run uploads")

	c.run.setup(svc, cmd)
}

type commandUploadRun struct {
	paths []string
	all   bool

	out *textOutput
}

func (c *commandUploadRun) setup(svc appServices, parent commandParent) {
	cmd := parent.Command("run", "Upload queued galleries and wait for completion")
	cmd.Arg("path", "Gallery folders to start").StringsVar(&c.paths)
	cmd.Flag("all", "Start every startable gallery").BoolVar(&c.all)

	c.out = svc.output()
	cmd.Action(svc.workerAction(c.run))
}

func (c *commandUploadRun) run(ctx context.Context, rt *Runtime) error {
	started, err := c.startItems(ctx, rt)
	if err != nil {
		return err
	}

	if started == 0 {
		c.out.printStdout("nothing to upload\n")
		return nil
	}

	c.out.printStdout("uploading %v galleries, press Ctrl+C to stop after in-flight images\n", started)

	onCtrlC(func() {
		c.out.printStderr("stopping after in-flight images...\n")
		rt.Engine.RequestSoftStop()
	})

	c.waitForDrain(ctx, rt)
	c.printSummary(rt)

	return nil
}

func (c *commandUploadRun) startItems(ctx context.Context, rt *Runtime) (int, error) {
	if c.all {
		started := 0

		for _, g := range rt.Queue.GetAllItems() {
			if rt.Queue.StartItem(ctx, g.Path) {
				started++
			}
		}

		return started, nil
	}

	if len(c.paths) == 0 {
		return 0, errors.New("specify gallery folders or --all")
	}

	started := 0

	for _, p := range c.paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return 0, errors.Wrap(err, "invalid path")
		}

		if !rt.Queue.StartItem(ctx, abs) {
			return 0, errors.Errorf("unable to start %v", abs)
		}

		started++
	}

	return started, nil
}

// waitForDrain blocks until no gallery is queued or uploading, printing a
// throughput line while transfers are active.
func (c *commandUploadRun) waitForDrain(ctx context.Context, rt *Runtime) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		stats := rt.Queue.GetQueueStats()
		active := stats[gallery.StatusQueued].Count + stats[gallery.StatusUploading].Count

		if active == 0 {
			return
		}

		if cur := rt.Bandwidth.GetCurrent(); cur > 0 {
			c.out.printStdout("  %v galleries remaining, %v\r", active, units.KiBPerSecondString(cur))
		}
	}
}

func (c *commandUploadRun) printSummary(rt *Runtime) {
	stats := rt.Queue.GetQueueStats()

	c.out.printStdout("\ndone: %v completed, %v incomplete, %v failed, %v uploaded\n",
		stats[gallery.StatusCompleted].Count,
		stats[gallery.StatusIncomplete].Count,
		stats[gallery.StatusUploadFailed].Count+stats[gallery.StatusFailed].Count,
		units.BytesStringBase2(rt.Engine.TotalBytes()))
}
