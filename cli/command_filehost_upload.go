package cli

import (
	"context"
	"path/filepath"
	"time"

	"github.com/pkg/errors"

	"github.com/imxup/imxup/filehost"
	"github.com/imxup/imxup/internal/units"
)

type commandFileHostUpload struct {
	host  string
	paths []string

	out *textOutput
}

func (c *commandFileHostUpload) setup(svc appServices, parent commandParent) {
	cmd := parent.Command("upload", "Upload gallery archives to a file host")
	cmd.Flag("host", "Destination host name").Required().StringVar(&c.host)
	cmd.Arg("path", "Gallery folders").Required().StringsVar(&c.paths)

	c.out = svc.output()
	cmd.Action(svc.workerAction(c.run))
}

func (c *commandFileHostUpload) run(ctx context.Context, rt *Runtime) error {
	done := make(chan struct{}, len(c.paths))

	rt.FileHosts.Events().UploadCompleted.Subscribe(func(ev filehost.UploadCompleted) {
		c.out.printStdout("uploaded to %v: %v\n", ev.Host, ev.DownloadURL)
		done <- struct{}{}
	})
	rt.FileHosts.Events().UploadFailed.Subscribe(func(ev filehost.UploadFailed) {
		c.out.printStderr("upload to %v failed: %v\n", ev.Host, ev.Error)
		done <- struct{}{}
	})
	rt.FileHosts.Events().StorageUpdated.Subscribe(func(ev filehost.StorageUpdated) {
		if ev.Total == filehost.UnlimitedQuota {
			c.out.printStdout("%v: unlimited storage\n", ev.Host)
		} else {
			c.out.printStdout("%v: %v of %v free\n", ev.Host,
				units.BytesStringBase2(ev.Left), units.BytesStringBase2(ev.Total))
		}
	})

	for _, p := range c.paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return errors.Wrap(err, "invalid path")
		}

		if err := rt.FileHosts.EnqueueUpload(ctx, abs, c.host); err != nil {
			return err
		}
	}

	for range c.paths {
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err() //nolint:wrapcheck
		case <-time.After(time.Hour):
			return errors.New("timed out waiting for file host uploads")
		}
	}

	return nil
}
