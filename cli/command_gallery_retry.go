package cli

import (
	"context"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/imxup/imxup/gallery"
)

type commandGalleryRetry struct {
	path string
	full bool

	out *textOutput
}

func (c *commandGalleryRetry) setup(svc appServices, parent commandParent) {
	cmd := parent.Command("retry", "Reset a failed gallery so it can be uploaded again")
	cmd.Arg("path", "Gallery folder").Required().StringVar(&c.path)
	cmd.Flag("full", "Re-upload all images, not just the missing ones").BoolVar(&c.full)

	c.out = svc.output()
	cmd.Action(svc.baseAction(c.run))
}

func (c *commandGalleryRetry) run(ctx context.Context, rt *Runtime) error {
	abs, err := filepath.Abs(c.path)
	if err != nil {
		return errors.Wrap(err, "invalid path")
	}

	g, ok := rt.Queue.GetItem(abs)
	if !ok {
		return errors.Errorf("%v is not in the queue", abs)
	}

	if g.Status != gallery.StatusUploadFailed && g.Status != gallery.StatusFailed {
		return errors.Errorf("%v is %v, not failed", abs, g.Status)
	}

	if c.full {
		rt.Queue.ResetGalleryComplete(ctx, abs)
		c.out.printStdout("reset %v for a full re-upload\n", abs)

		return nil
	}

	rt.Queue.RetryFailedUpload(ctx, abs)
	c.out.printStdout("reset %v, %v of %v images already uploaded\n", abs, g.UploadedImages, g.TotalImages)

	return nil
}
