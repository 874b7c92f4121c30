package cli

import (
	"context"
	"path/filepath"

	"github.com/pkg/errors"
)

type commandGalleryRemove struct {
	paths []string

	out *textOutput
}

func (c *commandGalleryRemove) setup(svc appServices, parent commandParent) {
	cmd := parent.Command("remove", "Remove galleries from the queue").Alias("rm")
	cmd.Arg("path", "Gallery folder").Required().StringsVar(&c.paths)

	c.out = svc.output()
	cmd.Action(svc.baseAction(c.run))
}

func (c *commandGalleryRemove) run(ctx context.Context, rt *Runtime) error {
	for _, p := range c.paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return errors.Wrap(err, "invalid path")
		}

		if !rt.Queue.RemoveItem(ctx, abs) {
			return errors.Errorf("unable to remove %v (not found or uploading)", abs)
		}

		c.out.printStdout("removed %v\n", abs)
	}

	return nil
}
