package cli

import (
	"context"
	"path/filepath"
	"time"

	"github.com/pkg/errors"

	"github.com/imxup/imxup/gallery"
)

type commandGalleryAdd struct {
	paths    []string
	name     string
	tab      string
	template string
	wait     bool

	out *textOutput
}

func (c *commandGalleryAdd) setup(svc appServices, parent commandParent) {
	cmd := parent.Command("add", "Add gallery folders to the queue")
	cmd.Arg("path", "Gallery folder").Required().ExistingDirsVar(&c.paths)
	cmd.Flag("name", "Display name (single folder only)").StringVar(&c.name)
	cmd.Flag("tab", "Tab to add to").Default(gallery.DefaultTabName).StringVar(&c.tab)
	cmd.Flag("template", "BBCode template name").StringVar(&c.template)
	cmd.Flag("wait", "Wait for the scan to finish").BoolVar(&c.wait)

	c.out = svc.output()
	cmd.Action(svc.baseAction(c.run))
}

func (c *commandGalleryAdd) run(ctx context.Context, rt *Runtime) error {
	if len(c.paths) == 1 {
		abs, err := filepath.Abs(c.paths[0])
		if err != nil {
			return errors.Wrap(err, "invalid path")
		}

		if !rt.Queue.AddItem(ctx, abs, c.name, c.template, c.tab) {
			return errors.Errorf("%v is already in the queue", abs)
		}

		c.out.printStdout("added %v\n", abs)

		return c.maybeWait(ctx, rt, []string{abs})
	}

	if c.name != "" {
		return errors.New("--name requires a single folder")
	}

	abs := make([]string, 0, len(c.paths))

	for _, p := range c.paths {
		a, err := filepath.Abs(p)
		if err != nil {
			return errors.Wrap(err, "invalid path")
		}

		abs = append(abs, a)
	}

	res := rt.Queue.AddMultipleItems(ctx, abs, c.template)
	c.out.printStdout("added %v, skipped %v duplicates, %v failed\n", res.Added, res.Duplicates, res.Failed)

	return c.maybeWait(ctx, rt, res.AddedPaths)
}

// maybeWait blocks until none of the added galleries are still scanning.
func (c *commandGalleryAdd) maybeWait(ctx context.Context, rt *Runtime, paths []string) error {
	if !c.wait {
		return nil
	}

	for {
		busy := 0

		for _, p := range paths {
			if g, ok := rt.Queue.GetItem(p); ok {
				if g.Status == gallery.StatusValidating || g.Status == gallery.StatusScanning {
					busy++
				}
			}
		}

		if busy == 0 {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err() //nolint:wrapcheck
		case <-time.After(100 * time.Millisecond):
		}
	}

	for _, p := range paths {
		if g, ok := rt.Queue.GetItem(p); ok {
			c.out.printStdout("%v: %v (%v images)\n", g.Name, g.Status, g.TotalImages)
		}
	}

	return nil
}
