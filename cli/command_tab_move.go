package cli

import (
	"context"
	"path/filepath"

	"github.com/pkg/errors"
)

type commandTabMove struct {
	tab   string
	paths []string

	out *textOutput
}

func (c *commandTabMove) setup(svc appServices, parent commandParent) {
	cmd := parent.Command("move", "Move galleries to a tab")
	cmd.Arg("tab", "Destination tab").Required().StringVar(&c.tab)
	cmd.Arg("path", "Gallery folders").Required().StringsVar(&c.paths)

	c.out = svc.output()
	cmd.Action(svc.baseAction(c.run))
}

func (c *commandTabMove) run(ctx context.Context, rt *Runtime) error {
	abs := make([]string, 0, len(c.paths))

	for _, p := range c.paths {
		a, err := filepath.Abs(p)
		if err != nil {
			return errors.Wrap(err, "invalid path")
		}

		abs = append(abs, a)
	}

	if err := rt.Queue.MoveItemsToTab(ctx, abs, c.tab); err != nil {
		return err
	}

	c.out.printStdout("moved %v galleries to %v\n", len(abs), c.tab)

	return nil
}
