package cli

import (
	"context"
)

type commandTabDelete struct {
	name string

	out *textOutput
}

func (c *commandTabDelete) setup(svc appServices, parent commandParent) {
	cmd := parent.Command("delete", "Delete a tab, moving its galleries to the default tab").Alias("rm")
	cmd.Arg("name", "Tab name").Required().StringVar(&c.name)

	c.out = svc.output()
	cmd.Action(svc.baseAction(c.run))
}

func (c *commandTabDelete) run(ctx context.Context, rt *Runtime) error {
	if err := rt.Store.DeleteTab(ctx, c.name); err != nil {
		return err
	}

	c.out.printStdout("deleted tab %v\n", c.name)

	return nil
}
