package cli

import (
	"context"
)

type commandTabCreate struct {
	name string

	out *textOutput
}

func (c *commandTabCreate) setup(svc appServices, parent commandParent) {
	cmd := parent.Command("create", "Create a tab")
	cmd.Arg("name", "Tab name").Required().StringVar(&c.name)

	c.out = svc.output()
	cmd.Action(svc.baseAction(c.run))
}

func (c *commandTabCreate) run(ctx context.Context, rt *Runtime) error {
	t, err := rt.Store.CreateTab(ctx, c.name, "")
	if err != nil {
		return err
	}

	c.out.printStdout("created tab %v\n", t.Name)

	return nil
}
