package cli

import (
	"context"
)

type commandTabRename struct {
	oldName string
	newName string

	out *textOutput
}

func (c *commandTabRename) setup(svc appServices, parent commandParent) {
	cmd := parent.Command("rename", "Rename a tab")
	cmd.Arg("old", "Current name").Required().StringVar(&c.oldName)
	cmd.Arg("new", "New name").Required().StringVar(&c.newName)

	c.out = svc.output()
	cmd.Action(svc.baseAction(c.run))
}

func (c *commandTabRename) run(ctx context.Context, rt *Runtime) error {
	if err := rt.Store.RenameTab(ctx, c.oldName, c.newName); err != nil {
		return err
	}

	c.out.printStdout("renamed tab %v to %v\n", c.oldName, c.newName)

	return nil
}
