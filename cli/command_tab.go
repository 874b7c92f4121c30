package cli

type commandTab struct {
	list   commandTabList
	create commandTabCreate
	rename commandTabRename
	delete commandTabDelete
	move   commandTabMove
}

func (c *commandTab) setup(svc appServices, parent commandParent) {
	cmd := parent.Command("tab", "Commands to manage tabs")

	c.list.setup(svc, cmd)
	c.create.setup(svc, cmd)
	c.rename.setup(svc, cmd)
	c.delete.setup(svc, cmd)
	c.move.setup(svc, cmd)
}
