package cli

import (
	"context"
)

type commandTabList struct {
	out *textOutput
}

func (c *commandTabList) setup(svc appServices, parent commandParent) {
	cmd := parent.Command("list", "List tabs").Alias("ls")

	c.out = svc.output()
	cmd.Action(svc.baseAction(c.run))
}

func (c *commandTabList) run(ctx context.Context, rt *Runtime) error {
	tabs, err := rt.Store.ListTabs(ctx)
	if err != nil {
		return err
	}

	counts := map[string]int{}
	for _, g := range rt.Queue.GetAllItems() {
		counts[g.TabName]++
	}

	for _, t := range tabs {
		c.out.printStdout("%-16v %v galleries\n", t.Name, counts[t.Name])
	}

	return nil
}
