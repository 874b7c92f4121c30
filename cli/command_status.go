package cli

import (
	"context"

	"github.com/imxup/imxup/gallery"
	"github.com/imxup/imxup/renamer"
)

type commandStatus struct {
	check commandStatusCheck
}

func (c *commandStatus) setup(svc appServices, parent commandParent) {
	cmd := parent.Command("status", "Commands to check gallery status on the host")

	c.check.setup(svc, cmd)
}

type commandStatusCheck struct {
	tab string

	out *textOutput
}

func (c *commandStatusCheck) setup(svc appServices, parent commandParent) {
	cmd := parent.Command("check", "Verify which uploaded images are still online")
	cmd.Flag("tab", "Only check the given tab").StringVar(&c.tab)

	c.out = svc.output()
	cmd.Action(svc.workerAction(c.run))
}

func (c *commandStatusCheck) run(ctx context.Context, rt *Runtime) error {
	items := c.collectItems(ctx, rt)
	if len(items) == 0 {
		c.out.printStdout("no completed galleries with artifacts to check\n")
		return nil
	}

	onCtrlC(rt.Renamer.CancelStatusCheck)

	results, err := rt.Renamer.CheckOnlineStatus(ctx, items, func(p renamer.StatusProgress) {
		c.out.printStdout("  [%v/%v] %v: %v/%v online\n", p.Done, p.Total, p.Path, p.Online, p.OutOf)
	})
	if err != nil {
		return err
	}

	for path, res := range results {
		rt.Queue.SetIMXStatus(ctx, path, res.Online, res.Total)
	}

	c.out.printStdout("checked %v galleries\n", len(results))

	return nil
}

// collectItems builds the status-check work list from completed galleries'
// stored manifests.
func (c *commandStatusCheck) collectItems(ctx context.Context, rt *Runtime) []renamer.StatusItem {
	var items []renamer.StatusItem

	for _, g := range rt.Queue.GetAllItems() {
		if g.Status != gallery.StatusCompleted {
			continue
		}

		if c.tab != "" && g.TabName != c.tab {
			continue
		}

		urls, err := rt.Writer.ImageURLsFor(g)
		if err != nil {
			log(ctx).Warnf("no manifest for %v: %v", g.Path, err)
			continue
		}

		if len(urls) > 0 {
			items = append(items, renamer.StatusItem{Path: g.Path, ImageURLs: urls})
		}
	}

	return items
}
