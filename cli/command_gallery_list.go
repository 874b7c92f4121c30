package cli

import (
	"context"

	"github.com/imxup/imxup/gallery"
	"github.com/imxup/imxup/internal/units"
)

type commandGalleryList struct {
	tab    string
	status string

	out *textOutput
}

func (c *commandGalleryList) setup(svc appServices, parent commandParent) {
	cmd := parent.Command("list", "List galleries in the queue").Alias("ls")
	cmd.Flag("tab", "Only show the given tab").StringVar(&c.tab)
	cmd.Flag("status", "Only show the given status").StringVar(&c.status)

	c.out = svc.output()
	cmd.Action(svc.baseAction(c.run))
}

func (c *commandGalleryList) run(ctx context.Context, rt *Runtime) error {
	items := rt.Queue.GetAllItems()

	c.out.printStdout("%-14v %5v %7v %9v %-8v %-24v %v\n", "STATUS", "PROG", "IMAGES", "SIZE", "TAB", "NAME", "PATH")

	for _, g := range items {
		if c.tab != "" && g.TabName != c.tab {
			continue
		}

		if c.status != "" && string(g.Status) != c.status {
			continue
		}

		c.out.printStdout("%-14v %4v%% %3v/%3v %9v %-8v %-24v %v\n",
			g.Status, g.Progress, g.UploadedImages, g.TotalImages,
			units.BytesStringBase2(g.TotalSize), g.TabName, truncate(g.Name, 24), g.Path)

		if g.Status == gallery.StatusUploadFailed && g.ErrorMessage != "" {
			c.out.printStdout("  error: %v\n", g.ErrorMessage)
		}
	}

	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}

	return s[:n-1] + "…"
}
