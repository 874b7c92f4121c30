package cli

import (
	"context"

	"github.com/imxup/imxup/internal/units"
)

type commandFileHostStatus struct {
	out *textOutput
}

func (c *commandFileHostStatus) setup(svc appServices, parent commandParent) {
	cmd := parent.Command("status", "Show per-gallery file host upload records")

	c.out = svc.output()
	cmd.Action(svc.baseAction(c.run))
}

func (c *commandFileHostStatus) run(ctx context.Context, rt *Runtime) error {
	byGallery, err := rt.Store.GetAllFileHostUploadsBatch(ctx)
	if err != nil {
		return err
	}

	if len(byGallery) == 0 {
		c.out.printStdout("no file host uploads recorded\n")
		return nil
	}

	for _, g := range rt.Queue.GetAllItems() {
		recs := byGallery[g.DBID]
		if len(recs) == 0 {
			continue
		}

		c.out.printStdout("%v\n", g.Path)

		for _, r := range recs {
			switch {
			case r.DownloadURL != "":
				c.out.printStdout("  %-12v %-10v %v\n", r.HostName, r.Status, r.DownloadURL)
			case r.Error != "":
				c.out.printStdout("  %-12v %-10v %v\n", r.HostName, r.Status, r.Error)
			default:
				c.out.printStdout("  %-12v %-10v %v\n", r.HostName, r.Status, units.BytesStringBase2(r.TotalBytes))
			}
		}
	}

	return nil
}
