package cli

import (
	"context"
	"time"

	"github.com/imxup/imxup/internal/units"
)

type commandStats struct {
	show      commandStatsShow
	resetPeak commandStatsResetPeak
}

func (c *commandStats) setup(svc appServices, parent commandParent) {
	cmd := parent.Command("stats", "Commands to inspect upload statistics")

	c.show.setup(svc, cmd)
	c.resetPeak.setup(svc, cmd)
}

type commandStatsShow struct {
	out *textOutput
}

func (c *commandStatsShow) setup(svc appServices, parent commandParent) {
	cmd := parent.Command("show", "Show lifetime totals and peak throughput")

	c.out = svc.output()
	cmd.Action(svc.baseAction(c.run))
}

func (c *commandStatsShow) run(ctx context.Context, rt *Runtime) error {
	bytes, images, err := rt.Store.LifetimeTotals(ctx)
	if err != nil {
		return err
	}

	c.out.printStdout("lifetime uploaded: %v in %v images\n", units.BytesStringBase2(bytes), images)

	peak, when, err := rt.Store.PeakThroughput(ctx)
	if err != nil {
		return err
	}

	if peak > 0 {
		c.out.printStdout("peak throughput:   %v (%v)\n", units.KiBPerSecondString(peak), when.Format(time.RFC3339))
	} else {
		c.out.printStdout("peak throughput:   never recorded\n")
	}

	stats := rt.Queue.GetQueueStats()
	for status, agg := range stats {
		c.out.printStdout("%-14v %v galleries, %v images, %v\n",
			status, agg.Count, agg.Images, units.BytesStringBase2(agg.Bytes))
	}

	return nil
}

type commandStatsResetPeak struct {
	out *textOutput
}

func (c *commandStatsResetPeak) setup(svc appServices, parent commandParent) {
	cmd := parent.Command("reset-peak", "Forget the recorded peak throughput")

	c.out = svc.output()
	cmd.Action(svc.baseAction(c.run))
}

func (c *commandStatsResetPeak) run(ctx context.Context, rt *Runtime) error {
	if err := rt.Store.ResetPeakThroughput(ctx); err != nil {
		return err
	}

	c.out.printStdout("peak throughput reset\n")

	return nil
}
