package cli

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

type commandQueue struct {
	archive  commandQueueArchive
	renumber commandQueueRenumber
}

func (c *commandQueue) setup(svc appServices, parent commandParent) {
	cmd := parent.Command("queue", "Commands to maintain the queue")

	c.archive.setup(svc, cmd)
	c.renumber.setup(svc, cmd)
}

type commandQueueArchive struct {
	days int

	out *textOutput
}

func (c *commandQueueArchive) setup(svc appServices, parent commandParent) {
	cmd := parent.Command("archive", "Move old completed galleries to the Archive tab")
	cmd.Flag("days", "Minimum age in days").Default("30").IntVar(&c.days)

	c.out = svc.output()
	cmd.Action(svc.baseAction(c.run))
}

func (c *commandQueueArchive) run(ctx context.Context, rt *Runtime) error {
	if c.days <= 0 {
		return errors.New("--days must be positive")
	}

	moved := rt.Queue.ExecuteAutoArchive(ctx, time.Duration(c.days)*24*time.Hour)

	c.out.printStdout("archived %v galleries\n", len(moved))

	for _, p := range moved {
		c.out.printStdout("  %v\n", p)
	}

	return nil
}

type commandQueueRenumber struct {
	out *textOutput
}

func (c *commandQueueRenumber) setup(svc appServices, parent commandParent) {
	cmd := parent.Command("renumber", "Compact gallery display ordering")

	c.out = svc.output()
	cmd.Action(svc.baseAction(c.run))
}

func (c *commandQueueRenumber) run(ctx context.Context, rt *Runtime) error {
	rt.Queue.RenumberInsertionOrders(ctx)
	c.out.printStdout("renumbered %v galleries\n", len(rt.Queue.GetAllItems()))

	return nil
}
