package cli

import (
	"context"
	"path/filepath"

	"github.com/pkg/errors"
)

type commandGallerySet struct {
	path  string
	field string
	value string

	out *textOutput
}

func (c *commandGallerySet) setup(svc appServices, parent commandParent) {
	cmd := parent.Command("set", "Set a custom field on a gallery")
	cmd.Arg("path", "Gallery folder").Required().StringVar(&c.path)
	cmd.Arg("field", "Field name").Required().EnumVar(&c.field,
		"custom1", "custom2", "custom3", "custom4", "ext1", "ext2", "ext3", "ext4")
	cmd.Arg("value", "New value").Required().StringVar(&c.value)

	c.out = svc.output()
	cmd.Action(svc.baseAction(c.run))
}

func (c *commandGallerySet) run(ctx context.Context, rt *Runtime) error {
	abs, err := filepath.Abs(c.path)
	if err != nil {
		return errors.Wrap(err, "invalid path")
	}

	if !rt.Queue.UpdateCustomField(ctx, abs, c.field, c.value) {
		return errors.Errorf("unable to set %v on %v", c.field, abs)
	}

	c.out.printStdout("%v: %v = %q\n", abs, c.field, c.value)

	return nil
}
