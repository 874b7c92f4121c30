package cli

import (
	"fmt"
	"io"
	"os"
)

// textOutput routes command output, separated from logging so tests can
// capture it.
type textOutput struct {
	stdout io.Writer
	stderr io.Writer
}

func (o *textOutput) setup() {
	if o.stdout == nil {
		o.stdout = os.Stdout
	}

	if o.stderr == nil {
		o.stderr = os.Stderr
	}
}

func (o *textOutput) printStdout(msg string, args ...interface{}) {
	fmt.Fprintf(o.stdout, msg, args...) //nolint:errcheck
}

func (o *textOutput) printStderr(msg string, args ...interface{}) {
	fmt.Fprintf(o.stderr, msg, args...) //nolint:errcheck
}
