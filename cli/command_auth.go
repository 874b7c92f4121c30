package cli

import (
	"bufio"
	"context"
	"os"
	"strings"

	"github.com/pkg/errors"

	"github.com/imxup/imxup/secrets"
)

type commandAuth struct {
	setPassword commandAuthSetPassword
	forget      commandAuthForget
}

func (c *commandAuth) setup(svc appServices, parent commandParent) {
	cmd := parent.Command("auth", "Commands to manage stored credentials")

	c.setPassword.setup(svc, cmd)
	c.forget.setup(svc, cmd)
}

// secretKeyFor maps the user-facing credential name to its secret-store key.
func secretKeyFor(target string) string {
	switch target {
	case "api":
		return apiKeySecret
	case "web":
		return webPasswordSecret
	default:
		return filehostSecret(target)
	}
}

type commandAuthSetPassword struct {
	target   string
	password string

	out *textOutput
}

func (c *commandAuthSetPassword) setup(svc appServices, parent commandParent) {
	cmd := parent.Command("set-password", "Store a credential in the OS secret store")
	cmd.Arg("target", "'api', 'web' or a file host name").Required().StringVar(&c.target)
	cmd.Flag("password", "Value (prompts on stdin when omitted)").StringVar(&c.password)

	c.out = svc.output()
	cmd.Action(svc.baseAction(c.run))
}

func (c *commandAuthSetPassword) run(ctx context.Context, rt *Runtime) error {
	pw := c.password

	if pw == "" {
		c.out.printStderr("password for %v: ", c.target)

		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil {
			return errors.Wrap(err, "unable to read password")
		}

		pw = strings.TrimRight(line, "\r\n")
	}

	if pw == "" {
		return errors.New("empty password")
	}

	if err := rt.Secrets.Set(secretKeyFor(c.target), pw); err != nil {
		return err
	}

	c.out.printStdout("stored credential for %v\n", c.target)

	return nil
}

type commandAuthForget struct {
	target string

	out *textOutput
}

func (c *commandAuthForget) setup(svc appServices, parent commandParent) {
	cmd := parent.Command("forget", "Remove a stored credential and cached session")
	cmd.Arg("target", "'api', 'web' or a file host name").Required().StringVar(&c.target)

	c.out = svc.output()
	cmd.Action(svc.baseAction(c.run))
}

func (c *commandAuthForget) run(ctx context.Context, rt *Runtime) error {
	if err := rt.Secrets.Delete(secretKeyFor(c.target)); err != nil && !errors.Is(err, secrets.ErrNotFound) {
		return err
	}

	c.out.printStdout("forgot credential for %v\n", c.target)

	return nil
}
