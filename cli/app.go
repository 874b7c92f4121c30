// Package cli implements the imxup command-line application.
package cli

import (
	"context"
	"os"
	"os/signal"

	"github.com/alecthomas/kingpin/v2"

	"github.com/imxup/imxup/config"
	"github.com/imxup/imxup/logging"
)

var log = logging.Module("cli")

type commandParent interface {
	Command(name, help string) *kingpin.CmdClause
}

// appServices is the interface commands use to bind their actions to the
// shared application state.
type appServices interface {
	// baseAction opens the store and queue manager for the duration of the
	// command.
	baseAction(act func(ctx context.Context, rt *Runtime) error) func(*kingpin.ParseContext) error

	// workerAction additionally starts the upload engine, rename worker and
	// file-host pool.
	workerAction(act func(ctx context.Context, rt *Runtime) error) func(*kingpin.ParseContext) error

	output() *textOutput
}

// App is the root of the command tree.
type App struct {
	configDir string
	logLevel  string

	out textOutput

	gallery  commandGallery
	tab      commandTab
	upload   commandUpload
	status   commandStatus
	filehost commandFileHost
	stats    commandStats
	queue    commandQueue
	auth     commandAuth
}

// Attach registers all flags and commands on the kingpin application.
func (a *App) Attach(kp *kingpin.Application) {
	defDir, _ := config.DefaultDir()

	kp.Flag("config-dir", "Configuration directory").Default(defDir).Envar("IMXUP_CONFIG_DIR").StringVar(&a.configDir)
	kp.Flag("log-level", "Console log level").Default("info").EnumVar(&a.logLevel, "debug", "info", "warning", "error")

	a.out.setup()

	a.gallery.setup(a, kp)
	a.tab.setup(a, kp)
	a.upload.setup(a, kp)
	a.status.setup(a, kp)
	a.filehost.setup(a, kp)
	a.stats.setup(a, kp)
	a.queue.setup(a, kp)
	a.auth.setup(a, kp)
}

// NewApp returns an App with no commands attached yet.
func NewApp() *App {
	return &App{}
}

func (a *App) output() *textOutput { return &a.out }

func (a *App) baseAction(act func(ctx context.Context, rt *Runtime) error) func(*kingpin.ParseContext) error {
	return a.action(act, false)
}

func (a *App) workerAction(act func(ctx context.Context, rt *Runtime) error) func(*kingpin.ParseContext) error {
	return a.action(act, true)
}

func (a *App) action(act func(ctx context.Context, rt *Runtime) error, workers bool) func(*kingpin.ParseContext) error {
	return func(_ *kingpin.ParseContext) error {
		ctx := context.Background()

		rt, err := openRuntime(ctx, a.configDir, a.logLevel, workers)
		if err != nil {
			return err
		}

		defer rt.Close()

		return act(ctx, rt)
	}
}

// Run parses arguments and executes the selected command.
func (a *App) Run(args []string) {
	kp := kingpin.New("imxup", "imxup - durable image gallery uploader")
	a.Attach(kp)

	kingpin.MustParse(kp.Parse(args))
}

func onCtrlC(f func()) {
	sigch := make(chan os.Signal, 1)
	signal.Notify(sigch, os.Interrupt)

	go func() {
		<-sigch
		f()
	}()
}
