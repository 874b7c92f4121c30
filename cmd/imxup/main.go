// The imxup utility uploads image gallery folders to an image host, mirrors
// them to secondary file hosts and writes JSON/BBCode artifacts.
//
// Usage:
//
//	$ imxup [<flags>] <subcommand> [<args> ...]
//
// Common subcommands:
//
//	gallery add <folder>...
//	  Adds gallery folders to the upload queue and scans them.
//
//	upload run --all
//	  Uploads every startable gallery and waits for completion.
//
//	gallery list
//	  Shows the queue with per-gallery status and progress.
//
// Use 'imxup help' to see more details.
package main

import (
	"os"

	"github.com/imxup/imxup/cli"
)

func main() {
	cli.NewApp().Run(os.Args[1:])
}
