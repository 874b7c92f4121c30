// Package hooks runs user-configured external programs at gallery lifecycle
// points and maps their JSON output onto gallery extension fields.
package hooks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"sync"
	"time"

	"github.com/imxup/imxup/gallery"
	"github.com/imxup/imxup/internal/zipstore"
	"github.com/imxup/imxup/logging"
)

var log = logging.Module("hooks")

// Event is a gallery lifecycle point with an attached hook slot.
type Event string

// Recognized lifecycle points.
const (
	EventAdded     Event = "added"
	EventStarted   Event = "started"
	EventCompleted Event = "completed"
)

// hookTimeout bounds one hook invocation, including its temp ZIP.
const hookTimeout = 300 * time.Second

// HookConfig is the per-event hook configuration from the EXTERNAL_APPS
// section.
type HookConfig struct {
	Enabled     bool
	Command     string
	ShowConsole bool

	// KeyMapping maps ext1..ext4 to JSON keys expected on the hook's
	// stdout. Empty entries are skipped.
	KeyMapping [4]string
}

// Config holds all hook slots.
type Config struct {
	ParallelExecution bool
	Hooks             map[Event]HookConfig
}

// ArtifactPaths carries the artifact locations exposed to hook commands.
type ArtifactPaths struct {
	JSON   string
	BBCode string
	Zip    string
}

// Executor runs hooks. Safe for concurrent use.
type Executor struct {
	cfg     Config
	tempDir string

	// serial guards execution when parallel execution is disabled.
	serial sync.Mutex
}

// NewExecutor builds an Executor. tempDir receives temporary ZIP archives
// created for %z.
func NewExecutor(cfg Config, tempDir string) *Executor {
	return &Executor{cfg: cfg, tempDir: tempDir}
}

// Enabled reports whether the given lifecycle point has a runnable hook.
func (e *Executor) Enabled(event Event) bool {
	h, ok := e.cfg.Hooks[event]
	return ok && h.Enabled && h.Command != ""
}

// Run executes the hook for the given event, if any. It returns the ext
// field updates parsed from the hook's stdout, keyed "ext1".."ext4". Hook
// failures are logged and produce no updates; they never propagate.
func (e *Executor) Run(ctx context.Context, event Event, g *gallery.Gallery, ap ArtifactPaths) map[string]string {
	if !e.Enabled(event) {
		return nil
	}

	if !e.cfg.ParallelExecution {
		e.serial.Lock()
		defer e.serial.Unlock()
	}

	h := e.cfg.Hooks[event]

	command := h.Command

	// a command referencing %z with no prepared archive gets a throwaway
	// store-mode ZIP of the gallery folder.
	if ap.Zip == "" && commandWantsZip(command) {
		zipPath, err := zipstore.CreateTemp(ctx, g.Path, e.tempDir)
		if err != nil {
			log(ctx).Warnf("%v hook: unable to create temp archive for %v: %v", event, g.Path, err)
			return nil
		}

		defer zipstore.RemoveWithRetry(ctx, zipPath)

		ap.Zip = zipPath
	}

	command = Substitute(command, hookVariables(g, ap))

	stdout, err := e.execute(ctx, command)
	if err != nil {
		log(ctx).Warnf("%v hook for %v failed: %v", event, g.Name, err)
		return nil
	}

	return mapOutput(ctx, h, stdout)
}

func (e *Executor) execute(ctx context.Context, command string) ([]byte, error) {
	argv, err := splitCommand(command)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, hookTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)

	var stdout, stderr bytes.Buffer

	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	log(ctx).Debugf("running hook: %v", command)

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%w (stderr: %v)", err, stderr.String())
	}

	return stdout.Bytes(), nil
}

// mapOutput parses the hook's stdout as JSON and extracts the mapped keys.
// Invalid or non-object output is ignored.
func mapOutput(ctx context.Context, h HookConfig, stdout []byte) map[string]string {
	if len(bytes.TrimSpace(stdout)) == 0 {
		return nil
	}

	var parsed map[string]interface{}

	if err := json.Unmarshal(bytes.TrimSpace(stdout), &parsed); err != nil {
		log(ctx).Debugf("hook output is not a JSON object, ignoring: %v", err)
		return nil
	}

	updates := map[string]string{}

	for i, key := range h.KeyMapping {
		if key == "" {
			continue
		}

		if v, ok := parsed[key]; ok {
			updates[fmt.Sprintf("ext%d", i+1)] = fmt.Sprintf("%v", v)
		}
	}

	return updates
}
