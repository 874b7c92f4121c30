package cli

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/alecthomas/kingpin/v2"
	"github.com/stretchr/testify/require"

	"github.com/imxup/imxup/store"
)

// runCLI executes one command against the given config dir and returns its
// stdout.
func runCLI(t *testing.T, configDir string, args ...string) (string, error) {
	t.Helper()

	var buf bytes.Buffer

	a := NewApp()
	a.out.stdout = &buf
	a.out.stderr = &buf

	kp := kingpin.New("imxup", "test")
	kp.Terminate(nil)
	a.Attach(kp)

	_, err := kp.Parse(append([]string{"--config-dir", configDir, "--log-level", "error"}, args...))

	return buf.String(), err
}

func makeGalleryDir(t *testing.T, name string, images int) string {
	t.Helper()

	dir := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.MkdirAll(dir, 0o755))

	img := image.NewRGBA(image.Rect(0, 0, 16, 16))

	for i := 0; i < images; i++ {
		f, err := os.Create(filepath.Join(dir, "img"+string(rune('a'+i))+".png"))
		require.NoError(t, err)
		require.NoError(t, png.Encode(f, img))
		require.NoError(t, f.Close())
	}

	return dir
}

func TestGalleryAddAndList(t *testing.T) {
	cfg := t.TempDir()
	dir := makeGalleryDir(t, "Alpha", 3)

	out, err := runCLI(t, cfg, "gallery", "add", dir, "--name", "Alpha", "--wait")
	require.NoError(t, err)
	require.Contains(t, out, "added "+dir)
	require.Contains(t, out, "Alpha: ready (3 images)")

	out, err = runCLI(t, cfg, "gallery", "list")
	require.NoError(t, err)
	require.Contains(t, out, "ready")
	require.Contains(t, out, "Alpha")
	require.Contains(t, out, dir)
}

func TestGalleryAddDuplicate(t *testing.T) {
	cfg := t.TempDir()
	dir := makeGalleryDir(t, "Dup", 1)

	_, err := runCLI(t, cfg, "gallery", "add", dir, "--wait")
	require.NoError(t, err)

	_, err = runCLI(t, cfg, "gallery", "add", dir)
	require.Error(t, err)
	require.Contains(t, err.Error(), "already in the queue")
}

func TestGalleryRemove(t *testing.T) {
	cfg := t.TempDir()
	dir := makeGalleryDir(t, "Gone", 1)

	_, err := runCLI(t, cfg, "gallery", "add", dir, "--wait")
	require.NoError(t, err)

	out, err := runCLI(t, cfg, "gallery", "remove", dir)
	require.NoError(t, err)
	require.Contains(t, out, "removed "+dir)

	out, err = runCLI(t, cfg, "gallery", "list")
	require.NoError(t, err)
	require.NotContains(t, out, dir)
}

func TestGalleryAddRunsAddedHook(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("relies on /bin/echo")
	}

	cfg := t.TempDir()

	ini := `[EXTERNAL_APPS]
hook_added_enabled = true
hook_added_command = echo '{"tag":"from-hook"}'
hook_added_key1 = tag
`
	require.NoError(t, os.WriteFile(filepath.Join(cfg, "imxup.ini"), []byte(ini), 0o600))

	dir := makeGalleryDir(t, "Hooked", 1)

	_, err := runCLI(t, cfg, "gallery", "add", dir, "--wait")
	require.NoError(t, err)

	// the hook's JSON output landed in ext1 before the run shut down
	ctx := context.Background()

	s, err := store.Open(ctx, filepath.Join(cfg, "imxup.db"))
	require.NoError(t, err)

	t.Cleanup(func() { s.Close() })

	g, err := s.GalleryByPath(ctx, dir)
	require.NoError(t, err)
	require.Equal(t, "from-hook", g.Ext1)
}

func TestGallerySetCustomField(t *testing.T) {
	cfg := t.TempDir()
	dir := makeGalleryDir(t, "Custom", 1)

	_, err := runCLI(t, cfg, "gallery", "add", dir, "--wait")
	require.NoError(t, err)

	out, err := runCLI(t, cfg, "gallery", "set", dir, "custom1", "hello")
	require.NoError(t, err)
	require.Contains(t, out, `custom1 = "hello"`)

	_, err = runCLI(t, cfg, "gallery", "set", dir, "nope", "x")
	require.Error(t, err)
}

func TestTabCommands(t *testing.T) {
	cfg := t.TempDir()
	dir := makeGalleryDir(t, "Tabbed", 1)

	_, err := runCLI(t, cfg, "gallery", "add", dir, "--wait")
	require.NoError(t, err)

	out, err := runCLI(t, cfg, "tab", "create", "Work")
	require.NoError(t, err)
	require.Contains(t, out, "created tab Work")

	out, err = runCLI(t, cfg, "tab", "move", "Work", dir)
	require.NoError(t, err)
	require.Contains(t, out, "moved 1 galleries to Work")

	out, err = runCLI(t, cfg, "tab", "list")
	require.NoError(t, err)
	require.Contains(t, out, "Work")
	require.Contains(t, out, "Main")

	out, err = runCLI(t, cfg, "gallery", "list", "--tab", "Work")
	require.NoError(t, err)
	require.Contains(t, out, dir)

	out, err = runCLI(t, cfg, "tab", "rename", "Work", "Done")
	require.NoError(t, err)
	require.Contains(t, out, "renamed tab Work to Done")

	out, err = runCLI(t, cfg, "tab", "delete", "Done")
	require.NoError(t, err)
	require.Contains(t, out, "deleted tab Done")

	// galleries fall back to the default tab
	out, err = runCLI(t, cfg, "gallery", "list", "--tab", "Main")
	require.NoError(t, err)
	require.Contains(t, out, dir)
}

func TestStatsShow(t *testing.T) {
	cfg := t.TempDir()
	dir := makeGalleryDir(t, "Stats", 2)

	_, err := runCLI(t, cfg, "gallery", "add", dir, "--wait")
	require.NoError(t, err)

	out, err := runCLI(t, cfg, "stats", "show")
	require.NoError(t, err)
	require.Contains(t, out, "lifetime uploaded")
	require.Contains(t, out, "never recorded")
	require.Contains(t, out, "ready")
}

func TestQueueRenumber(t *testing.T) {
	cfg := t.TempDir()

	d1 := makeGalleryDir(t, "One", 1)
	d2 := makeGalleryDir(t, "Two", 1)

	_, err := runCLI(t, cfg, "gallery", "add", d1, "--wait")
	require.NoError(t, err)
	_, err = runCLI(t, cfg, "gallery", "add", d2, "--wait")
	require.NoError(t, err)

	out, err := runCLI(t, cfg, "queue", "renumber")
	require.NoError(t, err)
	require.Contains(t, out, "renumbered 2 galleries")
}
