package hooks

import (
	"context"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/imxup/imxup/gallery"
)

func TestSubstituteIdentity(t *testing.T) {
	t.Parallel()

	vars := map[string]string{"%N": "Alpha"}

	require.Equal(t, "no variables here", Substitute("no variables here", vars))
	require.Equal(t, "", Substitute("", vars))
}

func TestSubstituteEscapedPercent(t *testing.T) {
	t.Parallel()

	vars := map[string]string{"%N": "Alpha"}

	require.Equal(t, "%", Substitute("%%", vars))
	require.Equal(t, "100% of Alpha", Substitute("100%% of %N", vars))
	require.Equal(t, "%N", Substitute("%%N", vars), "escaped percent never starts a variable")
}

func TestSubstituteLongestFirst(t *testing.T) {
	t.Parallel()

	g := gallery.New("/g/alpha")
	g.Ext1 = "first"
	g.Custom2 = "second"

	vars := hookVariables(g, ArtifactPaths{JSON: "/out/a.json"})

	out := Substitute("run %e1 %c2 %j %N", vars)
	require.Equal(t, "run first second /out/a.json alpha", out)
}

func TestSubstituteAllVariables(t *testing.T) {
	t.Parallel()

	g := gallery.New("/g/My Gallery")
	g.Name = "My Gallery"
	g.TabName = "Main"
	g.TotalImages = 12
	g.GalleryID = "g9"
	g.TotalSize = 2048
	g.TemplateName = "default"

	vars := hookVariables(g, ArtifactPaths{JSON: "j.json", BBCode: "b.txt", Zip: "a.zip"})

	out := Substitute("%N|%T|%p|%C|%g|%j|%b|%z|%s|%t", vars)
	require.Equal(t, "My Gallery|Main|/g/My Gallery|12|g9|j.json|b.txt|a.zip|2048|default", out)
}

func TestSplitCommand(t *testing.T) {
	t.Parallel()

	argv, err := splitCommand(`prog -a "two words" 'single quoted' plain`)
	require.NoError(t, err)
	require.Equal(t, []string{"prog", "-a", "two words", "single quoted", "plain"}, argv)

	_, err = splitCommand(`prog "unbalanced`)
	require.Error(t, err)

	_, err = splitCommand("   ")
	require.Error(t, err)
}

func TestCommandWantsZip(t *testing.T) {
	t.Parallel()

	require.True(t, commandWantsZip("archive %z"))
	require.False(t, commandWantsZip("print %%z"))
	require.False(t, commandWantsZip("nothing"))
}

func TestRunMapsJSONOutput(t *testing.T) {
	t.Parallel()

	if runtime.GOOS == "windows" {
		t.Skip("relies on /bin/echo")
	}

	cfg := Config{
		Hooks: map[Event]HookConfig{
			EventCompleted: {
				Enabled:    true,
				Command:    `echo '{"tag":"t1","rating":5}'`,
				KeyMapping: [4]string{"tag", "", "rating", ""},
			},
		},
	}

	e := NewExecutor(cfg, t.TempDir())
	g := gallery.New(filepath.Join(t.TempDir(), "alpha"))

	updates := e.Run(context.Background(), EventCompleted, g, ArtifactPaths{})
	require.Equal(t, map[string]string{"ext1": "t1", "ext3": "5"}, updates)
}

func TestRunDisabledHookIsNoop(t *testing.T) {
	t.Parallel()

	e := NewExecutor(Config{}, t.TempDir())
	g := gallery.New("/g/alpha")

	require.False(t, e.Enabled(EventStarted))
	require.Nil(t, e.Run(context.Background(), EventStarted, g, ArtifactPaths{}))
}

func TestRunFailureNeverPropagates(t *testing.T) {
	t.Parallel()

	if runtime.GOOS == "windows" {
		t.Skip("relies on /bin/false")
	}

	cfg := Config{
		Hooks: map[Event]HookConfig{
			EventStarted: {Enabled: true, Command: "false"},
		},
	}

	e := NewExecutor(cfg, t.TempDir())
	g := gallery.New("/g/alpha")

	require.Nil(t, e.Run(context.Background(), EventStarted, g, ArtifactPaths{}))
}

func TestRunNonJSONOutputIgnored(t *testing.T) {
	t.Parallel()

	if runtime.GOOS == "windows" {
		t.Skip("relies on /bin/echo")
	}

	cfg := Config{
		Hooks: map[Event]HookConfig{
			EventAdded: {Enabled: true, Command: "echo not json", KeyMapping: [4]string{"k", "", "", ""}},
		},
	}

	e := NewExecutor(cfg, t.TempDir())
	g := gallery.New("/g/alpha")

	require.Nil(t, e.Run(context.Background(), EventAdded, g, ArtifactPaths{}))
}
