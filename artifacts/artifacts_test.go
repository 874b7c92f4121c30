package artifacts

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/imxup/imxup/gallery"
)

func testGallery(t *testing.T) *gallery.Gallery {
	t.Helper()

	g := gallery.New(filepath.Join(t.TempDir(), "Alpha"))
	require.NoError(t, os.MkdirAll(g.Path, 0o750))

	g.GalleryID = "g123"
	g.GalleryURL = "http://x/g/g123"
	g.AvgWidth = 800
	g.AvgHeight = 1200
	g.TotalSize = 3 * 1024 * 1024
	g.Custom3 = "tagged"

	return g
}

func testImages() []ImageEntry {
	return []ImageEntry{
		{OriginalFilename: "a.jpg", SizeBytes: 100, Width: 800, Height: 1200,
			ImageURL: "http://x/i/a.jpg", ThumbnailURL: "http://x/t/a.jpg",
			BBCode: BBCodeFor("http://x/i/a.jpg", "http://x/t/a.jpg")},
		{OriginalFilename: "b.png", SizeBytes: 200, Width: 800, Height: 1200,
			ImageURL: "http://x/i/b.png", ThumbnailURL: "http://x/t/b.png",
			BBCode: BBCodeFor("http://x/i/b.png", "http://x/t/b.png")},
		{OriginalFilename: "c.jpg", SizeBytes: 300, Width: 800, Height: 1200,
			ImageURL: "http://x/i/c.jpg", ThumbnailURL: "http://x/t/c.jpg",
			BBCode: BBCodeFor("http://x/i/c.jpg", "http://x/t/c.jpg")},
	}
}

func TestWriteAllBothLocations(t *testing.T) {
	t.Parallel()

	central := t.TempDir()
	w := NewWriter(central, t.TempDir())
	g := testGallery(t)

	written := w.WriteAll(context.Background(), g, testImages())
	require.Len(t, written, 4)

	for _, dir := range []string{central, filepath.Join(g.Path, ".uploaded")} {
		require.FileExists(t, filepath.Join(dir, "Alpha_g123.json"))
		require.FileExists(t, filepath.Join(dir, "Alpha_g123_bbcode.txt"))
	}
}

func TestManifestContents(t *testing.T) {
	t.Parallel()

	central := t.TempDir()
	w := NewWriter(central, t.TempDir())
	g := testGallery(t)

	w.WriteAll(context.Background(), g, testImages())

	data, err := os.ReadFile(filepath.Join(central, "Alpha_g123.json"))
	require.NoError(t, err)

	var m Manifest
	require.NoError(t, json.Unmarshal(data, &m))
	require.Equal(t, "g123", m.GalleryID)
	require.Equal(t, "http://x/g/g123", m.GalleryURL)
	require.Equal(t, "tagged", m.Custom3)
	require.NotZero(t, m.CreatedTS)
	require.Len(t, m.Images, 3)
	require.Equal(t, "a.jpg", m.Images[0].OriginalFilename)
	require.Equal(t, "[url=http://x/i/a.jpg][img]http://x/t/a.jpg[/img][/url]", m.Images[0].BBCode)
}

func TestBBCodeRenderPlaceholders(t *testing.T) {
	t.Parallel()

	templates := t.TempDir()
	tmpl := "#folderName#|#pictureCount#|#width#x#height#|#longest#|#extension#|#folderSize#|#galleryLink#\n#allImages#"
	require.NoError(t, os.WriteFile(filepath.Join(templates, "custom.template"), []byte(tmpl), 0o600))

	w := NewWriter(t.TempDir(), templates)
	g := testGallery(t)
	g.TemplateName = "custom"

	out := w.renderBBCode(context.Background(), g, testImages())

	require.Contains(t, out, "Alpha|3|800x1200|1200|jpg|3 MiB|http://x/g/g123")
	require.Contains(t, out, "[url=http://x/i/b.png][img]http://x/t/b.png[/img][/url]")
}

func TestMissingTemplateFallsBackToDefault(t *testing.T) {
	t.Parallel()

	w := NewWriter(t.TempDir(), t.TempDir())
	g := testGallery(t)
	g.TemplateName = "nonexistent"

	out := w.renderBBCode(context.Background(), g, testImages())
	require.Contains(t, out, "[b]Alpha[/b]")
	require.Contains(t, out, "Pictures: 3")
}

func TestNoGalleryIDBaseName(t *testing.T) {
	t.Parallel()

	central := t.TempDir()
	w := NewWriter(central, t.TempDir())
	g := testGallery(t)
	g.GalleryID = ""

	w.WriteAll(context.Background(), g, testImages())
	require.FileExists(t, filepath.Join(central, "Alpha.json"))
}

func TestSanitizedNames(t *testing.T) {
	t.Parallel()

	central := t.TempDir()
	w := NewWriter(central, t.TempDir())
	g := testGallery(t)
	g.Name = `My: Gallery?`

	w.WriteAll(context.Background(), g, testImages())
	require.FileExists(t, filepath.Join(central, "My_ Gallery__g123.json"))
}

func TestEnsureDefaultTemplate(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "templates")

	require.NoError(t, EnsureDefaultTemplate(dir))
	require.FileExists(t, filepath.Join(dir, "default.template"))

	// user edits survive.
	path := filepath.Join(dir, "default.template")
	require.NoError(t, os.WriteFile(path, []byte("edited"), 0o600))
	require.NoError(t, EnsureDefaultTemplate(dir))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "edited", string(data))
}
