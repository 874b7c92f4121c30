package artifacts

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/imxup/imxup/gallery"
	"github.com/imxup/imxup/internal/atomicfile"
	"github.com/imxup/imxup/internal/units"
)

// DefaultTemplateName is the template used when a gallery names none.
const DefaultTemplateName = "default"

const defaultTemplate = `[b]#folderName#[/b]

Pictures: #pictureCount# | Size: #folderSize# | Resolution: #width#x#height# (#extension#)

Gallery: #galleryLink#

#allImages#
`

// EnsureDefaultTemplate materializes the built-in template file on first run
// so users have something to copy from. An existing file is left alone.
func EnsureDefaultTemplate(templatesDir string) error {
	if err := os.MkdirAll(templatesDir, 0o750); err != nil {
		return errors.Wrap(err, "unable to create templates directory")
	}

	path := filepath.Join(templatesDir, DefaultTemplateName+".template")
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	return errors.Wrap(atomicfile.WriteBytes(path, []byte(defaultTemplate)), "unable to write default template")
}

// renderBBCode expands the closed placeholder set against the gallery and
// its uploaded images.
func (w *Writer) renderBBCode(ctx context.Context, g *gallery.Gallery, images []ImageEntry) string {
	tmpl := w.readTemplate(ctx, g.TemplateName)

	lines := make([]string, 0, len(images))
	for _, img := range images {
		lines = append(lines, img.BBCode)
	}

	longest := g.AvgWidth
	if g.AvgHeight > longest {
		longest = g.AvgHeight
	}

	repl := strings.NewReplacer(
		"#folderName#", g.Name,
		"#pictureCount#", strconv.Itoa(len(images)),
		"#width#", strconv.Itoa(g.AvgWidth),
		"#height#", strconv.Itoa(g.AvgHeight),
		"#longest#", strconv.Itoa(longest),
		"#extension#", dominantExtension(images),
		"#folderSize#", units.BytesStringBase2(g.TotalSize),
		"#galleryLink#", g.GalleryURL,
		"#allImages#", strings.Join(lines, "\n"),
	)

	return repl.Replace(tmpl)
}

// dominantExtension returns the most frequent image extension, without dot.
func dominantExtension(images []ImageEntry) string {
	counts := map[string]int{}

	var best string

	for _, img := range images {
		ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(img.OriginalFilename)), ".")
		if ext == "" {
			continue
		}

		counts[ext]++
		if best == "" || counts[ext] > counts[best] {
			best = ext
		}
	}

	return best
}
