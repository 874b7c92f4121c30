// Package artifacts renders the durable output of a completed upload: a JSON
// manifest and a BBCode text file, written to the central galleries directory
// and into the gallery folder itself.
package artifacts

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/imxup/imxup/gallery"
	"github.com/imxup/imxup/internal/atomicfile"
	"github.com/imxup/imxup/internal/clock"
	"github.com/imxup/imxup/logging"
)

var log = logging.Module("artifacts")

// uploadedSubdir is created inside the gallery folder to hold its artifacts.
const uploadedSubdir = ".uploaded"

// ImageEntry is one uploaded image in the manifest.
type ImageEntry struct {
	OriginalFilename string `json:"original_filename"`
	SizeBytes        int64  `json:"size_bytes"`
	Width            int    `json:"width"`
	Height           int    `json:"height"`
	ImageURL         string `json:"image_url"`
	ThumbnailURL     string `json:"thumbnail_url"`
	BBCode           string `json:"bbcode"`
}

// Manifest is the JSON artifact written for a completed gallery.
type Manifest struct {
	GalleryID    string `json:"gallery_id"`
	GalleryURL   string `json:"gallery_url"`
	CreatedTS    int64  `json:"created_ts"`
	TemplateName string `json:"template_name"`

	Images []ImageEntry `json:"images"`

	Custom1 string `json:"custom1,omitempty"`
	Custom2 string `json:"custom2,omitempty"`
	Custom3 string `json:"custom3,omitempty"`
	Custom4 string `json:"custom4,omitempty"`
	Ext1    string `json:"ext1,omitempty"`
	Ext2    string `json:"ext2,omitempty"`
	Ext3    string `json:"ext3,omitempty"`
	Ext4    string `json:"ext4,omitempty"`
}

// Writer writes artifacts for completed galleries.
type Writer struct {
	// CentralDir is the shared output directory (config dir "galleries/").
	CentralDir string
	// TemplatesDir holds "<name>.template" files.
	TemplatesDir string
}

// NewWriter builds a Writer rooted at the given directories.
func NewWriter(centralDir, templatesDir string) *Writer {
	return &Writer{CentralDir: centralDir, TemplatesDir: templatesDir}
}

// BBCodeFor renders the per-image BBCode snippet.
func BBCodeFor(imageURL, thumbURL string) string {
	return "[url=" + imageURL + "][img]" + thumbURL + "[/img][/url]"
}

// WriteAll writes the manifest and the rendered BBCode file to both output
// locations. Failures are logged, never raised; the paths actually written
// are returned.
func (w *Writer) WriteAll(ctx context.Context, g *gallery.Gallery, images []ImageEntry) []string {
	manifest, err := json.MarshalIndent(buildManifest(g, images), "", "  ")
	if err != nil {
		log(ctx).Errorf("unable to marshal manifest for %v: %v", g.Path, err)
		return nil
	}

	bbcode := w.renderBBCode(ctx, g, images)

	base := artifactBaseName(g)

	var written []string

	for _, dir := range []string{w.CentralDir, filepath.Join(g.Path, uploadedSubdir)} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			log(ctx).Warnf("unable to create artifact directory %v: %v", dir, err)
			continue
		}

		jsonPath := filepath.Join(dir, base+".json")
		if err := atomicfile.WriteBytes(jsonPath, manifest); err != nil {
			log(ctx).Warnf("unable to write %v: %v", jsonPath, err)
		} else {
			written = append(written, jsonPath)
		}

		bbPath := filepath.Join(dir, base+"_bbcode.txt")
		if err := atomicfile.WriteBytes(bbPath, []byte(bbcode)); err != nil {
			log(ctx).Warnf("unable to write %v: %v", bbPath, err)
		} else {
			written = append(written, bbPath)
		}
	}

	log(ctx).Infof("wrote %v artifacts for %v", len(written), g.Name)

	return written
}

// ReadManifest loads the central-directory manifest written for g.
func (w *Writer) ReadManifest(g *gallery.Gallery) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(w.CentralDir, artifactBaseName(g)+".json"))
	if err != nil {
		return nil, errors.Wrap(err, "unable to read manifest")
	}

	var m Manifest

	if err := json.Unmarshal(data, &m); err != nil {
		return nil, errors.Wrap(err, "malformed manifest")
	}

	return &m, nil
}

// ImageURLsFor returns the uploaded image URLs recorded in g's manifest.
func (w *Writer) ImageURLsFor(g *gallery.Gallery) ([]string, error) {
	m, err := w.ReadManifest(g)
	if err != nil {
		return nil, err
	}

	urls := make([]string, 0, len(m.Images))
	for _, img := range m.Images {
		urls = append(urls, img.ImageURL)
	}

	return urls, nil
}

func buildManifest(g *gallery.Gallery, images []ImageEntry) *Manifest {
	return &Manifest{
		GalleryID:    g.GalleryID,
		GalleryURL:   g.GalleryURL,
		CreatedTS:    clock.Now().Unix(),
		TemplateName: g.TemplateName,
		Images:       images,
		Custom1:      g.Custom1,
		Custom2:      g.Custom2,
		Custom3:      g.Custom3,
		Custom4:      g.Custom4,
		Ext1:         g.Ext1,
		Ext2:         g.Ext2,
		Ext3:         g.Ext3,
		Ext4:         g.Ext4,
	}
}

// artifactBaseName is "{name}_{gallery_id}", or just "{name}" when the
// gallery id is unknown.
func artifactBaseName(g *gallery.Gallery) string {
	name := sanitizeFileName(g.Name)
	if name == "" {
		name = "gallery"
	}

	if g.GalleryID == "" {
		return name
	}

	return name + "_" + sanitizeFileName(g.GalleryID)
}

func sanitizeFileName(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		default:
			return r
		}
	}, strings.TrimSpace(s))
}

// readTemplate loads "<name>.template", falling back to the built-in default.
func (w *Writer) readTemplate(ctx context.Context, name string) string {
	if name == "" {
		name = DefaultTemplateName
	}

	data, err := os.ReadFile(filepath.Join(w.TemplatesDir, name+".template"))
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log(ctx).Warnf("unable to read template %v: %v", name, err)
		}

		return defaultTemplate
	}

	return string(data)
}
