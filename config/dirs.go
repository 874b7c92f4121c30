package config

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// Layout is the on-disk configuration directory.
type Layout struct {
	Root string
}

// DefaultDir returns ~/.imxup, honoring the IMXUP_CONFIG_DIR override.
func DefaultDir() (string, error) {
	if d := os.Getenv("IMXUP_CONFIG_DIR"); d != "" {
		return d, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrap(err, "unable to determine home directory")
	}

	return filepath.Join(home, ".imxup"), nil
}

// NewLayout creates the directory tree rooted at dir.
func NewLayout(dir string) (*Layout, error) {
	l := &Layout{Root: dir}

	for _, d := range []string{l.Root, l.GalleriesDir(), l.TemplatesDir(), l.LogsDir(), l.TempDir()} {
		if err := os.MkdirAll(d, 0o700); err != nil {
			return nil, errors.Wrap(err, "unable to create configuration directory")
		}
	}

	return l, nil
}

// DBPath is the sqlite store location.
func (l *Layout) DBPath() string { return filepath.Join(l.Root, "imxup.db") }

// IniPath is the user configuration file.
func (l *Layout) IniPath() string { return filepath.Join(l.Root, "imxup.ini") }

// GalleriesDir holds central artifact copies.
func (l *Layout) GalleriesDir() string { return filepath.Join(l.Root, "galleries") }

// TemplatesDir holds user BBCode templates.
func (l *Layout) TemplatesDir() string { return filepath.Join(l.Root, "templates") }

// LogsDir holds rotating log files.
func (l *Layout) LogsDir() string { return filepath.Join(l.Root, "logs") }

// TempDir is scratch space for temporary archives.
func (l *Layout) TempDir() string { return filepath.Join(l.Root, "temp") }
