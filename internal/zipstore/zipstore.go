// Package zipstore creates uncompressed ("store" mode) ZIP archives of
// gallery folders and cleans up the resulting temporary files.
package zipstore

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zip"
	"github.com/pkg/errors"

	"github.com/imxup/imxup/logging"
)

var log = logging.Module("zipstore")

const (
	removeAttempts     = 5
	removeInitialDelay = 100 * time.Millisecond
)

// CreateTemp archives all regular files at the root of dir (no recursion)
// into a new store-mode ZIP in tempDir and returns its path. Entries are
// written uncompressed since image payloads do not compress.
func CreateTemp(ctx context.Context, dir, tempDir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", errors.Wrap(err, "error reading gallery folder")
	}

	var names []string

	for _, e := range entries {
		if e.Type().IsRegular() {
			names = append(names, e.Name())
		}
	}

	if len(names) == 0 {
		return "", errors.Errorf("no files to archive in %v", dir)
	}

	sort.Strings(names)

	zipPath := filepath.Join(tempDir, filepath.Base(dir)+"-"+uuid.NewString()+".zip")

	f, err := os.Create(zipPath)
	if err != nil {
		return "", errors.Wrap(err, "error creating archive")
	}

	zw := zip.NewWriter(f)

	for _, name := range names {
		if err := ctx.Err(); err != nil {
			zw.Close() //nolint:errcheck
			f.Close()  //nolint:errcheck
			RemoveWithRetry(ctx, zipPath)

			return "", errors.Wrap(err, "canceled while archiving")
		}

		if err := addStoredEntry(zw, dir, name); err != nil {
			zw.Close() //nolint:errcheck
			f.Close()  //nolint:errcheck
			RemoveWithRetry(ctx, zipPath)

			return "", err
		}
	}

	if err := zw.Close(); err != nil {
		f.Close() //nolint:errcheck
		return "", errors.Wrap(err, "error finalizing archive")
	}

	if err := f.Close(); err != nil {
		return "", errors.Wrap(err, "error closing archive")
	}

	return zipPath, nil
}

func addStoredEntry(zw *zip.Writer, dir, name string) error {
	src, err := os.Open(filepath.Join(dir, name))
	if err != nil {
		return errors.Wrapf(err, "error opening %v", name)
	}
	defer src.Close() //nolint:errcheck

	fi, err := src.Stat()
	if err != nil {
		return errors.Wrapf(err, "error stating %v", name)
	}

	hdr, err := zip.FileInfoHeader(fi)
	if err != nil {
		return errors.Wrapf(err, "error building header for %v", name)
	}

	hdr.Name = name
	hdr.Method = zip.Store

	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return errors.Wrapf(err, "error adding %v", name)
	}

	if _, err := io.Copy(w, src); err != nil {
		return errors.Wrapf(err, "error copying %v", name)
	}

	return nil
}

// RemoveWithRetry deletes the given file, retrying with exponential backoff.
// External processes (antivirus, hook programs) may briefly hold the handle,
// so the first attempts are expected to fail occasionally on Windows.
func RemoveWithRetry(ctx context.Context, path string) bool {
	delay := removeInitialDelay

	for i := 0; i < removeAttempts; i++ {
		err := os.Remove(path)
		if err == nil || os.IsNotExist(err) {
			return true
		}

		log(ctx).Debugf("attempt %v to remove %v failed: %v", i+1, path, err)

		select {
		case <-ctx.Done():
			return false
		case <-time.After(delay):
		}

		delay *= 2
	}

	log(ctx).Warnf("unable to remove temporary file %v", path)

	return false
}
