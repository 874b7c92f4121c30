package config

import (
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/pkg/errors"
)

// ErrAlreadyRunning indicates another process holds the configuration
// directory.
var ErrAlreadyRunning = errors.New("another instance is already running")

// AcquireLock takes the single-instance lock on the configuration directory.
// The caller must invoke the returned release function on shutdown.
func AcquireLock(l *Layout) (release func(), err error) {
	fl := flock.New(filepath.Join(l.Root, ".lock"))

	ok, err := fl.TryLock()
	if err != nil {
		return nil, errors.Wrap(err, "unable to acquire instance lock")
	}

	if !ok {
		return nil, ErrAlreadyRunning
	}

	return func() {
		fl.Unlock() //nolint:errcheck
	}, nil
}
