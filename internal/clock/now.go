// Package clock provides indirection for accessing current time.
package clock

import (
	"time"
)

// Now returns the current wall-clock time.
func Now() time.Time {
	return time.Now()
}

// Since returns time since the given timestamp.
func Since(t time.Time) time.Duration {
	return Now().Sub(t)
}

// Until returns duration of time between now and a given time.
func Until(t time.Time) time.Duration {
	return t.Sub(Now())
}
