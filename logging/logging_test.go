package logging

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPrintfLoggerWithPrefix(t *testing.T) {
	var lines []string

	l := Printf(func(msg string, args ...interface{}) {
		lines = append(lines, fmt.Sprintf(msg, args...))
	})("mod")

	l.Infof("hello %v", 42)
	WithPrefix("sub: ", l).Warnf("oops")

	require.Equal(t, []string{"[mod] hello 42", "[mod] sub: oops"}, lines)
}

func TestModuleUsesContextFactory(t *testing.T) {
	var lines []string

	f := Printf(func(msg string, args ...interface{}) {
		lines = append(lines, fmt.Sprintf(msg, args...))
	})

	log := Module("engine")

	ctx := WithLogger(context.Background(), f)
	log(ctx).Infof("from ctx")

	// background context falls back to the default (null) factory and must not panic.
	log(context.Background()).Infof("discarded")

	require.Equal(t, []string{"[engine] from ctx"}, lines)
}
