package hooks

import (
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/pkg/errors"

	"github.com/imxup/imxup/gallery"
)

// escapePlaceholder temporarily stands in for %% so escaped percent signs
// survive the variable pass. NUL cannot appear in a command string.
const escapePlaceholder = "\x00"

// hookVariables builds the substitution dictionary for one gallery.
func hookVariables(g *gallery.Gallery, ap ArtifactPaths) map[string]string {
	return map[string]string{
		"%N":  g.Name,
		"%T":  g.TabName,
		"%p":  g.Path,
		"%C":  strconv.Itoa(g.TotalImages),
		"%g":  g.GalleryID,
		"%j":  ap.JSON,
		"%b":  ap.BBCode,
		"%z":  ap.Zip,
		"%s":  strconv.FormatInt(g.TotalSize, 10),
		"%t":  g.TemplateName,
		"%e1": g.Ext1,
		"%e2": g.Ext2,
		"%e3": g.Ext3,
		"%e4": g.Ext4,
		"%c1": g.Custom1,
		"%c2": g.Custom2,
		"%c3": g.Custom3,
		"%c4": g.Custom4,
	}
}

func commandWantsZip(command string) bool {
	return strings.Contains(strings.ReplaceAll(command, "%%", escapePlaceholder), "%z")
}

// Substitute expands hook variables in command. %% escapes a literal
// percent; longer variable names win over shorter prefixes.
func Substitute(command string, vars map[string]string) string {
	out := strings.ReplaceAll(command, "%%", escapePlaceholder)

	names := make([]string, 0, len(vars))
	for n := range vars {
		names = append(names, n)
	}

	// longest first so %e1 is never half-eaten by a shorter name.
	sort.Slice(names, func(i, j int) bool {
		if len(names[i]) != len(names[j]) {
			return len(names[i]) > len(names[j])
		}

		return names[i] < names[j]
	})

	for _, n := range names {
		out = strings.ReplaceAll(out, n, vars[n])
	}

	return strings.ReplaceAll(out, escapePlaceholder, "%")
}

// splitCommand splits a command line into argv honoring single and double
// quotes.
func splitCommand(command string) ([]string, error) {
	var (
		argv    []string
		current strings.Builder
		quote   rune
		started bool
	)

	for _, r := range command {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				current.WriteRune(r)
			}

		case r == '\'' || r == '"':
			quote = r
			started = true

		case unicode.IsSpace(r):
			if started {
				argv = append(argv, current.String())
				current.Reset()

				started = false
			}

		default:
			current.WriteRune(r)

			started = true
		}
	}

	if quote != 0 {
		return nil, errors.Errorf("unbalanced quote in command: %v", command)
	}

	if started {
		argv = append(argv, current.String())
	}

	if len(argv) == 0 {
		return nil, errors.New("empty hook command")
	}

	return argv, nil
}
