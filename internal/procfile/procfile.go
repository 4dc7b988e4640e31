// Package procfile parses Foreman-style Procfiles: one process name and
// shell command per line, "name: command".
package procfile

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"regexp"
)

// Commands maps process name to shell command.
type Commands map[string]string

// pattern matches "name: command" lines. Anything else (blank lines,
// comments, malformed entries) is silently dropped.
// Copied from https://github.com/strongloop/node-foreman/blob/782cf09/lib/procfile.js#L18
var pattern = regexp.MustCompile(`^([A-Za-z0-9_-]+):\s*(.+)$`)

// ParseInDir looks for Procfile.dev, falling back to Procfile, in
// directory and parses whichever is found first. Neither file existing
// is not an error; it yields an empty Commands.
func ParseInDir(directory string) Commands {
	for _, name := range []string{"Procfile.dev", "Procfile"} {
		path := filepath.Join(directory, name)
		f, err := os.Open(path)
		if err != nil {
			continue
		}
		defer f.Close()
		return Parse(f)
	}
	return Commands{}
}

// Parse reads lines from r and returns the name->command entries that
// matched the Procfile line grammar.
func Parse(r io.Reader) Commands {
	cmds := Commands{}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		m := pattern.FindStringSubmatch(scanner.Text())
		if m == nil {
			continue
		}
		cmds[m[1]] = m[2]
	}
	return cmds
}
