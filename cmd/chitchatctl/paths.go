package main

import (
	"os"
	"path/filepath"
	"strings"
)

// absPath resolves a path given on the command line, since the daemon reads
// attachments from its own working directory.
func absPath(p string) string {
	if p == "" {
		return ""
	}
	if rest, ok := strings.CutPrefix(p, "~/"); ok {
		if home, err := os.UserHomeDir(); err == nil {
			p = filepath.Join(home, rest)
		}
	}
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}
