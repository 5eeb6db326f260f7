package sysops

import (
	"log"
	"os/exec"
	"strings"
)

// GitVersionSource reads the current revision from the working tree.
type GitVersionSource struct {
	Dir string
}

// CurrentVersion returns the short HEAD revision, or "unknown" when the tree
// is not a repository or git is unavailable.
func (g GitVersionSource) CurrentVersion() string {
	cmd := exec.Command("git", "rev-parse", "--short", "HEAD")
	cmd.Dir = g.Dir
	out, err := cmd.Output()
	if err != nil {
		log.Printf("version lookup failed: %v", err)
		return "unknown"
	}
	v := strings.TrimSpace(string(out))
	if v == "" {
		return "unknown"
	}
	return v
}
