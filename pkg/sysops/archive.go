// Package sysops implements the snapshot collaborator interfaces with shell
// tooling: tar archives, a command-driven test harness, systemd restarts, git
// version lookup, and source-tree inspection. The core packages never see a
// specific tool's argument syntax.
package sysops

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

// TarArchiver packs and unpacks trees with the system tar.
type TarArchiver struct{}

// Archive writes a gzipped tarball of sourceTree to destination, skipping the
// exclude patterns, and returns its size in bytes.
func (TarArchiver) Archive(ctx context.Context, sourceTree, destination string, exclude []string) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(destination), 0o755); err != nil {
		return 0, fmt.Errorf("mkdir archive dir: %w", err)
	}
	args := []string{"-czf", destination}
	for _, pat := range exclude {
		args = append(args, "--exclude", pat)
	}
	args = append(args, "-C", sourceTree, ".")
	if err := run(ctx, "tar", args...); err != nil {
		return 0, err
	}
	info, err := os.Stat(destination)
	if err != nil {
		return 0, fmt.Errorf("stat archive: %w", err)
	}
	return info.Size(), nil
}

// Extract unpacks archivePath over destinationTree.
func (TarArchiver) Extract(ctx context.Context, archivePath, destinationTree string) error {
	if err := os.MkdirAll(destinationTree, 0o755); err != nil {
		return fmt.Errorf("mkdir destination: %w", err)
	}
	return run(ctx, "tar", "-xzf", archivePath, "-C", destinationTree)
}

func run(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s %v failed: %v output=%s", name, args, err, string(out))
	}
	return nil
}
