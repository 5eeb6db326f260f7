package sysops

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

var endpointRe = regexp.MustCompile(`HandleFunc\(|\.(GET|POST|PUT|DELETE|PATCH)\(|@app\.route\(|router\.`)

// TreeInspector measures the deployed tree for the snapshot fingerprint. All
// probes are best-effort: the caller degrades to zeroed fields on error.
type TreeInspector struct {
	Dir          string
	SkipDirs     []string // directory names never descended into
	ManifestPath string   // dependency manifest, relative to Dir
}

// CountSource walks the tree and returns file and line counts.
func (t TreeInspector) CountSource() (int, int, error) {
	files, lines := 0, 0
	err := filepath.WalkDir(t.Dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil // unreadable entries don't abort the walk
		}
		if d.IsDir() {
			if t.skip(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		files++
		if n, err := countLines(path); err == nil {
			lines += n
		}
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	return files, lines, nil
}

// CountEndpoints approximates the external surface by scanning source files
// for route registrations.
func (t TreeInspector) CountEndpoints() (int, error) {
	count := 0
	err := filepath.WalkDir(t.Dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if t.skip(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		switch filepath.Ext(path) {
		case ".go", ".py", ".js", ".ts":
		default:
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil
		}
		count += len(endpointRe.FindAll(data, -1))
		return nil
	})
	return count, err
}

// Dependencies parses the manifest into name -> version pairs. Lines that
// don't look like a dependency entry are skipped.
func (t TreeInspector) Dependencies() (map[string]string, error) {
	path := filepath.Join(t.Dir, t.ManifestPath)
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open manifest: %w", err)
	}
	defer f.Close()

	deps := map[string]string{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "//") || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		name, version := fields[0], fields[1]
		switch name {
		case "module", "go", "require", "replace", "exclude", ")", "(":
			continue
		}
		if strings.ContainsAny(name, "(){}=") || strings.ContainsAny(version, "(){}=") {
			continue
		}
		deps[name] = version
	}
	return deps, scanner.Err()
}

func (t TreeInspector) skip(name string) bool {
	for _, s := range t.SkipDirs {
		if name == s {
			return true
		}
	}
	return false
}

func countLines(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return bytes.Count(data, []byte{'\n'}), nil
}

// CommandResolver re-resolves dependencies with a shell command
// (e.g. "go mod download" or "npm ci").
type CommandResolver struct {
	Command string
	Dir     string
	Timeout time.Duration // default 5m
}

func (r CommandResolver) Resolve(ctx context.Context) error {
	if r.Command == "" {
		return nil
	}
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	cmd := execCommand(ctx, "sh", "-c", r.Command)
	cmd.Dir = r.Dir
	out, err := cmd.CombinedOutput()
	if ctx.Err() != nil {
		return fmt.Errorf("dependency resolution timed out after %s", timeout)
	}
	if err != nil {
		return fmt.Errorf("dependency resolution failed: %v output=%s", err, truncateOut(string(out)))
	}
	return nil
}
