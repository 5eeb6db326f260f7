// Package config loads the supervisor configuration file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config describes the supervised system: where it lives, how to test it,
// and how to archive it.
type Config struct {
	WorkDir     string   `yaml:"workDir"`     // deployed tree under supervision
	ArchiveDir  string   `yaml:"archiveDir"`  // snapshot archives; survives restores
	ServiceName string   `yaml:"serviceName"` // systemd unit restarted after restores
	Excludes    []string `yaml:"excludes"`    // archive exclude patterns

	HarnessCommand string        `yaml:"harnessCommand"` // full test suite, sh -c
	HarnessTimeout time.Duration `yaml:"harnessTimeout"`
	DepCommand     string        `yaml:"depCommand"` // dependency re-resolution, sh -c
	ManifestPath   string        `yaml:"manifestPath"`
	SkipDirs       []string      `yaml:"skipDirs"` // never descended during inspection

	JournalPath string `yaml:"journalPath"`
	WebhookURL  string `yaml:"webhookUrl"` // operator notification endpoint, optional
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		WorkDir:        ".",
		ArchiveDir:     "/var/lib/rollguard/archives",
		ServiceName:    "app",
		Excludes:       []string{"./archives", "./node_modules", "./.git", "./dist", "./build"},
		HarnessCommand: "go test ./...",
		HarnessTimeout: 5 * time.Minute,
		DepCommand:     "go mod download",
		ManifestPath:   "go.mod",
		SkipDirs:       []string{".git", "node_modules", "dist", "build", "archives"},
		JournalPath:    "/var/lib/rollguard/oplog.db",
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if cfg.WorkDir == "" {
		return cfg, fmt.Errorf("workDir is required")
	}
	if cfg.ArchiveDir == "" {
		return cfg, fmt.Errorf("archiveDir is required")
	}
	return cfg, nil
}
