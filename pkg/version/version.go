// Package version carries the build identifier stamped at link time.
package version

// Build holds the build identifier, injected via -ldflags. Default "dev".
var Build = "dev"
