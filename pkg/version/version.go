// Package version holds the application version string.
package version

// Version is the application version, overridden at build time via -ldflags.
var Version = "0.3.0-dev"
