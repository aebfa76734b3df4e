// Package version holds the build version string.
package version

// Version is overridden at build time with -ldflags.
var Version = "dev"
