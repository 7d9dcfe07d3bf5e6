// Package utils provides bespoke, one off helpers that don't make sense as
// their own package
package utils

// Set at build time via -ldflags.
var (
	Version   = "dev"
	Commit    = "HEAD"
	BuildDate = "unknown"
)
