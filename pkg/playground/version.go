// Package playground holds build metadata for the playground binary.
package playground

// Version is the release version, overridden at build time with
// -ldflags "-X github.com/mesh-intelligence/playground/pkg/playground.Version=...".
var Version = "0.1.0"
