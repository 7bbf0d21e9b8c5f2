// Package types defines the canvas node model, tree manifest entries, iteration
// listing records, configuration, and the standard errors shared by the
// playground packages.
package types
