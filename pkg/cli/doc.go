// Package cli defines the authy command tree: `serve` runs the gateway with flags falling
// back to environment variables, `version` prints the build metadata.
package cli
