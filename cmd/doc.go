// Package cmd implements the command-line interface for the docstore
// client driver. It provides a hierarchical command structure for
// working with sessions and inspecting cluster topology.
//
// The package is organized into several subpackages:
//
//   - session: Commands for loading, storing, and deleting documents
//   - topology: Commands for inspecting the current cluster topology
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// See docstore -help for a list of all commands.
package cmd
