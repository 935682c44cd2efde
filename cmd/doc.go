// Package cmd implements the command-line interface for rsvp.
//
// This package provides the following commands:
//   - serve: Start the MCP server (stdio or HTTP transport)
//   - register-client: Register an OAuth client in the configured store
//   - generate-docs: Generate markdown documentation for all MCP tools
//   - version: Display version information
//
// The serve command is the default command when no subcommand is specified.
package cmd
