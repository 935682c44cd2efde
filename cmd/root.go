package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command for the rsvp application
var rootCmd = &cobra.Command{
	Use:   "rsvp",
	Short: "MCP server for answering Google Calendar invitations",
	Long: `rsvp is a Model Context Protocol server that lets an AI assistant list
the calendar invitations you have not answered yet and accept, decline or
tentatively accept them on your behalf.

It can run as:
  - A local stdio server for desktop MCP clients (default)
  - An OAuth-protected HTTP server for hosted assistants`,
	SilenceUsage: true,
}

// version will be set by main
var version = "dev"

// SetVersion sets the version for the root command
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

// Execute is the main entry point for the CLI application
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "rsvp version %s\n" .Version}}`)

	// If no subcommand is provided, run the server
	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newRegisterClientCmd())
	rootCmd.AddCommand(newGenerateDocsCmd())
	rootCmd.AddCommand(newVersionCmd())
}
