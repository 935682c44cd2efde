package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/teemow/rsvp/internal/config"
	"github.com/teemow/rsvp/internal/invites"
	"github.com/teemow/rsvp/internal/mcp/protocol"
	"github.com/teemow/rsvp/internal/server"
)

func newGenerateDocsCmd() *cobra.Command {
	var (
		outputFile string
	)

	cmd := &cobra.Command{
		Use:   "generate-docs",
		Short: "Generate MCP tool documentation",
		Long: `Generate markdown documentation for all available MCP tools.
This command reads the tool catalog the server advertises on tools/list, so
the documentation always matches the actual tool definitions.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerateDocs(cmd.Context(), outputFile, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output file (default: stdout)")

	return cmd
}

// docTool is the subset of a tools/list entry the documentation needs.
type docTool struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	InputSchema struct {
		Properties map[string]map[string]any `json:"properties"`
		Required   []string                  `json:"required"`
	} `json:"inputSchema"`
	Annotations struct {
		Title          string `json:"title"`
		ReadOnlyHint   *bool  `json:"readOnlyHint"`
		IdempotentHint *bool  `json:"idempotentHint"`
	} `json:"annotations"`
	Meta map[string]any `json:"_meta"`
}

func runGenerateDocs(ctx context.Context, outputFile string, stdout io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	tools, err := catalogTools(ctx)
	if err != nil {
		return err
	}

	markdown := generateToolsMarkdown(tools)

	if outputFile != "" {
		if err := os.WriteFile(outputFile, []byte(markdown), 0644); err != nil {
			return fmt.Errorf("failed to write output file: %w", err)
		}
		fmt.Fprintf(os.Stderr, "Documentation written to: %s\n", outputFile)
		return nil
	}
	_, err = io.WriteString(stdout, markdown)
	return err
}

// catalogTools registers the tools against an unconnected service and
// returns the tools/list result.
func catalogTools(ctx context.Context) ([]docTool, error) {
	sc, err := server.NewServerContext(ctx, invites.NewService(nil))
	if err != nil {
		return nil, fmt.Errorf("failed to create server context: %w", err)
	}
	defer func() {
		_ = sc.Shutdown()
	}()

	cfg := &config.Config{DefaultSubject: protocol.DefaultSubject}
	d, err := newDispatcher(sc, cfg, nil, slog.New(slog.DiscardHandler))
	if err != nil {
		return nil, err
	}

	resp := d.Dispatch(ctx, &protocol.Request{
		JSONRPC: protocol.JSONRPCVersion,
		ID:      json.RawMessage(`1`),
		Method:  protocol.MethodToolsList,
	})
	if resp.Error != nil {
		return nil, resp.Error
	}

	raw, err := json.Marshal(resp.Result)
	if err != nil {
		return nil, err
	}
	var list struct {
		Tools []docTool `json:"tools"`
	}
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, fmt.Errorf("decode tool catalog: %w", err)
	}
	return list.Tools, nil
}

func generateToolsMarkdown(tools []docTool) string {
	var sb strings.Builder

	// Header
	sb.WriteString("# MCP Tools Reference\n\n")
	sb.WriteString("This document provides a complete reference of all tools available when running rsvp as an MCP server.\n\n")
	sb.WriteString("**Note:** This documentation is automatically generated from the tool definitions.\n\n")

	// Table of contents
	sb.WriteString("## Table of Contents\n\n")
	for _, tool := range tools {
		sb.WriteString(fmt.Sprintf("- [%s](#%s)\n", tool.Name, tool.Name))
	}
	sb.WriteString("\n")

	sb.WriteString("## Caller Identity\n\n")
	sb.WriteString("Tools act for the subject named in the call's `_meta` (`openai/subject`, then `subject`).\n")
	sb.WriteString("Without one the server's default subject is used, unless it runs with `--require-subject`.\n\n")
	sb.WriteString("If the subject has not connected a Google Calendar, tools return `{authRequired: true, authUrl}` instead of an error.\n\n")

	sb.WriteString("## Tools\n\n")
	for _, tool := range tools {
		sb.WriteString(generateToolMarkdown(tool))
		sb.WriteString("\n")
	}

	return sb.String()
}

func generateToolMarkdown(tool docTool) string {
	var sb strings.Builder

	// Tool name
	sb.WriteString(fmt.Sprintf("### %s\n\n", tool.Name))

	// Description
	if tool.Description != "" {
		sb.WriteString(fmt.Sprintf("%s\n\n", tool.Description))
	}

	var traits []string
	if hint := tool.Annotations.ReadOnlyHint; hint != nil && *hint {
		traits = append(traits, "read-only")
	}
	if hint := tool.Annotations.IdempotentHint; hint != nil && *hint {
		traits = append(traits, "idempotent")
	}
	if template, ok := tool.Meta["openai/outputTemplate"].(string); ok {
		traits = append(traits, fmt.Sprintf("widget `%s`", template))
	}
	if len(traits) > 0 {
		sb.WriteString(fmt.Sprintf("_%s_\n\n", strings.Join(traits, ", ")))
	}

	// Input schema
	if len(tool.InputSchema.Properties) > 0 {
		sb.WriteString("**Arguments:**\n")

		// Sort properties for consistent output
		propNames := make([]string, 0, len(tool.InputSchema.Properties))
		for name := range tool.InputSchema.Properties {
			propNames = append(propNames, name)
		}
		sort.Strings(propNames)

		for _, name := range propNames {
			prop := tool.InputSchema.Properties[name]

			requiredStr := "optional"
			if slices.Contains(tool.InputSchema.Required, name) {
				requiredStr = "required"
			}

			sb.WriteString(fmt.Sprintf("- `%s` (%s): ", name, requiredStr))

			if desc, ok := prop["description"].(string); ok {
				sb.WriteString(desc)
			} else {
				sb.WriteString(fmt.Sprintf("%s parameter", getPropertyType(prop)))
			}
			if enum, ok := prop["enum"].([]any); ok && len(enum) > 0 {
				values := make([]string, 0, len(enum))
				for _, v := range enum {
					values = append(values, fmt.Sprintf("`%v`", v))
				}
				sb.WriteString(" One of " + strings.Join(values, ", ") + ".")
			}

			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	} else {
		sb.WriteString("**Arguments:** none\n\n")
	}

	return sb.String()
}

func getPropertyType(prop map[string]any) string {
	if t, ok := prop["type"].(string); ok {
		return t
	}
	return "any"
}
