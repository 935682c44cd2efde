package invite_tools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/rsvp/internal/invites"
	"github.com/teemow/rsvp/internal/mcp/protocol"
	"github.com/teemow/rsvp/internal/resources"
	"github.com/teemow/rsvp/internal/server"
	"github.com/teemow/rsvp/internal/tools/common"
)

// Tool names.
const (
	ToolGetPendingReservations = "get_pending_reservations"
	ToolRespondToInvite        = "respond_to_invite"
	ToolCheckAuthStatus        = "check_auth_status"
)

// RegisterTools adds the invitation tools to the dispatcher.
func RegisterTools(d *protocol.Dispatcher, sc *server.ServerContext) error {
	tools := []struct {
		tool mcpserver.ServerTool
		meta map[string]any
	}{
		{
			tool: mcpserver.ServerTool{Tool: pendingReservationsTool(), Handler: handleGetPendingReservations(sc)},
			meta: resources.OutputTemplateMeta(resources.PendingInvites, "Checking your calendar", "Found your invitations"),
		},
		{
			tool: mcpserver.ServerTool{Tool: respondToInviteTool(), Handler: handleRespondToInvite(sc)},
			meta: resources.OutputTemplateMeta(resources.InviteResponse, "Sending your response", "Response sent"),
		},
		{
			tool: mcpserver.ServerTool{Tool: checkAuthStatusTool(), Handler: handleCheckAuthStatus(sc)},
			meta: resources.OutputTemplateMeta(resources.ConnectCalendar, "Checking calendar connection", "Checked calendar connection"),
		},
	}

	for _, t := range tools {
		t.tool.Handler = common.InstrumentedToolHandler(t.tool.Tool.Name, sc, t.tool.Handler)
		if err := d.AddTool(t.tool, t.meta); err != nil {
			return fmt.Errorf("failed to register %s: %w", t.tool.Tool.Name, err)
		}
	}
	return nil
}

func pendingReservationsTool() mcp.Tool {
	return mcp.NewTool(ToolGetPendingReservations,
		mcp.WithDescription("List calendar invitations you have not answered yet. Defaults to the next 14 days."),
		mcp.WithTitleAnnotation("Pending invitations"),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(true),
		mcp.WithString("start_date",
			mcp.Description("Start of the range, RFC 3339 or YYYY-MM-DD (default: now)"),
		),
		mcp.WithString("end_date",
			mcp.Description("End of the range, RFC 3339 or YYYY-MM-DD; a date includes that whole day (default: 14 days after start)"),
		),
	)
}

func respondToInviteTool() mcp.Tool {
	return mcp.NewTool(ToolRespondToInvite,
		mcp.WithDescription("Accept, decline or tentatively accept a calendar invitation. Only your own response is changed."),
		mcp.WithTitleAnnotation("Respond to invitation"),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(true),
		mcp.WithString("event_id",
			mcp.Required(),
			mcp.Description("ID of the event, as returned by get_pending_reservations"),
		),
		mcp.WithString("response",
			mcp.Required(),
			mcp.Description("Your answer"),
			mcp.Enum("accepted", "declined", "tentative"),
		),
	)
}

func checkAuthStatusTool() mcp.Tool {
	return mcp.NewTool(ToolCheckAuthStatus,
		mcp.WithDescription("Check whether your Google Calendar is connected. Returns a link to connect it if not."),
		mcp.WithTitleAnnotation("Calendar connection"),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)
}

func handleGetPendingReservations(sc *server.ServerContext) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		result, err := sc.Invites().ListPending(ctx, common.SubjectFromContext(ctx),
			request.GetString("start_date", ""), request.GetString("end_date", ""))
		if err != nil {
			return toolResult(nil, err), nil
		}

		summary := fmt.Sprintf("Found %d pending invitations between %s and %s.", result.Count, result.StartDate, result.EndDate)
		if result.Count == 1 {
			summary = fmt.Sprintf("Found 1 pending invitation between %s and %s.", result.StartDate, result.EndDate)
		}
		return mcp.NewToolResultStructured(result, summary), nil
	}
}

func handleRespondToInvite(sc *server.ServerContext) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		result, err := sc.Invites().Respond(ctx, common.SubjectFromContext(ctx),
			request.GetString("event_id", ""), request.GetString("response", ""))
		if err != nil {
			return toolResult(nil, err), nil
		}
		return mcp.NewToolResultStructured(result, result.Message), nil
	}
}

func handleCheckAuthStatus(sc *server.ServerContext) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		status := sc.Invites().AuthStatus(ctx, common.SubjectFromContext(ctx))

		summary := "Your Google Calendar is not connected. Open the link to connect it."
		if status.Authenticated {
			summary = "Your Google Calendar is connected."
			if status.Email != "" {
				summary = fmt.Sprintf("Your Google Calendar is connected as %s.", status.Email)
			}
		}
		return mcp.NewToolResultStructured(status, summary), nil
	}
}

// toolResult renders a failed or authorization-required outcome. Only the
// former sets IsError.
func toolResult(v any, err error) *mcp.CallToolResult {
	payload, isError := invites.Payload(v, err)

	var text string
	switch p := payload.(type) {
	case invites.AuthRequired:
		text = p.Message + " " + p.AuthURL
	case invites.ErrorPayload:
		text = p.Error
	default:
		text = "Request failed"
	}

	result := mcp.NewToolResultStructured(payload, text)
	result.IsError = isError
	return result
}
