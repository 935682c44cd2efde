// Package invite_tools provides the MCP tools for answering calendar
// invitations.
//
// Available tools:
//   - get_pending_reservations: List invitations awaiting a response
//   - respond_to_invite: Accept, decline or tentatively accept an invitation
//   - check_auth_status: Report whether a Google Calendar is connected
//
// Each tool returns structured content rendered by a widget template. A
// caller without a connected calendar gets an authorization-required
// payload with a consent URL rather than a tool error.
package invite_tools
