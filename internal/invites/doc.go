// Package invites implements the invitation operations shared by the MCP
// tools and the REST endpoints: listing unanswered invitations, answering
// one, and reporting whether the calendar is connected.
//
// Operations never surface raw adapter errors. Failures come back as one of
// ValidationError, AuthRequiredError or AdapterError, and Payload turns any
// of them into the structured body a caller renders.
package invites
