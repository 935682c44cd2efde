package common

import (
	"context"

	"github.com/teemow/rsvp/internal/mcp/protocol"
)

// SubjectFromContext returns the subject the dispatcher resolved for the
// current tool call. Handlers invoked outside the dispatcher get
// protocol.DefaultSubject.
func SubjectFromContext(ctx context.Context) string {
	if subject, ok := protocol.SubjectFromContext(ctx); ok {
		return subject
	}
	return protocol.DefaultSubject
}
