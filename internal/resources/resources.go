package resources

import (
	"embed"
	"fmt"
	"path"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

//go:embed widgets/*.html
var widgetFS embed.FS

const (
	// MIMEType is the MIME type hosts expect for widget templates.
	MIMEType = "text/html+skybridge"

	uriPrefix = "ui://widget/"
	uriSuffix = ".html"
)

// Widget names.
const (
	PendingInvites  = "pending-invites"
	InviteResponse  = "invite-response"
	ConnectCalendar = "connect-calendar"
)

type widget struct {
	name        string
	title       string
	description string
	markup      string
}

var catalog = []struct {
	name        string
	title       string
	description string
}{
	{PendingInvites, "Pending invitations", "List of calendar invitations awaiting a response, with accept, decline and maybe buttons."},
	{InviteResponse, "Invitation response", "Confirmation card shown after answering an invitation."},
	{ConnectCalendar, "Connect calendar", "Prompt to connect a Google Calendar, or the connected account."},
}

// URI returns the resource URI of the named widget.
func URI(name string) string {
	return uriPrefix + name + uriSuffix
}

// OutputTemplateMeta is the descriptor _meta that binds a tool to a widget.
func OutputTemplateMeta(name, invoking, invoked string) map[string]any {
	return map[string]any{
		"openai/outputTemplate":          URI(name),
		"openai/widgetAccessible":        true,
		"openai/resultCanProduceWidget":  true,
		"openai/toolInvocation/invoking": invoking,
		"openai/toolInvocation/invoked":  invoked,
	}
}

// Registry holds the packaged widgets.
type Registry struct {
	order   []string
	widgets map[string]widget
}

// NewRegistry loads the embedded widget markup.
func NewRegistry() (*Registry, error) {
	r := &Registry{widgets: make(map[string]widget, len(catalog))}
	for _, entry := range catalog {
		markup, err := widgetFS.ReadFile(path.Join("widgets", entry.name+uriSuffix))
		if err != nil {
			return nil, fmt.Errorf("failed to load widget %s: %w", entry.name, err)
		}
		uri := URI(entry.name)
		r.order = append(r.order, uri)
		r.widgets[uri] = widget{
			name:        entry.name,
			title:       entry.title,
			description: entry.description,
			markup:      string(markup),
		}
	}
	return r, nil
}

// List returns the widget catalog in a stable order.
func (r *Registry) List() []mcp.Resource {
	out := make([]mcp.Resource, 0, len(r.order))
	for _, uri := range r.order {
		w := r.widgets[uri]
		out = append(out, mcp.NewResource(uri, w.title,
			mcp.WithResourceDescription(w.description),
			mcp.WithMIMEType(MIMEType),
		))
	}
	return out
}

// Read resolves a widget URI. Unknown URIs report false.
func (r *Registry) Read(uri string) (mcp.TextResourceContents, bool) {
	w, ok := r.widgets[strings.TrimSpace(uri)]
	if !ok {
		return mcp.TextResourceContents{}, false
	}
	return mcp.TextResourceContents{URI: URI(w.name), MIMEType: MIMEType, Text: w.markup}, true
}
