package invite_tools

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/rsvp/internal/calendar"
	"github.com/teemow/rsvp/internal/invites"
	"github.com/teemow/rsvp/internal/mcp/protocol"
	"github.com/teemow/rsvp/internal/resources"
	"github.com/teemow/rsvp/internal/server"
)

// recordingAdapter keeps one attendance status per event and counts calls.
type recordingAdapter struct {
	mu         sync.Mutex
	authorized map[string]string
	statuses   map[string]calendar.ResponseStatus
	listCalls  int
	patchCalls int
}

func newRecordingAdapter() *recordingAdapter {
	return &recordingAdapter{
		authorized: map[string]string{"alice": "alice@example.com"},
		statuses:   map[string]calendar.ResponseStatus{"evt-1": calendar.ResponseNeedsAction},
	}
}

func (a *recordingAdapter) ListPendingInvites(context.Context, string, time.Time, time.Time) ([]calendar.PendingInvite, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.listCalls++
	var out []calendar.PendingInvite
	for id, status := range a.statuses {
		if status == calendar.ResponseNeedsAction {
			out = append(out, calendar.PendingInvite{EventID: id, Summary: "Planning"})
		}
	}
	return out, nil
}

func (a *recordingAdapter) RespondToEvent(_ context.Context, _ string, eventID string, response calendar.ResponseStatus) (*calendar.RespondResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.patchCalls++
	if _, ok := a.statuses[eventID]; !ok {
		return nil, calendar.ErrEventNotFound
	}
	a.statuses[eventID] = response
	return &calendar.RespondResult{EventID: eventID, EventSummary: "Planning", Response: response}, nil
}

func (a *recordingAdapter) IsAuthorized(_ context.Context, subject string) bool {
	_, ok := a.authorized[subject]
	return ok
}

func (a *recordingAdapter) ConsentURL(subject string) (string, error) {
	return "https://accounts.example.com/consent?subject=" + subject, nil
}

func (a *recordingAdapter) UserEmail(_ context.Context, subject string) (string, error) {
	return a.authorized[subject], nil
}

func newToolDispatcher(t *testing.T, adapter calendar.Adapter) *protocol.Dispatcher {
	t.Helper()

	sc, err := server.NewServerContext(context.Background(), invites.NewService(adapter))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sc.Shutdown() })

	registry, err := resources.NewRegistry()
	require.NoError(t, err)

	d := protocol.NewDispatcher(protocol.WithResources(registry))
	require.NoError(t, RegisterTools(d, sc))
	return d
}

// callTool runs tools/call for subject and returns the decoded result.
func callTool(t *testing.T, d *protocol.Dispatcher, subject, name string, args map[string]any) map[string]any {
	t.Helper()

	params, err := json.Marshal(map[string]any{
		"name":      name,
		"arguments": args,
		"_meta":     map[string]any{protocol.MetaKeyOpenAISubject: subject},
	})
	require.NoError(t, err)

	resp := d.Dispatch(context.Background(), &protocol.Request{
		JSONRPC: protocol.JSONRPCVersion,
		ID:      json.RawMessage(`1`),
		Method:  protocol.MethodToolsCall,
		Params:  params,
	})
	require.NotNil(t, resp)
	require.Nil(t, resp.Error, "unexpected error %+v", resp.Error)

	raw, err := json.Marshal(resp.Result)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func structured(t *testing.T, result map[string]any) map[string]any {
	t.Helper()
	content, ok := result["structuredContent"].(map[string]any)
	require.True(t, ok, "missing structuredContent in %v", result)
	return content
}

func TestRegisterTools_Catalog(t *testing.T) {
	d := newToolDispatcher(t, newRecordingAdapter())

	assert.Equal(t, []string{ToolGetPendingReservations, ToolRespondToInvite, ToolCheckAuthStatus}, d.ToolNames())

	resp := d.Dispatch(context.Background(), &protocol.Request{
		JSONRPC: protocol.JSONRPCVersion, ID: json.RawMessage(`2`), Method: protocol.MethodToolsList,
	})
	require.Nil(t, resp.Error)
	raw, err := json.Marshal(resp.Result)
	require.NoError(t, err)

	var list struct {
		Tools []struct {
			Name        string         `json:"name"`
			InputSchema map[string]any `json:"inputSchema"`
			Annotations map[string]any `json:"annotations"`
			Meta        map[string]any `json:"_meta"`
		} `json:"tools"`
	}
	require.NoError(t, json.Unmarshal(raw, &list))
	require.Len(t, list.Tools, 3)

	respond := list.Tools[1]
	assert.Equal(t, ToolRespondToInvite, respond.Name)
	assert.ElementsMatch(t, []any{"event_id", "response"}, respond.InputSchema["required"])
	assert.Equal(t, true, respond.Annotations["idempotentHint"])
	assert.Equal(t, false, respond.Annotations["readOnlyHint"])
	assert.Equal(t, resources.URI(resources.InviteResponse), respond.Meta["openai/outputTemplate"])

	assert.Equal(t, true, list.Tools[0].Annotations["readOnlyHint"])
	assert.Equal(t, resources.URI(resources.PendingInvites), list.Tools[0].Meta["openai/outputTemplate"])
	assert.Equal(t, resources.URI(resources.ConnectCalendar), list.Tools[2].Meta["openai/outputTemplate"])
}

func TestGetPendingReservations(t *testing.T) {
	adapter := newRecordingAdapter()
	d := newToolDispatcher(t, adapter)

	result := callTool(t, d, "alice", ToolGetPendingReservations, map[string]any{
		"start_date": "2025-06-01", "end_date": "2025-06-07",
	})
	assert.Nil(t, result["isError"])

	content := structured(t, result)
	assert.Equal(t, float64(1), content["count"])
	assert.Equal(t, "2025-06-01T00:00:00Z", content["startDate"])
	assert.Equal(t, "2025-06-08T00:00:00Z", content["endDate"], "a date-only end includes the whole day")
	assert.Len(t, content["invites"], 1)
	assert.Equal(t, 1, adapter.listCalls)
}

func TestGetPendingReservations_Unauthorized(t *testing.T) {
	adapter := newRecordingAdapter()
	d := newToolDispatcher(t, adapter)

	result := callTool(t, d, "mallory", ToolGetPendingReservations, nil)

	assert.Nil(t, result["isError"], "authorization required is not a tool error")
	content := structured(t, result)
	assert.Equal(t, true, content["authRequired"])
	assert.NotEmpty(t, content["authUrl"])
	assert.Zero(t, adapter.listCalls, "no calendar read without authorization")
}

func TestGetPendingReservations_InvalidDates(t *testing.T) {
	adapter := newRecordingAdapter()
	d := newToolDispatcher(t, adapter)

	result := callTool(t, d, "alice", ToolGetPendingReservations, map[string]any{
		"start_date": "2025-06-10", "end_date": "2025-06-01",
	})
	assert.Equal(t, true, result["isError"])
	assert.Equal(t, "end_date", structured(t, result)["field"])
	assert.Zero(t, adapter.listCalls)
}

func TestRespondToInvite_Validation(t *testing.T) {
	tests := []struct {
		name  string
		args  map[string]any
		field string
	}{
		{name: "missing event_id", args: map[string]any{"response": "accepted"}, field: "event_id"},
		{name: "missing response", args: map[string]any{"event_id": "evt-1"}, field: "response"},
		{name: "unknown response", args: map[string]any{"event_id": "evt-1", "response": "maybe"}, field: "response"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adapter := newRecordingAdapter()
			d := newToolDispatcher(t, adapter)

			result := callTool(t, d, "alice", ToolRespondToInvite, tt.args)
			assert.Equal(t, true, result["isError"])
			assert.Equal(t, tt.field, structured(t, result)["field"])
			assert.Zero(t, adapter.patchCalls, "validation fails before the adapter is called")
		})
	}
}

func TestRespondToInvite_Idempotent(t *testing.T) {
	adapter := newRecordingAdapter()
	d := newToolDispatcher(t, adapter)

	for i := 0; i < 2; i++ {
		result := callTool(t, d, "alice", ToolRespondToInvite, map[string]any{"event_id": "evt-1", "response": "declined"})
		assert.Nil(t, result["isError"], "call %d", i+1)

		content := structured(t, result)
		assert.Equal(t, true, content["success"])
		assert.Equal(t, "declined", content["response"])
		assert.Equal(t, "Planning", content["eventSummary"])
	}

	assert.Equal(t, calendar.ResponseDeclined, adapter.statuses["evt-1"])
	assert.Equal(t, 2, adapter.patchCalls)
}

func TestRespondToInvite_Errors(t *testing.T) {
	adapter := newRecordingAdapter()
	d := newToolDispatcher(t, adapter)

	result := callTool(t, d, "alice", ToolRespondToInvite, map[string]any{"event_id": "gone", "response": "accepted"})
	assert.Equal(t, true, result["isError"])
	assert.Equal(t, string(invites.KindNotFound), structured(t, result)["code"])

	result = callTool(t, d, "mallory", ToolRespondToInvite, map[string]any{"event_id": "evt-1", "response": "accepted"})
	assert.Nil(t, result["isError"])
	assert.Equal(t, true, structured(t, result)["authRequired"])
	assert.Equal(t, calendar.ResponseNeedsAction, adapter.statuses["evt-1"])
}

func TestCheckAuthStatus(t *testing.T) {
	d := newToolDispatcher(t, newRecordingAdapter())

	content := structured(t, callTool(t, d, "alice", ToolCheckAuthStatus, nil))
	assert.Equal(t, map[string]any{"authenticated": true, "email": "alice@example.com"}, content)

	content = structured(t, callTool(t, d, "bob", ToolCheckAuthStatus, nil))
	assert.Equal(t, false, content["authenticated"])
	assert.Equal(t, "https://accounts.example.com/consent?subject=bob", content["authUrl"])
}
