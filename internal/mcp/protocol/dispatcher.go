package protocol

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime/debug"
	"sort"
	"strings"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/rsvp/internal/instrumentation"
	"github.com/teemow/rsvp/internal/logging"
	"github.com/teemow/rsvp/internal/resources"
)

// HandlerFunc serves one JSON-RPC method. A nil result is sent as {}.
type HandlerFunc func(ctx context.Context, params json.RawMessage) (any, error)

// Method names served by default.
const (
	MethodInitialize             = "initialize"
	MethodInitialized            = "initialized"
	MethodNotificationInitialize = "notifications/initialized"
	MethodPing                   = "ping"
	MethodShutdown               = "shutdown"
	MethodToolsList              = "tools/list"
	MethodToolsCall              = "tools/call"
	MethodResourcesList          = "resources/list"
	MethodResourcesRead          = "resources/read"
	MethodResourceTemplatesList  = "resources/templates/list"
	MethodPromptsList            = "prompts/list"
	MethodPromptsGet             = "prompts/get"
	MethodCompletionComplete     = "completion/complete"
	MethodLoggingSetLevel        = "logging/setLevel"
)

const notificationPrefix = "notifications/"

type registeredTool struct {
	handler    mcpserver.ToolHandlerFunc
	descriptor map[string]any
}

// Dispatcher routes JSON-RPC requests through its method table.
type Dispatcher struct {
	mu        sync.RWMutex
	methods   map[string]HandlerFunc
	tools     map[string]registeredTool
	toolOrder []string

	info           mcp.Implementation
	instructions   string
	resources      *resources.Registry
	defaultSubject string
	requireSubject bool
	metrics        *instrumentation.Metrics
	logger         *slog.Logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithServerInfo sets the name and version reported by initialize.
func WithServerInfo(name, version string) Option {
	return func(d *Dispatcher) {
		d.info = mcp.Implementation{Name: name, Version: version}
	}
}

// WithInstructions sets the instructions returned by initialize.
func WithInstructions(instructions string) Option {
	return func(d *Dispatcher) { d.instructions = instructions }
}

// WithResources serves the given widget registry.
func WithResources(r *resources.Registry) Option {
	return func(d *Dispatcher) { d.resources = r }
}

// WithDefaultSubject sets the subject used when a call names none.
func WithDefaultSubject(subject string) Option {
	return func(d *Dispatcher) { d.defaultSubject = subject }
}

// WithRequireSubject rejects tool calls whose metadata names no subject.
func WithRequireSubject(require bool) Option {
	return func(d *Dispatcher) { d.requireSubject = require }
}

// WithMetrics records per-method request counts.
func WithMetrics(m *instrumentation.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// NewDispatcher creates a dispatcher with the standard MCP methods
// registered.
func NewDispatcher(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		methods:        make(map[string]HandlerFunc),
		tools:          make(map[string]registeredTool),
		info:           mcp.Implementation{Name: "rsvp", Version: "dev"},
		defaultSubject: DefaultSubject,
		logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(d)
	}

	ack := func(context.Context, json.RawMessage) (any, error) { return struct{}{}, nil }

	d.Handle(MethodInitialize, d.handleInitialize)
	d.Handle(MethodInitialized, ack)
	d.Handle(MethodNotificationInitialize, ack)
	d.Handle(MethodPing, ack)
	d.Handle(MethodShutdown, ack)

	d.Handle(MethodToolsList, d.handleToolsList)
	d.Handle(MethodToolsCall, d.handleToolsCall)

	d.Handle(MethodResourcesList, d.handleResourcesList)
	d.Handle(MethodResourcesRead, d.handleResourcesRead)
	d.Handle(MethodResourceTemplatesList, func(context.Context, json.RawMessage) (any, error) {
		return map[string]any{"resourceTemplates": []any{}}, nil
	})

	d.Handle(MethodPromptsList, func(context.Context, json.RawMessage) (any, error) {
		return map[string]any{"prompts": []any{}}, nil
	})
	d.Handle(MethodPromptsGet, func(context.Context, json.RawMessage) (any, error) {
		return nil, ErrInvalidParams("prompt not found")
	})
	d.Handle(MethodCompletionComplete, func(context.Context, json.RawMessage) (any, error) {
		return map[string]any{
			"completion": map[string]any{"values": []string{}, "total": 0, "hasMore": false},
		}, nil
	})
	d.Handle(MethodLoggingSetLevel, ack)

	return d
}

// Handle registers fn for method, replacing any previous handler.
func (d *Dispatcher) Handle(method string, fn HandlerFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.methods[method] = fn
}

// AddTool registers a tool. meta is merged into the descriptor's _meta.
func (d *Dispatcher) AddTool(tool mcpserver.ServerTool, meta map[string]any) error {
	descriptor, err := toolDescriptor(tool.Tool, meta)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.tools[tool.Tool.Name]; !exists {
		d.toolOrder = append(d.toolOrder, tool.Tool.Name)
	}
	d.tools[tool.Tool.Name] = registeredTool{handler: tool.Handler, descriptor: descriptor}
	return nil
}

// ToolNames lists registered tools in registration order.
func (d *Dispatcher) ToolNames() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]string(nil), d.toolOrder...)
}

// Methods lists the method table, sorted.
func (d *Dispatcher) Methods() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	names := make([]string, 0, len(d.methods))
	for name := range d.methods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsNotification reports whether req expects no response.
func IsNotification(req *Request) bool {
	if req.HasID() {
		return false
	}
	return strings.HasPrefix(req.Method, notificationPrefix) || req.Method == MethodInitialized
}

// Dispatch runs req through the method table. It returns nil for
// notifications.
func (d *Dispatcher) Dispatch(ctx context.Context, req *Request) *Response {
	resp := d.dispatch(ctx, req)
	if IsNotification(req) {
		return nil
	}
	return resp
}

func (d *Dispatcher) dispatch(ctx context.Context, req *Request) (resp *Response) {
	id := req.responseID()

	if req.Method == "" {
		return errorResponse(id, NewError(mcp.INVALID_REQUEST, "method is required"))
	}

	d.mu.RLock()
	handler, ok := d.methods[req.Method]
	d.mu.RUnlock()

	label := req.Method
	if !ok {
		label = "unknown"
	}
	ctx, span := instrumentation.StartDispatchSpan(ctx, label)
	defer span.End()

	defer func() {
		status := instrumentation.StatusSuccess
		if resp != nil && resp.Error != nil {
			status = instrumentation.StatusError
			instrumentation.SetSpanError(span, resp.Error)
		} else {
			instrumentation.SetSpanSuccess(span)
		}
		d.metrics.RecordMCPRequest(ctx, label, status)
	}()

	if !ok {
		if strings.HasPrefix(req.Method, notificationPrefix) {
			return resultResponse(id, nil)
		}
		return errorResponse(id, NewError(mcp.METHOD_NOT_FOUND, "method not found: %s", req.Method))
	}

	result, err := d.invoke(ctx, req.Method, handler, req.Params)
	if err != nil {
		return errorResponse(id, d.toRPCError(req.Method, err))
	}
	return resultResponse(id, result)
}

// invoke runs handler, turning a panic into an internal error.
func (d *Dispatcher) invoke(ctx context.Context, method string, handler HandlerFunc, params json.RawMessage) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("Recovered from panic in method handler",
				logging.Method(method), slog.Any("panic", r), slog.String("stack", string(debug.Stack())))
			result = nil
			err = NewError(mcp.INTERNAL_ERROR, "internal error")
		}
	}()
	return handler(ctx, params)
}

func (d *Dispatcher) toRPCError(method string, err error) *Error {
	var rpcErr *Error
	if errors.As(err, &rpcErr) {
		return rpcErr
	}
	d.logger.Error("Method handler failed", logging.Method(method), logging.Err(err))
	return NewError(mcp.INTERNAL_ERROR, "internal error")
}

func decodeParams(params json.RawMessage, v any) error {
	if len(params) == 0 || string(params) == "null" {
		return nil
	}
	if err := json.Unmarshal(params, v); err != nil {
		return ErrInvalidParams("invalid params: %v", err)
	}
	return nil
}

type initializeParams struct {
	ProtocolVersion string             `json:"protocolVersion"`
	ClientInfo      mcp.Implementation `json:"clientInfo"`
}

func (d *Dispatcher) handleInitialize(_ context.Context, params json.RawMessage) (any, error) {
	var p initializeParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}

	version := p.ProtocolVersion
	if version == "" {
		version = mcp.LATEST_PROTOCOL_VERSION
	}
	if p.ClientInfo.Name != "" {
		d.logger.Info("Client initialized", slog.String("client_name", p.ClientInfo.Name),
			slog.String("client_version", p.ClientInfo.Version), slog.String("protocol_version", version))
	}

	result := map[string]any{
		"protocolVersion": version,
		"serverInfo":      d.info,
		"capabilities": map[string]any{
			"tools":       map[string]any{"listChanged": false},
			"resources":   map[string]any{"subscribe": false, "listChanged": false},
			"prompts":     map[string]any{"listChanged": false},
			"logging":     map[string]any{},
			"completions": map[string]any{},
		},
	}
	if d.instructions != "" {
		result["instructions"] = d.instructions
	}
	return result, nil
}

func (d *Dispatcher) handleToolsList(context.Context, json.RawMessage) (any, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	tools := make([]map[string]any, 0, len(d.toolOrder))
	for _, name := range d.toolOrder {
		tools = append(tools, d.tools[name].descriptor)
	}
	return map[string]any{"tools": tools}, nil
}

type callParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
	Meta      map[string]any `json:"_meta"`
}

func (d *Dispatcher) handleToolsCall(ctx context.Context, params json.RawMessage) (any, error) {
	var p callParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.Name == "" {
		return nil, ErrInvalidParams("tool name is required")
	}

	d.mu.RLock()
	tool, ok := d.tools[p.Name]
	d.mu.RUnlock()
	if !ok {
		return nil, ErrInvalidParams("unknown tool: %s", p.Name)
	}

	subject, err := ResolveSubject(p.Meta, d.defaultSubject, d.requireSubject)
	if err != nil {
		return nil, err
	}
	ctx = ContextWithSubject(ctx, subject)

	if p.Arguments == nil {
		p.Arguments = map[string]any{}
	}
	var call mcp.CallToolRequest
	call.Params.Name = p.Name
	call.Params.Arguments = p.Arguments

	result, err := tool.handler(ctx, call)
	if err != nil {
		return nil, fmt.Errorf("tool %s: %w", p.Name, err)
	}
	if result == nil {
		return nil, fmt.Errorf("tool %s returned no result", p.Name)
	}
	return result, nil
}

func (d *Dispatcher) handleResourcesList(context.Context, json.RawMessage) (any, error) {
	list := []mcp.Resource{}
	if d.resources != nil {
		list = d.resources.List()
	}
	return map[string]any{"resources": list}, nil
}

type readParams struct {
	URI string `json:"uri"`
}

func (d *Dispatcher) handleResourcesRead(_ context.Context, params json.RawMessage) (any, error) {
	var p readParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}

	contents := []mcp.TextResourceContents{}
	if d.resources != nil {
		if c, ok := d.resources.Read(p.URI); ok {
			contents = append(contents, c)
		}
	}
	return map[string]any{"contents": contents}, nil
}

// toolDescriptor renders tool as its tools/list entry with meta merged
// into _meta.
func toolDescriptor(tool mcp.Tool, meta map[string]any) (map[string]any, error) {
	if tool.Name == "" {
		return nil, fmt.Errorf("tool name is required")
	}
	raw, err := json.Marshal(tool)
	if err != nil {
		return nil, fmt.Errorf("failed to encode tool %s: %w", tool.Name, err)
	}
	var descriptor map[string]any
	if err := json.Unmarshal(raw, &descriptor); err != nil {
		return nil, fmt.Errorf("failed to decode tool %s: %w", tool.Name, err)
	}

	if len(meta) > 0 {
		merged, _ := descriptor["_meta"].(map[string]any)
		if merged == nil {
			merged = make(map[string]any, len(meta))
		}
		for k, v := range meta {
			merged[k] = v
		}
		descriptor["_meta"] = merged
	}
	return descriptor, nil
}
