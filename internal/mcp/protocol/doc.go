// Package protocol terminates the MCP JSON-RPC endpoint.
//
// A Dispatcher owns a method table mapping JSON-RPC method names to handlers.
// The lifecycle, tools, resources, prompts, completion and logging families
// are registered by NewDispatcher; further methods are added with Handle and
// tools with AddTool. Two transports feed the dispatcher: HTTPHandler serves
// single POST requests behind bearer authentication, and StdioServer reads
// newline-delimited requests from a local pipe.
//
// Tool calls act for the subject named in params._meta ("openai/subject",
// then "subject"), or the configured default subject. The subject is not
// bound to the bearer token: any holder of a valid token can name any
// subject, so the endpoint must only be reachable by a host that sets the
// subject itself. WithRequireSubject removes the default fallback but does
// not change this.
//
// Every response echoes the request id. Handler errors and panics become
// JSON-RPC errors; nothing a handler does can leave a request unanswered.
package protocol
