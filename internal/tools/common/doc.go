// Package common provides helpers shared by the MCP tool packages: subject
// lookup and the instrumented handler wrapper.
package common
