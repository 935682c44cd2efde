// Package resources serves the UI widgets that render tool results inside the
// conversation. Each widget is a self-contained HTML document addressed as
// ui://widget/<name>.html and served with the text/html+skybridge MIME type.
//
// Tools point at their widget through the openai/outputTemplate entry of the
// descriptor _meta; see OutputTemplateMeta.
package resources
