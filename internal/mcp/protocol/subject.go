package protocol

import (
	"context"
	"strings"
)

// Call metadata keys that carry the caller's identity, in lookup order.
const (
	MetaKeyOpenAISubject = "openai/subject"
	MetaKeySubject       = "subject"
)

// DefaultSubject is used when a call names no subject and strict subject
// mode is off.
const DefaultSubject = "default"

type subjectKey struct{}

// ContextWithSubject stores the resolved subject for tool handlers.
func ContextWithSubject(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, subjectKey{}, subject)
}

// SubjectFromContext returns the subject a tool call runs for.
func SubjectFromContext(ctx context.Context) (string, bool) {
	subject, ok := ctx.Value(subjectKey{}).(string)
	return subject, ok && subject != ""
}

// ResolveSubject picks the subject from call metadata. Without one it falls
// back to fallback, unless require is set, which makes a missing subject an
// invalid params error. The metadata is trusted as given; it is not checked
// against the caller's access token.
func ResolveSubject(meta map[string]any, fallback string, require bool) (string, error) {
	for _, key := range []string{MetaKeyOpenAISubject, MetaKeySubject} {
		if s, ok := meta[key].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s), nil
		}
	}
	if require {
		return "", ErrInvalidParams("call metadata must name a subject")
	}
	if fallback == "" {
		fallback = DefaultSubject
	}
	return fallback, nil
}
