// Package logging provides structured logging utilities for the rsvp server.
//
// All logging goes through log/slog. This package configures the handler once
// at startup and centralizes attribute naming so log lines from the OAuth
// layer, the protocol dispatcher and the calendar adapter can be correlated.
//
// # Usage Patterns
//
//	logger := logging.WithOperation(slog.Default(), "oauth.token")
//	logger.Info("token issued", logging.Client(clientID), logging.Status(logging.StatusSuccess))
//
// Subjects and emails are hashed before they are logged:
//
//	logger.Info("calendar connected", logging.SubjectHash(subject), logging.UserHash(email))
//
// Tokens and client secrets are never logged; use SanitizeToken when the
// presence of a credential matters for debugging.
package logging
