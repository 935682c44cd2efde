package calendar

import (
	"context"
	"fmt"
	"html/template"
	"net/http"
	"strings"

	"github.com/teemow/rsvp/internal/google"
	"github.com/teemow/rsvp/internal/instrumentation"
	"github.com/teemow/rsvp/internal/logging"
)

// CallbackPath is where Google redirects after the consent screen.
const CallbackPath = "/oauth/google/callback"

var consentPage = template.Must(template.New("consent").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}}</title>
<style>
body{font-family:system-ui,sans-serif;max-width:32rem;margin:4rem auto;padding:0 1rem;color:#1f2328}
h1{font-size:1.4rem}
p{line-height:1.5}
</style>
</head>
<body>
<h1>{{.Title}}</h1>
<p>{{.Message}}</p>
</body>
</html>
`))

type consentPageData struct {
	Title   string
	Message string
}

func renderConsentPage(w http.ResponseWriter, status int, data consentPageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Frame-Options", "DENY")
	w.Header().Set("Content-Security-Policy", "default-src 'none'; style-src 'unsafe-inline'")
	w.WriteHeader(status)
	_ = consentPage.Execute(w, data)
}

// ServeCallback completes the consent flow started by a ConsentURL link.
func (a *GoogleAdapter) ServeCallback(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	if reason := query.Get("error"); reason != "" {
		a.logger.Info("Calendar consent was not granted", "reason", reason)
		renderConsentPage(w, http.StatusBadRequest, consentPageData{
			Title:   "Calendar not connected",
			Message: "Google did not grant access (" + reason + "). Return to the conversation and try again.",
		})
		return
	}

	subject, err := a.state.Verify(query.Get("state"))
	if err != nil {
		a.logger.Warn("Rejected consent callback", logging.Err(err))
		renderConsentPage(w, http.StatusBadRequest, consentPageData{
			Title:   "Link expired",
			Message: "This connection link is invalid or has expired. Ask for a new link in the conversation.",
		})
		return
	}

	code := query.Get("code")
	if code == "" {
		renderConsentPage(w, http.StatusBadRequest, consentPageData{
			Title:   "Calendar not connected",
			Message: "The response from Google did not include an authorization code.",
		})
		return
	}

	email, err := a.CompleteConsent(r.Context(), subject, code)
	if err != nil {
		a.logger.Error("Failed to complete calendar consent", logging.SubjectHash(subject), logging.Err(err))
		renderConsentPage(w, http.StatusBadGateway, consentPageData{
			Title:   "Calendar not connected",
			Message: "Connecting your calendar failed. Please try again in a moment.",
		})
		return
	}

	message := "Your calendar is connected. You can close this window and return to the conversation."
	if email != "" {
		message = fmt.Sprintf("%s is connected. You can close this window and return to the conversation.", email)
	}
	renderConsentPage(w, http.StatusOK, consentPageData{Title: "Calendar connected", Message: message})
}

// CompleteConsent exchanges code for tokens and stores them for subject.
// It returns the connected account's email when Google reports one.
func (a *GoogleAdapter) CompleteConsent(ctx context.Context, subject, code string) (string, error) {
	var record google.AuthorizationRecord
	err := a.observe(ctx, instrumentation.OperationExchange, subject, func(ctx context.Context) error {
		token, err := a.oauthConfig.Exchange(ctx, code)
		if err != nil {
			return fmt.Errorf("failed to exchange auth code: %w", err)
		}
		record.Token = token
		return nil
	})
	if err != nil {
		return "", err
	}
	if record.Token.RefreshToken == "" {
		a.logger.Warn("Google returned no refresh token; consent will lapse with the access token",
			logging.SubjectHash(subject))
	}

	record.Scopes = a.oauthConfig.Scopes
	if granted, ok := record.Token.Extra("scope").(string); ok && granted != "" {
		record.Scopes = strings.Fields(granted)
	}

	client := google.NewHTTPClient(ctx, a.oauthConfig.TokenSource(ctx, record.Token))
	email, err := a.fetchEmail(ctx, subject, client)
	if err != nil {
		// The email is informational; the grant is still usable.
		a.logger.Warn("Failed to read connected account email", logging.SubjectHash(subject), logging.Err(err))
	}
	record.Email = email
	record.UpdatedAt = a.now()

	if err := a.tokens.Save(ctx, subject, &record); err != nil {
		return "", fmt.Errorf("store calendar authorization: %w", err)
	}
	a.clients.invalidate(subject)

	a.logger.Info("Calendar connected", logging.SubjectHash(subject), logging.UserHash(email))
	return email, nil
}
