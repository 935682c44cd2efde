// Package calendar is the boundary between the invitation tools and the
// user's calendar.
//
// Adapter is the capability set the tools depend on. GoogleAdapter
// implements it on the Google Calendar API, one authorized service per
// subject, and also serves the consent callback that connects a subject's
// calendar:
//
//	adapter, err := calendar.NewGoogleAdapter(oauthConfig, tokens, stateSecret)
//	if err != nil {
//	    return err
//	}
//	invites, err := adapter.ListPendingInvites(ctx, subject, time.Now(), time.Now().AddDate(0, 0, 14))
package calendar
