// Package google holds the Google OAuth2 configuration used for end-user
// calendar consent and the per-subject token storage behind it.
//
// A TokenStore keeps one AuthorizationRecord per subject. The memory store is
// meant for single-process deployments; the Redis store lets several
// replicas share consent state. Token sources built with NewTokenSource write
// refreshed tokens back to the store.
package google
