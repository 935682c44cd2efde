// Package config loads the server configuration from the environment.
//
// An optional .env file is read first; variables already set in the
// process environment win over it. Pre-registered OAuth clients come from a
// YAML file named by RSVP_CLIENTS_FILE.
package config
