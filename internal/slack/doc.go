// Package slack implements the thin Web API surface the bot depends on:
// credential verification, message posting, channel lookup, slash command
// responses, and the socket-mode bootstrap call. It also provides the v0
// request signature verifier used by the HTTP intake.
package slack
