// Package api implements the gateway's HTTP surface: session login, the
// WireGuard client routes, one-time config links, backup and restore, the
// Prometheus endpoints and the static UI fallback.
//
// Protected routes pass through auth.Authenticator.RequireAuth; /metrics is
// guarded separately by an HTTP Basic gate. Handlers return errors that
// handle maps to a JSON body of the form {"error": "..."}.
package api
