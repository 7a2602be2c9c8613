// Package auth provides bearer-token authentication for the streaming
// endpoint.
//
// The token source refreshes proactively before expiry and reactively via
// Invalidate. Refreshes are single-flight: concurrent callers share one HTTP
// request and all receive its result. A refresh rejected by the backend
// signals session expiry exactly once.
package auth
