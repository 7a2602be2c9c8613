// Package transport implements the AUI streaming transport: a
// reconnect-capable duplex WebSocket channel that delivers incrementally
// generated UI patches from the backend agent.
//
// The transport:
//   - Owns at most one logical connection at a time
//   - Resolves duplicate-initialization races via connection-handle identity
//   - Retries unexpected closures with exponential backoff (1s base, 5 max)
//   - Recovers immediately when the host application returns to foreground
//   - Intercepts protocol sentinel frames that end the logical stream
//
// WebSocket, timers, and visibility are injected capabilities so the state
// machine is testable with deterministic fakes.
package transport
