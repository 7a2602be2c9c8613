// Package endpoint normalizes the endpoint forms accepted by the streaming
// client into one canonical WebSocket address.
//
// Callers have historically addressed streams four different ways:
//   - the canonical ws path (/api/aui/ws/<type>)
//   - the legacy stream path (/api/aui/stream/<type>)
//   - the legacy demo stream path (/api/demo/stream/<type>)
//   - a bare stream-type token (<type>)
//
// Any form may carry a query string, whose values are coerced into a typed
// parameter bag.
package endpoint
