// Package transport owns the single duplex websocket connection to the hub.
//
// A Session connects (idempotently), writes frames, and exposes the inbound
// frames of the current connection as a channel that is closed when the
// connection ends. Sessions never retry on their own; callers layer retry.Do
// around Connect and around each exchange.
package transport
