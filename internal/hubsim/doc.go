// Package hubsim emulates a hub's websocket engine endpoint.
//
// The emulator answers startactivity, holdAction and getCurrentActivity,
// announces activity switches with state digest notifications after a
// configurable latency, and can misbehave on purpose: stay silent, push
// uncorrelated frames, drop connections, or refuse the first handshakes.
package hubsim
