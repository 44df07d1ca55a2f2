// Package telemetry streams display updates to HTTP clients as server-sent
// events.
//
// Hub implements command.Notifier: every status, control, queue and live
// update becomes an event with a monotonic id. Recent events are kept in a
// ring buffer so a reconnecting client can resume with Last-Event-ID.
package telemetry
