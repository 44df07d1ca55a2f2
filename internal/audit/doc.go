// Package audit records one structured line per executed hub command.
//
// Records go through the process logger under the "audit" name, so they land
// in the same console and rotated file sinks as everything else. Nothing is
// kept in memory or replayed.
package audit
