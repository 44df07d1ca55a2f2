// Package command orchestrates hub commands.
//
// An Orchestrator owns the pending-command queue, the in-flight command and the
// display state. Producers call Submit from any goroutine; admission is decided
// on the orchestrator loop and never waits on the network. Accepted commands
// run strictly in order, one at a time, on a single executor goroutine.
//
// Commands fall into three categories. Exclusive commands (activity changes)
// are mutually exclusive with each other and hold back live status updates
// while they run. Signal commands (audio control) and Device commands pass
// through the queue without blocking admission.
package command
