package command

import (
	"context"

	"github.com/homehub/hubctl/internal/audit"
	"github.com/homehub/hubctl/internal/hubclient"
)

// HubPort is the slice of the hub client the orchestrator drives.
// *hubclient.Client satisfies it.
type HubPort interface {
	StartActivity(ctx context.Context, activityID string) (hubclient.Result, error)
	SendDeviceCommand(ctx context.Context, deviceID, command string, pressRelease bool) (hubclient.Result, error)
	CurrentActivity(ctx context.Context) (string, error)
}

// Notifier receives display updates. Calls are made from the orchestrator
// loop and must not block or call back into the orchestrator.
type Notifier interface {
	// Status shows text in color (a #rrggbb string).
	Status(text, color string)
	// Controls enables or disables controls that would start an Exclusive
	// command.
	Controls(enabled bool)
	// QueueDepth reports the number of admitted, unfinished commands.
	QueueDepth(n int)
	// Live reports the hub's current activity. id is "-1" when the hub is
	// off; name may be empty for an activity missing from the catalog.
	Live(id, name string)
}

// AuditLogger records executed commands. *audit.Logger satisfies it.
type AuditLogger interface {
	Record(audit.Entry)
}

// OrchestratorPort is what the API needs from the orchestrator.
type OrchestratorPort interface {
	Submit(ctx context.Context, name, action string) (*Ticket, error)
	Snapshot(ctx context.Context) (Snapshot, error)
	Recover(ctx context.Context) error
}

var (
	_ HubPort          = (*hubclient.Client)(nil)
	_ AuditLogger      = (*audit.Logger)(nil)
	_ OrchestratorPort = (*Orchestrator)(nil)
)

type nopNotifier struct{}

func (nopNotifier) Status(string, string) {}
func (nopNotifier) Controls(bool)         {}
func (nopNotifier) QueueDepth(int)        {}
func (nopNotifier) Live(string, string)   {}
