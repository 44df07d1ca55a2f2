package api

import (
	"context"
	"net/http"

	"github.com/homehub/hubctl/internal/command"
	"github.com/homehub/hubctl/internal/config"
	"github.com/homehub/hubctl/internal/telemetry"
	"github.com/homehub/hubctl/internal/transport"
)

// OrchestratorPort is the orchestrator surface the API drives.
type OrchestratorPort interface {
	Submit(ctx context.Context, name, action string) (*command.Ticket, error)
	Snapshot(ctx context.Context) (command.Snapshot, error)
	Recover(ctx context.Context) error
}

// TelemetryPort streams display events.
type TelemetryPort interface {
	Subscribe(ctx context.Context, w http.ResponseWriter, r *http.Request) error
}

// HubStatePort reports the hub link.
type HubStatePort interface {
	State() transport.State
}

// Deps are the server's collaborators. Catalog and Hub may be nil.
type Deps struct {
	Orchestrator OrchestratorPort
	Telemetry    TelemetryPort
	Catalog      *config.Catalog
	Hub          HubStatePort
}

var (
	_ OrchestratorPort = (*command.Orchestrator)(nil)
	_ TelemetryPort    = (*telemetry.Hub)(nil)
	_ command.Notifier = (*telemetry.Hub)(nil)
)
