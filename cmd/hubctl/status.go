package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/homehub/hubctl/internal/config"
	"github.com/homehub/hubctl/internal/hubclient"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the activity the hub is running",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signalContext(cmd.Context())
		defer stop()

		rt, err := newApp(globalFlags, false)
		if err != nil {
			return err
		}
		defer rt.Close()

		id, err := rt.client.CurrentActivity(ctx)
		if err != nil {
			return describe("status", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Current activity: %s\n", activityLabel(&rt.cfg.Catalog, id))
		return nil
	},
}

// activityLabel renders an activity id for humans.
func activityLabel(c *config.Catalog, id string) string {
	if id == hubclient.PowerOffActivity {
		return "OFF"
	}
	if name, ok := c.ActivityName(id); ok {
		return name
	}
	return "Activity " + id
}
