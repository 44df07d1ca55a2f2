package main

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/homehub/hubctl/internal/config"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured activities, audio commands and devices",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(globalFlags.ConfigPath)
		if err != nil {
			return err
		}
		return writeCatalog(cmd.OutOrStdout(), &cfg.Catalog)
	},
}

// writeCatalog prints the catalog as three tab-aligned sections.
func writeCatalog(out io.Writer, c *config.Catalog) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)

	fmt.Fprintln(tw, "ACTIVITIES")
	for _, k := range c.ActivityKeys() {
		a := c.Activities[k]
		fmt.Fprintf(tw, "  %s\t%s\t%s\n", k, a.Name, a.ID)
	}
	if aliases := aliasLines(c); len(aliases) > 0 {
		fmt.Fprintln(tw, "ALIASES")
		for _, line := range aliases {
			fmt.Fprintln(tw, line)
		}
	}

	fmt.Fprintln(tw, "AUDIO")
	if d, ok := c.Audio(); ok {
		fmt.Fprintf(tw, "  %s\t%s\t%s\n", config.AudioOn, "PowerOn", d.Name)
		fmt.Fprintf(tw, "  %s\t%s\t%s\n", config.AudioOff, "PowerOff", d.Name)
		for _, k := range c.AudioKeys() {
			fmt.Fprintf(tw, "  %s\t%s\t%s\n", k, c.AudioCommands[k], d.Name)
		}
	}

	fmt.Fprintln(tw, "DEVICES")
	for _, k := range c.DeviceKeys() {
		d := c.Devices[k]
		fmt.Fprintf(tw, "  %s\t%s\t%s\n", k, d.Name, strings.Join(d.Commands, " "))
	}
	return tw.Flush()
}

// aliasLines lists the short activity aliases that resolve to a configured
// activity.
func aliasLines(c *config.Catalog) []string {
	names := make([]string, 0, len(c.ActivityAliases))
	for alias := range c.ActivityAliases {
		names = append(names, alias)
	}
	sort.Strings(names)

	var lines []string
	for _, alias := range names {
		if _, direct := c.Activities[alias]; direct {
			continue
		}
		if a, ok := c.Activity(alias); ok {
			lines = append(lines, fmt.Sprintf("  %s\t%s\t%s", alias, a.Name, a.ID))
		}
	}
	return lines
}
