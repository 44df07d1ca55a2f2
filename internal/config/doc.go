// Package config loads the hub connection settings, the command catalog and
// the timing baseline.
//
// Values come from LoadBaseline, then an optional YAML file, then HUBCTL_*
// environment variables, and are validated last. The catalog maps operator
// aliases (tv, vol+, samsung) to hub identifiers; it is read once at startup
// and handed to the orchestrator explicitly.
package config
