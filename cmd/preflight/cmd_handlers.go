package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"preflight/internal/config"
	"preflight/internal/handlers"
)

// handlersCmd lists the built-in handlers
var handlersCmd = &cobra.Command{
	Use:   "handlers",
	Short: "List available handlers and the configured pipeline",
	RunE: func(cmd *cobra.Command, args []string) error {
		return listHandlers(cmd.OutOrStdout(), handlers.Builtin(), cfg)
	},
}

func listHandlers(w io.Writer, reg *handlers.Registry, c *config.Config) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tCAPABILITY\tDESCRIPTION")
	for _, r := range reg.Registrations() {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", r.Name, r.Capability, r.Description)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(w)
	if c.Controller.Model == "" {
		fmt.Fprintln(w, "Pipeline: disabled (no controller model configured)")
		return nil
	}
	fmt.Fprintf(w, "Pipeline (model %s, %d reflections):\n", c.Controller.Model, c.Controller.Reflections)
	for i, e := range c.HandlerEntries() {
		status := ""
		switch {
		case e.Invalid != nil:
			status = fmt.Sprintf(" (invalid: %v)", e.Invalid)
		case e.Name == "":
			status = " (missing name)"
		default:
			if _, ok := reg.Lookup(e.Name); !ok {
				status = " (unknown)"
			}
		}
		fmt.Fprintf(w, "  %d. %s%s\n", i+1, e, status)
	}
	return nil
}
