package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"preflight/internal/config"
	"preflight/internal/dispatch"
	"preflight/internal/handlers"
	"preflight/internal/logging"
	"preflight/internal/mcp"
)

// toolsCmd connects to the configured MCP servers and lists their tools
var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List tools of configured MCP servers and their usage",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()

		w := cmd.OutOrStdout()
		if err := listTools(ctx, w, cfg); err != nil {
			return err
		}
		if cfg.Store.Path == "" {
			return nil
		}
		store, err := mcp.NewStore(cfg.Store.Path)
		if err != nil {
			return err
		}
		defer store.Close()

		stats, err := store.Stats(ctx)
		if err != nil {
			return err
		}
		return printToolStats(w, stats)
	},
}

// listTools discovers the tools of every mcp handler's servers.
func listTools(ctx context.Context, w io.Writer, c *config.Config) error {
	var providers []dispatch.Provider
	for _, e := range c.HandlerEntries() {
		if e.Name != "mcp" {
			continue
		}
		servers, err := handlers.MCPServers(e)
		if err != nil {
			return err
		}
		for _, sc := range servers {
			server, err := mcp.NewServer(sc)
			if err != nil {
				logging.Get(logging.CategoryTools).Warn("Skipping server: %v", err)
				fmt.Fprintf(w, "%s: %v\n", sc.Name, err)
				continue
			}
			providers = append(providers, server)
		}
	}
	if len(providers) == 0 {
		fmt.Fprintln(w, "No MCP servers configured.")
		return nil
	}

	index := dispatch.NewIndex(ctx, providers)
	for _, p := range index.Providers() {
		if err := index.Failed(p.ID()); err != nil {
			fmt.Fprintf(w, "%s: unavailable: %v\n", p.ID(), err)
			continue
		}
		defs := index.ProviderTools(p.ID())
		fmt.Fprintf(w, "%s (%d tools)\n", p.ID(), len(defs))
		for _, d := range defs {
			fmt.Fprintf(w, "  - %s: %s\n", d.Name, d.Summary())
		}
	}
	return nil
}

func printToolStats(w io.Writer, stats []mcp.ToolStats) error {
	if len(stats) == 0 {
		return nil
	}
	fmt.Fprintln(w)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SERVER\tTOOL\tCALLS\tOK\tAVG\tLAST USED")
	for _, s := range stats {
		last := "never"
		if !s.LastUsed.IsZero() {
			last = humanize.Time(s.LastUsed)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%dms\t%s\n",
			s.ServerID, s.Name, humanize.Comma(s.UsageCount), humanize.Comma(s.SuccessCount), s.AvgLatencyMs, last)
	}
	return tw.Flush()
}
