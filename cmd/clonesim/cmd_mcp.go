package main

import (
	"github.com/spf13/cobra"

	"github.com/nvandessel/clonesim/internal/mcp"
)

func newMCPServerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp-server",
		Short: "Serve the clonesim tools over MCP on stdio",
		Long: `Start an MCP (Model Context Protocol) server on stdin/stdout.

Tools: clonesim_leslie, clonesim_stable_distribution, clonesim_logit,
clonesim_inv_logit, clonesim_simulate, clonesim_runs and clonesim_export.
Simulations are capped at mcp.max_replicates replicates and every tool is
rate limited. Runs saved by clonesim_simulate go to the run store unless
--memory is set; clonesim_export writes only inside mcp.archive_dir.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := loadEnv(cmd)
			if err != nil {
				return err
			}
			memory, _ := cmd.Flags().GetBool("memory")
			dbPath, _ := cmd.Flags().GetString("db")

			cfg := &mcp.Config{
				Name:          "clonesim",
				Version:       version,
				MaxReplicates: env.settings.MCP.MaxReplicates,
				RatePerSecond: env.settings.MCP.RatePerSecond,
				Burst:         env.settings.MCP.Burst,
				Threads:       env.settings.Run.Threads,
				Logger:        env.logger,
			}
			if !memory {
				s, err := env.openStore(dbPath)
				if err != nil {
					return err
				}
				cfg.Store = s
			}
			if dir, err := env.settings.LogDir(); err == nil {
				cfg.AuditDir = dir
			}
			if dir, err := env.settings.ArchiveDir(); err == nil {
				cfg.ArchiveDir = dir
			} else {
				env.logger.Warn("exports disabled", "error", err)
			}
			events := env.eventLogger()
			defer events.Close()
			if events != nil {
				cfg.Events = events
			}

			server := mcp.NewServer(cfg)
			defer server.Close()

			env.logger.Info("mcp server starting", "version", version)
			return server.Run(cmd.Context())
		},
	}

	cmd.Flags().Bool("memory", false, "Keep runs in memory instead of the run store")
	cmd.Flags().String("db", "", "SQLite database (default from settings)")
	return cmd
}
