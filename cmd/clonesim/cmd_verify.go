package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nvandessel/clonesim/internal/archive"
)

func newVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify <archive>",
		Short: "Verify run archive integrity",
		Long: `Verify a run archive by checking the SHA-256 checksum of its payload
against the header.

Example:
  clonesim verify run.csar`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filePath := args[0]
			jsonOut, _ := cmd.Flags().GetBool("json")
			out := cmd.OutOrStdout()

			hdr, err := archive.ReadHeader(filePath)
			if err == nil {
				err = archive.Verify(filePath)
			}
			if err != nil {
				if jsonOut {
					(&cliEnv{stdout: out}).printJSON(map[string]any{
						"file":  filePath,
						"valid": false,
						"error": err.Error(),
					})
				} else {
					fmt.Fprintf(out, "FAILED: %v\n  File: %s\n", err, filePath)
				}
				return fmt.Errorf("archive verification failed: %w", err)
			}

			if jsonOut {
				return (&cliEnv{stdout: out}).printJSON(map[string]any{
					"file":       filePath,
					"valid":      true,
					"run_id":     hdr.RunID,
					"rows":       hdr.Rows,
					"replicates": hdr.Replicates,
					"checksum":   hdr.Checksum,
				})
			}
			fmt.Fprintf(out, "OK: checksum verified\n  File: %s\n  Run: %s (%d rows)\n", filePath, hdr.RunID, hdr.Rows)
			return nil
		},
	}
}
