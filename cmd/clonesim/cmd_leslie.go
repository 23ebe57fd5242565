package main

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nvandessel/clonesim/internal/config"
	"github.com/nvandessel/clonesim/internal/leslie"
)

func newLeslieCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "leslie",
		Short: "Build a projection matrix from life-history rates",
		Long: `Build a stage-structured projection matrix and print it with its
dominant eigenvalue (daily growth rate) and stable stage distribution.

Example:
  clonesim leslie --instar-days 2,2 --surv-juv .9 --surv-adult .9,.8 --repro 3,2`,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			instarDays, _ := cmd.Flags().GetIntSlice("instar-days")
			survJuv, _ := cmd.Flags().GetFloat64("surv-juv")
			survAdult, _ := cmd.Flags().GetFloat64Slice("surv-adult")
			repro, _ := cmd.Flags().GetFloat64Slice("repro")

			m, err := leslie.BuildProjection(instarDays, survJuv, survAdult, repro)
			if err != nil {
				return err
			}
			lambda, err := leslie.DominantEigenvalue(m)
			if err != nil {
				return err
			}
			dist, err := leslie.StableDistribution(m)
			if err != nil {
				return err
			}

			rows := config.RowsFromDense(m)
			out := cmd.OutOrStdout()
			if jsonOut {
				return (&cliEnv{stdout: out}).printJSON(map[string]any{
					"stages":              len(rows),
					"matrix":              rows,
					"lambda":              lambda,
					"stable_distribution": dist,
				})
			}

			fmt.Fprintf(out, "Projection matrix (%d stages):\n", len(rows))
			for _, row := range rows {
				fmt.Fprintf(out, "  %s\n", formatFloats(row, " "))
			}
			fmt.Fprintf(out, "Lambda: %.6g\n", lambda)
			fmt.Fprintf(out, "Stable distribution: %s\n", formatFloats(dist, " "))
			return nil
		},
	}

	cmd.Flags().IntSlice("instar-days", nil, "Days spent in each juvenile instar")
	cmd.Flags().Float64("surv-juv", 0, "Daily juvenile survival")
	cmd.Flags().Float64Slice("surv-adult", nil, "Daily survival of each adult stage")
	cmd.Flags().Float64Slice("repro", nil, "Daily reproduction of each adult stage")
	cmd.MarkFlagRequired("instar-days")
	cmd.MarkFlagRequired("surv-juv")
	cmd.MarkFlagRequired("surv-adult")
	cmd.MarkFlagRequired("repro")

	return cmd
}

func newLogitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logit <p>...",
		Short: "Print log(p/(1-p)) for each value",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return transformValues(cmd, args, leslie.Logit)
		},
	}
}

func newInvLogitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inv-logit <a>...",
		Short: "Print 1/(1+exp(-a)) for each value",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return transformValues(cmd, args, leslie.InvLogit)
		},
	}
}

func transformValues(cmd *cobra.Command, args []string, fn func([]float64) []float64) error {
	jsonOut, _ := cmd.Flags().GetBool("json")

	in := make([]float64, len(args))
	for i, a := range args {
		v, err := strconv.ParseFloat(a, 64)
		if err != nil {
			return fmt.Errorf("argument %d: %w", i+1, err)
		}
		in[i] = v
	}
	values := fn(in)

	out := cmd.OutOrStdout()
	if jsonOut {
		// Infinities are not valid JSON numbers and are written as strings.
		vals := make([]any, len(values))
		for i, v := range values {
			if math.IsInf(v, 0) || math.IsNaN(v) {
				vals[i] = strconv.FormatFloat(v, 'g', -1, 64)
			} else {
				vals[i] = v
			}
		}
		return (&cliEnv{stdout: out}).printJSON(map[string]any{"values": vals})
	}
	for _, v := range values {
		fmt.Fprintln(out, strconv.FormatFloat(v, 'g', -1, 64))
	}
	return nil
}

func formatFloats(v []float64, sep string) string {
	parts := make([]string, len(v))
	for i, x := range v {
		parts[i] = strconv.FormatFloat(x, 'g', 6, 64)
	}
	return strings.Join(parts, sep)
}
