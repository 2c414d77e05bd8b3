package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/warp/fee-engine/factory"
	"github.com/warp/fee-engine/generic"
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show processor progress, the next finalization and past distributions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			proc, dep, closeFn, err := openProcessor(cmd, clockAt(cmd))
			if err != nil {
				return err
			}
			defer closeFn()

			last, err := proc.LastPeriodExecIdx(ctx)
			if err != nil {
				return err
			}
			pv, err := proc.Preview(ctx)
			if err != nil {
				return err
			}
			ds, err := proc.Distributions(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "deployment:      %s (%s)\n", dep.ID, dep.Calendar.Name)
			fmt.Fprintf(out, "owner:           %s\n", proc.Owner())
			fmt.Fprintf(out, "current period:  %d\n", pv.CurrentPeriod)
			fmt.Fprintf(out, "last processed:  %d\n", last)
			fmt.Fprintf(out, "next call:       %s\n", pv.Status)
			if pv.Status == generic.OutcomeWithinGrace {
				fmt.Fprintf(out, "grace ends at:   %d\n", pv.GraceEndsAt)
			}
			if pv.Status == generic.OutcomeFinalized {
				printSplit(out, dep, pv.Pool, pv.Split, pv.Burn)
			}
			fmt.Fprintf(out, "distributions:   %d\n", len(ds))
			for _, d := range ds {
				fmt.Fprintf(out, "  %s  periods %d-%d  pool %s  burned=%t\n",
					d.ID, d.FromPeriod, d.Period, dep.FromBaseUnits(d.Pool), d.Burned)
			}
			return nil
		},
	}
	cmd.Flags().String("db", "", "SQLite database path (overrides config)")
	cmd.Flags().Uint64("at", 0, "Evaluate at this Unix timestamp instead of now")
	return cmd
}

func newProcessCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "process",
		Short: "Finalize the most recently elapsed period",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			proc, dep, closeFn, err := openProcessor(cmd, clockAt(cmd))
			if err != nil {
				return err
			}
			defer closeFn()

			caller, _ := cmd.Flags().GetString("caller")
			if caller == "" {
				caller = string(proc.Owner())
			}

			o, err := proc.Process(context.Background(), generic.Address(caller))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "status:          %s\n", o.Status)
			fmt.Fprintf(out, "current period:  %d\n", o.CurrentPeriod)
			fmt.Fprintf(out, "last processed:  %d\n", o.LastProcessed)
			if d := o.Distribution; d != nil {
				fmt.Fprintf(out, "distribution:    %s (periods %d-%d)\n", d.ID, d.FromPeriod, d.Period)
				printSplit(out, dep, d.Pool, d.Split, d.Burned)
			}
			return nil
		},
	}
	cmd.Flags().String("db", "", "SQLite database path (overrides config)")
	cmd.Flags().String("caller", "", "Address reported as the trigger (default: owner)")
	cmd.Flags().Uint64("at", 0, "Process as if at this Unix timestamp")
	return cmd
}

func printSplit(out io.Writer, dep *factory.Deployment, pool generic.Amount, s generic.Split, burn bool) {
	fmt.Fprintf(out, "  pool:      %s %s\n", dep.FromBaseUnits(pool), dep.Unit)
	fmt.Fprintf(out, "  wallet:    %s %s\n", dep.FromBaseUnits(s.Wallet), dep.Unit)
	fmt.Fprintf(out, "  reward:    %s %s\n", dep.FromBaseUnits(s.Reward), dep.Unit)
	fmt.Fprintf(out, "  retained:  %s %s (burn=%t)\n", dep.FromBaseUnits(s.Retained), dep.Unit, burn)
}
