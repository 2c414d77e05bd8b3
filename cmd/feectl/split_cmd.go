package main

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/warp/fee-engine/generic"
)

func newSplitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "split <tokens>",
		Short: "Show how the fee schedule splits a pool given in whole tokens",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			whole, err := decimal.NewFromString(args[0])
			if err != nil {
				return fmt.Errorf("invalid amount %q: %w", args[0], err)
			}
			_, dep, err := loadDeployment(cmd)
			if err != nil {
				return err
			}

			scaled := dep.ToBaseUnits(whole)
			pool := generic.NewAmount(scaled.Value.Floor(), scaled.Unit)
			split, err := dep.Config.Schedule.Split(pool)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "pool:      %s %s\n", dep.FromBaseUnits(pool), dep.Unit)
			fmt.Fprintf(out, "wallet:    %s %s\n", dep.FromBaseUnits(split.Wallet), dep.Unit)
			fmt.Fprintf(out, "reward:    %s %s\n", dep.FromBaseUnits(split.Reward), dep.Unit)
			fmt.Fprintf(out, "retained:  %s %s\n", dep.FromBaseUnits(split.Retained), dep.Unit)
			return nil
		},
	}
}
