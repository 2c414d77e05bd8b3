package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/warp/fee-engine/deployments"
	"github.com/warp/fee-engine/generic"
)

func newClockCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clock [timestamp]",
		Short: "Map a Unix timestamp (default: now) onto the calendar",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ts := generic.Now(generic.SystemClock{})
			if len(args) == 1 {
				v, err := strconv.ParseUint(args[0], 10, 64)
				if err != nil {
					return fmt.Errorf("invalid timestamp %q: %w", args[0], err)
				}
				ts = generic.Timestamp(v)
			}

			cal, err := calendarFor(cmd)
			if err != nil {
				return err
			}

			idx := cal.PeriodIdx(ts)
			start, err := cal.PeriodStart(idx)
			if err != nil {
				return err
			}
			cycle, err := cal.Cycle(ts)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "calendar:      %s\n", cal.Name)
			fmt.Fprintf(out, "timestamp:     %d (%s)\n", ts, ts.Time().Format(time.RFC3339))
			fmt.Fprintf(out, "period:        %d\n", idx)
			fmt.Fprintf(out, "period start:  %d\n", start)
			fmt.Fprintf(out, "elapsed:       %ds\n", cal.ElapsedInPeriod(ts))
			fmt.Fprintf(out, "cycle:         %d\n", cycle)

			if since, _ := cmd.Flags().GetUint64("since"); since != 0 {
				hours, err := generic.HoursSince(generic.Timestamp(since), ts)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "hours since:   %d\n", hours)
				fmt.Fprintf(out, "rate:          %d\n", generic.RatePerTimeUnits(hours, idx))
			}
			return nil
		},
	}
	cmd.Flags().String("calendar", "", "Calendar preset (weekly, fixed, no_cycle); defaults to the configured deployment")
	cmd.Flags().Uint64("since", 0, "Also report whole hours elapsed since this timestamp")
	return cmd
}

func calendarFor(cmd *cobra.Command) (generic.PeriodCalendar, error) {
	if name, _ := cmd.Flags().GetString("calendar"); name != "" {
		cal, ok := deployments.Calendar(name)
		if !ok {
			return generic.PeriodCalendar{}, fmt.Errorf("unknown calendar %q", name)
		}
		return cal, nil
	}
	_, dep, err := loadDeployment(cmd)
	if err != nil {
		return generic.PeriodCalendar{}, err
	}
	return dep.Calendar, nil
}
