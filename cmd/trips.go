package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"github.com/ubiportal/ubiportal/pkg/geo"
	"github.com/ubiportal/ubiportal/pkg/trips"
)

var tripsCmd = &cobra.Command{
	Use:   "trips",
	Short: "Trip search ranges, CSV export checks and distances",
}

var tripsDatesCmd = &cobra.Command{
	Use:   "dates <opid>",
	Short: "Show the trip search range for a policy",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opid, err := parseOPID(args[0])
		if err != nil {
			return err
		}
		ctx := context.Background()
		db, done, err := openDB(false)
		if err != nil {
			return err
		}
		defer done()
		user, err := loadUser(ctx, cmd, db, false)
		if err != nil {
			return err
		}

		r := trips.Dates(ctx, user.store, opid, time.Now())
		fmt.Printf("from %s to %s", r.From.Format("2006-01-02"), r.To.Format("2006-01-02"))
		if r.DaysInPast > 0 {
			fmt.Printf(" (last %d days)", r.DaysInPast)
		}
		fmt.Println()
		return nil
	},
}

var tripsSetCmd = &cobra.Command{
	Use:   "set <opid>",
	Short: "Remember a trip search range for a policy",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opid, err := parseOPID(args[0])
		if err != nil {
			return err
		}
		from, _ := cmd.Flags().GetString("from")
		to, _ := cmd.Flags().GetString("to")
		for _, v := range []string{from, to} {
			if _, ok := trips.ParseDate(v); v != "" && !ok {
				return fmt.Errorf("invalid date %q", v)
			}
		}

		ctx := context.Background()
		db, done, err := openDB(true)
		if err != nil {
			return err
		}
		defer done()
		user, err := loadUser(ctx, cmd, db, false)
		if err != nil {
			return err
		}

		if from != "" {
			if err := user.store.SetTripDate(ctx, "from", from); err != nil {
				return err
			}
		}
		if to != "" {
			if err := user.store.SetTripDate(ctx, "to", to); err != nil {
				return err
			}
		}
		return user.store.SetLastOPID(ctx, opid)
	},
}

var tripsSearchCmd = &cobra.Command{
	Use:   "search <opid>",
	Short: "List a policy's trips in a date range",
	Long: `List a policy's trips. Without --from and --to the remembered range for
the policy is used, or the last seven days. Dates given on the command line
are remembered for the policy.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opid, err := parseOPID(args[0])
		if err != nil {
			return err
		}
		from, _ := cmd.Flags().GetString("from")
		to, _ := cmd.Flags().GetString("to")
		dayRange, _ := cmd.Flags().GetInt("range")

		ctx := context.Background()
		db, done, err := openDB(from != "" || to != "")
		if err != nil {
			return err
		}
		defer done()
		user, err := loadUser(ctx, cmd, db, false)
		if err != nil {
			return err
		}

		if from != "" || to != "" {
			for key, v := range map[string]string{"from": from, "to": to} {
				if v == "" {
					continue
				}
				if err := user.store.SetTripDate(ctx, key, v); err != nil {
					return err
				}
			}
			if err := user.store.SetLastOPID(ctx, opid); err != nil {
				return err
			}
		}
		if from == "" || to == "" {
			r := trips.Dates(ctx, user.store, opid, time.Now())
			if from == "" {
				from = r.From.Format("2006-01-02")
			}
			if to == "" {
				to = r.To.Format("2006-01-02")
			}
		}

		found, ok, err := trips.Search(ctx, user.api, opid, from, to, dayRange)
		if err != nil {
			return user.signOutOnUnauthorized(ctx, err)
		}
		if !ok {
			return fmt.Errorf("select a start and end date no more than %d days apart", dayRange)
		}
		fmt.Printf("Records found: %d (%s to %s)\n", len(found), from, to)
		for _, t := range found {
			fmt.Printf("%s\t%s\t%s\t%s\n", t.StartDTMUTC, t.LocalTimes, t.Distance, t.Duration)
		}
		return nil
	},
}

var tripsRouteCmd = &cobra.Command{
	Use:   "route <opid> <sdtm>",
	Short: "Show a trip's waypoints and path length",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		opid, err := parseOPID(args[0])
		if err != nil {
			return err
		}
		unit, _ := cmd.Flags().GetString("unit")
		api, err := newAPIClient(cmd)
		if err != nil {
			return err
		}
		ctx := context.Background()
		route, err := trips.FetchRoute(ctx, api, opid, args[1], unit)
		if err != nil {
			return (&portalUser{api: api}).signOutOnUnauthorized(ctx, err)
		}
		raw, err := json.Marshal(route)
		if err != nil {
			return err
		}
		return printJSON(raw)
	},
}

var tripsCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Check that a date range can be exported as CSV",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		from, _ := cmd.Flags().GetString("from")
		to, _ := cmd.Flags().GetString("to")
		dayRange, _ := cmd.Flags().GetInt("range")
		if !trips.CheckDateRange(from, to, dayRange) {
			return fmt.Errorf("select a start and end date no more than %d days apart", dayRange)
		}
		fmt.Println("ok")
		return nil
	},
}

var tripsDistanceCmd = &cobra.Command{
	Use:     "distance <lat1> <lon1> <lat2> <lon2>",
	Short:   "Distance between two coordinates",
	Example: "  ubiportal trips distance --unit km -- 51.5074 -0.1278 48.8566 2.3522",
	Args:    cobra.ExactArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		var nums [4]float64
		for i, a := range args {
			v, err := strconv.ParseFloat(a, 64)
			if err != nil {
				return fmt.Errorf("invalid coordinate %q", a)
			}
			nums[i] = v
		}
		unit, _ := cmd.Flags().GetString("unit")
		fixed, _ := cmd.Flags().GetInt("fixed")

		d, err := geo.Distance(geo.Coord{Lat: nums[0], Lon: nums[1]}, geo.Coord{Lat: nums[2], Lon: nums[3]}, unit, fixed)
		if err != nil {
			return err
		}
		fmt.Printf("%s %s\n", strconv.FormatFloat(d, 'f', -1, 64), unit)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tripsCmd)
	tripsCmd.AddCommand(tripsDatesCmd)
	tripsCmd.AddCommand(tripsSetCmd)
	tripsCmd.AddCommand(tripsSearchCmd)
	tripsCmd.AddCommand(tripsRouteCmd)
	tripsCmd.AddCommand(tripsCheckCmd)
	tripsCmd.AddCommand(tripsDistanceCmd)

	tripsSetCmd.Flags().String("from", "", "Start date (YYYY-MM-DD)")
	tripsSetCmd.Flags().String("to", "", "End date (YYYY-MM-DD)")
	tripsSearchCmd.Flags().String("from", "", "Start date (YYYY-MM-DD)")
	tripsSearchCmd.Flags().String("to", "", "End date (YYYY-MM-DD)")
	tripsSearchCmd.Flags().Int("range", trips.DefaultDayRange, "Maximum number of days")
	tripsRouteCmd.Flags().String("unit", "mi", "Unit: m, km, mi, ft, yd, cm, mm, in, sm")
	tripsCheckCmd.Flags().String("from", "", "Start date (YYYY-MM-DD)")
	tripsCheckCmd.Flags().String("to", "", "End date (YYYY-MM-DD)")
	tripsCheckCmd.Flags().Int("range", trips.DefaultDayRange, "Maximum number of days")
	tripsDistanceCmd.Flags().String("unit", "mi", "Unit: m, km, mi, ft, yd, cm, mm, in, sm")
	tripsDistanceCmd.Flags().Int("fixed", 2, "Decimal places")
}
