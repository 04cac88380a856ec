package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"
	"github.com/ubiportal/ubiportal/internal/utils"
	"github.com/ubiportal/ubiportal/pkg/polling"
	"github.com/ubiportal/ubiportal/pkg/portalapi"
)

func printJSON(raw []byte) error {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return err
	}
	buf.WriteByte('\n')
	_, err := buf.WriteTo(os.Stdout)
	return err
}

var reportCmd = &cobra.Command{
	Use:   "report <name>",
	Short: "Fetch a report for the current business unit",
	Long: `Fetches a report scoped to the current business unit. Run "report list" to
see the available reports.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		if _, ok := portalapi.Reports[name]; !ok {
			return fmt.Errorf("unknown report %q", name)
		}
		ctx := context.Background()
		db, done, err := openDB(false)
		if err != nil {
			return err
		}
		defer done()
		user, err := loadUser(ctx, cmd, db, true)
		if err != nil {
			return err
		}

		scope := user.units.Current(ctx, user.session)
		if !scope.Valid() {
			fmt.Println("No business unit selected, nothing to show.")
			return nil
		}
		rows, err := user.api.Report(ctx, name, scope.ID)
		if err != nil {
			return user.signOutOnUnauthorized(ctx, err)
		}
		fmt.Fprintf(os.Stderr, "%s for %s (%d): %d rows\n", name, scope.Name, scope.ID, gjson.GetBytes(rows, "#").Int())
		return printJSON(rows)
	},
}

var reportListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the available reports",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		for _, n := range portalapi.ReportNames() {
			fmt.Println(n)
		}
	},
}

var reportSummaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Count the rows of every report for the current business unit",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		concurrency, _ := cmd.Flags().GetInt("concurrency")
		ctx := context.Background()
		db, done, err := openDB(false)
		if err != nil {
			return err
		}
		defer done()
		user, err := loadUser(ctx, cmd, db, true)
		if err != nil {
			return err
		}

		scope := user.units.Current(ctx, user.session)
		if !scope.Valid() {
			fmt.Println("No business unit selected, nothing to show.")
			return nil
		}
		res, err := polling.PollReports(ctx, polling.Config{
			Fetcher:     user.api,
			UnitID:      scope.ID,
			Concurrency: concurrency,
			Log:         utils.Log,
			OnReportDone: func(c polling.ReportCount) {
				utils.Log.Debugf("%s: %d rows", c.Name, c.Rows)
			},
		})
		if err != nil {
			return user.signOutOnUnauthorized(ctx, err)
		}

		fmt.Printf("Business unit %s (%d)\n\n", scope.Name, scope.ID)
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "REPORT\tROWS\t")
		for _, c := range res.Counts {
			if c.Error != "" {
				fmt.Fprintf(w, "%s\terror: %s\t\n", c.Name, c.Error)
				continue
			}
			fmt.Fprintf(w, "%s\t%d\t\n", c.Name, c.Rows)
		}
		w.Flush()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(reportCmd)
	reportCmd.AddCommand(reportListCmd)
	reportCmd.AddCommand(reportSummaryCmd)
	reportSummaryCmd.Flags().IntP("concurrency", "c", 5, "Reports fetched at the same time")
}
