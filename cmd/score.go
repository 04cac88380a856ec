package cmd

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/ubiportal/ubiportal/pkg/scoring"
)

var scoreCmd = &cobra.Command{
	Use:   "score <opid>",
	Short: "Show a policy's headline scores and score history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opid, err := strconv.Atoi(args[0])
		if err != nil || opid <= 0 {
			return fmt.Errorf("invalid policy id %q", args[0])
		}
		from, _ := cmd.Flags().GetString("from")
		to, _ := cmd.Flags().GetString("to")
		window, _ := cmd.Flags().GetInt("window")
		history, _ := cmd.Flags().GetBool("history")

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

		policy, err := user.api.Policy(ctx, opid)
		if err != nil {
			return user.signOutOnUnauthorized(ctx, err)
		}
		days, err := user.api.Scores(ctx, opid, from, to)
		if err != nil {
			return user.signOutOnUnauthorized(ctx, err)
		}

		card, err := scoring.BuildHeadlineCard(policy.Score, days, window)
		if err != nil {
			return err
		}
		fmt.Printf("Policy %s (Ref: %s) %s\n\n", policy.PolicyNo, policy.PolicyRef, card.UsedDrivingDaysLabel)
		printHeadline(card)
		fmt.Printf("\n%s\n", scoring.BadgeSentence(card.Overall.Badge))

		if !history {
			return nil
		}
		h, err := scoring.BuildHistory(days)
		if err != nil {
			return err
		}
		fmt.Println()
		printHistory(h)
		return nil
	},
}

func printHeadline(card scoring.HeadlineCard) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "METRIC\tSCORE\tBADGE\tRISK\t")
	for _, row := range []struct {
		name string
		m    scoring.HeadlineMetric
	}{
		{"Overall", card.Overall},
		{"Speed", card.Speed},
		{"Braking", card.Brake},
		{"Night", card.Night},
	} {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t\n", row.name, scoring.FormatScore(row.m.Score), row.m.Badge, row.m.Risk.Label())
	}
	w.Flush()
}

func printHistory(h scoring.History) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprint(w, "DAY\tMILES\tRISK\t")
	for _, c := range scoring.HistoryCategories {
		fmt.Fprintf(w, "%s\t", c.Label)
	}
	fmt.Fprintln(w)

	for _, row := range h.Rows {
		miles := scoring.NotAvailable
		if row.DistanceMiles != nil {
			miles = strconv.FormatFloat(*row.DistanceMiles, 'f', 1, 64)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t", row.Day, miles, row.Overall.Label())
		for _, c := range row.Categories {
			if c.Hidden {
				fmt.Fprint(w, "-\t")
				continue
			}
			fmt.Fprintf(w, "%s/%s/%s/%s\t", c.Window(90), c.Window(30), c.Window(14), c.Window(7))
		}
		fmt.Fprintln(w)
	}
	w.Flush()
}

func init() {
	rootCmd.AddCommand(scoreCmd)
	scoreCmd.Flags().String("from", time.Now().AddDate(0, 0, -7).Format("2006-01-02"), "First day of scores")
	scoreCmd.Flags().String("to", time.Now().Format("2006-01-02"), "Last day of scores")
	scoreCmd.Flags().Int("window", scoring.DefaultWindowDays, "Driving days window used for the headline scores")
	scoreCmd.Flags().Bool("history", false, "Also print the daily score history")
}
