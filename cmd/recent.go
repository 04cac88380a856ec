package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/ubiportal/ubiportal/internal/utils"
)

var recentCmd = &cobra.Command{
	Use:   "recent",
	Short: "List recently viewed policies (master users only)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
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
		if !user.session.User.MasterUser {
			utils.Log.Info("Recently viewed policies are only kept for master users")
			return nil
		}

		recent, err := user.store.RecentPolicies(ctx)
		if err != nil {
			return err
		}
		if len(recent) == 0 {
			fmt.Println("No recently viewed policies.")
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "OPID\tPOLICY\tREF\t")
		for _, p := range recent {
			fmt.Fprintf(w, "%d\t%s\t%s\t\n", p.OPID, p.PolicyNo, p.PolicyRef)
		}
		w.Flush()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(recentCmd)
}
