package cmd

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"
	"github.com/ubiportal/ubiportal/pkg/storage"
)

var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Look up policies",
}

func parseOPID(arg string) (int, error) {
	opid, err := strconv.Atoi(arg)
	if err != nil || opid <= 0 {
		return 0, fmt.Errorf("invalid policy id %q", arg)
	}
	return opid, nil
}

var policyShowCmd = &cobra.Command{
	Use:   "show <opid>",
	Short: "Show a policy and add it to the recently viewed list",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opid, err := parseOPID(args[0])
		if err != nil {
			return err
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

		p, err := user.api.Policy(ctx, opid)
		if err != nil {
			return user.signOutOnUnauthorized(ctx, err)
		}
		if err := user.store.AddRecentPolicy(ctx, storage.PolicyRef{OPID: p.OPID, PolicyNo: p.PolicyNo, PolicyRef: p.PolicyRef}); err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "Policy\t%s\n", p.PolicyNo)
		fmt.Fprintf(w, "Reference\t%s\n", p.PolicyRef)
		fmt.Fprintf(w, "Inception\t%s\n", p.InceptionDate)
		fmt.Fprintf(w, "Business unit\t%s (%d)\n", p.BusinessUnit, p.BusinessUnitID)
		fmt.Fprintf(w, "Overall\t%s\t%s\n", p.Score.Overall, p.Score.OverallBadge)
		w.Flush()
		return nil
	},
}

var policyReferralsCmd = &cobra.Command{
	Use:   "referrals <opid>",
	Short: "Show telematics referrals for the policy's business unit",
	Long: `Shows the telematics referrals of the policy's own business unit. The unit
is saved as the current business unit, so later reports use it too.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opid, err := parseOPID(args[0])
		if err != nil {
			return err
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

		p, err := user.api.Policy(ctx, opid)
		if err != nil {
			return user.signOutOnUnauthorized(ctx, err)
		}
		if err := user.units.ApplyPolicyScope(ctx, p.BusinessUnitID, p.BusinessUnit); err != nil {
			return err
		}
		scope := user.units.Current(ctx, user.session)
		if !scope.Valid() {
			fmt.Println("No business unit selected.")
			return nil
		}
		rows, err := user.api.Report(ctx, "telematics-referrals", scope.ID)
		if err != nil {
			return user.signOutOnUnauthorized(ctx, err)
		}
		fmt.Printf("Policy %s, business unit %s: %d referrals\n", p.PolicyNo, scope.Name, gjson.GetBytes(rows, "#").Int())
		return printJSON(rows)
	},
}

func init() {
	rootCmd.AddCommand(policyCmd)
	policyCmd.AddCommand(policyShowCmd)
	policyCmd.AddCommand(policyReferralsCmd)
}
