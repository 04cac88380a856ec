package cmd

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var buCmd = &cobra.Command{
	Use:     "bu",
	Aliases: []string{"units"},
	Short:   "List and select business units",
}

var buListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the business units you can see",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
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

		current := user.units.Current(ctx, user.session)
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, " \tID\tNAME\t")
		for _, u := range user.units.State().BusinessUnits {
			mark := " "
			if u.UnitID == current.ID {
				mark = "*"
			}
			fmt.Fprintf(w, "%s\t%d\t%s\t\n", mark, u.UnitID, u.Name)
		}
		w.Flush()
		return nil
	},
}

var buCurrentCmd = &cobra.Command{
	Use:   "current",
	Short: "Show the business unit reports are scoped to",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
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

		c := user.units.Current(ctx, user.session)
		if !c.Valid() {
			if c.Name != "" {
				fmt.Printf("No business unit selected (home unit %q is not in your unit list)\n", c.Name)
			} else {
				fmt.Println("No business unit selected")
			}
			return nil
		}
		fmt.Printf("%d\t%s\n", c.ID, c.Name)
		return nil
	},
}

var buSetCmd = &cobra.Command{
	Use:   "set <unit id>",
	Short: "Select the business unit for reports",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.Atoi(args[0])
		if err != nil || id <= 0 {
			return fmt.Errorf("invalid business unit id %q", args[0])
		}
		ctx := context.Background()
		db, done, err := openDB(true)
		if err != nil {
			return err
		}
		defer done()
		user, err := loadUser(ctx, cmd, db, true)
		if err != nil {
			return err
		}

		for _, u := range user.units.State().BusinessUnits {
			if u.UnitID == id {
				if err := user.units.SetBusinessUnitState(ctx, u.UnitID, u.Name); err != nil {
					return err
				}
				fmt.Printf("Business unit set to %s (%d)\n", u.Name, u.UnitID)
				return nil
			}
		}
		return fmt.Errorf("business unit %d is not in your unit list", id)
	},
}

func init() {
	rootCmd.AddCommand(buCmd)
	buCmd.AddCommand(buListCmd)
	buCmd.AddCommand(buCurrentCmd)
	buCmd.AddCommand(buSetCmd)
}
