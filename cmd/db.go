package cmd

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/ubiportal/ubiportal/internal/utils"
)

// dbCmd represents the db command
var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Interact with the ubiportal database",
}

// shellCmd represents the shell command
var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Start an interactive shell to the database",
	RunE: func(cmd *cobra.Command, args []string) error {
		dbPath, err := utils.GetAbsDBPath(viper.GetString("db.path"))
		if err != nil {
			return err
		}
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return fmt.Errorf("database file not found: %s", dbPath)
		}

		// Check if sqlite3 is in PATH
		sqlitePath, err := exec.LookPath("sqlite3")
		if err != nil {
			return fmt.Errorf("sqlite3 command not found in your PATH. Please install it to use the db shell")
		}

		fmt.Println("--> Database schema:")
		schemaCmd := exec.Command(sqlitePath, dbPath, ".schema")
		schemaCmd.Stdout = os.Stdout
		schemaCmd.Stderr = os.Stderr
		if err := schemaCmd.Run(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: couldn't retrieve schema: %v\n", err)
		}
		fmt.Println("\n--> Starting interactive shell... (Ctrl+D to exit)")

		c := exec.Command(sqlitePath, dbPath)
		c.Stdin = os.Stdin
		c.Stdout = os.Stdout
		c.Stderr = os.Stderr
		return c.Run()
	},
}

// itemsCmd prints the stored preferences.
var itemsCmd = &cobra.Command{
	Use:   "items",
	Short: "Print stored preferences, optionally for one user",
	RunE: func(cmd *cobra.Command, args []string) error {
		owner, _ := cmd.Flags().GetString("owner")
		db, done, err := openDB(false)
		if err != nil {
			return err
		}
		defer done()

		items, err := db.ListItems(context.Background(), owner)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			fmt.Println("No stored preferences.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "USER\tKEY\tVALUE\tUPDATED\t")
		for _, it := range items {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t\n", it.Owner, it.Key, it.Value, it.UpdatedAt.Format("2006-01-02 15:04"))
		}
		w.Flush()
		return nil
	},
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every stored preference of a user",
	RunE: func(cmd *cobra.Command, args []string) error {
		owner, _ := cmd.Flags().GetString("owner")
		if owner == "" {
			return fmt.Errorf("--owner is required")
		}
		db, done, err := openDB(true)
		if err != nil {
			return err
		}
		defer done()

		if err := db.Clear(context.Background(), owner); err != nil {
			return err
		}
		utils.Log.Infof("Cleared preferences of %s", owner)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(dbCmd)
	dbCmd.AddCommand(shellCmd)
	dbCmd.AddCommand(itemsCmd)
	dbCmd.AddCommand(clearCmd)
	itemsCmd.Flags().String("owner", "", "Only show this user's preferences")
	clearCmd.Flags().String("owner", "", "User whose preferences are deleted")
}
