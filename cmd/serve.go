package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/ubiportal/ubiportal/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the portal JSON API",
	RunE: func(cmd *cobra.Command, args []string) error {
		listenAddr, _ := cmd.Flags().GetString("listen")
		origins, _ := cmd.Flags().GetStringSlice("origin")

		db, done, err := openDB(false)
		if err != nil {
			return err
		}
		defer done()
		api, err := newAPIClient(cmd)
		if err != nil {
			return err
		}

		srv := server.New(db, api, viper.GetString("server.user"), viper.GetString("server.password"))
		srv.AllowedOrigins = origins
		return srv.Start(listenAddr)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("listen", ":8080", "HTTP listen address")
	serveCmd.Flags().StringSlice("origin", nil, "Allowed CORS origin (repeatable, default any)")
}
