package cmd

import (
	"github.com/spf13/cobra"

	"github.com/tomaslejdung/watchroom/internal/logging"
	"github.com/tomaslejdung/watchroom/internal/server"
)

var flagServeConfig string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the room relay server",
	Long: `Serve runs the relay that watchroom clients connect through: the room
lifecycle REST API and the per-room websocket fan-out, backed by Redis.
Configuration comes from the config file and WATCHROOM_* environment
variables.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&flagServeConfig, "config", "", "path to server config file")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	level := "info"
	if flagVerbose {
		level = "debug"
	}
	log := logging.New(logging.Config{Level: level, Pretty: true})

	cfg, err := server.LoadConfig(flagServeConfig)
	if err != nil {
		return err
	}

	srv, err := server.New(cmd.Context(), cfg, log)
	if err != nil {
		return err
	}
	defer srv.Close()

	return srv.Run()
}
