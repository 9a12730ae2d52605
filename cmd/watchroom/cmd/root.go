package cmd

import (
	"context"
	"fmt"
	"os"
	ossignal "os/signal"

	"github.com/spf13/cobra"

	"github.com/tomaslejdung/watchroom/internal/app"
	"github.com/tomaslejdung/watchroom/internal/logging"
	"github.com/tomaslejdung/watchroom/pkg/session"
	"github.com/tomaslejdung/watchroom/pkg/settings"
)

var (
	flagServer   string
	flagName     string
	flagNoCamera bool
	flagTURN     string
	flagTURNUser string
	flagTURNPass string
	flagRelay    bool
	flagBitrate  int
	flagVerbose  bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "watchroom",
	Short: "Watch media together over direct peer connections",
	Long: `Watchroom hosts and joins shared viewing rooms: the host streams a local
file, a screen, or points everyone at an externally-hosted video, and all
participants stay in sync through host-authoritative playback broadcasts.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagServer, "server", "", "room relay base URL")
	rootCmd.PersistentFlags().StringVar(&flagName, "name", "", "display name")
	rootCmd.PersistentFlags().BoolVar(&flagNoCamera, "no-camera", false, "join without a camera source")
	rootCmd.PersistentFlags().StringVar(&flagTURN, "turn", "", "TURN server URL")
	rootCmd.PersistentFlags().StringVar(&flagTURNUser, "turn-user", "", "TURN username")
	rootCmd.PersistentFlags().StringVar(&flagTURNPass, "turn-pass", "", "TURN password")
	rootCmd.PersistentFlags().BoolVar(&flagRelay, "relay", false, "force relayed connections through TURN")
	rootCmd.PersistentFlags().IntVar(&flagBitrate, "bitrate", 0, "outbound video bitrate hint in kbit/s (0 = saved setting)")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "debug logging")
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// signalContext returns a context cancelled on interrupt.
func signalContext() (context.Context, context.CancelFunc) {
	return ossignal.NotifyContext(context.Background(), os.Interrupt)
}

// buildOptions merges persisted settings with command-line overrides.
func buildOptions(roomCode string) (app.Options, error) {
	prefs, err := settings.Load()
	if err != nil {
		return app.Options{}, fmt.Errorf("load settings: %w", err)
	}

	server := prefs.ServerURL
	if flagServer != "" {
		server = flagServer
	}
	name := prefs.DisplayName
	if flagName != "" {
		name = flagName
	}
	if name == "" {
		return app.Options{}, fmt.Errorf("no display name: pass --name or set it in the config file")
	}

	ice := session.ICEConfig{
		TURNServer: prefs.TURNServer,
		TURNUser:   prefs.TURNUser,
		TURNPass:   prefs.TURNPass,
		ForceRelay: prefs.ForceRelay,
	}
	if flagTURN != "" {
		ice.TURNServer = flagTURN
		ice.TURNUser = flagTURNUser
		ice.TURNPass = flagTURNPass
	}
	if flagRelay {
		ice.ForceRelay = true
	}

	bitrate := prefs.BitrateKbps
	if flagBitrate > 0 {
		bitrate = flagBitrate
	}

	level := "info"
	if flagVerbose {
		level = "debug"
	}
	log := logging.New(logging.Config{Level: level, Pretty: true})

	return app.Options{
		ServerURL:   server,
		User:        name,
		RoomCode:    roomCode,
		NoCamera:    flagNoCamera,
		BitrateKbps: bitrate,
		ICE:         ice,
		Log:         log,
	}, nil
}
