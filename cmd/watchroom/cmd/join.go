package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/tomaslejdung/watchroom/internal/app"
	"github.com/tomaslejdung/watchroom/pkg/playback"
)

var joinCmd = &cobra.Command{
	Use:   "join <room-code>",
	Short: "Join an existing room",
	Long: `Join a room by its shareable code and follow whatever the host plays.
Chat with "say <text>", exit with "leave" or Ctrl-C.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runJoin(args[0])
	},
}

func init() {
	rootCmd.AddCommand(joinCmd)
}

func runJoin(code string) error {
	ctx, cancel := signalContext()
	defer cancel()

	opts, err := buildOptions(strings.ToUpper(strings.TrimSpace(code)))
	if err != nil {
		return err
	}

	eng, err := app.Connect(ctx, opts)
	if err != nil {
		return err
	}

	eng.SetEventHandler(printEvent)
	viewer := eng.RunViewer(ctx, playback.NopPlayer{})
	viewer.SetChangeHandler(printPlayback)

	fmt.Printf("Joined %s (host: %s)\n", eng.Room.Code, eng.Room.HostID)

	go joinLoop(ctx, cancel, eng)
	<-ctx.Done()

	closeCtx, closeCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer closeCancel()
	eng.Close(closeCtx)
	return nil
}

func joinLoop(ctx context.Context, cancel context.CancelFunc, eng *app.Engine) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		verb, rest, _ := strings.Cut(line, " ")

		switch verb {
		case "":
		case "say":
			if rest != "" {
				eng.SendChat(strings.TrimSpace(rest))
			}
		case "peers":
			for _, p := range eng.Sessions.Peers() {
				fmt.Printf("  %s (%s)\n", p, eng.Sessions.SessionState(p))
			}
		case "leave", "quit", "exit":
			cancel()
			return
		default:
			fmt.Println("commands: say, peers, leave")
		}

		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

func printPlayback(st playback.State) {
	switch st.Kind {
	case playback.MediaNone:
		fmt.Println("* no media")
	case playback.MediaScreen:
		fmt.Println("* host is sharing their screen")
	default:
		verb := "paused"
		if st.Playing {
			verb = "playing"
		}
		fmt.Printf("* %s %s at %.1fs (%s)\n", verb, st.Descriptor, st.HostTime, st.Kind)
	}
}
