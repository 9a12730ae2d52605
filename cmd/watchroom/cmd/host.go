package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tomaslejdung/watchroom/internal/app"
	"github.com/tomaslejdung/watchroom/pkg/playback"
	"github.com/tomaslejdung/watchroom/pkg/signal"
)

var hostCmd = &cobra.Command{
	Use:   "host",
	Short: "Create a room and control what everyone watches",
	Long: `Create a room and become its host. The room code printed on startup is
what others pass to "watchroom join".

Interactive commands:
  load <path>      stream a local media file (VP8/IVF, with optional .ogg audio)
  external <url>   point everyone at an externally-hosted video
  share            switch to screen sharing
  play / pause     control playback for the whole room
  stop             clear the active media
  say <text>       send a chat message
  peers            list connected peers
  leave            announce departure and exit`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runHost()
	},
}

func init() {
	rootCmd.AddCommand(hostCmd)
}

func runHost() error {
	ctx, cancel := signalContext()
	defer cancel()

	opts, err := buildOptions("")
	if err != nil {
		return err
	}

	eng, err := app.Connect(ctx, opts)
	if err != nil {
		return err
	}

	eng.SetEventHandler(printEvent)
	host := eng.RunHost(ctx)

	fmt.Printf("Room created. Share this code: %s\n", eng.Room.Code)
	fmt.Println(`Type "help" for commands.`)

	hostLoop(ctx, eng, host)

	leaveCtx, leaveCancel := context.WithTimeout(context.Background(), playback.DepartureGrace*2)
	defer leaveCancel()
	host.Leave(leaveCtx)
	eng.Close(leaveCtx)
	return nil
}

func hostLoop(ctx context.Context, eng *app.Engine, host *playback.Host) {
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		verb, rest, _ := strings.Cut(line, " ")
		rest = strings.TrimSpace(rest)

		switch verb {
		case "load":
			if rest == "" {
				fmt.Println("usage: load <path>")
				continue
			}
			if _, err := eng.Media.StartFile(ctx, rest); err != nil {
				fmt.Println("load failed:", err)
			}
		case "external":
			if rest == "" {
				fmt.Println("usage: external <url>")
				continue
			}
			eng.Media.StartExternal(rest)
		case "share":
			if _, err := eng.Media.StartScreenShare(); err != nil {
				fmt.Println("screen share failed:", err)
			}
		case "play":
			eng.Media.Play()
			host.Play()
		case "pause":
			eng.Media.Pause()
			host.Pause()
		case "stop":
			eng.Media.Stop()
		case "say":
			if rest != "" {
				eng.SendChat(rest)
			}
		case "peers":
			for _, p := range eng.Sessions.Peers() {
				fmt.Printf("  %s (%s)\n", p, eng.Sessions.SessionState(p))
			}
		case "help":
			fmt.Println("commands: load, external, share, play, pause, stop, say, peers, leave")
		case "leave", "quit", "exit":
			return
		default:
			fmt.Println("unknown command:", verb)
		}

		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

func printEvent(env signal.Envelope) {
	switch env.Type {
	case signal.KindChat:
		fmt.Printf("[%s] %s\n", env.Sender, env.Content)
	case signal.KindUserJoined:
		fmt.Printf("* %s joined\n", env.Sender)
	case signal.KindUserLeft:
		fmt.Printf("* %s left\n", env.Sender)
	case signal.KindParticipants:
		fmt.Printf("* participants: %s\n", strings.Join(env.Participants, ", "))
	}
}
