package main

import (
	"context"
	"flag"
	"os"

	"github.com/tomaslejdung/watchroom/internal/logging"
	"github.com/tomaslejdung/watchroom/internal/server"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	logLevel := flag.String("log-level", "info", "log level")
	pretty := flag.Bool("pretty", false, "human-readable log output")
	flag.Parse()

	log := logging.New(logging.Config{Level: *logLevel, Pretty: *pretty})

	cfg, err := server.LoadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("loading configuration failed")
	}

	srv, err := server.New(context.Background(), cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("starting server failed")
	}
	defer srv.Close()

	if err := srv.Run(); err != nil {
		log.Error().Err(err).Msg("server exited")
		os.Exit(1)
	}
}
