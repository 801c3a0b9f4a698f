package main

import (
	"context"
	"os"
	"os/signal"
	"sync"

	kingpin "github.com/alecthomas/kingpin/v2"

	"github.com/openfleet/huntmaster/api"
	"github.com/openfleet/huntmaster/logging"
)

var (
	frontend_cmd = app.Command(
		"frontend", "Run the orchestration frontend.")
)

func doFrontend() {
	config_obj := loadConfig()
	logger := logging.GetLogger(config_obj, logging.FrontendComponent)

	server, err := api.NewServer(config_obj)
	kingpin.FatalIfError(err, "Unable to start server")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	wg := &sync.WaitGroup{}
	server.Start(ctx, wg)

	logger.Info("Frontend running - press Ctrl-C to exit.")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	<-quit

	logger.Info("<red>Shutting down</> the frontend.")
	cancel()
	wg.Wait()
}

func init() {
	command_handlers = append(command_handlers,
		func(command string) bool {
			if command == frontend_cmd.FullCommand() {
				doFrontend()
				return true
			}
			return false
		})
}
