package main

import (
	"os"

	kingpin "github.com/alecthomas/kingpin/v2"

	"github.com/openfleet/huntmaster/config"
	"github.com/openfleet/huntmaster/constants"
	"github.com/openfleet/huntmaster/logging"
)

type CommandHandler func(command string) bool

var (
	app = kingpin.New("huntmaster",
		"A fleet hunt and flow orchestration engine.")

	config_path = app.Flag("config", "The configuration file.").
			Short('c').Envar("HUNTMASTER_CONFIG").String()

	verbose_flag = app.Flag(
		"verbose", "Enable verbose logging.").Short('v').
		Default("false").Bool()

	command_handlers []CommandHandler
)

func loadConfig() *config.Config {
	var config_obj *config.Config
	var err error

	if *config_path == "" {
		config_obj = config.GetDefaultConfig()
	} else {
		config_obj, err = config.LoadConfig(*config_path)
		kingpin.FatalIfError(err, "Unable to load config file")
	}

	if *verbose_flag {
		config_obj.Logging.Debug = true
	}

	return config_obj
}

func main() {
	app.Version(constants.VERSION)
	app.HelpFlag.Short('h')

	command := kingpin.MustParse(app.Parse(os.Args[1:]))
	for _, handler := range command_handlers {
		if handler(command) {
			return
		}
	}

	logger := logging.GetLogger(nil, logging.ToolComponent)
	logger.Error("Unknown command %v", command)
	os.Exit(1)
}
