package main

import (
	"fmt"
	"os"
	"time"

	kingpin "github.com/alecthomas/kingpin/v2"
	"github.com/olekukonko/tablewriter"

	"github.com/openfleet/huntmaster/api"
)

var (
	hunts_cmd = app.Command("hunts", "Manage hunts.")

	hunts_list_cmd = hunts_cmd.Command("list", "List all hunts.")

	hunts_stop_cmd     = hunts_cmd.Command("stop", "Stop a running hunt.")
	hunts_stop_hunt_id = hunts_stop_cmd.Arg(
		"hunt_id", "The hunt to stop.").Required().String()
)

func doHuntsList() {
	config_obj := loadConfig()
	server, err := api.NewServer(config_obj)
	kingpin.FatalIfError(err, "Unable to open datastore")

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{
		"HuntId", "State", "Scheduled", "Crashes", "Created"})

	for _, hunt := range server.ListHunts() {
		table.Append([]string{
			hunt.HuntId,
			string(hunt.State),
			fmt.Sprintf("%v", hunt.Stats.TotalClientsScheduled),
			fmt.Sprintf("%v", hunt.Stats.TotalCrashes),
			time.Unix(0, hunt.CreateTime).UTC().Format(time.RFC3339),
		})
	}
	table.Render()
}

func doHuntsStop() {
	config_obj := loadConfig()
	server, err := api.NewServer(config_obj)
	kingpin.FatalIfError(err, "Unable to open datastore")

	err = server.StopHunt(*hunts_stop_hunt_id, "Stopped by operator")
	kingpin.FatalIfError(err, "Unable to stop hunt")
}

func init() {
	command_handlers = append(command_handlers,
		func(command string) bool {
			switch command {
			case hunts_list_cmd.FullCommand():
				doHuntsList()
			case hunts_stop_cmd.FullCommand():
				doHuntsStop()
			default:
				return false
			}
			return true
		})
}
