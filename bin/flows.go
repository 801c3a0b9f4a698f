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
	flows_cmd = app.Command("flows", "Manage flows.")

	flows_list_cmd       = flows_cmd.Command("list", "List flows for a client.")
	flows_list_client_id = flows_list_cmd.Arg(
		"client_id", "The client to list.").Required().String()

	flows_cancel_cmd     = flows_cmd.Command("cancel", "Cancel a flow.")
	flows_cancel_flow_id = flows_cancel_cmd.Arg(
		"flow_id", "The flow to cancel.").Required().String()
)

func doFlowsList() {
	config_obj := loadConfig()
	server, err := api.NewServer(config_obj)
	kingpin.FatalIfError(err, "Unable to open datastore")

	flow_ids, err := server.FlowMgr.ListFlows(*flows_list_client_id)
	kingpin.FatalIfError(err, "Unable to list flows")

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{
		"FlowId", "Action", "State", "Rows", "Created"})

	for _, flow_id := range flow_ids {
		flow, err := server.GetFlow(flow_id)
		if err != nil {
			continue
		}

		table.Append([]string{
			flow.FlowId,
			flow.Action.Name,
			string(flow.State),
			fmt.Sprintf("%v", flow.TotalResultRows),
			time.Unix(0, flow.CreateTime).UTC().Format(time.RFC3339),
		})
	}
	table.Render()
}

func doFlowsCancel() {
	config_obj := loadConfig()
	server, err := api.NewServer(config_obj)
	kingpin.FatalIfError(err, "Unable to open datastore")

	err = server.CancelFlow(*flows_cancel_flow_id, "Cancelled by operator")
	kingpin.FatalIfError(err, "Unable to cancel flow")
}

func init() {
	command_handlers = append(command_handlers,
		func(command string) bool {
			switch command {
			case flows_list_cmd.FullCommand():
				doFlowsList()
			case flows_cancel_cmd.FullCommand():
				doFlowsCancel()
			default:
				return false
			}
			return true
		})
}
