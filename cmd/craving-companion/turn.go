package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/BTreeMap/CravingCompanion/internal/models"
)

var turnCmd = &cobra.Command{
	Use:   "turn <user input>",
	Short: "Run a single conversation turn and print the response as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		sessionID, _ := flags.GetString("session")
		stage, _ := flags.GetString("stage")
		mode, _ := flags.GetString("mode")

		req := models.TurnRequest{
			SessionID: sessionID,
			Stage:     models.StageKey(stage),
			UserInput: args[0],
		}
		if flags.Changed("intensity") || mode != "" {
			req.Metadata = &models.TurnMetadata{Mode: models.InteractionMode(mode)}
			if flags.Changed("intensity") {
				v, _ := flags.GetFloat64("intensity")
				req.Metadata.CravingIntensity = &v
			}
		}
		if err := req.Validate(); err != nil {
			return err
		}

		e, err := newEngine(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		resp, trace, err := e.orch.TurnWithTrace(cmd.Context(), req)
		if err != nil {
			return err
		}

		verbose, _ := flags.GetBool("trace")
		var out interface{} = resp
		if verbose {
			out = struct {
				models.TurnResponse
				Provider string `json:"provider"`
				Model    string `json:"model"`
				Outcome  string `json:"outcome"`
			}{resp, trace.ProviderKey, trace.Model, trace.Outcome.String()}
		}
		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	},
}

func init() {
	turnCmd.Flags().String("session", "cli", "Session id sent with the turn")
	turnCmd.Flags().String("stage", string(models.StageEntry), "Stage to run")
	turnCmd.Flags().Float64("intensity", 0, "Craving intensity from 0 to 10")
	turnCmd.Flags().String("mode", "", "Interaction mode: voice or text")
	turnCmd.Flags().Bool("trace", false, "Include the provider decision in the output")
	rootCmd.AddCommand(turnCmd)
}
