package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/BTreeMap/CravingCompanion/internal/models"
	"github.com/BTreeMap/CravingCompanion/internal/prompt"
	"github.com/BTreeMap/CravingCompanion/internal/script"
)

var scriptCmd = &cobra.Command{
	Use:   "script",
	Short: "Inspect the stage script document",
}

var scriptCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Load and validate the stage script document",
	RunE: func(cmd *cobra.Command, args []string) error {
		doc, err := script.NewStore(cfg.ScriptPath).Load(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "script %s is valid (version %s)\n", cfg.ScriptPath, doc.Version)
		for _, k := range doc.StageKeys() {
			sc, _ := doc.Stage(k)
			fmt.Fprintf(out, "  %-12s %d coach messages, provider=%s model=%s\n",
				k, len(sc.CoachMessages), orDash(sc.LLMProvider), orDash(sc.LLMModel))
		}
		return nil
	},
}

var scriptPromptCmd = &cobra.Command{
	Use:   "prompt <stage>",
	Short: "Print the system prompt built for a stage",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		stage, err := models.ParseStage(args[0])
		if err != nil {
			return err
		}
		doc, err := script.NewStore(cfg.ScriptPath).Load(cmd.Context())
		if err != nil {
			return err
		}
		sc, ok := doc.Stage(stage)
		if !ok {
			return fmt.Errorf("%w: %s", models.ErrUnknownStage, stage)
		}
		fmt.Fprintln(cmd.OutOrStdout(), prompt.BuildSystemPrompt(sc))
		return nil
	},
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func init() {
	scriptCmd.AddCommand(scriptCheckCmd, scriptPromptCmd)
	rootCmd.AddCommand(scriptCmd)
}
