package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/upb/bedrock-failover-router/app"
	"github.com/upb/bedrock-failover-router/config"
	"github.com/upb/bedrock-failover-router/services/targets"
)

func newTargetsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "targets",
		Short: "Inspect target configuration",
	}

	cmd.AddCommand(newTargetsValidateCmd())
	cmd.AddCommand(newTargetsSchemaCmd())
	return cmd
}

func newTargetsValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [file]",
		Short: "Validate a target configuration and print the ladder",
		Long:  "Validates the given file (json, yaml or toml). Without a file, MODEL_CONFIG and then MODEL_CONFIG_FILE are used.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				registry *targets.Registry
				err      error
			)
			if len(args) == 1 {
				registry, err = targets.LoadFile(args[0])
			} else {
				registry, err = app.LoadTargets(config.TargetsConfig{
					Inline: os.Getenv("MODEL_CONFIG"),
					File:   firstNonEmpty(os.Getenv("MODEL_CONFIG_FILE"), os.Getenv("CONFIG_FILE_PATH")),
				})
			}
			if err != nil {
				return err
			}

			printLadder(cmd, registry)
			return nil
		},
	}
}

func newTargetsSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the JSON Schema of the target configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := json.MarshalIndent(targets.Schema(), "", "  ")
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return err
		},
	}
}

func printLadder(cmd *cobra.Command, registry *targets.Registry) {
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "MODEL\tNAME\tREGIONS\tRETRIES\tDELAY")
	for _, t := range registry.Targets() {
		fmt.Fprintf(tw, "%s\t%s\t%v\t%d\t%s\n", t.ModelID, t.Name, t.Regions, t.MaxRetries, t.RetryDelay)
	}
	_ = tw.Flush()

	fmt.Fprintf(cmd.OutOrStdout(), "\n%d models, %d regions, at most %d upstream calls per request\n",
		registry.Len(), len(registry.Regions()), registry.MaxAttempts())
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
