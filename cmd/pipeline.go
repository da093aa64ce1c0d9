package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"pipetrack/internal/cloud"
)

var getPipelinesIncludeDag bool

// userMessage returns the text to print for failures the user resolves
// themselves (bad input, bad key, unknown pipeline). Anything else is a
// real error and propagates to cobra.
func userMessage(err error) (string, bool) {
	var notFound *cloud.NotFoundError
	switch {
	case errors.Is(err, cloud.ErrMissingKey),
		errors.Is(err, cloud.ErrInvalidAPIKey),
		errors.Is(err, cloud.ErrNoPipelineID),
		errors.Is(err, cloud.ErrNoStatus):
		return err.Error(), true
	case errors.As(err, &notFound):
		return notFound.Error(), true
	}
	return "", false
}

func newWritePipelineCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "write-pipeline <pipeline-id> <status> [log]",
		Short: "Create or update a pipeline run record",
		Long: `Creates a pipeline run record in the cloud tracking service, or
overwrites the record's fields when the pipeline id already exists.
Status is free-form ("started", "finished", "error", ...); an optional
log captures execution output, typically for failed runs.`,
		Args: cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := cloud.Pipeline{ID: args[0], Status: args[1]}
			if len(args) == 3 {
				p.Log = args[2]
			}

			client, err := cloud.NewClient()
			if err == nil {
				_, err = client.WritePipeline(context.Background(), p)
			}
			if err != nil {
				if msg, ok := userMessage(err); ok {
					fmt.Fprintln(cmd.OutOrStdout(), msg)
					return nil
				}
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Pipeline %s was written\n", p.ID)
			return nil
		},
	}
}

func newGetPipelinesCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "get-pipelines [pipeline-id]",
		Short: "Read pipeline run records",
		Long: `Prints pipeline run records as JSON. Without an id all records are
returned; with an id, only the matching record. The special id "latest"
resolves to the most recently written record.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := ""
			if len(args) == 1 {
				id = args[0]
			}

			var pipelines []cloud.Pipeline
			client, err := cloud.NewClient()
			if err == nil {
				pipelines, err = client.GetPipelines(context.Background(), id, getPipelinesIncludeDag)
			}
			if err != nil {
				if msg, ok := userMessage(err); ok {
					// The message is JSON-encoded so scripted callers can
					// always parse this command's output.
					return printJSON(cmd, msg)
				}
				return err
			}
			return printJSON(cmd, pipelines)
		},
	}
	c.Flags().BoolVarP(&getPipelinesIncludeDag, "dag", "d", false, "Include the task graph in the output")
	return c
}

func newDeletePipelineCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete-pipeline <pipeline-id>",
		Short: "Delete a pipeline run record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var confirmation string
			client, err := cloud.NewClient()
			if err == nil {
				confirmation, err = client.DeletePipeline(context.Background(), args[0])
			}
			if err != nil {
				if msg, ok := userMessage(err); ok {
					fmt.Fprintln(cmd.OutOrStdout(), msg)
					return nil
				}
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), confirmation)
			return nil
		},
	}
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("could not serialize output: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}

func init() {
	rootCmd.AddCommand(newWritePipelineCmd())
	rootCmd.AddCommand(newGetPipelinesCmd())
	rootCmd.AddCommand(newDeletePipelineCmd())
}
