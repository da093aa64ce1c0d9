package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"pipetrack/internal/cloud"
)

func newUploadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "upload",
		Short: "Upload the current project and trigger a cloud run",
		Long: `Zips the current project directory, uploads it to the cloud service
and triggers execution. The project must contain a requirements.lock.txt
with the dependencies to install; an optional cloud.yaml configures the
execution environment and resources.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := cloud.NewClient()
			if err != nil {
				if msg, ok := userMessage(err); ok {
					fmt.Fprintln(cmd.OutOrStdout(), msg)
					return nil
				}
				return err
			}

			runid, err := client.UploadProject(context.Background())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Run %s uploaded and triggered\n", runid)
			return nil
		},
	}
}

func init() {
	rootCmd.AddCommand(newUploadCmd())
}
