package cmd

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"pipetrack/internal/config"
)

var warningStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("11"))

func newSetKeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-key <key>",
		Short: "Store your cloud API key",
		Long: `Stores the cloud API key in the pipetrack user configuration file.
The key authenticates every pipeline tracking command against the cloud
service. Setting a new key overwrites the previous one; unrelated
settings in the configuration file are kept.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			if err := config.SetKey(key); err != nil {
				fmt.Fprintln(cmd.OutOrStdout(), warningStyle.Render(
					"Warning: The API key is invalid, please validate your key"))
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Key was stored %s\n", key)
			return nil
		},
	}
}

func newGetKeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get-key",
		Short: "Print the stored cloud API key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := config.GetKey()
			if err != nil {
				fmt.Fprintln(cmd.OutOrStdout(), "No cloud API key was found")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "This is your cloud API key: %s\n", key)
			return nil
		},
	}
}

func init() {
	rootCmd.AddCommand(newSetKeyCmd())
	rootCmd.AddCommand(newGetKeyCmd())
}
