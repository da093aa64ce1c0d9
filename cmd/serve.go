package cmd

import (
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"pipetrack/internal/trackserver"
	"pipetrack/pkg/logging"
)

var (
	serveAddr   string
	serveAPIKey string
	serveDebug  bool
)

// serveCmd runs the reference tracking server. It keeps records in
// memory only; the hosted service is the durable backend, this one is
// for local development and integration tests.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run a local tracking server",
	Long: `Runs an in-memory implementation of the pipetrack tracking API on the
local machine. Point the CLI at it with:

  export PIPETRACK_CLOUD_HOST=http://localhost:8090

Records are lost when the server stops. Requests must carry the API key
given with --api-key.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	level := logging.LevelInfo
	if serveDebug {
		level = logging.LevelDebug
	}
	logging.Init(level, os.Stderr)

	if serveAPIKey == "" {
		return fmt.Errorf("an API key is required, pass one with --api-key")
	}

	srv := trackserver.New(serveAPIKey)
	logging.Info("serve", "tracking server listening on %s", serveAddr)
	fmt.Printf("Tracking API available at http://%s\n", serveAddr)

	return http.ListenAndServe(serveAddr, srv.Router())
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveAddr, "addr", "localhost:8090", "Address to listen on")
	serveCmd.Flags().StringVar(&serveAPIKey, "api-key", "", "API key clients must present")
	serveCmd.Flags().BoolVar(&serveDebug, "debug", false, "Enable verbose logging")
}
