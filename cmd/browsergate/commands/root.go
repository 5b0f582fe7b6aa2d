// Package commands implements the browsergate CLI: a cobra root command with
// a serve subcommand for the HTTP gateway and small operator subcommands
// (status, unlock, force-close-all) that act on the coordination files
// directly, without going through the HTTP surface.
package commands

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fenwick-labs/browsergate/pkg/version"
)

var rootCmd = &cobra.Command{
	Use:     "browsergate",
	Short:   "Coordination gateway for a shared, developer-mode browser profile",
	Version: version.Full(),
}

// Execute runs the CLI. It is the sole export cmd/browsergate/main.go calls.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(serveCmd, statusCmd, unlockCmd, forceCloseAllCmd)
}

func setupLogging(level string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
	log.Info().Str("version", version.Full()).Str("go_version", version.GoVersion()).Msg("browsergate")
}
