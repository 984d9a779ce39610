package cmd

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/teemow/bulkmail/internal/config"
	"github.com/teemow/bulkmail/internal/logging"
)

var cfgFile string

// rootCmd represents the base command for the bulkmail application
var rootCmd = &cobra.Command{
	Use:   "bulkmail",
	Short: "Sends personalised mail to a recipient list through Gmail",
	Long: `bulkmail sends one message per recipient through the Gmail API on behalf
of a single authorized account, and records every attempt in a delivery log.

It can run as:
  - An HTTP API for the browser front end (serve)
  - A standalone CLI tool (send, auth, logs)`,
	SilenceUsage: true,
}

// version will be set by main
var version = "dev"

// SetVersion sets the version for the root command
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

// Execute is the main entry point for the CLI application
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "bulkmail version %s\n" .Version}}`)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./bulkmail.yaml or $HOME/.config/bulkmail/bulkmail.yaml)")
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().String("log-format", logging.FormatText, "Log format: text or json")
	rootCmd.PersistentFlags().String("token-store", "", "Credential store: file, memory or valkey")
	rootCmd.PersistentFlags().String("token-path", "", "Path of the credential file")
	rootCmd.PersistentFlags().String("delivery-store", "", "Delivery log backend: file or sqlite")
	rootCmd.PersistentFlags().String("delivery-log", "", "Path of the delivery log")
	rootCmd.PersistentFlags().String("account", "", "Gmail address mail is sent from")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newAuthCmd())
	rootCmd.AddCommand(newSendCmd())
	rootCmd.AddCommand(newLogsCmd())
	rootCmd.AddCommand(newVersionCmd())
}

// loadConfig reads the configuration for cmd and builds the process logger.
// The logger also becomes the slog default. Callers validate what they use.
func loadConfig(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return nil, nil, err
	}

	logger, err := logging.New(logging.Options{
		Format: cfg.Log.Format,
		Debug:  cfg.Log.Debug,
	})
	if err != nil {
		return nil, nil, err
	}
	slog.SetDefault(logger)
	return cfg, logger, nil
}
