package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/goclaw/internal/config"
	"github.com/nextlevelbuilder/goclaw/pkg/protocol"
)

// Version is set at build time via -ldflags "-X github.com/nextlevelbuilder/goclaw/cmd.Version=v1.0.0"
var Version = "dev"

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "iris",
	Short: "iris - multi-channel AI messaging gateway",
	Long:  "iris bridges Telegram, Discord, WhatsApp, Slack and an in-process webchat to a single external Agent runtime, with pairing-based admission, streaming replies and a cron scheduler.",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $IRIS_CONFIG_PATH or <state dir>/iris.config.json)")

	rootCmd.AddCommand(gatewayCmd())
	rootCmd.AddCommand(sendCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(pairingCmd())
	rootCmd.AddCommand(sessionCmd())
	rootCmd.AddCommand(cronCmd())
	rootCmd.AddCommand(securityCmd())
	rootCmd.AddCommand(doctorCmd())
	rootCmd.AddCommand(scanCmd())
	rootCmd.AddCommand(versionCmd())
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("iris %s (protocol %d)\n", Version, protocol.ProtocolVersion)
		},
	}
}

// resolveConfigPath applies --config over the IRIS_CONFIG_PATH/default
// resolution order.
func resolveConfigPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	return config.ConfigPath()
}

// Execute runs the root cobra command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
