package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/goclaw/internal/config"
)

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the gateway configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the resolved configuration as JSON",
		Run: func(cmd *cobra.Command, args []string) {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				fmt.Fprintln(os.Stderr, "config show:", err)
				os.Exit(1)
			}
			out, err := json.MarshalIndent(cfg, "", "  ")
			if err != nil {
				fmt.Fprintln(os.Stderr, "config show:", err)
				os.Exit(1)
			}
			fmt.Println(string(out))
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Load the configuration and report whether it parses",
		Run: func(cmd *cobra.Command, args []string) {
			path := resolveConfigPath()
			cfg, err := config.Load(path)
			if err != nil {
				fmt.Fprintln(os.Stderr, "invalid config:", err)
				os.Exit(1)
			}
			if len(cfg.Channels.EnabledIDs()) == 0 {
				fmt.Fprintln(os.Stderr, "invalid config: no channels enabled")
				os.Exit(1)
			}
			fmt.Printf("config at %s is valid (hash %s)\n", path, cfg.Hash())
		},
	})
	return cmd
}
