package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/goclaw/internal/config"
	"github.com/nextlevelbuilder/goclaw/internal/security"
)

func securityCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "security",
		Short: "Manage admission security state",
	}

	allowlist := &cobra.Command{
		Use:   "allowlist",
		Short: "Manage the admitted (channel, sender) allowlist",
	}
	allowlist.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List allowlisted senders",
		Run: func(cmd *cobra.Command, args []string) {
			store, err := loadAllowlist()
			if err != nil {
				fmt.Fprintln(os.Stderr, "security allowlist list:", err)
				os.Exit(1)
			}
			for _, e := range store.List() {
				fmt.Printf("%s:%s  approved by %s at %s\n", e.ChannelID, e.SenderID, e.ApprovedBy, e.ApprovedAt.Format("2006-01-02T15:04:05Z07:00"))
			}
		},
	})
	allowlist.AddCommand(&cobra.Command{
		Use:   "add <channel> <sender>",
		Short: "Admit a (channel, sender) pair directly, bypassing pairing",
		Args:  cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			store, err := loadAllowlist()
			if err != nil {
				fmt.Fprintln(os.Stderr, "security allowlist add:", err)
				os.Exit(1)
			}
			if err := store.Add(args[0], args[1], "cli"); err != nil {
				fmt.Fprintln(os.Stderr, "security allowlist add:", err)
				os.Exit(1)
			}
			fmt.Printf("admitted %s:%s\n", args[0], args[1])
		},
	})

	cmd.AddCommand(allowlist)
	return cmd
}

func loadAllowlist() (*security.AllowlistStore, error) {
	if _, err := config.Load(resolveConfigPath()); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return security.NewAllowlistStore(config.StateDir())
}
