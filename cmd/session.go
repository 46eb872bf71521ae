package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/goclaw/internal/config"
	"github.com/nextlevelbuilder/goclaw/internal/sessions"
)

func sessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Inspect and reset conversation sessions",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List known conversation sessions",
		Run: func(cmd *cobra.Command, args []string) {
			sm, err := loadSessionMap()
			if err != nil {
				fmt.Fprintln(os.Stderr, "session list:", err)
				os.Exit(1)
			}
			for _, e := range sm.List("") {
				fmt.Printf("%s  agentSession=%s  lastActivity=%s\n", e.Key, e.AgentSessionID, e.LastActivity.Format("2006-01-02T15:04:05Z07:00"))
			}
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "reset <key>",
		Short: "Discard a session's Agent-side state, forcing a fresh session next message",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			sm, err := loadSessionMap()
			if err != nil {
				fmt.Fprintln(os.Stderr, "session reset:", err)
				os.Exit(1)
			}
			if err := sm.Reset(args[0]); err != nil {
				fmt.Fprintln(os.Stderr, "session reset:", err)
				os.Exit(1)
			}
			fmt.Printf("reset %s\n", args[0])
		},
	})

	return cmd
}

func loadSessionMap() (*sessions.Map, error) {
	return sessions.NewMap(config.StateDir())
}
