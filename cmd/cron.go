package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/goclaw/internal/config"
	"github.com/nextlevelbuilder/goclaw/internal/cronsched"
)

func cronCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cron",
		Short: "Manage scheduled prompts",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List scheduled jobs",
		Run: func(cmd *cobra.Command, args []string) {
			store, err := loadCronStore()
			if err != nil {
				fmt.Fprintln(os.Stderr, "cron list:", err)
				os.Exit(1)
			}
			for _, j := range store.List() {
				fmt.Printf("%s  enabled=%v  %q  -> %s:%s\n", j.ID, j.Enabled, j.Expression, j.Channel, j.ChatID)
			}
		},
	})

	var (
		expr, prompt, channel, chatID, agentID string
		enabled                                bool
	)
	addCmd := &cobra.Command{
		Use:   "add <id>",
		Short: "Add or replace a scheduled job",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			store, err := loadCronStore()
			if err != nil {
				fmt.Fprintln(os.Stderr, "cron add:", err)
				os.Exit(1)
			}
			job := cronsched.Job{
				ID: args[0], Enabled: enabled, Expression: expr, Prompt: prompt,
				Channel: channel, ChatID: chatID, AgentID: agentID,
			}
			if err := store.Upsert(job); err != nil {
				fmt.Fprintln(os.Stderr, "cron add:", err)
				os.Exit(1)
			}
			fmt.Printf("added %s\n", job.ID)
		},
	}
	addCmd.Flags().StringVar(&expr, "expr", "", "5-field cron expression")
	addCmd.Flags().StringVar(&prompt, "prompt", "", "prompt to send the Agent on each firing")
	addCmd.Flags().StringVar(&channel, "channel", "", "channel id to deliver the reply to")
	addCmd.Flags().StringVar(&chatID, "chat-id", "", "chat id to deliver the reply to")
	addCmd.Flags().StringVar(&agentID, "agent-id", "", "agent id, defaults to the single configured agent")
	addCmd.Flags().BoolVar(&enabled, "enabled", true, "whether the job fires")
	cmd.AddCommand(addCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "remove <id>",
		Short: "Remove a scheduled job",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			store, err := loadCronStore()
			if err != nil {
				fmt.Fprintln(os.Stderr, "cron remove:", err)
				os.Exit(1)
			}
			if err := store.Remove(args[0]); err != nil {
				fmt.Fprintln(os.Stderr, "cron remove:", err)
				os.Exit(1)
			}
			fmt.Printf("removed %s\n", args[0])
		},
	})

	return cmd
}

func loadCronStore() (*cronsched.Store, error) {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cronsched.NewStore(config.StateDir(), configCronJobs(cfg))
}
