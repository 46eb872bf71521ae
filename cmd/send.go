package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/goclaw/internal/bus"
	"github.com/nextlevelbuilder/goclaw/internal/channels"
	"github.com/nextlevelbuilder/goclaw/internal/channels/discord"
	"github.com/nextlevelbuilder/goclaw/internal/channels/slack"
	"github.com/nextlevelbuilder/goclaw/internal/channels/telegram"
	"github.com/nextlevelbuilder/goclaw/internal/channels/whatsapp"
	"github.com/nextlevelbuilder/goclaw/internal/config"
)

func sendCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "send <channel> <target> <message>",
		Short: "Send one message through a configured channel and exit",
		Args:  cobra.MinimumNArgs(3),
		Run: func(cmd *cobra.Command, args []string) {
			channelID, target, text := args[0], args[1], args[2]
			if err := runSend(channelID, target, text); err != nil {
				fmt.Fprintln(os.Stderr, "send:", err)
				os.Exit(1)
			}
		},
	}
}

func runSend(channelID, target, text string) error {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	cc, ok := cfg.Channels[channelID]
	if !ok || !cc.Enabled {
		return fmt.Errorf("channel %q is not configured or not enabled", channelID)
	}

	msgBus := bus.NewMessageBus()

	var ch channels.Channel
	switch cc.Type {
	case "telegram":
		ch, err = telegram.New(channelID, cc, msgBus)
	case "discord":
		ch, err = discord.New(channelID, cc, msgBus)
	case "whatsapp":
		ch, err = whatsapp.New(channelID, cc, msgBus)
	case "slack":
		ch, err = slack.New(channelID, cc, msgBus)
	default:
		return fmt.Errorf("channel %q has unsendable type %q", channelID, cc.Type)
	}
	if err != nil {
		return fmt.Errorf("construct channel: %w", err)
	}

	ctx := context.Background()
	if err := ch.Start(ctx); err != nil {
		return fmt.Errorf("start channel: %w", err)
	}
	defer ch.Stop(ctx)

	if err := ch.Send(ctx, bus.OutboundMessage{ChatID: target, Content: text}); err != nil {
		return fmt.Errorf("deliver message: %w", err)
	}
	fmt.Printf("sent to %s:%s\n", channelID, target)
	return nil
}
