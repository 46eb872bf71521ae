package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/goclaw/internal/config"
	"github.com/nextlevelbuilder/goclaw/internal/security"
)

func pairingCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pairing",
		Short: "Manage pending pairing codes",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "approve <code>",
		Short: "Approve a pairing code, admitting its sender",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			gate, _, err := loadGate()
			if err != nil {
				fmt.Fprintln(os.Stderr, "pairing approve:", err)
				os.Exit(1)
			}
			channelID, senderID, ok, err := gate.ApprovePairing(args[0], "cli")
			if err != nil {
				fmt.Fprintln(os.Stderr, "pairing approve:", err)
				os.Exit(1)
			}
			if !ok {
				fmt.Fprintln(os.Stderr, "pairing approve: code not found or expired")
				os.Exit(1)
			}
			fmt.Printf("approved %s:%s\n", channelID, senderID)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List outstanding pairing codes",
		Run: func(cmd *cobra.Command, args []string) {
			_, pairing, err := loadGate()
			if err != nil {
				fmt.Fprintln(os.Stderr, "pairing list:", err)
				os.Exit(1)
			}
			for _, req := range pairing.List() {
				fmt.Printf("%s  %s:%s  expires %s\n", req.Code, req.ChannelID, req.SenderID, req.ExpiresAt.Format(time.RFC3339))
			}
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "revoke <code>",
		Short: "Revoke a pending pairing code without approving it",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			_, pairing, err := loadGate()
			if err != nil {
				fmt.Fprintln(os.Stderr, "pairing revoke:", err)
				os.Exit(1)
			}
			if err := pairing.Revoke(args[0]); err != nil {
				fmt.Fprintln(os.Stderr, "pairing revoke:", err)
				os.Exit(1)
			}
			fmt.Printf("revoked %s\n", args[0])
		},
	})

	return cmd
}

// loadGate constructs a standalone Security Gate against the configured
// state dir, for CLI commands that mutate pairing/allowlist state without
// starting the gateway.
func loadGate() (*security.Gate, *security.PairingStore, error) {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	stateDir := config.StateDir()

	pairing, err := security.NewPairingStore(stateDir, cfg.Security.PairingCodeLength, time.Duration(cfg.Security.PairingCodeTTLMs)*time.Millisecond)
	if err != nil {
		return nil, nil, fmt.Errorf("load pairing store: %w", err)
	}
	allowlist, err := security.NewAllowlistStore(stateDir)
	if err != nil {
		return nil, nil, fmt.Errorf("load allowlist store: %w", err)
	}
	limiter := security.NewSlidingWindowLimiter(cfg.Security.RateLimitPerMinute, cfg.Security.RateLimitPerHour, cfg.Security.RateLimitBurst)

	return security.NewGate(pairing, allowlist, limiter), pairing, nil
}
