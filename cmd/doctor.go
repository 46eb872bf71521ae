package cmd

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/goclaw/internal/agentclient"
	"github.com/nextlevelbuilder/goclaw/internal/config"
	"github.com/nextlevelbuilder/goclaw/pkg/protocol"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check system environment and configuration health",
		Run: func(cmd *cobra.Command, args []string) {
			runDoctor()
		},
	}
}

func runDoctor() {
	fmt.Println("iris doctor")
	fmt.Printf("  Version:  %s (protocol %d)\n", Version, protocol.ProtocolVersion)
	fmt.Printf("  OS:       %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("  Go:       %s\n", runtime.Version())
	fmt.Println()

	cfgPath := resolveConfigPath()
	fmt.Printf("  Config:   %s", cfgPath)
	if _, err := os.Stat(cfgPath); err != nil {
		fmt.Println(" (NOT FOUND, defaults will be used)")
	} else {
		fmt.Println(" (OK)")
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Printf("  Config load error: %s\n", err)
		return
	}

	stateDir := config.StateDir()
	fmt.Printf("  State dir: %s", stateDir)
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		fmt.Printf(" (NOT WRITABLE: %s)\n", err)
	} else {
		fmt.Println(" (OK)")
	}

	fmt.Println()
	fmt.Println("  Channels:")
	ids := cfg.Channels.EnabledIDs()
	if len(ids) == 0 {
		fmt.Println("    (none enabled)")
	}
	for _, id := range ids {
		cc := cfg.Channels[id]
		fmt.Printf("    %-16s type=%-10s\n", id+":", cc.Type)
	}

	fmt.Println()
	fmt.Println("  Agent runtime:")
	agentClient := agentclient.New(cfg.OpenCode.Hostname, cfg.OpenCode.Port)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := agentClient.CheckHealth(ctx); err != nil {
		fmt.Printf("    %s:%d  UNREACHABLE (%s)\n", cfg.OpenCode.Hostname, cfg.OpenCode.Port, err)
	} else {
		fmt.Printf("    %s:%d  OK\n", cfg.OpenCode.Hostname, cfg.OpenCode.Port)
	}

	fmt.Println()
	fmt.Println("  External tools:")
	checkBinary("git")
	checkBinary(scanBinary)

	fmt.Println()
	fmt.Println("Doctor check complete.")
}

func checkBinary(name string) {
	path, err := exec.LookPath(name)
	if err != nil {
		fmt.Printf("    %-16s NOT FOUND\n", name+":")
	} else {
		fmt.Printf("    %-16s %s\n", name+":", path)
	}
}
