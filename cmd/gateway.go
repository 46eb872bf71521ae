package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/goclaw/internal/agentclient"
	"github.com/nextlevelbuilder/goclaw/internal/bus"
	"github.com/nextlevelbuilder/goclaw/internal/channels"
	"github.com/nextlevelbuilder/goclaw/internal/channels/discord"
	"github.com/nextlevelbuilder/goclaw/internal/channels/slack"
	"github.com/nextlevelbuilder/goclaw/internal/channels/telegram"
	"github.com/nextlevelbuilder/goclaw/internal/channels/webchat"
	"github.com/nextlevelbuilder/goclaw/internal/channels/whatsapp"
	"github.com/nextlevelbuilder/goclaw/internal/config"
	"github.com/nextlevelbuilder/goclaw/internal/cronsched"
	"github.com/nextlevelbuilder/goclaw/internal/healthserver"
	"github.com/nextlevelbuilder/goclaw/internal/heartbeat"
	"github.com/nextlevelbuilder/goclaw/internal/messagecache"
	"github.com/nextlevelbuilder/goclaw/internal/outboundqueue"
	"github.com/nextlevelbuilder/goclaw/internal/router"
	"github.com/nextlevelbuilder/goclaw/internal/security"
	"github.com/nextlevelbuilder/goclaw/internal/sessions"
	"github.com/nextlevelbuilder/goclaw/internal/toolserver"
)

const messageCacheTTL = 10 * time.Minute
const messageCacheMaxEntries = 10_000
const messageCacheSweepInterval = messageCacheTTL / 2

func gatewayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gateway",
		Short: "Run or inspect the gateway process",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Start the gateway: channel adapters, router, scheduler and HTTP surfaces",
		Run: func(cmd *cobra.Command, args []string) {
			runGateway()
		},
	})
	return cmd
}

func runGateway() {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		os.Exit(1)
	}
	setupLogging(cfg.Logging)

	if len(cfg.Channels.EnabledIDs()) == 0 {
		slog.Error("no channels enabled in config; nothing to run")
		os.Exit(1)
	}

	stateDir := config.StateDir()
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		slog.Error("create state dir", "dir", stateDir, "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := config.Watch(ctx, resolveConfigPath(), cfg); err != nil {
		slog.Warn("config hot-reload disabled", "error", err)
	}

	msgBus := bus.NewMessageBus()

	sessionMap, err := sessions.NewMap(stateDir)
	if err != nil {
		slog.Error("load session map", "error", err)
		os.Exit(1)
	}

	pairingStore, err := security.NewPairingStore(stateDir, cfg.Security.PairingCodeLength, time.Duration(cfg.Security.PairingCodeTTLMs)*time.Millisecond)
	if err != nil {
		slog.Error("load pairing store", "error", err)
		os.Exit(1)
	}
	allowlistStore, err := security.NewAllowlistStore(stateDir)
	if err != nil {
		slog.Error("load allowlist store", "error", err)
		os.Exit(1)
	}
	limiter := security.NewSlidingWindowLimiter(cfg.Security.RateLimitPerMinute, cfg.Security.RateLimitPerHour, cfg.Security.RateLimitBurst)
	gate := security.NewGate(pairingStore, allowlistStore, limiter)

	autoReply, err := security.NewEngine(cfg.AutoReply)
	if err != nil {
		slog.Error("compile auto-reply templates", "error", err)
		os.Exit(1)
	}

	chanMgr := channels.NewManager(msgBus)
	if err := registerChannels(chanMgr, cfg, msgBus); err != nil {
		slog.Error("register channels", "error", err)
		os.Exit(1)
	}

	agentClient := agentclient.New(cfg.OpenCode.Hostname, cfg.OpenCode.Port)

	outbound := outboundqueue.New(func(ctx context.Context, item outboundqueue.Item) error {
		return chanMgr.SendToChannel(ctx, item.ChannelID, bus.OutboundMessage{
			ChatID: item.ChatID, Content: item.Text, ReplyToID: item.ReplyToID, IsEdit: item.IsEdit,
		})
	})

	cache := messagecache.New(messageCacheTTL, messageCacheMaxEntries)
	go runMessageCacheSweeper(ctx, cache)

	rt := router.New(cfg, gate, sessionMap, autoReply, chanMgr, agentClient, outbound, cache)

	hb := heartbeat.New(cfg.Heartbeat, func() int { return 0 })
	hb.RegisterAgent(config.DefaultAgentID, []heartbeat.Checker{
		heartbeat.NewAgentTransportChecker(agentClient),
		heartbeat.NewChannelsChecker(chanMgr),
	}, cfg.Heartbeat.ActiveHours)

	cronStore, err := cronsched.NewStore(stateDir, configCronJobs(cfg))
	if err != nil {
		slog.Error("load cron store", "error", err)
		os.Exit(1)
	}
	sched := cronsched.New(cronStore, agentClient, sessionMap, outbound)

	health := healthserver.New(chanMgr, agentClient)
	tools := toolserver.New(chanMgr, stateDir+"/skills", stateDir+"/agents")

	if err := chanMgr.StartAll(ctx); err != nil {
		slog.Error("start channels", "error", err)
		os.Exit(1)
	}
	outbound.Start(ctx)
	rt.Start(ctx)
	hb.Start(ctx)
	sched.Start(ctx)

	go func() {
		addr := fmt.Sprintf("%s:%d", cfg.Gateway.Hostname, cfg.Gateway.Port)
		if err := health.Start(ctx, addr); err != nil {
			slog.Error("health server exited", "error", err)
		}
	}()
	go func() {
		if err := tools.Start(ctx, "127.0.0.1:19877"); err != nil {
			slog.Error("tool server exited", "error", err)
		}
	}()

	slog.Info("gateway running", "channels", cfg.Channels.EnabledIDs())

	for {
		msg, ok := msgBus.ConsumeInbound(ctx)
		if !ok {
			break
		}
		go rt.HandleInbound(ctx, msg)
	}

	slog.Info("shutting down")
	sched.Stop()
	hb.Stop()
	rt.Stop()
	outbound.Stop()
	_ = chanMgr.StopAll(context.Background())
}

// runMessageCacheSweeper periodically evicts expired entries so the cache
// reclaims memory for message ids nobody ever looks up again, not just ones
// that happen to get a Get call after expiring.
func runMessageCacheSweeper(ctx context.Context, cache *messagecache.Cache) {
	ticker := time.NewTicker(messageCacheSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			cache.Sweep()
		case <-ctx.Done():
			return
		}
	}
}

// registerChannels constructs and registers one adapter per enabled
// channel, dispatched on its configured type.
func registerChannels(mgr *channels.Manager, cfg *config.Config, msgBus *bus.MessageBus) error {
	for id, cc := range cfg.Channels {
		if cc == nil || !cc.Enabled {
			continue
		}
		var (
			ch  channels.Channel
			err error
		)
		switch cc.Type {
		case "telegram":
			ch, err = telegram.New(id, cc, msgBus)
		case "discord":
			ch, err = discord.New(id, cc, msgBus)
		case "whatsapp":
			ch, err = whatsapp.New(id, cc, msgBus)
		case "slack":
			ch, err = slack.New(id, cc, msgBus)
		case "webchat":
			ch, err = webchat.New(id, cc, msgBus)
		default:
			return fmt.Errorf("channel %s: unknown type %q", id, cc.Type)
		}
		if err != nil {
			return fmt.Errorf("channel %s: %w", id, err)
		}
		mgr.RegisterChannel(id, ch)
	}
	return nil
}

func configCronJobs(cfg *config.Config) []cronsched.Job {
	jobs := make([]cronsched.Job, 0, len(cfg.Cron))
	for _, j := range cfg.Cron {
		jobs = append(jobs, cronsched.Job{
			ID: j.ID, Enabled: j.Enabled, Expression: j.Expression,
			Prompt: j.Prompt, Channel: j.Channel, ChatID: j.ChatID, AgentID: j.AgentID,
		})
	}
	return jobs
}

func setupLogging(lc config.LoggingConfig) {
	level := slog.LevelInfo
	switch lc.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	out := os.Stderr
	if lc.File != "" {
		f, err := os.OpenFile(lc.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err == nil {
			slog.SetDefault(slog.New(newHandler(f, lc.JSON, level)))
			return
		}
	}
	slog.SetDefault(slog.New(newHandler(out, lc.JSON, level)))
}

func newHandler(w *os.File, json bool, level slog.Level) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	if json {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}
