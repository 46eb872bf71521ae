// Package discord connects a Discord bot to the message bus over the
// discordgo gateway client.
package discord

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/nextlevelbuilder/goclaw/internal/bus"
	"github.com/nextlevelbuilder/goclaw/internal/channels"
	"github.com/nextlevelbuilder/goclaw/internal/chunker"
	"github.com/nextlevelbuilder/goclaw/internal/config"
)

// Channel connects to Discord via the Bot API using gateway events.
type Channel struct {
	*channels.BaseChannel
	session   *discordgo.Session
	cfg       *config.ChannelConfig
	botUserID string
	lastSent  sync.Map // chatID string → messageID string, for editInPlace streaming
}

// New creates a new Discord channel from a configured channel instance.
func New(id string, cfg *config.ChannelConfig, msgBus *bus.MessageBus) (*Channel, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}

	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent

	maxLen := cfg.MaxTextLength
	if maxLen == 0 {
		maxLen = chunker.MaxLenDiscord
	}

	caps := channels.Capabilities{
		Text: true, Image: true, Video: true, Audio: true, Document: true,
		Reaction: true, Typing: true, Edit: true, Delete: true, Reply: true,
		Thread: false, MaxTextLength: maxLen,
	}

	base := channels.NewBaseChannel(id, msgBus, cfg.AllowFrom, caps)

	c := &Channel{BaseChannel: base, session: session, cfg: cfg}
	session.AddHandler(c.handleMessage)
	return c, nil
}

// Start opens the Discord gateway connection and begins receiving events.
func (c *Channel) Start(_ context.Context) error {
	slog.Info("starting discord bot", "channel", c.Name())

	if err := c.session.Open(); err != nil {
		return fmt.Errorf("open discord session: %w", err)
	}

	user, err := c.session.User("@me")
	if err != nil {
		c.session.Close()
		return fmt.Errorf("fetch discord bot identity: %w", err)
	}
	c.botUserID = user.ID

	c.SetRunning(true)
	slog.Info("discord bot connected", "username", user.Username, "id", user.ID, "channel", c.Name())
	return nil
}

// Stop closes the Discord gateway connection.
func (c *Channel) Stop(_ context.Context) error {
	slog.Info("stopping discord bot", "channel", c.Name())
	c.SetRunning(false)
	return c.session.Close()
}

// Send delivers an outbound message to a Discord channel, chunking it to
// Discord's text limit. IsEdit edits the channel's last-sent message in
// place (stream coalescer editInPlace flushes) instead of sending a new one.
func (c *Channel) Send(_ context.Context, msg bus.OutboundMessage) error {
	if !c.IsRunning() {
		return fmt.Errorf("discord bot not running")
	}
	if msg.ChatID == "" {
		return fmt.Errorf("empty chat ID for discord send")
	}

	maxLen := c.Capabilities().MaxTextLength
	chunks := chunker.Split(msg.Content, maxLen)

	if msg.IsEdit {
		if prevID, ok := c.lastSent.Load(msg.ChatID); ok {
			_, err := c.session.ChannelMessageEdit(msg.ChatID, prevID.(string), chunks[0])
			return err
		}
	}

	for _, chunk := range chunks {
		sent, err := c.session.ChannelMessageSend(msg.ChatID, chunk)
		if err != nil {
			return fmt.Errorf("send discord message: %w", err)
		}
		c.lastSent.Store(msg.ChatID, sent.ID)
	}
	return nil
}

// SendTyping fires a one-shot typing indicator, satisfying TypingChannel.
func (c *Channel) SendTyping(_ context.Context, chatID string) error {
	return c.session.ChannelTyping(chatID)
}

// EditMessage edits a previously sent message, satisfying EditChannel.
func (c *Channel) EditMessage(_ context.Context, chatID, messageID, text string) error {
	chunks := chunker.Split(text, c.Capabilities().MaxTextLength)
	_, err := c.session.ChannelMessageEdit(chatID, messageID, chunks[0])
	return err
}

// DeleteMessage removes a previously sent message, satisfying DeleteChannel.
func (c *Channel) DeleteMessage(_ context.Context, chatID, messageID string) error {
	return c.session.ChannelMessageDelete(chatID, messageID)
}

// OnReactionEvent adds a status reaction to the triggering message,
// satisfying ReactionChannel.
func (c *Channel) OnReactionEvent(_ context.Context, chatID, messageID, status string) error {
	return c.session.MessageReactionAdd(chatID, messageID, statusEmoji(status))
}

// ClearReaction removes all of the bot's reactions from the message.
func (c *Channel) ClearReaction(_ context.Context, chatID, messageID string) error {
	for _, emoji := range []string{statusEmoji("thinking"), statusEmoji("done"), statusEmoji("error"), statusEmoji("")} {
		_ = c.session.MessageReactionRemove(chatID, messageID, emoji, "@me")
	}
	return nil
}

func statusEmoji(status string) string {
	switch status {
	case "thinking":
		return "\U0001F914" // 🤔
	case "done":
		return "✅" // ✅
	case "error":
		return "❌" // ❌
	default:
		return "\U0001F440" // 👀
	}
}

// handleMessage processes incoming Discord messages. Policy checks,
// mention gating and auto-reply dispatch all happen downstream in the
// router — this adapter only normalizes the raw platform event.
func (c *Channel) handleMessage(_ *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.ID == c.botUserID || m.Author.Bot {
		return
	}

	senderID := m.Author.ID
	senderName := resolveDisplayName(m)
	isDM := m.GuildID == ""
	peerKind := "group"
	if isDM {
		peerKind = "direct"
	}

	content := m.Content
	for _, att := range m.Attachments {
		if content != "" {
			content += "\n"
		}
		content += fmt.Sprintf("[attachment: %s]", att.URL)
	}
	if content == "" {
		return
	}

	c.HandleMessage(bus.InboundMessage{
		ID:          m.ID,
		SenderID:    senderID,
		SenderName:  senderName,
		ChatID:      m.ChannelID,
		PeerKind:    peerKind,
		Content:     content,
		TimestampMs: m.Timestamp.UnixMilli(),
		UserID:      senderID,
		Metadata: map[string]string{
			"message_id": m.ID,
			"username":   m.Author.Username,
			"guild_id":   m.GuildID,
		},
	})
}

// resolveDisplayName returns the best available display name for a Discord
// message author. Priority: server nickname > global display name > username.
func resolveDisplayName(m *discordgo.MessageCreate) string {
	if m.Member != nil && m.Member.Nick != "" {
		return m.Member.Nick
	}
	if m.Author.GlobalName != "" {
		return m.Author.GlobalName
	}
	return m.Author.Username
}
