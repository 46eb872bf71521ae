// Package telegram connects a Telegram bot to the message bus over the Bot
// API's long-polling transport.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"github.com/nextlevelbuilder/goclaw/internal/bus"
	"github.com/nextlevelbuilder/goclaw/internal/channels"
	"github.com/nextlevelbuilder/goclaw/internal/chunker"
	"github.com/nextlevelbuilder/goclaw/internal/config"
)

// Channel connects to Telegram via the Bot API using long polling.
type Channel struct {
	*channels.BaseChannel
	bot        *telego.Bot
	cfg        *config.ChannelConfig
	pollCancel context.CancelFunc
	pollDone   chan struct{}
	lastSent   sync.Map // chatID string → messageID int64, for editInPlace streaming
}

// New creates a new Telegram channel from a configured channel instance.
func New(id string, cfg *config.ChannelConfig, msgBus *bus.MessageBus) (*Channel, error) {
	bot, err := telego.NewBot(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}

	maxLen := cfg.MaxTextLength
	if maxLen == 0 {
		maxLen = chunker.MaxLenTelegram
	}

	caps := channels.Capabilities{
		Text: true, Image: true, Video: true, Audio: true, Document: true,
		Reaction: false, Typing: true, Edit: true, Delete: false, Reply: true,
		Thread: false, MaxTextLength: maxLen,
	}

	base := channels.NewBaseChannel(id, msgBus, cfg.AllowFrom, caps)

	return &Channel{BaseChannel: base, bot: bot, cfg: cfg}, nil
}

// Start begins long polling for Telegram updates.
func (c *Channel) Start(ctx context.Context) error {
	slog.Info("starting telegram bot (polling mode)", "channel", c.Name())

	pollCtx, cancel := context.WithCancel(ctx)
	c.pollCancel = cancel
	c.pollDone = make(chan struct{})

	updates, err := c.bot.UpdatesViaLongPolling(pollCtx, &telego.GetUpdatesParams{
		Timeout:        30,
		AllowedUpdates: []string{"message", "callback_query"},
	})
	if err != nil {
		cancel()
		return fmt.Errorf("start long polling: %w", err)
	}

	c.SetRunning(true)
	slog.Info("telegram bot connected", "username", c.bot.Username(), "channel", c.Name())

	go func() {
		defer close(c.pollDone)
		for {
			select {
			case <-pollCtx.Done():
				return
			case update, ok := <-updates:
				if !ok {
					slog.Info("telegram updates channel closed", "channel", c.Name())
					return
				}
				if update.Message != nil {
					c.handleMessage(update.Message)
				}
			}
		}
	}()

	return nil
}

// Stop shuts down the Telegram bot by cancelling the long polling context
// and waiting for the polling goroutine to exit.
func (c *Channel) Stop(_ context.Context) error {
	slog.Info("stopping telegram bot", "channel", c.Name())
	c.SetRunning(false)

	if c.pollCancel != nil {
		c.pollCancel()
	}

	if c.pollDone != nil {
		select {
		case <-c.pollDone:
		case <-time.After(10 * time.Second):
			slog.Warn("telegram polling goroutine did not exit within timeout", "channel", c.Name())
		}
	}

	return nil
}

// handleMessage converts an inbound Telegram update into a bus.InboundMessage.
// Policy checks, mention gating and auto-reply dispatch all happen downstream
// in the router — this adapter only normalizes the raw platform event.
func (c *Channel) handleMessage(message *telego.Message) {
	user := message.From
	if user == nil {
		return
	}

	userID := fmt.Sprintf("%d", user.ID)
	senderID := userID
	if user.Username != "" {
		senderID = fmt.Sprintf("%s|%s", userID, user.Username)
	}

	senderName := user.FirstName
	if user.Username != "" {
		senderName = "@" + user.Username
	}

	isGroup := message.Chat.Type == "group" || message.Chat.Type == "supergroup"
	peerKind := "direct"
	if isGroup {
		peerKind = "group"
	}

	content := message.Text
	if content == "" {
		content = message.Caption
	}

	media := c.resolveMedia(context.Background(), message)
	if content == "" && len(media) == 0 {
		return
	}

	chatIDStr := fmt.Sprintf("%d", message.Chat.ID)

	c.HandleMessage(bus.InboundMessage{
		ID:          fmt.Sprintf("%d:%d", message.Chat.ID, message.MessageID),
		SenderID:    senderID,
		SenderName:  senderName,
		ChatID:      chatIDStr,
		PeerKind:    peerKind,
		Content:     content,
		Media:       media,
		TimestampMs: int64(message.Date) * 1000,
		UserID:      userID,
		Metadata:    map[string]string{"message_id": fmt.Sprintf("%d", message.MessageID)},
	})
}

// resolveMedia normalizes the message's attached photo/video/audio/document
// into bus.MediaAttachment, resolving each file_id to its downloadable
// Bot API file URL. A GetFile failure drops that attachment rather than
// the whole message.
func (c *Channel) resolveMedia(ctx context.Context, message *telego.Message) []bus.MediaAttachment {
	var items []bus.MediaAttachment

	add := func(kind, fileID, mimeType, caption string) {
		url, err := c.fileURL(ctx, fileID)
		if err != nil {
			slog.Warn("telegram: resolve media file URL failed", "kind", kind, "file_id", fileID, "error", err)
			return
		}
		items = append(items, bus.MediaAttachment{Kind: kind, URL: url, MimeType: mimeType, Caption: caption})
	}

	if len(message.Photo) > 0 {
		photo := message.Photo[len(message.Photo)-1]
		add("image", photo.FileID, "image/jpeg", message.Caption)
	}
	if message.Video != nil {
		add("video", message.Video.FileID, message.Video.MimeType, message.Caption)
	}
	if message.Voice != nil {
		add("audio", message.Voice.FileID, message.Voice.MimeType, message.Caption)
	}
	if message.Audio != nil {
		add("audio", message.Audio.FileID, message.Audio.MimeType, message.Caption)
	}
	if message.Document != nil {
		add("document", message.Document.FileID, message.Document.MimeType, message.Caption)
	}

	return items
}

// fileURL resolves a Telegram file_id to its Bot API download URL.
func (c *Channel) fileURL(ctx context.Context, fileID string) (string, error) {
	file, err := c.bot.GetFile(ctx, &telego.GetFileParams{FileID: fileID})
	if err != nil {
		return "", fmt.Errorf("get file: %w", err)
	}
	if file.FilePath == "" {
		return "", fmt.Errorf("empty file path for file_id %s", fileID)
	}
	return fmt.Sprintf("https://api.telegram.org/file/bot%s/%s", c.cfg.Token, file.FilePath), nil
}

// Send delivers an outbound message, chunking it to Telegram's text limit.
// IsEdit edits the chat's last-sent message in place (stream coalescer
// editInPlace flushes) instead of sending a new one. When msg carries media
// attachments, they are sent instead of a text message, one message per
// attachment, with the first carrying msg.Content as its caption.
func (c *Channel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	if !c.IsRunning() {
		return fmt.Errorf("telegram bot not running")
	}

	chatID, err := parseChatID(msg.ChatID)
	if err != nil {
		return fmt.Errorf("invalid telegram chat id %q: %w", msg.ChatID, err)
	}

	if len(msg.Media) > 0 {
		return c.sendMedia(ctx, chatID, msg)
	}

	maxLen := c.Capabilities().MaxTextLength
	chunks := chunker.Split(msg.Content, maxLen)

	if msg.IsEdit {
		if prevID, ok := c.lastSent.Load(msg.ChatID); ok {
			_, err := c.bot.EditMessageText(ctx, &telego.EditMessageTextParams{
				ChatID:    tu.ID(chatID),
				MessageID: int(prevID.(int64)),
				Text:      chunks[0],
			})
			return err
		}
	}

	for _, piece := range chunks {
		sendMsg := tu.Message(tu.ID(chatID), piece)
		if msg.ReplyToID != "" {
			if replyID, convErr := parseChatID(msg.ReplyToID); convErr == nil {
				sendMsg.ReplyParameters = &telego.ReplyParameters{MessageID: int(replyID)}
			}
		}
		sent, err := c.bot.SendMessage(ctx, sendMsg)
		if err != nil {
			return fmt.Errorf("send telegram message: %w", err)
		}
		c.lastSent.Store(msg.ChatID, int64(sent.MessageID))
	}
	return nil
}

// sendMedia delivers msg's attachments, one Telegram message per item. The
// first attachment carries msg.Content as its caption; the rest (if any)
// go out uncaptioned.
func (c *Channel) sendMedia(ctx context.Context, chatID int64, msg bus.OutboundMessage) error {
	for i, item := range msg.Media {
		caption := ""
		if i == 0 {
			caption = msg.Content
		}
		var err error
		switch item.Kind {
		case "image":
			_, err = c.bot.SendPhoto(ctx, &telego.SendPhotoParams{
				ChatID: tu.ID(chatID), Photo: telego.InputFile{URL: item.URL}, Caption: caption,
			})
		case "video":
			_, err = c.bot.SendVideo(ctx, &telego.SendVideoParams{
				ChatID: tu.ID(chatID), Video: telego.InputFile{URL: item.URL}, Caption: caption,
			})
		case "audio":
			_, err = c.bot.SendAudio(ctx, &telego.SendAudioParams{
				ChatID: tu.ID(chatID), Audio: telego.InputFile{URL: item.URL}, Caption: caption,
			})
		case "document":
			_, err = c.bot.SendDocument(ctx, &telego.SendDocumentParams{
				ChatID: tu.ID(chatID), Document: telego.InputFile{URL: item.URL}, Caption: caption,
			})
		default:
			err = fmt.Errorf("unsupported media kind %q", item.Kind)
		}
		if err != nil {
			return fmt.Errorf("send telegram media (%s): %w", item.Kind, err)
		}
	}
	return nil
}

// SendTyping fires a one-shot typing indicator, satisfying TypingChannel.
func (c *Channel) SendTyping(ctx context.Context, chatID string) error {
	id, err := parseChatID(chatID)
	if err != nil {
		return err
	}
	return c.bot.SendChatAction(ctx, tu.ChatAction(tu.ID(id), telego.ChatActionTyping))
}

// EditMessage edits a previously sent message, satisfying EditChannel.
func (c *Channel) EditMessage(ctx context.Context, chatID, messageID, text string) error {
	id, err := parseChatID(chatID)
	if err != nil {
		return err
	}
	msgID, err := parseChatID(messageID)
	if err != nil {
		return err
	}
	_, err = c.bot.EditMessageText(ctx, &telego.EditMessageTextParams{
		ChatID:    tu.ID(id),
		MessageID: int(msgID),
		Text:      chunker.Split(text, c.Capabilities().MaxTextLength)[0],
	})
	return err
}

// parseChatID converts a string chat/message ID to int64.
func parseChatID(s string) (int64, error) {
	var id int64
	_, err := fmt.Sscanf(s, "%d", &id)
	return id, err
}
