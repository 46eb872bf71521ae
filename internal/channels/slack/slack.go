// Package slack connects a Slack app to the message bus over Socket Mode,
// so no public webhook endpoint is required.
package slack

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"

	"github.com/nextlevelbuilder/goclaw/internal/bus"
	"github.com/nextlevelbuilder/goclaw/internal/channels"
	"github.com/nextlevelbuilder/goclaw/internal/chunker"
	"github.com/nextlevelbuilder/goclaw/internal/config"
)

// Channel connects to Slack via Socket Mode.
type Channel struct {
	*channels.BaseChannel
	api       *slack.Client
	socket    *socketmode.Client
	cfg       *config.ChannelConfig
	botUserID string
	cancel    context.CancelFunc
	done      chan struct{}
}

// New creates a new Slack channel from a configured channel instance.
func New(id string, cfg *config.ChannelConfig, msgBus *bus.MessageBus) (*Channel, error) {
	if cfg.BotToken == "" || cfg.AppToken == "" {
		return nil, fmt.Errorf("slack channel %s requires both botToken and appToken", id)
	}

	api := slack.New(cfg.BotToken, slack.OptionAppLevelToken(cfg.AppToken))
	socket := socketmode.New(api)

	maxLen := cfg.MaxTextLength
	if maxLen == 0 {
		maxLen = chunker.MaxLenSlack
	}

	caps := channels.Capabilities{
		Text: true, Image: true, Video: true, Audio: true, Document: true,
		Reaction: true, Typing: false, Edit: true, Delete: true, Reply: true,
		Thread: true, MaxTextLength: maxLen,
	}

	base := channels.NewBaseChannel(id, msgBus, cfg.AllowFrom, caps)

	return &Channel{BaseChannel: base, api: api, socket: socket, cfg: cfg}, nil
}

// Start opens the Socket Mode connection and begins receiving events.
func (c *Channel) Start(ctx context.Context) error {
	slog.Info("starting slack bot (socket mode)", "channel", c.Name())

	auth, err := c.api.AuthTestContext(ctx)
	if err != nil {
		return fmt.Errorf("slack auth test: %w", err)
	}
	c.botUserID = auth.UserID

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})

	go func() {
		defer close(c.done)
		for {
			select {
			case <-runCtx.Done():
				return
			case evt, ok := <-c.socket.Events:
				if !ok {
					return
				}
				c.handleEvent(runCtx, evt)
			}
		}
	}()

	go func() {
		if err := c.socket.RunContext(runCtx); err != nil && runCtx.Err() == nil {
			slog.Error("slack socket mode run exited", "error", err, "channel", c.Name())
		}
	}()

	c.SetRunning(true)
	slog.Info("slack bot connected", "user_id", auth.UserID, "team", auth.Team, "channel", c.Name())
	return nil
}

// Stop closes the Socket Mode connection.
func (c *Channel) Stop(_ context.Context) error {
	slog.Info("stopping slack bot", "channel", c.Name())
	c.SetRunning(false)
	if c.cancel != nil {
		c.cancel()
	}
	if c.done != nil {
		<-c.done
	}
	return nil
}

func (c *Channel) handleEvent(ctx context.Context, evt socketmode.Event) {
	switch evt.Type {
	case socketmode.EventTypeEventsAPI:
		eventsAPIEvent, ok := evt.Data.(slackevents.EventsAPIEvent)
		if !ok {
			return
		}
		c.socket.Ack(*evt.Request)
		if eventsAPIEvent.Type != slackevents.CallbackEvent {
			return
		}
		switch inner := eventsAPIEvent.InnerEvent.Data.(type) {
		case *slackevents.MessageEvent:
			c.handleMessageEvent(inner)
		case *slackevents.AppMentionEvent:
			c.handleAppMention(inner)
		}
	}
}

func (c *Channel) handleMessageEvent(ev *slackevents.MessageEvent) {
	if ev.User == "" || ev.User == c.botUserID || ev.SubType != "" {
		return
	}
	c.publish(ev.Channel, ev.User, ev.Text, ev.TimeStamp, ev.ThreadTimeStamp)
}

func (c *Channel) handleAppMention(ev *slackevents.AppMentionEvent) {
	if ev.User == "" || ev.User == c.botUserID {
		return
	}
	c.publish(ev.Channel, ev.User, ev.Text, ev.TimeStamp, ev.ThreadTimeStamp)
}

// publish normalizes a Slack message/mention event into a bus.InboundMessage.
// Policy checks, mention gating and auto-reply dispatch all happen downstream
// in the router — this adapter only normalizes the raw platform event.
func (c *Channel) publish(channelID, userID, text, ts, threadTS string) {
	if text == "" {
		return
	}

	senderName := userID
	if user, err := c.api.GetUserInfo(userID); err == nil {
		if user.RealName != "" {
			senderName = user.RealName
		} else if user.Name != "" {
			senderName = user.Name
		}
	}

	peerKind := "group"
	if len(channelID) > 0 && channelID[0] == 'D' {
		peerKind = "direct"
	}

	metadata := map[string]string{"ts": ts}
	if threadTS != "" {
		metadata["thread_ts"] = threadTS
	}

	c.HandleMessage(bus.InboundMessage{
		ID:          fmt.Sprintf("%s:%s", channelID, ts),
		SenderID:    userID,
		SenderName:  senderName,
		ChatID:      channelID,
		PeerKind:    peerKind,
		Content:     text,
		TimestampMs: slackTimestampMs(ts),
		UserID:      userID,
		Metadata:    metadata,
	})
}

// Send posts an outbound message, chunking it to Slack's text limit. IsEdit
// updates a previously sent message in place instead of posting a new one.
func (c *Channel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	if !c.IsRunning() {
		return fmt.Errorf("slack bot not running")
	}
	if msg.ChatID == "" {
		return fmt.Errorf("empty chat ID for slack send")
	}

	maxLen := c.Capabilities().MaxTextLength
	chunks := chunker.Split(msg.Content, maxLen)

	if msg.IsEdit && msg.EditMsgID != "" {
		_, _, _, err := c.api.UpdateMessageContext(ctx, msg.ChatID, msg.EditMsgID, slack.MsgOptionText(chunks[0], false))
		return err
	}

	opts := []slack.MsgOption{slack.MsgOptionText(chunks[0], false)}
	if msg.ReplyToID != "" {
		opts = append(opts, slack.MsgOptionTS(msg.ReplyToID))
	}
	_, _, err := c.api.PostMessageContext(ctx, msg.ChatID, opts...)
	if err != nil {
		return fmt.Errorf("post slack message: %w", err)
	}

	for _, chunk := range chunks[1:] {
		if _, _, err := c.api.PostMessageContext(ctx, msg.ChatID, slack.MsgOptionText(chunk, false)); err != nil {
			return fmt.Errorf("post slack message: %w", err)
		}
	}
	return nil
}

// EditMessage edits a previously sent message, satisfying EditChannel.
func (c *Channel) EditMessage(ctx context.Context, chatID, messageID, text string) error {
	chunks := chunker.Split(text, c.Capabilities().MaxTextLength)
	_, _, _, err := c.api.UpdateMessageContext(ctx, chatID, messageID, slack.MsgOptionText(chunks[0], false))
	return err
}

// DeleteMessage removes a previously sent message, satisfying DeleteChannel.
func (c *Channel) DeleteMessage(ctx context.Context, chatID, messageID string) error {
	_, _, err := c.api.DeleteMessageContext(ctx, chatID, messageID)
	return err
}

// OnReactionEvent adds a status reaction to the triggering message,
// satisfying ReactionChannel.
func (c *Channel) OnReactionEvent(_ context.Context, chatID, messageID, status string) error {
	return c.api.AddReaction(statusEmoji(status), slack.NewRefToMessage(chatID, messageID))
}

// ClearReaction removes all of the bot's status reactions from the message.
func (c *Channel) ClearReaction(_ context.Context, chatID, messageID string) error {
	ref := slack.NewRefToMessage(chatID, messageID)
	for _, status := range []string{"thinking", "done", "error", ""} {
		_ = c.api.RemoveReaction(statusEmoji(status), ref)
	}
	return nil
}

func statusEmoji(status string) string {
	switch status {
	case "thinking":
		return "thinking_face"
	case "done":
		return "white_check_mark"
	case "error":
		return "x"
	default:
		return "eyes"
	}
}

// slackTimestampMs converts a Slack "1234567890.123456" timestamp to epoch
// milliseconds, used for InboundMessage.TimestampMs.
func slackTimestampMs(ts string) int64 {
	var sec, micro int64
	fmt.Sscanf(ts, "%d.%d", &sec, &micro)
	return sec*1000 + micro/1000
}
