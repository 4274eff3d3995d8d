package feishu

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	lark "github.com/larksuite/oapi-sdk-go/v3"
	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	"github.com/larksuite/oapi-sdk-go/v3/event/dispatcher"
	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
	larkws "github.com/larksuite/oapi-sdk-go/v3/ws"
)

// Message represents a received Feishu message
type Message struct {
	ChatID   string
	MsgID    string
	MsgType  string // text, post
	ChatType string // p2p (private), group
	Content  string // Text content with mention placeholders resolved
	SenderID string
}

// MessageHandler is the callback for received messages
type MessageHandler func(msg *Message)

// Client is the Feishu API client
type Client struct {
	appID     string
	appSecret string
	larkCli   *lark.Client
	onMessage MessageHandler
	logger    *slog.Logger
}

// NewClient creates a new Feishu client
func NewClient(appID, appSecret string, logger *slog.Logger) *Client {
	return &Client{
		appID:     appID,
		appSecret: appSecret,
		larkCli:   lark.NewClient(appID, appSecret),
		logger:    logger.With("component", "feishu"),
	}
}

// OnMessage sets the message handler
func (c *Client) OnMessage(handler MessageHandler) {
	c.onMessage = handler
}

// Start connects to Feishu via WebSocket and dispatches received messages until ctx is done
func (c *Client) Start(ctx context.Context) error {
	// Must return quickly so the SDK can ACK, otherwise Feishu redelivers the event
	eventHandler := dispatcher.NewEventDispatcher("", "").
		OnP2MessageReceiveV1(func(_ context.Context, event *larkim.P2MessageReceiveV1) error {
			go c.handleMessage(event)
			return nil
		})

	wsCli := larkws.NewClient(c.appID, c.appSecret,
		larkws.WithEventHandler(eventHandler),
		larkws.WithLogLevel(larkcore.LogLevelInfo),
	)

	c.logger.Info("Starting WebSocket connection")

	// The SDK keeps running after a successful connect, so wait on ctx instead
	errCh := make(chan error, 1)
	go func() {
		errCh <- wsCli.Start(ctx)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("feishu websocket: %w", err)
		}
		<-ctx.Done()
		return nil
	case <-ctx.Done():
		return nil
	}
}

// handleMessage processes incoming Feishu messages
func (c *Client) handleMessage(event *larkim.P2MessageReceiveV1) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("Panic while handling message", "panic", r)
		}
	}()

	msg, ok := ParseEvent(event)
	if !ok {
		return
	}

	c.logger.Debug("Received message", "chat_id", msg.ChatID, "type", msg.MsgType, "content", truncate(msg.Content, 50))
	if c.onMessage != nil {
		c.onMessage(msg)
	}
}

// ParseEvent converts a receive event into a Message.
// Returns false for messages sent by apps (including this bot) and unsupported types.
func ParseEvent(event *larkim.P2MessageReceiveV1) (*Message, bool) {
	if event == nil || event.Event == nil || event.Event.Message == nil {
		return nil, false
	}
	rawMsg := event.Event.Message

	// Ignore messages sent by bots to prevent reply loops
	sender := event.Event.Sender
	if sender != nil && sender.SenderType != nil && *sender.SenderType == "app" {
		return nil, false
	}
	if rawMsg.ChatId == nil || rawMsg.MessageType == nil || rawMsg.Content == nil {
		return nil, false
	}

	msg := &Message{
		ChatID:  *rawMsg.ChatId,
		MsgType: *rawMsg.MessageType,
	}
	if rawMsg.MessageId != nil {
		msg.MsgID = *rawMsg.MessageId
	}
	if rawMsg.ChatType != nil {
		msg.ChatType = *rawMsg.ChatType
	}
	if sender != nil && sender.SenderId != nil && sender.SenderId.OpenId != nil {
		msg.SenderID = *sender.SenderId.OpenId
	}

	mentionMap := make(map[string]string)
	for _, mention := range rawMsg.Mentions {
		if mention != nil && mention.Key != nil && mention.Name != nil {
			mentionMap[*mention.Key] = *mention.Name
		}
	}

	switch msg.MsgType {
	case larkim.MsgTypeText:
		msg.Content = parseTextContent(*rawMsg.Content, mentionMap)
	case larkim.MsgTypePost:
		msg.Content = parsePostContent(*rawMsg.Content, mentionMap)
	default:
		return nil, false
	}
	return msg, true
}

// parseTextContent extracts text from a text message
// It also replaces mention placeholders (@_user_1) with real names
func parseTextContent(content string, mentionMap map[string]string) string {
	var parsed struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return ""
	}
	return replaceMentions(parsed.Text, mentionMap)
}

// parsePostContent extracts the text of a rich text message, line by line
func parsePostContent(content string, mentionMap map[string]string) string {
	var parsed struct {
		Title   string `json:"title"`
		Content [][]struct {
			Tag      string `json:"tag"`
			Text     string `json:"text"`
			UserName string `json:"user_name"`
		} `json:"content"`
	}
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return ""
	}

	var lines []string
	if parsed.Title != "" {
		lines = append(lines, parsed.Title)
	}
	for _, line := range parsed.Content {
		var parts []string
		for _, elem := range line {
			switch elem.Tag {
			case "text", "a":
				parts = append(parts, elem.Text)
			case "at":
				if elem.UserName != "" {
					parts = append(parts, "@"+elem.UserName)
				}
			}
		}
		if len(parts) > 0 {
			lines = append(lines, strings.Join(parts, ""))
		}
	}
	return replaceMentions(strings.Join(lines, "\n"), mentionMap)
}

// replaceMentions replaces mention placeholders (@_user_1, @_user_2, etc.) with real names
func replaceMentions(text string, mentionMap map[string]string) string {
	for key, name := range mentionMap {
		text = strings.ReplaceAll(text, key, "@"+name)
	}
	return text
}

// SendText sends a text message to a chat
func (c *Client) SendText(ctx context.Context, chatID, text string) error {
	contentJSON, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return fmt.Errorf("encode text: %w", err)
	}
	return c.create(ctx, chatID, larkim.MsgTypeText, string(contentJSON))
}

// SendMarkdown sends text as an interactive card with one markdown element
func (c *Client) SendMarkdown(ctx context.Context, chatID, markdown string) error {
	card, err := BuildMarkdownCard(markdown)
	if err != nil {
		return err
	}
	return c.create(ctx, chatID, larkim.MsgTypeInteractive, card)
}

func (c *Client) create(ctx context.Context, chatID, msgType, content string) error {
	req := larkim.NewCreateMessageReqBuilder().
		ReceiveIdType(larkim.ReceiveIdTypeChatId).
		Body(larkim.NewCreateMessageReqBodyBuilder().
			ReceiveId(chatID).
			MsgType(msgType).
			Content(content).
			Build()).
		Build()

	resp, err := c.larkCli.Im.Message.Create(ctx, req)
	if err != nil {
		return fmt.Errorf("send message failed: %w", err)
	}
	if !resp.Success() {
		return fmt.Errorf("send message error: code=%d msg=%s", resp.Code, resp.Msg)
	}

	c.logger.Debug("Message sent", "chat_id", chatID, "type", msgType)
	return nil
}

// BuildMarkdownCard wraps markdown into the JSON of a minimal interactive card
func BuildMarkdownCard(markdown string) (string, error) {
	card := map[string]any{
		"config": map[string]any{"wide_screen_mode": true},
		"elements": []map[string]any{
			{"tag": "markdown", "content": markdown},
		},
	}
	b, err := json.Marshal(card)
	if err != nil {
		return "", fmt.Errorf("encode card: %w", err)
	}
	return string(b), nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
