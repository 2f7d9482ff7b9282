package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"telegate/internal/domain"
)

const (
	DefaultTelegramAPIBase = "https://api.telegram.org"
	ParseModeHTML          = "HTML"

	defaultTelegramTimeout = 8 * time.Second
)

var ErrTelegramTokenMissing = errors.New("telegram_token_missing")
var ErrTelegramChatMissing = errors.New("telegram_chat_id_missing")

// APIError is an ok=false reply from the Bot API.
type APIError struct {
	Method      string
	Code        int
	Description string
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("telegram %s failed: %d %s", e.Method, e.Code, e.Description)
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result,omitempty"`
	ErrorCode   int             `json:"error_code,omitempty"`
	Description string          `json:"description,omitempty"`
}

// Client talks to the Telegram Bot API. It is safe for concurrent use.
type Client struct {
	apiBase string
	token   string
	http    *http.Client
	logger  *zap.Logger
}

func NewClient(apiBase, token string, httpClient *http.Client, logger *zap.Logger) *Client {
	apiBase = strings.TrimRight(strings.TrimSpace(apiBase), "/")
	if apiBase == "" {
		apiBase = DefaultTelegramAPIBase
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		apiBase: apiBase,
		token:   strings.TrimSpace(token),
		http:    httpClient,
		logger:  logger,
	}
}

type MessageOptions struct {
	ParseMode        string
	ReplyToMessageID int64
	ReplyMarkup      interface{}
}

type sendMessageParams struct {
	ChatID                   string      `json:"chat_id"`
	MessageID                int64       `json:"message_id,omitempty"`
	Text                     string      `json:"text"`
	ParseMode                string      `json:"parse_mode,omitempty"`
	ReplyToMessageID         int64       `json:"reply_to_message_id,omitempty"`
	AllowSendingWithoutReply bool        `json:"allow_sending_without_reply,omitempty"`
	ReplyMarkup              interface{} `json:"reply_markup,omitempty"`
}

func (o MessageOptions) parseMode() string {
	if mode := strings.TrimSpace(o.ParseMode); mode != "" {
		return mode
	}
	return ParseModeHTML
}

func (c *Client) SendMessage(ctx context.Context, chatID, text string, opts MessageOptions) (domain.TelegramMessage, error) {
	params := sendMessageParams{
		ChatID:                   chatID,
		Text:                     text,
		ParseMode:                opts.parseMode(),
		ReplyToMessageID:         opts.ReplyToMessageID,
		AllowSendingWithoutReply: true,
		ReplyMarkup:              opts.ReplyMarkup,
	}
	var msg domain.TelegramMessage
	if err := c.call(ctx, "sendMessage", params, &msg); err != nil {
		return domain.TelegramMessage{}, err
	}
	c.logger.Debug("message posted", zap.Int64("message_id", msg.MessageID))
	return msg, nil
}

type sendMediaParams struct {
	ChatID                   string      `json:"chat_id"`
	Photo                    string      `json:"photo,omitempty"`
	Document                 string      `json:"document,omitempty"`
	Caption                  string      `json:"caption"`
	ParseMode                string      `json:"parse_mode,omitempty"`
	ReplyToMessageID         int64       `json:"reply_to_message_id,omitempty"`
	AllowSendingWithoutReply bool        `json:"allow_sending_without_reply,omitempty"`
	ReplyMarkup              interface{} `json:"reply_markup,omitempty"`
}

// SendPhoto posts photo, a file_id or URL, with caption underneath.
func (c *Client) SendPhoto(ctx context.Context, chatID, photo, caption string, opts MessageOptions) (domain.TelegramMessage, error) {
	return c.sendMedia(ctx, "sendPhoto", sendMediaParams{ChatID: chatID, Photo: photo, Caption: caption}, opts)
}

// SendDocument posts document, a file_id or URL, with caption underneath.
func (c *Client) SendDocument(ctx context.Context, chatID, document, caption string, opts MessageOptions) (domain.TelegramMessage, error) {
	return c.sendMedia(ctx, "sendDocument", sendMediaParams{ChatID: chatID, Document: document, Caption: caption}, opts)
}

func (c *Client) sendMedia(ctx context.Context, method string, params sendMediaParams, opts MessageOptions) (domain.TelegramMessage, error) {
	params.ParseMode = opts.parseMode()
	params.ReplyToMessageID = opts.ReplyToMessageID
	params.AllowSendingWithoutReply = true
	params.ReplyMarkup = opts.ReplyMarkup
	var msg domain.TelegramMessage
	if err := c.call(ctx, method, params, &msg); err != nil {
		return domain.TelegramMessage{}, err
	}
	c.logger.Debug("media posted", zap.String("method", method), zap.Int64("message_id", msg.MessageID))
	return msg, nil
}

func (c *Client) EditMessageText(ctx context.Context, chatID string, messageID int64, text string, opts MessageOptions) (domain.TelegramMessage, error) {
	params := sendMessageParams{
		ChatID:      chatID,
		MessageID:   messageID,
		Text:        text,
		ParseMode:   opts.parseMode(),
		ReplyMarkup: opts.ReplyMarkup,
	}
	var msg domain.TelegramMessage
	if err := c.call(ctx, "editMessageText", params, &msg); err != nil {
		return domain.TelegramMessage{}, err
	}
	c.logger.Debug("message updated", zap.Int64("message_id", msg.MessageID))
	return msg, nil
}

type editCaptionParams struct {
	ChatID      string      `json:"chat_id"`
	MessageID   int64       `json:"message_id"`
	Caption     string      `json:"caption"`
	ParseMode   string      `json:"parse_mode,omitempty"`
	ReplyMarkup interface{} `json:"reply_markup,omitempty"`
}

func (c *Client) EditMessageCaption(ctx context.Context, chatID string, messageID int64, caption string, opts MessageOptions) (domain.TelegramMessage, error) {
	params := editCaptionParams{
		ChatID:      chatID,
		MessageID:   messageID,
		Caption:     caption,
		ParseMode:   opts.parseMode(),
		ReplyMarkup: opts.ReplyMarkup,
	}
	var msg domain.TelegramMessage
	if err := c.call(ctx, "editMessageCaption", params, &msg); err != nil {
		return domain.TelegramMessage{}, err
	}
	c.logger.Debug("caption updated", zap.Int64("message_id", msg.MessageID))
	return msg, nil
}

func (c *Client) DeleteMessage(ctx context.Context, chatID string, messageID int64) error {
	params := map[string]interface{}{
		"chat_id":    chatID,
		"message_id": messageID,
	}
	if err := c.call(ctx, "deleteMessage", params, nil); err != nil {
		return err
	}
	c.logger.Debug("message deleted", zap.Int64("message_id", messageID))
	return nil
}

func (c *Client) AnswerCallbackQuery(ctx context.Context, callbackQueryID, text string, showAlert bool) error {
	params := map[string]interface{}{
		"callback_query_id": callbackQueryID,
		"text":              text,
		"show_alert":        showAlert,
	}
	if err := c.call(ctx, "answerCallbackQuery", params, nil); err != nil {
		return err
	}
	c.logger.Debug("callback answered", zap.String("callback_query_id", callbackQueryID))
	return nil
}

// SetMyCommands replaces the command menu the bot shows to users.
func (c *Client) SetMyCommands(ctx context.Context, commands domain.TelegramCommands) error {
	if commands.Commands == nil {
		commands.Commands = []domain.TelegramBotCommand{}
	}
	if err := c.call(ctx, "setMyCommands", commands, nil); err != nil {
		return err
	}
	c.logger.Debug("commands updated", zap.Int("count", len(commands.Commands)))
	return nil
}

func (c *Client) call(ctx context.Context, method string, params interface{}, result interface{}) error {
	if c.token == "" {
		return ErrTelegramTokenMissing
	}
	body, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("marshal telegram %s params failed: %w", method, err)
	}

	endpoint := c.apiBase + "/bot" + c.token + "/" + method
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build telegram %s request failed: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		// The request URL embeds the bot token; keep it out of the error.
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}
		return fmt.Errorf("send telegram %s request failed: %w", method, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read telegram %s response failed: %w", method, err)
	}
	var decoded apiResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return &APIError{Method: method, Code: resp.StatusCode, Description: "invalid response body"}
	}
	if !decoded.OK {
		c.logger.Error("telegram request rejected",
			zap.String("method", method),
			zap.Int("error_code", decoded.ErrorCode),
			zap.String("description", decoded.Description),
		)
		return &APIError{Method: method, Code: decoded.ErrorCode, Description: decoded.Description}
	}
	if result == nil || len(decoded.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(decoded.Result, result); err != nil {
		return fmt.Errorf("decode telegram %s result failed: %w", method, err)
	}
	return nil
}

// TelegramChannel delivers rendered HTML through the Bot API. The target
// chat comes from config.chat_id, falling back to the user id.
type TelegramChannel struct {
	client *http.Client
	logger *zap.Logger
}

func NewTelegramChannel(client *http.Client, logger *zap.Logger) *TelegramChannel {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TelegramChannel{client: client, logger: logger.Named("telegram")}
}

func (c *TelegramChannel) Name() string {
	return "telegram"
}

func (c *TelegramChannel) Client(cfg map[string]interface{}) *Client {
	return NewClient(toString(cfg["api_base"]), toString(cfg["bot_token"]), c.client, c.logger)
}

func (c *TelegramChannel) SendText(ctx context.Context, userID, _ string, text string, cfg map[string]interface{}) error {
	_, err := c.Post(ctx, userID, Post{Text: text}, cfg)
	return err
}

// Post sends a message, or a photo or document captioned with the text, and
// returns the id Telegram assigned to it.
func (c *TelegramChannel) Post(ctx context.Context, userID string, post Post, cfg map[string]interface{}) (int64, error) {
	chatID, err := resolveChatID(userID, cfg)
	if err != nil {
		return 0, err
	}
	requestCtx, cancel := requestContext(ctx, cfg)
	defer cancel()

	client, opts := c.Client(cfg), withParseMode(post.Options, cfg)
	var msg domain.TelegramMessage
	switch {
	case post.Photo != "":
		msg, err = client.SendPhoto(requestCtx, chatID, post.Photo, post.Text, opts)
	case post.Document != "":
		msg, err = client.SendDocument(requestCtx, chatID, post.Document, post.Text, opts)
	default:
		msg, err = client.SendMessage(requestCtx, chatID, post.Text, opts)
	}
	if err != nil {
		return 0, err
	}
	return msg.MessageID, nil
}

func (c *TelegramChannel) Edit(ctx context.Context, userID string, messageID int64, post Post, cfg map[string]interface{}) error {
	chatID, err := resolveChatID(userID, cfg)
	if err != nil {
		return err
	}
	requestCtx, cancel := requestContext(ctx, cfg)
	defer cancel()

	client, opts := c.Client(cfg), withParseMode(post.Options, cfg)
	if post.Caption {
		_, err = client.EditMessageCaption(requestCtx, chatID, messageID, post.Text, opts)
	} else {
		_, err = client.EditMessageText(requestCtx, chatID, messageID, post.Text, opts)
	}
	return err
}

func (c *TelegramChannel) Delete(ctx context.Context, userID string, messageID int64, cfg map[string]interface{}) error {
	chatID, err := resolveChatID(userID, cfg)
	if err != nil {
		return err
	}
	requestCtx, cancel := requestContext(ctx, cfg)
	defer cancel()
	return c.Client(cfg).DeleteMessage(requestCtx, chatID, messageID)
}

func resolveChatID(userID string, cfg map[string]interface{}) (string, error) {
	chatID := strings.TrimSpace(toString(cfg["chat_id"]))
	if chatID == "" {
		chatID = strings.TrimSpace(userID)
	}
	if chatID == "" {
		return "", ErrTelegramChatMissing
	}
	return chatID, nil
}

func requestContext(ctx context.Context, cfg map[string]interface{}) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, toDurationSeconds(cfg["timeout_seconds"], defaultTelegramTimeout))
}

func withParseMode(opts MessageOptions, cfg map[string]interface{}) MessageOptions {
	if opts.ParseMode == "" {
		opts.ParseMode = toString(cfg["parse_mode"])
	}
	return opts
}
