package channel

import (
	"context"
	"unicode/utf8"

	"go.uber.org/zap"
)

type Channel interface {
	Name() string
	SendText(ctx context.Context, userID, sessionID, text string, cfg map[string]interface{}) error
}

// Post is a rendered message plus the extras only some channels honour.
type Post struct {
	Text string
	// Photo or Document, a file_id or URL, sends media with Text as caption.
	Photo    string
	Document string
	// Caption edits the caption of a media message instead of its text.
	Caption bool
	Options MessageOptions
}

// HasExtras reports whether delivering p needs more than Channel.SendText.
func (p Post) HasExtras() bool {
	return p.Photo != "" || p.Document != "" || p.Options.ReplyToMessageID != 0 || p.Options.ReplyMarkup != nil
}

// Poster is implemented by channels that honour Post extras and report the
// id of the message they created.
type Poster interface {
	Post(ctx context.Context, userID string, post Post, cfg map[string]interface{}) (int64, error)
}

// Editor is implemented by channels that can revise or retract a message
// they delivered earlier.
type Editor interface {
	Edit(ctx context.Context, userID string, messageID int64, post Post, cfg map[string]interface{}) error
	Delete(ctx context.Context, userID string, messageID int64, cfg map[string]interface{}) error
}

type ConsoleChannel struct {
	logger *zap.Logger
}

func NewConsoleChannel(logger *zap.Logger) *ConsoleChannel {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConsoleChannel{logger: logger.Named("console")}
}

func (c *ConsoleChannel) Name() string {
	return "console"
}

func (c *ConsoleChannel) SendText(_ context.Context, userID, sessionID, text string, _ map[string]interface{}) error {
	c.logger.Info("outbound message delivered",
		zap.String("user_id", userID),
		zap.String("session_id", sessionID),
		zap.Int("chars", utf8.RuneCountInString(text)),
	)
	return nil
}
