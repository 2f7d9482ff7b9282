package domain

const (
	DefaultChannel = "console"

	DefaultScheduleID       = "schedule-default"
	DefaultScheduleName     = "Heartbeat"
	DefaultScheduleCron     = "@every 1h"
	DefaultScheduleText     = "gateway heartbeat"
	ScheduleMetaSystemBuilt = "system_default"
)

type APIErrorBody struct {
	Error APIError `json:"error"`
}

type APIError struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// MessageEntity is a formatting span as Telegram reports it. Offset and Length
// are UTF-16 code units.
type MessageEntity struct {
	Type   string `json:"type"`
	Offset int    `json:"offset"`
	Length int    `json:"length"`
	URL    string `json:"url,omitempty"`
}

// RenderRequest is text plus the entities to compile over it. Angle brackets
// in Text are escaped unless Raw is set, for callers whose text is already
// trusted markup.
type RenderRequest struct {
	Text     string          `json:"text"`
	Entities []MessageEntity `json:"entities,omitempty"`
	Raw      bool            `json:"raw,omitempty"`
	Metadata interface{}     `json:"metadata,omitempty"`
}

type RenderResponse struct {
	HTML string `json:"html"`
}

// SendRequest renders and delivers a message. Photo and Document (a file_id
// or URL) send media with the rendered text as caption; they and the reply
// fields need a channel that supports them.
type SendRequest struct {
	RenderRequest
	Channel          string      `json:"channel"`
	UserID           string      `json:"user_id"`
	SessionID        string      `json:"session_id"`
	ReplyToMessageID int64       `json:"reply_to_message_id,omitempty"`
	ReplyMarkup      interface{} `json:"reply_markup,omitempty"`
	Photo            string      `json:"photo,omitempty"`
	Document         string      `json:"document,omitempty"`
}

type SendResponse struct {
	Channel   string `json:"channel"`
	Delivered bool   `json:"delivered"`
	Chars     int    `json:"chars"`
	MessageID int64  `json:"message_id,omitempty"`
}

// EditRequest replaces the text of a delivered message, or its caption when
// Caption is set.
type EditRequest struct {
	RenderRequest
	Channel     string      `json:"channel"`
	UserID      string      `json:"user_id"`
	MessageID   int64       `json:"message_id"`
	Caption     bool        `json:"caption,omitempty"`
	ReplyMarkup interface{} `json:"reply_markup,omitempty"`
}

type EditResponse struct {
	Channel   string `json:"channel"`
	MessageID int64  `json:"message_id"`
	Chars     int    `json:"chars"`
}

type DeleteRequest struct {
	Channel   string `json:"channel"`
	UserID    string `json:"user_id"`
	MessageID int64  `json:"message_id"`
}

type DeleteResponse struct {
	Channel   string `json:"channel"`
	MessageID int64  `json:"message_id"`
	Deleted   bool   `json:"deleted"`
}

type ExtractRequest struct {
	Text     string          `json:"text"`
	Entities []MessageEntity `json:"entities,omitempty"`
}

type ExtractResponse struct {
	Found   bool        `json:"found"`
	Payload interface{} `json:"payload,omitempty"`
}

type TelegramUser struct {
	ID        int64  `json:"id"`
	IsBot     bool   `json:"is_bot,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	Username  string `json:"username,omitempty"`
}

type TelegramChat struct {
	ID    int64  `json:"id"`
	Type  string `json:"type,omitempty"`
	Title string `json:"title,omitempty"`
}

type TelegramMessage struct {
	MessageID       int64           `json:"message_id"`
	From            *TelegramUser   `json:"from,omitempty"`
	Chat            TelegramChat    `json:"chat"`
	Date            int64           `json:"date,omitempty"`
	Text            string          `json:"text,omitempty"`
	Entities        []MessageEntity `json:"entities,omitempty"`
	Caption         string          `json:"caption,omitempty"`
	CaptionEntities []MessageEntity `json:"caption_entities,omitempty"`
}

type TelegramCallbackQuery struct {
	ID              string           `json:"id"`
	From            TelegramUser     `json:"from"`
	Message         *TelegramMessage `json:"message,omitempty"`
	InlineMessageID string           `json:"inline_message_id,omitempty"`
	ChatInstance    string           `json:"chat_instance,omitempty"`
	Data            string           `json:"data,omitempty"`
}

type TelegramUpdate struct {
	UpdateID      int64                  `json:"update_id"`
	Message       *TelegramMessage       `json:"message,omitempty"`
	CallbackQuery *TelegramCallbackQuery `json:"callback_query,omitempty"`
}

type TelegramBotCommand struct {
	Command     string `json:"command"`
	Description string `json:"description"`
}

// TelegramCommands is the setMyCommands payload. Scope is passed through as
// given.
type TelegramCommands struct {
	Commands     []TelegramBotCommand   `json:"commands"`
	Scope        map[string]interface{} `json:"scope,omitempty"`
	LanguageCode string                 `json:"language_code,omitempty"`
}

type TelegramInboundResult struct {
	UpdateID     int64       `json:"update_id"`
	Kind         string      `json:"kind"`
	HTML         string      `json:"html"`
	Found        bool        `json:"metadata_found"`
	Metadata     interface{} `json:"metadata,omitempty"`
	CallbackData string      `json:"callback_data,omitempty"`
	Answered     bool        `json:"answered"`
}

type ScheduleSpec struct {
	ID        string                 `json:"id"`
	Name      string                 `json:"name"`
	Enabled   bool                   `json:"enabled"`
	Cron      string                 `json:"cron"`
	Timezone  string                 `json:"timezone,omitempty"`
	Channel   string                 `json:"channel"`
	UserID    string                 `json:"user_id"`
	SessionID string                 `json:"session_id"`
	Text      string                 `json:"text"`
	Entities  []MessageEntity        `json:"entities,omitempty"`
	Raw       bool                   `json:"raw,omitempty"`
	Metadata  interface{}            `json:"metadata,omitempty"`
	Meta      map[string]interface{} `json:"meta,omitempty"`
}

type ScheduleState struct {
	NextRunAt  *string `json:"next_run_at,omitempty"`
	LastRunAt  *string `json:"last_run_at,omitempty"`
	LastStatus *string `json:"last_status,omitempty"`
	LastError  *string `json:"last_error,omitempty"`
}

type ScheduleView struct {
	Spec  ScheduleSpec  `json:"spec"`
	State ScheduleState `json:"state"`
}

type ChannelConfigMap map[string]map[string]interface{}
