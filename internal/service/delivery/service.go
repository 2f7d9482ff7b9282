package delivery

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"telegate/internal/channel"
	"telegate/internal/domain"
	"telegate/internal/markup"
	"telegate/internal/metadata"
	"telegate/internal/service/ports"
)

var ErrChannelNotFound = errors.New("channel_not_found")
var ErrChannelDisabled = errors.New("channel_disabled")
var ErrOperationUnsupported = errors.New("channel_operation_unsupported")

type ValidationError struct {
	Code    string
	Message string
}

func (e *ValidationError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

// ChannelError wraps a failure reported by an outbound channel.
type ChannelError struct {
	Channel string
	Err     error
}

func (e *ChannelError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("channel %s delivery failed: %v", e.Channel, e.Err)
}

func (e *ChannelError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

type Dependencies struct {
	Store    ports.StateStore
	Channels []channel.Channel
	Logger   *zap.Logger
}

type Service struct {
	store    ports.StateStore
	channels map[string]channel.Channel
	logger   *zap.Logger
}

func NewService(deps Dependencies) *Service {
	registry := map[string]channel.Channel{}
	for _, ch := range deps.Channels {
		if ch == nil {
			continue
		}
		name := normalizeName(ch.Name())
		if name == "" {
			continue
		}
		registry[name] = ch
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: deps.Store, channels: registry, logger: logger}
}

// Render escapes the text, compiles the entities over it and embeds metadata.
// Entity offsets always refer to the text as given. Raw requests skip the
// escaping.
func Render(req domain.RenderRequest) (string, error) {
	annotations := markup.FromEntities(req.Entities)
	var html string
	if req.Raw {
		html = markup.Compile(req.Text, annotations)
	} else {
		html = markup.CompileEscaped(req.Text, annotations)
	}
	if req.Metadata == nil {
		return html, nil
	}
	out, err := metadata.Embed(req.Metadata, html)
	if err != nil {
		return "", &ValidationError{Code: "invalid_metadata", Message: err.Error()}
	}
	return out, nil
}

func Extract(req domain.ExtractRequest) (domain.ExtractResponse, error) {
	payload, found, err := metadata.Extract(req.Text, markup.FromEntities(req.Entities))
	if err != nil {
		return domain.ExtractResponse{Found: found}, &ValidationError{Code: "invalid_metadata", Message: err.Error()}
	}
	return domain.ExtractResponse{Found: found, Payload: payload}, nil
}

func (s *Service) Send(ctx context.Context, req domain.SendRequest) (domain.SendResponse, error) {
	name := normalizeName(req.Channel)
	if name == "" {
		name = domain.DefaultChannel
	}
	ch, cfg, err := s.resolve(name)
	if err != nil {
		return domain.SendResponse{}, err
	}
	html, err := Render(req.RenderRequest)
	if err != nil {
		return domain.SendResponse{}, err
	}
	post := channel.Post{
		Text:     html,
		Photo:    strings.TrimSpace(req.Photo),
		Document: strings.TrimSpace(req.Document),
		Options:  channel.MessageOptions{ReplyToMessageID: req.ReplyToMessageID, ReplyMarkup: req.ReplyMarkup},
	}
	if post.Photo != "" && post.Document != "" {
		return domain.SendResponse{}, &ValidationError{Code: "invalid_media", Message: "photo and document are mutually exclusive"}
	}

	out := domain.SendResponse{Channel: name, Delivered: true, Chars: utf8.RuneCountInString(html)}
	if poster, ok := ch.(channel.Poster); ok {
		out.MessageID, err = poster.Post(ctx, req.UserID, post, cfg)
	} else if post.HasExtras() {
		return domain.SendResponse{}, ErrOperationUnsupported
	} else {
		err = ch.SendText(ctx, req.UserID, req.SessionID, html, cfg)
	}
	if err != nil {
		s.logger.Error("channel delivery failed", zap.String("channel", name), zap.Error(err))
		return domain.SendResponse{}, &ChannelError{Channel: name, Err: err}
	}
	return out, nil
}

// Edit renders the request and replaces the text, or caption, of a message
// the channel delivered before.
func (s *Service) Edit(ctx context.Context, req domain.EditRequest) (domain.EditResponse, error) {
	if req.MessageID <= 0 {
		return domain.EditResponse{}, &ValidationError{Code: "invalid_message_id", Message: "message_id must be positive"}
	}
	name, editor, cfg, err := s.resolveEditor(req.Channel)
	if err != nil {
		return domain.EditResponse{}, err
	}
	html, err := Render(req.RenderRequest)
	if err != nil {
		return domain.EditResponse{}, err
	}
	post := channel.Post{
		Text:    html,
		Caption: req.Caption,
		Options: channel.MessageOptions{ReplyMarkup: req.ReplyMarkup},
	}
	if err := editor.Edit(ctx, req.UserID, req.MessageID, post, cfg); err != nil {
		s.logger.Error("channel edit failed", zap.String("channel", name), zap.Int64("message_id", req.MessageID), zap.Error(err))
		return domain.EditResponse{}, &ChannelError{Channel: name, Err: err}
	}
	return domain.EditResponse{Channel: name, MessageID: req.MessageID, Chars: utf8.RuneCountInString(html)}, nil
}

func (s *Service) Delete(ctx context.Context, req domain.DeleteRequest) (domain.DeleteResponse, error) {
	if req.MessageID <= 0 {
		return domain.DeleteResponse{}, &ValidationError{Code: "invalid_message_id", Message: "message_id must be positive"}
	}
	name, editor, cfg, err := s.resolveEditor(req.Channel)
	if err != nil {
		return domain.DeleteResponse{}, err
	}
	if err := editor.Delete(ctx, req.UserID, req.MessageID, cfg); err != nil {
		s.logger.Error("channel delete failed", zap.String("channel", name), zap.Int64("message_id", req.MessageID), zap.Error(err))
		return domain.DeleteResponse{}, &ChannelError{Channel: name, Err: err}
	}
	return domain.DeleteResponse{Channel: name, MessageID: req.MessageID, Deleted: true}, nil
}

func (s *Service) resolveEditor(rawName string) (string, channel.Editor, map[string]interface{}, error) {
	name := normalizeName(rawName)
	if name == "" {
		name = domain.DefaultChannel
	}
	ch, cfg, err := s.resolve(name)
	if err != nil {
		return "", nil, nil, err
	}
	editor, ok := ch.(channel.Editor)
	if !ok {
		return "", nil, nil, ErrOperationUnsupported
	}
	return name, editor, cfg, nil
}

func (s *Service) resolve(name string) (channel.Channel, map[string]interface{}, error) {
	ch, ok := s.channels[name]
	if !ok {
		return nil, nil, ErrChannelNotFound
	}
	cfg, err := s.ChannelConfig(name)
	if err != nil {
		return nil, nil, err
	}
	if enabled, ok := cfg["enabled"].(bool); ok && !enabled {
		return nil, nil, ErrChannelDisabled
	}
	return ch, cfg, nil
}

// ChannelConfig returns a copy of the stored config for name. A channel
// without stored config gets an empty map.
func (s *Service) ChannelConfig(name string) (map[string]interface{}, error) {
	if s.store == nil {
		return nil, errors.New("state store is unavailable")
	}
	out := map[string]interface{}{}
	s.store.ReadChannels(func(st ports.ChannelsAggregate) {
		for key, value := range st.Channels[normalizeName(name)] {
			out[key] = value
		}
	})
	return out, nil
}

func (s *Service) ListChannels() (domain.ChannelConfigMap, error) {
	if s.store == nil {
		return nil, errors.New("state store is unavailable")
	}
	out := domain.ChannelConfigMap{}
	s.store.ReadChannels(func(st ports.ChannelsAggregate) {
		for name, cfg := range st.Channels {
			copied := map[string]interface{}{}
			for key, value := range cfg {
				copied[key] = value
			}
			out[name] = copied
		}
	})
	return out, nil
}

func (s *Service) ListChannelTypes() []string {
	out := make([]string, 0, len(s.channels))
	for name := range s.channels {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (s *Service) GetChannel(name string) (map[string]interface{}, bool, error) {
	name = normalizeName(name)
	if _, ok := s.channels[name]; !ok {
		return nil, false, nil
	}
	cfg, err := s.ChannelConfig(name)
	if err != nil {
		return nil, false, err
	}
	return cfg, true, nil
}

func (s *Service) PutChannel(name string, cfg map[string]interface{}) error {
	name = normalizeName(name)
	if _, ok := s.channels[name]; !ok {
		return &ValidationError{Code: "unsupported_channel", Message: fmt.Sprintf("channel %q is not supported", name)}
	}
	if cfg == nil {
		cfg = map[string]interface{}{}
	}
	return s.store.WriteChannels(func(st *ports.ChannelsAggregate) error {
		if st.Channels == nil {
			st.Channels = domain.ChannelConfigMap{}
		}
		st.Channels[name] = cfg
		return nil
	})
}

func (s *Service) ReplaceChannels(in domain.ChannelConfigMap) (domain.ChannelConfigMap, error) {
	normalized := domain.ChannelConfigMap{}
	for rawName, cfg := range in {
		name := normalizeName(rawName)
		if _, ok := s.channels[name]; !ok {
			return nil, &ValidationError{Code: "unsupported_channel", Message: fmt.Sprintf("channel %q is not supported", rawName)}
		}
		if cfg == nil {
			cfg = map[string]interface{}{}
		}
		normalized[name] = cfg
	}
	if err := s.store.WriteChannels(func(st *ports.ChannelsAggregate) error {
		st.Channels = normalized
		return nil
	}); err != nil {
		return nil, err
	}
	return s.ListChannels()
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
