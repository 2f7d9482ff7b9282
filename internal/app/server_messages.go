package app

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"telegate/internal/domain"
	"telegate/internal/markup"
	"telegate/internal/service/delivery"
)

const (
	inboundKindMessage  = "message"
	inboundKindCallback = "callback_query"
)

func (s *Server) renderMessage(w http.ResponseWriter, r *http.Request) {
	var req domain.RenderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid_json", "invalid request body", nil)
		return
	}
	html, err := delivery.Render(req)
	if err != nil {
		writeDeliveryErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, domain.RenderResponse{HTML: html})
}

func (s *Server) sendMessage(w http.ResponseWriter, r *http.Request) {
	var req domain.SendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid_json", "invalid request body", nil)
		return
	}
	if source := strings.TrimSpace(r.Header.Get(channelSourceHeader)); source != "" && req.SessionID == "" {
		req.SessionID = source
	}
	out, err := s.delivery.Send(r.Context(), req)
	if err != nil {
		writeDeliveryErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) editMessage(w http.ResponseWriter, r *http.Request) {
	var req domain.EditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid_json", "invalid request body", nil)
		return
	}
	out, err := s.delivery.Edit(r.Context(), req)
	if err != nil {
		writeDeliveryErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) deleteMessage(w http.ResponseWriter, r *http.Request) {
	var req domain.DeleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid_json", "invalid request body", nil)
		return
	}
	out, err := s.delivery.Delete(r.Context(), req)
	if err != nil {
		writeDeliveryErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) extractMetadata(w http.ResponseWriter, r *http.Request) {
	var req domain.ExtractRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid_json", "invalid request body", nil)
		return
	}
	out, err := delivery.Extract(req)
	if err != nil {
		writeDeliveryErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// processTelegramInbound renders an incoming update back to escaped HTML and pulls
// any embedded metadata out of it. Callback queries are answered when the
// telegram channel has a bot token.
func (s *Server) processTelegramInbound(w http.ResponseWriter, r *http.Request) {
	var update domain.TelegramUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid_json", "invalid request body", nil)
		return
	}

	out := domain.TelegramInboundResult{UpdateID: update.UpdateID}
	var msg *domain.TelegramMessage
	switch {
	case update.CallbackQuery != nil:
		out.Kind = inboundKindCallback
		out.CallbackData = update.CallbackQuery.Data
		msg = update.CallbackQuery.Message
	case update.Message != nil:
		out.Kind = inboundKindMessage
		msg = update.Message
	default:
		writeErr(w, http.StatusBadRequest, "unsupported_update", "update carries neither message nor callback_query", nil)
		return
	}

	if msg != nil {
		text, entities := msg.Text, msg.Entities
		if text == "" {
			text, entities = msg.Caption, msg.CaptionEntities
		}
		out.HTML = markup.CompileEscaped(text, markup.FromEntities(entities))
		extracted, err := delivery.Extract(domain.ExtractRequest{Text: text, Entities: entities})
		out.Found = extracted.Found
		out.Metadata = extracted.Payload
		if err != nil {
			s.logger.Warn("inbound metadata malformed",
				zap.Int64("update_id", update.UpdateID),
				zap.Error(err),
			)
		}
	}

	if update.CallbackQuery != nil {
		out.Answered = s.answerCallback(r, update.CallbackQuery.ID)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) answerCallback(r *http.Request, callbackID string) bool {
	cfg, err := s.delivery.ChannelConfig(telegramChannelName)
	if err != nil {
		s.logger.Error("telegram config read failed", zap.Error(err))
		return false
	}
	if token, _ := cfg["bot_token"].(string); strings.TrimSpace(token) == "" {
		return false
	}
	if err := s.telegram.Client(cfg).AnswerCallbackQuery(r.Context(), callbackID, "", false); err != nil {
		s.logger.Error("answer callback query failed", zap.String("callback_query_id", callbackID), zap.Error(err))
		return false
	}
	return true
}

// setTelegramCommands replaces the bot command menu using the stored
// telegram channel config.
func (s *Server) setTelegramCommands(w http.ResponseWriter, r *http.Request) {
	var req domain.TelegramCommands
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid_json", "invalid request body", nil)
		return
	}
	for _, cmd := range req.Commands {
		if strings.TrimSpace(cmd.Command) == "" || strings.TrimSpace(cmd.Description) == "" {
			writeErr(w, http.StatusBadRequest, "invalid_command", "command and description are required", nil)
			return
		}
	}
	cfg, err := s.delivery.ChannelConfig(telegramChannelName)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, "store_error", err.Error(), nil)
		return
	}
	if err := s.telegram.Client(cfg).SetMyCommands(r.Context(), req); err != nil {
		s.logger.Error("set telegram commands failed", zap.Error(err))
		writeDeliveryErr(w, &delivery.ChannelError{Channel: telegramChannelName, Err: err})
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"commands": len(req.Commands)})
}

func writeDeliveryErr(w http.ResponseWriter, err error) {
	if validation := (*delivery.ValidationError)(nil); errors.As(err, &validation) {
		writeErr(w, http.StatusBadRequest, validation.Code, validation.Message, nil)
		return
	}
	switch {
	case errors.Is(err, delivery.ErrChannelNotFound):
		writeErr(w, http.StatusNotFound, "channel_not_found", "channel not found", nil)
		return
	case errors.Is(err, delivery.ErrChannelDisabled):
		writeErr(w, http.StatusConflict, "channel_disabled", "channel is disabled", nil)
		return
	case errors.Is(err, delivery.ErrOperationUnsupported):
		writeErr(w, http.StatusBadRequest, "channel_operation_unsupported", "channel does not support this operation", nil)
		return
	}
	if channelErr := (*delivery.ChannelError)(nil); errors.As(err, &channelErr) {
		writeErr(w, http.StatusBadGateway, "channel_delivery_failed", channelErr.Error(), map[string]string{"channel": channelErr.Channel})
		return
	}
	writeErr(w, http.StatusInternalServerError, "store_error", err.Error(), nil)
}

func writeJSON(w http.ResponseWriter, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(data)
}

func writeErr(w http.ResponseWriter, code int, errCode, message string, details interface{}) {
	writeJSON(w, code, domain.APIErrorBody{Error: domain.APIError{Code: errCode, Message: message, Details: details}})
}
