package app

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"telegate/internal/domain"
	"telegate/internal/service/delivery"
)

func (s *Server) listChannels(w http.ResponseWriter, _ *http.Request) {
	out, err := s.delivery.ListChannels()
	if err != nil {
		writeErr(w, http.StatusInternalServerError, "store_error", err.Error(), nil)
		return
	}
	writeJSON(w, http.StatusOK, redactChannels(out))
}

func (s *Server) listChannelTypes(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.delivery.ListChannelTypes())
}

func (s *Server) putChannels(w http.ResponseWriter, r *http.Request) {
	var body domain.ChannelConfigMap
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid_json", "invalid request body", nil)
		return
	}
	for name, cfg := range body {
		s.keepMaskedToken(name, cfg)
	}
	out, err := s.delivery.ReplaceChannels(body)
	if err != nil {
		if validation := (*delivery.ValidationError)(nil); errors.As(err, &validation) {
			writeErr(w, http.StatusBadRequest, validation.Code, validation.Message, nil)
			return
		}
		writeErr(w, http.StatusInternalServerError, "store_error", err.Error(), nil)
		return
	}
	writeJSON(w, http.StatusOK, redactChannels(out))
}

func (s *Server) getChannel(w http.ResponseWriter, r *http.Request) {
	out, found, err := s.delivery.GetChannel(chi.URLParam(r, "channel_name"))
	if err != nil {
		writeErr(w, http.StatusInternalServerError, "store_error", err.Error(), nil)
		return
	}
	if !found {
		writeErr(w, http.StatusNotFound, "not_found", "channel not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, redactConfig(out))
}

func (s *Server) putChannel(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "channel_name")
	var body map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid_json", "invalid request body", nil)
		return
	}
	s.keepMaskedToken(name, body)
	if err := s.delivery.PutChannel(name, body); err != nil {
		if validation := (*delivery.ValidationError)(nil); errors.As(err, &validation) {
			writeErr(w, http.StatusBadRequest, validation.Code, validation.Message, nil)
			return
		}
		writeErr(w, http.StatusInternalServerError, "store_error", err.Error(), nil)
		return
	}
	writeJSON(w, http.StatusOK, redactConfig(body))
}

// keepMaskedToken swaps a masked bot token echoed back by a client for the
// stored one.
func (s *Server) keepMaskedToken(name string, cfg map[string]interface{}) {
	token, ok := cfg["bot_token"].(string)
	if !ok || token == "" {
		return
	}
	current, err := s.delivery.ChannelConfig(name)
	if err != nil {
		return
	}
	if stored, _ := current["bot_token"].(string); stored != "" && token == maskKey(stored) {
		cfg["bot_token"] = stored
	}
}

func redactChannels(in domain.ChannelConfigMap) domain.ChannelConfigMap {
	out := domain.ChannelConfigMap{}
	for name, cfg := range in {
		out[name] = redactConfig(cfg)
	}
	return out
}

// redactConfig masks the bot token so it never leaves the gateway in full.
func redactConfig(cfg map[string]interface{}) map[string]interface{} {
	out := map[string]interface{}{}
	for key, value := range cfg {
		out[key] = value
	}
	if token, ok := out["bot_token"].(string); ok && token != "" {
		out["bot_token"] = maskKey(token)
	}
	return out
}

func maskKey(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return "***"
	}
	return s[:4] + "***" + s[len(s)-4:]
}
