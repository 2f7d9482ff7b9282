package channel

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"telegate/internal/domain"
)

type capturedCall struct {
	Path string
	Body map[string]interface{}
}

func newTelegramStub(t *testing.T, reply func(method string) string) (*httptest.Server, func() []capturedCall) {
	t.Helper()
	var mu sync.Mutex
	calls := make([]capturedCall, 0)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		body := map[string]interface{}{}
		_ = json.Unmarshal(raw, &body)
		mu.Lock()
		calls = append(calls, capturedCall{Path: r.URL.Path, Body: body})
		mu.Unlock()
		method := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, reply(method))
	}))
	t.Cleanup(srv.Close)
	return srv, func() []capturedCall {
		mu.Lock()
		defer mu.Unlock()
		return append([]capturedCall(nil), calls...)
	}
}

func TestTelegramChannelSendTextPostsHTML(t *testing.T) {
	srv, calls := newTelegramStub(t, func(string) string {
		return `{"ok":true,"result":{"message_id":77,"chat":{"id":42}}}`
	})

	ch := NewTelegramChannel(srv.Client(), nil)
	err := ch.SendText(context.Background(), "ignored", "s1", "<b>hi</b>", map[string]interface{}{
		"bot_token": "123:abc",
		"chat_id":   float64(42),
		"api_base":  srv.URL,
	})
	if err != nil {
		t.Fatalf("SendText returned error: %v", err)
	}

	got := calls()
	if len(got) != 1 {
		t.Fatalf("expected one api call, got=%d", len(got))
	}
	if got[0].Path != "/bot123:abc/sendMessage" {
		t.Fatalf("unexpected path: %s", got[0].Path)
	}
	if got[0].Body["chat_id"] != "42" {
		t.Fatalf("expected chat_id 42, got=%v", got[0].Body["chat_id"])
	}
	if got[0].Body["text"] != "<b>hi</b>" {
		t.Fatalf("unexpected text: %v", got[0].Body["text"])
	}
	if got[0].Body["parse_mode"] != "HTML" {
		t.Fatalf("expected HTML parse mode, got=%v", got[0].Body["parse_mode"])
	}
	if got[0].Body["allow_sending_without_reply"] != true {
		t.Fatalf("expected allow_sending_without_reply=true")
	}
}

func TestTelegramChannelFallsBackToUserID(t *testing.T) {
	srv, calls := newTelegramStub(t, func(string) string {
		return `{"ok":true,"result":{"message_id":1,"chat":{"id":9}}}`
	})

	ch := NewTelegramChannel(srv.Client(), nil)
	if err := ch.SendText(context.Background(), "9", "s1", "hi", map[string]interface{}{
		"bot_token": "t",
		"api_base":  srv.URL,
	}); err != nil {
		t.Fatalf("SendText returned error: %v", err)
	}
	if got := calls()[0].Body["chat_id"]; got != "9" {
		t.Fatalf("expected chat_id from user id, got=%v", got)
	}
}

func TestTelegramChannelRequiresTokenAndChat(t *testing.T) {
	ch := NewTelegramChannel(nil, nil)
	err := ch.SendText(context.Background(), "1", "s1", "hi", map[string]interface{}{})
	if !errors.Is(err, ErrTelegramTokenMissing) {
		t.Fatalf("expected token error, got=%v", err)
	}
	err = ch.SendText(context.Background(), "", "s1", "hi", map[string]interface{}{"bot_token": "t"})
	if !errors.Is(err, ErrTelegramChatMissing) {
		t.Fatalf("expected chat error, got=%v", err)
	}
}

func TestTelegramClientSurfacesAPIError(t *testing.T) {
	srv, _ := newTelegramStub(t, func(string) string {
		return `{"ok":false,"error_code":400,"description":"Bad Request: message to edit not found"}`
	})
	core, logs := observer.New(zapcore.ErrorLevel)

	client := NewClient(srv.URL, "t", srv.Client(), zap.New(core))
	_, err := client.EditMessageText(context.Background(), "1", 5, "x", MessageOptions{})

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got=%v", err)
	}
	if apiErr.Code != 400 || apiErr.Method != "editMessageText" {
		t.Fatalf("unexpected api error: %+v", apiErr)
	}
	if logs.Len() != 1 {
		t.Fatalf("expected rejection to be logged, got=%d entries", logs.Len())
	}
}

func TestTelegramClientDeleteAndAnswer(t *testing.T) {
	srv, calls := newTelegramStub(t, func(string) string {
		return `{"ok":true,"result":true}`
	})
	client := NewClient(srv.URL+"/", "t", srv.Client(), nil)

	if err := client.DeleteMessage(context.Background(), "1", 5); err != nil {
		t.Fatalf("DeleteMessage returned error: %v", err)
	}
	if err := client.AnswerCallbackQuery(context.Background(), "cb-1", "done", true); err != nil {
		t.Fatalf("AnswerCallbackQuery returned error: %v", err)
	}

	got := calls()
	if len(got) != 2 {
		t.Fatalf("expected two calls, got=%d", len(got))
	}
	if got[0].Path != "/bott/deleteMessage" || got[1].Path != "/bott/answerCallbackQuery" {
		t.Fatalf("unexpected paths: %s %s", got[0].Path, got[1].Path)
	}
	if got[1].Body["callback_query_id"] != "cb-1" || got[1].Body["show_alert"] != true {
		t.Fatalf("unexpected answer body: %v", got[1].Body)
	}
}

func TestTelegramClientInvalidResponseBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = io.WriteString(w, "<html>bad gateway</html>")
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "t", srv.Client(), nil).SendMessage(context.Background(), "1", "x", MessageOptions{})
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Code != http.StatusBadGateway {
		t.Fatalf("expected APIError with status, got=%v", err)
	}
}

func TestWebhookChannelPostsPayload(t *testing.T) {
	var received map[string]interface{}
	var header string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header = r.Header.Get("X-Token")
		_ = json.NewDecoder(r.Body).Decode(&received)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	ch := NewWebhookChannel(srv.Client(), nil)
	err := ch.SendText(context.Background(), "u1", "s1", "<b>x</b>", map[string]interface{}{
		"url":     srv.URL,
		"headers": map[string]interface{}{"X-Token": "abc"},
	})
	if err != nil {
		t.Fatalf("SendText returned error: %v", err)
	}
	if header != "abc" {
		t.Fatalf("expected custom header, got=%q", header)
	}
	if received["text"] != "<b>x</b>" || received["user_id"] != "u1" || received["session_id"] != "s1" {
		t.Fatalf("unexpected payload: %v", received)
	}
}

func TestWebhookChannelRejectsMissingURLAndBadStatus(t *testing.T) {
	ch := NewWebhookChannel(nil, nil)
	if err := ch.SendText(context.Background(), "u", "s", "x", map[string]interface{}{}); err == nil {
		t.Fatalf("expected missing url error")
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()
	err := NewWebhookChannel(srv.Client(), nil).SendText(context.Background(), "u", "s", "x", map[string]interface{}{"url": srv.URL})
	if err == nil || !strings.Contains(err.Error(), "500") {
		t.Fatalf("expected status error, got=%v", err)
	}
}

func TestTelegramChannelPostReturnsMessageIDAndReplyOptions(t *testing.T) {
	srv, calls := newTelegramStub(t, func(string) string {
		return `{"ok":true,"result":{"message_id":31,"chat":{"id":7}}}`
	})
	ch := NewTelegramChannel(srv.Client(), nil)
	cfg := map[string]interface{}{"bot_token": "t", "api_base": srv.URL, "parse_mode": "MarkdownV2"}

	keyboard := map[string]interface{}{"inline_keyboard": []interface{}{}}
	id, err := ch.Post(context.Background(), "7", Post{
		Text:    "hi",
		Options: MessageOptions{ReplyToMessageID: 12, ReplyMarkup: keyboard},
	}, cfg)
	if err != nil {
		t.Fatalf("Post returned error: %v", err)
	}
	if id != 31 {
		t.Fatalf("expected message id 31, got=%d", id)
	}
	body := calls()[0].Body
	if body["reply_to_message_id"] != float64(12) {
		t.Fatalf("expected reply_to_message_id=12, got=%v", body["reply_to_message_id"])
	}
	if _, ok := body["reply_markup"].(map[string]interface{}); !ok {
		t.Fatalf("expected reply_markup object, got=%v", body["reply_markup"])
	}
	if body["parse_mode"] != "MarkdownV2" {
		t.Fatalf("expected configured parse mode, got=%v", body["parse_mode"])
	}
}

func TestTelegramChannelPostMediaUsesCaption(t *testing.T) {
	srv, calls := newTelegramStub(t, func(string) string {
		return `{"ok":true,"result":{"message_id":2,"chat":{"id":7}}}`
	})
	ch := NewTelegramChannel(srv.Client(), nil)
	cfg := map[string]interface{}{"bot_token": "t", "api_base": srv.URL}

	if _, err := ch.Post(context.Background(), "7", Post{Text: "<b>pic</b>", Photo: "file-1"}, cfg); err != nil {
		t.Fatalf("photo Post returned error: %v", err)
	}
	if _, err := ch.Post(context.Background(), "7", Post{Text: "doc", Document: "https://example.com/a.pdf"}, cfg); err != nil {
		t.Fatalf("document Post returned error: %v", err)
	}

	got := calls()
	if len(got) != 2 {
		t.Fatalf("expected two api calls, got=%d", len(got))
	}
	if got[0].Path != "/bott/sendPhoto" || got[0].Body["photo"] != "file-1" || got[0].Body["caption"] != "<b>pic</b>" {
		t.Fatalf("unexpected photo call: %+v", got[0])
	}
	if got[0].Body["parse_mode"] != "HTML" {
		t.Fatalf("expected HTML caption, got=%v", got[0].Body["parse_mode"])
	}
	if got[1].Path != "/bott/sendDocument" || got[1].Body["document"] != "https://example.com/a.pdf" {
		t.Fatalf("unexpected document call: %+v", got[1])
	}
	if _, ok := got[1].Body["photo"]; ok {
		t.Fatalf("document call should not carry photo")
	}
}

func TestTelegramChannelEditTextAndCaption(t *testing.T) {
	srv, calls := newTelegramStub(t, func(string) string {
		return `{"ok":true,"result":{"message_id":5,"chat":{"id":7}}}`
	})
	ch := NewTelegramChannel(srv.Client(), nil)
	cfg := map[string]interface{}{"bot_token": "t", "api_base": srv.URL, "chat_id": "7"}

	if err := ch.Edit(context.Background(), "", 5, Post{Text: "new"}, cfg); err != nil {
		t.Fatalf("Edit returned error: %v", err)
	}
	if err := ch.Edit(context.Background(), "", 5, Post{Text: "cap", Caption: true}, cfg); err != nil {
		t.Fatalf("caption Edit returned error: %v", err)
	}

	got := calls()
	if got[0].Path != "/bott/editMessageText" || got[0].Body["text"] != "new" || got[0].Body["message_id"] != float64(5) {
		t.Fatalf("unexpected text edit: %+v", got[0])
	}
	if got[1].Path != "/bott/editMessageCaption" || got[1].Body["caption"] != "cap" || got[1].Body["chat_id"] != "7" {
		t.Fatalf("unexpected caption edit: %+v", got[1])
	}
}

func TestTelegramChannelDelete(t *testing.T) {
	srv, calls := newTelegramStub(t, func(string) string {
		return `{"ok":true,"result":true}`
	})
	ch := NewTelegramChannel(srv.Client(), nil)

	if err := ch.Delete(context.Background(), "9", 44, map[string]interface{}{"bot_token": "t", "api_base": srv.URL}); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	got := calls()[0]
	if got.Path != "/bott/deleteMessage" || got.Body["chat_id"] != "9" || got.Body["message_id"] != float64(44) {
		t.Fatalf("unexpected delete call: %+v", got)
	}
	if err := ch.Delete(context.Background(), "", 44, map[string]interface{}{"bot_token": "t"}); !errors.Is(err, ErrTelegramChatMissing) {
		t.Fatalf("expected chat error, got=%v", err)
	}
}

func TestTelegramClientSetMyCommands(t *testing.T) {
	srv, calls := newTelegramStub(t, func(string) string {
		return `{"ok":true,"result":true}`
	})
	client := NewClient(srv.URL, "t", srv.Client(), nil)

	err := client.SetMyCommands(context.Background(), domain.TelegramCommands{
		Commands: []domain.TelegramBotCommand{{Command: "start", Description: "Begin"}},
		Scope:    map[string]interface{}{"type": "all_private_chats"},
	})
	if err != nil {
		t.Fatalf("SetMyCommands returned error: %v", err)
	}
	got := calls()[0]
	if got.Path != "/bott/setMyCommands" {
		t.Fatalf("unexpected path: %s", got.Path)
	}
	commands, _ := got.Body["commands"].([]interface{})
	if len(commands) != 1 || commands[0].(map[string]interface{})["command"] != "start" {
		t.Fatalf("unexpected commands: %v", got.Body["commands"])
	}
	if _, ok := got.Body["language_code"]; ok {
		t.Fatalf("empty language_code should be omitted")
	}

	if err := client.SetMyCommands(context.Background(), domain.TelegramCommands{}); err != nil {
		t.Fatalf("clearing commands returned error: %v", err)
	}
	if cleared, ok := calls()[1].Body["commands"].([]interface{}); !ok || len(cleared) != 0 {
		t.Fatalf("expected empty commands array, got=%v", calls()[1].Body["commands"])
	}
}

func TestPostHasExtras(t *testing.T) {
	if (Post{Text: "x"}).HasExtras() {
		t.Fatalf("plain text should not need extras")
	}
	for _, p := range []Post{
		{Photo: "p"},
		{Document: "d"},
		{Options: MessageOptions{ReplyToMessageID: 1}},
		{Options: MessageOptions{ReplyMarkup: map[string]interface{}{}}},
	} {
		if !p.HasExtras() {
			t.Fatalf("expected extras for %+v", p)
		}
	}
}
