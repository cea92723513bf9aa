package telegram

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
	"time"

	"github.com/tbourn/hr-intake-bot/internal/domain"
)

type recorded struct {
	method string
	body   map[string]any
	ctype  string
}

func newFakeAPI(t *testing.T, reply func(method string, body map[string]any) string) (*Client, func() []recorded) {
	t.Helper()
	var mu sync.Mutex
	var calls []recorded
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
		if !strings.HasPrefix(r.URL.Path, "/botTOKEN/") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		body := map[string]any{}
		ct := r.Header.Get("Content-Type")
		if strings.HasPrefix(ct, "application/json") {
			raw, _ := io.ReadAll(r.Body)
			_ = json.Unmarshal(raw, &body)
		} else {
			_ = r.ParseMultipartForm(1 << 20)
			for k, v := range r.MultipartForm.Value {
				body[k] = v[0]
			}
			for k := range r.MultipartForm.File {
				body["file:"+k] = r.MultipartForm.File[k][0].Filename
			}
		}
		mu.Lock()
		calls = append(calls, recorded{method: method, body: body, ctype: ct})
		mu.Unlock()
		_, _ = io.WriteString(w, reply(method, body))
	}))
	t.Cleanup(srv.Close)
	get := func() []recorded {
		mu.Lock()
		defer mu.Unlock()
		return append([]recorded(nil), calls...)
	}
	return New(srv.URL, "TOKEN", time.Second), get
}

const okMessage = `{"ok":true,"result":{"message_id":42,"date":1760000000,"chat":{"id":-100}}}`

func TestSendMessage(t *testing.T) {
	c, calls := newFakeAPI(t, func(string, map[string]any) string { return okMessage })
	sent, err := c.SendMessage(context.Background(), -100, "<b>hi</b>", SendOptions{
		ParseMode: ParseHTML,
		Markup:    InlineKeyboard{InlineKeyboard: [][]InlineButton{{{Text: "x", CallbackData: "adm:work:HR-2026-000001"}}}},
	})
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if sent.MessageID != 42 || sent.Date.Unix() != 1760000000 {
		t.Fatalf("sent = %+v", sent)
	}
	got := calls()[0]
	if got.method != "sendMessage" || got.body["parse_mode"] != "HTML" || got.body["text"] != "<b>hi</b>" {
		t.Fatalf("call = %+v", got)
	}
	if _, ok := got.body["reply_markup"].(map[string]any)["inline_keyboard"]; !ok {
		t.Fatalf("reply_markup missing: %+v", got.body)
	}
	if _, ok := got.body["reply_to_message_id"]; ok {
		t.Fatalf("zero reply id must be omitted")
	}
}

func TestSendMedia_UsesKindSpecificMethod(t *testing.T) {
	c, calls := newFakeAPI(t, func(string, map[string]any) string { return okMessage })
	for _, k := range []domain.AttachmentKind{domain.KindPhoto, domain.KindDocument, domain.KindVideo, domain.KindVoice} {
		if _, err := c.SendMedia(context.Background(), -100, domain.Attachment{Kind: k, MediaRef: "F-" + string(k)}, 42); err != nil {
			t.Fatalf("SendMedia(%s): %v", k, err)
		}
	}
	want := []string{"sendPhoto", "sendDocument", "sendVideo", "sendVoice"}
	for i, rc := range calls() {
		if rc.method != want[i] {
			t.Fatalf("call %d = %s; want %s", i, rc.method, want[i])
		}
		if rc.body["reply_to_message_id"] != float64(42) {
			t.Fatalf("reply_to missing: %+v", rc.body)
		}
	}
	if _, err := c.SendMedia(context.Background(), 1, domain.Attachment{Kind: "sticker"}, 0); err == nil {
		t.Fatalf("unsupported kind must fail")
	}
}

func TestAPIErrorsAndNotModified(t *testing.T) {
	c, _ := newFakeAPI(t, func(method string, _ map[string]any) string {
		if method == "editMessageText" {
			return `{"ok":false,"error_code":400,"description":"Bad Request: message is not modified"}`
		}
		return `{"ok":false,"error_code":403,"description":"Forbidden: bot was kicked"}`
	})
	if err := c.EditMessageText(context.Background(), 1, 2, "x", "", nil); !errors.Is(err, ErrNotModified) {
		t.Fatalf("edit err = %v", err)
	}
	_, err := c.SendMessage(context.Background(), 1, "x", SendOptions{})
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Code != 403 || apiErr.Method != "sendMessage" {
		t.Fatalf("err = %v", err)
	}
}

func TestGetUpdates(t *testing.T) {
	c, calls := newFakeAPI(t, func(string, map[string]any) string {
		return `{"ok":true,"result":[
			{"update_id":10,"message":{"message_id":1,"date":1,"chat":{"id":5},"from":{"id":5,"first_name":"A","language_code":"uz"},"text":"/start"}},
			{"update_id":11,"message":{"message_id":2,"date":1,"chat":{"id":5},"photo":[{"file_id":"small"},{"file_id":"big"}]}},
			{"update_id":12,"callback_query":{"id":"cb","from":{"id":9,"first_name":"S"},"data":"adm:close:HR-2026-000001"}}
		]}`
	})
	ups, err := c.GetUpdates(context.Background(), 10, 0)
	if err != nil || len(ups) != 3 {
		t.Fatalf("GetUpdates = %d, %v", len(ups), err)
	}
	if ups[0].Kind() != "text" || ups[1].Kind() != "media" || ups[2].Kind() != "callback" {
		t.Fatalf("kinds = %s %s %s", ups[0].Kind(), ups[1].Kind(), ups[2].Kind())
	}
	a, ok := ups[1].Message.Attachment()
	if !ok || a.Kind != domain.KindPhoto || a.MediaRef != "big" {
		t.Fatalf("photo attachment = %+v", a)
	}
	if calls()[0].body["offset"] != float64(10) {
		t.Fatalf("offset not sent: %+v", calls()[0].body)
	}
}

func TestSendDocumentBytes_Multipart(t *testing.T) {
	c, calls := newFakeAPI(t, func(string, map[string]any) string { return okMessage })
	if _, err := c.SendDocumentBytes(context.Background(), 77, "export.csv", []byte("id;date\n"), "ready"); err != nil {
		t.Fatalf("SendDocumentBytes: %v", err)
	}
	got := calls()[0]
	if !strings.HasPrefix(got.ctype, "multipart/form-data") {
		t.Fatalf("content type = %s", got.ctype)
	}
	if got.body["chat_id"] != "77" || got.body["caption"] != "ready" || got.body["file:document"] != "export.csv" {
		t.Fatalf("form = %+v", got.body)
	}
}

func TestRows(t *testing.T) {
	kb := Rows([]string{"a", "b"}, []string{"c"})
	if !kb.ResizeKeyboard || len(kb.Keyboard) != 2 || kb.Keyboard[0][1].Text != "b" || kb.Keyboard[1][0].Text != "c" {
		t.Fatalf("kb = %+v", kb)
	}
}

func TestSetWebhookAndDeleteWebhook(t *testing.T) {
	c, calls := newFakeAPI(t, func(string, map[string]any) string { return `{"ok":true,"result":true}` })
	if err := c.SetWebhook(context.Background(), "https://bot.example/tg/hook", "s3cret"); err != nil {
		t.Fatalf("SetWebhook: %v", err)
	}
	if err := c.DeleteWebhook(context.Background(), true); err != nil {
		t.Fatalf("DeleteWebhook: %v", err)
	}
	got := calls()
	if len(got) != 2 || got[0].method != "setWebhook" || got[1].method != "deleteWebhook" {
		t.Fatalf("calls = %+v", got)
	}
	if got[0].body["url"] != "https://bot.example/tg/hook" || got[0].body["secret_token"] != "s3cret" {
		t.Fatalf("setWebhook body = %v", got[0].body)
	}
	if got[1].body["drop_pending_updates"] != true {
		t.Fatalf("deleteWebhook body = %v", got[1].body)
	}
}
