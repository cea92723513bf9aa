package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func postUpdate(r http.Handler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/telegram/webhook", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestWebhook_DispatchesUpdate(t *testing.T) {
	d := &fakeDispatcher{}
	r := newRouter(New(d, seededReports(0), nil))

	w := postUpdate(r, `{"update_id":42,"message":{"message_id":7,"from":{"id":5},"chat":{"id":5,"type":"private"},"text":"/start"}}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
	}
	if len(d.got) != 1 || d.got[0].UpdateID != 42 || d.got[0].Message == nil || d.got[0].Message.Text != "/start" {
		t.Fatalf("dispatched = %+v", d.got)
	}
}

func TestWebhook_DispatchErrorStillAcknowledged(t *testing.T) {
	buf := captureLogs(t)
	d := &fakeDispatcher{err: errBoom}
	r := newRouter(New(d, seededReports(0), nil))

	w := postUpdate(r, `{"update_id":43,"callback_query":{"id":"cb","from":{"id":7},"data":"adm:close:HR-1"}}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(buf.String(), "update failed") || !strings.Contains(buf.String(), `"update_id":43`) {
		t.Fatalf("failure not logged: %s", buf.String())
	}
}

func TestWebhook_RejectsBadBodies(t *testing.T) {
	d := &fakeDispatcher{}
	r := newRouter(New(d, seededReports(0), nil))
	for _, body := range []string{`{`, `{"message":{}}`} {
		w := postUpdate(r, body)
		if w.Code != http.StatusBadRequest || decodeError(t, w).Code != ErrCodeBadRequest {
			t.Fatalf("body %q: status = %d", body, w.Code)
		}
	}
	if len(d.got) != 0 {
		t.Fatalf("bad bodies dispatched: %+v", d.got)
	}
}
