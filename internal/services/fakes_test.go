package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tbourn/hr-intake-bot/internal/domain"
	"github.com/tbourn/hr-intake-bot/internal/i18n"
	"github.com/tbourn/hr-intake-bot/internal/store"
	"github.com/tbourn/hr-intake-bot/internal/telegram"
)

const staffChat = int64(-1001)

type channelCall struct {
	op      string
	text    string
	msgID   int
	replyTo int
	att     domain.Attachment
}

type fakeChannel struct {
	mu      sync.Mutex
	calls   []channelCall
	nextID  int
	postErr error
	editErr error
	mediaFn func(domain.Attachment) error
}

func (f *fakeChannel) SendMessage(_ context.Context, chatID int64, text string, _ telegram.SendOptions) (telegram.Sent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, channelCall{op: "send", text: text})
	if f.postErr != nil {
		return telegram.Sent{}, f.postErr
	}
	f.nextID++
	return telegram.Sent{MessageID: 100 + f.nextID, Date: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)}, nil
}

func (f *fakeChannel) SendMedia(_ context.Context, _ int64, a domain.Attachment, replyTo int) (telegram.Sent, error) {
	var err error
	if f.mediaFn != nil {
		err = f.mediaFn(a)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, channelCall{op: "media", att: a, replyTo: replyTo})
	return telegram.Sent{}, err
}

func (f *fakeChannel) EditMessageText(_ context.Context, _ int64, messageID int, text, _ string, _ any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, channelCall{op: "edit", text: text, msgID: messageID})
	return f.editErr
}

func (f *fakeChannel) ops(op string) []channelCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []channelCall
	for _, c := range f.calls {
		if c.op == op {
			out = append(out, c)
		}
	}
	return out
}

type bridgeCall struct {
	op      string
	ref     domain.CaseRef
	text    string
	ownerID int64
}

type fakeBridge struct {
	mu        sync.Mutex
	mode      domain.BackendMode
	calls     []bridgeCall
	createOK  bool
	commentOK bool
	panicOn   string
}

func newFakeBridge(mode domain.BackendMode) *fakeBridge {
	return &fakeBridge{mode: mode, createOK: true, commentOK: true}
}

func (b *fakeBridge) Mode() domain.BackendMode { return b.mode }

func (b *fakeBridge) record(c bridgeCall) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, c)
	if b.panicOn == c.op {
		panic("bridge exploded")
	}
}

func (b *fakeBridge) CreateCase(_ context.Context, title, _ string, ownerID int64) (domain.CaseRef, bool) {
	b.record(bridgeCall{op: "create", text: title, ownerID: ownerID})
	if !b.createOK {
		return domain.CaseRef{}, false
	}
	if b.mode == domain.ModeCRM {
		return domain.CRMItemRef(555), true
	}
	return domain.TaskRef(777), true
}

func (b *fakeBridge) Comment(_ context.Context, ref domain.CaseRef, text string) bool {
	b.record(bridgeCall{op: "comment", ref: ref, text: text})
	return b.commentOK
}

func (b *fakeBridge) Close(_ context.Context, ref domain.CaseRef, comment string) bool {
	b.record(bridgeCall{op: "close", ref: ref, text: comment})
	return b.commentOK
}

func (b *fakeBridge) ops() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.calls))
	for i, c := range b.calls {
		out[i] = c.op
	}
	return out
}

type fixture struct {
	store  *store.Store
	ch     *fakeChannel
	bridge *fakeBridge
	cat    *i18n.Catalog
	sub    *SubmissionService
	status *StatusService
	report *ReportService
}

func newFixture(t *testing.T, mode domain.BackendMode) *fixture {
	t.Helper()
	st := store.New(store.Options{Prefix: "HR", HistoryCapacity: 50, Now: func() time.Time {
		return time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	}})
	ch := &fakeChannel{}
	br := newFakeBridge(mode)
	cat := i18n.Default()
	return &fixture{
		store:  st,
		ch:     ch,
		bridge: br,
		cat:    cat,
		sub: &SubmissionService{
			Store: st, Bridge: br, Channel: ch, Catalog: cat,
			StaffChatID: staffChat, ResponsibleID: 42, StaffLang: domain.LangRU,
		},
		status: &StatusService{
			Store: st, Bridge: br, Channel: ch, Catalog: cat,
			StaffChatID: staffChat, StaffLang: domain.LangRU,
		},
		report: &ReportService{Store: st, Catalog: cat, Lang: domain.LangRU},
	}
}

func sampleDraft(cat *i18n.Catalog) domain.Draft {
	return domain.Draft{
		Language: domain.LangRU,
		Consent:  true,
		Name:     "Иван Иванов",
		Phone:    "+998901234567",
		Category: cat.Categories(domain.LangRU)[0],
		Text:     "Задержка зарплаты 2м",
	}
}

var errBoom = errors.New("boom")
