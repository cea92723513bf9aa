package bot

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tbourn/hr-intake-bot/internal/telegram"
)

type scriptedUpdater struct {
	mu       sync.Mutex
	deleted  bool
	offsets  []int64
	batches  [][]telegram.Update
	failures int
	cancel   context.CancelFunc
}

func (s *scriptedUpdater) DeleteWebhook(context.Context, bool) error {
	s.deleted = true
	return nil
}

func (s *scriptedUpdater) GetUpdates(ctx context.Context, offset int64, _ time.Duration) ([]telegram.Update, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.offsets = append(s.offsets, offset)
	if s.failures > 0 {
		s.failures--
		return nil, errors.New("bad gateway")
	}
	if len(s.batches) == 0 {
		s.cancel()
		return nil, ctx.Err()
	}
	b := s.batches[0]
	s.batches = s.batches[1:]
	return b, nil
}

type recordingHandler struct {
	mu     sync.Mutex
	byChat map[int64][]int64
	panics bool
}

func (r *recordingHandler) Dispatch(_ context.Context, u telegram.Update) error {
	r.mu.Lock()
	r.byChat[chatOf(u)] = append(r.byChat[chatOf(u)], u.UpdateID)
	r.mu.Unlock()
	if r.panics && u.UpdateID == 3 {
		panic("boom")
	}
	return nil
}

func TestPoller_AdvancesOffsetAndKeepsChatOrder(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	up := &scriptedUpdater{
		cancel:   cancel,
		failures: 1,
		batches: [][]telegram.Update{
			{textUpdate(1, 1, 1, "a"), textUpdate(2, 2, 2, "b"), textUpdate(3, 1, 1, "c")},
			{textUpdate(4, 1, 1, "d"), callbackUpdate(5, adminID, "adm:close:HR-1")},
		},
	}
	h := &recordingHandler{byChat: map[int64][]int64{}, panics: true}
	p := &Poller{API: up, Handler: h, Timeout: time.Second, Backoff: time.Millisecond}

	if err := p.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !up.deleted {
		t.Fatalf("webhook not deleted before polling")
	}
	want := []int64{0, 0, 4, 6}
	if len(up.offsets) != len(want) {
		t.Fatalf("offsets = %v", up.offsets)
	}
	for i := range want {
		if up.offsets[i] != want[i] {
			t.Fatalf("offsets = %v, want %v", up.offsets, want)
		}
	}
	got := h.byChat[1]
	if len(got) != 3 || got[0] != 1 || got[1] != 3 || got[2] != 4 {
		t.Fatalf("chat 1 order = %v", got)
	}
	if len(h.byChat[staffChat]) != 1 {
		t.Fatalf("callback not dispatched: %v", h.byChat)
	}
}

type gatedHandler struct {
	release chan struct{}
	handled chan int64
}

func (g *gatedHandler) Dispatch(_ context.Context, u telegram.Update) error {
	if chatOf(u) == 1 {
		<-g.release
	}
	g.handled <- u.UpdateID
	return nil
}

func TestPoller_SlowChatDoesNotStallOthers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	up := &scriptedUpdater{
		cancel: cancel,
		batches: [][]telegram.Update{
			{textUpdate(1, 1, 1, "slow")},
			{textUpdate(2, 2, 2, "fast")},
		},
	}
	h := &gatedHandler{release: make(chan struct{}), handled: make(chan int64, 2)}
	p := &Poller{API: up, Handler: h, Timeout: time.Second, Backoff: time.Millisecond}

	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	select {
	case id := <-h.handled:
		if id != 2 {
			t.Fatalf("handled %d first, want 2", id)
		}
	case <-time.After(2 * time.Second):
		close(h.release)
		t.Fatalf("chat 2 waited for the blocked chat 1")
	}
	close(h.release)

	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
	if id := <-h.handled; id != 1 {
		t.Fatalf("handled %d, want 1", id)
	}
}

func TestChatOf(t *testing.T) {
	if chatOf(textUpdate(1, 5, 6, "x")) != 6 {
		t.Fatalf("message chat")
	}
	u := telegram.Update{CallbackQuery: &telegram.CallbackQuery{From: telegram.User{ID: 9}}}
	if chatOf(u) != 9 {
		t.Fatalf("callback without message falls back to the sender")
	}
	if chatOf(telegram.Update{}) != 0 {
		t.Fatalf("empty update")
	}
}
