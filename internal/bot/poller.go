package bot

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tbourn/hr-intake-bot/internal/telegram"
)

// Updater is the Bot API surface used by the long-polling loop.
type Updater interface {
	GetUpdates(ctx context.Context, offset int64, poll time.Duration) ([]telegram.Update, error)
	DeleteWebhook(ctx context.Context, dropPending bool) error
}

// Handler processes one update.
type Handler interface {
	Dispatch(ctx context.Context, u telegram.Update) error
}

// Poller pulls updates with getUpdates and hands each one to a worker owned
// by its chat. Updates of one chat are handled in arrival order; chats never
// wait on each other, and the poll loop never waits on a handler.
type Poller struct {
	API     Updater
	Handler Handler

	Timeout time.Duration // long-poll timeout
	Backoff time.Duration // pause after a failed getUpdates

	mu     sync.Mutex
	queues map[int64][]telegram.Update // a key is present while its worker runs
	wg     sync.WaitGroup
}

// Run polls until ctx is cancelled, then waits for running workers. Pending
// updates queued while the bot was down are dropped together with any
// webhook.
func (p *Poller) Run(ctx context.Context) error {
	if err := p.API.DeleteWebhook(ctx, true); err != nil {
		return err
	}
	defer p.wg.Wait()

	backoff := p.Backoff
	if backoff <= 0 {
		backoff = 2 * time.Second
	}

	var offset int64
	for {
		ups, err := p.API.GetUpdates(ctx, offset, p.Timeout)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			log.Warn().Err(err).Msg("getUpdates failed")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoff):
			}
			continue
		}
		for _, u := range ups {
			if u.UpdateID >= offset {
				offset = u.UpdateID + 1
			}
			p.enqueue(ctx, u)
		}
	}
}

func (p *Poller) enqueue(ctx context.Context, u telegram.Update) {
	id := chatOf(u)
	p.mu.Lock()
	if p.queues == nil {
		p.queues = make(map[int64][]telegram.Update)
	}
	q, running := p.queues[id]
	p.queues[id] = append(q, u)
	p.mu.Unlock()
	if running {
		return
	}
	p.wg.Add(1)
	go p.drain(ctx, id)
}

// drain handles the chat's queue until it is empty and then retires.
func (p *Poller) drain(ctx context.Context, id int64) {
	defer p.wg.Done()
	for {
		p.mu.Lock()
		q := p.queues[id]
		if len(q) == 0 {
			delete(p.queues, id)
			p.mu.Unlock()
			return
		}
		u := q[0]
		p.queues[id] = q[1:]
		p.mu.Unlock()
		p.handle(ctx, u)
	}
}

func (p *Poller) handle(ctx context.Context, u telegram.Update) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Int64("update_id", u.UpdateID).Msg("update handler panicked")
		}
	}()
	if err := p.Handler.Dispatch(ctx, u); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Int64("update_id", u.UpdateID).Str("kind", u.Kind()).Msg("update failed")
	}
}

func chatOf(u telegram.Update) int64 {
	switch {
	case u.Message != nil:
		return u.Message.Chat.ID
	case u.CallbackQuery != nil && u.CallbackQuery.Message != nil:
		return u.CallbackQuery.Message.Chat.ID
	case u.CallbackQuery != nil:
		return u.CallbackQuery.From.ID
	}
	return 0
}
