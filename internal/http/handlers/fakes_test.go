package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/hr-intake-bot/internal/domain"
	"github.com/tbourn/hr-intake-bot/internal/repo"
	"github.com/tbourn/hr-intake-bot/internal/services"
	"github.com/tbourn/hr-intake-bot/internal/telegram"
)

type fakeDispatcher struct {
	mu  sync.Mutex
	got []telegram.Update
	err error
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, u telegram.Update) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, u)
	return f.err
}

type fakeReports struct {
	history   []domain.HistoryRecord
	cards     map[domain.ExternalID]domain.CardIndexEntry
	exportErr error
}

func (f *fakeReports) Stats(context.Context) services.Stats {
	return services.Stats{Window: len(f.history), New: len(f.history)}
}

func (f *fakeReports) History(context.Context) []domain.HistoryRecord {
	out := make([]domain.HistoryRecord, len(f.history))
	for i := range f.history {
		out[len(out)-1-i] = f.history[i]
	}
	return out
}

func (f *fakeReports) Card(_ context.Context, id domain.ExternalID) (domain.CardIndexEntry, error) {
	e, ok := f.cards[id]
	if !ok {
		return domain.CardIndexEntry{}, services.ErrNotFound
	}
	return e, nil
}

func (f *fakeReports) ExportCSV(_ context.Context, w io.Writer) (int, error) {
	if f.exportErr != nil {
		return 0, f.exportErr
	}
	lines := []string{"id;status"}
	for _, r := range f.history {
		lines = append(lines, string(r.ID)+";"+r.StatusLabel)
	}
	_, err := io.WriteString(w, strings.Join(lines, "\n")+"\n")
	return len(f.history), err
}

type fakeUpdateLog struct {
	counts []repo.KindCount
	err    error
}

func (f *fakeUpdateLog) Counts(context.Context) ([]repo.KindCount, error) { return f.counts, f.err }

var errBoom = errors.New("boom")

func seededReports(n int) *fakeReports {
	f := &fakeReports{cards: map[domain.ExternalID]domain.CardIndexEntry{}}
	for i := 1; i <= n; i++ {
		id := domain.ExternalID(fmt.Sprintf("HR-2026-%06d", i))
		f.history = append(f.history, domain.HistoryRecord{ID: id, StatusLabel: "Новая", Date: time.Date(2026, 5, i, 9, 0, 0, 0, time.UTC)})
	}
	return f
}

func newRouter(h *Handlers) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/telegram/webhook", h.Webhook)
	r.GET("/ops/stats", h.Stats)
	r.GET("/ops/cards/:id", h.Card)
	r.GET("/ops/history", h.History)
	r.GET("/ops/export.csv", h.Export)
	return r
}
