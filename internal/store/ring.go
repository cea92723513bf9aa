package store

import "github.com/tbourn/hr-intake-bot/internal/domain"

// ring is a fixed-capacity FIFO of history records. It is not synchronized;
// Store guards it.
type ring struct {
	buf   []domain.HistoryRecord
	start int // index of the oldest record
	n     int
}

func newRing(capacity int) *ring {
	return &ring{buf: make([]domain.HistoryRecord, capacity)}
}

func (r *ring) cap() int { return len(r.buf) }

func (r *ring) push(rec domain.HistoryRecord) {
	if r.n < len(r.buf) {
		r.buf[(r.start+r.n)%len(r.buf)] = rec
		r.n++
		return
	}
	// full: overwrite the oldest
	r.buf[r.start] = rec
	r.start = (r.start + 1) % len(r.buf)
}

// at returns a pointer to the i-th record, 0 being the oldest.
func (r *ring) at(i int) *domain.HistoryRecord {
	return &r.buf[(r.start+i)%len(r.buf)]
}

func (r *ring) snapshot() []domain.HistoryRecord {
	out := make([]domain.HistoryRecord, r.n)
	for i := 0; i < r.n; i++ {
		out[i] = *r.at(i)
	}
	return out
}

func (r *ring) findNewest(id domain.ExternalID) *domain.HistoryRecord {
	for i := r.n - 1; i >= 0; i-- {
		if rec := r.at(i); rec.ID == id {
			return rec
		}
	}
	return nil
}
