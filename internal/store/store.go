// Package store implements the process-wide submission store: the external id
// counter, the bounded history log, and the card index.
//
// All state lives in memory for the lifetime of the process. A restart resets
// the counter, so ids are unique only within one process. Every method is
// safe for concurrent use; the counter increment and the history
// scan-and-rewrite run under the same mutex so neither duplicates ids nor
// loses status updates.
package store

import (
	"errors"
	"sync"
	"time"

	"github.com/tbourn/hr-intake-bot/internal/domain"
	"github.com/tbourn/hr-intake-bot/internal/format"
)

// ErrNotFound is returned when an external id has no card index entry.
var ErrNotFound = errors.New("store: external id not found")

// DefaultHistoryCapacity mirrors the default export lookback.
const DefaultHistoryCapacity = 200

// Options configures a Store.
type Options struct {
	// Prefix is the external id prefix (e.g. "HR").
	Prefix string
	// HistoryCapacity bounds the history ring buffer; <= 0 uses DefaultHistoryCapacity.
	HistoryCapacity int
	// IndexCapacity bounds the card index (oldest entry evicted first);
	// 0 keeps every entry for the process lifetime.
	IndexCapacity int
	// Now overrides the clock used for the id year (tests).
	Now func() time.Time
}

// Store is the single owned store shared by the conversation and the
// status synchronizer.
type Store struct {
	mu      sync.Mutex
	prefix  string
	now     func() time.Time
	seq     uint64
	history *ring
	index   map[domain.ExternalID]*domain.CardIndexEntry
	order   []domain.ExternalID // insertion order, only tracked when bounded
	idxCap  int
}

// New constructs an empty Store.
func New(opts Options) *Store {
	capacity := opts.HistoryCapacity
	if capacity <= 0 {
		capacity = DefaultHistoryCapacity
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	idxCap := opts.IndexCapacity
	if idxCap < 0 {
		idxCap = 0
	}
	return &Store{
		prefix:  opts.Prefix,
		now:     now,
		history: newRing(capacity),
		index:   make(map[domain.ExternalID]*domain.CardIndexEntry),
		idxCap:  idxCap,
	}
}

// NextExternalID increments the counter and formats a new id with the current
// UTC year.
func (s *Store) NextExternalID() domain.ExternalID {
	s.mu.Lock()
	s.seq++
	seq := s.seq
	s.mu.Unlock()
	return format.ExternalID(s.prefix, s.now().UTC().Year(), seq)
}

// Append adds a history record, evicting the oldest one beyond capacity.
func (s *Store) Append(rec domain.HistoryRecord) {
	s.mu.Lock()
	s.history.push(rec)
	s.mu.Unlock()
}

// History returns a snapshot of the history, oldest first.
func (s *Store) History() []domain.HistoryRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history.snapshot()
}

// HistoryCapacity returns the configured lookback.
func (s *Store) HistoryCapacity() int { return s.history.cap() }

// FindHistory scans from newest to oldest for id. An evicted record is
// reported as not found.
func (s *Store) FindHistory(id domain.ExternalID) (domain.HistoryRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec := s.history.findNewest(id); rec != nil {
		return *rec, true
	}
	return domain.HistoryRecord{}, false
}

// Put writes (or overwrites) the card index entry for entry.ID.
func (s *Store) Put(entry domain.CardIndexEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.index[entry.ID]; !exists && s.idxCap > 0 {
		for len(s.order) >= s.idxCap {
			delete(s.index, s.order[0])
			s.order = s.order[1:]
		}
		s.order = append(s.order, entry.ID)
	}
	e := entry
	s.index[entry.ID] = &e
}

// Lookup returns a copy of the card index entry for id.
func (s *Store) Lookup(id domain.ExternalID) (domain.CardIndexEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.index[id]
	if !ok {
		return domain.CardIndexEntry{}, false
	}
	return *e, true
}

// IndexLen reports the number of card index entries.
func (s *Store) IndexLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.index)
}

// StatusUpdate is the change applied by ApplyStatus.
type StatusUpdate struct {
	Status   domain.Status
	Label    string
	CardText string
}

// ApplyStatus updates the index entry and the newest matching history record
// in one critical section. It returns the updated entry and whether a history
// record was still present. ErrNotFound is returned when id is not indexed.
func (s *Store) ApplyStatus(id domain.ExternalID, u StatusUpdate) (domain.CardIndexEntry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.index[id]
	if !ok {
		return domain.CardIndexEntry{}, false, ErrNotFound
	}
	e.Status = u.Status
	e.StatusLabel = u.Label
	if u.CardText != "" {
		e.CardText = u.CardText
	}
	inHistory := false
	if rec := s.history.findNewest(id); rec != nil {
		rec.Status = u.Status
		rec.StatusLabel = u.Label
		inHistory = true
	}
	return *e, inHistory, nil
}
