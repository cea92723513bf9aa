// Package services – ReportService
//
// ReportService aggregates the history window for the /stats command and the
// ops API, and writes the `;`-separated CSV export.

package services

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/tbourn/hr-intake-bot/internal/domain"
	"github.com/tbourn/hr-intake-bot/internal/i18n"
	"github.com/tbourn/hr-intake-bot/internal/store"
)

// ExportHeader is the first row of the CSV export.
var ExportHeader = []string{"id", "date", "language", "name", "phone", "category", "status", "text_len", "attachments_count"}

// CategoryCount is one category bucket.
type CategoryCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Stats summarizes the history window. Counts are by stable status, so they
// are correct whatever language a record was localized in.
type Stats struct {
	Window     int             `json:"window"`
	New        int             `json:"new"`
	InWork     int             `json:"in_work"`
	Closed     int             `json:"closed"`
	Categories []CategoryCount `json:"categories"`
}

// ReportService reads the store; it never mutates it.
type ReportService struct {
	Store   *store.Store
	Catalog *i18n.Catalog
	Lang    domain.Language
}

// Stats computes per-status and per-category counts, categories ordered by
// count descending then name.
func (s *ReportService) Stats(_ context.Context) Stats {
	hist := s.Store.History()
	st := Stats{Window: len(hist)}
	byCat := map[string]int{}
	for _, r := range hist {
		switch r.Status {
		case domain.StatusNew:
			st.New++
		case domain.StatusInWork:
			st.InWork++
		case domain.StatusClosed:
			st.Closed++
		}
		if r.Category != "" {
			byCat[r.Category]++
		}
	}
	st.Categories = make([]CategoryCount, 0, len(byCat))
	for k, v := range byCat {
		st.Categories = append(st.Categories, CategoryCount{Name: k, Count: v})
	}
	sort.Slice(st.Categories, func(i, j int) bool {
		a, b := st.Categories[i], st.Categories[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Name < b.Name
	})
	return st
}

// StatsText renders Stats for the staff chat.
func (s *ReportService) StatsText(ctx context.Context) string {
	st := s.Stats(ctx)
	cats := s.Catalog.T("stats_none", s.Lang)
	if len(st.Categories) > 0 {
		parts := make([]string, len(st.Categories))
		for i, c := range st.Categories {
			parts[i] = fmt.Sprintf("%s=%d", c.Name, c.Count)
		}
		cats = strings.Join(parts, ", ")
	}
	return s.Catalog.F("stats_header", s.Lang, i18n.Vars{"n": st.Window}) + "\n" +
		s.Catalog.F("stats_line", s.Lang, i18n.Vars{"new": st.New, "work": st.InWork, "closed": st.Closed, "cats": cats})
}

// Card returns the index entry of id.
func (s *ReportService) Card(_ context.Context, id domain.ExternalID) (domain.CardIndexEntry, error) {
	e, ok := s.Store.Lookup(id)
	if !ok {
		return domain.CardIndexEntry{}, ErrNotFound
	}
	return e, nil
}

// ExportFilename names an export taken at t.
func ExportFilename(t time.Time) string {
	return "export_" + t.UTC().Format("20060102_150405") + ".csv"
}

// History returns the history window, newest first.
func (s *ReportService) History(_ context.Context) []domain.HistoryRecord {
	hist := s.Store.History()
	for i, j := 0, len(hist)-1; i < j; i, j = i+1, j-1 {
		hist[i], hist[j] = hist[j], hist[i]
	}
	return hist
}

// ExportCSV writes the history window, oldest first, and returns the number
// of data rows.
func (s *ReportService) ExportCSV(_ context.Context, w io.Writer) (int, error) {
	hist := s.Store.History()
	cw := csv.NewWriter(w)
	cw.Comma = ';'
	if err := cw.Write(ExportHeader); err != nil {
		return 0, err
	}
	for _, r := range hist {
		if err := cw.Write([]string{
			string(r.ID),
			r.Date.UTC().Format(time.RFC3339),
			string(r.Language),
			r.Name,
			r.Phone,
			r.Category,
			r.StatusLabel,
			strconv.Itoa(r.TextLen),
			strconv.Itoa(r.AttachmentsCount),
		}); err != nil {
			return 0, err
		}
	}
	cw.Flush()
	return len(hist), cw.Error()
}
