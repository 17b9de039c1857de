// Package crawlstate holds the mutable bookkeeping shared by the frontier
// walker, the fetch scheduler and the extractor during one crawl run.
package crawlstate

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// VisitLog durably records newly visited URLs so a later run can resume.
type VisitLog interface {
	Append(ctx context.Context, url string) error
}

// State is the per-run crawl state. All methods are safe for concurrent use.
type State struct {
	mu        sync.Mutex
	budget    int
	visited   map[string]struct{}
	emitted   int
	cursors   map[string]int
	lastFetch map[string]time.Time
	log       VisitLog
}

// New creates an empty state. A budget <= 0 disables the item ceiling.
func New(budget int) *State {
	return &State{
		budget:    budget,
		visited:   make(map[string]struct{}),
		cursors:   make(map[string]int),
		lastFetch: make(map[string]time.Time),
	}
}

// SetVisitLog attaches the append-only log fed by Commit.
func (s *State) SetVisitLog(log VisitLog) {
	s.mu.Lock()
	s.log = log
	s.mu.Unlock()
}

// Restore seeds the visited set from a previous run without logging.
func (s *State) Restore(urls []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range urls {
		if u != "" {
			s.visited[u] = struct{}{}
		}
	}
}

// MarkVisited inserts url and reports whether it was new.
func (s *State) MarkVisited(url string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.visited[url]; ok {
		return false
	}
	s.visited[url] = struct{}{}
	return true
}

// Commit appends a finished url to the visit log. Only committed URLs are
// skipped by a resumed run; discovered but unfetched ones are walked again.
func (s *State) Commit(ctx context.Context, url string) {
	s.mu.Lock()
	log := s.log
	s.mu.Unlock()
	if log == nil {
		return
	}
	if err := log.Append(ctx, url); err != nil {
		slog.Warn("checkpoint append failed", slog.String("url", url), slog.Any("error", err))
	}
}

// Visited reports whether url has been seen in this run or a restored one.
func (s *State) Visited(url string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.visited[url]
	return ok
}

// VisitedCount returns the size of the visited set.
func (s *State) VisitedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.visited)
}

// TryEmit reserves one item slot. It returns the new count and false when the
// budget was already reached.
func (s *State) TryEmit() (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.budget > 0 && s.emitted >= s.budget {
		return s.emitted, false
	}
	s.emitted++
	return s.emitted, true
}

// BudgetReached reports whether the item ceiling has been hit.
func (s *State) BudgetReached() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.budget > 0 && s.emitted >= s.budget
}

// ItemsEmitted returns the number of products emitted so far.
func (s *State) ItemsEmitted() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.emitted
}

// Budget returns the configured item ceiling.
func (s *State) Budget() int {
	return s.budget
}

// AdvancePage moves the pagination cursor of key to page. It returns false
// when page is not ahead of the cursor, which means the listing was already
// walked (a pagination cycle).
func (s *State) AdvancePage(key string, page int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if page <= s.cursors[key] {
		return false
	}
	s.cursors[key] = page
	return true
}

// Page returns the last page recorded for key, 0 when none.
func (s *State) Page(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursors[key]
}

// LastFetch returns the time of the last fetch issued to host.
func (s *State) LastFetch(host string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.lastFetch[host]
	return t, ok
}

// RecordFetch stores t as the last fetch time of host.
func (s *State) RecordFetch(host string, t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.lastFetch[host]; !ok || t.After(prev) {
		s.lastFetch[host] = t
	}
}

// ReserveFetch claims the next dispatch slot for host: the later of now and
// the previous slot plus spacing. The slot is recorded before returning so
// concurrent callers queue behind each other.
func (s *State) ReserveFetch(host string, now time.Time, spacing time.Duration) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	slot := now
	if prev, ok := s.lastFetch[host]; ok {
		if next := prev.Add(spacing); next.After(slot) {
			slot = next
		}
	}
	s.lastFetch[host] = slot
	return slot
}
