// Package scrapelog keeps a bounded, in-order record of scrape lifecycle
// events and summarises the most recent session for debugging.
package scrapelog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jmylchreest/harvest/internal/logger"
	"github.com/jmylchreest/harvest/pkg/store"
)

// Event is a scrape lifecycle event.
type Event string

const (
	EventStart   Event = "start"
	EventSuccess Event = "success"
	EventRetry   Event = "retry"
	EventFailed  Event = "failed"
	EventCached  Event = "cached"
)

// Events lists every event in report order.
var Events = []Event{EventStart, EventSuccess, EventRetry, EventFailed, EventCached}

// CategorySystem marks entries about a whole scrape run rather than one category.
const CategorySystem = "system"

// Defaults for log sizing and persistence.
const (
	DefaultMaxEntries = 500
	fallbackWindow    = 50
	StoreKey          = "scrape_logs"
	unknownError      = "Unknown error"
)

// Details carries free-form event data.
type Details map[string]any

// Entry is one logged event.
type Entry struct {
	Timestamp time.Time `json:"timestamp"`
	Category  string    `json:"category"`
	Event     Event     `json:"event"`
	Details   Details   `json:"details"`
}

// CategoryReport lists a category's events in order.
type CategoryReport struct {
	Events     []Event `json:"events"`
	LastStatus Event   `json:"lastStatus"`
}

// ErrorEntry is an error surfaced by the report.
type ErrorEntry struct {
	Category  string    `json:"category"`
	Error     string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
}

// Report summarises the most recent session.
type Report struct {
	TotalLogs  int                        `json:"totalLogs"`
	ByCategory map[string]*CategoryReport `json:"byCategory"`
	ByEvent    map[Event]int              `json:"byEvent"`
	Errors     []ErrorEntry               `json:"errors"`
}

// ExportDoc is the document written by Export and WriteFile.
type ExportDoc struct {
	ExportedAt time.Time `json:"exportedAt"`
	Logs       []Entry   `json:"logs"`
	Report     Report    `json:"report"`
}

// Log is a ring buffer of entries. It is safe for concurrent use.
type Log struct {
	mu         sync.Mutex
	entries    []Entry
	maxEntries int
	store      store.Store
	now        func() time.Time
}

// Option configures a Log.
type Option func(*Log)

// WithMaxEntries bounds the buffer (default 500).
func WithMaxEntries(n int) Option {
	return func(l *Log) {
		if n > 0 {
			l.maxEntries = n
		}
	}
}

// WithStore lets Load and Save persist the buffer.
func WithStore(st store.Store) Option {
	return func(l *Log) {
		l.store = st
	}
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(l *Log) {
		l.now = now
	}
}

// New creates an empty log.
func New(opts ...Option) *Log {
	l := &Log{
		maxEntries: DefaultMaxEntries,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Log appends an event. A system start opens a new session and is tagged
// with a session id.
func (l *Log) Log(category string, event Event, details Details) Entry {
	if details == nil {
		details = Details{}
	}
	if category == CategorySystem && event == EventStart {
		if _, ok := details["session"]; !ok {
			details["session"] = uuid.NewString()
		}
	}

	l.mu.Lock()
	entry := Entry{
		Timestamp: l.now().UTC(),
		Category:  category,
		Event:     event,
		Details:   details,
	}
	l.entries = append(l.entries, entry)
	if over := len(l.entries) - l.maxEntries; over > 0 {
		l.entries = append([]Entry(nil), l.entries[over:]...)
	}
	l.mu.Unlock()

	level := slog.LevelDebug
	if event == EventFailed {
		level = slog.LevelWarn
	}
	logger.Log(context.Background(), level, "scrape event", "category", category, "event", string(event), "details", map[string]any(details))

	return entry
}

// Len returns the number of buffered entries.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Entries returns a copy of every buffered entry, oldest first.
func (l *Log) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Entry(nil), l.entries...)
}

// Recent returns the current session: everything from the latest system
// start onward, or the last 50 entries when no session has started.
func (l *Log) Recent() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.recentLocked()
}

func (l *Log) recentLocked() []Entry {
	for i := len(l.entries) - 1; i >= 0; i-- {
		if l.entries[i].Category == CategorySystem && l.entries[i].Event == EventStart {
			return append([]Entry(nil), l.entries[i:]...)
		}
	}
	start := max(len(l.entries)-fallbackWindow, 0)
	return append([]Entry(nil), l.entries[start:]...)
}

// Report summarises the current session.
func (l *Log) Report() Report {
	l.mu.Lock()
	recent := l.recentLocked()
	l.mu.Unlock()
	return buildReport(recent)
}

func buildReport(entries []Entry) Report {
	report := Report{
		TotalLogs:  len(entries),
		ByCategory: make(map[string]*CategoryReport),
		ByEvent:    make(map[Event]int, len(Events)),
		Errors:     []ErrorEntry{},
	}
	for _, e := range Events {
		report.ByEvent[e] = 0
	}

	for _, entry := range entries {
		if _, known := report.ByEvent[entry.Event]; known {
			report.ByEvent[entry.Event]++
		}

		cat, ok := report.ByCategory[entry.Category]
		if !ok {
			cat = &CategoryReport{}
			report.ByCategory[entry.Category] = cat
		}
		cat.Events = append(cat.Events, entry.Event)
		cat.LastStatus = entry.Event

		errText, hasError := detailText(entry.Details, "error")
		if entry.Event == EventFailed || hasError {
			if !hasError {
				if msg, ok := detailText(entry.Details, "message"); ok {
					errText = msg
				} else {
					errText = unknownError
				}
			}
			report.Errors = append(report.Errors, ErrorEntry{
				Category:  entry.Category,
				Error:     errText,
				Timestamp: entry.Timestamp,
			})
		}
	}

	return report
}

// detailText returns details[key] as text when it is present and non-empty.
func detailText(details Details, key string) (string, bool) {
	v, ok := details[key]
	if !ok || v == nil {
		return "", false
	}
	var s string
	switch t := v.(type) {
	case string:
		s = t
	case error:
		s = t.Error()
	default:
		s = fmt.Sprint(t)
	}
	return s, s != ""
}

// Export renders every buffered entry plus the session report as indented JSON.
func (l *Log) Export() ([]byte, error) {
	l.mu.Lock()
	doc := ExportDoc{
		ExportedAt: l.now().UTC(),
		Logs:       append([]Entry{}, l.entries...),
		Report:     buildReport(l.recentLocked()),
	}
	l.mu.Unlock()

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode scrape logs: %w", err)
	}
	return data, nil
}

// Filename returns the export file name for the current date.
func (l *Log) Filename() string {
	return fmt.Sprintf("scrape-logs-%s.json", l.now().UTC().Format(time.DateOnly))
}

// WriteFile writes Export into dir and returns the file path.
func (l *Log) WriteFile(dir string) (string, error) {
	data, err := l.Export()
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, l.Filename())
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("failed to write scrape logs: %w", err)
	}
	return path, nil
}

// Clear drops every entry.
func (l *Log) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = nil
}

// Load replaces the buffer with the persisted one, if any.
func (l *Log) Load() error {
	if l.store == nil {
		return nil
	}
	var entries []Entry
	found, err := l.store.Get(StoreKey, &entries)
	if err != nil {
		return fmt.Errorf("failed to load scrape logs: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if !found {
		l.entries = nil
		return nil
	}
	if over := len(entries) - l.maxEntries; over > 0 {
		entries = entries[over:]
	}
	l.entries = entries
	return nil
}

// Save persists the buffer.
func (l *Log) Save() error {
	if l.store == nil {
		return nil
	}
	if err := l.store.Set(StoreKey, l.Entries()); err != nil {
		return fmt.Errorf("failed to save scrape logs: %w", err)
	}
	return nil
}
