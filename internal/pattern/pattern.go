// Package pattern answers small-talk and FAQ turns from a fixed keyword table
// so they never reach the flow machinery.
package pattern

import (
	"log/slog"
	"regexp"
	"strings"
	"sync"
)

// MinNormalizedLength is the shortest normalized text that is matched at all.
const MinNormalizedLength = 2

var (
	punctuationRe = regexp.MustCompile(`[.,!?;:]`)
	whitespaceRe  = regexp.MustCompile(`\s+`)
)

// Entry is one row of the pattern table. Lower Priority values win.
// Keywords are matched as substrings of the normalized text padded with a
// single space on each side, so a keyword such as " hi " only matches the
// whole word.
type Entry struct {
	Name     string
	Keywords []string
	Reply    string
	Priority int
}

// BusinessInfo fills the replies of the default table.
type BusinessInfo struct {
	Name    string
	Hours   string
	Address string
}

// DefaultEntries returns the built-in table for the given business.
func DefaultEntries(info BusinessInfo) []Entry {
	name := info.Name
	if name == "" {
		name = "our salon"
	}
	hours := info.Hours
	if hours == "" {
		hours = "09:00 - 19:00"
	}
	address := info.Address
	if address == "" {
		address = "our main branch"
	}
	return []Entry{
		{
			Name:     "greeting",
			Keywords: []string{" hi ", " hello ", " hey ", "good morning", "good afternoon", "good evening", " merhaba ", " selam "},
			Reply:    "Hello! Welcome to " + name + ". How can I help you today?",
			Priority: 1,
		},
		{
			Name:     "working_hours",
			Keywords: []string{"working hours", "opening hours", "business hours", "when are you open", "are you open", "what time do you open", "what time do you close"},
			Reply:    "We are open " + hours + ".",
			Priority: 2,
		},
		{
			Name:     "location",
			Keywords: []string{"where are you", "your address", "where is the salon", "how do i get there", "directions"},
			Reply:    "Our address is " + address + ". I can send you directions if you like.",
			Priority: 2,
		},
		{
			Name:     "goodbye",
			Keywords: []string{" bye ", "goodbye", "see you", "have a nice day"},
			Reply:    "Goodbye! We look forward to seeing you.",
			Priority: 3,
		},
		{
			Name:     "thank_you",
			Keywords: []string{"thank you", " thanks ", " thx "},
			Reply:    "You're welcome! Is there anything else I can help you with?",
			Priority: 3,
		},
	}
}

// Normalize lowercases text, replaces punctuation with spaces and collapses whitespace.
func Normalize(text string) string {
	text = strings.ToLower(text)
	text = punctuationRe.ReplaceAllString(text, " ")
	text = whitespaceRe.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// Matcher evaluates text against a pattern table. It is safe for concurrent
// use; Add and Remove replace the table rather than editing it in place.
type Matcher struct {
	mu      sync.RWMutex
	entries []Entry
}

// NewMatcher builds a matcher over the given entries in table order.
func NewMatcher(entries []Entry) *Matcher {
	m := &Matcher{}
	for _, e := range entries {
		m.entries = append(m.entries, normalizeEntry(e))
	}
	return m
}

func normalizeEntry(e Entry) Entry {
	keywords := make([]string, 0, len(e.Keywords))
	for _, k := range e.Keywords {
		lower := strings.ToLower(k)
		if strings.TrimSpace(lower) == "" {
			continue
		}
		keywords = append(keywords, lower)
	}
	e.Keywords = keywords
	return e
}

// Match returns the reply of the best matching entry.
func (m *Matcher) Match(text string) (string, bool) {
	e, ok := m.MatchEntry(text)
	if !ok {
		return "", false
	}
	return e.Reply, true
}

// MatchEntry returns the best matching entry. The lowest priority wins; among
// equal priorities the entry earliest in the table wins.
func (m *Matcher) MatchEntry(text string) (Entry, bool) {
	normalized := Normalize(text)
	if len([]rune(normalized)) < MinNormalizedLength {
		return Entry{}, false
	}
	padded := " " + normalized + " "

	m.mu.RLock()
	entries := m.entries
	m.mu.RUnlock()

	var best Entry
	found := false
	for _, e := range entries {
		if !containsAny(padded, e.Keywords) {
			continue
		}
		if !found || e.Priority < best.Priority {
			best = e
			found = true
		}
	}
	if found {
		slog.Debug("Matcher.MatchEntry: pattern matched", "pattern", best.Name, "priority", best.Priority)
	}
	return best, found
}

func containsAny(text string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(text, k) {
			return true
		}
	}
	return false
}

// Add inserts an entry, replacing an existing entry with the same name in place.
func (m *Matcher) Add(e Entry) {
	e = normalizeEntry(e)
	m.mu.Lock()
	defer m.mu.Unlock()
	next := make([]Entry, 0, len(m.entries)+1)
	replaced := false
	for _, existing := range m.entries {
		if existing.Name == e.Name {
			next = append(next, e)
			replaced = true
			continue
		}
		next = append(next, existing)
	}
	if !replaced {
		next = append(next, e)
	}
	m.entries = next
	slog.Info("Matcher.Add: pattern registered", "pattern", e.Name, "replaced", replaced)
}

// Remove deletes the named entry and reports whether it existed.
func (m *Matcher) Remove(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	next := make([]Entry, 0, len(m.entries))
	removed := false
	for _, existing := range m.entries {
		if existing.Name == name {
			removed = true
			continue
		}
		next = append(next, existing)
	}
	if removed {
		m.entries = next
		slog.Info("Matcher.Remove: pattern removed", "pattern", name)
	}
	return removed
}

// Names returns the entry names in table order.
func (m *Matcher) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, len(m.entries))
	for i, e := range m.entries {
		names[i] = e.Name
	}
	return names
}
