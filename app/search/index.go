package search

import (
	"strings"
	"sync"

	"github.com/lysyi3m/newsdeck/app/content"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// Entry holds the normalized searchable text of one item.
type Entry struct {
	ID   string
	Text string
	Item *content.Item
}

// Index answers AND-of-substrings queries over a working set. Build replaces
// the whole index; nothing is merged incrementally.
type Index struct {
	extractor *content.Extractor

	mu      sync.RWMutex
	items   []content.Item
	entries []Entry
	version uint64
}

func NewIndex(extractor *content.Extractor) *Index {
	if extractor == nil {
		extractor = content.NewExtractor()
	}
	return &Index{extractor: extractor}
}

func (i *Index) Build(ws content.WorkingSet) {
	entries := make([]Entry, len(ws.Items))
	for n := range ws.Items {
		item := &ws.Items[n]
		entries[n] = Entry{
			ID:   item.ID,
			Text: i.searchableText(item),
			Item: item,
		}
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	i.items = ws.Items
	i.entries = entries
	i.version = ws.Version
}

// Search returns the indexed items containing every whitespace-separated token
// of query. A blank query returns every indexed item.
func (i *Index) Search(query string) []content.Item {
	i.mu.RLock()
	defer i.mu.RUnlock()

	tokens := Tokenize(query)
	if len(tokens) == 0 {
		return i.items
	}

	results := make([]content.Item, 0)
	for _, entry := range i.entries {
		if matchesAll(entry.Text, tokens) {
			results = append(results, *entry.Item)
		}
	}
	return results
}

func (i *Index) Len() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.entries)
}

// Version reports the working-set version the index was last built from.
func (i *Index) Version() uint64 {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.version
}

// Tokenize splits a query on whitespace and normalizes each token.
func Tokenize(query string) []string {
	fields := strings.Fields(query)
	tokens := make([]string, 0, len(fields))
	for _, field := range fields {
		tokens = append(tokens, Normalize(field))
	}
	return tokens
}

// Normalize composes and lower-cases s so that equivalent spellings compare equal.
func Normalize(s string) string {
	return cases.Lower(language.Und).String(norm.NFC.String(s))
}

func (i *Index) searchableText(item *content.Item) string {
	parts := []string{
		item.Title,
		item.Subtitle,
		i.extractor.PlainText(item.Body),
		item.Author,
		item.Category,
	}
	parts = append(parts, item.Tags...)
	return Normalize(strings.Join(parts, " "))
}

func matchesAll(text string, tokens []string) bool {
	for _, token := range tokens {
		if !strings.Contains(text, token) {
			return false
		}
	}
	return true
}
