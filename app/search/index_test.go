package search

import (
	"testing"

	"github.com/lysyi3m/newsdeck/app/content"
)

func newTestIndex(items ...content.Item) *Index {
	index := NewIndex(nil)
	index.Build(content.WorkingSet{Items: items, Version: 1})
	return index
}

func TestIndex_AllTokensMustMatch(t *testing.T) {
	index := newTestIndex(content.Item{
		ID:    "1",
		Title: "Storm Warning",
		Body:  "Heavy rain expected",
		Tags:  []string{"weather"},
	})

	if results := index.Search("storm rain"); len(results) != 1 {
		t.Errorf("Expected 'storm rain' to match, got %d results", len(results))
	}
	if results := index.Search("storm sunny"); len(results) != 0 {
		t.Errorf("Expected 'storm sunny' to match nothing, got %d results", len(results))
	}
}

func TestIndex_EmptyQueryReturnsEverything(t *testing.T) {
	items := []content.Item{{ID: "1", Title: "A"}, {ID: "2", Title: "B"}}
	index := newTestIndex(items...)

	for _, query := range []string{"", "   ", "\t\n"} {
		results := index.Search(query)
		if len(results) != 2 {
			t.Errorf("Expected all items for query %q, got %d", query, len(results))
			continue
		}
		if results[0].ID != "1" || results[1].ID != "2" {
			t.Errorf("Expected original order for query %q, got %s, %s", query, results[0].ID, results[1].ID)
		}
	}
}

func TestIndex_SubstringAndCaseInsensitive(t *testing.T) {
	index := newTestIndex(
		content.Item{ID: "1", Title: "Thunderstorms ahead", Author: "Ana"},
		content.Item{ID: "2", Title: "Sunny days", Category: "Weather"},
	)

	tests := []struct {
		query    string
		expected []string
	}{
		{"STORM", []string{"1"}},
		{"under", []string{"1"}},
		{"ana", []string{"1"}},
		{"weather", []string{"2"}},
		{"  sunny   DAYS ", []string{"2"}},
		{"days storm", nil},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			results := index.Search(tt.query)
			if len(results) != len(tt.expected) {
				t.Fatalf("Expected %d results, got %d", len(tt.expected), len(results))
			}
			for i, id := range tt.expected {
				if results[i].ID != id {
					t.Errorf("Expected result %d to be %s, got %s", i, id, results[i].ID)
				}
			}
		})
	}
}

func TestIndex_SearchesHTMLBodyText(t *testing.T) {
	body := `<html><body><article>
		<h1>Weekly digest</h1>
		<p>This week the volunteers planted over two hundred trees along the river bank, finishing a project that began in early spring.</p>
		<p>Next month the group will return to water the saplings and to count how many survived the first dry weeks of the summer season.</p>
	</article></body></html>`
	index := newTestIndex(content.Item{ID: "1", Title: "Digest", Body: body})

	if results := index.Search("saplings"); len(results) != 1 {
		t.Errorf("Expected body text to be searchable, got %d results", len(results))
	}
}

func TestIndex_SearchesEveryHTMLBlock(t *testing.T) {
	index := newTestIndex(
		content.Item{ID: "1", Title: "Notice", Body: "<p>Read more</p><footer>Contact the principal office</footer>"},
		content.Item{ID: "2", Title: "Alert", Body: "<h1>Flood alert</h1><p>Heavy rain</p><ul><li>North</li><li>South</li></ul>"},
	)

	tests := []struct {
		query    string
		expected []string
	}{
		{"principal", []string{"1"}},
		{"alert heavy", []string{"2"}},
		{"north", []string{"2"}},
		{"alertheavy", nil},
		{"northsouth", nil},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			results := index.Search(tt.query)
			if len(results) != len(tt.expected) {
				t.Fatalf("Expected %d results, got %d", len(tt.expected), len(results))
			}
			for i, id := range tt.expected {
				if results[i].ID != id {
					t.Errorf("Expected result %d to be %s, got %s", i, id, results[i].ID)
				}
			}
		})
	}
}

func TestIndex_UnicodeNormalization(t *testing.T) {
	index := newTestIndex(content.Item{ID: "1", Title: "Cafe\u0301 opening"})

	if results := index.Search("CAF\u00c9"); len(results) != 1 {
		t.Errorf("Expected composed and decomposed forms to match, got %d results", len(results))
	}
}

func TestIndex_RebuildReplacesEntries(t *testing.T) {
	index := newTestIndex(content.Item{ID: "1", Title: "Old storm"})

	index.Build(content.WorkingSet{
		Items:   []content.Item{{ID: "2", Title: "New storm"}, {ID: "3", Title: "Calm"}},
		Version: 2,
	})

	results := index.Search("storm")
	if len(results) != 1 || results[0].ID != "2" {
		t.Errorf("Expected only the rebuilt item to match, got %+v", results)
	}
	if index.Len() != 2 {
		t.Errorf("Expected 2 entries, got %d", index.Len())
	}
	if index.Version() != 2 {
		t.Errorf("Expected version 2, got %d", index.Version())
	}
}

func TestTokenize(t *testing.T) {
	tokens := Tokenize("  Storm \t RAIN\n")
	if len(tokens) != 2 || tokens[0] != "storm" || tokens[1] != "rain" {
		t.Errorf("Unexpected tokens: %q", tokens)
	}
	if tokens := Tokenize(""); len(tokens) != 0 {
		t.Errorf("Expected no tokens, got %q", tokens)
	}
}
