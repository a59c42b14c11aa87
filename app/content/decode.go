package content

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/araddon/dateparse"
)

// remoteItem mirrors the JSON shape produced by the newsletter API.
type remoteItem struct {
	ID            json.RawMessage `json:"id"`
	Title         string          `json:"title"`
	Subtitle      string          `json:"subtitle"`
	Content       string          `json:"content"`
	Author        string          `json:"author"`
	Category      string          `json:"category"`
	Tags          []string        `json:"tags"`
	PublishDate   string          `json:"publishDate"`
	CreatedDate   string          `json:"createdDate"`
	Views         json.RawMessage `json:"views"`
	Shares        json.RawMessage `json:"shares"`
	Featured      json.RawMessage `json:"featured"`
	Images        []Media         `json:"images"`
	PhotoAlbumURL string          `json:"photoAlbumUrl"`
}

// DecodeItems decodes a getNewsletters payload.
func DecodeItems(data []byte) ([]Item, error) {
	if isNull(data) {
		return []Item{}, nil
	}

	var raw []remoteItem
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode newsletters: %w", err)
	}

	items := make([]Item, 0, len(raw))
	for i, r := range raw {
		item, err := r.normalize()
		if err != nil {
			slog.Warn("Skipping malformed newsletter", "index", i, "error", err)
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

// DecodeItem decodes a getNewsletter payload. A null payload yields (nil, nil).
func DecodeItem(data []byte) (*Item, error) {
	if isNull(data) {
		return nil, nil
	}

	var raw remoteItem
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode newsletter: %w", err)
	}

	item, err := raw.normalize()
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// DecodeCategories decodes a getCategories payload.
func DecodeCategories(data []byte) ([]Category, error) {
	if isNull(data) {
		return []Category{}, nil
	}

	var categories []Category
	if err := json.Unmarshal(data, &categories); err != nil {
		return nil, fmt.Errorf("failed to decode categories: %w", err)
	}
	return categories, nil
}

func (r remoteItem) normalize() (Item, error) {
	id, err := decodeID(r.ID)
	if err != nil {
		return Item{}, err
	}

	item := Item{
		ID:            id,
		Title:         r.Title,
		Subtitle:      r.Subtitle,
		Body:          r.Content,
		Author:        r.Author,
		Category:      r.Category,
		Tags:          r.Tags,
		Views:         decodeCount(r.Views),
		Shares:        decodeCount(r.Shares),
		Featured:      decodeFlag(r.Featured),
		Images:        r.Images,
		PhotoAlbumURL: r.PhotoAlbumURL,
	}

	for _, value := range []string{r.PublishDate, r.CreatedDate} {
		if strings.TrimSpace(value) == "" {
			continue
		}
		if parsed, err := dateparse.ParseAny(value); err == nil {
			item.PublishedAt = parsed.UTC()
			break
		}
	}

	return item, nil
}

func decodeID(raw json.RawMessage) (string, error) {
	if isNull(raw) {
		return "", fmt.Errorf("newsletter id is required")
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if strings.TrimSpace(s) == "" {
			return "", fmt.Errorf("newsletter id is required")
		}
		return s, nil
	}

	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", fmt.Errorf("invalid newsletter id %s", string(raw))
	}
	return n.String(), nil
}

// Sheets-backed APIs send counters as numbers, numeric strings or blanks.
func decodeCount(raw json.RawMessage) int64 {
	if isNull(raw) {
		return 0
	}

	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return int64(n)
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
			return v
		}
	}
	return 0
}

func decodeFlag(raw json.RawMessage) bool {
	if isNull(raw) {
		return false
	}

	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		v, _ := strconv.ParseBool(strings.TrimSpace(s))
		return v
	}
	return false
}

func isNull(data []byte) bool {
	trimmed := bytes.TrimSpace(data)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}
