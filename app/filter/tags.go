package filter

import (
	"slices"
	"strings"

	"github.com/lysyi3m/newsdeck/app/content"
)

// Tags returns the sorted set of trimmed, non-empty tags across items.
func Tags(items []content.Item) []string {
	seen := make(map[string]struct{})
	tags := make([]string, 0)
	for _, item := range items {
		for _, tag := range item.Tags {
			tag = strings.TrimSpace(tag)
			if tag == "" {
				continue
			}
			if _, ok := seen[tag]; ok {
				continue
			}
			seen[tag] = struct{}{}
			tags = append(tags, tag)
		}
	}
	slices.Sort(tags)
	return tags
}

const DefaultPerPage = 12

type Page struct {
	Items      []content.Item `json:"items"`
	Page       int            `json:"page"`
	PerPage    int            `json:"per_page"`
	Total      int            `json:"total"`
	TotalPages int            `json:"total_pages"`
}

// Paginate slices items into 1-based pages. Out-of-range pages are clamped.
func Paginate(items []content.Item, page, perPage int) Page {
	if perPage <= 0 {
		perPage = DefaultPerPage
	}

	total := len(items)
	totalPages := (total + perPage - 1) / perPage
	if totalPages == 0 {
		totalPages = 1
	}
	page = max(1, min(page, totalPages))

	start := min((page-1)*perPage, total)
	end := min(start+perPage, total)

	pageItems := items[start:end]
	if pageItems == nil {
		pageItems = []content.Item{}
	}

	return Page{
		Items:      pageItems,
		Page:       page,
		PerPage:    perPage,
		Total:      total,
		TotalPages: totalPages,
	}
}
