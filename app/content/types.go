package content

import (
	"time"
)

// Item is a read-only snapshot of one newsletter as served by the remote API.
type Item struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	Subtitle      string    `json:"subtitle,omitempty"`
	Body          string    `json:"body"`
	Author        string    `json:"author"`
	Category      string    `json:"category"`
	Tags          []string  `json:"tags"`
	PublishedAt   time.Time `json:"published_at"`
	Views         int64     `json:"views"`
	Shares        int64     `json:"shares"`
	Featured      bool      `json:"featured"`
	Images        []Media   `json:"images,omitempty"`
	PhotoAlbumURL string    `json:"photo_album_url,omitempty"`
}

type Media struct {
	URL     string `json:"url"`
	Alt     string `json:"alt,omitempty"`
	Caption string `json:"caption,omitempty"`
}

type Category struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Count       int    `json:"count,omitempty"`
}

// WorkingSet is the full collection the session filters and searches over.
// Version increases every time the set is replaced.
type WorkingSet struct {
	Items   []Item
	Version uint64
}

func (ws WorkingSet) Len() int {
	return len(ws.Items)
}

// ImageURLs returns every non-empty media url in working-set order.
func (ws WorkingSet) ImageURLs() []string {
	urls := make([]string, 0, len(ws.Items))
	for _, item := range ws.Items {
		for _, image := range item.Images {
			if image.URL != "" {
				urls = append(urls, image.URL)
			}
		}
	}
	return urls
}
