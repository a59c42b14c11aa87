package prefetch

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

const maxImageSize = 20 << 20

// Asset describes a warmed image.
type Asset struct {
	URL      string    `json:"url"`
	Format   string    `json:"format"`
	Width    int       `json:"width"`
	Height   int       `json:"height"`
	Bytes    int       `json:"bytes"`
	LoadedAt time.Time `json:"loaded_at"`
}

// HTTPImageLoader downloads and decodes images so that broken or non-image
// urls are detected before they are rendered.
type HTTPImageLoader struct {
	client    *http.Client
	userAgent string

	mu     sync.RWMutex
	assets map[string]Asset
}

var _ Loader = (*HTTPImageLoader)(nil)

func NewHTTPImageLoader(client *http.Client, userAgent string) *HTTPImageLoader {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPImageLoader{
		client:    client,
		userAgent: userAgent,
		assets:    make(map[string]Asset),
	}
}

func (l *HTTPImageLoader) Load(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if l.userAgent != "" {
		req.Header.Set("User-Agent", l.userAgent)
	}
	req.Header.Set("Accept", "image/webp, image/png, image/jpeg, image/gif, */*")

	resp, err := l.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to fetch image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP error: %d %s", resp.StatusCode, resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageSize))
	if err != nil {
		return fmt.Errorf("failed to read image: %w", err)
	}

	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("unsupported image: %w", err)
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return fmt.Errorf("failed to decode image: %w", err)
	}

	bounds := img.Bounds()
	l.mu.Lock()
	l.assets[url] = Asset{
		URL:      url,
		Format:   format,
		Width:    bounds.Dx(),
		Height:   bounds.Dy(),
		Bytes:    len(data),
		LoadedAt: time.Now(),
	}
	l.mu.Unlock()

	return nil
}

func (l *HTTPImageLoader) Asset(url string) (Asset, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	asset, ok := l.assets[url]
	return asset, ok
}

func (l *HTTPImageLoader) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.assets)
}
