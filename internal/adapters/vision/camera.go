package vision

import (
	"context"
	"fmt"
	"image"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/disintegration/imaging"

	"github.com/nerrad567/garagegate/internal/adapters"
)

// Camera yields single frames.
type Camera interface {
	Frame(ctx context.Context) (image.Image, error)
}

// SnapshotCamera reads frames from an HTTP snapshot endpoint. The URL
// template's "{index}" placeholder is replaced with a camera index.
//
// Candidates are probed in order and the first index that returns a
// decodable frame is used until a read fails, after which the next call
// probes again from the start.
type SnapshotCamera struct {
	client     *http.Client
	template   string
	candidates []int

	mu      sync.Mutex
	current int
	opened  bool
}

// NewSnapshotCamera creates a camera. client may be nil.
func NewSnapshotCamera(client *http.Client, urlTemplate string, candidates []int) *SnapshotCamera {
	if client == nil {
		client = http.DefaultClient
	}
	return &SnapshotCamera{client: client, template: urlTemplate, candidates: candidates}
}

// Index returns the camera index in use. ok is false when no camera is open.
func (c *SnapshotCamera) Index() (index int, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current, c.opened
}

// Frame implements Camera.
func (c *SnapshotCamera) Frame(ctx context.Context) (image.Image, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.opened {
		img, err := c.fetch(ctx, c.current)
		if err == nil {
			return img, nil
		}
		c.opened = false
		return nil, fmt.Errorf("%w: camera %d: %v", adapters.ErrUnavailable, c.current, err)
	}

	var lastErr error
	for _, idx := range c.candidates {
		img, err := c.fetch(ctx, idx)
		if err != nil {
			lastErr = err
			continue
		}
		c.current = idx
		c.opened = true
		return img, nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no camera candidates configured")
	}
	return nil, fmt.Errorf("%w: %v", adapters.ErrUnavailable, lastErr)
}

func (c *SnapshotCamera) fetch(ctx context.Context, index int) (image.Image, error) {
	url := strings.ReplaceAll(c.template, "{index}", strconv.Itoa(index))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building snapshot request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching snapshot: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("snapshot status %d", resp.StatusCode)
	}
	img, err := imaging.Decode(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("decoding snapshot: %w", err)
	}
	return img, nil
}
