// Package icon is an in-process image library for custom overlay icons.
// Images are fetched once by URL and addressed by content digest, so the
// host can fetch them from the bridge's /icons endpoint and cache forever.
package icon

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/crypto/blake2b"
)

// maxImageSize bounds a single downloaded icon.
const maxImageSize = 1 << 20

// ErrNotFound is returned for unknown ids or digests.
var ErrNotFound = errors.New("icon not found")

// Provider resolves icon ids to content digests.
type Provider interface {
	// Lookup returns the digest registered under id.
	Lookup(id string) (string, bool)
	// Available reports whether the provider can serve any icon.
	Available() bool
}

// Image is a stored icon.
type Image struct {
	Digest      string
	ContentType string
	Data        []byte
}

// Library downloads and stores icons.
// Thread-safe.
type Library struct {
	client *http.Client

	mu       sync.RWMutex
	byID     map[string]string // id → digest
	byDigest map[string]Image
}

// NewLibrary creates a library with the given fetch timeout.
func NewLibrary(fetchTimeout time.Duration) *Library {
	return &Library{
		client:   &http.Client{Timeout: fetchTimeout},
		byID:     make(map[string]string),
		byDigest: make(map[string]Image),
	}
}

// Register fetches url and stores the image under id.
func (l *Library) Register(ctx context.Context, id, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("building icon request %s: %w", url, err)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetching icon %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetching icon %s: unexpected status %d", url, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageSize+1))
	if err != nil {
		return fmt.Errorf("reading icon %s: %w", url, err)
	}
	if len(data) > maxImageSize {
		return fmt.Errorf("icon %s exceeds %d bytes", url, maxImageSize)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}

	digest := Digest(data)
	l.mu.Lock()
	l.byID[id] = digest
	l.byDigest[digest] = Image{Digest: digest, ContentType: contentType, Data: data}
	l.mu.Unlock()

	slog.Info("icon registered", "id", id, "digest", digest, "bytes", len(data))
	return nil
}

// Lookup returns the digest registered under id.
func (l *Library) Lookup(id string) (string, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	d, ok := l.byID[id]
	return d, ok
}

// Image returns the stored image by digest.
func (l *Library) Image(digest string) (Image, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	img, ok := l.byDigest[digest]
	if !ok {
		return Image{}, fmt.Errorf("%w: %s", ErrNotFound, digest)
	}
	return img, nil
}

// Available reports whether at least one icon was registered.
func (l *Library) Available() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.byID) > 0
}

// Digest returns the hex blake2b-256 digest of data.
func Digest(data []byte) string {
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])
}
