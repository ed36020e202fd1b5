// Package blob abstracts the object store holding document bytes. The core
// only needs upload, batched delete, and signed download URLs; the real
// backend lives outside this repository.
package blob

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"time"

	"certportal/pkg/requestcontext"
)

// Storage is the object-store surface consumed by the document tree service.
// Delete must be idempotent: re-deleting an already removed path is not an
// error, which lets recursive folder deletion retry safely.
type Storage interface {
	Upload(ctx context.Context, path string, data []byte, contentType string) error
	Delete(ctx context.Context, paths []string) error
	SignedURL(ctx context.Context, path string, ttl time.Duration) (string, error)
}

// MemoryStorage keeps blobs in process memory and issues HMAC-signed URLs.
// Used in development and tests.
type MemoryStorage struct {
	mu      sync.RWMutex
	objects map[string][]byte
	secret  []byte
	baseURL string
}

// NewMemoryStorage constructs an in-memory blob store. baseURL is prepended
// to signed URLs, e.g. "http://localhost:8080".
func NewMemoryStorage(baseURL string, secret []byte) *MemoryStorage {
	return &MemoryStorage{
		objects: make(map[string][]byte),
		secret:  secret,
		baseURL: baseURL,
	}
}

func (m *MemoryStorage) Upload(_ context.Context, path string, data []byte, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[path] = append([]byte{}, data...)
	return nil
}

func (m *MemoryStorage) Delete(_ context.Context, paths []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range paths {
		delete(m.objects, p)
	}
	return nil
}

// SignedURL issues a time-limited download URL. The signature covers path and
// expiry so neither can be swapped after issuance.
func (m *MemoryStorage) SignedURL(ctx context.Context, path string, ttl time.Duration) (string, error) {
	m.mu.RLock()
	_, ok := m.objects[path]
	m.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("blob %q does not exist", path)
	}
	expires := requestcontext.Now(ctx).Add(ttl).Unix()
	return fmt.Sprintf("%s/blobs/%s?expires=%d&signature=%s",
		m.baseURL, url.PathEscape(path), expires, m.sign(path, expires)), nil
}

// Verify checks a previously issued signature against the path and expiry.
func (m *MemoryStorage) Verify(path string, expires int64, signature string, now time.Time) bool {
	if now.Unix() > expires {
		return false
	}
	return hmac.Equal([]byte(m.sign(path, expires)), []byte(signature))
}

// Get returns the stored bytes, for tests and the dev download handler.
func (m *MemoryStorage) Get(path string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.objects[path]
	return data, ok
}

func (m *MemoryStorage) sign(path string, expires int64) string {
	mac := hmac.New(sha256.New, m.secret)
	mac.Write([]byte(path))
	mac.Write([]byte("\n"))
	mac.Write([]byte(strconv.FormatInt(expires, 10)))
	return hex.EncodeToString(mac.Sum(nil))
}
