// Package blobstore stores profile pictures. It defines the BlobStore
// interface, an in-memory implementation for tests and development, a local
// disk implementation for deployments, and an Echo handler that serves
// stored pictures under /uploads.
package blobstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
)

// ---------------------------------------------------------------------------
// Sentinel errors
// ---------------------------------------------------------------------------

var (
	ErrBlobNotFound       = errors.New("file not found")
	ErrFileTooLarge       = errors.New("file exceeds maximum allowed size")
	ErrInvalidContentType = errors.New("only png, jpeg, gif and webp images are accepted")
	ErrEmptyFile          = errors.New("file is empty")
)

// URLPrefix is the public path stored pictures are served from.
const URLPrefix = "/uploads/"

// DefaultMaxFileSize applies when a store is built with a non-positive limit.
const DefaultMaxFileSize = 5 << 20

// AllowedContentTypes maps accepted image types to the extension used when
// the uploaded file name carries none.
var AllowedContentTypes = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// ---------------------------------------------------------------------------
// Domain types
// ---------------------------------------------------------------------------

// BlobMetadata describes a stored picture.
type BlobMetadata struct {
	Name         string    `json:"name"`
	OriginalName string    `json:"original_name"`
	ContentType  string    `json:"content_type"`
	Size         int64     `json:"size"`
	Hash         string    `json:"hash"`
	URL          string    `json:"url"`
	CreatedAt    time.Time `json:"created_at"`
}

// BlobStore defines the contract for picture storage backends. Name is the
// stored file name (no directories); URL is Name under URLPrefix.
type BlobStore interface {
	Save(ctx context.Context, originalName, contentType string, content io.Reader) (*BlobMetadata, error)
	Open(ctx context.Context, name string) (io.ReadCloser, *BlobMetadata, error)
	Delete(ctx context.Context, name string) error
}

// NameFromURL returns the stored name referenced by a /uploads/ URL, or ""
// when url does not point into the store.
func NameFromURL(url string) string {
	if !strings.HasPrefix(url, URLPrefix) {
		return ""
	}
	name := strings.TrimPrefix(url, URLPrefix)
	if !validName(name) {
		return ""
	}
	return name
}

func validName(name string) bool {
	return name != "" && name != "." && name != ".." && !strings.ContainsAny(name, `/\`)
}

// readUpload reads content up to maxSize, checks it is a supported image and
// returns the bytes with their resolved content type and extension.
func readUpload(content io.Reader, originalName, contentType string, maxSize int64) ([]byte, string, string, error) {
	data, err := io.ReadAll(io.LimitReader(content, maxSize+1))
	if err != nil {
		return nil, "", "", fmt.Errorf("reading content: %w", err)
	}
	if len(data) == 0 {
		return nil, "", "", ErrEmptyFile
	}
	if int64(len(data)) > maxSize {
		return nil, "", "", ErrFileTooLarge
	}

	ct, _, _ := mime.ParseMediaType(contentType)
	if ct == "" || ct == "application/octet-stream" {
		ct = http.DetectContentType(data)
	}
	defExt, ok := AllowedContentTypes[ct]
	if !ok {
		return nil, "", "", ErrInvalidContentType
	}

	ext := strings.ToLower(filepath.Ext(originalName))
	if ext == "" || len(ext) > 6 {
		ext = defExt
	}
	return data, ct, ext, nil
}

func newMetadata(name, originalName, contentType string, data []byte, now time.Time) BlobMetadata {
	h := sha256.Sum256(data)
	return BlobMetadata{
		Name:         name,
		OriginalName: originalName,
		ContentType:  contentType,
		Size:         int64(len(data)),
		Hash:         fmt.Sprintf("%x", h),
		URL:          URLPrefix + name,
		CreatedAt:    now.UTC(),
	}
}

// timestampName builds "<unix-nanos><ext>", the naming scheme uploads have
// always used.
func timestampName(t time.Time, ext string) string {
	return fmt.Sprintf("%d%s", t.UnixNano(), ext)
}

// ---------------------------------------------------------------------------
// In-memory implementation
// ---------------------------------------------------------------------------

type storedBlob struct {
	metadata BlobMetadata
	content  []byte
}

// InMemoryBlobStore is a thread-safe, in-memory BlobStore for testing/dev.
type InMemoryBlobStore struct {
	mu      sync.RWMutex
	blobs   map[string]*storedBlob
	maxSize int64
	now     func() time.Time
}

// NewInMemoryBlobStore returns a ready-to-use InMemoryBlobStore.
func NewInMemoryBlobStore(maxSize int64) *InMemoryBlobStore {
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSize
	}
	return &InMemoryBlobStore{
		blobs:   make(map[string]*storedBlob),
		maxSize: maxSize,
		now:     time.Now,
	}
}

func (s *InMemoryBlobStore) Save(_ context.Context, originalName, contentType string, content io.Reader) (*BlobMetadata, error) {
	data, ct, ext, err := readUpload(content, originalName, contentType, s.maxSize)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.now()
	name := timestampName(t, ext)
	for s.blobs[name] != nil {
		t = t.Add(time.Nanosecond)
		name = timestampName(t, ext)
	}
	meta := newMetadata(name, originalName, ct, data, t)
	s.blobs[name] = &storedBlob{metadata: meta, content: data}

	out := meta // copy
	return &out, nil
}

func (s *InMemoryBlobStore) Open(_ context.Context, name string) (io.ReadCloser, *BlobMetadata, error) {
	s.mu.RLock()
	blob, ok := s.blobs[name]
	s.mu.RUnlock()

	if !ok {
		return nil, nil, ErrBlobNotFound
	}

	meta := blob.metadata // copy
	return io.NopCloser(bytes.NewReader(blob.content)), &meta, nil
}

func (s *InMemoryBlobStore) Delete(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.blobs[name]; !ok {
		return ErrBlobNotFound
	}
	delete(s.blobs, name)
	return nil
}

// Len returns the number of stored blobs.
func (s *InMemoryBlobStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}

// ---------------------------------------------------------------------------
// HTTP handler
// ---------------------------------------------------------------------------

// BlobHandler serves stored pictures.
type BlobHandler struct {
	store BlobStore
}

func NewBlobHandler(store BlobStore) *BlobHandler {
	return &BlobHandler{store: store}
}

// RegisterRoutes mounts GET /uploads/:name on e. The route is public.
func (h *BlobHandler) RegisterRoutes(e *echo.Echo) {
	e.GET(URLPrefix+":name", h.handleDownload)
}

func (h *BlobHandler) handleDownload(c echo.Context) error {
	name := c.Param("name")
	if !validName(name) {
		return echo.NewHTTPError(http.StatusNotFound, ErrBlobNotFound.Error())
	}

	rc, meta, err := h.store.Open(c.Request().Context(), name)
	if err != nil {
		if errors.Is(err, ErrBlobNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to read file").SetInternal(err)
	}
	defer rc.Close()

	c.Response().Header().Set("Cache-Control", "public, max-age=86400")
	return c.Stream(http.StatusOK, meta.ContentType, rc)
}
