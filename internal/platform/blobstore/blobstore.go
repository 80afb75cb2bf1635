// Package blobstore keeps attachment bytes. Metadata lives in the attachment
// table; a blob is addressed only by its key.
package blobstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"mime"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrBlobNotFound       = errors.New("blob not found")
	ErrFileTooLarge       = errors.New("file exceeds maximum allowed size")
	ErrInvalidContentType = errors.New("content type is not allowed")
	ErrMissingFileName    = errors.New("file name is required")
	ErrEmptyFile          = errors.New("file is empty")
)

// MaxFileSize is the maximum allowed blob size in bytes (10 MB).
const MaxFileSize = 10 * 1024 * 1024

// AllowedContentTypes lists the MIME types accepted for attachments.
var AllowedContentTypes = map[string]bool{
	"image/png":         true,
	"image/jpeg":        true,
	"image/gif":         true,
	"image/webp":        true,
	"image/dicom":       true,
	"application/dicom": true,
	"application/pdf":   true,
	"text/plain":        true,
}

// Object describes a stored blob.
type Object struct {
	Key         string    `json:"key"`
	FileName    string    `json:"fileName"`
	ContentType string    `json:"contentType"`
	Size        int64     `json:"size"`
	Hash        string    `json:"hash"`
	CreatedAt   time.Time `json:"createdAt"`
}

// BlobStore is implemented by the memory and S3 backends.
type BlobStore interface {
	Put(ctx context.Context, obj Object, content io.Reader) (*Object, error)
	Get(ctx context.Context, key string) (io.ReadCloser, *Object, error)
	Delete(ctx context.Context, key string) error
}

// NormalizeContentType strips parameters ("text/plain; charset=utf-8").
func NormalizeContentType(ct string) string {
	if mt, _, err := mime.ParseMediaType(ct); err == nil {
		return mt
	}
	return strings.ToLower(strings.TrimSpace(ct))
}

// prepare validates obj, reads the content and fills Size, Hash, Key and
// CreatedAt. Both backends share it so they accept exactly the same input.
func prepare(obj Object, content io.Reader) (Object, []byte, error) {
	if strings.TrimSpace(obj.FileName) == "" {
		return obj, nil, ErrMissingFileName
	}
	obj.ContentType = NormalizeContentType(obj.ContentType)
	if !AllowedContentTypes[obj.ContentType] {
		return obj, nil, fmt.Errorf("%w: %s", ErrInvalidContentType, obj.ContentType)
	}

	data, err := io.ReadAll(io.LimitReader(content, MaxFileSize+1))
	if err != nil {
		return obj, nil, fmt.Errorf("reading content: %w", err)
	}
	if int64(len(data)) > MaxFileSize {
		return obj, nil, ErrFileTooLarge
	}
	if len(data) == 0 {
		return obj, nil, ErrEmptyFile
	}

	h := sha256.Sum256(data)
	if obj.Key == "" {
		obj.Key = uuid.NewString()
	}
	obj.Size = int64(len(data))
	obj.Hash = fmt.Sprintf("%x", h)
	obj.CreatedAt = time.Now().UTC()
	return obj, data, nil
}

type storedBlob struct {
	obj     Object
	content []byte
}

// InMemoryBlobStore is a thread-safe, in-memory BlobStore for tests and
// single-node development.
type InMemoryBlobStore struct {
	mu    sync.RWMutex
	blobs map[string]*storedBlob
}

func NewInMemoryBlobStore() *InMemoryBlobStore {
	return &InMemoryBlobStore{
		blobs: make(map[string]*storedBlob),
	}
}

func (s *InMemoryBlobStore) Put(_ context.Context, obj Object, content io.Reader) (*Object, error) {
	obj, data, err := prepare(obj, content)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.blobs[obj.Key] = &storedBlob{obj: obj, content: data}
	s.mu.Unlock()

	out := obj
	return &out, nil
}

func (s *InMemoryBlobStore) Get(_ context.Context, key string) (io.ReadCloser, *Object, error) {
	s.mu.RLock()
	blob, ok := s.blobs[key]
	s.mu.RUnlock()

	if !ok {
		return nil, nil, ErrBlobNotFound
	}
	obj := blob.obj
	return io.NopCloser(bytes.NewReader(blob.content)), &obj, nil
}

func (s *InMemoryBlobStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.blobs[key]; !ok {
		return ErrBlobNotFound
	}
	delete(s.blobs, key)
	return nil
}

// Len returns the number of stored blobs.
func (s *InMemoryBlobStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}
