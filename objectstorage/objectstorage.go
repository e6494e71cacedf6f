// Package objectstorage stores the documents customers upload for a booking
// or a job (licence photos, signed agreements) in a bucket, keeping their
// metadata in the database.
package objectstorage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rentalhq/backoffice/db"
	"github.com/rentalhq/backoffice/payments"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.vocdoni.io/dvote/log"
)

const (
	// DefaultMaxSize is the largest document accepted.
	DefaultMaxSize = 10 << 20
	// DefaultCacheSize is how many downloaded documents are kept in memory.
	DefaultCacheSize = 64
)

var (
	// ErrObjectNotFound is returned when the document or its object is missing.
	ErrObjectNotFound = errors.New("object not found")
	// ErrFileTypeNotSupported is returned for content other than JPEG, PNG or PDF.
	ErrFileTypeNotSupported = errors.New("file type not supported")
	// ErrTooLarge is returned when the content exceeds the maximum size.
	ErrTooLarge = errors.New("file too large")
	// ErrEmpty is returned when there is no content to store.
	ErrEmpty = errors.New("empty file")
)

// supportedTypes maps the accepted sniffed content types to the object
// extension.
var supportedTypes = map[string]string{
	"image/jpeg":      "jpg",
	"image/png":       "png",
	"application/pdf": "pdf",
}

// Backend stores raw objects by key.
type Backend interface {
	Put(ctx context.Context, key, contentType string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// Storage keeps the document metadata. *db.MongoStorage implements it.
type Storage interface {
	SetDocument(d *db.Document) error
	Document(id primitive.ObjectID) (*db.Document, error)
	DocumentsByOwner(t payments.OwnerType, reference string) ([]db.Document, error)
	DelDocument(id primitive.ObjectID) error
}

var _ Storage = (*db.MongoStorage)(nil)

// Config holds the client options. Zero values take the defaults.
type Config struct {
	MaxSize   int64
	CacheSize int
}

// Client uploads and downloads documents.
type Client struct {
	backend Backend
	db      Storage
	maxSize int64
	cache   *lru.Cache[primitive.ObjectID, []byte]
}

// New creates a client storing objects in backend and metadata in storage.
func New(backend Backend, storage Storage, conf Config) (*Client, error) {
	if backend == nil || storage == nil {
		return nil, fmt.Errorf("invalid object storage configuration")
	}
	if conf.MaxSize <= 0 {
		conf.MaxSize = DefaultMaxSize
	}
	if conf.CacheSize <= 0 {
		conf.CacheSize = DefaultCacheSize
	}
	cache, err := lru.New[primitive.ObjectID, []byte](conf.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("cannot create cache: %w", err)
	}
	return &Client{backend: backend, db: storage, maxSize: conf.MaxSize, cache: cache}, nil
}

// ObjectKey is the bucket key of a document.
func ObjectKey(t payments.OwnerType, reference string, id primitive.ObjectID, ext string) string {
	return fmt.Sprintf("%s/%s/%s.%s", t, reference, id.Hex(), ext)
}

// Upload stores the content read from r as a document of the owner. The
// content type is sniffed from the data, the declared one is ignored.
func (c *Client) Upload(ctx context.Context, t payments.OwnerType, reference, name string, r io.Reader) (*db.Document, error) {
	data, err := io.ReadAll(io.LimitReader(r, c.maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("cannot read file: %w", err)
	}
	if len(data) == 0 {
		return nil, ErrEmpty
	}
	if int64(len(data)) > c.maxSize {
		return nil, ErrTooLarge
	}
	contentType := http.DetectContentType(data)
	ext, ok := supportedTypes[contentType]
	if !ok {
		log.Debugw("rejected upload", "owner", reference, "contentType", contentType)
		return nil, ErrFileTypeNotSupported
	}
	doc := &db.Document{
		ID:          primitive.NewObjectID(),
		OwnerType:   t,
		OwnerRef:    reference,
		Name:        name,
		ContentType: contentType,
		Size:        int64(len(data)),
	}
	doc.Key = ObjectKey(t, reference, doc.ID, ext)
	if err := c.backend.Put(ctx, doc.Key, contentType, data); err != nil {
		return nil, err
	}
	if err := c.db.SetDocument(doc); err != nil {
		if derr := c.backend.Delete(ctx, doc.Key); derr != nil {
			log.Warnw("cannot remove orphan object", "key", doc.Key, "error", derr)
		}
		return nil, err
	}
	c.cache.Add(doc.ID, data)
	log.Infow("document uploaded", "id", doc.ID.Hex(), "key", doc.Key, "size", doc.Size)
	return doc, nil
}

// Download returns the document metadata and content.
func (c *Client) Download(ctx context.Context, id primitive.ObjectID) (*db.Document, []byte, error) {
	doc, err := c.db.Document(id)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, nil, ErrObjectNotFound
		}
		return nil, nil, err
	}
	if data, ok := c.cache.Get(id); ok {
		return doc, data, nil
	}
	data, err := c.backend.Get(ctx, doc.Key)
	if err != nil {
		return nil, nil, err
	}
	c.cache.Add(id, data)
	return doc, data, nil
}

// List returns the documents of the owner, newest first.
func (c *Client) List(t payments.OwnerType, reference string) ([]db.Document, error) {
	return c.db.DocumentsByOwner(t, reference)
}

// Delete removes a document and its object.
func (c *Client) Delete(ctx context.Context, id primitive.ObjectID) error {
	doc, err := c.db.Document(id)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return ErrObjectNotFound
		}
		return err
	}
	if err := c.backend.Delete(ctx, doc.Key); err != nil {
		return err
	}
	c.cache.Remove(id)
	return c.db.DelDocument(id)
}

// Memory is an in-process Backend for development and tests.
type Memory struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// NewMemory creates an empty in-memory backend.
func NewMemory() *Memory {
	return &Memory{objects: map[string][]byte{}}
}

// Put stores a copy of data.
func (m *Memory) Put(_ context.Context, key, _ string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = append([]byte(nil), data...)
	return nil
}

// Get returns the object stored under key.
func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, ErrObjectNotFound
	}
	return data, nil
}

// Delete removes the object stored under key.
func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

// Len is the number of stored objects.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}
