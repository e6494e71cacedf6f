package objectstorage

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/rentalhq/backoffice/db"
	"github.com/rentalhq/backoffice/payments"
	"github.com/rentalhq/backoffice/test"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var testDB *db.MongoStorage

var (
	jpegData = []byte{0xff, 0xd8, 0xff, 0xe0, 0x00, 0x10, 0x4a, 0x46, 0x49, 0x46, 0x00, 0x01}
	pngData  = []byte{0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a, 0x00, 0x00}
	pdfData  = []byte("%PDF-1.4\n1 0 obj\n<<>>\nendobj\n")
)

func TestMain(m *testing.M) {
	ctx := context.Background()
	dbContainer, err := test.StartMongoContainer(ctx)
	if err != nil {
		panic(fmt.Sprintf("failed to start MongoDB container: %v", err))
	}
	mongoURI, err := dbContainer.Endpoint(ctx, "mongodb")
	if err != nil {
		panic(fmt.Sprintf("failed to get MongoDB endpoint: %v", err))
	}
	testDB, err = db.New(mongoURI, test.RandomDatabaseName())
	if err != nil {
		panic(fmt.Sprintf("failed to create new MongoDB connection: %v", err))
	}

	code := m.Run()

	testDB.Close()
	if err := dbContainer.Terminate(ctx); err != nil {
		panic(fmt.Sprintf("failed to stop MongoDB container: %v", err))
	}
	os.Exit(code)
}

func TestNew(t *testing.T) {
	c := qt.New(t)
	_, err := New(nil, testDB, Config{})
	c.Assert(err, qt.ErrorMatches, "invalid object storage configuration")

	client, err := New(NewMemory(), testDB, Config{})
	c.Assert(err, qt.IsNil)
	c.Assert(client.maxSize, qt.Equals, int64(DefaultMaxSize))
}

func TestUpload(t *testing.T) {
	c := qt.New(t)
	c.Cleanup(func() { c.Assert(testDB.Reset(), qt.IsNil) })
	mem := NewMemory()
	client, err := New(mem, testDB, Config{MaxSize: 64})
	c.Assert(err, qt.IsNil)
	ctx := context.Background()

	for _, tc := range []struct {
		data []byte
		ct   string
		ext  string
	}{
		{jpegData, "image/jpeg", "jpg"},
		{pngData, "image/png", "png"},
		{pdfData, "application/pdf", "pdf"},
	} {
		doc, err := client.Upload(ctx, payments.OwnerBooking, "BK-00000001", "licence", bytes.NewReader(tc.data))
		c.Assert(err, qt.IsNil)
		c.Assert(doc.ContentType, qt.Equals, tc.ct)
		c.Assert(doc.Size, qt.Equals, int64(len(tc.data)))
		c.Assert(doc.Key, qt.Equals, fmt.Sprintf("booking/BK-00000001/%s.%s", doc.ID.Hex(), tc.ext))

		stored, err := mem.Get(ctx, doc.Key)
		c.Assert(err, qt.IsNil)
		c.Assert(stored, qt.DeepEquals, tc.data)
	}

	_, err = client.Upload(ctx, payments.OwnerBooking, "BK-00000001", "notes", strings.NewReader("plain text"))
	c.Assert(err, qt.Equals, ErrFileTypeNotSupported)
	_, err = client.Upload(ctx, payments.OwnerBooking, "BK-00000001", "big", bytes.NewReader(append(pdfData, make([]byte, 64)...)))
	c.Assert(err, qt.Equals, ErrTooLarge)
	_, err = client.Upload(ctx, payments.OwnerBooking, "BK-00000001", "none", bytes.NewReader(nil))
	c.Assert(err, qt.Equals, ErrEmpty)
	c.Assert(mem.Len(), qt.Equals, 3)

	docs, err := client.List(payments.OwnerBooking, "BK-00000001")
	c.Assert(err, qt.IsNil)
	c.Assert(docs, qt.HasLen, 3)
}

func TestDownloadAndDelete(t *testing.T) {
	c := qt.New(t)
	c.Cleanup(func() { c.Assert(testDB.Reset(), qt.IsNil) })
	mem := NewMemory()
	client, err := New(mem, testDB, Config{})
	c.Assert(err, qt.IsNil)
	ctx := context.Background()

	doc, err := client.Upload(ctx, payments.OwnerJob, "JB-00000002", "agreement.pdf", bytes.NewReader(pdfData))
	c.Assert(err, qt.IsNil)

	// served from the backend once the cache is emptied
	client.cache.Purge()
	got, data, err := client.Download(ctx, doc.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(got.Name, qt.Equals, "agreement.pdf")
	c.Assert(data, qt.DeepEquals, pdfData)
	c.Assert(client.cache.Contains(doc.ID), qt.IsTrue)

	_, _, err = client.Download(ctx, primitive.NewObjectID())
	c.Assert(err, qt.Equals, ErrObjectNotFound)

	c.Assert(client.Delete(ctx, doc.ID), qt.IsNil)
	c.Assert(mem.Len(), qt.Equals, 0)
	c.Assert(client.cache.Contains(doc.ID), qt.IsFalse)
	_, _, err = client.Download(ctx, doc.ID)
	c.Assert(err, qt.Equals, ErrObjectNotFound)
	c.Assert(client.Delete(ctx, doc.ID), qt.Equals, ErrObjectNotFound)
}

func TestS3(t *testing.T) {
	c := qt.New(t)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	container, err := test.StartS3Container(ctx)
	c.Assert(err, qt.IsNil)
	defer func() { c.Assert(container.Terminate(context.Background()), qt.IsNil) }()
	endpoint, err := container.Endpoint(ctx, "http")
	c.Assert(err, qt.IsNil)

	_, err = NewS3(ctx, S3Config{})
	c.Assert(err, qt.ErrorMatches, "missing bucket")

	bucket, err := NewS3(ctx, S3Config{
		Bucket:       "rental-documents",
		Region:       "us-east-1",
		Endpoint:     endpoint,
		AccessKey:    test.S3AccessKey,
		SecretKey:    test.S3SecretKey,
		UsePathStyle: true,
	})
	c.Assert(err, qt.IsNil)
	c.Assert(bucket.EnsureBucket(ctx), qt.IsNil)
	c.Assert(bucket.EnsureBucket(ctx), qt.IsNil)

	key := ObjectKey(payments.OwnerBooking, "BK-00000003", primitive.NewObjectID(), "png")
	c.Assert(bucket.Put(ctx, key, "image/png", pngData), qt.IsNil)
	data, err := bucket.Get(ctx, key)
	c.Assert(err, qt.IsNil)
	c.Assert(data, qt.DeepEquals, pngData)

	c.Assert(bucket.Delete(ctx, key), qt.IsNil)
	_, err = bucket.Get(ctx, key)
	c.Assert(err, qt.Equals, ErrObjectNotFound)
}
