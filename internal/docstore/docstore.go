// Package docstore archives agreement support documents (signed PDFs,
// spreadsheets) in object storage. One current document per agreement;
// uploads overwrite.
package docstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/retailcore/rebates-api/internal/xerrors"
)

// ErrNotFound is returned when no document has been archived for the
// agreement.
var ErrNotFound = xerrors.New("document not found")

const maxDocumentBytes = 10 << 20

// Document is an archived file plus the metadata needed to serve it back.
type Document struct {
	Body        io.ReadCloser
	ContentType string
	Size        int64
	UploadedBy  string
	UploadedAt  time.Time
}

// Archive stores and retrieves one document per agreement.
type Archive interface {
	Put(ctx context.Context, businessUnitID int, agreementID int64, doc Document) error
	Get(ctx context.Context, businessUnitID int, agreementID int64) (Document, error)
}

// s3API narrows the S3 client to what the archive calls, so tests can fake it.
type s3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Archive keeps documents under {prefix}/{business_unit}/{agreement}.
type S3Archive struct {
	client s3API
	bucket string
	prefix string
	obs    func(op, result string)
}

func NewS3Archive(client s3API, bucket, prefix string, obs func(op, result string)) *S3Archive {
	if obs == nil {
		obs = func(string, string) {}
	}
	return &S3Archive{client: client, bucket: bucket, prefix: prefix, obs: obs}
}

func (a *S3Archive) key(businessUnitID int, agreementID int64) string {
	return path.Join(a.prefix, fmt.Sprintf("%d", businessUnitID), fmt.Sprintf("%d", agreementID))
}

func (a *S3Archive) Put(ctx context.Context, businessUnitID int, agreementID int64, doc Document) error {
	defer doc.Body.Close()

	// buffer so the SDK can compute the content hash and retry
	buf, err := io.ReadAll(io.LimitReader(doc.Body, maxDocumentBytes+1))
	if err != nil {
		a.obs("put", "error")
		return xerrors.Wrap(err, "read document body")
	}
	if len(buf) > maxDocumentBytes {
		a.obs("put", "rejected")
		return xerrors.Newf("document exceeds %d bytes", maxDocumentBytes)
	}

	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(a.key(businessUnitID, agreementID)),
		Body:        bytes.NewReader(buf),
		ContentType: aws.String(doc.ContentType),
		Metadata: map[string]string{
			"uploaded-by": doc.UploadedBy,
		},
	})
	if err != nil {
		a.obs("put", "error")
		return xerrors.Wrap(err, "put document")
	}
	a.obs("put", "ok")
	return nil
}

func (a *S3Archive) Get(ctx context.Context, businessUnitID int, agreementID int64) (Document, error) {
	out, err := a.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(a.key(businessUnitID, agreementID)),
	})
	if err != nil {
		var noKey *s3types.NoSuchKey
		if errors.As(err, &noKey) || strings.Contains(err.Error(), "NoSuchKey") {
			a.obs("get", "not_found")
			return Document{}, ErrNotFound
		}
		a.obs("get", "error")
		return Document{}, xerrors.Wrap(err, "get document")
	}

	doc := Document{
		Body:        out.Body,
		ContentType: aws.ToString(out.ContentType),
		Size:        aws.ToInt64(out.ContentLength),
		UploadedBy:  out.Metadata["uploaded-by"],
		UploadedAt:  aws.ToTime(out.LastModified),
	}
	a.obs("get", "ok")
	return doc, nil
}

// MemoryArchive is an in-process Archive for tests and local runs without
// object storage configured.
type MemoryArchive struct {
	mu   sync.Mutex
	docs map[string]memoryDoc
}

type memoryDoc struct {
	body        []byte
	contentType string
	uploadedBy  string
	uploadedAt  time.Time
}

func NewMemoryArchive() *MemoryArchive {
	return &MemoryArchive{docs: make(map[string]memoryDoc)}
}

func memoryKey(businessUnitID int, agreementID int64) string {
	return fmt.Sprintf("%d/%d", businessUnitID, agreementID)
}

func (a *MemoryArchive) Put(ctx context.Context, businessUnitID int, agreementID int64, doc Document) error {
	defer doc.Body.Close()
	buf, err := io.ReadAll(io.LimitReader(doc.Body, maxDocumentBytes+1))
	if err != nil {
		return xerrors.Wrap(err, "read document body")
	}
	if len(buf) > maxDocumentBytes {
		return xerrors.Newf("document exceeds %d bytes", maxDocumentBytes)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.docs[memoryKey(businessUnitID, agreementID)] = memoryDoc{
		body:        buf,
		contentType: doc.ContentType,
		uploadedBy:  doc.UploadedBy,
		uploadedAt:  time.Now().UTC(),
	}
	return nil
}

func (a *MemoryArchive) Get(ctx context.Context, businessUnitID int, agreementID int64) (Document, error) {
	a.mu.Lock()
	d, ok := a.docs[memoryKey(businessUnitID, agreementID)]
	a.mu.Unlock()
	if !ok {
		return Document{}, ErrNotFound
	}
	return Document{
		Body:        io.NopCloser(bytes.NewReader(d.body)),
		ContentType: d.contentType,
		Size:        int64(len(d.body)),
		UploadedBy:  d.uploadedBy,
		UploadedAt:  d.uploadedAt,
	}, nil
}
