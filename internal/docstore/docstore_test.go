package docstore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

type fakeS3 struct {
	objects map[string][]byte
	types   map[string]string
	putErr  error
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: map[string][]byte{}, types: map[string]string{}}
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	b, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[*in.Key] = b
	f.types[*in.Key] = aws.ToString(in.ContentType)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	b, ok := f.objects[*in.Key]
	if !ok {
		return nil, &s3types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(b)),
		ContentType:   aws.String(f.types[*in.Key]),
		ContentLength: aws.Int64(int64(len(b))),
	}, nil
}

func TestS3Archive_PutThenGet(t *testing.T) {
	fs3 := newFakeS3()
	a := NewS3Archive(fs3, "rebates-docs", "agreements", nil)

	err := a.Put(context.Background(), 5, 42, Document{
		Body:        io.NopCloser(strings.NewReader("%PDF-1.7 fake")),
		ContentType: "application/pdf",
		UploadedBy:  "ana@example.com",
	})
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if _, ok := fs3.objects["agreements/5/42"]; !ok {
		t.Fatalf("object stored under wrong key, have %v", fs3.objects)
	}

	doc, err := a.Get(context.Background(), 5, 42)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer doc.Body.Close()
	b, _ := io.ReadAll(doc.Body)
	if string(b) != "%PDF-1.7 fake" || doc.ContentType != "application/pdf" {
		t.Errorf("round trip mismatch: %q %q", b, doc.ContentType)
	}
}

func TestS3Archive_GetMissing(t *testing.T) {
	a := NewS3Archive(newFakeS3(), "rebates-docs", "agreements", nil)
	_, err := a.Get(context.Background(), 5, 99)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("want ErrNotFound, got %v", err)
	}
}

func TestS3Archive_RejectsOversizedBody(t *testing.T) {
	a := NewS3Archive(newFakeS3(), "rebates-docs", "agreements", nil)
	big := io.NopCloser(io.LimitReader(zeroReader{}, maxDocumentBytes+1))
	err := a.Put(context.Background(), 5, 42, Document{Body: big, ContentType: "application/pdf"})
	if err == nil {
		t.Fatal("oversized document accepted")
	}
}

type zeroReader struct{}

func (zeroReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = 0
	}
	return len(p), nil
}

func TestS3Archive_ObserverSeesOutcomes(t *testing.T) {
	fs3 := newFakeS3()
	fs3.putErr = errors.New("boom")
	var ops []string
	a := NewS3Archive(fs3, "b", "p", func(op, result string) { ops = append(ops, op+":"+result) })

	_ = a.Put(context.Background(), 1, 1, Document{Body: io.NopCloser(strings.NewReader("x"))})
	_, _ = a.Get(context.Background(), 1, 1)

	if len(ops) != 2 || ops[0] != "put:error" || ops[1] != "get:not_found" {
		t.Errorf("ops = %v", ops)
	}
}

func TestMemoryArchive_RoundTripAndOverwrite(t *testing.T) {
	a := NewMemoryArchive()
	ctx := context.Background()

	for _, body := range []string{"v1", "v2"} {
		err := a.Put(ctx, 4, 7, Document{
			Body:        io.NopCloser(strings.NewReader(body)),
			ContentType: "text/plain",
			UploadedBy:  "jo@example.com",
		})
		if err != nil {
			t.Fatalf("Put: %v", err)
		}
	}

	doc, err := a.Get(ctx, 4, 7)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	b, _ := io.ReadAll(doc.Body)
	if string(b) != "v2" {
		t.Errorf("latest upload should win, got %q", b)
	}
	if doc.UploadedBy != "jo@example.com" {
		t.Errorf("UploadedBy = %q", doc.UploadedBy)
	}

	if _, err := a.Get(ctx, 4, 8); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing doc: want ErrNotFound, got %v", err)
	}
}
