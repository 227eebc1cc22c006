package s3

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"ledgercore/internal/infra/blob/core"
)

func TestMockStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewMockForTests()
	if s.Driver() != core.DriverS3 || s.Bucket() != "mock-bucket" {
		t.Fatalf("unexpected store %s %s", s.Driver(), s.Bucket())
	}
	info, err := s.Put(ctx, "archives/one.json", strings.NewReader(`{"version":1}`), core.PutOptions{ContentType: "application/json", Metadata: map[string]string{"root": "session"}})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Size != 13 || info.ContentType != "application/json" {
		t.Fatalf("unexpected info %+v", info)
	}
	if info.Metadata["root"] != "session" {
		t.Fatalf("metadata not returned: %v", info.Metadata)
	}
	if _, err := s.Put(ctx, "archives/one.json", strings.NewReader("{}"), core.PutOptions{}); !errors.Is(err, core.ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}

	_, rc, err := s.Get(ctx, "archives/one.json")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(body) != `{"version":1}` {
		t.Fatalf("unexpected body %q", body)
	}

	if _, err := s.Put(ctx, "other.json", strings.NewReader("{}"), core.PutOptions{}); err != nil {
		t.Fatalf("put other: %v", err)
	}
	list, err := s.List(ctx, "archives/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].Key != "archives/one.json" || list[0].Size != 13 {
		t.Fatalf("unexpected list %+v", list)
	}

	ok, err := s.Delete(ctx, "archives/one.json")
	if err != nil || !ok {
		t.Fatalf("delete: %v %v", ok, err)
	}
	ok, err = s.Delete(ctx, "archives/one.json")
	if err != nil || ok {
		t.Fatalf("delete missing: %v %v", ok, err)
	}
	if _, _, err := s.Get(ctx, "archives/one.json"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPresignURL(t *testing.T) {
	s := NewMockForTests()
	url, err := s.PresignURL(context.Background(), "archives/one.json", 5*time.Minute)
	if err != nil {
		t.Fatalf("presign: %v", err)
	}
	for _, want := range []string{"mock-bucket/archives/one.json", "X-Amz-Expires=300", "X-Amz-Signature="} {
		if !strings.Contains(url, want) {
			t.Fatalf("url %q missing %q", url, want)
		}
	}
	var _ core.Presigner = s
}

func TestNewRequiresBucket(t *testing.T) {
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Fatalf("expected error for missing bucket")
	}
}

func TestDecodeChunked(t *testing.T) {
	got, ok := decodeChunked([]byte("5\r\nhello\r\n0\r\nx-amz-checksum-crc32:abc\r\n\r\n"))
	if !ok || string(got) != "hello" {
		t.Fatalf("unexpected decode %q %v", got, ok)
	}
	if _, ok := decodeChunked([]byte("plain body")); ok {
		t.Fatalf("plain body should not decode")
	}
}
