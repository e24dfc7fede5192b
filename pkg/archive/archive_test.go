package archive

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/blospray-dev/blospray/internal/config"
)

func TestFinalKey(t *testing.T) {
	if got := FinalKey("abc", 3); got != "abc/final-3.exr" {
		t.Fatalf("FinalKey = %q", got)
	}
}

func TestCleanKeyRejectsEscapes(t *testing.T) {
	for _, key := range []string{"", "/abs", "..", "../x", "a/../../x", `a\b`} {
		if _, err := cleanKey(key); !errors.Is(err, ErrInvalidKey) {
			t.Errorf("cleanKey(%q) err = %v, want ErrInvalidKey", key, err)
		}
	}
	if got, err := cleanKey("a/./b"); err != nil || got != "a/b" {
		t.Fatalf("cleanKey(a/./b) = %q, %v", got, err)
	}
}

func TestDirStorePut(t *testing.T) {
	dir := t.TempDir()
	s, err := NewDirStore(filepath.Join(dir, "out"))
	if err != nil {
		t.Fatal(err)
	}
	data := []byte("exr bytes")
	loc, err := s.Put(context.Background(), FinalKey("sess", 1), bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(dir, "out", "sess", "final-1.exr"); loc != want {
		t.Fatalf("location = %q, want %q", loc, want)
	}
	got, err := os.ReadFile(loc)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("content = %q", got)
	}

	entries, _ := os.ReadDir(filepath.Join(dir, "out", "sess"))
	if len(entries) != 1 {
		t.Fatalf("expected only the archived file, got %d entries", len(entries))
	}
}

func TestDirStorePutCanceled(t *testing.T) {
	s, err := NewDirStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Put(ctx, "k", strings.NewReader("x"), 1); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

type fakeS3 struct {
	in   *s3.PutObjectInput
	body []byte
	err  error
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.in = in
	f.body, _ = io.ReadAll(in.Body)
	if f.err != nil {
		return nil, f.err
	}
	return &s3.PutObjectOutput{}, nil
}

func TestS3StorePut(t *testing.T) {
	fake := &fakeS3{}
	s := NewS3Store(fake, "renders", "blospray")
	loc, err := s.Put(context.Background(), FinalKey("sess", 2), strings.NewReader("pixels"), 6)
	if err != nil {
		t.Fatal(err)
	}
	if loc != "s3://renders/blospray/sess/final-2.exr" {
		t.Fatalf("location = %q", loc)
	}
	if aws.ToString(fake.in.Bucket) != "renders" || aws.ToString(fake.in.Key) != "blospray/sess/final-2.exr" {
		t.Fatalf("bucket/key = %q/%q", aws.ToString(fake.in.Bucket), aws.ToString(fake.in.Key))
	}
	if aws.ToInt64(fake.in.ContentLength) != 6 || string(fake.body) != "pixels" {
		t.Fatalf("body = %q (%d)", fake.body, aws.ToInt64(fake.in.ContentLength))
	}
}

func TestS3StorePutError(t *testing.T) {
	boom := errors.New("boom")
	s := NewS3Store(&fakeS3{err: boom}, "b", "")
	if _, err := s.Put(context.Background(), "k", strings.NewReader("x"), 1); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped boom", err)
	}
}

func TestNew(t *testing.T) {
	s, err := New(config.ArchiveConfig{})
	if err != nil || s != nil {
		t.Fatalf("disabled archive = %v, %v", s, err)
	}
	s, err = New(config.ArchiveConfig{Kind: "dir", Dir: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := s.(*DirStore); !ok {
		t.Fatalf("got %T, want *DirStore", s)
	}
	s, err = New(config.ArchiveConfig{Kind: "s3", Bucket: "b", Region: "eu-west-1", Endpoint: "http://localhost:9000"})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := s.(*S3Store); !ok {
		t.Fatalf("got %T, want *S3Store", s)
	}
	if _, err := New(config.ArchiveConfig{Kind: "ftp"}); err == nil {
		t.Fatal("expected error for unknown kind")
	}
}
