package media

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/ebinesh25/gen-hyre-csv/question"
)

var _ question.ImageUploader = (*BlobUploader)(nil)

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.SetRGBA(0, 0, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encoding PNG: %v", err)
	}
	return buf.Bytes()
}

func pngDataURL(t *testing.T) string {
	t.Helper()
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(testPNG(t, 4, 3))
}

// ---------------------------------------------------------------------------
// Data URLs
// ---------------------------------------------------------------------------

func TestDecodeDataURL(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		wantMIME string
		wantData string
		wantErr  bool
	}{
		{"base64", "data:image/png;base64,aGVsbG8=", "image/png", "hello", false},
		{"unpadded", "data:image/png;base64,aGVsbG8", "image/png", "hello", false},
		{"wrapped", "data:image/png;base64,aGVs\n bG8=", "image/png", "hello", false},
		{"percent", "data:text/plain,a%20b", "text/plain", "a b", false},
		{"default type", "data:;base64,aGk=", "text/plain", "hi", false},
		{"no prefix", "https://example.com/a.png", "", "", true},
		{"no comma", "data:image/png;base64", "", "", true},
		{"bad base64", "data:image/png;base64,@@@", "", "", true},
		{"empty", "data:image/png;base64,", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mimeType, data, err := DecodeDataURL(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidDataURL) {
					t.Fatalf("err = %v, want ErrInvalidDataURL", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodeDataURL: %v", err)
			}
			if mimeType != tt.wantMIME || string(data) != tt.wantData {
				t.Errorf("got %q %q, want %q %q", mimeType, data, tt.wantMIME, tt.wantData)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// FSStore
// ---------------------------------------------------------------------------

func TestFSStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFSStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	key, err := s.Put(ctx, "questions/a.png", strings.NewReader("payload"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	rc, err := s.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	if string(data) != "payload" {
		t.Errorf("data = %q", data)
	}

	u, err := s.SignedURL(key)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(u, "file://") || !strings.HasSuffix(u, "questions/a.png") {
		t.Errorf("SignedURL = %q", u)
	}
}

func TestFSStoreRejectsBadKeys(t *testing.T) {
	s, err := NewFSStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"", "../escape.png", "a/../../b"} {
		if _, err := s.Put(context.Background(), key, strings.NewReader("x")); !errors.Is(err, ErrInvalidKey) {
			t.Errorf("Put(%q) err = %v, want ErrInvalidKey", key, err)
		}
	}
}

// ---------------------------------------------------------------------------
// BlobUploader
// ---------------------------------------------------------------------------

func TestBlobUploaderStoresByHash(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFSStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	u := NewBlobUploader(store, "https://cdn.example.com/img/")
	u.Prefix = "q/"

	url, err := u.UploadInlineImage(context.Background(), pngDataURL(t))
	if err != nil {
		t.Fatalf("UploadInlineImage: %v", err)
	}
	if !strings.HasPrefix(url, "https://cdn.example.com/img/q/") || !strings.HasSuffix(url, ".png") {
		t.Errorf("url = %q", url)
	}

	key := strings.TrimPrefix(url, "https://cdn.example.com/img/")
	if _, err := os.Stat(filepath.Join(dir, key)); err != nil {
		t.Errorf("stored file missing: %v", err)
	}

	again, err := u.UploadInlineImage(context.Background(), pngDataURL(t))
	if err != nil || again != url {
		t.Errorf("second upload = %q, %v; want %q", again, err, url)
	}
}

func TestBlobUploaderSignedURLFallback(t *testing.T) {
	store, err := NewFSStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	url, err := NewBlobUploader(store, "").UploadInlineImage(context.Background(), pngDataURL(t))
	if err != nil {
		t.Fatalf("UploadInlineImage: %v", err)
	}
	if !strings.HasPrefix(url, "file://") {
		t.Errorf("url = %q", url)
	}
}

func TestBlobUploaderRejects(t *testing.T) {
	store, err := NewFSStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	u := NewBlobUploader(store, "https://cdn.example.com")

	tests := []struct {
		name    string
		dataURL string
		want    error
	}{
		{"not a data url", "https://example.com/a.png", ErrInvalidDataURL},
		{"not an image", "data:text/plain;base64,aGk=", ErrNotImage},
		{"corrupt png", "data:image/png;base64,aGVsbG8=", ErrNotImage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := u.UploadInlineImage(context.Background(), tt.dataURL); !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}

	u.MaxBytes = 10
	if _, err := u.UploadInlineImage(context.Background(), pngDataURL(t)); !errors.Is(err, ErrImageTooLarge) {
		t.Errorf("err = %v, want ErrImageTooLarge", err)
	}
}

func TestBlobUploaderCancelled(t *testing.T) {
	store, err := NewFSStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewBlobUploader(store, "").UploadInlineImage(ctx, pngDataURL(t)); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestBlobUploaderConcurrent(t *testing.T) {
	store, err := NewFSStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	u := NewBlobUploader(store, "https://cdn.example.com")
	dataURL := pngDataURL(t)

	var wg sync.WaitGroup
	urls := make([]string, 8)
	for i := range urls {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			url, err := u.UploadInlineImage(context.Background(), dataURL)
			if err != nil {
				t.Errorf("upload %d: %v", i, err)
			}
			urls[i] = url
		}(i)
	}
	wg.Wait()
	for _, url := range urls[1:] {
		if url != urls[0] {
			t.Fatalf("urls differ: %q", urls)
		}
	}
}

// ---------------------------------------------------------------------------
// With the question parser
// ---------------------------------------------------------------------------

func TestUploaderInQuestionParser(t *testing.T) {
	store, err := NewFSStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	p := question.New(question.Options{Uploader: NewBlobUploader(store, "https://cdn.example.com")})

	doc := "1. Which shape? ![shape](" + pngDataURL(t) + ")\nA. square\nB. circle\nAnswer: A."
	res, err := p.ParseDocument(context.Background(), doc)
	if err != nil {
		t.Fatalf("ParseDocument: %v", err)
	}
	if len(res.Records) != 1 {
		t.Fatalf("got %d records", len(res.Records))
	}
	q := res.Records[0].Question
	if !strings.HasPrefix(q, "Which shape? ![shape](https://cdn.example.com/") || strings.Contains(q, "data:") {
		t.Errorf("question = %q", q)
	}
}
