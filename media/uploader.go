package media

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"strings"
	"sync"
)

// DefaultMaxImageBytes caps the decoded size of one inline image.
const DefaultMaxImageBytes = 10 << 20

var (
	// ErrNotImage is returned for data URLs that do not carry an image.
	ErrNotImage = errors.New("media: not an image")

	// ErrImageTooLarge is returned when a decoded image exceeds MaxBytes.
	ErrImageTooLarge = errors.New("media: image too large")
)

// BlobUploader stores inline images in a BlobStore. Keys are the SHA-256
// of the image bytes, so the same picture is stored once.
// It implements question.ImageUploader and is safe for concurrent use.
type BlobUploader struct {
	Store    BlobStore
	BaseURL  string // public prefix; empty falls back to Store.SignedURL
	Prefix   string // key prefix inside the store, e.g. "questions/"
	MaxBytes int

	mu   sync.Mutex
	seen map[string]string // key -> URL
}

// NewBlobUploader returns an uploader writing into store.
func NewBlobUploader(store BlobStore, baseURL string) *BlobUploader {
	return &BlobUploader{Store: store, BaseURL: baseURL, MaxBytes: DefaultMaxImageBytes}
}

// UploadInlineImage decodes dataURL, stores the image and returns its URL.
func (u *BlobUploader) UploadInlineImage(ctx context.Context, dataURL string) (string, error) {
	mimeType, data, err := DecodeDataURL(dataURL)
	if err != nil {
		return "", err
	}
	if !strings.HasPrefix(mimeType, "image/") {
		return "", fmt.Errorf("%w: %s", ErrNotImage, mimeType)
	}
	limit := u.MaxBytes
	if limit <= 0 {
		limit = DefaultMaxImageBytes
	}
	if len(data) > limit {
		return "", fmt.Errorf("%w: %d bytes", ErrImageTooLarge, len(data))
	}
	if err := checkImage(mimeType, data); err != nil {
		return "", err
	}

	sum := sha256.Sum256(data)
	key := u.Prefix + hex.EncodeToString(sum[:]) + extFromMIME(mimeType)

	u.mu.Lock()
	url, ok := u.seen[key]
	u.mu.Unlock()
	if ok {
		return url, nil
	}

	if err := ctx.Err(); err != nil {
		return "", err
	}
	stored, err := u.Store.Put(ctx, key, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("storing image: %w", err)
	}
	url, err = u.url(stored)
	if err != nil {
		return "", err
	}

	u.mu.Lock()
	if u.seen == nil {
		u.seen = make(map[string]string)
	}
	u.seen[key] = url
	u.mu.Unlock()

	slog.Debug("media: stored inline image", "key", stored, "bytes", len(data), "mime", mimeType)
	return url, nil
}

func (u *BlobUploader) url(key string) (string, error) {
	if u.BaseURL == "" {
		return u.Store.SignedURL(key)
	}
	return strings.TrimRight(u.BaseURL, "/") + "/" + strings.TrimLeft(key, "/"), nil
}

// checkImage rejects raster images the standard decoders cannot read.
// Formats without a registered decoder are passed through.
func checkImage(mimeType string, data []byte) error {
	switch mimeType {
	case "image/png", "image/jpeg", "image/jpg", "image/gif":
	default:
		return nil
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotImage, err)
	}
	if cfg.Width == 0 || cfg.Height == 0 {
		return fmt.Errorf("%w: zero-sized %s", ErrNotImage, mimeType)
	}
	return nil
}

func extFromMIME(mimeType string) string {
	switch mimeType {
	case "image/png":
		return ".png"
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/gif":
		return ".gif"
	case "image/bmp":
		return ".bmp"
	case "image/tiff":
		return ".tiff"
	case "image/webp":
		return ".webp"
	case "image/svg+xml":
		return ".svg"
	case "image/emf", "image/x-emf":
		return ".emf"
	case "image/wmf", "image/x-wmf":
		return ".wmf"
	default:
		return ".bin"
	}
}
