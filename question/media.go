package question

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"strings"
	"time"
)

// ImageUploader stores an inline image and returns the URL that replaces
// it in the record text.
type ImageUploader interface {
	UploadInlineImage(ctx context.Context, dataURL string) (string, error)
}

// UploaderFunc adapts a function to ImageUploader.
type UploaderFunc func(ctx context.Context, dataURL string) (string, error)

func (f UploaderFunc) UploadInlineImage(ctx context.Context, dataURL string) (string, error) {
	return f(ctx, dataURL)
}

var errEmptyUploadURL = errors.New("uploader returned an empty URL")

var inlineImageRe = regexp.MustCompile(`!\[([^\]]*)\]\((data:image/[^)\s]+)\)`)

// mediaRewriter replaces base64 image references with uploaded URLs.
type mediaRewriter struct {
	uploader ImageUploader
	timeout  time.Duration
}

// rewrite uploads every inline image in s, one at a time. Failed uploads
// remove the reference and add a diagnostic; only cancellation of ctx is
// returned as an error.
func (m mediaRewriter) rewrite(ctx context.Context, b RawBlock, s string) (string, []Diagnostic, error) {
	if m.uploader == nil || !strings.Contains(s, "data:image/") {
		return s, nil, nil
	}
	matches := inlineImageRe.FindAllStringSubmatchIndex(s, -1)
	if len(matches) == 0 {
		return s, nil, nil
	}

	var (
		out   strings.Builder
		diags []Diagnostic
		last  int
	)
	for _, loc := range matches {
		out.WriteString(s[last:loc[0]])
		last = loc[1]
		alt := s[loc[2]:loc[3]]
		dataURL := s[loc[4]:loc[5]]

		url, err := m.upload(ctx, dataURL)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", diags, ctxErr
		}
		if err != nil {
			slog.Warn("question: image upload failed, dropping image",
				"block", b.Index, "number", b.Number, "error", err)
			d := newDiagnostic(KindImageUploadFailure, b, "inline image %q removed", alt)
			d.Err = err
			diags = append(diags, d)
			continue
		}
		out.WriteString("![")
		out.WriteString(alt)
		out.WriteString("](")
		out.WriteString(url)
		out.WriteString(")")
	}
	out.WriteString(s[last:])
	return out.String(), diags, nil
}

func (m mediaRewriter) upload(ctx context.Context, dataURL string) (string, error) {
	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}
	url, err := m.uploader.UploadInlineImage(ctx, dataURL)
	if err == nil && url == "" {
		err = errEmptyUploadURL
	}
	return url, err
}
