package attachment

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/roundslab/rounds/engine/core"
	"github.com/roundslab/rounds/pkg/logger"
)

const (
	sniffSize      = 512
	maxExcerptRead = 8 << 10
)

// FromFile loads one attachment from disk: sniff the MIME type, classify
// it, and extract a bounded text excerpt where the format allows one.
// Extraction failures degrade to an excerpt-free attachment; only an
// unreadable file is an error.
func FromFile(ctx context.Context, path string) (*Attachment, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, core.NewError(err, "ATTACHMENT_UNREADABLE", map[string]any{"path": path})
	}
	if info.IsDir() {
		return nil, core.NewError(nil, "ATTACHMENT_IS_DIRECTORY", map[string]any{"path": path})
	}
	head, err := readHead(path)
	if err != nil {
		return nil, core.NewError(err, "ATTACHMENT_UNREADABLE", map[string]any{"path": path})
	}
	mime := detectMIME(head)
	a := &Attachment{
		Name: filepath.Base(path),
		Type: classify(mime),
		MIME: mime,
		Size: info.Size(),
	}
	switch a.Type {
	case TypePDF:
		excerpt, pages, err := pdfExcerpt(path, maxExcerptRead)
		if err != nil {
			logger.FromContext(ctx).Warn("could not extract text from PDF attachment",
				"attachment", a.Name, "error", err)
			break
		}
		a.Excerpt = sanitizeExcerpt(excerpt)
		a.Pages = pages
	case TypeText:
		text, err := readCapped(path, maxExcerptRead)
		if err != nil {
			logger.FromContext(ctx).Warn("could not read text attachment",
				"attachment", a.Name, "error", err)
			break
		}
		a.Excerpt = sanitizeExcerpt(text)
	}
	return a, nil
}

// FromFiles loads several attachments, failing on the first unreadable one.
func FromFiles(ctx context.Context, paths []string) ([]Attachment, error) {
	attachments := make([]Attachment, 0, len(paths))
	for _, path := range paths {
		a, err := FromFile(ctx, path)
		if err != nil {
			return nil, err
		}
		attachments = append(attachments, *a)
	}
	return attachments, nil
}

// detectMIME uses stdlib detection first and falls back to the broader
// mimetype library when the result is ambiguous.
func detectMIME(head []byte) string {
	if len(head) == 0 {
		return "application/octet-stream"
	}
	mt := http.DetectContentType(head)
	if mt != "application/octet-stream" {
		return mt
	}
	return mimetype.Detect(head).String()
}

func classify(mime string) Type {
	switch {
	case strings.HasPrefix(mime, "application/pdf"):
		return TypePDF
	case strings.HasPrefix(mime, "text/"),
		strings.HasPrefix(mime, "application/json"),
		strings.HasPrefix(mime, "application/yaml"):
		return TypeText
	case strings.HasPrefix(mime, "image/"):
		return TypeImage
	default:
		return TypeFile
	}
}

func readHead(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(io.LimitReader(f, sniffSize))
}

func readCapped(path string, limit int64) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, limit))
	if err != nil {
		return "", err
	}
	return string(data), nil
}
