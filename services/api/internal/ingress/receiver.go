// Package ingress accepts multipart image uploads and stages them on disk.
package ingress

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"wildwatch/internal/util"
)

// DefaultMaxBytes is the upload ceiling when none is configured.
const DefaultMaxBytes int64 = 5 << 20

// envelopeSlack covers multipart boundaries and part headers on top of the
// file itself.
const envelopeSlack int64 = 64 << 10

var (
	ErrNoFile               = errors.New("No file uploaded")
	ErrPayloadTooLarge      = errors.New("file too large")
	ErrUnsupportedMediaType = errors.New("only image files are allowed")
)

// Config holds receiver settings.
type Config struct {
	StagingDir string
	MaxBytes   int64
}

// Receiver stages incoming uploads under a private directory.
type Receiver struct {
	dir      string
	maxBytes int64
	now      func() time.Time
}

// New creates the staging directory if needed.
func New(cfg Config) (*Receiver, error) {
	dir := strings.TrimSpace(cfg.StagingDir)
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "wildwatch-uploads")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create staging dir: %w", err)
	}
	maxBytes := cfg.MaxBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Receiver{dir: dir, maxBytes: maxBytes, now: time.Now}, nil
}

// Dir is where staged files live.
func (r *Receiver) Dir() string { return r.dir }

// StagedFile is one file held on local disk for the life of a request.
type StagedFile struct {
	Path             string
	MimeType         string
	OriginalFilename string
	Size             int64

	once sync.Once
	err  error
}

// Stage wraps an existing file path as a StagedFile owned by the caller.
func Stage(path, mimeType string, size int64) *StagedFile {
	return &StagedFile{
		Path:             path,
		MimeType:         mimeType,
		OriginalFilename: filepath.Base(path),
		Size:             size,
	}
}

// Cleanup removes the file. Safe to call more than once.
func (f *StagedFile) Cleanup() error {
	if f == nil {
		return nil
	}
	f.once.Do(func() {
		if err := os.Remove(f.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			f.err = err
		}
	})
	return f.err
}

// Receive reads the multipart body part by part and writes the "file" part to
// the staging directory. Other parts are discarded.
func (r *Receiver) Receive(w http.ResponseWriter, req *http.Request) (*StagedFile, error) {
	limit := r.maxBytes + envelopeSlack
	if req.ContentLength > limit {
		return nil, fmt.Errorf("%w: declared %d bytes", ErrPayloadTooLarge, req.ContentLength)
	}
	req.Body = http.MaxBytesReader(w, req.Body, limit)

	mr, err := req.MultipartReader()
	if err != nil {
		return nil, ErrNoFile
	}
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return nil, ErrNoFile
		}
		if err != nil {
			return nil, classify(err)
		}
		if part.FormName() != "file" {
			_, err := io.Copy(io.Discard, part)
			_ = part.Close()
			if err != nil {
				return nil, classify(err)
			}
			continue
		}
		staged, err := r.stagePart(part.FileName(), part.Header.Get("Content-Type"), part)
		_ = part.Close()
		return staged, err
	}
}

func (r *Receiver) stagePart(filename, contentType string, body io.Reader) (*StagedFile, error) {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil || !strings.HasPrefix(strings.ToLower(mediaType), "image/") {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedMediaType, contentType)
	}
	mediaType = strings.ToLower(mediaType)

	name := fmt.Sprintf("image-%d-%s%s", r.now().UnixMilli(), util.RandomHex(6), extensionFor(filename, mediaType))
	path := filepath.Join(r.dir, name)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		return nil, fmt.Errorf("create staged file: %w", err)
	}
	staged := &StagedFile{Path: path, MimeType: mediaType, OriginalFilename: filepath.Base(filename)}

	n, copyErr := io.Copy(f, io.LimitReader(body, r.maxBytes+1))
	closeErr := f.Close()
	switch {
	case copyErr != nil:
		_ = staged.Cleanup()
		return nil, classify(copyErr)
	case closeErr != nil:
		_ = staged.Cleanup()
		return nil, fmt.Errorf("close staged file: %w", closeErr)
	case n > r.maxBytes:
		_ = staged.Cleanup()
		return nil, fmt.Errorf("%w: limit %d bytes", ErrPayloadTooLarge, r.maxBytes)
	}
	staged.Size = n
	return staged, nil
}

func classify(err error) error {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return fmt.Errorf("%w: limit %d bytes", ErrPayloadTooLarge, maxErr.Limit)
	}
	return fmt.Errorf("read upload: %w", err)
}

// extensionFor keeps a short alphanumeric extension from the client filename
// and falls back to one registered for the media type.
func extensionFor(filename, mediaType string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if clean := sanitizeExt(ext); clean != "" {
		return clean
	}
	if exts, err := mime.ExtensionsByType(mediaType); err == nil && len(exts) > 0 {
		return sanitizeExt(exts[0])
	}
	return ""
}

func sanitizeExt(ext string) string {
	ext = strings.TrimPrefix(ext, ".")
	if ext == "" || len(ext) > 8 {
		return ""
	}
	for _, c := range ext {
		if (c < 'a' || c > 'z') && (c < '0' || c > '9') {
			return ""
		}
	}
	return "." + ext
}
