package publish

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"wildwatch/pkg/storage"
)

const defaultLinkTTL = 7 * 24 * time.Hour

// BucketHost stores data artifacts in an S3-compatible bucket.
type BucketHost struct {
	store         storage.ObjectStore
	publicBaseURL string
	linkTTL       time.Duration
	now           func() time.Time
}

// NewBucketHost wraps an object store. With publicBaseURL set, links are
// publicBaseURL/key; otherwise they are presigned GET URLs valid for linkTTL.
func NewBucketHost(store storage.ObjectStore, publicBaseURL string, linkTTL time.Duration) (*BucketHost, error) {
	if store == nil {
		return nil, errors.New("object store is required")
	}
	if linkTTL <= 0 {
		linkTTL = defaultLinkTTL
	}
	return &BucketHost{
		store:         store,
		publicBaseURL: strings.TrimRight(strings.TrimSpace(publicBaseURL), "/"),
		linkTTL:       linkTTL,
		now:           time.Now,
	}, nil
}

// PublishDocument uploads under artifacts/yyyy/mm/dd/<name>.
func (b *BucketHost) PublishDocument(ctx context.Context, filePath string) (string, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("open document: %w", err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("stat document: %w", err)
	}

	key := b.objectKey(filepath.Base(filePath))
	if err := b.store.Put(ctx, key, f, info.Size(), documentMimeType(filePath)); err != nil {
		return "", &PublishError{Leg: LegData, Detail: err.Error()}
	}
	if b.publicBaseURL != "" {
		return b.publicBaseURL + "/" + (&url.URL{Path: key}).EscapedPath(), nil
	}
	link, err := b.store.PresignGet(ctx, key, b.linkTTL)
	if err != nil {
		return "", &PublishError{Leg: LegData, Detail: err.Error()}
	}
	return link, nil
}

func (b *BucketHost) objectKey(name string) string {
	return path.Join("artifacts", b.now().UTC().Format("2006/01/02"), name)
}
