// Package publish pushes analysis artifacts to public hosts: the annotated
// image to an image host and the data file to a document host.
package publish

import (
	"context"
	"errors"
	"fmt"
	"time"

	"wildwatch/internal/util"
)

const defaultTimeout = 60 * time.Second

// ErrPublishFailed matches every *PublishError.
var ErrPublishFailed = errors.New("publishing failed")

// Leg names one side of a publish call.
type Leg string

const (
	LegImage Leg = "image"
	LegData  Leg = "data"
)

// PublishError reports which leg failed and what the host said.
type PublishError struct {
	Leg    Leg
	Status int
	Detail string
}

func (e *PublishError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("publish %s: status %d: %s", e.Leg, e.Status, e.Detail)
	}
	return fmt.Sprintf("publish %s: %s", e.Leg, e.Detail)
}

func (e *PublishError) Is(target error) bool { return target == ErrPublishFailed }

// ImageHost publishes an image file and returns its public URL.
type ImageHost interface {
	PublishImage(ctx context.Context, path string) (string, error)
}

// DocumentHost publishes a data file and returns a shareable URL.
type DocumentHost interface {
	PublishDocument(ctx context.Context, path string) (string, error)
}

// Links are the public references for one upload.
type Links struct {
	ImageURL string
	DataURL  string
}

// Publisher runs both legs in order.
type Publisher struct {
	images    ImageHost
	documents DocumentHost
	timeout   time.Duration
}

// New constructs a publisher; timeout bounds each leg separately.
func New(images ImageHost, documents DocumentHost, timeout time.Duration) (*Publisher, error) {
	if images == nil || documents == nil {
		return nil, errors.New("publisher requires image and document hosts")
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Publisher{images: images, documents: documents, timeout: timeout}, nil
}

// PublishImage uploads the annotated image.
func (p *Publisher) PublishImage(ctx context.Context, path string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	link, err := p.images.PublishImage(ctx, path)
	if err != nil {
		return "", asPublishError(LegImage, err)
	}
	return link, nil
}

// PublishDataArtifact uploads the data file.
func (p *Publisher) PublishDataArtifact(ctx context.Context, path string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	link, err := p.documents.PublishDocument(ctx, path)
	if err != nil {
		return "", asPublishError(LegData, err)
	}
	return link, nil
}

// Publish uploads the image, then the data file. The data leg is never tried
// when the image fails, and a data failure discards the image link: callers
// get both links or an error.
func (p *Publisher) Publish(ctx context.Context, imagePath, dataPath string) (Links, error) {
	logger := util.LoggerFromContext(ctx)

	start := time.Now()
	imageURL, err := p.PublishImage(ctx, imagePath)
	if err != nil {
		logger.Error("publish failed", "stage", "publish", "leg", LegImage, "err", err)
		return Links{}, err
	}
	logger.Info("published", "stage", "publish", "leg", LegImage, "duration_ms", time.Since(start).Milliseconds())

	start = time.Now()
	dataURL, err := p.PublishDataArtifact(ctx, dataPath)
	if err != nil {
		logger.Error("publish failed", "stage", "publish", "leg", LegData, "err", err, "discarded_image_url", imageURL)
		return Links{}, err
	}
	logger.Info("published", "stage", "publish", "leg", LegData, "duration_ms", time.Since(start).Milliseconds())
	return Links{ImageURL: imageURL, DataURL: dataURL}, nil
}

func asPublishError(leg Leg, err error) error {
	var perr *PublishError
	if errors.As(err, &perr) {
		if perr.Leg == "" {
			perr.Leg = leg
		}
		return perr
	}
	return &PublishError{Leg: leg, Detail: err.Error()}
}
