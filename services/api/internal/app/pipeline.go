package app

import (
	"context"
	"path/filepath"
	"time"

	"wildwatch/internal/util"
	"wildwatch/pkg/domain"
	"wildwatch/services/api/internal/analysis"
	"wildwatch/services/api/internal/ingress"
	"wildwatch/services/api/internal/publish"
)

// Analyzer turns a staged upload into annotated artifacts.
type Analyzer interface {
	Analyze(ctx context.Context, upload *ingress.StagedFile) (analysis.Result, error)
}

// ArtifactPublisher publishes both artifacts or neither.
type ArtifactPublisher interface {
	Publish(ctx context.Context, imagePath, dataPath string) (publish.Links, error)
}

// UploadResult is returned to the uploader. RecordID is empty when the
// links were published but the record could not be stored.
type UploadResult struct {
	AnnotatedImageLink string `json:"annotatedImageLink"`
	DataArtifactLink   string `json:"dataArtifactLink"`
	RecordID           string `json:"recordId,omitempty"`
}

// Upload runs analysis, publishing and record creation for one staged file.
// Every staged file is removed before return. Outbound calls are detached
// from ctx cancellation so a client hang-up does not abort them midway.
func (a *App) Upload(ctx context.Context, upload *ingress.StagedFile) (UploadResult, error) {
	defer upload.Cleanup()
	if a.analyzer == nil || a.publisher == nil {
		return UploadResult{}, ErrPipelineUnavailable
	}
	ctx = context.WithoutCancel(ctx)
	logger := util.LoggerFromContext(ctx)

	start := time.Now()
	res, err := a.analyzer.Analyze(ctx, upload)
	if err != nil {
		logger.Error("analysis failed", "stage", "analysis", "err", err, "duration_ms", time.Since(start).Milliseconds())
		return UploadResult{}, err
	}
	defer res.Cleanup()
	logger.Info("analysis done", "stage", "analysis", "duration_ms", time.Since(start).Milliseconds())

	links, err := a.publisher.Publish(ctx, res.AnnotatedImage.Path, res.DataArtifact.Path)
	if err != nil {
		return UploadResult{}, err
	}
	out := UploadResult{AnnotatedImageLink: links.ImageURL, DataArtifactLink: links.DataURL}

	rec, err := a.CreateRecord(domain.Record{
		ImageFilename: filepath.Base(res.AnnotatedImage.OriginalFilename),
		ImageRef:      links.ImageURL,
		DataFilename:  filepath.Base(res.DataArtifact.OriginalFilename),
		DataRef:       links.DataURL,
		RefKind:       domain.RefURL,
		Source:        domain.SourceUpload,
		Analysis:      res.Raw,
	})
	if err != nil {
		logger.Error("orphaned published artifacts",
			"stage", "persist",
			"err", err,
			"image_url", links.ImageURL,
			"data_url", links.DataURL,
		)
		return out, nil
	}
	out.RecordID = rec.ID
	return out, nil
}
