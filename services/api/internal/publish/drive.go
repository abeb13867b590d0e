package publish

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"wildwatch/internal/util"
)

// NewDriveService builds a Drive client from a service-account key file,
// limited to files the account creates.
func NewDriveService(ctx context.Context, credentialsFile string, opts ...option.ClientOption) (*drive.Service, error) {
	if strings.TrimSpace(credentialsFile) == "" {
		return nil, errors.New("drive credentials file is required")
	}
	opts = append([]option.ClientOption{
		option.WithCredentialsFile(credentialsFile),
		option.WithScopes(drive.DriveFileScope),
	}, opts...)
	svc, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("init drive service: %w", err)
	}
	return svc, nil
}

// DriveHost stores data artifacts in a Google Drive folder.
type DriveHost struct {
	svc      *drive.Service
	folderID string
}

// NewDriveHost wraps a Drive service. An empty folder uploads to the root of
// the service account's drive.
func NewDriveHost(svc *drive.Service, folderID string) (*DriveHost, error) {
	if svc == nil {
		return nil, errors.New("drive service is required")
	}
	return &DriveHost{svc: svc, folderID: strings.TrimSpace(folderID)}, nil
}

// PublishDocument uploads the file and returns its webViewLink.
func (d *DriveHost) PublishDocument(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open document: %w", err)
	}
	defer f.Close()

	mimeType := documentMimeType(path)
	meta := &drive.File{Name: filepath.Base(path), MimeType: mimeType}
	if d.folderID != "" {
		meta.Parents = []string{d.folderID}
	}
	created, err := d.svc.Files.Create(meta).
		Media(f, googleapi.ContentType(mimeType)).
		Fields("id", "webViewLink").
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		var gerr *googleapi.Error
		if errors.As(err, &gerr) {
			return "", &PublishError{Leg: LegData, Status: gerr.Code, Detail: gerr.Message}
		}
		return "", &PublishError{Leg: LegData, Detail: err.Error()}
	}
	if created.WebViewLink == "" {
		return "", &PublishError{Leg: LegData, Detail: "drive returned no webViewLink for file " + created.Id}
	}
	return created.WebViewLink, nil
}

func documentMimeType(path string) string {
	return util.MediaTypeByExt(path, "", "application/octet-stream")
}
