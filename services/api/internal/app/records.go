package app

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"wildwatch/pkg/domain"
)

// CreateRecord validates and stores a record, assigning its id and timestamp.
func (a *App) CreateRecord(rec domain.Record) (domain.Record, error) {
	var missing []string
	if strings.TrimSpace(rec.ImageFilename) == "" {
		missing = append(missing, "imageFilename")
	}
	if strings.TrimSpace(rec.ImageRef) == "" {
		missing = append(missing, "imageRef")
	}
	if strings.TrimSpace(rec.DataFilename) == "" {
		missing = append(missing, "dataFilename")
	}
	if strings.TrimSpace(rec.DataRef) == "" {
		missing = append(missing, "dataRef")
	}
	if len(missing) > 0 {
		return domain.Record{}, fmt.Errorf("%w: missing %s", ErrInvalidRecord, strings.Join(missing, ", "))
	}
	if rec.RefKind != domain.RefInline && rec.RefKind != domain.RefURL {
		return domain.Record{}, fmt.Errorf("%w: refKind %q", ErrInvalidRecord, rec.RefKind)
	}
	if rec.Source == "" {
		rec.Source = domain.SourceDirect
	}
	rec.ID = uuid.NewString()
	rec.CreatedAt = a.now().UTC()
	if err := a.store.CreateRecord(rec); err != nil {
		return domain.Record{}, fmt.Errorf("create record: %w", err)
	}
	return rec, nil
}

// ListRecords returns every record, most recent first. An empty store is
// ErrNotFound.
func (a *App) ListRecords() ([]domain.Record, error) {
	records, err := a.store.ListRecords()
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	if len(records) == 0 {
		return nil, ErrNotFound
	}
	return records, nil
}

// DeleteRecord hard-deletes a record.
func (a *App) DeleteRecord(id string) error {
	ok, err := a.store.DeleteRecord(id)
	if err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	if !ok {
		return fmt.Errorf("record %s: %w", id, ErrNotFound)
	}
	return nil
}

// DirectPayload is a client-supplied record with inline base64 artifacts.
type DirectPayload struct {
	ImageFilename string
	ImageData     string
	DataFilename  string
	DataPayload   string
}

// SaveData stores a direct submission inline. Both payloads must be base64,
// optionally with a data: URI prefix.
func (a *App) SaveData(in DirectPayload) (domain.Record, error) {
	image, err := inlinePayload("imageData", in.ImageData)
	if err != nil {
		return domain.Record{}, err
	}
	data, err := inlinePayload("dataPayload", in.DataPayload)
	if err != nil {
		return domain.Record{}, err
	}
	return a.CreateRecord(domain.Record{
		ImageFilename: strings.TrimSpace(in.ImageFilename),
		ImageRef:      image,
		DataFilename:  strings.TrimSpace(in.DataFilename),
		DataRef:       data,
		RefKind:       domain.RefInline,
		Source:        domain.SourceDirect,
	})
}

func inlinePayload(field, raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "data:") {
		if _, after, ok := strings.Cut(raw, ";base64,"); ok {
			raw = after
		}
	}
	if raw == "" {
		return "", nil
	}
	if _, err := base64.StdEncoding.DecodeString(raw); err != nil {
		return "", fmt.Errorf("%w: %s is not valid base64", ErrInvalidRecord, field)
	}
	return raw, nil
}
