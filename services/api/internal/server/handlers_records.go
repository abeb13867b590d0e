package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"wildwatch/internal/util"
	"wildwatch/pkg/domain"
	"wildwatch/services/api/internal/app"
)

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request, p Principal) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	staged, err := s.receiver.Receive(w, r)
	if err != nil {
		writeIngressError(w, r, err)
		return
	}
	res, err := s.app.Upload(r.Context(), staged)
	if err != nil {
		s.audit(r, "upload", "failed", "user_id", p.SubjectID)
		writePipelineError(w, r, err)
		return
	}
	s.audit(r, "upload", "success", "user_id", p.SubjectID, "record_id", res.RecordID)
	writeJSON(w, http.StatusOK, res)
}

// recordResponse renders a record with client-usable artifact references.
type recordResponse struct {
	ID            string          `json:"id"`
	ImageFilename string          `json:"imageFilename"`
	ImageURL      string          `json:"imageUrl"`
	DataFilename  string          `json:"dataFilename"`
	DataURL       string          `json:"dataUrl"`
	RefKind       domain.RefKind  `json:"refKind"`
	Source        string          `json:"source"`
	Analysis      json.RawMessage `json:"analysis,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
}

func toRecordResponse(rec domain.Record) recordResponse {
	out := recordResponse{
		ID:            rec.ID,
		ImageFilename: rec.ImageFilename,
		ImageURL:      rec.ImageRef,
		DataFilename:  rec.DataFilename,
		DataURL:       rec.DataRef,
		RefKind:       rec.RefKind,
		Source:        string(rec.Source),
		Analysis:      rec.Analysis,
		CreatedAt:     rec.CreatedAt,
	}
	if rec.RefKind == domain.RefInline {
		out.ImageURL = dataURI(util.MediaTypeByExt(rec.ImageFilename, "image/", "image/jpeg"), rec.ImageRef)
		out.DataURL = dataURI("text/csv", rec.DataRef)
	}
	return out
}

func dataURI(mimeType, payload string) string {
	if payload == "" {
		return ""
	}
	return "data:" + mimeType + ";base64," + payload
}

func (s *Server) handleData(w http.ResponseWriter, r *http.Request, _ Principal) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	records, err := s.app.ListRecords()
	if err != nil {
		writeRecordError(w, r, err)
		return
	}
	out := make([]recordResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, toRecordResponse(rec))
	}
	writeJSON(w, http.StatusOK, out)
}

type saveDataRequest struct {
	ImageFilename      string `json:"imageFilename"`
	ImageData          string `json:"imageData"`
	DataFilename       string `json:"dataFilename"`
	DataPayload        string `json:"dataPayload"`
	ImageFilenameSnake string `json:"image_filename"`
	ImageDataSnake     string `json:"image_data"`
	CSVFilename        string `json:"csv_filename"`
	CSVData            string `json:"csv_data"`
}

func (s *Server) handleSaveData(w http.ResponseWriter, r *http.Request, p Principal) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req saveDataRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	rec, err := s.app.SaveData(app.DirectPayload{
		ImageFilename: firstNonEmpty(req.ImageFilename, req.ImageFilenameSnake),
		ImageData:     firstNonEmpty(req.ImageData, req.ImageDataSnake),
		DataFilename:  firstNonEmpty(req.DataFilename, req.CSVFilename),
		DataPayload:   firstNonEmpty(req.DataPayload, req.CSVData),
	})
	if err != nil {
		writeRecordError(w, r, err)
		return
	}
	s.audit(r, "record.create", "success", "user_id", p.SubjectID, "record_id", rec.ID)
	writeJSON(w, http.StatusCreated, toRecordResponse(rec))
}

func (s *Server) handleRecordByID(w http.ResponseWriter, r *http.Request, p Principal) {
	id := pathID(r.URL.Path, "/api/records/")
	if id == "" {
		id = pathID(r.URL.Path, "/api/wildlife/")
	}
	if id == "" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if r.Method != http.MethodDelete {
		methodNotAllowed(w)
		return
	}
	if err := s.app.DeleteRecord(id); err != nil {
		s.audit(r, "record.delete", "failed", "user_id", p.SubjectID, "record_id", id)
		if errors.Is(err, app.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Record not found")
			return
		}
		writeRecordError(w, r, err)
		return
	}
	s.audit(r, "record.delete", "success", "user_id", p.SubjectID, "record_id", id)
	writeJSON(w, http.StatusOK, map[string]string{"message": "Record deleted successfully"})
}
