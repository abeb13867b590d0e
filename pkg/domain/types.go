package domain

import (
	"encoding/json"
	"time"
)

type UserRole string

const (
	RoleUser  UserRole = "user"
	RoleAdmin UserRole = "admin"
)

// Valid reports whether r is one of the known roles.
func (r UserRole) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	DisplayName  string    `json:"displayName,omitempty"`
	PasswordHash string    `json:"-"`
	Role         UserRole  `json:"role"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// RefKind tells whether a record carries its artifacts inline (base64) or as
// public URLs on an external host.
type RefKind string

const (
	RefInline RefKind = "inline"
	RefURL    RefKind = "url"
)

// RecordSource tells which ingestion path produced a record.
type RecordSource string

const (
	SourceUpload RecordSource = "upload"
	SourceDirect RecordSource = "direct"
)

// Record is the persisted outcome of one upload-and-publish cycle, or of a
// direct payload submission. Records are insert-only.
type Record struct {
	ID            string          `json:"id"`
	ImageFilename string          `json:"imageFilename"`
	ImageRef      string          `json:"-"`
	DataFilename  string          `json:"dataFilename"`
	DataRef       string          `json:"-"`
	RefKind       RefKind         `json:"refKind"`
	Source        RecordSource    `json:"source"`
	Analysis      json.RawMessage `json:"analysis,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
}
