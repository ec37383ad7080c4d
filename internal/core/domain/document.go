package domain

import "time"

// Document is one ingested artifact fetched from a source or uploaded
// directly. SourceID is empty for system-authored documents.
type Document struct {
	ID          string    `json:"id"`
	TenantID    string    `json:"tenant_id"`
	SourceID    string    `json:"source_id,omitempty"`
	Title       string    `json:"title"`
	MimeType    string    `json:"mime_type"`
	ContentHash string    `json:"content_hash"`
	SizeBytes   int64     `json:"size_bytes"`
	StorageKey  string    `json:"storage_key"`
	FetchedAt   time.Time `json:"fetched_at"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// SourceType selects which connector fetches a file.
type SourceType string

const (
	SourceTypeFilesystem SourceType = "filesystem"
	SourceTypeHTTPDir    SourceType = "httpdir"
)

// Source is the catalog view of a connector. The pipeline only needs its id,
// type, tenant, encrypted credential material and whether it still exists.
type Source struct {
	ID          string     `json:"id"`
	TenantID    string     `json:"tenant_id"`
	Type        SourceType `json:"type"`
	Name        string     `json:"name"`
	Credentials []byte     `json:"-"`
	CreatedAt   time.Time  `json:"created_at"`
}

// FileDescriptor identifies one remote file during enumeration and inside
// deferred large-file dispatch messages.
type FileDescriptor struct {
	RemoteID   string     `json:"remote_id"`
	Name       string     `json:"name"`
	MimeType   string     `json:"mime_type"`
	SizeBytes  int64      `json:"size_bytes"`
	SourceType SourceType `json:"source_type"`
}
