package domain

import "time"

// Attachment stores metadata for a blob kept in external storage.
type Attachment struct {
	ID         string
	RecordType ResourceType
	RecordID   string
	StorageKey string
	FileName   string
	MimeType   string
	SizeBytes  int64
	CreatedAt  time.Time
}
