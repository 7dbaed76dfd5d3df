package domain

import "errors"

var (
	ErrCollectionExists   = errors.New("collection already exists")
	ErrCollectionNotFound = errors.New("collection not found")
	ErrEmptyID            = errors.New("document id is required")
	ErrDimensionMismatch  = errors.New("vector dimension mismatch")
	ErrUnsupportedType    = errors.New("unsupported file type")
	ErrInvalidEncoding    = errors.New("file is not valid UTF-8 text")
)

// Document is a stored text body keyed by a caller-supplied identifier.
type Document struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Neighbor is one entry of a nearest-neighbour query.
// Distance is non-negative; 0 means the stored body embeds identically to the query.
type Neighbor struct {
	ID       string  `json:"id"`
	Distance float64 `json:"distance"`
}

type UploadStatus string

const (
	UploadStored    UploadStatus = "stored"
	UploadDuplicate UploadStatus = "duplicate"
)

// UploadResult describes what happened to an uploaded file.
type UploadResult struct {
	ID         string       `json:"id"`
	Status     UploadStatus `json:"status"`
	Duplicates []string     `json:"duplicates,omitempty"`
}
