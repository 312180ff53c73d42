package models

import "time"

// FileInfo represents a dataset file staged on local disk before it is
// sent to the backend.
type FileInfo struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Komoditas  string    `json:"komoditas,omitempty"`
	Size       int64     `json:"size"`
	UploadedAt time.Time `json:"uploadedAt"`
	Status     string    `json:"status"`
}

// DatasetSlot tracks whether a commodity has a dataset on the backend.
// Slots are replaced whole, never patched field by field.
type DatasetSlot struct {
	Komoditas  string    `json:"komoditas"`
	Uploaded   bool      `json:"uploaded"`
	Filename   string    `json:"filename,omitempty"`
	RowCount   int       `json:"rows,omitempty"`
	UploadedAt time.Time `json:"uploadedAt,omitempty"`
}

// EmptySlot returns the not-uploaded slot for a commodity.
func EmptySlot(komoditas string) DatasetSlot {
	return DatasetSlot{Komoditas: komoditas}
}

// DatasetRecord is one row of the backend's dataset listing.
type DatasetRecord struct {
	Komoditas string `json:"komoditas"`
	Filename  string `json:"filename"`
	Rows      int    `json:"rows"`
	Timestamp string `json:"timestamp"`
}

// UploadResult is the backend's reply to a dataset upload.
type UploadResult struct {
	Status    string `json:"status"`
	Message   string `json:"message,omitempty"`
	Timestamp string `json:"timestamp"`
	Rows      int    `json:"rows"`
	Filename  string `json:"filename"`
}

// DatasetPreview is a local inspection of a CSV file.
type DatasetPreview struct {
	Path     string           `json:"path"`
	RowCount int              `json:"rowCount"`
	Columns  []string         `json:"columns"`
	Rows     []map[string]any `json:"rows"`
}
