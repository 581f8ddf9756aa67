package models

import "time"

// FileInfo represents metadata about an uploaded document.
type FileInfo struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"` // client-supplied file name
	Path       string    `json:"path"` // location on disk, used as the job's file reference
	Size       int64     `json:"size"`
	UploadedAt time.Time `json:"uploadedAt"`
}
