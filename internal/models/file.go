package models

import "time"

// FileExtension is the suffix of asset documents in a library.
const FileExtension = ".anim.yaml"

// FileMetadata describes one asset document on disk.
type FileMetadata struct {
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	Size      int64     `json:"size"`
	UpdatedAt time.Time `json:"updated_at"`
}
