package models

import (
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// UploadedFile is one asset stored on the media host.
type UploadedFile struct {
	URL          string `json:"url"`
	PublicID     string `json:"public_id"`
	ResourceType string `json:"resource_type"`
	Format       string `json:"format,omitempty"`
	Bytes        int    `json:"bytes,omitempty"`
	OriginalName string `json:"original_name,omitempty"`
}

// Upload records a batch of files pushed by one user.
type Upload struct {
	BaseModel
	Files      datatypes.JSONSlice[UploadedFile] `json:"files"`
	UploadedBy uuid.UUID                         `gorm:"type:uuid;index;not null" json:"uploaded_by"`
}
