package model

import "time"

type UploadOwner string

const (
	OwnerDraft  UploadOwner = "draft"
	OwnerImport UploadOwner = "import"
)

// Upload slots other than a color id.
const (
	SlotThumbnail = "thumbnail"
	SlotImportCSV = "csv"
	SlotImportZip = "zip"
)

// StagedUpload is one row of the ownership table for staged files. A file
// lives in storage exactly as long as its row exists.
type StagedUpload struct {
	Key         string      `gorm:"primaryKey;type:varchar(255)" json:"key"`
	OwnerType   UploadOwner `gorm:"type:varchar(16);index:idx_staged_owner" json:"ownerType"`
	OwnerID     string      `gorm:"type:varchar(36);index:idx_staged_owner" json:"ownerId"`
	Slot        string      `gorm:"type:varchar(32)" json:"slot"`
	Filename    string      `json:"filename"`
	ContentType string      `json:"contentType"`
	Size        int64       `json:"size"`
	URL         string      `json:"url"`
	CreatedAt   time.Time   `gorm:"index" json:"createdAt"`
}

func (StagedUpload) TableName() string {
	return "staged_uploads"
}
