package model

import "time"

// Asset processing status values.
const (
	AssetStatusProcessing = "processing"
	AssetStatusReady      = "ready"
	AssetStatusFailed     = "failed"
)

// MediaAsset is a media file registered in the library. The raw bytes live in
// object storage; the record carries the probed metadata the editor needs to
// place the asset on a timeline.
type MediaAsset struct {
	ID           string    `json:"id" gorm:"primaryKey;size:36"`
	Name         string    `json:"name" gorm:"size:255"`
	ObjectKey    string    `json:"-" gorm:"size:512"` // storage key, not exposed in API directly
	ThumbnailKey string    `json:"thumbnailKey" gorm:"size:512"`
	MimeType     string    `json:"mimeType" gorm:"size:128"`
	Kind         ClipKind  `json:"kind" gorm:"size:16"` // video or audio, from MIME classification
	Duration     float64   `json:"duration"`            // seconds
	Width        int       `json:"width"`
	Height       int       `json:"height"`
	Status       string    `json:"status" gorm:"size:32"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// KindFromMime classifies an uploaded file by its MIME type prefix.
func KindFromMime(mime string) ClipKind {
	switch {
	case len(mime) >= 5 && mime[:5] == "video":
		return ClipKindVideo
	case len(mime) >= 5 && mime[:5] == "audio":
		return ClipKindAudio
	default:
		return ""
	}
}
