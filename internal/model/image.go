package model

import "time"

// ImageSize is a coarse size estimate for an image candidate.
type ImageSize string

const (
	ImageSizeSmall  ImageSize = "small"
	ImageSizeMedium ImageSize = "medium"
	ImageSizeLarge  ImageSize = "large"
)

// Rank orders sizes; larger is better. Unknown sizes rank with medium.
func (s ImageSize) Rank() int {
	switch s {
	case ImageSizeLarge:
		return 3
	case ImageSizeSmall:
		return 1
	default:
		return 2
	}
}

// ImageCandidate is a discovered but not yet downloaded image reference.
type ImageCandidate struct {
	URL           string    `json:"url"`
	SourcePageURL string    `json:"source_page_url,omitempty"`
	AltText       string    `json:"alt_text,omitempty"`
	EstimatedSize ImageSize `json:"estimated_size"`
}

// DownloadedImage is an image persisted to blob storage.
type DownloadedImage struct {
	Filename    string `json:"filename"`
	StoragePath string `json:"storage_path"`
	MimeType    string `json:"mime_type"`
	FileSize    int64  `json:"file_size"`
	SourceURL   string `json:"source_url"`
}

// ImageSource records how a watch image entered the collection.
type ImageSource string

const (
	ImageSourceUserUpload   ImageSource = "user_upload"
	ImageSourceManufacturer ImageSource = "manufacturer"
	ImageSourceAIFetched    ImageSource = "ai_fetched"
)

// WatchImage is a persisted image record attached to a watch.
type WatchImage struct {
	ID        string      `json:"id"`
	WatchID   string      `json:"watch_id"`
	Filename  string      `json:"filename"`
	Path      string      `json:"path"`
	FileSize  int64       `json:"file_size"`
	MimeType  string      `json:"mime_type"`
	Source    ImageSource `json:"source"`
	IsPrimary bool        `json:"is_primary"`
	CreatedAt time.Time   `json:"created_at"`
}
