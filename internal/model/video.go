// Package model defines the core VaultStream domain types.
package model

import "time"

// Visibility is a closed sum type for who may request playback access.
type Visibility string

const (
	VisibilityPublic   Visibility = "public"
	VisibilityUnlisted Visibility = "unlisted"
	VisibilityPrivate  Visibility = "private"
)

// Status is a closed sum type for a Video's position in the pipeline
// state machine. Transitions are total and monotone: ready and failed
// are terminal.
type Status string

const (
	StatusUploading Status = "uploading"
	StatusProcessing Status = "processing"
	StatusReady      Status = "ready"
	StatusFailed     Status = "failed"
)

// Resolution is the probed width/height of a source video.
type Resolution struct {
	Width  int `json:"width" db:"width"`
	Height int `json:"height" db:"height"`
}

// Video is the record owned by the Pipeline Orchestrator and read by the
// Access Gate and HLS Server.
type Video struct {
	ID                 string     `json:"videoId" db:"id"`
	OwnerUserID        string     `json:"ownerUserId" db:"owner_user_id"`
	Title              string     `json:"title" db:"title"`
	Description        string     `json:"description,omitempty" db:"description"`
	Visibility         Visibility `json:"visibility" db:"visibility"`
	PassphraseHash     string     `json:"-" db:"passphrase_hash"`
	StoragePath        string     `json:"-" db:"storage_path"`
	HLSPath            string     `json:"-" db:"hls_path"`
	MasterPlaylistPath string     `json:"masterPlaylistPath,omitempty" db:"master_playlist_path"`
	Duration           float64    `json:"duration,omitempty" db:"duration_seconds"`
	Resolution         Resolution `json:"resolution,omitempty" db:"-"`
	FileSize           int64      `json:"fileSize" db:"file_size"`
	MimeType           string     `json:"mimeType" db:"mime_type"`
	OriginalFilename   string     `json:"originalFilename" db:"original_filename"`
	Status             Status     `json:"status" db:"status"`
	ProcessingError    string     `json:"processingError,omitempty" db:"processing_error"`
	ThumbnailPath      string     `json:"thumbnailPath,omitempty" db:"thumbnail_path"`
	Views              int64      `json:"views" db:"views"`
	CreatedAt          time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt          time.Time  `json:"updatedAt" db:"updated_at"`
}

// HasPassphrase reports whether access additionally requires a passphrase.
func (v Video) HasPassphrase() bool {
	return v.PassphraseHash != ""
}

// SafeMetadata is the subset of fields the Access Gate is allowed to
// disclose to a successful caller.
type SafeMetadata struct {
	VideoID       string     `json:"videoId"`
	Title         string     `json:"title"`
	Description   string     `json:"description,omitempty"`
	Duration      float64    `json:"duration"`
	Resolution    Resolution `json:"resolution"`
	ThumbnailPath string     `json:"thumbnailPath,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	Views         int64      `json:"views"`
}

// Metadata projects a Video down to its SafeMetadata subset.
func (v Video) Metadata() SafeMetadata {
	return SafeMetadata{
		VideoID:       v.ID,
		Title:         v.Title,
		Description:   v.Description,
		Duration:      v.Duration,
		Resolution:    v.Resolution,
		ThumbnailPath: v.ThumbnailPath,
		CreatedAt:     v.CreatedAt,
		Views:         v.Views,
	}
}

// Rendition is one entry in a quality ladder: a named, succeeded encode.
type Rendition struct {
	Name    string // e.g. "1080p"
	Height  int
	Bitrate string // e.g. "5000k"
}

// TokenPayload is the decoded, verified contents of a Signer bearer token.
type TokenPayload struct {
	VideoID   string
	Resource  string
	UserID    string // empty when the token was minted without a userId
	ExpiresAt time.Time
}
